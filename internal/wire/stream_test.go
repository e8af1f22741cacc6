package wire

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, Version11)
	require.NoError(t, w.WriteBegin())
	require.NoError(t, w.WriteDataHeader(4096, 8192))
	require.NoError(t, w.WriteUnmap(8192, 4096))
	require.NoError(t, w.WriteEnd())

	r := NewReader(&buf, AcceptAuto)
	h, err := r.ReadHeader()
	require.NoError(t, err)
	require.Equal(t, CmdBeginStream, h.Cmd.Base())

	h, err = r.ReadHeader()
	require.NoError(t, err)
	require.Equal(t, CmdData, h.Cmd.Base())
	require.Equal(t, uint64(4096), h.Offset)
	require.Equal(t, uint64(8192), h.Length)

	h, err = r.ReadHeader()
	require.NoError(t, err)
	require.Equal(t, CmdUnmap, h.Cmd.Base())

	h, err = r.ReadHeader()
	require.NoError(t, err)
	require.Equal(t, CmdEndStream, h.Cmd.Base())
	endStats, err := ReadEndStats(&buf, h.Length)
	require.NoError(t, err)
	require.Equal(t, StreamStats{NChunks: 4, NData: 1, NUnmap: 1}, endStats)
	require.Equal(t, endStats, r.Stats())

	_, err = r.ReadHeader()
	require.ErrorIs(t, err, io.EOF)
}

func TestReaderRejectsUnknownMagic(t *testing.T) {
	buf := make([]byte, 8)
	for i := range buf {
		buf[i] = 0xDE
	}
	r := NewReader(bytes.NewReader(buf), AcceptAuto)
	_, err := r.ReadHeader()
	require.Error(t, err)
}

func TestReaderRejectsNonBeginFirstChunkV11(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, Version11)
	require.NoError(t, w.WriteUnmap(0, 4096))

	r := NewReader(&buf, AcceptAuto)
	_, err := r.ReadHeader()
	require.Error(t, err)
}

func TestReaderAcceptsNonBeginFirstChunkV10(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, Version10)
	require.NoError(t, w.WriteUnmap(0, 4096))

	r := NewReader(&buf, AcceptAuto)
	h, err := r.ReadHeader()
	require.NoError(t, err)
	require.Equal(t, CmdUnmap, h.Cmd.Base())
}

func TestReaderDetectsTrailingGarbage(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, Version11)
	require.NoError(t, w.WriteBegin())
	require.NoError(t, w.WriteEnd())
	buf.Write([]byte{1, 2, 3, 4, 5, 6, 7, 8})

	r := NewReader(&buf, AcceptAuto)
	_, err := r.ReadHeader()
	require.NoError(t, err)
	_, err = r.ReadHeader()
	require.NoError(t, err)
	_, err = r.ReadHeader()
	require.Error(t, err)
}

func TestAcceptedFormatsRestriction(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, Version10)
	require.NoError(t, w.WriteBegin())

	r := NewReader(&buf, AcceptV11)
	_, err := r.ReadHeader()
	require.Error(t, err)
}

func TestOptionalUnknownCommandIsMarkedOptional(t *testing.T) {
	h := Header{Cmd: Cmd(1) | CmdOptionalInfo}
	require.True(t, h.Cmd.IsOptional())
}
