package xfer

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCopyDataDirectFIFOToFIFO(t *testing.T) {
	inR, inW, err := os.Pipe()
	require.NoError(t, err)
	defer inR.Close()
	defer inW.Close()

	outR, outW, err := os.Pipe()
	require.NoError(t, err)
	defer outR.Close()
	defer outW.Close()

	payload := []byte("thin-send-recv splice payload")
	go func() {
		inW.Write(payload)
		inW.Close()
	}()

	c := NewCopier()
	err = c.CopyData(int(inR.Fd()), nil, int(outW.Fd()), nil, uint64(len(payload)))
	require.NoError(t, err)
	outW.Close()

	got := make([]byte, len(payload))
	_, err = outR.Read(got)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

// TestCopyDataDirectWhenOnlyOutputIsFIFO pairs a regular-file inFD with a
// pipe outFD: neither the original is_fifo(in_fd) alone nor a check of only
// inFD would see a pipe here, but the output end is one, so CopyData must
// still take the direct-splice path rather than falling back to staging.
func TestCopyDataDirectWhenOnlyOutputIsFIFO(t *testing.T) {
	dir := t.TempDir()
	src, err := os.Create(dir + "/src")
	require.NoError(t, err)
	payload := []byte("regular file source, not a pipe")
	_, err = src.Write(payload)
	require.NoError(t, err)
	_, err = src.Seek(0, 0)
	require.NoError(t, err)
	defer src.Close()

	outR, outW, err := os.Pipe()
	require.NoError(t, err)
	defer outR.Close()
	defer outW.Close()

	c := NewCopier()
	defer c.Close()
	var inOff int64
	err = c.CopyData(int(src.Fd()), &inOff, int(outW.Fd()), nil, uint64(len(payload)))
	require.NoError(t, err)
	outW.Close()

	got := make([]byte, len(payload))
	_, err = outR.Read(got)
	require.NoError(t, err)
	require.Equal(t, payload, got)
	require.Equal(t, int64(len(payload)), inOff)
}

// TestCopyDataViaStagingBetweenRegularFiles covers the only case that
// actually needs the staging pipe: neither endpoint is a FIFO.
func TestCopyDataViaStagingBetweenRegularFiles(t *testing.T) {
	dir := t.TempDir()
	src, err := os.Create(dir + "/src")
	require.NoError(t, err)
	payload := []byte("neither end of this copy is a pipe")
	_, err = src.Write(payload)
	require.NoError(t, err)
	_, err = src.Seek(0, 0)
	require.NoError(t, err)
	defer src.Close()

	dst, err := os.Create(dir + "/dst")
	require.NoError(t, err)
	defer dst.Close()

	c := NewCopier()
	defer c.Close()
	var inOff, outOff int64
	err = c.CopyData(int(src.Fd()), &inOff, int(dst.Fd()), &outOff, uint64(len(payload)))
	require.NoError(t, err)
	require.Equal(t, int64(len(payload)), inOff)
	require.Equal(t, int64(len(payload)), outOff)

	got := make([]byte, len(payload))
	_, err = dst.ReadAt(got, 0)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestDiscardUnsupportedIsTolerated(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	ok, err := Discard(r.Fd(), 0, 4096, false)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDiscardUnsupportedFatalReturnsError(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	_, err = Discard(r.Fd(), 0, 4096, true)
	require.Error(t, err)
}
