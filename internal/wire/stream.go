package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Writer serializes chunk headers (and the END_STREAM stats body) onto an
// underlying io.Writer, always in the version negotiated at construction.
// It does not move DATA payload bytes itself — the bulk copier does that
// directly against the channel's file descriptor — but every header and
// the END_STREAM body go through here so ordering (header, then body,
// then next header) is centralized in one place.
type Writer struct {
	w       io.Writer
	version Version
	stats   StreamStats
}

// NewWriter returns a Writer that will tag every header with the magic for
// version v and seeds stats the way a sender does (both markers counted
// up front).
func NewWriter(w io.Writer, v Version) *Writer {
	return &Writer{w: w, version: v, stats: NewSenderStats()}
}

// Stats returns the running statistics accumulated by WriteData/WriteUnmap.
func (w *Writer) Stats() StreamStats { return w.stats }

func (w *Writer) writeHeader(h Header) error {
	buf, err := h.Marshal(w.version)
	if err != nil {
		return err
	}
	return writeAll(w.w, buf)
}

// WriteBegin writes the single BEGIN_STREAM chunk that must open the
// stream.
func (w *Writer) WriteBegin() error {
	return w.writeHeader(Header{Cmd: CmdBeginStream})
}

// WriteDataHeader writes a CMD_DATA header; the caller is responsible for
// then writing exactly length bytes of payload to the same channel.
func (w *Writer) WriteDataHeader(offset, length uint64) error {
	if err := w.writeHeader(Header{Offset: offset, Length: length, Cmd: CmdData}); err != nil {
		return err
	}
	w.stats.RecordData()
	return nil
}

// WriteUnmap writes a CMD_UNMAP header (no body).
func (w *Writer) WriteUnmap(offset, length uint64) error {
	if err := w.writeHeader(Header{Offset: offset, Length: length, Cmd: CmdUnmap}); err != nil {
		return err
	}
	w.stats.RecordUnmap()
	return nil
}

// WriteEnd writes the single END_STREAM chunk, with the accumulated
// statistics as its body, that must close the stream.
func (w *Writer) WriteEnd() error {
	body := make([]byte, 24)
	binary.BigEndian.PutUint64(body[0:8], w.stats.NChunks)
	binary.BigEndian.PutUint64(body[8:16], w.stats.NData)
	binary.BigEndian.PutUint64(body[16:24], w.stats.NUnmap)

	if err := w.writeHeader(Header{Length: uint64(len(body)), Cmd: CmdEndStream}); err != nil {
		return err
	}
	return writeAll(w.w, body)
}

func writeAll(w io.Writer, buf []byte) error {
	for len(buf) > 0 {
		n, err := w.Write(buf)
		if err != nil {
			return fmt.Errorf("wire: short write: %w", err)
		}
		buf = buf[n:]
	}
	return nil
}

// Reader deserializes chunk headers off an underlying io.Reader, handling
// magic negotiation on the first chunk and trailing-garbage detection
// after END_STREAM.
type Reader struct {
	r               io.Reader
	accept          AcceptedFormats
	version         Version
	negotiated      bool
	sawBegin        bool
	sawEnd          bool
	stats           StreamStats
	chunksProcessed uint64
}

// AcceptedFormats restricts which protocol version(s) a Reader will
// negotiate, mirroring the --accept-stream-format CLI option.
type AcceptedFormats int

const (
	AcceptAuto AcceptedFormats = iota
	AcceptV10
	AcceptV11
)

// NewReader returns a Reader restricted to accept.
func NewReader(r io.Reader, accept AcceptedFormats) *Reader {
	return &Reader{r: r, accept: accept}
}

// Version returns the negotiated version, valid only after the first
// ReadHeader call has succeeded.
func (r *Reader) Version() Version { return r.version }

// Stats returns the running statistics accumulated as headers are read.
func (r *Reader) Stats() StreamStats { return r.stats }

// SawBegin and SawEnd report whether the corresponding marker has been
// observed so far.
func (r *Reader) SawBegin() bool { return r.sawBegin }
func (r *Reader) SawEnd() bool   { return r.sawEnd }

// ReadHeader reads the next chunk header, negotiating the protocol
// version on the first call. io.EOF is returned only at a clean
// end-of-channel with zero bytes consumed; after END_STREAM has been
// seen, any further successful read is a StreamError ("trailing
// garbage") rather than being passed through.
func (r *Reader) ReadHeader() (Header, error) {
	magicBuf := make([]byte, 8)
	n, err := io.ReadFull(r.r, magicBuf)
	if err == io.EOF && n == 0 {
		return Header{}, io.EOF
	}
	if err != nil {
		return Header{}, &StreamError{Reason: fmt.Sprintf("truncated magic: %v", err)}
	}

	if r.sawEnd {
		return Header{}, &StreamError{Reason: "trailing garbage after END_STREAM"}
	}

	magic := binary.BigEndian.Uint64(magicBuf)
	if !r.negotiated {
		v, ok := VersionForMagic(magic)
		if !ok {
			return Header{}, &StreamError{Reason: fmt.Sprintf("unrecognized magic 0x%x", magic)}
		}
		if !r.accept.allows(v) {
			return Header{}, &StreamError{Reason: fmt.Sprintf("stream format %v not permitted by --accept-stream-format", v)}
		}
		r.version = v
		r.negotiated = true
	} else if got, ok := VersionForMagic(magic); !ok || got != r.version {
		return Header{}, &StreamError{Reason: "magic changed mid-stream"}
	}

	body := make([]byte, BodySize(r.version))
	if _, err := io.ReadFull(r.r, body); err != nil {
		return Header{}, &StreamError{Reason: fmt.Sprintf("truncated header: %v", err)}
	}
	h, err := UnmarshalBody(body, r.version)
	if err != nil {
		return Header{}, err
	}

	if r.chunksProcessed == 0 && h.Cmd != CmdBeginStream && r.version != Version10 {
		return Header{}, &StreamError{Reason: "first chunk is not BEGIN_STREAM"}
	}

	// Only the four known commands are counted; an optional chunk the
	// receiver drains is not, so the totals still match what the sender
	// reports in END_STREAM.
	r.chunksProcessed++
	switch h.Cmd {
	case CmdData:
		r.stats.NChunks++
		r.stats.NData++
	case CmdUnmap:
		r.stats.NChunks++
		r.stats.NUnmap++
	case CmdBeginStream:
		r.stats.NChunks++
		r.sawBegin = true
	case CmdEndStream:
		r.stats.NChunks++
		r.sawEnd = true
	}

	return h, nil
}

// ReadEndStats checks that the CMD_END_STREAM body is the expected 24
// bytes, decodes it, and returns the sender's reported counters.
func ReadEndStats(r io.Reader, bodyLength uint64) (StreamStats, error) {
	if bodyLength != 24 {
		return StreamStats{}, &StreamError{Reason: fmt.Sprintf("END_STREAM body length %d, want 24", bodyLength)}
	}
	buf := make([]byte, 24)
	if _, err := io.ReadFull(r, buf); err != nil {
		return StreamStats{}, &StreamError{Reason: fmt.Sprintf("truncated END_STREAM body: %v", err)}
	}
	return StreamStats{
		NChunks: binary.BigEndian.Uint64(buf[0:8]),
		NData:   binary.BigEndian.Uint64(buf[8:16]),
		NUnmap:  binary.BigEndian.Uint64(buf[16:24]),
	}, nil
}

func (a AcceptedFormats) allows(v Version) bool {
	switch a {
	case AcceptV10:
		return v == Version10
	case AcceptV11:
		return v == Version11
	default:
		return true
	}
}

// StreamError reports a fatal protocol-level failure: magic mismatch,
// truncation, a first chunk that is not BEGIN_STREAM, a bad END_STREAM
// body length, or trailing garbage.
type StreamError struct {
	Reason string
}

func (e *StreamError) Error() string { return "wire: " + e.Reason }
