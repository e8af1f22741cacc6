package thinsr

import (
	"fmt"
	"io"

	"github.com/lvmthin/thin-send-recv/internal/constants"
	"github.com/lvmthin/thin-send-recv/internal/xfer"
)

// fder is satisfied by any channel endpoint (typically *os.File) that can
// hand the bulk copier a real descriptor for a zero-copy splice. Channels
// that don't implement it (a bytes.Buffer, an io.Pipe) fall back to the
// generic read/write loop below.
type fder interface {
	Fd() uintptr
}

// copyToChannel moves length bytes from source at offset to out, preferring
// a splice straight from the source's descriptor into out's when both
// sides can supply a real one, and falling back to a buffered ReadAt/Write
// loop otherwise (the path an in-memory test Source and a plain io.Writer
// both take).
func copyToChannel(copier *xfer.Copier, source Source, out io.Writer, offset, length uint64) error {
	if length == 0 {
		return nil
	}
	if of, ok := out.(fder); ok && source.Fd() != 0 && of.Fd() != 0 {
		inOff := int64(offset)
		return copier.CopyData(int(source.Fd()), &inOff, int(of.Fd()), nil, length)
	}
	buf := make([]byte, minUint64(length, constants.IOBufferBytes))
	for remaining := length; remaining > 0; {
		hop := minUint64(remaining, uint64(len(buf)))
		chunk := buf[:hop]
		if err := source.ReadAt(chunk, offset); err != nil {
			return fmt.Errorf("thinsr: read %d bytes at offset %d: %w", hop, offset, err)
		}
		if err := writeAll(out, chunk); err != nil {
			return err
		}
		offset += hop
		remaining -= hop
	}
	return nil
}

// copyFromChannel moves length bytes from in to target at offset, the
// receive-side mirror of copyToChannel.
func copyFromChannel(copier *xfer.Copier, in io.Reader, target Target, offset, length uint64) error {
	if length == 0 {
		return nil
	}
	if inf, ok := in.(fder); ok && target.Fd() != 0 {
		outOff := int64(offset)
		return copier.CopyData(int(inf.Fd()), nil, int(target.Fd()), &outOff, length)
	}
	buf := make([]byte, minUint64(length, constants.IOBufferBytes))
	for remaining := length; remaining > 0; {
		hop := minUint64(remaining, uint64(len(buf)))
		chunk := buf[:hop]
		if _, err := io.ReadFull(in, chunk); err != nil {
			return fmt.Errorf("thinsr: read %d bytes from channel: %w", hop, err)
		}
		if err := target.WriteAt(chunk, offset); err != nil {
			return fmt.Errorf("thinsr: write %d bytes at offset %d: %w", hop, offset, err)
		}
		offset += hop
		remaining -= hop
	}
	return nil
}

func writeAll(w io.Writer, buf []byte) error {
	for len(buf) > 0 {
		n, err := w.Write(buf)
		if err != nil {
			return fmt.Errorf("thinsr: short write to channel: %w", err)
		}
		buf = buf[n:]
	}
	return nil
}

func minUint64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
