package thinsr

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/lvmthin/thin-send-recv/internal/wire"
	"github.com/lvmthin/thin-send-recv/internal/xfer"
)

// Receive reads a stream from opts.In and applies it to opts.Volume,
// returning once EOF is reached and the stream has been validated
// against the spec's invariants (exactly one BEGIN_STREAM, exactly one
// END_STREAM whose counters match what was actually applied).
func Receive(ctx context.Context, opts ReceiveOptions) (Stats, error) {
	if opts.Volume == "" {
		return Stats{}, NewError("receive", CategorySetup, "ReceiveOptions.Volume is required")
	}
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if err := checkChannelAllowed(opts.In, opts.AllowTTY); err != nil {
		return Stats{}, err
	}

	target, err := openTargetBuffered(opts.Volume, opts.FatalOnUnsupportedDiscard)
	if err != nil {
		return Stats{}, WrapError("open target", CategorySetup, err)
	}
	defer target.Close()

	return receiveInto(ctx, opts.In, target, opts.Accept)
}

// receiveInto drives process_chunk (spec.md §4.7) in a loop until EOF,
// taking Target as a parameter so tests can substitute an in-memory fake
// without a real block device.
func receiveInto(ctx context.Context, in io.Reader, target Target, accept wire.AcceptedFormats) (Stats, error) {
	r := wire.NewReader(in, accept)
	copier := xfer.NewCopier()
	defer copier.Close()

	var warnings []string
	nChunks := 0

	for {
		select {
		case <-ctx.Done():
			return Stats{}, WrapError("receive", CategoryTransfer, ctx.Err())
		default:
		}

		h, err := r.ReadHeader()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Stats{}, WrapError("read chunk header", CategoryStream, err)
		}
		nChunks++

		// A v1.0 stream only ever carries CMD_DATA/CMD_UNMAP chunks; a
		// legacy sender's CMD_BEGIN_STREAM/CMD_END_STREAM values are never
		// written onto the wire in that format, and any other command is
		// unrecognized. Earlier releases silently ignored such a chunk;
		// this rewrite fatales instead, a deliberate tightening carried
		// forward rather than bug-for-bug compatibility with that leniency.
		if r.Version() == wire.Version10 && h.Cmd != wire.CmdData && h.Cmd != wire.CmdUnmap {
			return Stats{}, NewError("process chunk", CategoryStream, "unrecognized command in v1.0 stream")
		}

		switch {
		case h.Cmd == wire.CmdBeginStream:
			// Validated by wire.Reader (first-chunk check); nothing further
			// to do here.

		case h.Cmd == wire.CmdData:
			if err := copyFromChannel(copier, in, target, h.Offset, h.Length); err != nil {
				return Stats{}, WrapError("apply CMD_DATA", CategoryTransfer, err)
			}

		case h.Cmd == wire.CmdUnmap:
			if err := target.Discard(h.Offset, h.Length); err != nil {
				if errors.Is(err, ErrDiscardUnsupported) {
					warnings = append(warnings, "discard not supported by target, treating range as best-effort zero")
					continue
				}
				return Stats{}, WrapError("apply CMD_UNMAP", CategoryTransfer, err)
			}

		case h.Cmd == wire.CmdEndStream:
			stats, err := wire.ReadEndStats(in, h.Length)
			if err != nil {
				return Stats{}, WrapError("read END_STREAM body", CategoryStream, err)
			}
			// r.Stats() already counted this END_STREAM header itself, so
			// it matches what the sender seeded its own counters with.
			if stats != r.Stats() {
				return Stats{}, NewError("validate END_STREAM", CategoryStream,
					"reported stream statistics do not match what was received")
			}

		case h.Cmd.IsOptional():
			if err := drain(in, h.Length); err != nil {
				return Stats{}, WrapError("drain optional chunk", CategoryStream, err)
			}

		default:
			return Stats{}, NewError("process chunk", CategoryStream, "unknown mandatory command")
		}
	}

	if r.SawBegin() && !r.SawEnd() {
		return Stats{}, NewError("receive", CategoryStream, "stream ended without END_STREAM")
	}
	// An empty stream (not even a negotiated magic) is fatal unless the
	// caller explicitly restricted this receive to v1.0, which tolerates
	// it (spec.md §4.7).
	if nChunks == 0 && accept != wire.AcceptV10 {
		return Stats{}, NewError("receive", CategoryStream, "empty stream")
	}
	if nChunks == 0 {
		warnings = append(warnings, "empty stream")
	}

	s := statsFromWire(r.Stats())
	s.Warnings = warnings
	return s, nil
}

// drain discards length bytes from r without interpreting them, the
// receive-side handling for an unrecognized optional chunk (spec.md
// §4.7, "Unknown command").
func drain(r io.Reader, length uint64) error {
	_, err := io.CopyN(io.Discard, r, int64(length))
	return err
}
