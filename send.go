package thinsr

import (
	"context"
	"io"
	"os"
	"os/exec"

	"github.com/lvmthin/thin-send-recv/internal/critsection"
	"github.com/lvmthin/thin-send-recv/internal/logging"
	"github.com/lvmthin/thin-send-recv/internal/metadata"
	"github.com/lvmthin/thin-send-recv/internal/volinfo"
	"github.com/lvmthin/thin-send-recv/internal/wire"
	"github.com/lvmthin/thin-send-recv/internal/xfer"
)

// byteExtent is an Extent converted from block units to absolute byte
// coordinates, the units the wire protocol and the bulk copier deal in.
type byteExtent struct {
	offset, length uint64
	present        bool
}

// Send replicates the volume(s) named by opts onto opts.Out, in the
// binary chunk format the wire package defines. It returns once the
// END_STREAM chunk has been written.
func Send(ctx context.Context, opts SendOptions) (Stats, error) {
	if err := opts.validate(); err != nil {
		return Stats{}, err
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if err := checkChannelAllowed(opts.Out, opts.AllowTTY); err != nil {
		return Stats{}, err
	}

	logger := logging.Default()
	if opts.isDiff() {
		return sendDiff(ctx, opts, logger)
	}
	return sendDump(ctx, opts, logger)
}

// collectExtents buffers the extents a parse callback reports. The
// parser only returns the superblock's block size once it has finished
// (metadata.ParseDiff/ParseDump take a sink with no header parameter, so
// there's no way for the sink itself to convert to byte units as it
// goes); the send driver buffers in block units and converts in a
// second pass once the block size is known, via toByteExtents.
func collectExtents() (sink metadata.ExtentSink, extents *[]metadata.Extent) {
	var collected []metadata.Extent
	return func(e metadata.Extent) error {
		collected = append(collected, e)
		return nil
	}, &collected
}

func toByteExtents(extents []metadata.Extent, blockSize uint64) []byteExtent {
	out := make([]byteExtent, len(extents))
	for i, e := range extents {
		out[i] = byteExtent{
			offset:  e.Begin * blockSize * 512,
			length:  e.Length * blockSize * 512,
			present: e.Kind == metadata.DataPresent,
		}
	}
	return out
}

// sendDump implements the full-volume form of send (spec.md §4.6, second
// paragraph): no activation toggling, one dump generator invocation
// under the critical section.
func sendDump(ctx context.Context, opts SendOptions, logger *logging.Logger) (Stats, error) {
	info, err := volinfo.Lookup(opts.Volume)
	if err != nil {
		return Stats{}, WrapError("lookup volume", CategorySetup, err)
	}

	dumpFile, err := materializeUnderCriticalSection(ctx, info.PoolTpoolTarget(), volinfo.DumpCommand(info.DMPath), logger)
	if err != nil {
		return Stats{}, err
	}
	defer dumpFile.Close()

	sink, extents := collectExtents()
	hdr, err := metadata.ParseDump(metadata.NewScanner(dumpFile), sink)
	if err != nil {
		return Stats{}, categorizeParseErr(err)
	}

	source, err := openSourceDirect(info.DMPath)
	if err != nil {
		return Stats{}, WrapError("open source", CategorySetup, err)
	}
	defer source.Close()

	return streamExtents(opts.Out, source, toByteExtents(*extents, hdr.BlockSize))
}

// sendDiff implements the two-snapshot form of send (spec.md §4.6, first
// paragraph): both snapshots resolved, the second activated for the
// duration of the send if it was inactive, and the delta generator run
// under the critical section.
func sendDiff(ctx context.Context, opts SendOptions, logger *logging.Logger) (Stats, error) {
	info1, err := volinfo.Lookup(opts.Snap1)
	if err != nil {
		return Stats{}, WrapError("lookup snap1", CategorySetup, err)
	}
	info2, err := volinfo.Lookup(opts.Snap2)
	if err != nil {
		return Stats{}, WrapError("lookup snap2", CategorySetup, err)
	}

	if !info2.Active {
		if err := volinfo.SetActive(opts.Snap2, true); err != nil {
			return Stats{}, WrapError("activate snap2", CategorySetup, err)
		}
		defer func() {
			if err := volinfo.SetActive(opts.Snap2, false); err != nil {
				logger.Warn("failed to deactivate snap2 after send", "snap2", opts.Snap2, "error", err)
			}
		}()
	}

	dumpFile, err := materializeUnderCriticalSection(ctx, info1.PoolTpoolTarget(), volinfo.DiffCommand(info1.DMPath, info2.DMPath), logger)
	if err != nil {
		return Stats{}, err
	}
	defer dumpFile.Close()

	sink, extents := collectExtents()
	hdr, err := metadata.ParseDiff(metadata.NewScanner(dumpFile), sink)
	if err != nil {
		return Stats{}, categorizeParseErr(err)
	}

	source, err := openSourceDirect(info2.DMPath)
	if err != nil {
		return Stats{}, WrapError("open source", CategorySetup, err)
	}
	defer source.Close()

	return streamExtents(opts.Out, source, toByteExtents(*extents, hdr.BlockSize))
}

// materializeUnderCriticalSection runs the critical-section sequence
// (spec.md §4.3, steps 1-5): lock the process-wide lock file, reserve
// the metadata snap, run the dump/delta generator into a private
// unlinked temp file, then release the reservation and lock before
// returning the captured dump for the caller to parse at leisure — the
// reservation is held for the shortest possible window, not for the
// duration of parsing or the data transfer that follows.
func materializeUnderCriticalSection(ctx context.Context, poolTpoolTarget string, cmd *exec.Cmd, logger *logging.Logger) (*os.File, error) {
	session, err := critsection.Acquire(ctx, poolTpoolTarget, logger)
	if err != nil {
		return nil, WrapError("acquire metadata snap", CategorySetup, err)
	}

	dumpFile, dumpErr := critsection.MaterializeDump(cmd)
	if relErr := session.Release(); relErr != nil {
		logger.Warn("failed to release metadata snap", "error", relErr)
	}
	if dumpErr != nil {
		return nil, WrapError("generate metadata dump", CategorySetup, dumpErr)
	}
	return dumpFile, nil
}

// categorizeParseErr wraps any failure from metadata.ParseDiff/ParseDump
// as a CategoryParse error: a token mismatch (*metadata.ParseError) or an
// I/O failure reading the captured dump are both fatal, non-recoverable
// failures of the parse stage (spec.md §7).
func categorizeParseErr(err error) error {
	return WrapError("parse metadata", CategoryParse, err)
}

// streamExtents writes BEGIN_STREAM, one chunk per extent, and
// END_STREAM, reading DATA payload from source as it goes (spec.md §4.6
// emission order).
func streamExtents(out io.Writer, source Source, extents []byteExtent) (Stats, error) {
	w := wire.NewWriter(out, wire.Version11)
	copier := xfer.NewCopier()
	defer copier.Close()

	if err := w.WriteBegin(); err != nil {
		return Stats{}, WrapError("write BEGIN_STREAM", CategoryStream, err)
	}

	for _, e := range extents {
		if e.present {
			if err := w.WriteDataHeader(e.offset, e.length); err != nil {
				return Stats{}, WrapError("write CMD_DATA header", CategoryStream, err)
			}
			if err := copyToChannel(copier, source, out, e.offset, e.length); err != nil {
				return Stats{}, WrapError("send data", CategoryTransfer, err)
			}
		} else {
			if err := w.WriteUnmap(e.offset, e.length); err != nil {
				return Stats{}, WrapError("write CMD_UNMAP header", CategoryStream, err)
			}
		}
	}

	if err := w.WriteEnd(); err != nil {
		return Stats{}, WrapError("write END_STREAM", CategoryStream, err)
	}

	return statsFromWire(w.Stats()), nil
}
