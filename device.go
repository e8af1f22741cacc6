package thinsr

import (
	"errors"
	"fmt"
	"os"

	"github.com/lvmthin/thin-send-recv/internal/xfer"
	"golang.org/x/sys/unix"
)

// ErrDiscardUnsupported is returned by a Target's Discard method when the
// underlying device doesn't support discard and the receiver is
// configured to tolerate that (the default). The receive driver turns
// this into a warning on Stats rather than a fatal error.
var ErrDiscardUnsupported = errors.New("thinsr: target does not support discard")

// Source is what the send driver reads DATA extents from: a thin
// device's direct-I/O-opened block device, or an in-memory fake in
// tests.
type Source interface {
	// Fd returns the underlying descriptor, for splice-capable callers.
	// Implementations with no real descriptor (test fakes) return 0 and
	// must not be used on a splice/direct-I/O path.
	Fd() uintptr
	// ReadAt reads len(p) bytes starting at byte offset.
	ReadAt(p []byte, offset uint64) error
}

// Target is what the receive driver writes into: a target volume opened
// write-only, or an in-memory fake in tests.
type Target interface {
	Fd() uintptr
	// WriteAt writes p at byte offset.
	WriteAt(p []byte, offset uint64) error
	// Discard unmaps [offset, offset+length). Returns ErrDiscardUnsupported
	// (not a hard failure) when the device doesn't support discard and
	// the caller asked for that to be tolerated.
	Discard(offset, length uint64) error
}

// blockFile adapts a real block device or regular file, opened by the
// send/receive drivers, to Source and Target.
type blockFile struct {
	f                  *os.File
	fatalOnUnsupported bool
}

// openSourceDirect opens path read-only with O_DIRECT, matching the
// original's choice to bypass the page cache on the sender so a large
// send doesn't evict the receiver's (or anything else's) working set.
// Falls back to a buffered open if O_DIRECT is refused (e.g. the path is
// a regular file on a filesystem that doesn't support it, common in
// tests run against loopback-less environments).
func openSourceDirect(path string) (*blockFile, error) {
	f, err := os.OpenFile(path, os.O_RDONLY|unix.O_DIRECT|unix.O_CLOEXEC, 0)
	if err != nil {
		f, err = os.OpenFile(path, os.O_RDONLY|unix.O_CLOEXEC, 0)
		if err != nil {
			return nil, fmt.Errorf("thinsr: open source %s: %w", path, err)
		}
	}
	return &blockFile{f: f}, nil
}

// openTargetBuffered opens path write-only with buffered I/O, matching
// the original's choice to sidestep O_DIRECT's alignment constraints on
// discard and on the final, possibly short, DATA write.
func openTargetBuffered(path string, fatalOnUnsupportedDiscard bool) (*blockFile, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("thinsr: open target %s: %w", path, err)
	}
	return &blockFile{f: f, fatalOnUnsupported: fatalOnUnsupportedDiscard}, nil
}

func (b *blockFile) Fd() uintptr { return b.f.Fd() }

func (b *blockFile) ReadAt(p []byte, offset uint64) error {
	_, err := b.f.ReadAt(p, int64(offset))
	return err
}

func (b *blockFile) WriteAt(p []byte, offset uint64) error {
	_, err := b.f.WriteAt(p, int64(offset))
	return err
}

func (b *blockFile) Discard(offset, length uint64) error {
	ok, err := xfer.Discard(b.f.Fd(), offset, length, b.fatalOnUnsupported)
	if err != nil {
		return err
	}
	if !ok {
		return ErrDiscardUnsupported
	}
	return nil
}

func (b *blockFile) Close() error { return b.f.Close() }
