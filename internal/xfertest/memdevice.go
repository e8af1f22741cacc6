// Package xfertest provides an in-memory stand-in for a block device,
// letting the receive path be exercised in tests without a real
// /dev/ublkb*-like target or root privileges for BLKDISCARD.
package xfertest

import (
	"fmt"
	"sync"
)

// MemDevice is a byte-slice-backed fake satisfying the small interface
// the receive path needs from a write target, modeled on the sharded
// in-memory backend used to unit test block-device I/O without a kernel
// device underneath it.
type MemDevice struct {
	mu       sync.Mutex
	data     []byte
	discards []DiscardCall
}

// DiscardCall records one Discard invocation for assertions in tests.
type DiscardCall struct {
	Offset uint64
	Length uint64
}

// NewMemDevice returns a MemDevice backed by size zeroed bytes.
func NewMemDevice(size uint64) *MemDevice {
	return &MemDevice{data: make([]byte, size)}
}

// NewMemDeviceWithData returns a MemDevice backed by a copy of data,
// useful for standing in for a source volume with known contents.
func NewMemDeviceWithData(data []byte) *MemDevice {
	d := make([]byte, len(data))
	copy(d, data)
	return &MemDevice{data: d}
}

// Fd satisfies the thinsr.Source/Target interfaces; MemDevice has no real
// descriptor, so callers exercising discard/splice against a MemDevice
// must not dereference it for an actual ioctl or splice syscall (the
// in-process ReadAt/WriteAt/Discard methods below are the test seam
// instead).
func (m *MemDevice) Fd() uintptr { return 0 }

// ReadAt reads len(p) bytes starting at offset, satisfying the send
// path's Source interface so a MemDevice can stand in for the volume
// being read from, not just the one being written to.
func (m *MemDevice) ReadAt(p []byte, offset uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	end := offset + uint64(len(p))
	if end > uint64(len(m.data)) {
		return fmt.Errorf("xfertest: read range [%d,%d) exceeds device size %d", offset, end, len(m.data))
	}
	copy(p, m.data[offset:end])
	return nil
}

// WriteAt writes p at offset, growing the backing slice if needed.
func (m *MemDevice) WriteAt(p []byte, offset uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	end := offset + uint64(len(p))
	if end > uint64(len(m.data)) {
		grown := make([]byte, end)
		copy(grown, m.data)
		m.data = grown
	}
	copy(m.data[offset:end], p)
	return nil
}

// Discard zeroes [offset, offset+length) and records the call.
func (m *MemDevice) Discard(offset, length uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	end := offset + length
	if end > uint64(len(m.data)) {
		return fmt.Errorf("xfertest: discard range [%d,%d) exceeds device size %d", offset, end, len(m.data))
	}
	for i := offset; i < end; i++ {
		m.data[i] = 0
	}
	m.discards = append(m.discards, DiscardCall{Offset: offset, Length: length})
	return nil
}

// Bytes returns a copy of the device's current contents.
func (m *MemDevice) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out
}

// Discards returns a copy of the recorded discard calls, in order.
func (m *MemDevice) Discards() []DiscardCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]DiscardCall, len(m.discards))
	copy(out, m.discards)
	return out
}
