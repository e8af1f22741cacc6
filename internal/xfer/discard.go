package xfer

import (
	"fmt"
	"unsafe"

	"github.com/lvmthin/thin-send-recv/internal/constants"
	"golang.org/x/sys/unix"
)

// blkDiscard is the BLKDISCARD ioctl request number (_IO(0x12, 119)). The
// kernel takes a uint64[2]{start, len} range in bytes; x/sys/unix has no
// typed helper for it, so this issues the raw ioctl the way the kernel
// expects.
const blkDiscard = 0x1277

// Discard unmaps [offset, offset+length) on the target, chunked into
// DiscardChunkBytes-sized ioctls so a single discard request can't make
// cancellation latency unbounded. If the device doesn't support discard
// and fatalOnUnsupported is false, EOPNOTSUPP is swallowed and ok reports
// false so the caller can record a warning instead of failing the stream.
func Discard(fd uintptr, offset, length uint64, fatalOnUnsupported bool) (ok bool, err error) {
	for remaining := length; remaining > 0; {
		chunk := remaining
		if chunk > constants.DiscardChunkBytes {
			chunk = constants.DiscardChunkBytes
		}

		rng := [2]uint64{offset, chunk}
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, blkDiscard, uintptr(unsafe.Pointer(&rng[0])))
		if errno != 0 {
			if errno == unix.EOPNOTSUPP && !fatalOnUnsupported {
				return false, nil
			}
			return false, fmt.Errorf("xfer: BLKDISCARD offset=%d length=%d: %w", offset, chunk, errno)
		}

		offset += chunk
		remaining -= chunk
	}
	return true, nil
}
