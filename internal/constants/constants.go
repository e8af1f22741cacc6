// Package constants collects the fixed values the sender, receiver and
// critical-section manager agree on, mirroring the defines at the top of
// the original thin_send_recv C source.
package constants

// Protocol magic values, exchanged as the first 8 bytes of the stream and
// used by the receiver to negotiate which header layout the sender speaks.
const (
	// MagicV11 identifies the current 28-byte header, 64-bit length field.
	MagicV11 uint64 = 0x24C4F02AAE2E4FA9

	// MagicV10 identifies the legacy 24-byte header, 32-bit length field.
	MagicV10 uint64 = 0xCA7F00D5DE7EC7ED

	// MagicSuperseded identifies a superseded stream format. No stream
	// with it is accepted; the receiver treats it as an unrecognized magic.
	MagicSuperseded uint64 = 0xE85BC5636CC72A05
)

// Filesystem and device-mapper paths used to coordinate exclusive access to
// a thin pool's metadata snapshot across concurrent invocations.
const (
	// LockFilePath is flock'd by the sender while it holds a reserved
	// metadata snapshot, so that at most one invocation holds one at a time.
	LockFilePath = "/var/run/thin-send-recv.lock"
)

// DiscardChunkBytes bounds a single BLKDISCARD ioctl issued against a
// receiving volume. Very large discard requests can take the kernel a long
// time to service; UNMAP extents larger than this are split into chunks of
// at most this size.
const DiscardChunkBytes = 1 << 30 // 1 GiB

// IOBufferBytes sizes each hop through the staging pipe (used when neither
// descriptor of a copy is a pipe) and the buffer of the read/write loop
// used when a channel or device has no descriptor to splice.
const IOBufferBytes = 64 * 1024

// Process exit codes, matching the taxonomy the original tool used to let
// calling scripts distinguish a parse failure (bad or truncated metadata
// grammar) from any other setup, stream or transfer failure.
const (
	ExitCodeFailure     = 10
	ExitCodeParseFailed = 20
)
