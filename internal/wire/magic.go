// Package wire implements the binary chunk header that prefixes every unit
// of data or metadata sent over a thin-send-recv stream, including the
// magic-based version negotiation between sender and receiver.
package wire

import "github.com/lvmthin/thin-send-recv/internal/constants"

// Version identifies which chunk header layout a stream uses.
type Version int

const (
	// VersionUnknown is the zero value; never valid on the wire.
	VersionUnknown Version = iota

	// Version11 is the current 28-byte header with a 64-bit length field.
	Version11

	// Version10 is the legacy 24-byte header with a 32-bit length field,
	// understood for compatibility with older senders.
	Version10
)

// MagicForVersion returns the magic value a sender speaking the given
// version writes as the first 8 bytes of the stream.
func MagicForVersion(v Version) uint64 {
	switch v {
	case Version11:
		return constants.MagicV11
	case Version10:
		return constants.MagicV10
	default:
		return 0
	}
}

// VersionForMagic negotiates the header layout from the first 8 bytes read
// off the wire. ok is false for any other magic, the superseded one
// included.
func VersionForMagic(magic uint64) (v Version, ok bool) {
	switch magic {
	case constants.MagicV11:
		return Version11, true
	case constants.MagicV10:
		return Version10, true
	default:
		return VersionUnknown, false
	}
}
