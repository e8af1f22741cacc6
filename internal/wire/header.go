package wire

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize11 is the encoded size of a version 1.1 chunk header.
const HeaderSize11 = 28

// HeaderSize10 is the encoded size of a legacy version 1.0 chunk header.
const HeaderSize10 = 24

// Cmd identifies what a chunk carries. The high bit (CmdOptionalInfo)
// is set independently of the base command to mark a chunk a receiver may
// skip if it doesn't understand it.
type Cmd uint32

const (
	CmdData         Cmd = 0
	CmdUnmap        Cmd = 1
	CmdBeginStream  Cmd = 2
	CmdEndStream    Cmd = 3
	CmdOptionalInfo Cmd = 1 << 31
)

// Base returns the command with the optional-info flag cleared.
func (c Cmd) Base() Cmd { return c &^ CmdOptionalInfo }

// IsOptional reports whether the optional-info flag is set.
func (c Cmd) IsOptional() bool { return c&CmdOptionalInfo != 0 }

func (c Cmd) String() string {
	switch c.Base() {
	case CmdData:
		return "DATA"
	case CmdUnmap:
		return "UNMAP"
	case CmdBeginStream:
		return "BEGIN_STREAM"
	case CmdEndStream:
		return "END_STREAM"
	default:
		return fmt.Sprintf("CMD(%d)", uint32(c.Base()))
	}
}

// Header is the chunk header sent ahead of every unit of stream data,
// decoded from either the 28-byte v1.1 layout or the legacy 24-byte v1.0
// layout depending on the magic negotiated at the start of the stream.
type Header struct {
	Offset uint64 // byte offset within the target volume
	Length uint64 // byte length of the data or discard range that follows
	Cmd    Cmd
}

// Marshal encodes h for the given wire version. Version10 rejects a Length
// that doesn't fit in 32 bits, matching the legacy format's field width.
func (h Header) Marshal(v Version) ([]byte, error) {
	switch v {
	case Version11:
		buf := make([]byte, HeaderSize11)
		binary.BigEndian.PutUint64(buf[0:8], MagicForVersion(v))
		binary.BigEndian.PutUint64(buf[8:16], h.Offset)
		binary.BigEndian.PutUint64(buf[16:24], h.Length)
		binary.BigEndian.PutUint32(buf[24:28], uint32(h.Cmd))
		return buf, nil
	case Version10:
		if h.Length > 0xffffffff {
			return nil, fmt.Errorf("wire: chunk length %d exceeds v1.0 32-bit field", h.Length)
		}
		buf := make([]byte, HeaderSize10)
		binary.BigEndian.PutUint64(buf[0:8], MagicForVersion(v))
		binary.BigEndian.PutUint64(buf[8:16], h.Offset)
		binary.BigEndian.PutUint32(buf[16:20], uint32(h.Length))
		binary.BigEndian.PutUint32(buf[20:24], uint32(h.Cmd))
		return buf, nil
	default:
		return nil, fmt.Errorf("wire: unknown version %d", v)
	}
}

// UnmarshalBody decodes the header fields following the magic, which the
// caller has already read and negotiated into v via VersionForMagic.
func UnmarshalBody(body []byte, v Version) (Header, error) {
	switch v {
	case Version11:
		if len(body) != HeaderSize11-8 {
			return Header{}, fmt.Errorf("wire: short v1.1 header body: %d bytes", len(body))
		}
		return Header{
			Offset: binary.BigEndian.Uint64(body[0:8]),
			Length: binary.BigEndian.Uint64(body[8:16]),
			Cmd:    Cmd(binary.BigEndian.Uint32(body[16:20])),
		}, nil
	case Version10:
		if len(body) != HeaderSize10-8 {
			return Header{}, fmt.Errorf("wire: short v1.0 header body: %d bytes", len(body))
		}
		return Header{
			Offset: binary.BigEndian.Uint64(body[0:8]),
			Length: uint64(binary.BigEndian.Uint32(body[8:12])),
			Cmd:    Cmd(binary.BigEndian.Uint32(body[12:16])),
		}, nil
	default:
		return Header{}, fmt.Errorf("wire: unknown version %d", v)
	}
}

// BodySize returns the number of header bytes that follow the 8-byte magic
// for the given version.
func BodySize(v Version) int {
	switch v {
	case Version11:
		return HeaderSize11 - 8
	case Version10:
		return HeaderSize10 - 8
	default:
		return 0
	}
}
