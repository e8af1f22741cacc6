package thinsr

import (
	"io"
	"os"

	"github.com/lvmthin/thin-send-recv/internal/wire"
	"golang.org/x/sys/unix"
)

// SendOptions configures one Send invocation. Exactly one of the two
// forms must be populated: Snap1/Snap2 for a two-snapshot diff, or Volume
// for a full-volume dump.
type SendOptions struct {
	// Snap1, Snap2 name the older and newer snapshot ("vg/lv" form) for
	// the diff form of send.
	Snap1, Snap2 string

	// Volume names the thin logical volume ("vg/lv" form) for the
	// full-volume dump form of send.
	Volume string

	// Out is the channel the stream is written to. Defaults to os.Stdout.
	Out io.Writer

	// AllowTTY permits Out to be a terminal; by default sending to one
	// is refused, matching --allow-tty.
	AllowTTY bool
}

func (o SendOptions) isDiff() bool { return o.Snap1 != "" || o.Snap2 != "" }

func (o SendOptions) validate() error {
	if o.isDiff() {
		if o.Snap1 == "" || o.Snap2 == "" {
			return NewError("send", CategorySetup, "diff send requires both Snap1 and Snap2")
		}
		if o.Volume != "" {
			return NewError("send", CategorySetup, "specify either Snap1/Snap2 or Volume, not both")
		}
	} else if o.Volume == "" {
		return NewError("send", CategorySetup, "send requires Snap1/Snap2 or Volume")
	}
	return nil
}

// DefaultSendOptions returns a SendOptions for the full-volume dump form
// of send, writing to standard output.
func DefaultSendOptions(volume string) SendOptions {
	return SendOptions{Volume: volume, Out: os.Stdout}
}

// ReceiveOptions configures one Receive invocation.
type ReceiveOptions struct {
	// Volume is the target logical volume or block device path to write
	// into.
	Volume string

	// In is the channel the stream is read from. Defaults to os.Stdin.
	In io.Reader

	// Accept restricts which protocol version(s) the receiver will
	// negotiate. Defaults to AcceptAuto.
	Accept wire.AcceptedFormats

	// FatalOnUnsupportedDiscard makes an EOPNOTSUPP from the discard
	// ioctl a fatal error instead of a tolerated warning.
	FatalOnUnsupportedDiscard bool

	// AllowTTY permits In to be a terminal.
	AllowTTY bool
}

// DefaultReceiveOptions returns a ReceiveOptions reading from standard
// input, accepting either protocol version and tolerating a target that
// doesn't support discard.
func DefaultReceiveOptions(volume string) ReceiveOptions {
	return ReceiveOptions{Volume: volume, In: os.Stdin, Accept: wire.AcceptAuto}
}

// checkChannelAllowed refuses a channel that is a terminal unless
// allowTTY is set, matching --allow-tty. v is the channel;
// channels with no real descriptor (in-memory test fakes, pipes without
// an Fd method) are never terminals and always pass.
func checkChannelAllowed(v any, allowTTY bool) error {
	if allowTTY {
		return nil
	}
	f, ok := v.(fder)
	if !ok {
		return nil
	}
	if isTerminal(f.Fd()) {
		return NewError("channel", CategorySetup, "refusing to use a terminal as the stream channel (see --allow-tty)")
	}
	return nil
}

// isTerminal reports whether fd refers to a terminal, via the same
// TCGETS ioctl isatty(3) itself uses.
func isTerminal(fd uintptr) bool {
	_, err := unix.IoctlGetTermios(int(fd), unix.TCGETS)
	return err == nil
}
