package xfer

import (
	"fmt"

	"github.com/lvmthin/thin-send-recv/internal/constants"
	"golang.org/x/sys/unix"
)

// Copier moves payload bytes between file descriptors using splice,
// falling back to a staging pipe when neither endpoint is already a pipe.
// The one-shot "is this descriptor a FIFO" checks and the staging pipe
// itself are ordinary fields here, set up once per Copier, rather than the
// function-local static state the original keeps.
type Copier struct {
	checkedIn, inIsFIFO   bool
	checkedOut, outIsFIFO bool

	stagingPipe [2]int
	haveStaging bool
}

// NewCopier returns a ready-to-use Copier.
func NewCopier() *Copier {
	return &Copier{}
}

func isFIFO(fd int) (bool, error) {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return false, fmt.Errorf("xfer: fstat: %w", err)
	}
	return st.Mode&unix.S_IFMT == unix.S_IFIFO, nil
}

func (c *Copier) inFIFO(fd int) (bool, error) {
	if !c.checkedIn {
		v, err := isFIFO(fd)
		if err != nil {
			return false, err
		}
		c.inIsFIFO, c.checkedIn = v, true
	}
	return c.inIsFIFO, nil
}

func (c *Copier) outFIFO(fd int) (bool, error) {
	if !c.checkedOut {
		v, err := isFIFO(fd)
		if err != nil {
			return false, err
		}
		c.outIsFIFO, c.checkedOut = v, true
	}
	return c.outIsFIFO, nil
}

func (c *Copier) ensureStagingPipe() error {
	if c.haveStaging {
		return nil
	}
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
		return fmt.Errorf("xfer: create staging pipe: %w", err)
	}
	c.stagingPipe = fds
	c.haveStaging = true
	return nil
}

// CopyData transfers length bytes from inFD to outFD, advancing *inOff and
// *outOff by the amount transferred. If either endpoint is already a pipe,
// it is spliced directly between inFD and outFD; otherwise a staging pipe
// is used, since splice requires at least one endpoint of each call to be
// a pipe.
func (c *Copier) CopyData(inFD int, inOff *int64, outFD int, outOff *int64, length uint64) error {
	if length == 0 {
		return nil
	}

	inIsFIFO, err := c.inFIFO(inFD)
	if err != nil {
		return err
	}
	outIsFIFO, err := c.outFIFO(outFD)
	if err != nil {
		return err
	}
	if inIsFIFO || outIsFIFO {
		if err := c.spliceAll(inFD, inOff, outFD, outOff, length); err != nil {
			return err
		}
	} else {
		if err := c.spliceViaStaging(inFD, inOff, outFD, outOff, length); err != nil {
			return err
		}
	}
	return nil
}

// spliceAll splices exactly length bytes straight from inFD to outFD, at
// least one of which is a pipe, retrying on EINTR and on short splices.
func (c *Copier) spliceAll(inFD int, inOff *int64, outFD int, outOff *int64, length uint64) error {
	remaining := length
	for remaining > 0 {
		n, err := unix.Splice(inFD, inOff, outFD, outOff, int(remaining), unix.SPLICE_F_MOVE)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("xfer: splice: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("xfer: splice: unexpected EOF with %d bytes remaining", remaining)
		}
		remaining -= uint64(n)
	}
	return nil
}

// spliceViaStaging moves length bytes from a non-pipe inFD to outFD via
// the Copier's staging pipe, one IOBufferBytes-sized hop at a time:
// inFD -> pipe, then pipe -> outFD, then fadvise(DONTNEED) on outFD.
func (c *Copier) spliceViaStaging(inFD int, inOff *int64, outFD int, outOff *int64, length uint64) error {
	if err := c.ensureStagingPipe(); err != nil {
		return err
	}
	remaining := length
	for remaining > 0 {
		hop := remaining
		if hop > constants.IOBufferBytes {
			hop = constants.IOBufferBytes
		}

		toPipe := hop
		for toPipe > 0 {
			n, err := unix.Splice(inFD, inOff, c.stagingPipe[1], nil, int(toPipe), unix.SPLICE_F_MOVE)
			if err == unix.EINTR {
				continue
			}
			if err != nil {
				return fmt.Errorf("xfer: splice in->pipe: %w", err)
			}
			if n == 0 {
				return fmt.Errorf("xfer: splice in->pipe: unexpected EOF with %d bytes remaining", toPipe)
			}
			toPipe -= uint64(n)
		}

		fromPipe := hop
		for fromPipe > 0 {
			n, err := unix.Splice(c.stagingPipe[0], nil, outFD, outOff, int(fromPipe), unix.SPLICE_F_MOVE)
			if err == unix.EINTR {
				continue
			}
			if err != nil {
				return fmt.Errorf("xfer: splice pipe->out: %w", err)
			}
			if n == 0 {
				return fmt.Errorf("xfer: splice pipe->out: unexpected EOF with %d bytes remaining", fromPipe)
			}
			fromPipe -= uint64(n)
		}

		// Drop the pages just written from the page cache. A descriptor
		// that cannot take the advice (a socket) is not an error.
		if err := unix.Fadvise(outFD, 0, 0, unix.FADV_DONTNEED); err != nil && err != unix.ENOSYS && err != unix.ESPIPE {
			return fmt.Errorf("xfer: fadvise DONTNEED: %w", err)
		}

		remaining -= hop
	}
	return nil
}

// Close releases the staging pipe, if one was created.
func (c *Copier) Close() error {
	if !c.haveStaging {
		return nil
	}
	err0 := unix.Close(c.stagingPipe[0])
	err1 := unix.Close(c.stagingPipe[1])
	c.haveStaging = false
	if err0 != nil {
		return err0
	}
	return err1
}
