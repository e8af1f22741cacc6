// Package critsection guards the window during which a thin pool's
// metadata snapshot is reserved, guaranteeing the reservation is released
// on every exit path: normal completion, an error return, or a fatal
// signal.
package critsection

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"

	"github.com/lvmthin/thin-send-recv/internal/constants"
	"github.com/lvmthin/thin-send-recv/internal/logging"
	"golang.org/x/sys/unix"
)

// catchSignals is the fixed set of signals that must trigger release of
// the metadata-snap reservation before the process dies.
var catchSignals = []os.Signal{
	syscall.SIGABRT, syscall.SIGALRM, syscall.SIGBUS, syscall.SIGFPE,
	syscall.SIGHUP, syscall.SIGINT, syscall.SIGPIPE, syscall.SIGPWR,
	syscall.SIGQUIT, syscall.SIGSEGV, syscall.SIGTERM, syscall.SIGUSR1,
	syscall.SIGUSR2, syscall.SIGXCPU, syscall.SIGXFSZ,
}

// Session represents a held metadata-snap reservation plus the exclusive
// lock that serializes concurrent invocations against the same pool.
type Session struct {
	lockFile   *os.File
	poolTpool  string
	logger     *logging.Logger
	sigCh      chan os.Signal
	cancelSigs context.CancelFunc
	released   sync.Once
	releaseErr error
}

// Acquire takes the process-wide lock file, installs the signal handler
// that releases the reservation on a fatal signal, and reserves the
// metadata snapshot of the pool at poolTpoolPath (a device-mapper target
// name, e.g. "vg-pool-tpool"). The caller must call Release exactly
// once, typically via defer, on every path including error returns.
func Acquire(ctx context.Context, poolTpoolPath string, logger *logging.Logger) (*Session, error) {
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.With("pool", poolTpoolPath)

	lf, err := os.OpenFile(constants.LockFilePath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("critsection: open lock file: %w", err)
	}
	if err := unix.Flock(int(lf.Fd()), unix.LOCK_EX); err != nil {
		lf.Close()
		return nil, fmt.Errorf("critsection: lock %s: %w", constants.LockFilePath, err)
	}

	// Catch the fatal signals before reserving, so none can end the process
	// between the reservation and the watcher taking over.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, catchSignals...)

	if err := runDMMessage(poolTpoolPath, "reserve_metadata_snap"); err != nil {
		signal.Stop(sigCh)
		unix.Flock(int(lf.Fd()), unix.LOCK_UN)
		lf.Close()
		return nil, fmt.Errorf("critsection: reserve metadata snap: %w", err)
	}

	sigCtx, cancel := context.WithCancel(ctx)
	s := &Session{
		lockFile:   lf,
		poolTpool:  poolTpoolPath,
		logger:     logger,
		sigCh:      sigCh,
		cancelSigs: cancel,
	}

	go s.watchSignals(sigCtx)

	return s, nil
}

// watchSignals' sole duty is to release the reservation and terminate the
// process when a fatal signal arrives, or to stop quietly once the normal
// exit path has cancelled ctx (Release already ran, or will run, there).
func (s *Session) watchSignals(ctx context.Context) {
	select {
	case sig := <-s.sigCh:
		s.logger.Warn("received signal during critical section, releasing metadata snap", "signal", sig)
		s.release()
		os.Exit(10)
	case <-ctx.Done():
		signal.Stop(s.sigCh)
	}
}

// release runs the unconditional unwind exactly once: release the
// metadata snap, then unlock and close the lock file. Safe to call from
// both the signal-handling goroutine and Release.
func (s *Session) release() error {
	s.released.Do(func() {
		s.releaseErr = runDMMessage(s.poolTpool, "release_metadata_snap")
		unix.Flock(int(s.lockFile.Fd()), unix.LOCK_UN)
		s.lockFile.Close()
	})
	return s.releaseErr
}

// Release performs the critical section's unconditional unwind: release
// the metadata snap, stop the signal watcher, restore default signal
// handling, and release the lock file. Idempotent.
func (s *Session) Release() error {
	s.cancelSigs()
	return s.release()
}

// dmMessage runs "dmsetup message <poolTpoolPath> 0 <message>". It is a
// package variable so tests can substitute a fake without requiring a real
// thin pool.
var dmMessage = func(poolTpoolPath, message string) error {
	cmd := exec.Command("dmsetup", "message", poolTpoolPath, "0", message)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("dmsetup message %s 0 %s: %w: %s", poolTpoolPath, message, err, out)
	}
	return nil
}

func runDMMessage(poolTpoolPath, message string) error {
	return dmMessage(poolTpoolPath, message)
}
