package critsection

import (
	"fmt"
	"os"
	"os/exec"
)

// MaterializeDump runs cmd (a metadata delta or dump generator) to
// completion, capturing its stdout into a private temporary file that is
// unlinked immediately after being opened, marked close-on-exec by virtue
// of being an *os.File. The returned file is seeked to the start and
// ready for the caller to parse once the critical section has been
// released. This is step 4 of the critical-section sequence: the dump
// tool runs while the metadata snap is still reserved, but parsing it
// happens afterward so the reservation is held for the shortest possible
// window.
func MaterializeDump(cmd *exec.Cmd) (*os.File, error) {
	tmp, err := os.CreateTemp("", "thin-send-recv-*.dump")
	if err != nil {
		return nil, fmt.Errorf("critsection: create temp dump file: %w", err)
	}
	if err := os.Remove(tmp.Name()); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("critsection: unlink temp dump file: %w", err)
	}

	cmd.Stdout = tmp
	if err := cmd.Run(); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("critsection: run %s: %w", cmd.Path, err)
	}

	if _, err := tmp.Seek(0, 0); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("critsection: rewind temp dump file: %w", err)
	}
	return tmp, nil
}
