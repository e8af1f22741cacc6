package volinfo

import (
	"fmt"
	"os/exec"
)

// DiffCommand returns the delta generator command that emits the
// diff-grammar textual output between two snapshots sharing a common
// ancestry. The caller (the critical-section manager) is responsible for
// running it and capturing its stdout.
func DiffCommand(snap1DMPath, snap2DMPath string) *exec.Cmd {
	return exec.Command("thin_delta", "--snap1", snap1DMPath, "--snap2", snap2DMPath)
}

// DumpCommand returns the dump generator command that emits the
// dump-grammar textual output for the full volume at volumeDMPath.
func DumpCommand(volumeDMPath string) *exec.Cmd {
	return exec.Command("thin_dump", volumeDMPath)
}

// SetActive toggles activation of the logical volume at lvPath, used to
// bring up the second snapshot of a two-snapshot diff for the duration of
// the send and take it back down afterward.
func SetActive(lvPath string, active bool) error {
	flag := "-an"
	if active {
		flag = "-ay"
	}
	cmd := exec.Command("lvchange", flag, lvPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("volinfo: lvchange %s %s: %w: %s", flag, lvPath, err, out)
	}
	return nil
}
