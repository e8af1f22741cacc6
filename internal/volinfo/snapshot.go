// Package volinfo resolves thin logical volumes to the information the
// send and receive drivers need: which volume group and pool own them,
// the pool's device-mapper path, and whether a snapshot is currently
// active.
package volinfo

import (
	"bufio"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// SnapshotInfo describes one thin logical volume as reported by the
// volume manager. It is an immutable value built once by Lookup.
type SnapshotInfo struct {
	VGName       string
	LVName       string
	ThinPoolName string
	DMPath       string
	ThinID       int
	Active       bool
}

// Lookup resolves lvPath (a "vg/lv" or device-mapper path identifying a
// thin logical volume) to its SnapshotInfo by querying the volume
// manager for vg_name, lv_name, pool_lv, lv_dm_path, thin_id and attr.
func Lookup(lvPath string) (SnapshotInfo, error) {
	out, err := runLVS(lvPath)
	if err != nil {
		return SnapshotInfo{}, err
	}
	return parseLVSLine(out)
}

// runLVS is a package variable so tests can substitute canned output
// without invoking the real lvs binary.
var runLVS = func(lvPath string) (string, error) {
	cmd := exec.Command("lvs", "--noheadings", "-o",
		"vg_name,lv_name,pool_lv,lv_dm_path,thin_id,attr", lvPath)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("volinfo: lvs %s: %w", lvPath, err)
	}
	return string(out), nil
}

func parseLVSLine(out string) (SnapshotInfo, error) {
	scanner := bufio.NewScanner(strings.NewReader(out))
	if !scanner.Scan() {
		return SnapshotInfo{}, fmt.Errorf("volinfo: no lvs output")
	}
	fields := strings.Fields(scanner.Text())
	if len(fields) != 6 {
		return SnapshotInfo{}, fmt.Errorf("volinfo: expected 6 lvs fields, got %d: %q", len(fields), scanner.Text())
	}

	thinID, err := strconv.Atoi(fields[4])
	if err != nil {
		return SnapshotInfo{}, fmt.Errorf("volinfo: invalid thin_id %q: %w", fields[4], err)
	}

	attr := fields[5]
	if len(attr) < 5 {
		return SnapshotInfo{}, fmt.Errorf("volinfo: attr field too short: %q", attr)
	}

	return SnapshotInfo{
		VGName:       fields[0],
		LVName:       fields[1],
		ThinPoolName: fields[2],
		DMPath:       fields[3],
		ThinID:       thinID,
		Active:       attr[4] == 'a',
	}, nil
}

// PoolTpoolTarget returns the device-mapper target name for the pool's
// thin-pool table entry ("<vg>-<pool>-tpool"), with the hyphen-escaping
// device-mapper itself applies to component names containing '-'.
func (s SnapshotInfo) PoolTpoolTarget() string {
	escape := func(s string) string { return strings.ReplaceAll(s, "-", "--") }
	return fmt.Sprintf("%s-%s-tpool", escape(s.VGName), escape(s.ThinPoolName))
}
