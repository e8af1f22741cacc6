package critsection

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/lvmthin/thin-send-recv/internal/constants"
	"github.com/stretchr/testify/require"
)

func TestAcquireReleaseRunsReserveThenRelease(t *testing.T) {
	var calls []string
	orig := dmMessage
	defer func() { dmMessage = orig }()
	dmMessage = func(poolTpoolPath, message string) error {
		calls = append(calls, message)
		require.Equal(t, "vg-pool-tpool", poolTpoolPath)
		return nil
	}

	// Acquire opens the real lock file path; skip if unwritable (e.g. a
	// sandboxed test runner without /var/run access).
	if _, err := os.Stat(filepath.Dir(constants.LockFilePath)); err != nil {
		t.Skipf("lock directory unavailable: %v", err)
	}

	s, err := Acquire(context.Background(), "vg-pool-tpool", nil)
	if err != nil {
		t.Skipf("cannot acquire lock in this environment: %v", err)
	}
	require.NoError(t, s.Release())
	require.Equal(t, []string{"reserve_metadata_snap", "release_metadata_snap"}, calls)
}

func TestReleaseIsIdempotent(t *testing.T) {
	orig := dmMessage
	defer func() { dmMessage = orig }()
	calls := 0
	dmMessage = func(string, string) error {
		calls++
		return nil
	}

	if _, err := os.Stat(filepath.Dir(constants.LockFilePath)); err != nil {
		t.Skipf("lock directory unavailable: %v", err)
	}

	s, err := Acquire(context.Background(), "vg-pool-tpool", nil)
	if err != nil {
		t.Skipf("cannot acquire lock in this environment: %v", err)
	}
	require.NoError(t, s.Release())
	require.NoError(t, s.Release())
	require.Equal(t, 2, calls) // reserve + release, second Release is a no-op
}
