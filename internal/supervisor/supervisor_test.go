package supervisor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/singbox-orbit/node-agent/internal/apperr"
	"github.com/singbox-orbit/node-agent/internal/logring"
	validatorpkg "github.com/singbox-orbit/node-agent/internal/validator"
)

// runMode controls what the fake sing-box "run" subcommand does, so each
// test can drive a different shape of child-process lifecycle without a
// real binary.
type runMode string

const (
	runSurvive  runMode = "survive"
	runImmDeath runMode = "immediate"
)

// writeStubBinary writes a POSIX shell script standing in for sing-box:
// "version" prints a parsable version string, "check -c <path>" exits
// checkExit, and "run -c <path>" either loops until SIGTERM (acking SIGHUP
// along the way) or exits immediately, depending on mode.
func writeStubBinary(t *testing.T, dir string, checkExit int, mode runMode) string {
	t.Helper()
	path := filepath.Join(dir, "fake-singbox.sh")
	script := fmt.Sprintf(`#!/bin/sh
case "$1" in
  version)
    echo "sing-box version 1.9.0(test)"
    exit 0
    ;;
  check)
    exit %d
    ;;
  run)
    if [ "%s" = "immediate" ]; then
      exit 7
    fi
    trap 'echo "reload-received"' HUP
    trap 'exit 0' TERM
    i=0
    while [ $i -lt 600 ]; do
      echo "tick $i"
      echo "warn-tick $i" 1>&2
      sleep 0.05
      i=$((i+1))
    done
    ;;
esac
`, checkExit, mode)
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func newTestSupervisor(t *testing.T, checkExit int, mode runMode, restart RestartPolicy) (*Supervisor, string) {
	t.Helper()
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{"log":{}}`), 0o644))

	binPath := writeStubBinary(t, dir, checkExit, mode)
	v := validatorpkg.New(binPath, dir, 2*time.Second, validatorpkg.CacheConfig{}, nil, nil, nil)
	ring, err := logring.New(logring.Config{}, nil)
	require.NoError(t, err)

	opts := Options{
		BinaryPath: binPath,
		ConfigPath: configPath,
		WorkingDir: dir,
		StartGrace: 150 * time.Millisecond,
		StopGrace:  500 * time.Millisecond,
		Restart:    restart,
	}
	return New(opts, v, ring, nil, nil), configPath
}

func TestSupervisor_StartTransitionsToRunning(t *testing.T) {
	s, _ := newTestSupervisor(t, 0, runSurvive, RestartPolicy{})
	ctx := context.Background()

	require.NoError(t, s.Start(ctx))
	assert.Equal(t, Running, s.State())
	assert.True(t, s.IsRunning())

	require.NoError(t, s.Stop(ctx))
	assert.Equal(t, NotRunning, s.State())
}

func TestSupervisor_StartRejectsInvalidConfig(t *testing.T) {
	s, _ := newTestSupervisor(t, 1, runSurvive, RestartPolicy{})
	ctx := context.Background()

	err := s.Start(ctx)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.ConfigValidationError))
	assert.Equal(t, NotRunning, s.State())
}

func TestSupervisor_StartMissingConfigFileIsProcessError(t *testing.T) {
	s, configPath := newTestSupervisor(t, 0, runSurvive, RestartPolicy{})
	require.NoError(t, os.Remove(configPath))

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.ProcessError))
}

func TestSupervisor_StartDetectsImmediateDeath(t *testing.T) {
	s, _ := newTestSupervisor(t, 0, runImmDeath, RestartPolicy{})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.ProcessError))
	assert.Equal(t, NotRunning, s.State())
}

func TestSupervisor_StopIsIdempotent(t *testing.T) {
	s, _ := newTestSupervisor(t, 0, runSurvive, RestartPolicy{})
	ctx := context.Background()

	require.NoError(t, s.Stop(ctx))
	assert.Equal(t, NotRunning, s.State())
	require.NoError(t, s.Stop(ctx))
	assert.Equal(t, NotRunning, s.State())
}

func TestSupervisor_ReloadSignalsRunningChild(t *testing.T) {
	s, _ := newTestSupervisor(t, 0, runSurvive, RestartPolicy{})
	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	defer s.Stop(ctx)

	result, err := s.ReloadWithResult(ctx)
	require.NoError(t, err)
	assert.NotZero(t, result.Pid)
	assert.WithinDuration(t, time.Now(), result.ReloadedAt, time.Second)
}

func TestSupervisor_ReloadFailsWhenNotRunning(t *testing.T) {
	s, _ := newTestSupervisor(t, 0, runSurvive, RestartPolicy{})
	err := s.Reload(context.Background())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.ProcessError))
}

func TestSupervisor_GetStatusReportsVersionAndUptime(t *testing.T) {
	s, _ := newTestSupervisor(t, 0, runSurvive, RestartPolicy{})
	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	defer s.Stop(ctx)

	status := s.GetStatus(ctx)
	assert.True(t, status.Running)
	assert.NotZero(t, status.Pid)
	require.NotNil(t, status.Version)
	assert.Equal(t, "1.9.0(test)", *status.Version)
}

func TestSupervisor_AutoRestartDisabledLeavesNotRunningAfterUnexpectedExit(t *testing.T) {
	s, _ := newTestSupervisor(t, 0, runImmDeath, RestartPolicy{AutoRestart: false})

	// First call fails because the child dies inside the start grace
	// window; with auto-restart off, nothing further happens.
	_ = s.Start(context.Background())
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, NotRunning, s.State())
}

func TestSupervisor_ResetRestartStatsOnlyValidFromExhausted(t *testing.T) {
	s, _ := newTestSupervisor(t, 0, runSurvive, RestartPolicy{})
	err := s.ResetRestartStats()
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.ProcessError))
}

func TestSupervisor_ExhaustsAfterRepeatedUnexpectedExits(t *testing.T) {
	s, _ := newTestSupervisor(t, 0, runImmDeath, RestartPolicy{
		AutoRestart:   true,
		RestartDelay:  5 * time.Millisecond,
		RestartWindow: time.Minute,
		MaxRestarts:   2,
	})

	// The initial Start itself dies inside the grace window and returns an
	// error directly (not through the auto-restart path, since Start's own
	// caller is this test, not the exit handler). Exhaust the policy via
	// handleExit-driven restarts by starting and letting the handler take
	// over from here.
	_ = s.Start(context.Background())

	require.Eventually(t, func() bool {
		return s.State() == Exhausted
	}, 2*time.Second, 10*time.Millisecond)

	err := s.ResetRestartStats()
	require.NoError(t, err)
	assert.Equal(t, NotRunning, s.State())
}
