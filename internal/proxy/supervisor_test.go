package proxy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/azalea-rs/azalea-viaversion/pkg/errors"
)

// writeFakeProxy writes a shell script standing in for the java binary.
// The script ignores the jar arguments and plays out one scenario.
func writeFakeProxy(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-proxy.sh")
	script := "#!/bin/sh\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path
}

const readyLine = `echo "(main) Binding proxy server to /127.0.0.1:0"`

func testConfig(t *testing.T, javaPath string) Config {
	t.Helper()
	return Config{
		Version:        "1.19.2",
		JavaPath:       javaPath,
		JarPath:        "ViaProxy-test.jar",
		WorkDir:        t.TempDir(),
		ReadyTimeout:   5 * time.Second,
		StopGrace:      200 * time.Millisecond,
		MaxRestarts:    3,
		RestartBackoff: 20 * time.Millisecond,
	}
}

func TestStartBecomesReady(t *testing.T) {
	script := writeFakeProxy(t, readyLine+"\nexec sleep 60")
	s := NewSupervisor(testConfig(t, script), nil)

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, StateReady, s.State())
	assert.NotZero(t, s.BindPort())
	assert.Equal(t, fmt.Sprintf("127.0.0.1:%d", s.BindPort()), s.Addr())
	require.NoError(t, s.AwaitReady(context.Background()))

	status := s.Status()
	assert.NotZero(t, status.PID)
	assert.Zero(t, status.Restarts)

	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, StateStopped, s.State())
}

func TestStartIsIdempotent(t *testing.T) {
	spawnFile := filepath.Join(t.TempDir(), "spawns")
	script := writeFakeProxy(t, fmt.Sprintf("echo spawned >> %q\n%s\nexec sleep 60", spawnFile, readyLine))
	s := NewSupervisor(testConfig(t, script), nil)
	defer s.Stop(context.Background())

	const callers = 4
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.Start(context.Background())
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		assert.NoError(t, errs[i])
	}

	data, err := os.ReadFile(spawnFile)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "spawned"))
}

func TestAwaitReadyBlocksDuringStartup(t *testing.T) {
	script := writeFakeProxy(t, "sleep 0.3\n"+readyLine+"\nexec sleep 60")
	s := NewSupervisor(testConfig(t, script), nil)
	defer s.Stop(context.Background())

	go s.Start(context.Background())
	require.Eventually(t, func() bool {
		return s.State() != StateNotStarted
	}, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.AwaitReady(ctx))
	assert.Equal(t, StateReady, s.State())
}

func TestAwaitReadyBeforeStart(t *testing.T) {
	s := NewSupervisor(testConfig(t, "/bin/sh"), nil)
	err := s.AwaitReady(context.Background())
	assert.ErrorIs(t, err, pkgerrors.ErrProxyNotReady)
}

func TestStartupTimeout(t *testing.T) {
	script := writeFakeProxy(t, "exec sleep 60")
	config := testConfig(t, script)
	config.ReadyTimeout = 200 * time.Millisecond
	s := NewSupervisor(config, nil)

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgerrors.ErrStartupTimeout)
	assert.Equal(t, StateCrashed, s.State())
}

func TestStartupFailureResolvesWaiters(t *testing.T) {
	script := writeFakeProxy(t, "exec sleep 60")
	config := testConfig(t, script)
	config.ReadyTimeout = 300 * time.Millisecond
	s := NewSupervisor(config, nil)

	startErr := make(chan error, 1)
	go func() { startErr <- s.Start(context.Background()) }()

	require.Eventually(t, func() bool {
		return s.State() == StateStarting
	}, 2*time.Second, 5*time.Millisecond)

	// Pile waiters onto the readiness gate while the instance is still
	// starting; the startup failure must wake every one of them.
	const waiters = 4
	var wg sync.WaitGroup
	errs := make([]error, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			errs[i] = s.AwaitReady(ctx)
		}(i)
	}
	wg.Wait()

	for i := 0; i < waiters; i++ {
		assert.ErrorIs(t, errs[i], pkgerrors.ErrProxyNotReady)
	}
	assert.ErrorIs(t, <-startErr, pkgerrors.ErrStartupTimeout)
}

func TestExitBeforeReadiness(t *testing.T) {
	script := writeFakeProxy(t, "exit 1")
	s := NewSupervisor(testConfig(t, script), nil)

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exited before readiness")
	assert.Equal(t, StateCrashed, s.State())
}

func TestCrashTriggersRestart(t *testing.T) {
	flag := filepath.Join(t.TempDir(), "crashed-once")
	body := fmt.Sprintf(`if [ ! -f %q ]; then
	touch %q
	%s
	sleep 0.3
	exit 1
fi
%s
exec sleep 60`, flag, flag, readyLine, readyLine)
	script := writeFakeProxy(t, body)
	s := NewSupervisor(testConfig(t, script), nil)
	defer s.Stop(context.Background())

	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool {
		status := s.Status()
		return status.State == StateReady && status.Restarts == 1
	}, 10*time.Second, 20*time.Millisecond)

	require.NoError(t, s.AwaitReady(context.Background()))
}

func TestRestartBudgetExhaustion(t *testing.T) {
	// Always crashes shortly after signalling readiness.
	script := writeFakeProxy(t, readyLine+"\nsleep 0.15\nexit 1")
	config := testConfig(t, script)
	config.MaxRestarts = 2
	config.RestartBackoff = 10 * time.Millisecond
	s := NewSupervisor(config, nil)
	defer s.Stop(context.Background())

	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool {
		return s.State() == StateFailed
	}, 15*time.Second, 20*time.Millisecond)

	assert.ErrorIs(t, s.AwaitReady(context.Background()), pkgerrors.ErrProxyUnavailable)
	assert.ErrorIs(t, s.Start(context.Background()), pkgerrors.ErrProxyUnavailable)
}

func TestStopWithoutStart(t *testing.T) {
	s := NewSupervisor(testConfig(t, "/bin/sh"), nil)
	assert.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, StateNotStarted, s.State())
}

func TestStopResolvesWaiters(t *testing.T) {
	script := writeFakeProxy(t, readyLine+"\nexec sleep 60")
	s := NewSupervisor(testConfig(t, script), nil)
	require.NoError(t, s.Start(context.Background()))

	require.NoError(t, s.Stop(context.Background()))
	assert.ErrorIs(t, s.AwaitReady(context.Background()), pkgerrors.ErrShuttingDown)
}

func TestRestartAfterStop(t *testing.T) {
	script := writeFakeProxy(t, readyLine+"\nexec sleep 60")
	s := NewSupervisor(testConfig(t, script), nil)

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, StateReady, s.State())
	require.NoError(t, s.Stop(context.Background()))
}

func TestProbeKillsUnresponsiveProxy(t *testing.T) {
	// The fake proxy claims readiness but never listens, so the liveness
	// probe tears it down. Every restart is equally wedged, and once the
	// budget runs out the supervisor lands on FAILED.
	script := writeFakeProxy(t, readyLine+"\nexec sleep 60")
	config := testConfig(t, script)
	config.MaxRestarts = 1
	config.ProbeInterval = 50 * time.Millisecond
	s := NewSupervisor(config, nil)
	defer s.Stop(context.Background())

	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool {
		return s.State() == StateFailed
	}, 10*time.Second, 25*time.Millisecond)
}

func TestConfigDefaults(t *testing.T) {
	c := Config{}.withDefaults()
	assert.Equal(t, "java", c.JavaPath)
	assert.Equal(t, 60*time.Second, c.ReadyTimeout)
	assert.Equal(t, 5*time.Second, c.StopGrace)
	assert.Equal(t, 3, c.MaxRestarts)
	assert.Equal(t, time.Second, c.RestartBackoff)
}
