package proxy

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/azalea-rs/azalea-viaversion/internal/storage"
	"github.com/azalea-rs/azalea-viaversion/internal/storage/models"
	pkgerrors "github.com/azalea-rs/azalea-viaversion/pkg/errors"
)

// readyMarker is the line ViaProxy prints once it is accepting
// connections.
const readyMarker = "Binding proxy server to"

// Status represents supervisor runtime status
type Status struct {
	State     State
	PID       int
	BindPort  int
	Restarts  int
	StartedAt time.Time
}

// Supervisor owns the external proxy's process lifecycle: start, readiness
// detection, crash-triggered restarts, and shutdown. Exactly one process
// is active per supervisor; concurrent callers observe a single consistent
// state through the lifecycle lock and the readiness gate.
type Supervisor struct {
	config Config
	store  storage.Storage // optional run history, may be nil

	// lifecycle serializes start, stop, and crash-triggered restarts.
	lifecycle sync.Mutex

	// mu guards everything below. gate is closed and replaced on every
	// state transition so AwaitReady waiters wake without polling.
	mu             sync.Mutex
	state          State
	gate           chan struct{}
	cmd            *exec.Cmd
	exited         chan struct{}
	exitErr        error
	bindPort       int
	restarts       int
	restartPending bool
	gen            int // activation generation, bumped by Start/Stop
	runID          int64
	startedAt      time.Time
	scheduler      gocron.Scheduler
	probeFails     int
}

// NewSupervisor creates a supervisor for the given proxy configuration.
func NewSupervisor(config Config, store storage.Storage) *Supervisor {
	return &Supervisor{
		config: config.withDefaults(),
		state:  StateNotStarted,
		gate:   make(chan struct{}),
		store:  store,
	}
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// BindPort returns the local port the proxy listens on. Zero until the
// first start picked one.
func (s *Supervisor) BindPort() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bindPort
}

// Addr returns the proxy's local listen address.
func (s *Supervisor) Addr() string {
	return fmt.Sprintf("127.0.0.1:%d", s.BindPort())
}

// Status returns a snapshot of the supervisor's runtime status.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{
		State:     s.state,
		BindPort:  s.bindPort,
		Restarts:  s.restarts,
		StartedAt: s.startedAt,
	}
	if s.cmd != nil && s.cmd.Process != nil {
		status.PID = s.cmd.Process.Pid
	}
	return status
}

// Start spawns the proxy process and blocks until it signals readiness or
// fails. Start is idempotent: a concurrent or repeated call while the
// instance is starting or ready never spawns a second process.
func (s *Supervisor) Start(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	switch s.state {
	case StateStarting, StateReady:
		s.mu.Unlock()
		return nil
	case StateStopping:
		s.mu.Unlock()
		return pkgerrors.ErrShuttingDown
	case StateFailed:
		s.mu.Unlock()
		return pkgerrors.ErrProxyUnavailable
	}
	s.gen++
	s.restarts = 0
	s.restartPending = false
	s.mu.Unlock()

	return s.startLocked(ctx)
}

// startLocked spawns one proxy process and waits for readiness. Caller
// holds the lifecycle lock.
func (s *Supervisor) startLocked(ctx context.Context) error {
	s.mu.Lock()
	if s.bindPort == 0 {
		port := s.config.BindPort
		if port == 0 {
			var err error
			port, err = pickFreePort()
			if err != nil {
				s.mu.Unlock()
				return err
			}
		}
		s.bindPort = port
	}
	bindPort := s.bindPort
	s.setStateLocked(StateStarting)
	s.mu.Unlock()

	args := []string{
		"-jar", s.config.JarPath,
		"--bind_port", strconv.Itoa(bindPort),
		"--internal_srv_mode",
		// Ignored in srv mode; the real target rides in the handshake
		// address instead.
		"--target_ip", "127.0.0.1",
		"--target_port", "0",
		"--version", s.config.Version,
		"--openauthmod_auth",
	}

	cmd := exec.Command(s.config.JavaPath, args...)
	cmd.Dir = s.config.WorkDir
	cmd.Env = append(os.Environ(), "VIAPROXY_AUTH_CALLBACK="+s.config.AuthAddr)

	// Own process group so a kill reaches any workers the jvm forks.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var logFile *os.File
	if s.config.WorkDir != "" {
		f, err := os.OpenFile(filepath.Join(s.config.WorkDir, "viaproxy.log"),
			os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			logFile = f
		}
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		if logFile != nil {
			logFile.Close()
		}
		s.failStartup(cmd)
		return fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	if logFile != nil {
		cmd.Stderr = logFile
	}

	if err := cmd.Start(); err != nil {
		if logFile != nil {
			logFile.Close()
		}
		s.failStartup(cmd)
		return &pkgerrors.ProxyError{
			Version: s.config.Version,
			Err:     fmt.Errorf("failed to start proxy: %w", err),
		}
	}

	readyCh := make(chan struct{}, 1)
	go s.scanOutput(stdout, logFile, readyCh)

	exited := make(chan struct{})
	go func() {
		err := cmd.Wait()
		s.mu.Lock()
		s.exitErr = err
		s.mu.Unlock()
		close(exited)
		s.handleExit(cmd)
	}()

	s.mu.Lock()
	s.cmd = cmd
	s.exited = exited
	s.mu.Unlock()

	log.Printf("[Supervisor] launched proxy pid %d on 127.0.0.1:%d (version %s)",
		cmd.Process.Pid, bindPort, s.config.Version)

	readyTimer := time.NewTimer(s.config.ReadyTimeout)
	defer readyTimer.Stop()

	select {
	case <-readyCh:
	case <-exited:
		s.mu.Lock()
		exitErr := s.exitErr
		s.mu.Unlock()
		s.failStartup(cmd)
		return &pkgerrors.ProxyError{
			Version: s.config.Version,
			PID:     cmd.Process.Pid,
			Err:     fmt.Errorf("proxy exited before readiness: %v", exitErr),
		}
	case <-readyTimer.C:
		cmd.Process.Kill()
		<-exited
		s.failStartup(cmd)
		s.recordTimedOutRun(cmd.Process.Pid, bindPort)
		return &pkgerrors.ProxyError{
			Version: s.config.Version,
			PID:     cmd.Process.Pid,
			Err:     pkgerrors.ErrStartupTimeout,
		}
	case <-ctx.Done():
		cmd.Process.Kill()
		<-exited
		s.failStartup(cmd)
		return ctx.Err()
	}

	run := &models.ProxyRun{
		PID:       cmd.Process.Pid,
		Version:   s.config.Version,
		BindPort:  bindPort,
		StartedAt: time.Now(),
	}

	s.mu.Lock()
	run.Restarts = s.restarts
	s.startedAt = run.StartedAt
	s.setStateLocked(StateReady)
	s.mu.Unlock()

	s.recordRunStart(run)
	s.mu.Lock()
	s.runID = run.ID
	s.mu.Unlock()

	s.startProbe(bindPort)

	log.Printf("[Supervisor] proxy is ready on 127.0.0.1:%d", bindPort)
	return nil
}

// failStartup marks a failed spawn/readiness attempt. The state lands on
// CRASHED; whether that is terminal for waiters depends on restartPending.
func (s *Supervisor) failStartup(cmd *exec.Cmd) {
	s.mu.Lock()
	if s.cmd == cmd {
		s.cmd = nil
	}
	s.setStateLocked(StateCrashed)
	s.mu.Unlock()
}

// handleExit runs after every process exit. It owns the crash path: a
// process that dies while READY transitions to CRASHED and, budget
// permitting, is restarted with exponential backoff.
func (s *Supervisor) handleExit(cmd *exec.Cmd) {
	s.mu.Lock()
	if s.cmd != cmd || s.state != StateReady {
		// Startup or Stop owns this exit.
		s.mu.Unlock()
		return
	}
	s.cmd = nil
	s.setStateLocked(StateCrashed)
	s.restartPending = s.restarts < s.config.MaxRestarts
	exitErr := s.exitErr
	runID := s.runID
	gen := s.gen
	pending := s.restartPending
	s.mu.Unlock()

	s.stopProbe()
	s.recordRunEnd(runID, models.RunOutcomeCrashed)
	log.Printf("[Supervisor] proxy exited unexpectedly: %v", exitErr)

	if pending {
		go s.restartAfterCrash(gen)
		return
	}

	s.mu.Lock()
	s.setStateLocked(StateFailed)
	s.mu.Unlock()
	log.Printf("[Supervisor] restart budget exhausted, proxy unavailable")
}

// restartAfterCrash retries startLocked with exponential backoff until the
// proxy is ready again, the budget runs out, or the activation is torn
// down.
func (s *Supervisor) restartAfterCrash(gen int) {
	for {
		s.mu.Lock()
		if s.gen != gen || s.state != StateCrashed || !s.restartPending {
			s.mu.Unlock()
			return
		}
		attempt := s.restarts
		s.restarts++
		s.mu.Unlock()

		delay := s.config.RestartBackoff << uint(attempt)
		log.Printf("[Supervisor] restarting proxy in %s (attempt %d/%d)",
			delay, attempt+1, s.config.MaxRestarts)
		time.Sleep(delay)

		s.lifecycle.Lock()
		s.mu.Lock()
		stale := s.gen != gen || s.state != StateCrashed
		s.mu.Unlock()
		if stale {
			s.lifecycle.Unlock()
			return
		}
		err := s.startLocked(context.Background())
		s.lifecycle.Unlock()
		if err == nil {
			return
		}
		log.Printf("[Supervisor] restart attempt failed: %v", err)

		s.mu.Lock()
		if s.restarts >= s.config.MaxRestarts {
			s.restartPending = false
			s.setStateLocked(StateFailed)
			s.mu.Unlock()
			log.Printf("[Supervisor] restart budget exhausted, proxy unavailable")
			return
		}
		s.mu.Unlock()
	}
}

// AwaitReady blocks until the proxy reaches READY or the attempt resolves
// terminally. All concurrent waiters observe the same resolution: nobody
// is handed a target before readiness, and nobody waits past a failure.
func (s *Supervisor) AwaitReady(ctx context.Context) error {
	for {
		s.mu.Lock()
		state := s.state
		pending := s.restartPending
		gate := s.gate
		s.mu.Unlock()

		switch state {
		case StateReady:
			return nil
		case StateFailed:
			return pkgerrors.ErrProxyUnavailable
		case StateStopping, StateStopped:
			return pkgerrors.ErrShuttingDown
		case StateNotStarted:
			return pkgerrors.ErrProxyNotReady
		case StateCrashed:
			if !pending {
				return pkgerrors.ErrProxyNotReady
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-gate:
		}
	}
}

// Stop requests graceful termination: interrupt first, kill after the
// grace period. Pending AwaitReady callers resolve with ErrShuttingDown.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	if s.state == StateNotStarted || s.state == StateStopped {
		s.mu.Unlock()
		return nil
	}
	s.gen++
	s.restartPending = false
	cmd := s.cmd
	exited := s.exited
	runID := s.runID
	s.cmd = nil
	if cmd == nil {
		// Crashed or failed with no live process left.
		s.setStateLocked(StateStopped)
		s.mu.Unlock()
		return nil
	}
	s.setStateLocked(StateStopping)
	s.mu.Unlock()

	s.stopProbe()

	proc := cmd.Process
	if err := proc.Signal(os.Interrupt); err != nil {
		proc.Kill()
	}

	graceTimer := time.NewTimer(s.config.StopGrace)
	defer graceTimer.Stop()

	select {
	case <-exited:
	case <-graceTimer.C:
		log.Printf("[Supervisor] proxy did not exit within %s, killing", s.config.StopGrace)
		proc.Kill()
		<-exited
	case <-ctx.Done():
		proc.Kill()
		<-exited
	}

	s.recordRunEnd(runID, models.RunOutcomeStopped)

	s.mu.Lock()
	s.setStateLocked(StateStopped)
	s.mu.Unlock()

	log.Printf("[Supervisor] proxy stopped")
	return nil
}

// setStateLocked transitions state and wakes every gate waiter. Caller
// holds mu.
func (s *Supervisor) setStateLocked(state State) {
	s.state = state
	close(s.gate)
	s.gate = make(chan struct{})
}

// scanOutput reads the child's stdout line by line, mirrors it into the
// log file, and signals readiness when the marker appears. It keeps
// draining after readiness so the child never blocks on a full pipe.
func (s *Supervisor) scanOutput(r io.Reader, logFile *os.File, readyCh chan<- struct{}) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	signalled := false
	for scanner.Scan() {
		line := scanner.Text()
		if logFile != nil {
			fmt.Fprintln(logFile, line)
		}
		if !signalled && strings.Contains(line, readyMarker) {
			signalled = true
			select {
			case readyCh <- struct{}{}:
			default:
			}
		}
	}
	if logFile != nil {
		logFile.Close()
	}
}

// ─── Run history ────────────────────────────────────────────────────────────

func (s *Supervisor) recordRunStart(run *models.ProxyRun) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.RecordRunStart(ctx, run); err != nil {
		log.Printf("[Supervisor] failed to record run start: %v", err)
	}
}

func (s *Supervisor) recordRunEnd(runID int64, outcome string) {
	if s.store == nil || runID == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.RecordRunEnd(ctx, runID, time.Now(), outcome); err != nil {
		log.Printf("[Supervisor] failed to record run end: %v", err)
	}
}

func (s *Supervisor) recordTimedOutRun(pid, bindPort int) {
	if s.store == nil {
		return
	}
	run := &models.ProxyRun{
		PID:       pid,
		Version:   s.config.Version,
		BindPort:  bindPort,
		StartedAt: time.Now().Add(-s.config.ReadyTimeout),
	}
	s.recordRunStart(run)
	s.recordRunEnd(run.ID, models.RunOutcomeTimedOut)
}
