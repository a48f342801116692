package proxy

import (
	"fmt"
	"log"
	"net"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// probeFailThreshold is how many consecutive failed dials count as a
// crash. A single miss is usually just the jvm pausing.
const probeFailThreshold = 3

// startProbe schedules a periodic liveness dial against the proxy's
// listen port. Readiness was observed from stdout once; the probe catches
// the process wedging without exiting.
func (s *Supervisor) startProbe(port int) {
	if s.config.ProbeInterval <= 0 {
		return
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		log.Printf("[Supervisor] failed to create probe scheduler: %v", err)
		return
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(s.config.ProbeInterval),
		gocron.NewTask(func() {
			s.probe(port)
		}),
	)
	if err != nil {
		log.Printf("[Supervisor] failed to schedule liveness probe: %v", err)
		return
	}

	s.mu.Lock()
	s.scheduler = scheduler
	s.probeFails = 0
	s.mu.Unlock()

	scheduler.Start()
}

// stopProbe shuts the probe scheduler down, if one is running.
func (s *Supervisor) stopProbe() {
	s.mu.Lock()
	scheduler := s.scheduler
	s.scheduler = nil
	s.mu.Unlock()

	if scheduler != nil {
		scheduler.Shutdown()
	}
}

func (s *Supervisor) probe(port int) {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), 2*time.Second)
	if err == nil {
		conn.Close()
		s.mu.Lock()
		s.probeFails = 0
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	if s.state != StateReady {
		s.mu.Unlock()
		return
	}
	s.probeFails++
	fails := s.probeFails
	cmd := s.cmd
	s.mu.Unlock()

	if fails < probeFailThreshold {
		return
	}

	log.Printf("[Supervisor] liveness probe failed %d times, killing wedged proxy", fails)
	if cmd != nil && cmd.Process != nil {
		// The exit watcher drives the normal crash/restart path.
		cmd.Process.Kill()
	}
}
