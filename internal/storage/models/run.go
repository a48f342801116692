package models

import "time"

// Run outcome values recorded in proxy run history
const (
	RunOutcomeStopped  = "stopped"  // graceful shutdown
	RunOutcomeCrashed  = "crashed"  // unexpected process exit
	RunOutcomeTimedOut = "timeout"  // never signalled readiness
)

// ProxyRun represents one launch of the external proxy process
type ProxyRun struct {
	ID       int64  `json:"id"`
	PID      int    `json:"pid"`
	Version  string `json:"version"` // target protocol version
	BindPort int    `json:"bind_port"`

	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Outcome   string     `json:"outcome,omitempty"`
	Restarts  int        `json:"restarts"`
}
