package proxy

import "time"

// Config represents configuration for the supervised proxy process
type Config struct {
	// Version is the target protocol version the proxy translates to,
	// e.g. "1.21.4".
	Version string

	// BindPort is the local port the proxy listens on. 0 picks a free
	// port at start.
	BindPort int

	// AuthAddr is the auth bridge's callback address, handed to the
	// child so it can pull session material per connection instead of
	// being given long-lived credentials.
	AuthAddr string

	// JavaPath is the java executable used to launch the proxy jar.
	JavaPath string

	// JarPath is the verified proxy artifact.
	JarPath string

	// WorkDir is the child's working directory; the proxy writes its own
	// state files there.
	WorkDir string

	ReadyTimeout   time.Duration // how long to wait for the readiness signal
	StopGrace      time.Duration // interrupt-to-kill grace period
	MaxRestarts    int           // automatic restarts after a crash
	RestartBackoff time.Duration // initial backoff, doubled per attempt
	ProbeInterval  time.Duration // liveness probe period, 0 disables
}

// withDefaults fills in zero-valued tuning knobs.
func (c Config) withDefaults() Config {
	if c.JavaPath == "" {
		c.JavaPath = "java"
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = 60 * time.Second
	}
	if c.StopGrace <= 0 {
		c.StopGrace = 5 * time.Second
	}
	if c.MaxRestarts == 0 {
		c.MaxRestarts = 3
	}
	if c.RestartBackoff <= 0 {
		c.RestartBackoff = time.Second
	}
	return c
}
