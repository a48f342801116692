package redirect

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/azalea-rs/azalea-viaversion/internal/proxy"
	pkgerrors "github.com/azalea-rs/azalea-viaversion/pkg/errors"
)

// ServerAddress is the real server a bot intends to reach.
type ServerAddress struct {
	Host string
	Port int
}

// ParseServerAddress parses "host" or "host:port", defaulting to the
// standard Minecraft port.
func ParseServerAddress(s string) (ServerAddress, error) {
	if s == "" {
		return ServerAddress{}, pkgerrors.ErrAddressInvalid
	}

	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return ServerAddress{Host: s, Port: 25565}, nil
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return ServerAddress{}, fmt.Errorf("%w: bad port %q", pkgerrors.ErrAddressInvalid, portStr)
	}
	return ServerAddress{Host: host, Port: port}, nil
}

func (a ServerAddress) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// ConnectionIntent is the ephemeral record of one redirected connection
// attempt. It is consumed when the redirect completes and never persisted.
type ConnectionIntent struct {
	ID        uuid.UUID
	Original  ServerAddress
	Version   string
	CreatedAt time.Time
}

// ConnectionTarget is what a bot actually dials after redirection: the
// local proxy endpoint, plus the handshake host that carries the true
// destination through to the proxy.
type ConnectionTarget struct {
	Addr      string // dial this instead of the real server
	Handshake string // handshake host: real host/port/version threaded to the proxy
	Intent    ConnectionIntent
}

// Redirector rewrites outbound connection targets to the local proxy. It
// hands out targets only while the supervised instance is ready;
// callers must treat a redirect failure as a connection failure, never
// fall back to dialing the real server directly.
type Redirector struct {
	supervisor *proxy.Supervisor
	version    string // default protocol version for redirects
}

// NewRedirector creates a redirector bound to the supervised proxy.
func NewRedirector(supervisor *proxy.Supervisor, version string) *Redirector {
	return &Redirector{
		supervisor: supervisor,
		version:    version,
	}
}

// Redirect registers a connection intent for the original address and
// returns the local proxy as the dial target. It waits for a starting
// instance to become ready; a crashed or stopped instance resolves with
// ErrProxyNotReady/ErrProxyUnavailable/ErrShuttingDown immediately.
func (r *Redirector) Redirect(ctx context.Context, original ServerAddress, version string) (ConnectionTarget, error) {
	if original.Host == "" || original.Port < 1 || original.Port > 65535 {
		return ConnectionTarget{}, fmt.Errorf("%w: %s", pkgerrors.ErrAddressInvalid, original)
	}
	if version == "" {
		version = r.version
	}

	if err := r.supervisor.AwaitReady(ctx); err != nil {
		return ConnectionTarget{}, err
	}

	intent := ConnectionIntent{
		ID:        uuid.New(),
		Original:  original,
		Version:   version,
		CreatedAt: time.Now(),
	}

	return ConnectionTarget{
		Addr:      r.supervisor.Addr(),
		Handshake: encodeHandshakeHost(original, version),
		Intent:    intent,
	}, nil
}

// encodeHandshakeHost packs the real destination and protocol version into
// the handshake host field the proxy's srv mode understands:
// host \x07 port \x07 version \x07 mppass, with mppass left empty.
func encodeHandshakeHost(original ServerAddress, version string) string {
	return fmt.Sprintf("%s\x07%d\x07%s\x07%s", original.Host, original.Port, version, "")
}
