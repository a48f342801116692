package plugin

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/azalea-rs/azalea-viaversion/internal/artifact"
	"github.com/azalea-rs/azalea-viaversion/internal/auth"
	"github.com/azalea-rs/azalea-viaversion/internal/proxy"
	"github.com/azalea-rs/azalea-viaversion/internal/redirect"
	"github.com/azalea-rs/azalea-viaversion/internal/storage"
	pkgerrors "github.com/azalea-rs/azalea-viaversion/pkg/errors"
)

// Options configures a plugin activation.
type Options struct {
	// DataDir is where the proxy artifact and its working files live.
	DataDir string

	// Sessions is the host framework's account/session store the auth
	// bridge relays into.
	Sessions auth.SessionStore

	// Descriptor overrides the pinned proxy artifact; zero value uses
	// the default.
	Descriptor artifact.Descriptor

	// Proxy overrides supervisor tuning (timeouts, restart budget).
	// Version, AuthAddr, JarPath and WorkDir are filled in by Start.
	Proxy proxy.Config

	// Store is optional persistence for artifact/run metadata.
	Store storage.Storage
}

// Plugin is the integration shim the host framework drives: one Start per
// activation, one OnConnect per connection attempt, one Stop at teardown.
// It contains no decision logic of its own.
type Plugin struct {
	opts Options

	// lifecycle serializes Start and Stop. It is held across the long
	// activation work, so OnConnect must never contend on it.
	lifecycle sync.Mutex

	// mu guards the published fields below and is only held briefly.
	mu         sync.Mutex
	started    bool
	activating bool
	gate       chan struct{}
	bridge     *auth.Bridge
	supervisor *proxy.Supervisor
	redirector *redirect.Redirector
}

// New creates a plugin with the given options.
func New(opts Options) *Plugin {
	return &Plugin{
		opts: opts,
		gate: make(chan struct{}),
	}
}

// Start ensures the proxy artifact is present and verified, brings up the
// auth bridge, launches the supervised proxy for the requested protocol
// version, and waits for readiness. Any failure is returned synchronously
// and aborts the whole activation.
func (p *Plugin) Start(ctx context.Context, version string) error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return nil
	}
	if version == "" {
		p.mu.Unlock()
		return fmt.Errorf("protocol version is required")
	}
	p.activating = true
	p.mu.Unlock()

	err := p.activate(ctx, version)

	p.mu.Lock()
	p.activating = false
	p.started = err == nil
	close(p.gate)
	p.gate = make(chan struct{})
	p.mu.Unlock()

	return err
}

// activate does the actual bring-up. Caller holds the lifecycle lock.
func (p *Plugin) activate(ctx context.Context, version string) error {
	desc := p.opts.Descriptor
	if desc.Version == "" {
		desc = artifact.DefaultDescriptor()
	}

	cache := artifact.NewCache(p.opts.DataDir, nil, p.opts.Store)
	jarPath, err := cache.Ensure(ctx, desc)
	if err != nil {
		return fmt.Errorf("failed to ensure proxy artifact: %w", err)
	}

	bridge := auth.NewBridge(p.opts.Sessions, auth.DefaultBridgeConfig())
	if err := bridge.Start(); err != nil {
		return fmt.Errorf("failed to start auth bridge: %w", err)
	}

	config := p.opts.Proxy
	config.Version = version
	config.AuthAddr = bridge.Addr()
	config.JarPath = jarPath
	config.WorkDir = p.opts.DataDir

	supervisor := proxy.NewSupervisor(config, p.opts.Store)
	if err := supervisor.Start(ctx); err != nil {
		bridge.Shutdown(context.Background())
		return err
	}

	p.mu.Lock()
	p.bridge = bridge
	p.supervisor = supervisor
	p.redirector = redirect.NewRedirector(supervisor, version)
	p.mu.Unlock()

	log.Printf("[Plugin] active: proxy %s, auth bridge %s", supervisor.Addr(), bridge.Addr())
	return nil
}

// OnConnect rewrites one outbound connection attempt to target the local
// proxy, preserving the real destination in the returned metadata. An
// attempt made while an activation is in flight waits for it, bounded by
// ctx; one made with no activation at all fails immediately.
func (p *Plugin) OnConnect(ctx context.Context, address string) (redirect.ConnectionTarget, error) {
	var redirector *redirect.Redirector
	for {
		p.mu.Lock()
		redirector = p.redirector
		activating := p.activating
		gate := p.gate
		p.mu.Unlock()

		if redirector != nil {
			break
		}
		if !activating {
			return redirect.ConnectionTarget{}, fmt.Errorf("plugin is not started: %w", pkgerrors.ErrProxyNotReady)
		}

		select {
		case <-ctx.Done():
			return redirect.ConnectionTarget{}, ctx.Err()
		case <-gate:
		}
	}

	original, err := redirect.ParseServerAddress(address)
	if err != nil {
		return redirect.ConnectionTarget{}, err
	}

	return redirector.Redirect(ctx, original, "")
}

// Supervisor exposes the supervised instance for status inspection. Nil
// before Start.
func (p *Plugin) Supervisor() *proxy.Supervisor {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.supervisor
}

// Stop tears the activation down: proxy first so no connection can race a
// dying bridge, then the bridge.
func (p *Plugin) Stop(ctx context.Context) error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = false
	supervisor := p.supervisor
	bridge := p.bridge
	p.mu.Unlock()

	var firstErr error
	if err := supervisor.Stop(ctx); err != nil {
		firstErr = err
	}
	if err := bridge.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}

	log.Printf("[Plugin] stopped")
	return firstErr
}
