package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	pkgerrors "github.com/azalea-rs/azalea-viaversion/pkg/errors"
)

// BridgeConfig represents auth bridge configuration
type BridgeConfig struct {
	// LookupTimeout bounds a single credential lookup against the host
	// store. A lookup that exceeds it answers CredentialUnavailable
	// instead of hanging the proxy's connection attempt.
	LookupTimeout time.Duration
}

// DefaultBridgeConfig returns default bridge configuration
func DefaultBridgeConfig() BridgeConfig {
	return BridgeConfig{
		LookupTimeout: 10 * time.Second,
	}
}

// Bridge is the loopback-only endpoint the external proxy calls to obtain
// a bot's current session material. It is a pure relay into the host
// framework's store: it keeps no credential state of its own.
type Bridge struct {
	store    SessionStore
	config   BridgeConfig
	group    singleflight.Group
	server   *http.Server
	listener net.Listener
}

// NewBridge creates a new auth bridge backed by the host session store.
func NewBridge(store SessionStore, config BridgeConfig) *Bridge {
	if config.LookupTimeout <= 0 {
		config.LookupTimeout = DefaultBridgeConfig().LookupTimeout
	}
	return &Bridge{
		store:  store,
		config: config,
	}
}

// Start begins listening on an ephemeral loopback port.
func (b *Bridge) Start() error {
	if b.listener != nil {
		return fmt.Errorf("auth bridge is already running")
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to listen on loopback: %w", err)
	}
	b.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/session", b.handleSession)

	b.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := b.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("[AuthBridge] serve error: %v", err)
		}
	}()

	log.Printf("[AuthBridge] listening on %s", listener.Addr())
	return nil
}

// Addr returns the bridge's callback address, e.g. "127.0.0.1:51234".
// It is only valid after Start.
func (b *Bridge) Addr() string {
	if b.listener == nil {
		return ""
	}
	return b.listener.Addr().String()
}

// Shutdown stops the bridge. In-flight lookups get their bounded timeout.
func (b *Bridge) Shutdown(ctx context.Context) error {
	if b.server == nil {
		return nil
	}
	err := b.server.Shutdown(ctx)
	b.server = nil
	b.listener = nil
	return err
}

type sessionRequest struct {
	ProfileID string `json:"profile_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (b *Bridge) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed")
		return
	}

	if !isLoopback(r.RemoteAddr) {
		log.Printf("[AuthBridge] rejected non-loopback caller %s", r.RemoteAddr)
		writeError(w, http.StatusForbidden, "loopback_only")
		return
	}

	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProfileID == "" {
		writeError(w, http.StatusBadRequest, "bad_request")
		return
	}

	material, err := b.Lookup(r.Context(), req.ProfileID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			writeError(w, http.StatusGatewayTimeout, "credential_unavailable")
			return
		}
		writeError(w, http.StatusNotFound, "credential_unavailable")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(material)
}

// Lookup fetches currently valid session material for profileID from the
// host store. Concurrent lookups for the same profile collapse into a
// single store call; lookups for distinct profiles run independently, so
// one slow profile never delays another.
func (b *Bridge) Lookup(ctx context.Context, profileID string) (SessionMaterial, error) {
	result, err, _ := b.group.Do(profileID, func() (interface{}, error) {
		// Detached from the caller's context: the result is shared with
		// every collapsed caller, so one caller hanging up must not
		// cancel the lookup for the rest.
		lookupCtx, cancel := context.WithTimeout(context.Background(), b.config.LookupTimeout)
		defer cancel()

		material, err := b.store.ValidSession(lookupCtx, profileID)
		if err != nil {
			if lookupCtx.Err() != nil {
				return nil, &pkgerrors.AuthError{
					ProfileID: profileID,
					Err:       fmt.Errorf("%w: %w", pkgerrors.ErrCredentialUnavailable, context.DeadlineExceeded),
				}
			}
			return nil, &pkgerrors.AuthError{
				ProfileID: profileID,
				Err:       fmt.Errorf("%w: %v", pkgerrors.ErrCredentialUnavailable, err),
			}
		}

		// The profile id is the isolation boundary between bots sharing
		// the one proxy instance. Material for any other profile must
		// never leak through.
		if material.ProfileID != profileID {
			return nil, &pkgerrors.AuthError{
				ProfileID: profileID,
				Err:       fmt.Errorf("%w: store returned profile %s", pkgerrors.ErrCredentialUnavailable, material.ProfileID),
			}
		}

		return material, nil
	})
	if err != nil {
		return SessionMaterial{}, err
	}

	select {
	case <-ctx.Done():
		return SessionMaterial{}, ctx.Err()
	default:
	}

	return result.(SessionMaterial), nil
}

func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return false
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: code})
}
