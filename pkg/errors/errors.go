package errors

import (
	"errors"
	"fmt"
)

// Common error types
var (
	// Artifact errors
	ErrFetchFailed       = errors.New("artifact download failed")
	ErrIntegrityMismatch = errors.New("artifact hash mismatch")

	// Proxy lifecycle errors
	ErrStartupTimeout   = errors.New("proxy did not signal readiness in time")
	ErrProxyUnavailable = errors.New("proxy restart budget exhausted")
	ErrProxyNotReady    = errors.New("proxy is not ready")
	ErrShuttingDown     = errors.New("proxy is shutting down")

	// Auth bridge errors
	ErrCredentialUnavailable = errors.New("credential unavailable")
	ErrUnknownProfile        = errors.New("no live session for profile")

	// Redirect errors
	ErrAddressInvalid = errors.New("invalid server address")
)

// ArtifactError represents an artifact cache error
type ArtifactError struct {
	Version string
	URL     string
	Err     error
}

func (e *ArtifactError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("artifact %s (%s): %v", e.Version, e.URL, e.Err)
	}
	return fmt.Sprintf("artifact %s: %v", e.Version, e.Err)
}

func (e *ArtifactError) Unwrap() error {
	return e.Err
}

// ProxyError represents a proxy process lifecycle error
type ProxyError struct {
	Version string
	PID     int
	Err     error
}

func (e *ProxyError) Error() string {
	if e.PID != 0 {
		return fmt.Sprintf("proxy %s (pid %d): %v", e.Version, e.PID, e.Err)
	}
	return fmt.Sprintf("proxy %s: %v", e.Version, e.Err)
}

func (e *ProxyError) Unwrap() error {
	return e.Err
}

// AuthError represents an auth bridge error
type AuthError struct {
	ProfileID string
	Err       error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth bridge (profile %s): %v", e.ProfileID, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}
