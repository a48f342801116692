package auth

import (
	"context"
	"time"
)

// SessionMaterial is the live authentication material for one bot profile:
// the token plus profile identity needed to complete a server handshake.
// It only ever travels over the bridge's request/response channel.
type SessionMaterial struct {
	ProfileID string    `json:"profile_id"`
	Token     string    `json:"token"`
	Expiry    time.Time `json:"expiry"`
}

// SessionStore is the host framework's account/session store. ValidSession
// returns currently valid material for the profile, refreshing it host-side
// when the store considers it expired. The bridge never caches what it
// returns.
type SessionStore interface {
	ValidSession(ctx context.Context, profileID string) (SessionMaterial, error)
}
