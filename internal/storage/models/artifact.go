package models

import "time"

// Artifact represents a verified proxy artifact in the local cache
type Artifact struct {
	ID      int64  `json:"id"`
	Version string `json:"version"`
	SHA256  string `json:"sha256"`
	Path    string `json:"path"`
	Size    int64  `json:"size"`

	FetchedAt      time.Time `json:"fetched_at"`
	LastVerifiedAt time.Time `json:"last_verified_at"`
}
