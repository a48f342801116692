package storage

import (
	"context"
	"time"

	"github.com/azalea-rs/azalea-viaversion/internal/storage/models"
)

// Storage defines the interface for data persistence.
//
// Nothing stored here is ever a credential: the store holds artifact
// verification metadata and proxy run history only.
type Storage interface {
	// Artifact operations
	UpsertArtifact(ctx context.Context, artifact *models.Artifact) error
	GetArtifact(ctx context.Context, version string) (*models.Artifact, error)
	GetAllArtifacts(ctx context.Context) ([]*models.Artifact, error)
	TouchArtifactVerified(ctx context.Context, version string, at time.Time) error
	DeleteArtifact(ctx context.Context, version string) error

	// Proxy run operations
	RecordRunStart(ctx context.Context, run *models.ProxyRun) error
	RecordRunEnd(ctx context.Context, id int64, endedAt time.Time, outcome string) error
	GetRecentRuns(ctx context.Context, limit int) ([]*models.ProxyRun, error)

	// Settings operations
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	// Close closes the storage connection
	Close() error
}
