package app

import (
	"fmt"
	"path/filepath"

	"github.com/azalea-rs/azalea-viaversion/internal/paths"
	"github.com/azalea-rs/azalea-viaversion/internal/storage"
	"github.com/azalea-rs/azalea-viaversion/internal/storage/sqlite"
)

// App represents the application context
type App struct {
	Storage storage.Storage
	DataDir string
}

// New creates a new application instance
func New() (*App, error) {
	dataDir, err := paths.DataDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "azalea-viaversion.db")
	store, err := sqlite.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	return &App{
		Storage: store,
		DataDir: dataDir,
	}, nil
}

// Close releases application resources
func (a *App) Close() error {
	if a.Storage != nil {
		return a.Storage.Close()
	}
	return nil
}
