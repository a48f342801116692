package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/azalea-rs/azalea-viaversion/internal/storage/models"
)

// DB implements the Storage interface using SQLite
type DB struct {
	db *sql.DB
}

// New creates a new SQLite storage instance
func New(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	storage := &DB{db: db}

	// Run migrations
	if err := runMigrations(storage); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return storage, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.db.Close()
}

// ─── Artifact operations ────────────────────────────────────────────────────

func (d *DB) UpsertArtifact(ctx context.Context, artifact *models.Artifact) error {
	result, err := d.db.ExecContext(ctx, `
		INSERT INTO artifacts (version, sha256, path, size, fetched_at, last_verified_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(version) DO UPDATE SET
			sha256 = excluded.sha256,
			path = excluded.path,
			size = excluded.size,
			fetched_at = excluded.fetched_at,
			last_verified_at = excluded.last_verified_at`,
		artifact.Version, artifact.SHA256, artifact.Path, artifact.Size,
		artifact.FetchedAt, artifact.LastVerifiedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert artifact: %w", err)
	}

	if id, err := result.LastInsertId(); err == nil {
		artifact.ID = id
	}
	return nil
}

func (d *DB) GetArtifact(ctx context.Context, version string) (*models.Artifact, error) {
	artifact := &models.Artifact{}
	err := d.db.QueryRowContext(ctx, `
		SELECT id, version, sha256, path, size, fetched_at, last_verified_at
		FROM artifacts WHERE version = ?`, version).Scan(
		&artifact.ID, &artifact.Version, &artifact.SHA256, &artifact.Path,
		&artifact.Size, &artifact.FetchedAt, &artifact.LastVerifiedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}
	return artifact, nil
}

func (d *DB) GetAllArtifacts(ctx context.Context) ([]*models.Artifact, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, version, sha256, path, size, fetched_at, last_verified_at
		FROM artifacts ORDER BY fetched_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []*models.Artifact
	for rows.Next() {
		artifact := &models.Artifact{}
		if err := rows.Scan(&artifact.ID, &artifact.Version, &artifact.SHA256,
			&artifact.Path, &artifact.Size, &artifact.FetchedAt,
			&artifact.LastVerifiedAt); err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		artifacts = append(artifacts, artifact)
	}
	return artifacts, rows.Err()
}

func (d *DB) TouchArtifactVerified(ctx context.Context, version string, at time.Time) error {
	_, err := d.db.ExecContext(ctx,
		`UPDATE artifacts SET last_verified_at = ? WHERE version = ?`, at, version)
	if err != nil {
		return fmt.Errorf("failed to touch artifact: %w", err)
	}
	return nil
}

func (d *DB) DeleteArtifact(ctx context.Context, version string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM artifacts WHERE version = ?`, version)
	if err != nil {
		return fmt.Errorf("failed to delete artifact: %w", err)
	}
	return nil
}

// ─── Proxy run operations ───────────────────────────────────────────────────

func (d *DB) RecordRunStart(ctx context.Context, run *models.ProxyRun) error {
	result, err := d.db.ExecContext(ctx, `
		INSERT INTO proxy_runs (pid, version, bind_port, started_at, restarts)
		VALUES (?, ?, ?, ?, ?)`,
		run.PID, run.Version, run.BindPort, run.StartedAt, run.Restarts)
	if err != nil {
		return fmt.Errorf("failed to record run start: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get run id: %w", err)
	}
	run.ID = id
	return nil
}

func (d *DB) RecordRunEnd(ctx context.Context, id int64, endedAt time.Time, outcome string) error {
	_, err := d.db.ExecContext(ctx,
		`UPDATE proxy_runs SET ended_at = ?, outcome = ? WHERE id = ?`,
		endedAt, outcome, id)
	if err != nil {
		return fmt.Errorf("failed to record run end: %w", err)
	}
	return nil
}

func (d *DB) GetRecentRuns(ctx context.Context, limit int) ([]*models.ProxyRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, pid, version, bind_port, started_at, ended_at, outcome, restarts
		FROM proxy_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.ProxyRun
	for rows.Next() {
		run := &models.ProxyRun{}
		var endedAt sql.NullTime
		var outcome sql.NullString
		if err := rows.Scan(&run.ID, &run.PID, &run.Version, &run.BindPort,
			&run.StartedAt, &endedAt, &outcome, &run.Restarts); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if endedAt.Valid {
			run.EndedAt = &endedAt.Time
		}
		if outcome.Valid {
			run.Outcome = outcome.String
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ─── Settings operations ────────────────────────────────────────────────────

func (d *DB) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := d.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting: %w", err)
	}
	return value, nil
}

func (d *DB) SetSetting(ctx context.Context, key, value string) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value)
	if err != nil {
		return fmt.Errorf("failed to set setting: %w", err)
	}
	return nil
}
