package sqlite

const schema = `
-- Verified proxy artifacts in the local cache
CREATE TABLE IF NOT EXISTS artifacts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    version TEXT NOT NULL UNIQUE,
    sha256 TEXT NOT NULL,
    path TEXT NOT NULL,
    size INTEGER NOT NULL DEFAULT 0,

    fetched_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    last_verified_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- One row per launch of the external proxy process
CREATE TABLE IF NOT EXISTS proxy_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    pid INTEGER NOT NULL,
    version TEXT NOT NULL,
    bind_port INTEGER NOT NULL,

    started_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    ended_at TIMESTAMP,
    outcome TEXT,
    restarts INTEGER DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_proxy_runs_started ON proxy_runs(started_at DESC);

-- Key/value settings
CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

// runMigrations applies the schema. Statements are idempotent so this is
// safe to run on every open.
func runMigrations(d *DB) error {
	_, err := d.db.Exec(schema)
	return err
}
