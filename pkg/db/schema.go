package db

// Schema defines the SQLite database schema for provisioning runs.
// Each setup invocation gets one row, updated as the pipeline advances.
const Schema = `
CREATE TABLE IF NOT EXISTS runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL UNIQUE,
    device_id TEXT,
    status TEXT NOT NULL CHECK(status IN ('running', 'completed', 'failed', 'flash_failed')),
    step INTEGER NOT NULL DEFAULT 0,
    package_path TEXT,
    blob_path TEXT,
    log_path TEXT,
    error_message TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_runs_device_id ON runs(device_id);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

// Status constants
const (
	StatusRunning     = "running"
	StatusCompleted   = "completed"
	StatusFailed      = "failed"
	StatusFlashFailed = "flash_failed"
)

// Run represents one provisioning run
type Run struct {
	ID           int64
	RunID        string
	DeviceID     string
	Status       string
	Step         int
	PackagePath  string
	BlobPath     string
	LogPath      string
	ErrorMessage string
	CreatedAt    string
	UpdatedAt    string
}

// Finished reports whether the run reached a terminal status.
func (r *Run) Finished() bool {
	return r.Status != StatusRunning
}
