package db

// Schema defines the SQLite schema for creation runs. Each row is one
// attempt to build an installer drive, kept for the history command.
const Schema = `
CREATE TABLE IF NOT EXISTS runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    image_path TEXT NOT NULL,
    drive_id TEXT NOT NULL,
    device_path TEXT NOT NULL,
    filesystem TEXT,
    status TEXT NOT NULL CHECK(status IN ('running', 'completed', 'failed')),
    bytes_total INTEGER NOT NULL DEFAULT 0,
    bytes_copied INTEGER NOT NULL DEFAULT 0,
    error_message TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

// Status constants
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Filesystem labels recorded per run
const (
	FilesystemExFAT = "exfat"
	FilesystemFAT32 = "fat32"
)

// Run represents one creation run record
type Run struct {
	ID           int64
	ImagePath    string
	DriveID      string
	DevicePath   string
	Filesystem   string
	Status       string
	BytesTotal   int64
	BytesCopied  int64
	ErrorMessage string
	CreatedAt    string
	UpdatedAt    string
}
