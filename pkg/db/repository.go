package db

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/usbforge/usbforge/pkg/errors"
	_ "modernc.org/sqlite"
)

// Repository provides database operations for creation runs
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new repository
func NewRepository(dbPath string) (*Repository, error) {
	slog.Info("database_init", "db_path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		slog.Error("database_open_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to open database")
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		slog.Error("database_schema_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to create schema")
	}

	return &Repository{db: db}, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// Create inserts a new run record
func (r *Repository) Create(run *Run) error {
	slog.Info("database_create_run", "image", run.ImagePath, "drive", run.DriveID, "status", run.Status)

	query := `
		INSERT INTO runs (image_path, drive_id, device_path, filesystem, status, bytes_total, bytes_copied, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.Exec(query,
		run.ImagePath, run.DriveID, run.DevicePath, run.Filesystem,
		run.Status, run.BytesTotal, run.BytesCopied, run.ErrorMessage)
	if err != nil {
		slog.Error("database_insert_failed", "image", run.ImagePath, "error", err)
		return errors.Wrap(err, "failed to insert run")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "failed to get last insert id")
	}
	run.ID = id

	return nil
}

// GetByID retrieves a run by its ID. A missing run returns (nil, nil).
func (r *Repository) GetByID(id int64) (*Run, error) {
	query := `
		SELECT id, image_path, drive_id, device_path, filesystem, status,
		       bytes_total, bytes_copied, error_message, created_at, updated_at
		FROM runs WHERE id = ?
	`
	var run Run
	var filesystem, errorMessage sql.NullString

	err := r.db.QueryRow(query, id).Scan(
		&run.ID, &run.ImagePath, &run.DriveID, &run.DevicePath,
		&filesystem, &run.Status, &run.BytesTotal, &run.BytesCopied,
		&errorMessage, &run.CreatedAt, &run.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("database_query_failed", "run_id", id, "error", err)
		return nil, errors.Wrap(err, "failed to query run")
	}

	run.Filesystem = filesystem.String
	run.ErrorMessage = errorMessage.String
	return &run, nil
}

// Update updates an existing run record
func (r *Repository) Update(run *Run) error {
	slog.Info("database_update_run", "run_id", run.ID, "status", run.Status)

	query := `
		UPDATE runs
		SET filesystem = ?, status = ?, bytes_total = ?, bytes_copied = ?,
		    error_message = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	result, err := r.db.Exec(query,
		run.Filesystem, run.Status, run.BytesTotal, run.BytesCopied,
		run.ErrorMessage, run.ID)
	if err != nil {
		slog.Error("database_update_failed", "run_id", run.ID, "error", err)
		return errors.Wrap(err, "failed to update run")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return fmt.Errorf("run not found: id=%d", run.ID)
	}

	return nil
}

// UpdateStatus updates only the status and error message
func (r *Repository) UpdateStatus(id int64, status, errorMessage string) error {
	slog.Info("database_update_status", "run_id", id, "status", status)

	query := `UPDATE runs SET status = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	if _, err := r.db.Exec(query, status, errorMessage, id); err != nil {
		slog.Error("database_status_update_failed", "run_id", id, "error", err)
		return errors.Wrap(err, "failed to update status")
	}
	return nil
}

// List returns all runs, newest first
func (r *Repository) List() ([]*Run, error) {
	query := `
		SELECT id, image_path, drive_id, device_path, filesystem, status,
		       bytes_total, bytes_copied, error_message, created_at, updated_at
		FROM runs ORDER BY created_at DESC
	`
	rows, err := r.db.Query(query)
	if err != nil {
		slog.Error("database_list_failed", "error", err)
		return nil, errors.Wrap(err, "failed to list runs")
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var run Run
		var filesystem, errorMessage sql.NullString

		err := rows.Scan(
			&run.ID, &run.ImagePath, &run.DriveID, &run.DevicePath,
			&filesystem, &run.Status, &run.BytesTotal, &run.BytesCopied,
			&errorMessage, &run.CreatedAt, &run.UpdatedAt)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan row")
		}

		run.Filesystem = filesystem.String
		run.ErrorMessage = errorMessage.String
		runs = append(runs, &run)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "rows error")
	}
	return runs, nil
}

// PurgeFinished deletes all completed and failed runs, returning the number
// removed. Running records are kept.
func (r *Repository) PurgeFinished() (int64, error) {
	result, err := r.db.Exec(`DELETE FROM runs WHERE status != ?`, StatusRunning)
	if err != nil {
		slog.Error("database_purge_failed", "error", err)
		return 0, errors.Wrap(err, "failed to purge runs")
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}

	slog.Info("database_purge_complete", "removed", removed)
	return removed, nil
}
