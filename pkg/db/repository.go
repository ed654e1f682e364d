package db

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/edl-tools/tachyon-setup/pkg/errors"
	_ "modernc.org/sqlite"
)

// Repository provides database operations for runs
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

	slog.Info("database_create_schema", "db_path", dbPath)
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		slog.Error("database_schema_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to create schema")
	}

	slog.Info("database_ready", "db_path", dbPath)
	return &Repository{db: db}, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

const runColumns = `id, run_id, device_id, status, step,
       package_path, blob_path, log_path, error_message, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var run Run
	var deviceID, packagePath, blobPath, logPath, errorMessage sql.NullString

	err := s.Scan(
		&run.ID, &run.RunID, &deviceID, &run.Status, &run.Step,
		&packagePath, &blobPath, &logPath, &errorMessage,
		&run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return nil, err
	}

	run.DeviceID = deviceID.String
	run.PackagePath = packagePath.String
	run.BlobPath = blobPath.String
	run.LogPath = logPath.String
	run.ErrorMessage = errorMessage.String
	return &run, nil
}

// Create inserts a new run record
func (r *Repository) Create(run *Run) error {
	if run.Status == "" {
		run.Status = StatusRunning
	}
	slog.Info("database_create_run", "run_id", run.RunID, "status", run.Status)

	query := `
		INSERT INTO runs (run_id, device_id, status, step, package_path, blob_path, log_path, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.Exec(query,
		run.RunID, run.DeviceID, run.Status, run.Step,
		run.PackagePath, run.BlobPath, run.LogPath, run.ErrorMessage)
	if err != nil {
		slog.Error("database_insert_failed", "run_id", run.RunID, "error", err)
		return errors.Wrap(err, "failed to insert run")
	}

	id, err := result.LastInsertId()
	if err != nil {
		slog.Error("database_last_insert_id_failed", "run_id", run.RunID, "error", err)
		return errors.Wrap(err, "failed to get last insert id")
	}
	run.ID = id

	slog.Info("database_run_created", "run_id", run.RunID, "id", run.ID)
	return nil
}

// Get retrieves a run by its run id. A missing run returns nil, nil.
func (r *Repository) Get(runID string) (*Run, error) {
	slog.Debug("database_query_run", "run_id", runID)

	run, err := scanRun(r.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID))
	if err == sql.ErrNoRows {
		slog.Info("database_run_not_found", "run_id", runID)
		return nil, nil
	}
	if err != nil {
		slog.Error("database_query_failed", "run_id", runID, "error", err)
		return nil, errors.Wrap(err, "failed to query run")
	}
	return run, nil
}

// Update writes every mutable column of run.
func (r *Repository) Update(run *Run) error {
	slog.Info("database_update_run", "run_id", run.RunID, "status", run.Status, "step", run.Step)

	query := `
		UPDATE runs
		SET device_id = ?, status = ?, step = ?, package_path = ?, blob_path = ?, log_path = ?,
		    error_message = ?, updated_at = CURRENT_TIMESTAMP
		WHERE run_id = ?
	`
	result, err := r.db.Exec(query,
		run.DeviceID, run.Status, run.Step, run.PackagePath, run.BlobPath, run.LogPath,
		run.ErrorMessage, run.RunID)
	if err != nil {
		slog.Error("database_update_failed", "run_id", run.RunID, "error", err)
		return errors.Wrap(err, "failed to update run")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		slog.Error("database_rows_affected_failed", "run_id", run.RunID, "error", err)
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		slog.Error("database_run_not_found_for_update", "run_id", run.RunID)
		return fmt.Errorf("run not found: %s", run.RunID)
	}
	return nil
}

// UpdateStep records the step the run has reached.
func (r *Repository) UpdateStep(runID string, step int) error {
	slog.Debug("database_update_step", "run_id", runID, "step", step)

	_, err := r.db.Exec(`UPDATE runs SET step = ?, updated_at = CURRENT_TIMESTAMP WHERE run_id = ?`, step, runID)
	if err != nil {
		slog.Error("database_step_update_failed", "run_id", runID, "step", step, "error", err)
		return errors.Wrap(err, "failed to update step")
	}
	return nil
}

// UpdateStatus updates only the status field
func (r *Repository) UpdateStatus(runID, status, errorMessage string) error {
	slog.Info("database_update_status", "run_id", runID, "status", status)

	query := `UPDATE runs SET status = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP WHERE run_id = ?`
	_, err := r.db.Exec(query, status, errorMessage, runID)
	if err != nil {
		slog.Error("database_status_update_failed", "run_id", runID, "status", status, "error", err)
		return errors.Wrap(err, "failed to update status")
	}

	slog.Info("database_status_updated", "run_id", runID, "status", status)
	return nil
}

// List retrieves all runs, newest first
func (r *Repository) List() ([]*Run, error) {
	slog.Debug("database_list_runs")

	rows, err := r.db.Query(`SELECT ` + runColumns + ` FROM runs ORDER BY created_at DESC, id DESC`)
	if err != nil {
		slog.Error("database_list_query_failed", "error", err)
		return nil, errors.Wrap(err, "failed to list runs")
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			slog.Error("database_scan_row_failed", "error", err)
			return nil, errors.Wrap(err, "failed to scan row")
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		slog.Error("database_rows_error", "error", err)
		return nil, errors.Wrap(err, "rows error")
	}

	slog.Debug("database_list_complete", "run_count", len(runs))
	return runs, nil
}

// Delete deletes a run by run id
func (r *Repository) Delete(runID string) error {
	slog.Info("database_delete_run", "run_id", runID)

	_, err := r.db.Exec(`DELETE FROM runs WHERE run_id = ?`, runID)
	if err != nil {
		slog.Error("database_delete_failed", "run_id", runID, "error", err)
		return errors.Wrap(err, "failed to delete run")
	}

	slog.Info("database_run_deleted", "run_id", runID)
	return nil
}
