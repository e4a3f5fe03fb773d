package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sftocsv/internal/etl"
)

// JobStatus is the outcome of a job's most recent run.
type JobStatus struct {
	JobID      string     `json:"jobId"`
	JobName    string     `json:"jobName"`
	LastRunAt  *time.Time `json:"lastRunAt,omitempty"`
	LastStatus string     `json:"lastStatus"`
	LastError  string     `json:"lastError,omitempty"`
}

// RunLogStore persists job run history.
type RunLogStore struct {
	db *DB
}

// NewRunLogStore creates a new RunLogStore.
func NewRunLogStore(db *DB) *RunLogStore {
	return &RunLogStore{db: db}
}

// ── Run Logs ───────────────────────────────────────────────

// CreateRunLog stores log under a fresh id and updates the job's status.
func (s *RunLogStore) CreateRunLog(log *etl.SyncRunLog) error {
	log.ID = uuid.New().String()

	tx, err := s.db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO run_logs (id, job_id, job_name, trigger_type, started_at, finished_at, status, rows_read, rows_written, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.JobID, log.JobName, log.Trigger, log.StartedAt, log.FinishedAt,
		log.Status, log.RowsRead, log.RowsWritten, log.Error,
	); err != nil {
		return fmt.Errorf("insert run log: %w", err)
	}
	if _, err := tx.Exec(
		`INSERT INTO job_status (job_id, job_name, last_run_at, last_status, last_error, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(job_id) DO UPDATE SET
		   job_name=excluded.job_name, last_run_at=excluded.last_run_at,
		   last_status=excluded.last_status, last_error=excluded.last_error,
		   updated_at=excluded.updated_at`,
		log.JobID, log.JobName, log.FinishedAt, log.Status, log.Error, time.Now(),
	); err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	return tx.Commit()
}

// ListRunLogs returns the newest runs of jobID first. An empty jobID lists
// runs of every job.
func (s *RunLogStore) ListRunLogs(jobID string, limit int) ([]etl.SyncRunLog, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id, job_id, job_name, trigger_type, started_at, finished_at, status, rows_read, rows_written, error
		 FROM run_logs`
	args := []any{}
	if jobID != "" {
		query += ` WHERE job_id = ?`
		args = append(args, jobID)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []etl.SyncRunLog
	for rows.Next() {
		var l etl.SyncRunLog
		if err := rows.Scan(&l.ID, &l.JobID, &l.JobName, &l.Trigger, &l.StartedAt, &l.FinishedAt,
			&l.Status, &l.RowsRead, &l.RowsWritten, &l.Error); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// ── Job Status ─────────────────────────────────────────────

// GetJobStatus returns the status of a job, or nil if it never ran.
func (s *RunLogStore) GetJobStatus(jobID string) (*JobStatus, error) {
	row := s.db.conn.QueryRow(
		`SELECT job_id, job_name, last_run_at, last_status, last_error FROM job_status WHERE job_id = ?`, jobID,
	)
	st, err := scanStatus(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return st, err
}

// ListJobStatuses returns the status of every job that has run.
func (s *RunLogStore) ListJobStatuses() ([]JobStatus, error) {
	rows, err := s.db.conn.Query(
		`SELECT job_id, job_name, last_run_at, last_status, last_error FROM job_status ORDER BY job_name ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JobStatus
	for rows.Next() {
		st, err := scanStatus(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

// DeleteJob removes a job's status and run history.
func (s *RunLogStore) DeleteJob(jobID string) error {
	if _, err := s.db.conn.Exec(`DELETE FROM run_logs WHERE job_id = ?`, jobID); err != nil {
		return err
	}
	_, err := s.db.conn.Exec(`DELETE FROM job_status WHERE job_id = ?`, jobID)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStatus(row scanner) (*JobStatus, error) {
	var (
		st      JobStatus
		lastRun sql.NullTime
	)
	if err := row.Scan(&st.JobID, &st.JobName, &lastRun, &st.LastStatus, &st.LastError); err != nil {
		return nil, err
	}
	if lastRun.Valid {
		t := lastRun.Time
		st.LastRunAt = &t
	}
	return &st, nil
}
