package storage

import (
	"time"

	"github.com/google/uuid"
)

// Query kinds.
const (
	QueryFlat    = "query"
	QueryNested  = "nested"
	QueryLargeIn = "large_in"
)

// QueryLog records one ad-hoc query run from the command line or an MCP tool.
type QueryLog struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Query      string    `json:"query"`
	Rows       int       `json:"rows"`
	Requests   int       `json:"requests"`
	DurationMs int64     `json:"durationMs"`
	Error      string    `json:"error,omitempty"`
	ExecutedAt time.Time `json:"executedAt"`
}

// QueryLogStore manages the ad-hoc query log.
type QueryLogStore struct {
	db *DB
}

// NewQueryLogStore creates a new QueryLogStore.
func NewQueryLogStore(db *DB) *QueryLogStore {
	return &QueryLogStore{db: db}
}

// Record stores q, assigning its id and execution time when unset.
func (s *QueryLogStore) Record(q *QueryLog) error {
	if q.ID == "" {
		q.ID = uuid.New().String()
	}
	if q.ExecutedAt.IsZero() {
		q.ExecutedAt = time.Now()
	}
	if q.Requests == 0 {
		q.Requests = 1
	}
	_, err := s.db.Conn().Exec(
		`INSERT INTO query_log (id, kind, query, rows, requests, duration_ms, error, executed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.Kind, q.Query, q.Rows, q.Requests, q.DurationMs, q.Error, q.ExecutedAt,
	)
	return err
}

// Recent returns up to limit entries, newest first.
func (s *QueryLogStore) Recent(limit int) ([]QueryLog, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Conn().Query(
		`SELECT id, kind, query, rows, requests, duration_ms, error, executed_at
		 FROM query_log ORDER BY executed_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []QueryLog
	for rows.Next() {
		var q QueryLog
		if err := rows.Scan(&q.ID, &q.Kind, &q.Query, &q.Rows, &q.Requests, &q.DurationMs, &q.Error, &q.ExecutedAt); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// Prune deletes entries executed before cutoff and reports how many went.
func (s *QueryLogStore) Prune(cutoff time.Time) (int64, error) {
	res, err := s.db.Conn().Exec(`DELETE FROM query_log WHERE executed_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
