package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sftocsv/internal/etl"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "nested", "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNew_MigrationsAreRepeatable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	db, err := New(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = New(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

func TestRunLogStore(t *testing.T) {
	store := NewRunLogStore(openTestDB(t))
	base := time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)

	for i, status := range []string{"success", "error"} {
		log := &etl.SyncRunLog{
			JobID:      "job-1",
			JobName:    "nightly",
			Trigger:    etl.TriggerSchedule,
			StartedAt:  base.Add(time.Duration(i) * time.Hour),
			FinishedAt: base.Add(time.Duration(i)*time.Hour + time.Minute),
			Status:     status,
			RowsRead:   10,
		}
		if status == "error" {
			log.Error = "read: boom"
		}
		require.NoError(t, store.CreateRunLog(log))
		assert.NotEmpty(t, log.ID)
	}
	require.NoError(t, store.CreateRunLog(&etl.SyncRunLog{JobID: "job-2", JobName: "adhoc", Status: "success", StartedAt: base, FinishedAt: base}))

	logs, err := store.ListRunLogs("job-1", 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "error", logs[0].Status, "newest first")
	assert.Equal(t, etl.TriggerSchedule, logs[0].Trigger)

	all, err := store.ListRunLogs("", 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	st, err := store.GetJobStatus("job-1")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, "error", st.LastStatus)
	assert.Equal(t, "read: boom", st.LastError)
	require.NotNil(t, st.LastRunAt)

	statuses, err := store.ListJobStatuses()
	require.NoError(t, err)
	assert.Len(t, statuses, 2)

	require.NoError(t, store.DeleteJob("job-1"))
	st, err = store.GetJobStatus("job-1")
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestQueryLogStore(t *testing.T) {
	store := NewQueryLogStore(openTestDB(t))
	old := time.Now().Add(-48 * time.Hour)

	require.NoError(t, store.Record(&QueryLog{Kind: QueryFlat, Query: "SELECT Id FROM Account", Rows: 3, ExecutedAt: old}))
	require.NoError(t, store.Record(&QueryLog{Kind: QueryLargeIn, Query: "SELECT Id FROM Contact WHERE Id IN <in>", Requests: 4}))

	recent, err := store.Recent(10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, QueryLargeIn, recent[0].Kind)
	assert.Equal(t, 4, recent[0].Requests)
	assert.Equal(t, 1, recent[1].Requests)

	n, err := store.Prune(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
