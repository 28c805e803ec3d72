package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenkeeper/tokenkeeper/internal/models"
)

func openTestStore(t *testing.T) *Store {
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func record(jobID string, status models.JobStatus, at time.Time) models.JobExecutionRecord {
	return models.JobExecutionRecord{
		JobID:         jobID,
		ScheduledTime: at,
		ExecutionTime: at,
		Status:        status,
		Duration:      0.5,
	}
}

func TestAppendAndRecent(t *testing.T) {
	store := openTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, store.Append(record("token_refresh", models.JobSuccess, now.Add(-2*time.Minute))))
	require.NoError(t, store.Append(record("quota_check", models.JobError, now.Add(-time.Minute))))
	require.NoError(t, store.Append(record("token_refresh", models.JobSuccess, now)))

	recs, err := store.Recent("", 10)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	// Newest first.
	assert.Equal(t, "token_refresh", recs[0].JobID)
	assert.True(t, recs[0].ExecutionTime.Equal(now))
	assert.Equal(t, "quota_check", recs[1].JobID)
	assert.Equal(t, models.JobError, recs[1].Status)
}

func TestRecentFilterByJob(t *testing.T) {
	store := openTestStore(t)
	now := time.Now().UTC()

	require.NoError(t, store.Append(record("a", models.JobSuccess, now)))
	require.NoError(t, store.Append(record("b", models.JobSuccess, now)))

	recs, err := store.Recent("a", 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "a", recs[0].JobID)
}

func TestRecentLimit(t *testing.T) {
	store := openTestStore(t)
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Append(record("a", models.JobSuccess, now)))
	}

	recs, err := store.Recent("", 3)
	require.NoError(t, err)
	assert.Len(t, recs, 3)
}

func TestPrune(t *testing.T) {
	store := openTestStore(t)
	now := time.Now().UTC()

	require.NoError(t, store.Append(record("old", models.JobSuccess, now.Add(-48*time.Hour))))
	require.NoError(t, store.Append(record("new", models.JobSuccess, now)))

	deleted, err := store.Prune(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	recs, err := store.Recent("", 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "new", recs[0].JobID)
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Append(record("a", models.JobSuccess, time.Now().UTC())))
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	recs, err := reopened.Recent("", 10)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}
