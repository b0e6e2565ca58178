package queue

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skybridgehq/skybridge/internal/models"
)

func newTestSQLiteQueue(t *testing.T) *SQLiteQueue {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "queue.db")

	q, err := NewSQLiteQueue(dbPath)
	require.NoError(t, err)
	require.NoError(t, q.Migrate(context.Background()))

	t.Cleanup(func() { q.Close() })
	return q
}

func TestSQLiteQueueMigrateIdempotent(t *testing.T) {
	q := newTestSQLiteQueue(t)
	assert.NoError(t, q.Migrate(context.Background()))
}

func TestSQLiteQueueEnqueueDequeue(t *testing.T) {
	q := newTestSQLiteQueue(t)
	ctx := context.Background()

	job := testJob("d-1")
	job.IssueNumber = 42
	job.Autonomy = models.AutonomyDevelopment
	id, err := q.Enqueue(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, job.JobID, id)

	size, err := q.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, size)

	claimed, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, job.JobID, claimed.JobID)
	assert.Equal(t, models.JobStatusProcessing, claimed.Status)
	assert.Equal(t, 42, claimed.IssueNumber)
	assert.Equal(t, models.AutonomyDevelopment, claimed.Autonomy)
	assert.Equal(t, models.SourceGitHub, claimed.Event.Source)
	assert.JSONEq(t, `{"issue":{"number":42}}`, string(claimed.Event.Payload))
	assert.NotNil(t, claimed.StartedAt)
}

func TestSQLiteQueueDurableAcrossInstances(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "queue.db")
	ctx := context.Background()

	q1, err := NewSQLiteQueue(dbPath)
	require.NoError(t, err)
	require.NoError(t, q1.Migrate(ctx))
	job := testJob("d-1")
	_, err = q1.Enqueue(ctx, job)
	require.NoError(t, err)
	require.NoError(t, q1.Close())

	q2, err := NewSQLiteQueue(dbPath)
	require.NoError(t, err)
	defer q2.Close()

	got, err := q2.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.JobStatusPending, got.Status)
}

func TestSQLiteQueueDequeueTimeout(t *testing.T) {
	q := newTestSQLiteQueue(t)

	start := time.Now()
	job, err := q.Dequeue(context.Background(), 150*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, job)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSQLiteQueueAtMostOneClaimant(t *testing.T) {
	q := newTestSQLiteQueue(t)
	ctx := context.Background()

	const pending = 4
	const claimants = 10

	for i := 0; i < pending; i++ {
		_, err := q.Enqueue(ctx, testJob(fmt.Sprintf("d-%d", i)))
		require.NoError(t, err)
	}

	var mu sync.Mutex
	claimed := map[string]int{}
	var wg sync.WaitGroup
	for i := 0; i < claimants; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job, err := q.Dequeue(ctx, 300*time.Millisecond)
			assert.NoError(t, err)
			if job != nil {
				mu.Lock()
				claimed[job.JobID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, claimed, pending)
	for id, count := range claimed {
		assert.Equal(t, 1, count, "job %s claimed more than once", id)
	}
}

func TestSQLiteQueueCompleteIdempotent(t *testing.T) {
	q := newTestSQLiteQueue(t)
	ctx := context.Background()

	job := testJob("d-1")
	_, err := q.Enqueue(ctx, job)
	require.NoError(t, err)
	_, err = q.Dequeue(ctx, time.Second)
	require.NoError(t, err)

	require.NoError(t, q.Complete(ctx, job.JobID, map[string]string{"summary": "done"}))
	require.NoError(t, q.Complete(ctx, job.JobID, nil))

	got, err := q.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)
	assert.Equal(t, "done", got.Metadata["summary"])
}

func TestSQLiteQueueCompleteMissing(t *testing.T) {
	q := newTestSQLiteQueue(t)
	err := q.Complete(context.Background(), "missing", nil)
	require.Error(t, err)

	var qerr *QueueError
	assert.True(t, errors.As(err, &qerr))
}

func TestSQLiteQueueFail(t *testing.T) {
	q := newTestSQLiteQueue(t)
	ctx := context.Background()

	job := testJob("d-1")
	_, err := q.Enqueue(ctx, job)
	require.NoError(t, err)
	_, err = q.Dequeue(ctx, time.Second)
	require.NoError(t, err)

	require.NoError(t, q.Fail(ctx, job.JobID, "agent timed out"))

	got, err := q.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.Equal(t, "agent timed out", got.ErrorMessage)
	assert.NotNil(t, got.CompletedAt)
}

func TestSQLiteQueueTerminalStatesAreImmutable(t *testing.T) {
	q := newTestSQLiteQueue(t)
	ctx := context.Background()

	completed := testJob("d-1")
	_, err := q.Enqueue(ctx, completed)
	require.NoError(t, err)
	_, err = q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NoError(t, q.Complete(ctx, completed.JobID, map[string]string{"summary": "done"}))

	// A straggler worker reporting failure after completion must not
	// rewrite the terminal status.
	require.Error(t, q.Fail(ctx, completed.JobID, "late failure"))

	got, err := q.GetJob(ctx, completed.JobID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.Empty(t, got.ErrorMessage)

	failed := testJob("d-2")
	_, err = q.Enqueue(ctx, failed)
	require.NoError(t, err)
	_, err = q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NoError(t, q.Fail(ctx, failed.JobID, "agent timed out"))

	require.Error(t, q.Complete(ctx, failed.JobID, nil))
	require.NoError(t, q.Fail(ctx, failed.JobID, "again"))

	got, err = q.GetJob(ctx, failed.JobID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.Equal(t, "agent timed out", got.ErrorMessage)
}

func TestSQLiteQueueCompleteRequiresClaim(t *testing.T) {
	q := newTestSQLiteQueue(t)
	ctx := context.Background()

	job := testJob("d-1")
	_, err := q.Enqueue(ctx, job)
	require.NoError(t, err)

	require.Error(t, q.Complete(ctx, job.JobID, nil))
	require.Error(t, q.Fail(ctx, job.JobID, "never claimed"))

	got, err := q.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.JobStatusPending, got.Status)
}

func TestSQLiteQueueExistsByDelivery(t *testing.T) {
	q := newTestSQLiteQueue(t)
	ctx := context.Background()

	exists, err := q.ExistsByDelivery(ctx, "d-1")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = q.Enqueue(ctx, testJob("d-1"))
	require.NoError(t, err)

	exists, err = q.ExistsByDelivery(ctx, "d-1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSQLiteQueuePrunesExpiredDeliveries(t *testing.T) {
	q := newTestSQLiteQueue(t)
	ctx := context.Background()

	// Insert a tracking row that expired yesterday, with no matching job.
	past := time.Now().UTC().Add(-48 * time.Hour)
	_, err := q.db.ExecContext(ctx,
		"INSERT INTO delivery_tracking (delivery_id, job_id, created_at, expires_at) VALUES (?, ?, ?, ?)",
		"stale-1", "gone", past, past.Add(deliveryTTL))
	require.NoError(t, err)

	require.NoError(t, q.Migrate(ctx))

	var count int
	err = q.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM delivery_tracking WHERE delivery_id = 'stale-1'").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestSQLiteQueueUpdateJob(t *testing.T) {
	q := newTestSQLiteQueue(t)
	ctx := context.Background()

	job := testJob("d-1")
	_, err := q.Enqueue(ctx, job)
	require.NoError(t, err)
	claimed, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	claimed.WorktreePath = "/tmp/wt-42"
	claimed.BranchName = "skybridge/issue-42"
	claimed.Autonomy = models.AutonomyReview
	claimed.InitialSnap = &models.RepoSnapshot{CommitHash: "abc", Branch: "main", Dirty: false}
	claimed.SetMeta(models.MetaTrelloCardID, "card-9")
	require.NoError(t, q.UpdateJob(ctx, claimed))

	got, err := q.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "/tmp/wt-42", got.WorktreePath)
	assert.Equal(t, models.AutonomyReview, got.Autonomy)
	assert.Equal(t, "card-9", got.Metadata[models.MetaTrelloCardID])
	require.NotNil(t, got.InitialSnap)
	assert.Equal(t, "abc", got.InitialSnap.CommitHash)
	assert.Nil(t, got.FinalSnap)
}

func TestSQLiteQueueListJobsAndStats(t *testing.T) {
	q := newTestSQLiteQueue(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := q.Enqueue(ctx, testJob(fmt.Sprintf("d-%d", i)))
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}
	claimed, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NoError(t, q.Complete(ctx, claimed.JobID, nil))

	all, err := q.ListJobs(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	completed, err := q.ListJobs(ctx, models.JobStatusCompleted, 0)
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, claimed.JobID, completed[0].JobID)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.EnqueueCount)
	assert.Equal(t, int64(1), stats.DequeueCount)
	assert.Equal(t, 2, stats.Pending)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 1, stats.CompletedPerHour)
	assert.Greater(t, stats.OldestPendingAge, time.Duration(0))
}
