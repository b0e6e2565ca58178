package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/skybridgehq/skybridge/internal/models"
)

// Queue is the durable job store shared by the ingestion layer and workers.
// Delivery is at-least-once: a job claimed by a crashed worker stays in
// processing and is never silently lost.
type Queue interface {
	// Enqueue persists the job in the pending state. The job is durable
	// before Enqueue returns.
	Enqueue(ctx context.Context, job *models.Job) (string, error)

	// Dequeue atomically claims one pending job and transitions it to
	// processing. At most one caller wins a given job, even across
	// processes. Returns (nil, nil) if no job becomes available within
	// the timeout.
	Dequeue(ctx context.Context, timeout time.Duration) (*models.Job, error)

	// GetJob looks a job up across all states without mutating anything.
	// Returns (nil, nil) when the job does not exist.
	GetJob(ctx context.Context, jobID string) (*models.Job, error)

	// UpdateJob persists worktree assignment, snapshots, autonomy, and
	// metadata mutations made by the claiming worker while the job is
	// processing. It never changes the lifecycle status.
	UpdateJob(ctx context.Context, job *models.Job) error

	// ListJobs returns jobs filtered by status (all statuses when empty),
	// newest first, up to limit (unlimited when <= 0).
	ListJobs(ctx context.Context, status models.JobStatus, limit int) ([]*models.Job, error)

	// Complete transitions processing -> completed. Calling it twice is
	// not an error; the second call is a no-op.
	Complete(ctx context.Context, jobID string, result map[string]string) error

	// Fail transitions processing -> failed and records the error message.
	Fail(ctx context.Context, jobID string, errMsg string) error

	// ExistsByDelivery reports whether any job, in any state, was created
	// from the given origin delivery ID. This is the dedup boundary the
	// ingestion layer consults before enqueueing a retried webhook.
	ExistsByDelivery(ctx context.Context, deliveryID string) (bool, error)

	// Size returns the number of pending jobs.
	Size(ctx context.Context) (int, error)

	Close() error
}

// StatsProvider is implemented by backends that expose activity metrics.
type StatsProvider interface {
	Stats(ctx context.Context) (*Stats, error)
}

// QueueError marks a storage durability failure. Callers must assume the
// operation did not happen: either the durable state changed and the call
// returned nil, or it did not and the error is a *QueueError.
type QueueError struct {
	Op  string
	Err error
}

func (e *QueueError) Error() string {
	return fmt.Sprintf("queue %s: %v", e.Op, e.Err)
}

func (e *QueueError) Unwrap() error { return e.Err }

func queueErr(op string, err error) *QueueError {
	return &QueueError{Op: op, Err: err}
}

// claimPollInterval is the sleep between claim attempts while a Dequeue
// timeout has not yet elapsed.
const claimPollInterval = 50 * time.Millisecond
