package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/skybridgehq/skybridge/internal/queue"
)

// Worker is the dequeue-execute loop. Several workers may share one queue;
// the queue's claim semantics guarantee each job lands on exactly one of
// them.
type Worker struct {
	queue       queue.Queue
	orch        *Orchestrator
	logger      *slog.Logger
	pollTimeout time.Duration
}

// NewWorker creates a worker polling the queue with the given timeout per
// dequeue attempt.
func NewWorker(q queue.Queue, orch *Orchestrator, logger *slog.Logger, pollTimeout time.Duration) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if pollTimeout <= 0 {
		pollTimeout = 2 * time.Second
	}
	return &Worker{queue: q, orch: orch, logger: logger, pollTimeout: pollTimeout}
}

// Run processes jobs until the context is cancelled. Per-job failures are
// logged and the loop keeps going; only cancellation stops it.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started", "poll_timeout", w.pollTimeout)
	for {
		if err := ctx.Err(); err != nil {
			w.logger.Info("worker stopping")
			return err
		}

		job, err := w.queue.Dequeue(ctx, w.pollTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			w.logger.Error("dequeue failed", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(w.pollTimeout):
			}
			continue
		}
		if job == nil {
			continue // poll timeout, nothing pending
		}

		w.logger.Info("claimed job", "job_id", job.JobID, "event_type", job.Event.EventType)
		if _, err := w.orch.ExecuteJob(ctx, job.JobID); err != nil {
			w.logger.Error("job execution failed", "job_id", job.JobID, "error", err)
		}
	}
}
