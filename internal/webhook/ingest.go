package webhook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/skybridgehq/skybridge/internal/board"
	"github.com/skybridgehq/skybridge/internal/models"
	"github.com/skybridgehq/skybridge/internal/queue"
)

// Ingestor deduplicates deliveries and enqueues jobs for them. It is the
// boundary where a retried webhook becomes a no-op instead of a second job.
type Ingestor struct {
	queue  queue.Queue
	lists  board.ListMapping
	logger *slog.Logger
}

// NewIngestor creates an ingestor over the given queue.
func NewIngestor(q queue.Queue, lists board.ListMapping, logger *slog.Logger) *Ingestor {
	if lists == nil {
		lists = board.DefaultListMapping()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{queue: q, lists: lists, logger: logger}
}

// Ingest enqueues a job for the event unless its delivery was already seen.
// Returns the job and whether one was actually enqueued.
func (i *Ingestor) Ingest(ctx context.Context, ev *models.WebhookEvent, configure func(*models.Job)) (*models.Job, bool, error) {
	seen, err := i.queue.ExistsByDelivery(ctx, ev.EventID)
	if err != nil {
		return nil, false, fmt.Errorf("check delivery: %w", err)
	}
	if seen {
		i.logger.Info("duplicate delivery ignored", "event_id", ev.EventID, "event_type", ev.EventType)
		return nil, false, nil
	}

	job := models.NewJob(*ev)
	if configure != nil {
		configure(job)
	}
	if _, err := i.queue.Enqueue(ctx, job); err != nil {
		return nil, false, fmt.Errorf("enqueue job: %w", err)
	}

	i.logger.Info("job enqueued",
		"job_id", job.JobID, "event_type", ev.EventType, "event_id", ev.EventID)
	return job, true, nil
}

// IngestGitHub enqueues a job for a GitHub issues event.
func (i *Ingestor) IngestGitHub(ctx context.Context, ev *models.WebhookEvent, issueNumber int) (*models.Job, bool, error) {
	return i.Ingest(ctx, ev, func(job *models.Job) {
		job.IssueNumber = issueNumber
	})
}

// IngestTrello enqueues a job for a card move, deriving the autonomy level
// from the destination list.
func (i *Ingestor) IngestTrello(ctx context.Context, ev *models.WebhookEvent, cardID, listName string) (*models.Job, bool, error) {
	return i.Ingest(ctx, ev, func(job *models.Job) {
		job.Autonomy = i.lists.Autonomy(listName)
		job.SetMeta(models.MetaTrelloCardID, cardID)
	})
}
