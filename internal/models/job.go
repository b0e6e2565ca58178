package models

import (
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// JobStatus represents the lifecycle state of a job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status is a terminal state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Metadata keys used for cross-cutting annotations on jobs.
const (
	MetaTrelloCardID      = "trello_card_id"
	MetaSkipped           = "skipped"
	MetaSkill             = "skill"
	MetaValidationWarning = "validation_warning"
)

// Job is one unit of work derived from a webhook event. The event is owned
// by the job and never changes after creation; status moves only
// pending -> processing -> completed|failed.
type Job struct {
	JobID         string            `json:"job_id"`
	CorrelationID string            `json:"correlation_id"`
	Event         WebhookEvent      `json:"event"`
	Status        JobStatus         `json:"status"`
	WorktreePath  string            `json:"worktree_path,omitempty"`
	BranchName    string            `json:"branch_name,omitempty"`
	IssueNumber   int               `json:"issue_number,omitempty"`
	Autonomy      AutonomyLevel     `json:"autonomy_level,omitempty"`
	InitialSnap   *RepoSnapshot     `json:"initial_snapshot,omitempty"`
	FinalSnap     *RepoSnapshot     `json:"final_snapshot,omitempty"`
	Metadata      map[string]string `json:"metadata"`
	CreatedAt     time.Time         `json:"created_at"`
	StartedAt     *time.Time        `json:"started_at,omitempty"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
	ErrorMessage  string            `json:"error_message,omitempty"`
}

// NewJob creates a pending job owning the given event. The job ID doubles as
// the correlation ID unless the caller overrides it.
func NewJob(event WebhookEvent) *Job {
	id := NewULID()
	return &Job{
		JobID:         id,
		CorrelationID: id,
		Event:         event,
		Status:        JobStatusPending,
		Metadata:      map[string]string{},
		CreatedAt:     time.Now().UTC(),
	}
}

// SetMeta annotates the job, allocating the metadata map if needed.
// Metadata is the only field still mutable once a job is terminal.
func (j *Job) SetMeta(key, value string) {
	if j.Metadata == nil {
		j.Metadata = map[string]string{}
	}
	j.Metadata[key] = value
}

// NewULID generates a new ULID string.
func NewULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}
