package models

import "time"

// ExecutionState represents the state of one agent run.
type ExecutionState string

const (
	ExecutionCreated   ExecutionState = "created"
	ExecutionRunning   ExecutionState = "running"
	ExecutionCompleted ExecutionState = "completed"
	ExecutionFailed    ExecutionState = "failed"
	ExecutionTimedOut  ExecutionState = "timed_out"
)

// Terminal reports whether the execution state is final.
func (s ExecutionState) Terminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed || s == ExecutionTimedOut
}

// maxThinkingLen caps each recorded reasoning step so an agent streaming
// unbounded output cannot blow up the execution record.
const maxThinkingLen = 2000

// AgentExecution records one agent run against a worktree. It is owned by
// the orchestrator for the duration of a job and persisted keyed by job ID.
type AgentExecution struct {
	ID             string         `json:"id"`
	AgentType      string         `json:"agent_type"`
	JobID          string         `json:"job_id"`
	WorktreePath   string         `json:"worktree_path"`
	Skill          string         `json:"skill"`
	State          ExecutionState `json:"state"`
	Result         *AgentResult   `json:"result,omitempty"`
	Stdout         string         `json:"stdout,omitempty"`
	Stderr         string         `json:"stderr,omitempty"`
	TimeoutSeconds int            `json:"timeout_seconds"`
	CreatedAt      time.Time      `json:"created_at"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
}

// NewAgentExecution creates an execution record in the created state.
func NewAgentExecution(agentType, jobID, worktreePath, skill string, timeoutSeconds int) *AgentExecution {
	return &AgentExecution{
		ID:             NewULID(),
		AgentType:      agentType,
		JobID:          jobID,
		WorktreePath:   worktreePath,
		Skill:          skill,
		State:          ExecutionCreated,
		TimeoutSeconds: timeoutSeconds,
		CreatedAt:      time.Now().UTC(),
	}
}

// Start transitions the execution to running.
func (e *AgentExecution) Start() {
	now := time.Now().UTC()
	e.State = ExecutionRunning
	e.StartedAt = &now
}

// Finish transitions the execution to the given terminal state.
func (e *AgentExecution) Finish(state ExecutionState) {
	now := time.Now().UTC()
	e.State = state
	e.CompletedAt = &now
}

// AgentResult is the structured outcome of one agent run.
type AgentResult struct {
	Success       bool     `json:"success"`
	ChangesMade   bool     `json:"changes_made"`
	FilesCreated  []string `json:"files_created,omitempty"`
	FilesModified []string `json:"files_modified,omitempty"`
	FilesDeleted  []string `json:"files_deleted,omitempty"`
	CommitHash    string   `json:"commit_hash,omitempty"`
	PRURL         string   `json:"pr_url,omitempty"`
	Message       string   `json:"message,omitempty"`
	OutputMessage string   `json:"output_message,omitempty"`
	Thinkings     []string `json:"thinkings,omitempty"`
}

// AddThinking appends a reasoning step, truncated to the per-step cap.
func (r *AgentResult) AddThinking(step string) {
	if len(step) > maxThinkingLen {
		step = step[:maxThinkingLen]
	}
	r.Thinkings = append(r.Thinkings, step)
}
