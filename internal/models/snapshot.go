package models

import "time"

// RepoSnapshot captures repository state at a point in time. The orchestrator
// records one before and one after each agent run.
type RepoSnapshot struct {
	CommitHash     string    `json:"commit_hash"`
	Branch         string    `json:"branch"`
	Dirty          bool      `json:"dirty"`
	StagedCount    int       `json:"staged_count"`
	UnstagedCount  int       `json:"unstaged_count"`
	UntrackedCount int       `json:"untracked_count"`
	CapturedAt     time.Time `json:"captured_at"`
}
