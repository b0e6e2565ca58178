// Package agent runs AI coding agents against job worktrees.
package agent

import (
	"context"
	"time"

	"github.com/skybridgehq/skybridge/internal/models"
)

// Facade is the single entry point for running an agent. Implementations
// must move the execution to running before doing work and to exactly one
// terminal state before returning. A hung agent must never leave the caller
// waiting past the skill timeout: on expiry the underlying process is killed
// and a well-formed error is returned.
type Facade interface {
	Spawn(ctx context.Context, job *models.Job, skill, worktreePath string, extra map[string]string) (*models.AgentExecution, error)
}

// TimeoutTable maps skill names to execution timeouts, with a fallback for
// unmapped skills.
type TimeoutTable struct {
	Seconds        map[string]int `yaml:"seconds"`
	DefaultSeconds int            `yaml:"default_seconds"`
}

// DefaultTimeouts reflects how long each built-in skill is expected to run.
func DefaultTimeouts() TimeoutTable {
	return TimeoutTable{
		Seconds: map[string]int{
			"hello-world":   60,
			"analyze-issue": 300,
			"resolve-issue": 600,
			"review-issue":  600,
			"refactor":      900,
		},
		DefaultSeconds: 600,
	}
}

// For returns the timeout for a skill, falling back to the default.
func (t TimeoutTable) For(skill string) time.Duration {
	if secs, ok := t.Seconds[skill]; ok && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	secs := t.DefaultSeconds
	if secs <= 0 {
		secs = 600
	}
	return time.Duration(secs) * time.Second
}
