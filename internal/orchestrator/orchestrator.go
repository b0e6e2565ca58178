// Package orchestrator drives claimed jobs through the worktree, agent, and
// validation pipeline.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/skybridgehq/skybridge/internal/agent"
	"github.com/skybridgehq/skybridge/internal/models"
	"github.com/skybridgehq/skybridge/internal/queue"
	"github.com/skybridgehq/skybridge/internal/worktree"
)

// ProgressReporter receives best-effort stage notifications while a job runs.
// Reporter errors are logged and never fail the job.
type ProgressReporter interface {
	Report(ctx context.Context, job *models.Job, stage, detail string) error
}

// NopReporter discards progress notifications.
type NopReporter struct{}

func (NopReporter) Report(context.Context, *models.Job, string, string) error { return nil }

// Summary is what ExecuteJob hands back to its caller.
type Summary struct {
	JobID        string                 `json:"job_id"`
	Status       models.JobStatus       `json:"status"`
	Skill        string                 `json:"skill,omitempty"`
	Skipped      bool                   `json:"skipped,omitempty"`
	WorktreePath string                 `json:"worktree_path,omitempty"`
	BranchName   string                 `json:"branch_name,omitempty"`
	Execution    *models.AgentExecution `json:"execution,omitempty"`
}

// Orchestrator executes one job at a time through the fixed pipeline:
// resolve skill, create worktree, snapshot, spawn agent, validate, snapshot,
// complete. Worktree, snapshot, and spawn failures are terminal for the job;
// validation failure only annotates it. Worktrees are never deleted.
type Orchestrator struct {
	queue      queue.Queue
	worktrees  worktree.Manager
	agents     agent.Facade
	executions *agent.ExecutionStore
	skills     SkillSet
	progress   ProgressReporter
	logger     *slog.Logger
}

// Options configures an Orchestrator. Queue, Worktrees, and Agents are
// required; the rest default to skip-nothing built-ins.
type Options struct {
	Queue      queue.Queue
	Worktrees  worktree.Manager
	Agents     agent.Facade
	Executions *agent.ExecutionStore
	Skills     SkillSet
	Progress   ProgressReporter
	Logger     *slog.Logger
}

// New creates an orchestrator.
func New(opts Options) *Orchestrator {
	if opts.Skills.Skills == nil {
		opts.Skills = DefaultSkills()
	}
	if opts.Progress == nil {
		opts.Progress = NopReporter{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Orchestrator{
		queue:      opts.Queue,
		worktrees:  opts.Worktrees,
		agents:     opts.Agents,
		executions: opts.Executions,
		skills:     opts.Skills,
		progress:   opts.Progress,
		logger:     opts.Logger,
	}
}

// ExecuteJob runs the pipeline for a previously claimed job.
func (o *Orchestrator) ExecuteJob(ctx context.Context, jobID string) (*Summary, error) {
	job, err := o.queue.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("fetch job: %w", err)
	}
	if job == nil {
		return nil, fmt.Errorf("job %s not found", jobID)
	}

	log := o.logger.With("job_id", job.JobID, "event_type", job.Event.EventType)

	skill := o.skills.Resolve(job.Event.EventType, job.Autonomy)
	if skill == SkillNone {
		log.Info("no skill mapped, skipping job")
		o.report(ctx, job, "skipped", "no skill mapped for event type")
		if err := o.queue.Complete(ctx, job.JobID, map[string]string{models.MetaSkipped: "true"}); err != nil {
			return nil, fmt.Errorf("complete skipped job: %w", err)
		}
		return &Summary{JobID: job.JobID, Status: models.JobStatusCompleted, Skipped: true}, nil
	}

	job.SetMeta(models.MetaSkill, skill)
	o.report(ctx, job, "started", "running skill "+skill)

	path, branch, err := o.worktrees.Create(ctx, job)
	if err != nil {
		return nil, o.fail(ctx, job, fmt.Errorf("create worktree: %w", err))
	}
	job.WorktreePath = path
	job.BranchName = branch
	if err := o.queue.UpdateJob(ctx, job); err != nil {
		return nil, o.fail(ctx, job, fmt.Errorf("persist worktree assignment: %w", err))
	}

	initial, err := o.worktrees.Snapshot(ctx, path)
	if err != nil {
		return nil, o.fail(ctx, job, fmt.Errorf("initial snapshot: %w", err))
	}
	job.InitialSnap = initial
	if err := o.queue.UpdateJob(ctx, job); err != nil {
		return nil, o.fail(ctx, job, fmt.Errorf("persist initial snapshot: %w", err))
	}

	execution, spawnErr := o.agents.Spawn(ctx, job, skill, path, nil)
	if execution != nil && o.executions != nil {
		if err := o.executions.Save(execution); err != nil {
			log.Warn("failed to persist execution record", "error", err)
		}
	}
	if spawnErr != nil {
		return nil, o.fail(ctx, job, fmt.Errorf("spawn agent: %w", spawnErr))
	}

	// Validation is advisory. It never removes the worktree and never
	// fails the job; a dirty or unreadable worktree only annotates it.
	if report, err := o.worktrees.Validate(ctx, path, worktree.ValidateOptions{DryRun: true}); err != nil {
		log.Warn("worktree validation failed", "error", err)
		job.SetMeta(models.MetaValidationWarning, err.Error())
	} else if !report.Clean {
		log.Info("worktree left dirty by agent",
			"staged", report.Staged, "unstaged", report.Unstaged, "untracked", report.Untracked)
	}

	final, err := o.worktrees.Snapshot(ctx, path)
	if err != nil {
		return nil, o.fail(ctx, job, fmt.Errorf("final snapshot: %w", err))
	}
	job.FinalSnap = final
	if err := o.queue.UpdateJob(ctx, job); err != nil {
		return nil, o.fail(ctx, job, fmt.Errorf("persist final snapshot: %w", err))
	}

	result := map[string]string{models.MetaSkill: skill}
	if execution.Result != nil {
		result["changes_made"] = strconv.FormatBool(execution.Result.ChangesMade)
		if execution.Result.CommitHash != "" {
			result["commit_hash"] = execution.Result.CommitHash
		}
		if execution.Result.PRURL != "" {
			result["pr_url"] = execution.Result.PRURL
		}
	}
	if err := o.queue.Complete(ctx, job.JobID, result); err != nil {
		return nil, fmt.Errorf("complete job: %w", err)
	}

	o.report(ctx, job, "completed", "skill "+skill+" finished")
	log.Info("job completed", "skill", skill, "worktree", path)

	return &Summary{
		JobID:        job.JobID,
		Status:       models.JobStatusCompleted,
		Skill:        skill,
		WorktreePath: path,
		BranchName:   branch,
		Execution:    execution,
	}, nil
}

// fail marks the job failed and returns the pipeline error. The queue's own
// failure, should Fail itself break, is logged but the pipeline error wins.
func (o *Orchestrator) fail(ctx context.Context, job *models.Job, pipelineErr error) error {
	o.logger.Error("job failed", "job_id", job.JobID, "error", pipelineErr)
	o.report(ctx, job, "failed", pipelineErr.Error())
	if err := o.queue.Fail(ctx, job.JobID, pipelineErr.Error()); err != nil {
		o.logger.Error("failed to mark job failed", "job_id", job.JobID, "error", err)
	}
	return pipelineErr
}

// report delivers a progress notification, swallowing reporter errors.
func (o *Orchestrator) report(ctx context.Context, job *models.Job, stage, detail string) {
	if err := o.progress.Report(ctx, job, stage, detail); err != nil {
		o.logger.Warn("progress report failed", "job_id", job.JobID, "stage", stage, "error", err)
	}
}
