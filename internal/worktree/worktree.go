// Package worktree manages isolated git working directories for job execution.
package worktree

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/skybridgehq/skybridge/internal/models"
)

// ValidateOptions controls post-execution worktree validation.
type ValidateOptions struct {
	// DryRun reports whether the worktree could be removed without
	// actually removing it.
	DryRun bool
	// RequireClean makes a dirty worktree a validation error instead of
	// a reported condition.
	RequireClean bool
}

// ValidationReport summarizes worktree state after an agent run.
type ValidationReport struct {
	Staged    int
	Unstaged  int
	Untracked int
	Clean     bool
	Removable bool
}

// Manager creates and inspects per-job worktrees. Each worktree is owned by
// exactly one job for its entire lifetime and is never removed by the
// pipeline; worktrees are preserved for human inspection.
type Manager interface {
	Create(ctx context.Context, job *models.Job) (path, branch string, err error)
	Snapshot(ctx context.Context, path string) (*models.RepoSnapshot, error)
	Validate(ctx context.Context, path string, opts ValidateOptions) (*ValidationReport, error)
}

// GitManager implements Manager over the git CLI.
type GitManager struct {
	repoPath    string // base repository the worktrees branch from
	worktreeDir string // where per-job worktrees are created
}

// NewGitManager creates a manager for the given base repository.
func NewGitManager(repoPath, worktreeDir string) *GitManager {
	return &GitManager{repoPath: repoPath, worktreeDir: worktreeDir}
}

func gitCmd(ctx context.Context, dir string, args ...string) (string, error) {
	fullArgs := append([]string{"-C", dir}, args...)
	out, err := exec.CommandContext(ctx, "git", fullArgs...).Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("git %s: %s", strings.Join(args, " "), strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Create adds a fresh worktree and branch for the job. The branch name
// carries the issue number when the job has one, otherwise the job ID.
func (m *GitManager) Create(ctx context.Context, job *models.Job) (string, string, error) {
	if err := os.MkdirAll(m.worktreeDir, 0o755); err != nil {
		return "", "", fmt.Errorf("create worktree directory: %w", err)
	}

	branch := fmt.Sprintf("skybridge/job-%s", strings.ToLower(job.JobID))
	if job.IssueNumber > 0 {
		branch = fmt.Sprintf("skybridge/issue-%d", job.IssueNumber)
	}
	path := filepath.Join(m.worktreeDir, strings.ToLower(job.JobID))

	if _, err := gitCmd(ctx, m.repoPath, "worktree", "add", "-b", branch, path); err != nil {
		return "", "", fmt.Errorf("add worktree: %w", err)
	}
	return path, branch, nil
}

// Snapshot captures the worktree's current commit, branch, and dirty-file
// counts.
func (m *GitManager) Snapshot(ctx context.Context, path string) (*models.RepoSnapshot, error) {
	commit, err := gitCmd(ctx, path, "rev-parse", "HEAD")
	if err != nil {
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}
	branch, err := gitCmd(ctx, path, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return nil, fmt.Errorf("resolve branch: %w", err)
	}
	staged, unstaged, untracked, err := m.statusCounts(ctx, path)
	if err != nil {
		return nil, err
	}

	return &models.RepoSnapshot{
		CommitHash:     commit,
		Branch:         branch,
		Dirty:          staged+unstaged+untracked > 0,
		StagedCount:    staged,
		UnstagedCount:  unstaged,
		UntrackedCount: untracked,
		CapturedAt:     time.Now().UTC(),
	}, nil
}

// Validate reports whether the worktree could be safely removed. It never
// removes anything itself; with RequireClean set, a dirty worktree is an
// error.
func (m *GitManager) Validate(ctx context.Context, path string, opts ValidateOptions) (*ValidationReport, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("worktree missing: %w", err)
	}

	staged, unstaged, untracked, err := m.statusCounts(ctx, path)
	if err != nil {
		return nil, err
	}

	report := &ValidationReport{
		Staged:    staged,
		Unstaged:  unstaged,
		Untracked: untracked,
		Clean:     staged+unstaged+untracked == 0,
	}
	report.Removable = report.Clean

	if opts.RequireClean && !report.Clean {
		return report, fmt.Errorf("worktree %s is not clean: %d staged, %d unstaged, %d untracked",
			path, staged, unstaged, untracked)
	}
	return report, nil
}

// statusCounts parses `git status --porcelain` into staged, unstaged, and
// untracked file counts.
func (m *GitManager) statusCounts(ctx context.Context, path string) (staged, unstaged, untracked int, err error) {
	out, err := gitCmd(ctx, path, "status", "--porcelain")
	if err != nil {
		return 0, 0, 0, fmt.Errorf("status: %w", err)
	}
	for line := range strings.SplitSeq(out, "\n") {
		if len(line) < 2 {
			continue
		}
		x, y := line[0], line[1]
		if x == '?' {
			untracked++
			continue
		}
		if x != ' ' {
			staged++
		}
		if y != ' ' {
			unstaged++
		}
	}
	return staged, unstaged, untracked, nil
}
