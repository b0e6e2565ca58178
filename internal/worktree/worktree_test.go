package worktree

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skybridgehq/skybridge/internal/models"
)

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
}

// newTestRepo creates a git repository with one commit.
func newTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	runGit(t, dir, "init", "-b", "main")
	runGit(t, dir, "config", "user.email", "test@example.com")
	runGit(t, dir, "config", "user.name", "test")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0o644))
	runGit(t, dir, "add", "README.md")
	runGit(t, dir, "commit", "-m", "initial")
	return dir
}

func newTestManager(t *testing.T) (*GitManager, string) {
	t.Helper()
	repo := newTestRepo(t)
	wtDir := filepath.Join(t.TempDir(), "worktrees")
	return NewGitManager(repo, wtDir), repo
}

func TestCreateWorktree(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	ev := models.NewWebhookEvent(models.SourceGitHub, "issues.opened", "d-1", json.RawMessage(`{}`))
	job := models.NewJob(ev)
	job.IssueNumber = 42

	path, branch, err := m.Create(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, "skybridge/issue-42", branch)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// The worktree is checked out on the new branch.
	snap, err := m.Snapshot(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "skybridge/issue-42", snap.Branch)
	assert.NotEmpty(t, snap.CommitHash)
	assert.False(t, snap.Dirty)
}

func TestCreateWorktreeWithoutIssue(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	job := models.NewJob(models.NewWebhookEvent(models.SourceTrello, "card.moved", "d-2", json.RawMessage(`{}`)))
	_, branch, err := m.Create(ctx, job)
	require.NoError(t, err)
	assert.Contains(t, branch, "skybridge/job-")
}

func TestSnapshotCountsDirtyFiles(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	job := models.NewJob(models.NewWebhookEvent(models.SourceGitHub, "issues.opened", "d-3", json.RawMessage(`{}`)))
	path, _, err := m.Create(ctx, job)
	require.NoError(t, err)

	// One untracked, one staged, one unstaged change.
	require.NoError(t, os.WriteFile(filepath.Join(path, "new.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(path, "staged.txt"), []byte("y"), 0o644))
	runGit(t, path, "add", "staged.txt")
	require.NoError(t, os.WriteFile(filepath.Join(path, "README.md"), []byte("changed\n"), 0o644))

	snap, err := m.Snapshot(ctx, path)
	require.NoError(t, err)
	assert.True(t, snap.Dirty)
	assert.Equal(t, 1, snap.UntrackedCount)
	assert.Equal(t, 1, snap.StagedCount)
	assert.Equal(t, 1, snap.UnstagedCount)
}

func TestValidateNeverRemoves(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	job := models.NewJob(models.NewWebhookEvent(models.SourceGitHub, "issues.opened", "d-4", json.RawMessage(`{}`)))
	path, _, err := m.Create(ctx, job)
	require.NoError(t, err)

	report, err := m.Validate(ctx, path, ValidateOptions{DryRun: true})
	require.NoError(t, err)
	assert.True(t, report.Clean)
	assert.True(t, report.Removable)

	// Still on disk afterwards.
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestValidateDirtyWorktree(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	job := models.NewJob(models.NewWebhookEvent(models.SourceGitHub, "issues.opened", "d-5", json.RawMessage(`{}`)))
	path, _, err := m.Create(ctx, job)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(path, "scratch.txt"), []byte("x"), 0o644))

	report, err := m.Validate(ctx, path, ValidateOptions{DryRun: true, RequireClean: false})
	require.NoError(t, err)
	assert.False(t, report.Clean)
	assert.False(t, report.Removable)
	assert.Equal(t, 1, report.Untracked)

	// RequireClean turns the same condition into an error.
	_, err = m.Validate(ctx, path, ValidateOptions{DryRun: true, RequireClean: true})
	assert.Error(t, err)
}

func TestValidateMissingWorktree(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.Validate(context.Background(), filepath.Join(t.TempDir(), "nope"), ValidateOptions{DryRun: true})
	assert.Error(t, err)
}
