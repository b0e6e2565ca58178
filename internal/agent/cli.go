package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/skybridgehq/skybridge/internal/models"
)

// streamMessage is one line of the agent's stream-json output.
type streamMessage struct {
	Type    string              `json:"type"`
	Text    string              `json:"text,omitempty"`
	Success bool                `json:"success,omitempty"`
	Result  *models.AgentResult `json:"result,omitempty"`
}

// CLIFacade runs an agent as a subprocess in the job's worktree, consuming
// its line-oriented JSON stream. One loop with one deadline covers both
// message reading and completion detection: the loop exits when the terminal
// result message is observed or the deadline fires, never two separate
// waits.
type CLIFacade struct {
	// Command is the agent binary, e.g. "claude".
	Command string
	// Args precede the generated prompt arguments.
	Args []string
	// Timeouts is the per-skill timeout table.
	Timeouts TimeoutTable
}

// NewCLIFacade creates a facade running the given agent command.
func NewCLIFacade(command string, args []string, timeouts TimeoutTable) *CLIFacade {
	return &CLIFacade{Command: command, Args: args, Timeouts: timeouts}
}

// Spawn runs the agent for one job. The returned execution is always in a
// terminal state; the error is non-nil for failed and timed-out runs.
func (f *CLIFacade) Spawn(ctx context.Context, job *models.Job, skill, worktreePath string, extra map[string]string) (*models.AgentExecution, error) {
	timeout := f.Timeouts.For(skill)
	execution := models.NewAgentExecution(f.Command, job.JobID, worktreePath, skill, int(timeout.Seconds()))

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	prompt := buildPrompt(job, skill, extra)
	args := append(append([]string{}, f.Args...), "-p", prompt, "--output-format", "stream-json")

	cmd := exec.CommandContext(runCtx, f.Command, args...)
	cmd.Dir = worktreePath

	var stderr strings.Builder
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		execution.Finish(models.ExecutionFailed)
		return execution, fmt.Errorf("open agent stdout: %w", err)
	}

	execution.Start()
	if err := cmd.Start(); err != nil {
		execution.Finish(models.ExecutionFailed)
		return execution, fmt.Errorf("start agent: %w", err)
	}

	// Feed stdout lines through a channel so the consuming loop below can
	// select against the deadline. The goroutine exits when the process
	// closes stdout, which CommandContext forces on deadline expiry.
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	var result *models.AgentResult
	var captured strings.Builder

consume:
	for {
		select {
		case <-runCtx.Done():
			break consume
		case line, ok := <-lines:
			if !ok {
				break consume // process exited
			}
			captured.WriteString(line)
			captured.WriteString("\n")

			var msg streamMessage
			if err := json.Unmarshal([]byte(line), &msg); err != nil {
				continue // non-JSON noise on stdout
			}
			switch msg.Type {
			case "thinking":
				if result == nil {
					result = &models.AgentResult{}
				}
				result.AddThinking(msg.Text)
			case "result":
				if msg.Result != nil {
					thinkings := []string(nil)
					if result != nil {
						thinkings = result.Thinkings
					}
					result = msg.Result
					result.Thinkings = append(thinkings, result.Thinkings...)
				} else {
					if result == nil {
						result = &models.AgentResult{}
					}
					result.Success = msg.Success
					result.Message = msg.Text
				}
				break consume // terminal message observed
			}
		}
	}

	// Drain whatever the agent still writes after the terminal message so
	// the process cannot block on a full pipe before Wait reaps it.
	go func() {
		for range lines {
		}
	}()

	waitErr := cmd.Wait()
	execution.Stdout = captured.String()
	execution.Stderr = stderr.String()
	execution.Result = result

	if runCtx.Err() == context.DeadlineExceeded {
		execution.Finish(models.ExecutionTimedOut)
		return execution, fmt.Errorf("agent timed out after %s", timeout)
	}
	if result == nil || !result.Success {
		execution.Finish(models.ExecutionFailed)
		if waitErr != nil {
			return execution, fmt.Errorf("agent exited: %w", waitErr)
		}
		msg := "agent reported failure"
		if result != nil && result.Message != "" {
			msg = result.Message
		}
		return execution, fmt.Errorf("%s", msg)
	}

	execution.Finish(models.ExecutionCompleted)
	return execution, nil
}

// buildPrompt assembles the agent prompt from the job and skill.
func buildPrompt(job *models.Job, skill string, extra map[string]string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Skill: %s\n", skill)
	fmt.Fprintf(&sb, "Job: %s\n", job.JobID)
	fmt.Fprintf(&sb, "Event: %s/%s\n", job.Event.Source, job.Event.EventType)
	if job.IssueNumber > 0 {
		fmt.Fprintf(&sb, "Issue: #%d\n", job.IssueNumber)
	}
	if job.Autonomy != "" {
		fmt.Fprintf(&sb, "Autonomy: %s (code changes: %t, auto-commit: %t)\n",
			job.Autonomy, job.Autonomy.AllowsCodeChanges(), job.Autonomy.AllowsAutoCommit())
	}
	for k, v := range extra {
		fmt.Fprintf(&sb, "%s: %s\n", k, v)
	}
	if len(job.Event.Payload) > 0 {
		fmt.Fprintf(&sb, "\nEvent payload:\n%s\n", string(job.Event.Payload))
	}
	return sb.String()
}
