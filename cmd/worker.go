package cmd

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/skybridgehq/skybridge/internal/agent"
	"github.com/skybridgehq/skybridge/internal/board"
	"github.com/skybridgehq/skybridge/internal/daemon"
	"github.com/skybridgehq/skybridge/internal/orchestrator"
	"github.com/skybridgehq/skybridge/internal/worktree"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the job worker",
	Long: `Run the worker loop: claim jobs from the queue, create a worktree for
each, run the agent, and record the outcome. Stops on SIGINT/SIGTERM.

Several workers may share one queue; each job is claimed by exactly one.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		repoPath := viper.GetString("repo.path")
		if repoPath == "" {
			return fmt.Errorf("repo.path is not configured")
		}

		q, err := getQueue()
		if err != nil {
			return err
		}
		defer q.Close()

		skills, err := getSkills()
		if err != nil {
			return err
		}

		pidFile := daemon.NewPIDFile(viper.GetString("worker.pid_file"))
		if err := pidFile.Acquire(); err != nil {
			return fmt.Errorf("acquire PID file: %w", err)
		}
		defer func() { _ = pidFile.Remove() }()

		logger := newLogger()

		executions, err := agent.NewExecutionStore(filepath.Join(viper.GetString("state_dir"), "executions"))
		if err != nil {
			return err
		}

		var progress orchestrator.ProgressReporter
		if key, token := viper.GetString("trello.key"), viper.GetString("trello.token"); key != "" && token != "" {
			progress = board.NewCardTracker(board.NewTrelloClient(key, token), logger)
		} else {
			progress = board.NewCardTracker(board.NewLoggingClient(logger), logger)
		}

		orch := orchestrator.New(orchestrator.Options{
			Queue:      q,
			Worktrees:  worktree.NewGitManager(repoPath, viper.GetString("worktree.dir")),
			Agents:     agent.NewCLIFacade(viper.GetString("agent.command"), viper.GetStringSlice("agent.args"), skills.Timeouts),
			Executions: executions,
			Skills:     skills,
			Progress:   progress,
			Logger:     logger,
		})

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		w := orchestrator.NewWorker(q, orch, logger, pollTimeout())
		if err := w.Run(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
