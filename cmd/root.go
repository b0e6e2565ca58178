package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/skybridgehq/skybridge/internal/orchestrator"
	"github.com/skybridgehq/skybridge/internal/output"
	"github.com/skybridgehq/skybridge/internal/queue"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui       *output.UI
	jobQueue queue.Queue

	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "skybridge",
	Short: "Skybridge - webhook-driven automation bridging issues, Kanban, and AI agents",
	Long: `skybridge turns GitHub issues and Kanban card moves into durable jobs,
runs an AI coding agent against an isolated git worktree for each one,
and reports progress back to the board.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/skybridge/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "skybridge")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("SKYBRIDGE")
	viper.AutomaticEnv()

	// Defaults via viper.SetDefault()
	home, _ := os.UserHomeDir()
	defaultStateDir := filepath.Join(home, ".config", "skybridge")

	viper.SetDefault("state_dir", defaultStateDir)
	viper.SetDefault("queue.backend", "file")
	viper.SetDefault("queue.dir", filepath.Join(defaultStateDir, "queue"))
	viper.SetDefault("queue.db_path", filepath.Join(defaultStateDir, "skybridge.db"))
	viper.SetDefault("repo.path", "")
	viper.SetDefault("repo.github", "")
	viper.SetDefault("worktree.dir", filepath.Join(defaultStateDir, "worktrees"))
	viper.SetDefault("agent.command", "claude")
	viper.SetDefault("agent.args", []string{})
	viper.SetDefault("agent.skills_file", "")
	viper.SetDefault("webhook.addr", ":8090")
	viper.SetDefault("webhook.github_secret", "")
	viper.SetDefault("trello.key", "")
	viper.SetDefault("trello.token", "")
	viper.SetDefault("worker.poll_timeout", "2s")
	viper.SetDefault("worker.pid_file", filepath.Join(defaultStateDir, "worker.pid"))
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose

	// The queue opens lazily so config/version commands run without one.
}

// getQueue returns the shared queue, opening the configured backend on
// first call.
func getQueue() (queue.Queue, error) {
	if jobQueue != nil {
		return jobQueue, nil
	}

	switch backend := viper.GetString("queue.backend"); backend {
	case "file":
		q, err := queue.NewFileQueue(viper.GetString("queue.dir"))
		if err != nil {
			return nil, fmt.Errorf("open file queue: %w", err)
		}
		jobQueue = q
	case "sqlite":
		q, err := queue.NewSQLiteQueue(viper.GetString("queue.db_path"))
		if err != nil {
			return nil, fmt.Errorf("open sqlite queue: %w", err)
		}
		if err := q.Migrate(rootCmd.Context()); err != nil {
			_ = q.Close()
			return nil, fmt.Errorf("migrate queue database: %w", err)
		}
		jobQueue = q
	default:
		return nil, fmt.Errorf("unknown queue backend: %q (want file or sqlite)", backend)
	}
	return jobQueue, nil
}

// getSkills loads the skill mapping, applying the configured overrides file
// when one is set.
func getSkills() (orchestrator.SkillSet, error) {
	path := viper.GetString("agent.skills_file")
	if path == "" {
		return orchestrator.DefaultSkills(), nil
	}
	return orchestrator.LoadSkillsFile(path)
}

// newLogger builds the slog logger used by the long-running commands.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func pollTimeout() time.Duration {
	d := viper.GetDuration("worker.poll_timeout")
	if d <= 0 {
		d = 2 * time.Second
	}
	return d
}
