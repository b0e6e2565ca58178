package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage skybridge configuration.

Running bare 'skybridge config' is the same as 'skybridge config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		dir := filepath.Join(home, ".config", "skybridge")
		path := filepath.Join(dir, "config.yaml")

		if _, err := os.Stat(path); err == nil && !configForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(configTemplate), 0o644); err != nil {
			return err
		}
		ui.Success("Wrote %s", path)
		return nil
	},
}

func configShowRun() error {
	if f := viper.ConfigFileUsed(); f != "" {
		ui.Info("Config file: %s", f)
	} else {
		ui.Info("No config file found; showing defaults and environment")
	}

	data, err := yaml.Marshal(viper.AllSettings())
	if err != nil {
		return err
	}
	fmt.Print(string(data))
	return nil
}

const configTemplate = `# skybridge configuration
state_dir: ~/.config/skybridge

queue:
  backend: file # file or sqlite
  dir: ~/.config/skybridge/queue
  db_path: ~/.config/skybridge/skybridge.db

repo:
  path: "" # base git repository the worktrees branch from
  github: "" # owner/name, used by 'skybridge triage'

worktree:
  dir: ~/.config/skybridge/worktrees

agent:
  command: claude
  args: []
  skills_file: "" # optional YAML overriding the event-type -> skill mapping

webhook:
  addr: ":8090"
  github_secret: "" # HMAC secret; empty disables verification

trello:
  key: ""
  token: ""

worker:
  poll_timeout: 2s
  pid_file: ~/.config/skybridge/worker.pid

anthropic:
  api_key: ""
  model: claude-haiku-4-5-20251001
`

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing config file")
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
