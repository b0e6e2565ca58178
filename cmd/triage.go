package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/skybridgehq/skybridge/internal/git"
	"github.com/skybridgehq/skybridge/internal/llm"
	"github.com/skybridgehq/skybridge/internal/output"
)

var triageRepo string

var triageCmd = &cobra.Command{
	Use:   "triage <issue-number>",
	Short: "Ask the LLM for an autonomy level and skill for an issue",
	Long: `Fetch a GitHub issue and ask the configured Anthropic model which
autonomy level and skill suit it. The recommendation is advisory; use
'skybridge job enqueue' to act on it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		number, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid issue number: %q", args[0])
		}

		apiKey := viper.GetString("anthropic.api_key")
		if apiKey == "" {
			return fmt.Errorf("anthropic.api_key is not configured")
		}

		repo := triageRepo
		if repo == "" {
			repo = viper.GetString("repo.github")
		}

		gh := git.NewGitHubClient()
		issue, err := gh.Issue(repo, number)
		if err != nil {
			return fmt.Errorf("fetch issue: %w", err)
		}

		client := llm.NewClient(apiKey, viper.GetString("anthropic.model"))
		triage, err := client.TriageIssue(context.Background(), issue.Title, issue.Body)
		if err != nil {
			return fmt.Errorf("triage issue: %w", err)
		}

		ui.Info("Issue #%d: %s", issue.Number, issue.Title)
		ui.Success("autonomy: %s", output.AutonomyColor(string(triage.Autonomy())))
		ui.Success("skill:    %s", triage.Skill)
		if triage.Rationale != "" {
			ui.Info("why: %s", triage.Rationale)
		}
		return nil
	},
}

func init() {
	triageCmd.Flags().StringVar(&triageRepo, "repo", "", "GitHub repository (owner/name), defaults to repo.github")
	rootCmd.AddCommand(triageCmd)
}
