package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skybridgehq/skybridge/internal/models"
	"github.com/skybridgehq/skybridge/internal/output"
)

var (
	jobListStatus string
	jobListLimit  int
	jobShowJSON   bool

	jobEnqueueEvent    string
	jobEnqueueIssue    int
	jobEnqueueAutonomy string
)

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Inspect and manage jobs",
}

var jobListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := getQueue()
		if err != nil {
			return err
		}

		jobs, err := q.ListJobs(context.Background(), models.JobStatus(jobListStatus), jobListLimit)
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			ui.Info("No jobs found.")
			return nil
		}

		table := ui.Table([]string{"ID", "Status", "Event", "Issue", "Autonomy", "Created"})
		for _, j := range jobs {
			issue := ""
			if j.IssueNumber > 0 {
				issue = fmt.Sprintf("#%d", j.IssueNumber)
			}
			table.Append([]string{
				j.JobID,
				output.StatusColor(string(j.Status)),
				j.Event.EventType,
				issue,
				output.AutonomyColor(string(j.Autonomy)),
				j.CreatedAt.Local().Format("2006-01-02 15:04"),
			})
		}
		return table.Render()
	},
}

var jobShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show one job in full",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := getQueue()
		if err != nil {
			return err
		}

		job, err := q.GetJob(context.Background(), args[0])
		if err != nil {
			return err
		}
		if job == nil {
			return fmt.Errorf("job not found: %s", args[0])
		}

		if jobShowJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(job)
		}

		ui.Info("Job %s", output.Cyan(job.JobID))
		ui.Info("  status:    %s", output.StatusColor(string(job.Status)))
		ui.Info("  event:     %s/%s (%s)", job.Event.Source, job.Event.EventType, job.Event.EventID)
		if job.IssueNumber > 0 {
			ui.Info("  issue:     #%d", job.IssueNumber)
		}
		if job.Autonomy != "" {
			ui.Info("  autonomy:  %s", output.AutonomyColor(string(job.Autonomy)))
		}
		if job.WorktreePath != "" {
			ui.Info("  worktree:  %s (branch %s)", job.WorktreePath, job.BranchName)
		}
		if job.ErrorMessage != "" {
			ui.Error("  error:     %s", job.ErrorMessage)
		}
		for k, v := range job.Metadata {
			ui.VerboseLog("meta %s=%s", k, v)
		}
		return nil
	},
}

var jobEnqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Enqueue a job manually, as if a webhook had arrived",
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := getQueue()
		if err != nil {
			return err
		}

		ev := models.NewWebhookEvent(models.SourceGitHub, jobEnqueueEvent,
			"manual-"+models.NewULID(), json.RawMessage(`{}`))
		job := models.NewJob(ev)
		job.IssueNumber = jobEnqueueIssue

		if jobEnqueueAutonomy != "" {
			autonomy, err := models.ParseAutonomyLevel(jobEnqueueAutonomy)
			if err != nil {
				return err
			}
			job.Autonomy = autonomy
		}

		id, err := q.Enqueue(context.Background(), job)
		if err != nil {
			return err
		}
		ui.Success("Enqueued job %s", id)
		return nil
	},
}

func init() {
	jobListCmd.Flags().StringVar(&jobListStatus, "status", "", "Filter by status (pending, processing, completed, failed)")
	jobListCmd.Flags().IntVar(&jobListLimit, "limit", 20, "Maximum jobs to show")

	jobShowCmd.Flags().BoolVar(&jobShowJSON, "json", false, "Print the raw job document")

	jobEnqueueCmd.Flags().StringVar(&jobEnqueueEvent, "event", "issues.opened", "Event type")
	jobEnqueueCmd.Flags().IntVar(&jobEnqueueIssue, "issue", 0, "GitHub issue number")
	jobEnqueueCmd.Flags().StringVar(&jobEnqueueAutonomy, "autonomy", "", "Autonomy level (analysis, development, review, publish)")

	jobCmd.AddCommand(jobListCmd)
	jobCmd.AddCommand(jobShowCmd)
	jobCmd.AddCommand(jobEnqueueCmd)
	rootCmd.AddCommand(jobCmd)
}
