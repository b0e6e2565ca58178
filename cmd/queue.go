package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skybridgehq/skybridge/internal/queue"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect the job queue",
}

var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue activity metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := getQueue()
		if err != nil {
			return err
		}

		provider, ok := q.(queue.StatsProvider)
		if !ok {
			return fmt.Errorf("queue backend does not expose stats")
		}
		stats, err := provider.Stats(context.Background())
		if err != nil {
			return err
		}

		table := ui.Table([]string{"Metric", "Value"})
		table.Append([]string{"pending", fmt.Sprintf("%d", stats.Pending)})
		table.Append([]string{"processing", fmt.Sprintf("%d", stats.Processing)})
		table.Append([]string{"completed", fmt.Sprintf("%d", stats.Completed)})
		table.Append([]string{"failed", fmt.Sprintf("%d", stats.Failed)})
		table.Append([]string{"enqueued total", fmt.Sprintf("%d", stats.EnqueueCount)})
		table.Append([]string{"dequeued total", fmt.Sprintf("%d", stats.DequeueCount)})
		table.Append([]string{"completed/hour", fmt.Sprintf("%d", stats.CompletedPerHour)})
		table.Append([]string{"avg latency", stats.AvgLatency.String()})
		table.Append([]string{"oldest pending", stats.OldestPendingAge.String()})
		table.Append([]string{"disk usage", fmt.Sprintf("%d bytes", stats.DiskUsageBytes)})
		return table.Render()
	},
}

var queueSizeCmd = &cobra.Command{
	Use:   "size",
	Short: "Print the number of pending jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := getQueue()
		if err != nil {
			return err
		}
		size, err := q.Size(context.Background())
		if err != nil {
			return err
		}
		fmt.Println(size)
		return nil
	},
}

func init() {
	queueCmd.AddCommand(queueStatsCmd)
	queueCmd.AddCommand(queueSizeCmd)
	rootCmd.AddCommand(queueCmd)
}
