package cmd

import (
	"github.com/spf13/cobra"

	"github.com/skybridgehq/skybridge/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP server over stdio",
	Long: `Run an MCP server exposing the job queue as tools, so an agent or
editor can list jobs, inspect them, enqueue work, and read queue stats.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := getQueue()
		if err != nil {
			return err
		}
		defer q.Close()

		return mcp.NewServer(q).ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
