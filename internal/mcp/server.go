// Package mcp exposes the job queue as MCP tools over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/skybridgehq/skybridge/internal/models"
	"github.com/skybridgehq/skybridge/internal/queue"
)

// Server wraps the queue and exposes it as MCP tools.
type Server struct {
	queue queue.Queue
}

// NewServer creates the MCP server wrapper.
func NewServer(q queue.Queue) *Server {
	return &Server{queue: q}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("skybridge", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.listJobsTool())
	srv.AddTool(s.getJobTool())
	srv.AddTool(s.enqueueJobTool())
	srv.AddTool(s.queueStatsTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// skybridge_list_jobs
func (s *Server) listJobsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("skybridge_list_jobs",
		mcp.WithDescription("List jobs in the queue, newest first. Returns a JSON array with job_id, status, event type, issue number, and timestamps."),
		mcp.WithString("status", mcp.Description("Filter by status: pending, processing, completed, or failed")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of jobs to return (default 20)")),
	)
	return tool, s.handleListJobs
}

func (s *Server) handleListJobs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := models.JobStatus(request.GetString("status", ""))
	limit := request.GetInt("limit", 20)

	jobs, err := s.queue.ListJobs(ctx, status, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list jobs: %v", err)), nil
	}

	type jobOut struct {
		JobID       string `json:"job_id"`
		Status      string `json:"status"`
		EventType   string `json:"event_type"`
		IssueNumber int    `json:"issue_number,omitempty"`
		Autonomy    string `json:"autonomy_level,omitempty"`
		CreatedAt   string `json:"created_at"`
		Error       string `json:"error_message,omitempty"`
	}

	out := make([]jobOut, len(jobs))
	for i, j := range jobs {
		out[i] = jobOut{
			JobID:       j.JobID,
			Status:      string(j.Status),
			EventType:   j.Event.EventType,
			IssueNumber: j.IssueNumber,
			Autonomy:    string(j.Autonomy),
			CreatedAt:   j.CreatedAt.Format("2006-01-02 15:04:05"),
			Error:       j.ErrorMessage,
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal jobs: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// skybridge_get_job
func (s *Server) getJobTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("skybridge_get_job",
		mcp.WithDescription("Get the full record of one job including event payload, snapshots, and metadata."),
		mcp.WithString("job_id", mcp.Required(), mcp.Description("Job ID (ULID)")),
	)
	return tool, s.handleGetJob
}

func (s *Server) handleGetJob(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID, err := request.RequireString("job_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: job_id"), nil
	}

	job, err := s.queue.GetJob(ctx, jobID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get job: %v", err)), nil
	}
	if job == nil {
		return mcp.NewToolResultError(fmt.Sprintf("job not found: %s", jobID)), nil
	}

	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal job: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// skybridge_enqueue_job
func (s *Server) enqueueJobTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("skybridge_enqueue_job",
		mcp.WithDescription("Enqueue a job manually, as if a webhook had arrived. Useful for re-running work on an issue."),
		mcp.WithString("event_type", mcp.Required(), mcp.Description("Event type, e.g. issues.opened")),
		mcp.WithNumber("issue_number", mcp.Description("GitHub issue number")),
		mcp.WithString("autonomy_level", mcp.Description("analysis, development, review, or publish")),
	)
	return tool, s.handleEnqueueJob
}

func (s *Server) handleEnqueueJob(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	eventType, err := request.RequireString("event_type")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: event_type"), nil
	}

	ev := models.NewWebhookEvent(models.SourceGitHub, eventType, "mcp-"+models.NewULID(), json.RawMessage(`{}`))
	job := models.NewJob(ev)
	job.IssueNumber = request.GetInt("issue_number", 0)

	if level := request.GetString("autonomy_level", ""); level != "" {
		autonomy, err := models.ParseAutonomyLevel(level)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		job.Autonomy = autonomy
	}

	if _, err := s.queue.Enqueue(ctx, job); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to enqueue: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf(`{"job_id":%q,"status":"pending"}`, job.JobID)), nil
}

// skybridge_queue_stats
func (s *Server) queueStatsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("skybridge_queue_stats",
		mcp.WithDescription("Get queue activity metrics: per-status counts, throughput, latency, and oldest pending age."),
	)
	return tool, s.handleQueueStats
}

func (s *Server) handleQueueStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	provider, ok := s.queue.(queue.StatsProvider)
	if !ok {
		return mcp.NewToolResultError("queue backend does not expose stats"), nil
	}
	stats, err := provider.Stats(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get stats: %v", err)), nil
	}
	data, err := json.Marshal(stats)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal stats: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
