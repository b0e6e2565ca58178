package webhook

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/skybridgehq/skybridge/internal/models"
	"github.com/skybridgehq/skybridge/internal/queue"
)

// maxBodyBytes caps webhook request bodies.
const maxBodyBytes = 1 << 20

// Server handles webhook ingestion and the read-only status API.
type Server struct {
	queue        queue.Queue
	ingestor     *Ingestor
	githubSecret string
	logger       *slog.Logger
}

// NewServer creates the HTTP server. An empty githubSecret disables GitHub
// signature verification.
func NewServer(q queue.Queue, ingestor *Ingestor, githubSecret string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{queue: q, ingestor: ingestor, githubSecret: githubSecret, logger: logger}
}

// Router returns an http.Handler for all routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /webhooks/github", s.handleGitHub)
	mux.HandleFunc("POST /webhooks/trello", s.handleTrello)
	mux.HandleFunc("HEAD /webhooks/trello", s.handleTrelloPing)

	mux.HandleFunc("GET /api/v1/jobs", s.listJobs)
	mux.HandleFunc("GET /api/v1/jobs/{id}", s.getJob)
	mux.HandleFunc("GET /api/v1/queue/stats", s.queueStats)
	mux.HandleFunc("GET /api/v1/health", s.health)

	return mux
}

func (s *Server) handleGitHub(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}

	if err := VerifyGitHubSignature(s.githubSecret, body, r.Header.Get("X-Hub-Signature-256")); err != nil {
		s.logger.Warn("rejected github delivery", "error", err)
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	eventName := r.Header.Get("X-GitHub-Event")
	deliveryID := r.Header.Get("X-GitHub-Delivery")

	ev, issueNumber, err := ParseGitHubEvent(eventName, deliveryID, body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if ev == nil {
		// Non-issues events are acknowledged so GitHub stops retrying.
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored", "event": eventName})
		return
	}

	job, enqueued, err := s.ingestor.IngestGitHub(r.Context(), ev, issueNumber)
	if err != nil {
		s.logger.Error("github ingestion failed", "error", err)
		writeError(w, http.StatusInternalServerError, "ingestion failed")
		return
	}
	if !enqueued {
		writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "enqueued", "job_id": job.JobID})
}

func (s *Server) handleTrello(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}

	ev, cardID, listName, err := ParseTrelloEvent(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if ev == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	job, enqueued, err := s.ingestor.IngestTrello(r.Context(), ev, cardID, listName)
	if err != nil {
		s.logger.Error("trello ingestion failed", "error", err)
		writeError(w, http.StatusInternalServerError, "ingestion failed")
		return
	}
	if !enqueued {
		writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "enqueued", "job_id": job.JobID})
}

// Trello probes webhook endpoints with HEAD before activating them.
func (s *Server) handleTrelloPing(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	var status models.JobStatus
	if v := r.URL.Query().Get("status"); v != "" {
		status = models.JobStatus(v)
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	jobs, err := s.queue.ListJobs(r.Context(), status, limit)
	if err != nil {
		s.logger.Error("list jobs failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list jobs failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs, "count": len(jobs)})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.queue.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		s.logger.Error("get job failed", "error", err)
		writeError(w, http.StatusInternalServerError, "get job failed")
		return
	}
	if job == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) queueStats(w http.ResponseWriter, r *http.Request) {
	provider, ok := s.queue.(queue.StatsProvider)
	if !ok {
		writeError(w, http.StatusNotImplemented, "backend does not expose stats")
		return
	}
	stats, err := provider.Stats(r.Context())
	if err != nil {
		s.logger.Error("queue stats failed", "error", err)
		writeError(w, http.StatusInternalServerError, "stats failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	size, err := s.queue.Size(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "queue unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "pending": size})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
