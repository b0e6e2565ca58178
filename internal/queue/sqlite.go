package queue

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/skybridgehq/skybridge/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// deliveryTTL is how long webhook delivery IDs are remembered for dedup.
// Origin systems retry deliveries within hours, not days.
const deliveryTTL = 24 * time.Hour

// SQLiteQueue implements Queue over modernc.org/sqlite (pure Go, no CGO).
//
// SQLite has no SELECT ... FOR UPDATE SKIP LOCKED, so the claim uses a
// conditional UPDATE whose WHERE clause re-validates status='pending'
// atomically with the write. A zero affected-row count means another
// claimant won the race and the select is retried.
type SQLiteQueue struct {
	db *sql.DB
}

// NewSQLiteQueue opens (or creates) a SQLite-backed queue at the given path.
func NewSQLiteQueue(dbPath string) (*SQLiteQueue, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single connection
	// serializes all DB access through Go's connection pool, preventing
	// "database is locked" errors from concurrent workers in-process.
	db.SetMaxOpenConns(1)

	// WAL reduces reader/writer contention but is best-effort: some
	// filesystems (network mounts) reject it, and the queue still works
	// in rollback-journal mode.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		slog.Warn("sqlite queue: WAL mode unavailable, continuing without it", "error", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return &SQLiteQueue{db: db}, nil
}

// Migrate runs all embedded SQL migration files in order, then prunes
// expired delivery-tracking rows.
func (q *SQLiteQueue) Migrate(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		var count int
		err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := q.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := q.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	if _, err := q.db.ExecContext(ctx,
		"DELETE FROM delivery_tracking WHERE expires_at < ?", time.Now().UTC()); err != nil {
		return fmt.Errorf("prune delivery tracking: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (q *SQLiteQueue) Close() error {
	return q.db.Close()
}

func marshalJSON(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Enqueue inserts the job row and its delivery-tracking row in one
// transaction; the commit is the durability point.
func (q *SQLiteQueue) Enqueue(ctx context.Context, job *models.Job) (string, error) {
	job.Status = models.JobStatusPending

	metadata, err := marshalJSON(job.Metadata)
	if err != nil {
		return "", queueErr("enqueue", err)
	}
	if metadata == "" {
		metadata = "{}"
	}
	payload := string(job.Event.Payload)
	if payload == "" {
		payload = "{}"
	}

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return "", queueErr("enqueue", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO jobs (id, correlation_id, status, event_source, event_type, event_id, payload, signature, received_at, issue_number, autonomy_level, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.JobID, job.CorrelationID, string(job.Status),
		string(job.Event.Source), job.Event.EventType, job.Event.EventID,
		payload, job.Event.Signature, job.Event.ReceivedAt,
		job.IssueNumber, string(job.Autonomy), metadata, job.CreatedAt,
	)
	if err != nil {
		return "", queueErr("enqueue", err)
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO delivery_tracking (delivery_id, job_id, created_at, expires_at)
		VALUES (?, ?, ?, ?)`,
		job.Event.EventID, job.JobID, now, now.Add(deliveryTTL),
	)
	if err != nil {
		return "", queueErr("enqueue", err)
	}

	if err := bumpMetric(ctx, tx, "enqueue_count"); err != nil {
		return "", queueErr("enqueue", err)
	}

	if err := tx.Commit(); err != nil {
		return "", queueErr("enqueue", err)
	}
	return job.JobID, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func bumpMetric(ctx context.Context, db execer, name string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO job_metrics (metric_name, value) VALUES (?, 1)
		ON CONFLICT(metric_name) DO UPDATE SET value = value + 1`, name)
	return err
}

// Dequeue polls for a pending row until the timeout elapses, claiming via
// conditional UPDATE.
func (q *SQLiteQueue) Dequeue(ctx context.Context, timeout time.Duration) (*models.Job, error) {
	deadline := time.Now().Add(timeout)
	for {
		job, err := q.claimOne(ctx)
		if err != nil {
			return nil, err
		}
		if job != nil {
			return job, nil
		}
		if time.Now().After(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(claimPollInterval):
		}
	}
}

func (q *SQLiteQueue) claimOne(ctx context.Context) (*models.Job, error) {
	for {
		var id string
		err := q.db.QueryRowContext(ctx,
			"SELECT id FROM jobs WHERE status = 'pending' ORDER BY created_at, id LIMIT 1").Scan(&id)
		if err == sql.ErrNoRows {
			return nil, nil
		}
		if err != nil {
			return nil, queueErr("dequeue", err)
		}

		now := time.Now().UTC()
		res, err := q.db.ExecContext(ctx,
			`UPDATE jobs SET status = 'processing', locked_at = ?, processing_started_at = ?
			WHERE id = ? AND status = 'pending'`,
			now, now, id,
		)
		if err != nil {
			return nil, queueErr("dequeue", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, queueErr("dequeue", err)
		}
		if n == 0 {
			continue // another claimant won, re-select
		}

		if err := bumpMetric(ctx, q.db, "dequeue_count"); err != nil {
			return nil, queueErr("dequeue", err)
		}
		job, err := q.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		if job == nil {
			return nil, queueErr("dequeue", fmt.Errorf("claimed job %s vanished", id))
		}
		return job, nil
	}
}

const jobColumns = `id, correlation_id, status, event_source, event_type, event_id, payload, signature, received_at,
	worktree_path, branch_name, issue_number, autonomy_level, initial_snapshot, final_snapshot,
	metadata, error_message, created_at, processing_started_at, completed_at, failed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	job := &models.Job{}
	var status, source, payload, signature, autonomy, metadata string
	var initialSnap, finalSnap sql.NullString
	var startedAt, completedAt, failedAt sql.NullTime

	err := row.Scan(&job.JobID, &job.CorrelationID, &status,
		&source, &job.Event.EventType, &job.Event.EventID, &payload, &signature, &job.Event.ReceivedAt,
		&job.WorktreePath, &job.BranchName, &job.IssueNumber, &autonomy, &initialSnap, &finalSnap,
		&metadata, &job.ErrorMessage, &job.CreatedAt, &startedAt, &completedAt, &failedAt)
	if err != nil {
		return nil, err
	}

	job.Status = models.JobStatus(status)
	job.Event.Source = models.EventSource(source)
	job.Event.Payload = json.RawMessage(payload)
	job.Event.Signature = signature
	job.Autonomy = models.AutonomyLevel(autonomy)

	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &job.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	if initialSnap.Valid && initialSnap.String != "" {
		if err := json.Unmarshal([]byte(initialSnap.String), &job.InitialSnap); err != nil {
			return nil, fmt.Errorf("decode initial snapshot: %w", err)
		}
	}
	if finalSnap.Valid && finalSnap.String != "" {
		if err := json.Unmarshal([]byte(finalSnap.String), &job.FinalSnap); err != nil {
			return nil, fmt.Errorf("decode final snapshot: %w", err)
		}
	}
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	} else if failedAt.Valid {
		t := failedAt.Time
		job.CompletedAt = &t
	}
	return job, nil
}

// GetJob is a read-only lookup across all states.
func (q *SQLiteQueue) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	row := q.db.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM jobs WHERE id = ?", jobID)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, queueErr("get_job", err)
	}
	return job, nil
}

// UpdateJob persists worktree assignment, snapshots, and metadata for a
// processing job. Only the claiming worker may call this.
func (q *SQLiteQueue) UpdateJob(ctx context.Context, job *models.Job) error {
	metadata, err := marshalJSON(job.Metadata)
	if err != nil {
		return queueErr("update_job", err)
	}
	initialSnap, err := marshalJSON(job.InitialSnap)
	if err != nil {
		return queueErr("update_job", err)
	}
	finalSnap, err := marshalJSON(job.FinalSnap)
	if err != nil {
		return queueErr("update_job", err)
	}

	res, err := q.db.ExecContext(ctx,
		`UPDATE jobs SET worktree_path = ?, branch_name = ?, issue_number = ?, autonomy_level = ?,
		initial_snapshot = ?, final_snapshot = ?, metadata = ?
		WHERE id = ?`,
		job.WorktreePath, job.BranchName, job.IssueNumber, string(job.Autonomy),
		initialSnap, finalSnap, metadata, job.JobID,
	)
	if err != nil {
		return queueErr("update_job", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return queueErr("update_job", fmt.Errorf("job not found: %s", job.JobID))
	}
	return nil
}

// Complete transitions processing -> completed, merging the result into the
// job metadata. Completing an already-completed job is a no-op; completing a
// pending or failed job is an error.
func (q *SQLiteQueue) Complete(ctx context.Context, jobID string, result map[string]string) error {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return queueErr("complete", err)
	}
	defer func() { _ = tx.Rollback() }()

	var status, metadata string
	err = tx.QueryRowContext(ctx, "SELECT status, metadata FROM jobs WHERE id = ?", jobID).Scan(&status, &metadata)
	if err == sql.ErrNoRows {
		return queueErr("complete", fmt.Errorf("job not found: %s", jobID))
	}
	if err != nil {
		return queueErr("complete", err)
	}
	if models.JobStatus(status) == models.JobStatusCompleted {
		return nil
	}
	if models.JobStatus(status) != models.JobStatusProcessing {
		return queueErr("complete", fmt.Errorf("job %s is not processing", jobID))
	}

	merged := map[string]string{}
	if metadata != "" {
		_ = json.Unmarshal([]byte(metadata), &merged)
	}
	for k, v := range result {
		merged[k] = v
	}
	mergedJSON, err := marshalJSON(merged)
	if err != nil {
		return queueErr("complete", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE jobs SET status = 'completed', completed_at = ?, metadata = ? WHERE id = ? AND status = 'processing'`,
		time.Now().UTC(), mergedJSON, jobID,
	)
	if err != nil {
		return queueErr("complete", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return queueErr("complete", fmt.Errorf("job %s is not processing", jobID))
	}
	if err := bumpMetric(ctx, tx, "completed_count"); err != nil {
		return queueErr("complete", err)
	}
	if err := tx.Commit(); err != nil {
		return queueErr("complete", err)
	}
	return nil
}

// Fail transitions processing -> failed and records the error message.
// Failing an already-failed job is a no-op; failing a completed or pending
// job is an error, terminal states stay put.
func (q *SQLiteQueue) Fail(ctx context.Context, jobID string, errMsg string) error {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return queueErr("fail", err)
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	err = tx.QueryRowContext(ctx, "SELECT status FROM jobs WHERE id = ?", jobID).Scan(&status)
	if err == sql.ErrNoRows {
		return queueErr("fail", fmt.Errorf("job not found: %s", jobID))
	}
	if err != nil {
		return queueErr("fail", err)
	}
	if models.JobStatus(status) == models.JobStatusFailed {
		return nil
	}
	if models.JobStatus(status) != models.JobStatusProcessing {
		return queueErr("fail", fmt.Errorf("job %s is not processing", jobID))
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE jobs SET status = 'failed', failed_at = ?, error_message = ? WHERE id = ? AND status = 'processing'`,
		time.Now().UTC(), errMsg, jobID,
	)
	if err != nil {
		return queueErr("fail", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return queueErr("fail", fmt.Errorf("job %s is not processing", jobID))
	}
	if err := bumpMetric(ctx, tx, "failed_count"); err != nil {
		return queueErr("fail", err)
	}
	if err := tx.Commit(); err != nil {
		return queueErr("fail", err)
	}
	return nil
}

// ExistsByDelivery checks the delivery-tracking table first and falls back
// to the jobs table for rows whose tracking entry already expired.
func (q *SQLiteQueue) ExistsByDelivery(ctx context.Context, deliveryID string) (bool, error) {
	var count int
	err := q.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM delivery_tracking WHERE delivery_id = ? AND expires_at >= ?",
		deliveryID, time.Now().UTC()).Scan(&count)
	if err != nil {
		return false, queueErr("exists_by_delivery", err)
	}
	if count > 0 {
		return true, nil
	}

	err = q.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM jobs WHERE event_id = ?", deliveryID).Scan(&count)
	if err != nil {
		return false, queueErr("exists_by_delivery", err)
	}
	return count > 0, nil
}

// Size counts pending jobs.
func (q *SQLiteQueue) Size(ctx context.Context) (int, error) {
	var count int
	err := q.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM jobs WHERE status = 'pending'").Scan(&count)
	if err != nil {
		return 0, queueErr("size", err)
	}
	return count, nil
}

// ListJobs returns jobs filtered by status (all statuses when empty), newest
// first. Used by the status API, the CLI, and the MCP tools.
func (q *SQLiteQueue) ListJobs(ctx context.Context, status models.JobStatus, limit int) ([]*models.Job, error) {
	query := "SELECT " + jobColumns + " FROM jobs"
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, queueErr("list_jobs", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, queueErr("list_jobs", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Stats assembles queue activity metrics from status counts and the
// job_metrics counters.
func (q *SQLiteQueue) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	rows, err := q.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM jobs GROUP BY status")
	if err != nil {
		return nil, queueErr("stats", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, queueErr("stats", err)
		}
		switch models.JobStatus(status) {
		case models.JobStatusPending:
			stats.Pending = count
		case models.JobStatusProcessing:
			stats.Processing = count
		case models.JobStatusCompleted:
			stats.Completed = count
		case models.JobStatusFailed:
			stats.Failed = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, queueErr("stats", err)
	}

	counters := map[string]*int64{
		"enqueue_count": &stats.EnqueueCount,
		"dequeue_count": &stats.DequeueCount,
	}
	for name, dst := range counters {
		var v int64
		err := q.db.QueryRowContext(ctx,
			"SELECT value FROM job_metrics WHERE metric_name = ?", name).Scan(&v)
		if err != nil && err != sql.ErrNoRows {
			return nil, queueErr("stats", err)
		}
		*dst = v
	}

	var completedLastHour int
	err = q.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM jobs WHERE status = 'completed' AND completed_at >= ?",
		time.Now().UTC().Add(-time.Hour)).Scan(&completedLastHour)
	if err != nil {
		return nil, queueErr("stats", err)
	}
	stats.CompletedPerHour = completedLastHour

	var oldest sql.NullTime
	err = q.db.QueryRowContext(ctx,
		"SELECT MIN(created_at) FROM jobs WHERE status = 'pending'").Scan(&oldest)
	if err != nil {
		return nil, queueErr("stats", err)
	}
	if oldest.Valid {
		stats.OldestPendingAge = time.Since(oldest.Time)
	}

	return stats, nil
}
