package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/skybridgehq/skybridge/internal/models"
)

const (
	dirPending    = "jobs"
	dirProcessing = "processing"
	dirCompleted  = "completed"
	dirFailed     = "failed"

	orderFile   = "queue.json"
	metricsFile = "metrics.json"
)

// FileQueue stores jobs as one JSON document each, in a directory per state.
// Durability comes from the filesystem, and because state lives on disk an
// ingestion process and a separate worker process see the same queue.
//
// The claim mechanism is a rename from jobs/ into processing/: rename is
// atomic on one volume, so exactly one claimant wins a job even across
// processes. The mutex only serializes callers within this process.
//
// This backend is a bridge technology for low throughput; swap in the SQLite
// backend once the deployment outgrows it.
type FileQueue struct {
	root string

	mu      sync.Mutex
	metrics fileMetrics
}

// NewFileQueue opens (or creates) a file-backed queue rooted at dir.
func NewFileQueue(dir string) (*FileQueue, error) {
	for _, sub := range []string{dirPending, dirProcessing, dirCompleted, dirFailed} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create queue directory: %w", err)
		}
	}

	q := &FileQueue{root: dir}
	q.loadMetrics()
	return q, nil
}

// Close is a no-op; the file queue holds no open handles between calls.
func (q *FileQueue) Close() error { return nil }

func (q *FileQueue) jobPath(state, jobID string) string {
	return filepath.Join(q.root, state, jobID+".json")
}

// writeFileAtomic writes via a temp file in the same directory plus rename,
// so a crash mid-write never truncates the destination.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

func (q *FileQueue) readOrder() ([]string, error) {
	data, err := os.ReadFile(filepath.Join(q.root, orderFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (q *FileQueue) writeOrder(ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(q.root, orderFile), data)
}

func (q *FileQueue) readJobFile(path string) (*models.Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var job models.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return &job, nil
}

func (q *FileQueue) writeJobFile(path string, job *models.Job) error {
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

// Enqueue writes the job document first, then appends its ID to the order
// list. Both writes are atomic replaces.
func (q *FileQueue) Enqueue(ctx context.Context, job *models.Job) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job.Status = models.JobStatusPending
	if err := q.writeJobFile(q.jobPath(dirPending, job.JobID), job); err != nil {
		return "", queueErr("enqueue", err)
	}

	ids, err := q.readOrder()
	if err != nil {
		return "", queueErr("enqueue", err)
	}
	if err := q.writeOrder(append(ids, job.JobID)); err != nil {
		return "", queueErr("enqueue", err)
	}

	q.metrics.recordEnqueue()
	q.saveMetrics()
	return job.JobID, nil
}

// Dequeue polls for a claimable job until the timeout elapses.
func (q *FileQueue) Dequeue(ctx context.Context, timeout time.Duration) (*models.Job, error) {
	deadline := time.Now().Add(timeout)
	for {
		job, err := q.claimOne()
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

// claimOne pops the order list head and renames the job file into
// processing/. A rename that fails with not-exist means another process won
// the race for that ID; the ID is dropped and the next one tried.
func (q *FileQueue) claimOne() (*models.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	ids, err := q.readOrder()
	if err != nil {
		return nil, queueErr("dequeue", err)
	}
	if len(ids) == 0 {
		// The order list can miss jobs written by a process that crashed
		// between the two enqueue writes. ULIDs sort by creation time, so
		// a directory scan preserves rough FIFO order.
		ids, err = q.scanPending()
		if err != nil {
			return nil, queueErr("dequeue", err)
		}
	}

	for len(ids) > 0 {
		id := ids[0]
		ids = ids[1:]

		src := q.jobPath(dirPending, id)
		dst := q.jobPath(dirProcessing, id)
		if err := os.Rename(src, dst); err != nil {
			if os.IsNotExist(err) {
				continue // lost the race to another process
			}
			return nil, queueErr("dequeue", err)
		}

		if err := q.writeOrder(ids); err != nil {
			return nil, queueErr("dequeue", err)
		}

		job, err := q.readJobFile(dst)
		if err != nil {
			return nil, queueErr("dequeue", err)
		}
		now := time.Now().UTC()
		job.Status = models.JobStatusProcessing
		job.StartedAt = &now
		if err := q.writeJobFile(dst, job); err != nil {
			return nil, queueErr("dequeue", err)
		}

		q.metrics.recordDequeue()
		q.saveMetrics()
		return job, nil
	}

	if err := q.writeOrder(ids); err != nil {
		return nil, queueErr("dequeue", err)
	}
	return nil, nil
}

func (q *FileQueue) scanPending() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(q.root, dirPending))
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

// GetJob checks each state directory in lifecycle order.
func (q *FileQueue) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	for _, state := range []string{dirPending, dirProcessing, dirCompleted, dirFailed} {
		job, err := q.readJobFile(q.jobPath(state, jobID))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, queueErr("get_job", err)
		}
		return job, nil
	}
	return nil, nil
}

// UpdateJob rewrites the job document in whichever state directory holds
// it. The directory, not the document, is authoritative for status.
func (q *FileQueue) UpdateJob(ctx context.Context, job *models.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	states := map[string]models.JobStatus{
		dirPending:    models.JobStatusPending,
		dirProcessing: models.JobStatusProcessing,
		dirCompleted:  models.JobStatusCompleted,
		dirFailed:     models.JobStatusFailed,
	}
	for _, state := range []string{dirProcessing, dirPending, dirCompleted, dirFailed} {
		path := q.jobPath(state, job.JobID)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		} else if err != nil {
			return queueErr("update_job", err)
		}
		job.Status = states[state]
		if err := q.writeJobFile(path, job); err != nil {
			return queueErr("update_job", err)
		}
		return nil
	}
	return queueErr("update_job", fmt.Errorf("job not found: %s", job.JobID))
}

// ListJobs walks the state directories, newest first.
func (q *FileQueue) ListJobs(ctx context.Context, status models.JobStatus, limit int) ([]*models.Job, error) {
	stateDirs := []string{dirPending, dirProcessing, dirCompleted, dirFailed}
	byStatus := map[models.JobStatus]string{
		models.JobStatusPending:    dirPending,
		models.JobStatusProcessing: dirProcessing,
		models.JobStatusCompleted:  dirCompleted,
		models.JobStatusFailed:     dirFailed,
	}
	if status != "" {
		dir, ok := byStatus[status]
		if !ok {
			return nil, queueErr("list_jobs", fmt.Errorf("unknown status: %s", status))
		}
		stateDirs = []string{dir}
	}

	var jobs []*models.Job
	for _, state := range stateDirs {
		dir := filepath.Join(q.root, state)
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, queueErr("list_jobs", err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
				continue
			}
			job, err := q.readJobFile(filepath.Join(dir, e.Name()))
			if err != nil {
				continue // mid-rename, skip
			}
			jobs = append(jobs, job)
		}
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

// Complete moves the job from processing/ into completed/. A second call
// finds the job already completed and is a no-op.
func (q *FileQueue) Complete(ctx context.Context, jobID string, result map[string]string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	src := q.jobPath(dirProcessing, jobID)
	job, err := q.readJobFile(src)
	if os.IsNotExist(err) {
		if _, err := os.Stat(q.jobPath(dirCompleted, jobID)); err == nil {
			return nil
		}
		return queueErr("complete", fmt.Errorf("job %s is not processing", jobID))
	}
	if err != nil {
		return queueErr("complete", err)
	}

	now := time.Now().UTC()
	job.Status = models.JobStatusCompleted
	job.CompletedAt = &now
	for k, v := range result {
		job.SetMeta(k, v)
	}

	if err := q.writeJobFile(q.jobPath(dirCompleted, jobID), job); err != nil {
		return queueErr("complete", err)
	}
	if err := os.Remove(src); err != nil {
		return queueErr("complete", err)
	}

	q.metrics.recordCompletion(now.Sub(job.CreatedAt))
	q.saveMetrics()
	return nil
}

// Fail moves the job from processing/ into failed/ with the error message.
func (q *FileQueue) Fail(ctx context.Context, jobID string, errMsg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	src := q.jobPath(dirProcessing, jobID)
	job, err := q.readJobFile(src)
	if os.IsNotExist(err) {
		if _, err := os.Stat(q.jobPath(dirFailed, jobID)); err == nil {
			return nil
		}
		return queueErr("fail", fmt.Errorf("job %s is not processing", jobID))
	}
	if err != nil {
		return queueErr("fail", err)
	}

	now := time.Now().UTC()
	job.Status = models.JobStatusFailed
	job.CompletedAt = &now
	job.ErrorMessage = errMsg

	if err := q.writeJobFile(q.jobPath(dirFailed, jobID), job); err != nil {
		return queueErr("fail", err)
	}
	if err := os.Remove(src); err != nil {
		return queueErr("fail", err)
	}

	q.metrics.recordFailure()
	q.saveMetrics()
	return nil
}

// ExistsByDelivery scans every state directory for a job created from the
// given delivery ID. Linear, but fine at tens of jobs per hour.
func (q *FileQueue) ExistsByDelivery(ctx context.Context, deliveryID string) (bool, error) {
	for _, state := range []string{dirPending, dirProcessing, dirCompleted, dirFailed} {
		dir := filepath.Join(q.root, state)
		entries, err := os.ReadDir(dir)
		if err != nil {
			return false, queueErr("exists_by_delivery", err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
				continue
			}
			job, err := q.readJobFile(filepath.Join(dir, e.Name()))
			if err != nil {
				continue // a job mid-rename is not this delivery
			}
			if job.Event.EventID == deliveryID {
				return true, nil
			}
		}
	}
	return false, nil
}

// Size counts pending job documents.
func (q *FileQueue) Size(ctx context.Context) (int, error) {
	ids, err := q.scanPending()
	if err != nil {
		return 0, queueErr("size", err)
	}
	return len(ids), nil
}

// Stats assembles queue activity metrics. Counts and disk usage are computed
// from the directory tree; counters and latency come from the sidecar.
func (q *FileQueue) Stats(ctx context.Context) (*Stats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := &Stats{
		EnqueueCount:     q.metrics.EnqueueCount,
		DequeueCount:     q.metrics.DequeueCount,
		CompletedPerHour: q.metrics.completedPerHour(),
		AvgLatency:       q.metrics.avgLatency(),
	}

	var oldest time.Time
	for _, state := range []string{dirPending, dirProcessing, dirCompleted, dirFailed} {
		dir := filepath.Join(q.root, state)
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, queueErr("stats", err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
				continue
			}
			if info, err := e.Info(); err == nil {
				stats.DiskUsageBytes += info.Size()
			}
			switch state {
			case dirPending:
				stats.Pending++
				if job, err := q.readJobFile(filepath.Join(dir, e.Name())); err == nil {
					if oldest.IsZero() || job.CreatedAt.Before(oldest) {
						oldest = job.CreatedAt
					}
				}
			case dirProcessing:
				stats.Processing++
			case dirCompleted:
				stats.Completed++
			case dirFailed:
				stats.Failed++
			}
		}
	}
	if !oldest.IsZero() {
		stats.OldestPendingAge = time.Since(oldest)
	}
	return stats, nil
}

// loadMetrics reads the sidecar; a missing or corrupt sidecar resets
// counters rather than failing queue startup.
func (q *FileQueue) loadMetrics() {
	data, err := os.ReadFile(filepath.Join(q.root, metricsFile))
	if err != nil {
		return
	}
	_ = json.Unmarshal(data, &q.metrics)
}

// saveMetrics persists the sidecar best-effort; metrics are for capacity
// planning, not correctness.
func (q *FileQueue) saveMetrics() {
	data, err := json.Marshal(&q.metrics)
	if err != nil {
		return
	}
	_ = writeFileAtomic(filepath.Join(q.root, metricsFile), data)
}
