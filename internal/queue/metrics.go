package queue

import "time"

// Stats is a point-in-time view of queue activity, used for backpressure and
// capacity-planning decisions rather than correctness.
type Stats struct {
	Pending          int           `json:"pending"`
	Processing       int           `json:"processing"`
	Completed        int           `json:"completed"`
	Failed           int           `json:"failed"`
	EnqueueCount     int64         `json:"enqueue_count"`
	DequeueCount     int64         `json:"dequeue_count"`
	CompletedPerHour int           `json:"completed_per_hour"`
	AvgLatency       time.Duration `json:"avg_latency_ns"`
	OldestPendingAge time.Duration `json:"oldest_pending_age_ns"`
	DiskUsageBytes   int64         `json:"disk_usage_bytes"`
}

// maxLatencySamples bounds the rolling window of completion latencies.
const maxLatencySamples = 1000

// fileMetrics is the persisted shape of the metrics.json sidecar.
type fileMetrics struct {
	EnqueueCount     int64       `json:"enqueue_count"`
	DequeueCount     int64       `json:"dequeue_count"`
	CompletedCount   int64       `json:"completed_count"`
	FailedCount      int64       `json:"failed_count"`
	LatencySamplesMs []float64   `json:"latency_samples_ms"`
	CompletedAt      []time.Time `json:"completed_at"`
}

func (m *fileMetrics) recordEnqueue() { m.EnqueueCount++ }
func (m *fileMetrics) recordDequeue() { m.DequeueCount++ }

func (m *fileMetrics) recordCompletion(latency time.Duration) {
	m.CompletedCount++
	m.LatencySamplesMs = append(m.LatencySamplesMs, float64(latency.Milliseconds()))
	if len(m.LatencySamplesMs) > maxLatencySamples {
		m.LatencySamplesMs = m.LatencySamplesMs[len(m.LatencySamplesMs)-maxLatencySamples:]
	}

	now := time.Now().UTC()
	m.CompletedAt = append(m.CompletedAt, now)
	// Keep only the trailing hour; that is all completedPerHour needs.
	cutoff := now.Add(-time.Hour)
	kept := m.CompletedAt[:0]
	for _, t := range m.CompletedAt {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	m.CompletedAt = kept
}

func (m *fileMetrics) recordFailure() { m.FailedCount++ }

func (m *fileMetrics) completedPerHour() int {
	cutoff := time.Now().UTC().Add(-time.Hour)
	n := 0
	for _, t := range m.CompletedAt {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}

func (m *fileMetrics) avgLatency() time.Duration {
	if len(m.LatencySamplesMs) == 0 {
		return 0
	}
	var sum float64
	for _, s := range m.LatencySamplesMs {
		sum += s
	}
	return time.Duration(sum/float64(len(m.LatencySamplesMs))) * time.Millisecond
}
