package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/skybridgehq/skybridge/internal/models"
)

// ExecutionStore persists agent execution records keyed by job ID so runs
// can be inspected after the fact.
type ExecutionStore struct {
	dir string
}

// NewExecutionStore creates a store rooted at dir.
func NewExecutionStore(dir string) (*ExecutionStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create execution store directory: %w", err)
	}
	return &ExecutionStore{dir: dir}, nil
}

func (s *ExecutionStore) path(jobID string) string {
	return filepath.Join(s.dir, jobID+".json")
}

// Save writes the execution record, replacing any earlier record for the
// same job.
func (s *ExecutionStore) Save(execution *models.AgentExecution) error {
	data, err := json.MarshalIndent(execution, "", "  ")
	if err != nil {
		return fmt.Errorf("encode execution: %w", err)
	}
	tmp := s.path(execution.JobID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write execution: %w", err)
	}
	if err := os.Rename(tmp, s.path(execution.JobID)); err != nil {
		return fmt.Errorf("write execution: %w", err)
	}
	return nil
}

// Get loads the execution record for a job. Returns (nil, nil) when no run
// has been recorded.
func (s *ExecutionStore) Get(jobID string) (*models.AgentExecution, error) {
	data, err := os.ReadFile(s.path(jobID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read execution: %w", err)
	}
	var execution models.AgentExecution
	if err := json.Unmarshal(data, &execution); err != nil {
		return nil, fmt.Errorf("decode execution: %w", err)
	}
	return &execution, nil
}
