// Package runs persists run records and linearizes their status
// transitions. The status store is the single source of truth for a run's
// terminal state; in-memory mirrors elsewhere are best-effort only.
package runs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hemeda3/nubian-ai-agent-framework-sub001/pkg/models"
)

var (
	ErrNotFound = errors.New("run not found")

	// ErrAlreadyTerminal is returned for a status update against a run
	// that already reached a terminal status. Callers treat it as benign:
	// terminal statuses never change again.
	ErrAlreadyTerminal = errors.New("run already terminal")
)

// Store persists runs. UpdateStatus must reject transitions out of a
// terminal status with ErrAlreadyTerminal and must be safe for one writer
// per run id.
type Store interface {
	Create(ctx context.Context, run *models.Run) error
	Get(ctx context.Context, id string) (*models.Run, error)
	UpdateStatus(ctx context.Context, id string, status models.RunStatus, errorMessage string) error
	ListByProject(ctx context.Context, projectID string) ([]*models.Run, error)
}

// MemoryStore is an in-memory Store for tests and single-node runs.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*models.Run
}

// NewMemoryStore creates an empty in-memory run store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: map[string]*models.Run{}}
}

func (m *MemoryStore) Create(ctx context.Context, run *models.Run) error {
	if run == nil {
		return errors.New("run is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := *run
	if clone.StartedAt.IsZero() {
		clone.StartedAt = time.Now().UTC()
		run.StartedAt = clone.StartedAt
	}
	if clone.Status == "" {
		clone.Status = models.RunStatusRunning
		run.Status = clone.Status
	}
	m.runs[clone.ID] = &clone
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*models.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *run
	return &clone, nil
}

func (m *MemoryStore) UpdateStatus(ctx context.Context, id string, status models.RunStatus, errorMessage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[id]
	if !ok {
		return ErrNotFound
	}
	if run.Status.Terminal() {
		return ErrAlreadyTerminal
	}
	run.Status = status
	run.ErrorMessage = errorMessage
	if status.Terminal() {
		now := time.Now().UTC()
		run.CompletedAt = &now
	}
	return nil
}

func (m *MemoryStore) ListByProject(ctx context.Context, projectID string) ([]*models.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Run
	for _, run := range m.runs {
		if run.ProjectID == projectID {
			clone := *run
			out = append(out, &clone)
		}
	}
	return out, nil
}
