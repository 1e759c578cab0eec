package runs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/stream"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/pkg/models"
)

// StatusStore couples run persistence with status propagation: every
// successful transition is mirrored onto the run's control channel so
// stream consumers can end promptly without polling.
type StatusStore struct {
	store  Store
	broker *stream.Broker
	logger *slog.Logger
}

// NewStatusStore wires a run store to a stream broker.
func NewStatusStore(store Store, broker *stream.Broker, logger *slog.Logger) *StatusStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusStore{store: store, broker: broker, logger: logger}
}

// Create records a new run.
func (s *StatusStore) Create(ctx context.Context, run *models.Run) error {
	return s.store.Create(ctx, run)
}

// Get returns the authoritative run record.
func (s *StatusStore) Get(ctx context.Context, id string) (*models.Run, error) {
	return s.store.Get(ctx, id)
}

// Transition updates a run's status and publishes the matching control
// signal. A transition against an already-terminal run is a no-op: the
// first terminal status wins. Publish failures are logged, never
// escalated; the store remains the source of truth.
func (s *StatusStore) Transition(ctx context.Context, runID string, status models.RunStatus, errorMessage string) error {
	if err := s.store.UpdateStatus(ctx, runID, status, errorMessage); err != nil {
		if errors.Is(err, ErrAlreadyTerminal) {
			return nil
		}
		return err
	}
	if s.broker != nil {
		if err := s.broker.PublishStatus(ctx, runID, status); err != nil {
			s.logger.Warn("status signal publish failed",
				"run_id", runID,
				"status", status,
				"error", err,
			)
		}
	}
	return nil
}
