// Package storage persists threads and their append-only message logs.
// The engine consumes only this narrow interface; the storage engine
// behind it is interchangeable.
package storage

import (
	"context"
	"errors"

	"github.com/hemeda3/nubian-ai-agent-framework-sub001/pkg/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// ThreadStore persists conversation threads and messages. Message order
// is creation order and is the authoritative sequence fed to the model.
type ThreadStore interface {
	CreateThread(ctx context.Context, thread *models.Thread) error
	GetThread(ctx context.Context, id string) (*models.Thread, error)

	// InsertMessage appends a message. Inserting an id that already
	// exists returns ErrAlreadyExists.
	InsertMessage(ctx context.Context, msg *models.Message) error

	// HasMessage reports whether a message id exists; used as the
	// idempotency gate for derived messages like summaries.
	HasMessage(ctx context.Context, id string) (bool, error)

	// GetHistory returns a thread's messages in creation order. When
	// llmOnly is set, only messages flagged as part of the model
	// conversation are returned.
	GetHistory(ctx context.Context, threadID string, llmOnly bool) ([]*models.Message, error)

	// GetLatestByType returns the newest message of the given type, or
	// ErrNotFound.
	GetLatestByType(ctx context.Context, threadID string, msgType models.MessageType) (*models.Message, error)

	// DeleteByType removes all messages of the given type from a thread.
	// Used for consumed ephemeral context like image_context entries.
	DeleteByType(ctx context.Context, threadID string, msgType models.MessageType) error

	// UpdateMetadata enriches an existing message's metadata. Content is
	// immutable after creation; metadata is the one exception.
	UpdateMetadata(ctx context.Context, id string, metadata map[string]any) error
}
