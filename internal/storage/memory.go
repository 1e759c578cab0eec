package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hemeda3/nubian-ai-agent-framework-sub001/pkg/models"
)

// MemoryStore provides an in-memory ThreadStore for tests and local runs.
type MemoryStore struct {
	mu       sync.RWMutex
	threads  map[string]*models.Thread
	messages map[string][]*models.Message
	byID     map[string]*models.Message
}

// NewMemoryStore creates an empty in-memory thread store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		threads:  map[string]*models.Thread{},
		messages: map[string][]*models.Message{},
		byID:     map[string]*models.Message{},
	}
}

func (m *MemoryStore) CreateThread(ctx context.Context, thread *models.Thread) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := *thread
	if clone.ID == "" {
		clone.ID = uuid.NewString()
		thread.ID = clone.ID
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now().UTC()
		thread.CreatedAt = clone.CreatedAt
	}
	if _, exists := m.threads[clone.ID]; exists {
		return ErrAlreadyExists
	}
	m.threads[clone.ID] = &clone
	return nil
}

func (m *MemoryStore) GetThread(ctx context.Context, id string) (*models.Thread, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	thread, ok := m.threads[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *thread
	return &clone, nil
}

func (m *MemoryStore) InsertMessage(ctx context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := *msg
	if clone.ID == "" {
		clone.ID = uuid.NewString()
		msg.ID = clone.ID
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now().UTC()
		msg.CreatedAt = clone.CreatedAt
	}
	if _, exists := m.byID[clone.ID]; exists {
		return ErrAlreadyExists
	}
	m.byID[clone.ID] = &clone
	m.messages[clone.ThreadID] = append(m.messages[clone.ThreadID], &clone)
	return nil
}

func (m *MemoryStore) HasMessage(ctx context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byID[id]
	return ok, nil
}

func (m *MemoryStore) GetHistory(ctx context.Context, threadID string, llmOnly bool) ([]*models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.Message
	for _, msg := range m.messages[threadID] {
		if llmOnly && !msg.IsLLMMessage {
			continue
		}
		clone := *msg
		out = append(out, &clone)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) GetLatestByType(ctx context.Context, threadID string, msgType models.MessageType) (*models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.messages[threadID]
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].Type == msgType {
			clone := *list[i]
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) DeleteByType(ctx context.Context, threadID string, msgType models.MessageType) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.messages[threadID]
	kept := list[:0]
	for _, msg := range list {
		if msg.Type == msgType {
			delete(m.byID, msg.ID)
			continue
		}
		kept = append(kept, msg)
	}
	m.messages[threadID] = kept
	return nil
}

func (m *MemoryStore) UpdateMetadata(ctx context.Context, id string, metadata map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	if msg.Metadata == nil {
		msg.Metadata = map[string]any{}
	}
	for k, v := range metadata {
		msg.Metadata[k] = v
	}
	return nil
}
