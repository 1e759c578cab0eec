package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hemeda3/nubian-ai-agent-framework-sub001/pkg/models"
)

func openStores(t *testing.T) map[string]ThreadStore {
	t.Helper()
	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "threads.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })
	return map[string]ThreadStore{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestThreadLifecycle(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			thread := &models.Thread{ProjectID: "proj-1"}
			if err := store.CreateThread(ctx, thread); err != nil {
				t.Fatalf("CreateThread() error = %v", err)
			}
			if thread.ID == "" {
				t.Fatal("CreateThread() did not assign an id")
			}

			got, err := store.GetThread(ctx, thread.ID)
			if err != nil {
				t.Fatalf("GetThread() error = %v", err)
			}
			if got.ProjectID != "proj-1" {
				t.Errorf("ProjectID = %q, want proj-1", got.ProjectID)
			}

			if err := store.CreateThread(ctx, &models.Thread{ID: thread.ID}); !errors.Is(err, ErrAlreadyExists) {
				t.Errorf("duplicate CreateThread() error = %v, want ErrAlreadyExists", err)
			}
			if _, err := store.GetThread(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("GetThread(missing) error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestMessageHistory(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			thread := &models.Thread{ProjectID: "proj-1"}
			if err := store.CreateThread(ctx, thread); err != nil {
				t.Fatalf("CreateThread() error = %v", err)
			}

			base := time.Now().UTC().Truncate(time.Second)
			msgs := []*models.Message{
				{ThreadID: thread.ID, Type: models.MessageTypeUser, Content: "hello", IsLLMMessage: true, CreatedAt: base},
				{ThreadID: thread.ID, Type: models.MessageTypeStatus, Content: "started", CreatedAt: base.Add(time.Second)},
				{ThreadID: thread.ID, Type: models.MessageTypeAssistant, Content: "hi there", IsLLMMessage: true, CreatedAt: base.Add(2 * time.Second)},
			}
			for _, msg := range msgs {
				if err := store.InsertMessage(ctx, msg); err != nil {
					t.Fatalf("InsertMessage() error = %v", err)
				}
			}

			all, err := store.GetHistory(ctx, thread.ID, false)
			if err != nil {
				t.Fatalf("GetHistory() error = %v", err)
			}
			if len(all) != 3 {
				t.Fatalf("len(all) = %d, want 3", len(all))
			}
			if all[0].Content != "hello" || all[2].Content != "hi there" {
				t.Errorf("history out of order: %q ... %q", all[0].Content, all[2].Content)
			}

			llm, err := store.GetHistory(ctx, thread.ID, true)
			if err != nil {
				t.Fatalf("GetHistory(llmOnly) error = %v", err)
			}
			if len(llm) != 2 {
				t.Fatalf("len(llm) = %d, want 2", len(llm))
			}
			for _, msg := range llm {
				if !msg.IsLLMMessage {
					t.Errorf("llm-only history returned %s message", msg.Type)
				}
			}
		})
	}
}

func TestInsertMessageDuplicate(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			thread := &models.Thread{}
			if err := store.CreateThread(ctx, thread); err != nil {
				t.Fatalf("CreateThread() error = %v", err)
			}
			msg := &models.Message{ID: "msg-1", ThreadID: thread.ID, Type: models.MessageTypeUser, Content: "a"}
			if err := store.InsertMessage(ctx, msg); err != nil {
				t.Fatalf("InsertMessage() error = %v", err)
			}
			dup := &models.Message{ID: "msg-1", ThreadID: thread.ID, Type: models.MessageTypeUser, Content: "b"}
			if err := store.InsertMessage(ctx, dup); !errors.Is(err, ErrAlreadyExists) {
				t.Errorf("duplicate InsertMessage() error = %v, want ErrAlreadyExists", err)
			}

			ok, err := store.HasMessage(ctx, "msg-1")
			if err != nil || !ok {
				t.Errorf("HasMessage(msg-1) = %v, %v, want true, nil", ok, err)
			}
			ok, err = store.HasMessage(ctx, "msg-2")
			if err != nil || ok {
				t.Errorf("HasMessage(msg-2) = %v, %v, want false, nil", ok, err)
			}
		})
	}
}

func TestLatestAndDeleteByType(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			thread := &models.Thread{}
			if err := store.CreateThread(ctx, thread); err != nil {
				t.Fatalf("CreateThread() error = %v", err)
			}

			base := time.Now().UTC().Truncate(time.Second)
			for i, content := range []string{"first", "second"} {
				msg := &models.Message{
					ThreadID:  thread.ID,
					Type:      models.MessageTypeBrowserState,
					Content:   content,
					CreatedAt: base.Add(time.Duration(i) * time.Second),
				}
				if err := store.InsertMessage(ctx, msg); err != nil {
					t.Fatalf("InsertMessage() error = %v", err)
				}
			}

			latest, err := store.GetLatestByType(ctx, thread.ID, models.MessageTypeBrowserState)
			if err != nil {
				t.Fatalf("GetLatestByType() error = %v", err)
			}
			if latest.Content != "second" {
				t.Errorf("latest content = %q, want second", latest.Content)
			}

			if err := store.DeleteByType(ctx, thread.ID, models.MessageTypeBrowserState); err != nil {
				t.Fatalf("DeleteByType() error = %v", err)
			}
			if _, err := store.GetLatestByType(ctx, thread.ID, models.MessageTypeBrowserState); !errors.Is(err, ErrNotFound) {
				t.Errorf("GetLatestByType() after delete error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestUpdateMetadata(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			thread := &models.Thread{}
			if err := store.CreateThread(ctx, thread); err != nil {
				t.Fatalf("CreateThread() error = %v", err)
			}
			msg := &models.Message{
				ThreadID: thread.ID,
				Type:     models.MessageTypeAssistant,
				Content:  "x",
				Metadata: map[string]any{"a": "1"},
			}
			if err := store.InsertMessage(ctx, msg); err != nil {
				t.Fatalf("InsertMessage() error = %v", err)
			}
			if err := store.UpdateMetadata(ctx, msg.ID, map[string]any{"b": "2"}); err != nil {
				t.Fatalf("UpdateMetadata() error = %v", err)
			}

			history, err := store.GetHistory(ctx, thread.ID, false)
			if err != nil {
				t.Fatalf("GetHistory() error = %v", err)
			}
			got := history[0].Metadata
			if got["a"] != "1" || got["b"] != "2" {
				t.Errorf("metadata = %v, want both a and b keys", got)
			}

			if err := store.UpdateMetadata(ctx, "missing", nil); !errors.Is(err, ErrNotFound) {
				t.Errorf("UpdateMetadata(missing) error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestMessageParts(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			thread := &models.Thread{}
			if err := store.CreateThread(ctx, thread); err != nil {
				t.Fatalf("CreateThread() error = %v", err)
			}
			msg := &models.Message{
				ThreadID: thread.ID,
				Type:     models.MessageTypeImageContext,
				Content:  "screenshot",
				Parts: []models.ContentPart{
					{Type: "text", Text: "screenshot"},
					{Type: "image_url", URL: "data:image/png;base64,AAAA", MimeType: "image/png"},
				},
			}
			if err := store.InsertMessage(ctx, msg); err != nil {
				t.Fatalf("InsertMessage() error = %v", err)
			}

			got, err := store.GetLatestByType(ctx, thread.ID, models.MessageTypeImageContext)
			if err != nil {
				t.Fatalf("GetLatestByType() error = %v", err)
			}
			if len(got.Parts) != 2 {
				t.Fatalf("len(parts) = %d, want 2", len(got.Parts))
			}
			if got.Parts[1].MimeType != "image/png" {
				t.Errorf("part mime = %q, want image/png", got.Parts[1].MimeType)
			}
		})
	}
}
