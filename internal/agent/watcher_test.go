package agent

import (
	"context"
	"testing"
	"time"

	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/sandbox"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/stream"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/pkg/models"
)

func TestTaskStateWatcherNotifies(t *testing.T) {
	ws, err := sandbox.NewLocal(sandbox.LocalOptions{Root: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	broker := stream.NewBroker(stream.NewMemoryKV(), "worker-1", nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := broker.Subscribe(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	watcher, err := WatchTaskState(ctx, ws, broker, "run-1", "thread-1", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer watcher.Close()

	if err := ws.WriteFile(ctx, sandbox.TodoFile, []byte("- [ ] new step")); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-sub.Messages():
		if msg.Type != models.MessageTypeStatus {
			t.Errorf("message type = %s, want status", msg.Type)
		}
		if msg.Content != "task list updated" {
			t.Errorf("content = %q", msg.Content)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no notification after todo write")
	}
}

func TestTaskStateWatcherIgnoresOtherFiles(t *testing.T) {
	ws, err := sandbox.NewLocal(sandbox.LocalOptions{Root: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	broker := stream.NewBroker(stream.NewMemoryKV(), "worker-1", nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := broker.Subscribe(ctx, "run-2")
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	watcher, err := WatchTaskState(ctx, ws, broker, "run-2", "thread-1", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer watcher.Close()

	if err := ws.WriteFile(ctx, "scratch.txt", []byte("irrelevant")); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-sub.Messages():
		t.Errorf("unexpected notification: %+v", msg)
	case <-time.After(500 * time.Millisecond):
	}
}
