package runs

import (
	"context"
	"testing"
	"time"

	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/stream"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/pkg/models"
)

func newRun(id string) *models.Run {
	return &models.Run{
		ID:        id,
		ThreadID:  "thread-1",
		ProjectID: "project-1",
		Status:    models.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
}

func TestMemoryStoreStatusMonotonic(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Create(ctx, newRun("run-1")); err != nil {
		t.Fatal(err)
	}

	if err := store.UpdateStatus(ctx, "run-1", models.RunStatusCompleted, ""); err != nil {
		t.Fatal(err)
	}

	for _, next := range []models.RunStatus{
		models.RunStatusFailed,
		models.RunStatusStopped,
		models.RunStatusRunning,
	} {
		if err := store.UpdateStatus(ctx, "run-1", next, "late"); err != ErrAlreadyTerminal {
			t.Errorf("UpdateStatus(%s) after terminal = %v, want ErrAlreadyTerminal", next, err)
		}
	}

	run, err := store.Get(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != models.RunStatusCompleted {
		t.Errorf("status = %s, want completed", run.Status)
	}
	if run.CompletedAt == nil {
		t.Error("terminal run missing completed_at")
	}
}

func TestMemoryStoreGetUnknown(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Get(context.Background(), "nope"); err != ErrNotFound {
		t.Errorf("Get(unknown) = %v, want ErrNotFound", err)
	}
}

func TestStatusStoreTransitionPublishesSignal(t *testing.T) {
	ctx := context.Background()
	kv := stream.NewMemoryKV()
	broker := stream.NewBroker(kv, "worker-1", nil)
	status := NewStatusStore(NewMemoryStore(), broker, nil)

	if err := status.Create(ctx, newRun("run-1")); err != nil {
		t.Fatal(err)
	}

	control, err := broker.SubscribeControl(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	defer control.Close()

	if err := status.Transition(ctx, "run-1", models.RunStatusFailed, "boom"); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-control.C():
		if stream.Signal(msg.Payload) != stream.SignalError {
			t.Errorf("signal = %q, want ERROR", msg.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("no control signal observed")
	}
}

func TestStatusStoreSecondTerminalTransitionIsNoop(t *testing.T) {
	ctx := context.Background()
	status := NewStatusStore(NewMemoryStore(), nil, nil)
	if err := status.Create(ctx, newRun("run-1")); err != nil {
		t.Fatal(err)
	}
	if err := status.Transition(ctx, "run-1", models.RunStatusStopped, "stop requested"); err != nil {
		t.Fatal(err)
	}
	if err := status.Transition(ctx, "run-1", models.RunStatusFailed, "late failure"); err != nil {
		t.Errorf("second terminal transition = %v, want nil (benign no-op)", err)
	}

	run, err := status.Get(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != models.RunStatusStopped || run.ErrorMessage != "stop requested" {
		t.Errorf("run = %s/%q, first terminal status must win", run.Status, run.ErrorMessage)
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLite(t.TempDir() + "/runs.db")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if err := store.Create(ctx, newRun("run-1")); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateStatus(ctx, "run-1", models.RunStatusCompleted, ""); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateStatus(ctx, "run-1", models.RunStatusFailed, "late"); err != ErrAlreadyTerminal {
		t.Errorf("post-terminal update = %v, want ErrAlreadyTerminal", err)
	}

	run, err := store.Get(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != models.RunStatusCompleted || run.CompletedAt == nil {
		t.Errorf("run = %+v", run)
	}

	list, err := store.ListByProject(ctx, "project-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Errorf("ListByProject returned %d runs, want 1", len(list))
	}
}
