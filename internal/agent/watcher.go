package agent

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/sandbox"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/stream"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/pkg/models"
)

// taskStateDebounce coalesces bursts of file events into one notification.
const taskStateDebounce = 200 * time.Millisecond

// TaskStateWatcher publishes a stream notification when the workspace
// todo document changes outside an iteration, so followers see plan
// updates without waiting for the next model turn.
type TaskStateWatcher struct {
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// WatchTaskState starts watching the run workspace's todo document.
// Notifications are published as transient status messages on the run's
// response stream; they are not persisted to the thread.
func WatchTaskState(ctx context.Context, ws sandbox.Workspace, broker *stream.Broker, runID, threadID string, logger *slog.Logger) (*TaskStateWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	todoPath, err := ws.TodoPath()
	if err != nil {
		return nil, fmt.Errorf("resolve todo path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	// Watch the directory: editors replace files on save, which drops
	// per-file watches.
	if err := watcher.Add(filepath.Dir(todoPath)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch workspace: %w", err)
	}

	w := &TaskStateWatcher{watcher: watcher, done: make(chan struct{})}
	go w.run(ctx, todoPath, broker, runID, threadID, logger)
	return w, nil
}

func (w *TaskStateWatcher) run(ctx context.Context, todoPath string, broker *stream.Broker, runID, threadID string, logger *slog.Logger) {
	defer close(w.done)

	var timer *time.Timer
	var timerC <-chan time.Time

	notify := func() {
		msg := &models.Message{
			ID:        uuid.NewString(),
			ThreadID:  threadID,
			Type:      models.MessageTypeStatus,
			Content:   "task list updated",
			Metadata:  map[string]any{"source": "task_state_watcher"},
			CreatedAt: time.Now().UTC(),
		}
		if err := broker.Publish(ctx, runID, msg); err != nil {
			logger.Warn("task state notification failed", "run_id", runID, "error", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name != todoPath {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(taskStateDebounce)
				timerC = timer.C
			} else {
				timer.Reset(taskStateDebounce)
			}
		case <-timerC:
			notify()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("task state watcher error", "run_id", runID, "error", err)
		}
	}
}

// Close stops the watcher and waits for the event loop to exit.
func (w *TaskStateWatcher) Close() error {
	err := w.watcher.Close()
	<-w.done
	return err
}
