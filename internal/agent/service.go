package agent

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/sandbox"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/tools"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/tools/browser"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/tools/files"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/tools/message"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/tools/shell"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/tools/tasklist"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/tools/websearch"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/pkg/models"
)

// ServiceOptions configures a Service on top of the orchestrator options.
type ServiceOptions struct {
	Options

	// WorkspaceRoot is the directory under which each run gets its own
	// workspace. Required.
	WorkspaceRoot string

	// Shell runs workspace commands. Defaults to /bin/sh.
	Shell string

	// BrowserEnabled wires the browser capability into new runs.
	BrowserEnabled  bool
	BrowserHeadless *bool
	BrowserTimeout  time.Duration

	// WebSearch is the shared search capability. Optional.
	WebSearch *websearch.Capability
}

// Service creates and launches runs: one thread, one workspace, one
// orchestrator per run, with the standard capability set registered.
type Service struct {
	opts ServiceOptions
}

// NewService validates the options eagerly so launch failures surface at
// startup rather than on the first request.
func NewService(opts ServiceOptions) (*Service, error) {
	if opts.WorkspaceRoot == "" {
		return nil, fmt.Errorf("agent: workspace root is required")
	}
	// Construct a throwaway orchestrator to validate the shared options.
	if _, err := NewOrchestrator(opts.Options); err != nil {
		return nil, err
	}
	return &Service{opts: opts}, nil
}

// StartRequest describes a new run.
type StartRequest struct {
	// Prompt is the user's task description. Required.
	Prompt string `json:"prompt"`

	// Model overrides the configured default for this run.
	Model string `json:"model,omitempty"`

	ProjectID string `json:"project_id,omitempty"`
}

// StartRun creates the thread, seeds it with the prompt, records the run,
// and launches the orchestration loop in the background.
func (s *Service) StartRun(ctx context.Context, req StartRequest) (*models.Run, error) {
	if req.Prompt == "" {
		return nil, fmt.Errorf("agent: prompt is required")
	}

	thread := &models.Thread{
		ID:        uuid.NewString(),
		ProjectID: req.ProjectID,
	}
	if err := s.opts.Threads.CreateThread(ctx, thread); err != nil {
		return nil, fmt.Errorf("create thread: %w", err)
	}
	if err := s.opts.Threads.InsertMessage(ctx, &models.Message{
		ID:           uuid.NewString(),
		ThreadID:     thread.ID,
		Type:         models.MessageTypeUser,
		Content:      req.Prompt,
		IsLLMMessage: true,
	}); err != nil {
		return nil, fmt.Errorf("seed prompt: %w", err)
	}

	run := &models.Run{
		ID:        uuid.NewString(),
		ThreadID:  thread.ID,
		ProjectID: req.ProjectID,
		Status:    models.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := s.opts.Status.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	ws, err := sandbox.NewLocal(sandbox.LocalOptions{
		Root:   filepath.Join(s.opts.WorkspaceRoot, run.ID),
		Shell:  s.opts.Shell,
		Logger: s.opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	runOpts := s.opts.Options
	runOpts.Workspace = ws
	if req.Model != "" {
		runOpts.Model = req.Model
	}
	orchestrator, err := NewOrchestrator(runOpts)
	if err != nil {
		return nil, err
	}

	var browserCap *browser.Capability
	capabilities := []tools.Capability{
		files.New(ws),
		shell.New(ws),
		tasklist.New(ws),
		message.New(message.Options{
			RunID:    run.ID,
			ThreadID: thread.ID,
			Threads:  s.opts.Threads,
			Broker:   s.opts.Broker,
			Logger:   s.opts.Logger,
		}),
	}
	if s.opts.BrowserEnabled {
		browserCap = browser.New(browser.Options{
			ThreadID: thread.ID,
			Threads:  s.opts.Threads,
			Headless: s.opts.BrowserHeadless,
			Timeout:  s.opts.BrowserTimeout,
			Logger:   s.opts.Logger,
		})
		capabilities = append(capabilities, browserCap)
	}
	if s.opts.WebSearch != nil {
		capabilities = append(capabilities, s.opts.WebSearch)
	}

	// The watcher lives as long as the run, not the request.
	watcher, err := WatchTaskState(context.Background(), ws, s.opts.Broker, run.ID, thread.ID, s.opts.Logger)
	if err != nil {
		s.opts.Logger.Warn("task list watcher not started", "run_id", run.ID, "error", err)
	}

	// The loop outlives the request that started it.
	go func() {
		defer func() {
			if watcher != nil {
				watcher.Close()
			}
			if browserCap != nil {
				browserCap.Close()
			}
		}()
		if err := orchestrator.Execute(context.Background(), run, capabilities...); err != nil {
			s.opts.Logger.Error("run finished with error", "run_id", run.ID, "error", err)
		}
	}()

	return run, nil
}
