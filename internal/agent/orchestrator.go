package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/storage"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/tools"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/pkg/models"
)

// Terminal messages recorded on the run when the loop ends without an
// explicit completion marker.
const (
	stoppedByControlMessage = "run stopped by control signal"
	askMessagePrefix        = "awaiting user input for ask"
	maxIterationsMessage    = "maximum iterations reached"
)

// Orchestrator drives one run at a time through the iteration loop: model
// call, tool dispatch, persistence, streaming, and the terminal status
// transition. Construct one per worker; per-run state lives in a runState.
type Orchestrator struct {
	opts Options
}

// NewOrchestrator validates options and returns an orchestrator.
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.Provider == nil {
		return nil, ErrNoProvider
	}
	if opts.Status == nil {
		return nil, ErrNoStatus
	}
	if opts.Threads == nil {
		return nil, ErrNoThreads
	}
	if opts.Broker == nil {
		return nil, ErrNoBroker
	}
	return &Orchestrator{opts: sanitizeOptions(opts)}, nil
}

// runState is the per-run working set. Owned by a single Execute call,
// never shared across runs.
type runState struct {
	run      *models.Run
	registry *tools.Registry
	executor *Executor

	iteration int

	// terminal outcome
	status  models.RunStatus
	message string
}

// Execute drives run to a terminal status. capabilities are registered
// into a registry scoped to this run only. The returned error reflects an
// unrecoverable loop failure; normal stops and completions return nil.
func (o *Orchestrator) Execute(ctx context.Context, run *models.Run, capabilities ...tools.Capability) error {
	logger := o.opts.Logger.With("run_id", run.ID, "thread_id", run.ThreadID)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// A STOP on either control channel cancels the run context; the loop
	// observes it at the next suspension point.
	listener, err := o.opts.Broker.ListenControl(runCtx, run.ID, cancel)
	if err != nil {
		return fmt.Errorf("listen control: %w", err)
	}
	defer listener.Close()

	if err := o.opts.Broker.MarkActive(runCtx, run.ID); err != nil {
		logger.Warn("marking run active failed", "error", err)
	}

	if o.opts.Metrics != nil {
		o.opts.Metrics.ActiveRuns.Inc()
		defer o.opts.Metrics.ActiveRuns.Dec()
	}

	state := &runState{
		run:      run,
		registry: tools.NewRegistry(run.ThreadID, logger),
	}
	if canceled(runCtx) {
		return o.finish(ctx, state, models.RunStatusStopped, stoppedByControlMessage, logger)
	}
	for _, capability := range capabilities {
		state.registry.Register(capability)
	}
	state.executor = NewExecutor(state.registry, o.opts.ExecutorConfig, logger, o.opts.Metrics)

	runErr := o.loop(runCtx, state, logger)
	if runErr != nil {
		// Status/cleanup writes use the parent context so a cancelled run
		// context cannot block failure recording.
		if ferr := o.finish(ctx, state, models.RunStatusFailed, runErr.Error(), logger); ferr != nil {
			logger.Error("recording run failure failed", "error", ferr)
		}
		return runErr
	}
	return o.finish(ctx, state, state.status, state.message, logger)
}

// loop runs iterations until a terminal condition fills state.status.
func (o *Orchestrator) loop(ctx context.Context, state *runState, logger *slog.Logger) error {
	for state.iteration = 1; state.iteration <= o.opts.MaxIterations; state.iteration++ {
		if canceled(ctx) {
			state.status = models.RunStatusStopped
			state.message = stoppedByControlMessage
			return nil
		}

		done, err := o.iterate(ctx, state, logger)
		if err != nil {
			if canceled(ctx) {
				state.status = models.RunStatusStopped
				state.message = stoppedByControlMessage
				return nil
			}
			return &RunError{RunID: state.run.ID, Iteration: state.iteration, Stage: "iterate", Err: err}
		}
		if done {
			return nil
		}

		// Pace the loop; a stop during the pause still lands as STOPPED.
		select {
		case <-ctx.Done():
			state.status = models.RunStatusStopped
			state.message = stoppedByControlMessage
			return nil
		case <-time.After(o.opts.IterationDelay):
		}
	}

	// Budget exhaustion is a normal completion, not a failure.
	state.status = models.RunStatusCompleted
	state.message = maxIterationsMessage
	return nil
}

// iterate performs one full iteration. It returns done=true once the run
// reached a terminal condition recorded in state.
func (o *Orchestrator) iterate(ctx context.Context, state *runState, logger *slog.Logger) (bool, error) {
	threadID := state.run.ThreadID

	todo, err := readTaskState(ctx, o.opts.Workspace)
	if err != nil {
		return false, fmt.Errorf("read task state: %w", err)
	}

	if canceled(ctx) {
		state.status = models.RunStatusStopped
		state.message = stoppedByControlMessage
		return true, nil
	}

	ephemeral, err := o.buildEphemeralContext(ctx, threadID)
	if err != nil {
		return false, fmt.Errorf("build ephemeral context: %w", err)
	}

	history, err := o.opts.Threads.GetHistory(ctx, threadID, true)
	if err != nil {
		return false, fmt.Errorf("load history: %w", err)
	}
	if o.opts.ContextManager != nil {
		history, err = o.opts.ContextManager.Apply(ctx, threadID, history)
		if err != nil {
			return false, fmt.Errorf("apply context window: %w", err)
		}
	}
	if todo != "" {
		// The model sees the latest plan state as a trailing user turn;
		// it is loop input, not produced output, so it is never persisted.
		history = append(history, &models.Message{
			ThreadID:  threadID,
			Type:      models.MessageTypeUser,
			Content:   "Current task list:\n" + todo,
			CreatedAt: time.Now().UTC(),
		})
	}

	if canceled(ctx) {
		state.status = models.RunStatusStopped
		state.message = stoppedByControlMessage
		return true, nil
	}

	start := time.Now()
	completion, err := o.opts.Provider.Complete(ctx, &CompletionRequest{
		Model:        o.opts.Model,
		SystemPrompt: BuildSystemPrompt(o.opts.SystemPrompt, state.registry),
		Messages:     history,
		Ephemeral:    ephemeral,
		Tools:        state.registry.FunctionSchemas(),
		MaxTokens:    o.opts.MaxTokens,
		Temperature:  o.opts.Temperature,
	})
	if o.opts.Metrics != nil {
		o.opts.Metrics.RecordLLMRequest(o.opts.Provider.Name(), o.opts.Model, time.Since(start), err)
	}
	if err != nil {
		return false, fmt.Errorf("model call: %w", err)
	}
	if o.opts.Metrics != nil {
		o.opts.Metrics.RecordTokens(o.opts.Provider.Name(), o.opts.Model,
			completion.PromptTokens, completion.CompletionTokens)
	}
	if truncatedFinish(completion.FinishReason) {
		logger.Warn("model output truncated",
			"finish_reason", completion.FinishReason,
			"max_tokens", o.opts.MaxTokens,
		)
	}

	assistant := &models.Message{
		ID:           uuid.NewString(),
		ThreadID:     threadID,
		Type:         models.MessageTypeAssistant,
		Content:      completion.Content,
		IsLLMMessage: true,
		CreatedAt:    time.Now().UTC(),
	}
	o.persistAndPublish(ctx, state.run.ID, assistant)

	calls := completion.ToolCalls
	calls = append(calls, ParseXMLToolCalls(completion.Content, state.registry.XMLTagSchemas())...)
	if len(calls) > 0 {
		results := state.executor.ExecuteAll(ctx, calls)
		for _, result := range results {
			o.persistAndPublish(ctx, state.run.ID, toolResultMessage(threadID, result))
		}
		// A tool may end the run itself. The first signal wins; its
		// result is already persisted above.
		for _, result := range results {
			switch result.Signal {
			case models.ToolSignalComplete:
				state.status = models.RunStatusCompleted
				state.message = ""
				return true, nil
			case models.ToolSignalStop:
				state.status = models.RunStatusStopped
				state.message = fmt.Sprintf("run stopped by tool %s", result.ToolName)
				return true, nil
			}
		}
	}

	scan := ScanControlMarkers(completion.Content)
	switch {
	case scan.Complete:
		state.status = models.RunStatusCompleted
		state.message = ""
		return true, nil
	case scan.Ask:
		message := askMessagePrefix
		if scan.AskText != "" {
			message += ": " + scan.AskText
		}
		state.status = models.RunStatusStopped
		state.message = message
		return true, nil
	}

	if update, ok := ExtractTodoUpdate(completion.Content); ok {
		if err := writeTaskState(ctx, o.opts.Workspace, update); err != nil {
			logger.Warn("task state update failed", "error", err)
		}
	}

	return false, nil
}

// buildEphemeralContext assembles the transient message carrying the most
// recent browser state and any pending image context. The message is sent
// to the model but never persisted. Consumed image-context messages are
// deleted so the next iteration does not re-attach them.
func (o *Orchestrator) buildEphemeralContext(ctx context.Context, threadID string) (*models.Message, error) {
	var parts []models.ContentPart

	browser, err := o.opts.Threads.GetLatestByType(ctx, threadID, models.MessageTypeBrowserState)
	if err != nil && !isNotFound(err) {
		return nil, err
	}
	if browser != nil {
		// Reduce to a textual reference; the stored payload stays behind.
		parts = append(parts, models.ContentPart{
			Type: "text",
			Text: "Current browser state:\n" + browser.Text(),
		})
	}

	image, err := o.opts.Threads.GetLatestByType(ctx, threadID, models.MessageTypeImageContext)
	if err != nil && !isNotFound(err) {
		return nil, err
	}
	if image != nil {
		for _, part := range image.Parts {
			if part.URL != "" {
				parts = append(parts, models.ContentPart{
					Type:     "image_url",
					URL:      part.URL,
					MimeType: part.MimeType,
				})
			}
		}
		if err := o.opts.Threads.DeleteByType(ctx, threadID, models.MessageTypeImageContext); err != nil {
			return nil, err
		}
	}

	if len(parts) == 0 {
		return nil, nil
	}
	return &models.Message{
		ThreadID:  threadID,
		Type:      models.MessageTypeUser,
		Parts:     parts,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// persistAndPublish writes a produced message to the thread store, then
// streams it, in that order so subscribers observe the persisted sequence.
// Both writes are best-effort: a status or message write failure never
// aborts an otherwise-successful run, it is logged and the loop carries on
// with the in-memory copy.
func (o *Orchestrator) persistAndPublish(ctx context.Context, runID string, msg *models.Message) {
	if err := o.opts.Threads.InsertMessage(ctx, msg); err != nil {
		o.opts.Logger.Warn("message persist failed", "run_id", runID, "message_id", msg.ID, "error", err)
	}
	if err := o.opts.Broker.Publish(ctx, runID, msg); err != nil {
		o.opts.Logger.Warn("stream publish failed", "run_id", runID, "message_id", msg.ID, "error", err)
	} else if o.opts.Metrics != nil {
		o.opts.Metrics.StreamPublishCounter.Inc()
	}
}

// finish records the terminal status (which also propagates the matching
// control signal) and releases streaming resources.
func (o *Orchestrator) finish(ctx context.Context, state *runState, status models.RunStatus, message string, logger *slog.Logger) error {
	if status == "" {
		status = models.RunStatusCompleted
	}
	if o.opts.Metrics != nil {
		o.opts.Metrics.RunFinished(string(status), state.iteration)
	}

	err := o.opts.Status.Transition(ctx, state.run.ID, status, message)
	if err != nil {
		logger.Error("status transition failed", "status", status, "error", err)
	}
	o.opts.Broker.Cleanup(ctx, state.run.ID)

	logger.Info("run finished",
		"status", status,
		"iterations", state.iteration,
		"message", message,
	)
	return err
}

func toolResultMessage(threadID string, result *models.ToolResult) *models.Message {
	content := result.Content
	if result.IsError && !strings.HasPrefix(content, "Error") {
		content = "Error: " + content
	}
	return &models.Message{
		ID:           uuid.NewString(),
		ThreadID:     threadID,
		Type:         models.MessageTypeToolResult,
		Content:      content,
		IsLLMMessage: true,
		Metadata: map[string]any{
			"tool_call_id": result.ToolCallID,
			"tool_name":    result.ToolName,
			"is_error":     result.IsError,
		},
		CreatedAt: time.Now().UTC(),
	}
}

func canceled(ctx context.Context) bool {
	return ctx.Err() != nil
}

// truncatedFinish reports whether the provider stopped generating because
// the token budget ran out rather than by the model's choice.
func truncatedFinish(reason string) bool {
	switch reason {
	case "length", "max_tokens":
		return true
	}
	return false
}

func isNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}
