package agent

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/tools"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/pkg/models"
)

// fakeCapability exposes a fixed operation list for tests.
type fakeCapability struct {
	ops []tools.Operation
}

func (c *fakeCapability) Operations() []tools.Operation { return c.ops }

func echoCapability(name string) *fakeCapability {
	return &fakeCapability{ops: []tools.Operation{{
		Name:    name,
		Schemas: []*tools.Schema{tools.FunctionSchema(name, "echo text back", nil)},
		Params:  []tools.Param{{Name: "text", Kind: tools.KindString}},
		Handler: func(ctx context.Context, args []any) (*models.ToolResult, error) {
			text, _ := args[0].(string)
			return tools.Result("echo: " + text)
		},
	}}}
}

func callFor(name, argsJSON string) models.ToolCall {
	return models.ToolCall{ID: "call-" + name, Name: name, Arguments: json.RawMessage(argsJSON)}
}

func TestExecuteAllSequential(t *testing.T) {
	registry := tools.NewRegistry("thread-1", nil)
	registry.Register(echoCapability("echo"))
	executor := NewExecutor(registry, nil, nil, nil)

	results := executor.ExecuteAll(context.Background(), []models.ToolCall{
		callFor("echo", `{"text":"one"}`),
		callFor("echo", `{"text":"two"}`),
	})
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results[0].Content != "echo: one" || results[1].Content != "echo: two" {
		t.Errorf("results out of order: %q, %q", results[0].Content, results[1].Content)
	}
	if results[0].ToolCallID != "call-echo" {
		t.Errorf("ToolCallID = %q", results[0].ToolCallID)
	}
}

func TestExecuteAllParallelPreservesOrder(t *testing.T) {
	registry := tools.NewRegistry("thread-1", nil)
	registry.Register(&fakeCapability{ops: []tools.Operation{{
		Name:    "slow",
		Schemas: []*tools.Schema{tools.FunctionSchema("slow", "", nil)},
		Params:  []tools.Param{{Name: "text", Kind: tools.KindString}},
		Handler: func(ctx context.Context, args []any) (*models.ToolResult, error) {
			text, _ := args[0].(string)
			if text == "first" {
				time.Sleep(30 * time.Millisecond)
			}
			return tools.Result(text)
		},
	}}})
	executor := NewExecutor(registry, &ExecutorConfig{Strategy: StrategyParallel}, nil, nil)

	results := executor.ExecuteAll(context.Background(), []models.ToolCall{
		callFor("slow", `{"text":"first"}`),
		callFor("slow", `{"text":"second"}`),
	})
	if results[0].Content != "first" || results[1].Content != "second" {
		t.Errorf("parallel results out of order: %q, %q", results[0].Content, results[1].Content)
	}
}

func TestUnknownToolBecomesErrorResult(t *testing.T) {
	registry := tools.NewRegistry("thread-1", nil)
	executor := NewExecutor(registry, nil, nil, nil)

	results := executor.ExecuteAll(context.Background(), []models.ToolCall{
		callFor("missing", `{}`),
	})
	if !results[0].IsError {
		t.Fatal("unknown tool did not produce an error result")
	}
}

func TestHandlerErrorRetriesThenFails(t *testing.T) {
	var attempts atomic.Int32
	registry := tools.NewRegistry("thread-1", nil)
	registry.Register(&fakeCapability{ops: []tools.Operation{{
		Name:    "flaky",
		Schemas: []*tools.Schema{tools.FunctionSchema("flaky", "", nil)},
		Handler: func(ctx context.Context, args []any) (*models.ToolResult, error) {
			attempts.Add(1)
			return nil, errors.New("transient")
		},
	}}})
	executor := NewExecutor(registry, &ExecutorConfig{
		DefaultRetries: 2,
		RetryBackoff:   time.Millisecond,
	}, nil, nil)

	results := executor.ExecuteAll(context.Background(), []models.ToolCall{callFor("flaky", `{}`)})
	if !results[0].IsError {
		t.Error("expected error result")
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3 (initial + 2 retries)", got)
	}
}

func TestHandlerRecoversFromRetry(t *testing.T) {
	var attempts atomic.Int32
	registry := tools.NewRegistry("thread-1", nil)
	registry.Register(&fakeCapability{ops: []tools.Operation{{
		Name:    "recovering",
		Schemas: []*tools.Schema{tools.FunctionSchema("recovering", "", nil)},
		Handler: func(ctx context.Context, args []any) (*models.ToolResult, error) {
			if attempts.Add(1) < 2 {
				return nil, errors.New("transient")
			}
			return tools.Result("ok")
		},
	}}})
	executor := NewExecutor(registry, &ExecutorConfig{
		DefaultRetries: 2,
		RetryBackoff:   time.Millisecond,
	}, nil, nil)

	results := executor.ExecuteAll(context.Background(), []models.ToolCall{callFor("recovering", `{}`)})
	if results[0].IsError {
		t.Errorf("expected success after retry, got error: %s", results[0].Content)
	}
}

func TestPanicBecomesErrorResult(t *testing.T) {
	registry := tools.NewRegistry("thread-1", nil)
	registry.Register(&fakeCapability{ops: []tools.Operation{{
		Name:    "panicky",
		Schemas: []*tools.Schema{tools.FunctionSchema("panicky", "", nil)},
		Handler: func(ctx context.Context, args []any) (*models.ToolResult, error) {
			panic("boom")
		},
	}}})
	executor := NewExecutor(registry, &ExecutorConfig{DefaultRetries: 0}, nil, nil)

	results := executor.ExecuteAll(context.Background(), []models.ToolCall{callFor("panicky", `{}`)})
	if !results[0].IsError {
		t.Fatal("panic did not produce an error result")
	}
}

func TestCancelledContextShortCircuits(t *testing.T) {
	registry := tools.NewRegistry("thread-1", nil)
	registry.Register(echoCapability("echo"))
	executor := NewExecutor(registry, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := executor.ExecuteAll(ctx, []models.ToolCall{callFor("echo", `{"text":"x"}`)})
	if !results[0].IsError {
		t.Error("cancelled dispatch should yield an error result")
	}
}

func TestPerToolTimeout(t *testing.T) {
	registry := tools.NewRegistry("thread-1", nil)
	registry.Register(&fakeCapability{ops: []tools.Operation{{
		Name:    "sleepy",
		Schemas: []*tools.Schema{tools.FunctionSchema("sleepy", "", nil)},
		Handler: func(ctx context.Context, args []any) (*models.ToolResult, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Second):
				return tools.Result("finished")
			}
		},
	}}})
	executor := NewExecutor(registry, &ExecutorConfig{DefaultRetries: 0}, nil, nil)
	executor.SetToolConfig("sleepy", &ToolConfig{Timeout: 20 * time.Millisecond})

	start := time.Now()
	results := executor.ExecuteAll(context.Background(), []models.ToolCall{callFor("sleepy", `{}`)})
	if !results[0].IsError {
		t.Error("timed-out dispatch should yield an error result")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("per-tool timeout was not applied")
	}
}
