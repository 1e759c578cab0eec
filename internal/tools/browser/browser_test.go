package browser

import (
	"context"
	"testing"

	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/tools"
)

// Chrome is not available in every test environment, so these tests cover
// registration and argument validation; the DevTools paths are exercised
// against a live browser manually.

func TestOperationsRegister(t *testing.T) {
	registry := tools.NewRegistry("thread-1", nil)
	registry.Register(New(Options{ThreadID: "thread-1"}))

	schemas := registry.FunctionSchemas()
	want := []string{
		"browser_click",
		"browser_extract",
		"browser_navigate",
		"browser_screenshot",
		"browser_type",
	}
	if len(schemas) != len(want) {
		t.Fatalf("got %d schemas, want %d", len(schemas), len(want))
	}
	for i, name := range want {
		if schemas[i].Name != name {
			t.Errorf("schema %d = %q, want %q", i, schemas[i].Name, name)
		}
	}
}

func TestNavigateRequiresURL(t *testing.T) {
	capability := New(Options{ThreadID: "thread-1"})
	defer capability.Close()

	result, err := capability.navigate(context.Background(), []any{""})
	if err != nil {
		t.Fatalf("navigate: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result for empty url")
	}
}

func TestTypeRequiresSelectorAndText(t *testing.T) {
	capability := New(Options{ThreadID: "thread-1"})
	defer capability.Close()

	result, err := capability.typeText(context.Background(), []any{"", "hello"})
	if err != nil {
		t.Fatalf("typeText: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result for empty selector")
	}

	result, err = capability.typeText(context.Background(), []any{"#input", ""})
	if err != nil {
		t.Fatalf("typeText: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result for empty text")
	}
}
