// Package tools provides the capability catalog exposed to the model during
// an agent run. Each capability enumerates its own typed operation
// descriptors and schemas at construction; the registry builds lookup
// tables per calling convention and binds loosely-typed model-issued
// argument bags to declared parameter lists at dispatch time.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hemeda3/nubian-ai-agent-framework-sub001/pkg/models"
)

// Capability is implemented by every tool. A capability declares zero or
// more callable operations, each carrying machine-readable schema metadata
// for one or more calling conventions.
type Capability interface {
	// Operations returns the operation descriptors this capability exposes.
	// Called once at registration; the returned slice is not retained.
	Operations() []Operation
}

// Handler executes one operation with arguments bound positionally to the
// operation's declared parameter list. A slot is nil when binding could not
// produce a value; handlers validate their own required arguments and
// return a structured failure rather than panicking.
type Handler func(ctx context.Context, args []any) (*models.ToolResult, error)

// Operation describes a single callable operation: its schemas, its
// declared parameter signature, and the handler that executes it.
type Operation struct {
	// Name is the registration key. Re-registering the same key overwrites
	// the previous entry.
	Name string

	// Schemas holds the schema metadata for this operation. An operation
	// may declare both a function schema and an XML schema and appear in
	// both lookup tables simultaneously.
	Schemas []*Schema

	// Params declares the parameter signature used for argument binding,
	// in positional order.
	Params []Param

	// Handler executes the operation.
	Handler Handler
}

// ParamKind identifies the declared type of an operation parameter.
type ParamKind int

const (
	// KindBag passes the whole argument bag through unchanged. An
	// operation whose only parameter is a bag receives the raw payload.
	KindBag ParamKind = iota

	KindString
	KindInt
	KindFloat
	KindBool

	// KindList passes container values through without coercion.
	KindList

	// KindStruct converts the bound value into the parameter's Proto type
	// via a generic structural mapping.
	KindStruct
)

// Param declares one parameter of an operation signature.
type Param struct {
	Name string
	Kind ParamKind

	// Proto is a pointer prototype for KindStruct parameters; binding
	// allocates and fills a fresh copy per call.
	Proto any

	// Required is advisory. Binding never aborts a call for a missing
	// required parameter; the handler sees a nil slot and reports a
	// structured failure itself.
	Required bool
}

// Result is a convenience constructor for successful tool output.
func Result(content string) (*models.ToolResult, error) {
	return &models.ToolResult{Content: content}, nil
}

// Fail is a convenience constructor for a structured tool failure. The
// failure is fed back to the model as a tool result, not raised as an
// error.
func Fail(content string) (*models.ToolResult, error) {
	return &models.ToolResult{Content: content, IsError: true}, nil
}

// Failf formats a structured tool failure.
func Failf(format string, args ...any) (*models.ToolResult, error) {
	return Fail(fmt.Sprintf(format, args...))
}

// RawBag decodes a JSON argument payload into a bag of named values.
// A nil or empty payload yields an empty bag.
func RawBag(payload json.RawMessage) map[string]any {
	bag := map[string]any{}
	if len(payload) == 0 {
		return bag
	}
	if err := json.Unmarshal(payload, &bag); err != nil {
		return map[string]any{}
	}
	return bag
}
