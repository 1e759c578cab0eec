package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	jsvalidate "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/hemeda3/nubian-ai-agent-framework-sub001/pkg/models"
)

// MaxToolParamsSize bounds the argument payload accepted per call (10MB).
const MaxToolParamsSize = 10 << 20

// DispatchErrorKind classifies tool dispatch failures.
type DispatchErrorKind string

const (
	DispatchNotFound        DispatchErrorKind = "not_found"
	DispatchExecutionFailed DispatchErrorKind = "execution_failed"
)

// DispatchError reports a failed tool invocation.
type DispatchError struct {
	Kind  DispatchErrorKind
	Tool  string
	Cause error
}

func (e *DispatchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("tool %s: %s: %v", e.Tool, e.Kind, e.Cause)
	}
	return fmt.Sprintf("tool %s: %s", e.Tool, e.Kind)
}

func (e *DispatchError) Unwrap() error { return e.Cause }

// RegisteredTool associates a registration key, the owning capability,
// an operation descriptor, and its sanitized schema inside one registry.
// Lifetime is one run.
type RegisteredTool struct {
	Key        string
	Capability Capability
	Operation  *Operation
	Schema     *Schema
}

// Registry catalogs the tool capabilities scoped to one conversation and
// dispatches model-issued calls to them. It maintains two lookup tables:
// call-name to handler for function-convention schemas, and tag-name to
// handler for XML-convention schemas. A registry is exclusive to one run;
// construct a fresh one per run.
type Registry struct {
	mu sync.RWMutex

	// contextID seeds synthesized fallback names, typically the thread id.
	contextID string
	logger    *slog.Logger

	functions map[string]*RegisteredTool
	xmlTags   map[string]*RegisteredTool

	// compiled validators per function name, advisory only.
	validators map[string]*jsvalidate.Schema
}

// NewRegistry creates an empty registry for one conversation. contextID
// (typically the thread id) seeds generated fallback names.
func NewRegistry(contextID string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		contextID:  contextID,
		logger:     logger,
		functions:  map[string]*RegisteredTool{},
		xmlTags:    map[string]*RegisteredTool{},
		validators: map[string]*jsvalidate.Schema{},
	}
}

// Register adds a capability's operations to the registry. If allowed is
// non-empty, only the named operations are registered. Last writer wins
// per registration key.
func (r *Registry) Register(capability Capability, allowed ...string) {
	if capability == nil {
		return
	}
	allowSet := map[string]bool{}
	for _, name := range allowed {
		allowSet[name] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, op := range capability.Operations() {
		if len(allowSet) > 0 && !allowSet[op.Name] {
			continue
		}
		op := op
		for _, schema := range op.Schemas {
			r.registerSchema(capability, &op, schema)
		}
	}
}

// registerSchema sanitizes the schema name and files the operation in the
// table matching its convention. Caller holds the lock.
func (r *Registry) registerSchema(capability Capability, op *Operation, schema *Schema) {
	if schema == nil {
		return
	}
	declared := schema.Name
	name, replaced, generated := SanitizeName(declared, r.contextID)
	name = r.ensureUnique(name, schema.Convention, generated)
	if replaced || name != declared {
		r.logger.Warn("tool name sanitized",
			"declared", declared,
			"sanitized", name,
			"operation", op.Name,
		)
	}

	clean := *schema
	clean.Name = name
	if clean.XMLTag != nil {
		tag := *clean.XMLTag
		tag.Tag = name
		clean.XMLTag = &tag
	}

	entry := &RegisteredTool{
		Key:        op.Name,
		Capability: capability,
		Operation:  op,
		Schema:     &clean,
	}

	switch schema.Convention {
	case XMLConvention:
		r.xmlTags[name] = entry
	case FunctionConvention, CustomConvention:
		r.functions[name] = entry
		r.compileValidator(name, clean.Parameters)
	}
}

// ensureUnique resolves fallback-name collisions by regenerating rather
// than relying on probabilistic uniqueness. Deliberate re-registration of
// a declared name still overwrites (last writer wins), so only generated
// names are regenerated.
func (r *Registry) ensureUnique(name string, convention CallingConvention, generated bool) string {
	if !generated {
		return name
	}
	table := r.functions
	if convention == XMLConvention {
		table = r.xmlTags
	}
	for i := 0; i < 8; i++ {
		if _, taken := table[name]; !taken {
			return name
		}
		name = fallbackName(r.contextID)
	}
	return name
}

func (r *Registry) compileValidator(name string, parameters json.RawMessage) {
	if len(parameters) == 0 {
		return
	}
	compiler := jsvalidate.NewCompiler()
	if err := compiler.AddResource(name+".json", strings.NewReader(string(parameters))); err != nil {
		r.logger.Warn("tool parameter spec not compilable", "tool", name, "error", err)
		return
	}
	compiled, err := compiler.Compile(name + ".json")
	if err != nil {
		r.logger.Warn("tool parameter spec not compilable", "tool", name, "error", err)
		return
	}
	r.validators[name] = compiled
}

// Invoke dispatches a model-issued call to the registered operation. The
// argument payload is decoded into a bag, optionally validated against the
// registered parameter spec (advisory), bound to the operation's declared
// parameters, and executed.
//
// Unknown names yield DispatchNotFound. A handler error yields
// DispatchExecutionFailed. Tool-reported failures come back as a result
// with IsError set, not as an error.
func (r *Registry) Invoke(ctx context.Context, name string, payload json.RawMessage) (*models.ToolResult, error) {
	if len(payload) > MaxToolParamsSize {
		return nil, &DispatchError{
			Kind:  DispatchExecutionFailed,
			Tool:  name,
			Cause: fmt.Errorf("arguments exceed maximum size of %d bytes", MaxToolParamsSize),
		}
	}

	r.mu.RLock()
	entry, ok := r.functions[name]
	if !ok {
		entry, ok = r.xmlTags[name]
	}
	validator := r.validators[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &DispatchError{Kind: DispatchNotFound, Tool: name}
	}

	bag := RawBag(payload)
	if validator != nil {
		var doc any
		if err := json.Unmarshal(payload, &doc); err == nil {
			if err := validator.Validate(doc); err != nil {
				r.logger.Warn("tool arguments failed schema validation",
					"tool", name,
					"error", err,
				)
			}
		}
	}

	args := bindArguments(entry.Operation, bag, r.logger)

	result, err := entry.Operation.Handler(ctx, args)
	if err != nil {
		return nil, &DispatchError{Kind: DispatchExecutionFailed, Tool: name, Cause: err}
	}
	if result == nil {
		result = &models.ToolResult{Content: ""}
	}
	if result.ToolName == "" {
		result.ToolName = name
	}
	return result, nil
}

// FunctionSchemas returns every registered function-convention schema for
// inclusion in the model request, sorted by name. Entries with a missing
// or non-conforming name are filtered out as a second gate behind
// sanitization.
func (r *Registry) FunctionSchemas() []*Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Schema, 0, len(r.functions))
	for name, entry := range r.functions {
		if entry.Schema == nil || !entry.Schema.valid() {
			r.logger.Warn("dropping unexportable tool schema", "name", name)
			continue
		}
		out = append(out, entry.Schema)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// XMLExamples returns tag name to example-usage text for prompt
// construction.
func (r *Registry) XMLExamples() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := map[string]string{}
	for tag, entry := range r.xmlTags {
		if entry.Schema == nil || entry.Schema.XMLTag == nil {
			continue
		}
		example := entry.Schema.XMLTag.Example
		if example == "" {
			example = fmt.Sprintf("<%s>...</%s>", tag, tag)
		}
		out[tag] = example
	}
	return out
}

// XMLTagSchemas returns every registered tag-convention schema, sorted by
// tag, for response scanning and prompt construction.
func (r *Registry) XMLTagSchemas() []*Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Schema, 0, len(r.xmlTags))
	for _, entry := range r.xmlTags {
		if entry.Schema == nil || entry.Schema.XMLTag == nil {
			continue
		}
		out = append(out, entry.Schema)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup returns the registered entry for a function name or XML tag.
func (r *Registry) Lookup(name string) (*RegisteredTool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if entry, ok := r.functions[name]; ok {
		return entry, true
	}
	entry, ok := r.xmlTags[name]
	return entry, ok
}
