package tools

import (
	"encoding/json"
	"strings"

	"github.com/invopop/jsonschema"
)

// CallingConvention identifies how an operation's schema is exposed to
// the model.
type CallingConvention string

const (
	// FunctionConvention exposes a JSON-schema parameter spec for inline
	// function calling.
	FunctionConvention CallingConvention = "function"

	// XMLConvention exposes a root tag plus parameter-to-node mappings for
	// tag-style calls embedded in assistant text.
	XMLConvention CallingConvention = "xml"

	// CustomConvention carries an opaque parameter blob.
	CustomConvention CallingConvention = "custom"
)

// Schema is the machine-readable description of one operation under one
// calling convention. Names are sanitized at registration before the
// schema is exposed to the model.
type Schema struct {
	Convention  CallingConvention `json:"convention"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`

	// Parameters is the JSON-schema parameter spec for function schemas.
	Parameters json.RawMessage `json:"parameters,omitempty"`

	// XMLTag describes tag-style schemas.
	XMLTag *XMLTagSchema `json:"xml_tag,omitempty"`

	// Custom is the opaque parameter blob for custom schemas.
	Custom json.RawMessage `json:"custom,omitempty"`
}

// XMLTagSchema maps an operation onto an XML root tag.
type XMLTagSchema struct {
	Tag string `json:"tag"`

	// Mappings declare where each parameter is read from within the tag.
	Mappings []XMLNodeMapping `json:"mappings,omitempty"`

	// Example is usage text included in the system prompt.
	Example string `json:"example,omitempty"`
}

// XMLNodeMapping binds one parameter to a node within the tag.
type XMLNodeMapping struct {
	ParamName string `json:"param_name"`

	// Node is "attribute", "element", or "content".
	Node string `json:"node"`
}

// FunctionSchema builds a function-convention schema with an explicit
// JSON-schema parameter spec.
func FunctionSchema(name, description string, parameters json.RawMessage) *Schema {
	if len(parameters) == 0 {
		parameters = json.RawMessage(`{"type":"object","properties":{}}`)
	}
	return &Schema{
		Convention:  FunctionConvention,
		Name:        name,
		Description: description,
		Parameters:  parameters,
	}
}

// FunctionSchemaFor builds a function-convention schema deriving the
// parameter spec from a Go struct prototype. Field names follow the
// struct's json tags.
func FunctionSchemaFor(name, description string, proto any) *Schema {
	reflector := jsonschema.Reflector{
		Anonymous:      true,
		DoNotReference: true,

		// Model-issued bags routinely carry extra keys; binding drops them.
		AllowAdditionalProperties: true,
	}
	derived := reflector.Reflect(proto)
	derived.Version = ""
	raw, err := json.Marshal(derived)
	if err != nil {
		raw = nil
	}
	return FunctionSchema(name, description, raw)
}

// XMLSchema builds a tag-convention schema.
func XMLSchema(tag, description, example string, mappings ...XMLNodeMapping) *Schema {
	return &Schema{
		Convention:  XMLConvention,
		Name:        tag,
		Description: description,
		XMLTag: &XMLTagSchema{
			Tag:      tag,
			Mappings: mappings,
			Example:  example,
		},
	}
}

// CustomSchema builds a custom-convention schema with an opaque blob.
func CustomSchema(name, description string, blob json.RawMessage) *Schema {
	return &Schema{
		Convention:  CustomConvention,
		Name:        name,
		Description: description,
		Custom:      blob,
	}
}

// valid reports whether the schema is exportable: a non-blank conforming
// name. Sanitization should prevent violations; export re-checks as a
// second gate.
func (s *Schema) valid() bool {
	if s == nil {
		return false
	}
	name := strings.TrimSpace(s.Name)
	return name != "" && sanitizedNamePattern.MatchString(name)
}
