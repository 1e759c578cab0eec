package agent

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/tools"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/pkg/models"
)

// Control markers the model embeds in assistant text. A completion marker
// ends the run as COMPLETED; an ask marker hands control back to the user
// and ends the run as STOPPED.
const (
	completeTag = "<complete>"
	askOpenTag  = "<ask>"
	askCloseTag = "</ask>"
)

// Task-state update block markers. Text between them replaces the todo
// document verbatim.
const (
	todoOpenTag  = "<todo>"
	todoCloseTag = "</todo>"
)

// ControlScan is the outcome of scanning one assistant message for
// run-control markers.
type ControlScan struct {
	Complete bool
	Ask      bool
	AskText  string
}

// ScanControlMarkers looks for completion and ask markers anywhere in the
// assistant text. A completion marker wins if both appear.
func ScanControlMarkers(content string) ControlScan {
	scan := ControlScan{
		Complete: strings.Contains(content, completeTag),
	}
	open := strings.Index(content, askOpenTag)
	if open < 0 {
		return scan
	}
	scan.Ask = true
	rest := content[open+len(askOpenTag):]
	if end := strings.Index(rest, askCloseTag); end >= 0 {
		scan.AskText = strings.TrimSpace(rest[:end])
	}
	return scan
}

// ExtractTodoUpdate returns the task-state replacement embedded in the
// assistant text, if any. Only the first block is honored.
func ExtractTodoUpdate(content string) (string, bool) {
	open := strings.Index(content, todoOpenTag)
	if open < 0 {
		return "", false
	}
	rest := content[open+len(todoOpenTag):]
	end := strings.Index(rest, todoCloseTag)
	if end < 0 {
		return "", false
	}
	return strings.TrimPrefix(rest[:end], "\n"), true
}

var xmlAttrPattern = regexp.MustCompile(`([A-Za-z0-9_-]+)\s*=\s*"([^"]*)"`)

// ParseXMLToolCalls extracts tag-convention tool calls from assistant text.
// Model output is not well-formed XML, so extraction is tolerant: each
// registered tag is matched independently, attributes and child elements
// are pulled with pattern matches, and anything unparseable is skipped.
func ParseXMLToolCalls(content string, schemas []*tools.Schema) []models.ToolCall {
	var calls []models.ToolCall
	for _, schema := range schemas {
		if schema == nil || schema.XMLTag == nil {
			continue
		}
		tag := schema.XMLTag.Tag
		pattern, err := regexp.Compile(
			fmt.Sprintf(`(?s)<%s((?:\s[^>]*)?)(?:/>|>(.*?)</%s>)`,
				regexp.QuoteMeta(tag), regexp.QuoteMeta(tag)))
		if err != nil {
			continue
		}
		for _, match := range pattern.FindAllStringSubmatch(content, -1) {
			attrs, inner := match[1], match[2]
			bag := bindXMLNodes(schema.XMLTag, attrs, inner)
			raw, err := json.Marshal(bag)
			if err != nil {
				continue
			}
			calls = append(calls, models.ToolCall{
				ID:        uuid.NewString(),
				Name:      tag,
				Arguments: raw,
			})
		}
	}
	return calls
}

// bindXMLNodes maps tag attributes, child elements, and inner content onto
// the schema's declared parameters.
func bindXMLNodes(tagSchema *tools.XMLTagSchema, attrs, inner string) map[string]any {
	attrValues := map[string]string{}
	for _, match := range xmlAttrPattern.FindAllStringSubmatch(attrs, -1) {
		attrValues[match[1]] = match[2]
	}

	bag := map[string]any{}
	for _, mapping := range tagSchema.Mappings {
		switch mapping.Node {
		case "attribute":
			if value, ok := attrValues[mapping.ParamName]; ok {
				bag[mapping.ParamName] = value
			}
		case "element":
			if value, ok := childElement(inner, mapping.ParamName); ok {
				bag[mapping.ParamName] = value
			}
		case "content":
			bag[mapping.ParamName] = strings.TrimSpace(inner)
		}
	}
	if len(tagSchema.Mappings) == 0 && strings.TrimSpace(inner) != "" {
		bag["content"] = strings.TrimSpace(inner)
	}
	return bag
}

func childElement(inner, name string) (string, bool) {
	openTag := "<" + name + ">"
	closeTag := "</" + name + ">"
	start := strings.Index(inner, openTag)
	if start < 0 {
		return "", false
	}
	rest := inner[start+len(openTag):]
	end := strings.Index(rest, closeTag)
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}
