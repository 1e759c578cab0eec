package agent

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/tools"
)

// BuildSystemPrompt assembles the per-iteration system prompt: the base
// prompt, usage examples for tag-convention tools, and instructions for
// control markers and task-state updates.
func BuildSystemPrompt(base string, registry *tools.Registry) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(base))

	if registry != nil {
		examples := registry.XMLExamples()
		if len(examples) > 0 {
			tags := make([]string, 0, len(examples))
			for tag := range examples {
				tags = append(tags, tag)
			}
			sort.Strings(tags)

			b.WriteString("\n\n## Tag tools\n")
			b.WriteString("You may invoke these tools by emitting their tag inline in your response:\n")
			for _, tag := range tags {
				fmt.Fprintf(&b, "\n- %s:\n%s\n", tag, examples[tag])
			}
		}
	}

	b.WriteString("\n\n## Run control\n")
	b.WriteString("When the task is fully done, include " + completeTag + " in your response.\n")
	b.WriteString("If you need input from the user before continuing, include " +
		askOpenTag + "your question" + askCloseTag + ".\n")
	b.WriteString("To update the task list, include the full replacement between " +
		todoOpenTag + " and " + todoCloseTag + ".\n")

	return b.String()
}
