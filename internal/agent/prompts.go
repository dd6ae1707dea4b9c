package agent

import (
	"encoding/json"

	"github.com/smancode/sman-sub006/internal/llm"
)

const systemPrompt = `You are a code analysis assistant embedded in the user's IDE.
You answer questions about the project the user has open. Use the
available tools to inspect the project instead of guessing: find and
read files, search for symbols, follow call chains. Keep answers
concise and grounded in what the tools returned.`

const planPrompt = `Break the analysis request down into subtasks. Call the
plan_subtasks tool exactly once with the full list. Keep subtasks
independent where possible; use dependsOn (indices into the list) only
when one subtask genuinely needs another's conclusion.`

// remoteToolDescriptions documents the tools the IDE plugin executes.
// Parameters stay loosely typed; the plugin validates its own inputs.
var remoteToolDescriptions = map[string]string{
	"find_file":    "Find files in the project by name pattern.",
	"read_file":    "Read the contents of a project file.",
	"grep_file":    "Search file contents for a pattern.",
	"call_chain":   "Trace the call chain of a method.",
	"extract_xml":  "Extract a fragment from an XML configuration file.",
	"apply_change": "Apply a code change to a project file.",
}

var genericObjectSchema = json.RawMessage(`{"type": "object", "additionalProperties": true}`)

// remoteToolDefs builds model-facing definitions for the forwarded
// tools named in the allow-list.
func remoteToolDefs(names []string) []llm.ToolDef {
	defs := make([]llm.ToolDef, 0, len(names))
	for _, name := range names {
		desc, ok := remoteToolDescriptions[name]
		if !ok {
			desc = "Tool executed by the connected IDE client."
		}
		defs = append(defs, llm.ToolDef{
			Name:        name,
			Description: desc,
			Parameters:  genericObjectSchema,
		})
	}
	return defs
}
