package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/morezero/capability-bridge/pkg/capability"
)

const planReplyFormat = `Respond with a single JSON object containing:
- "tool_name": the capability name as a string, or null when none applies
- "arguments": an object of arguments (use {} when there are none)
- "reasoning": a short explanation

Return JSON only, no additional commentary.
`

// PlanPrompt renders the planning prompt for instruction over caps. A non-empty
// required names the capability the model must pick.
func PlanPrompt(instruction string, caps []capability.Descriptor, required, defaultPath string) string {
	var b strings.Builder
	b.WriteString("You are an agent that serves requests by calling capabilities. ")
	if required != "" {
		fmt.Fprintf(&b, "You must call the capability named '%s' and supply its required arguments. "+
			"If the request names no file, use '%s'.", required, defaultPath)
	} else {
		b.WriteString("Decide whether calling one of the capabilities below helps with the request.")
	}
	b.WriteString("\n\nAvailable capabilities:\n")
	b.WriteString(renderCatalog(caps))
	fmt.Fprintf(&b, "\n\nUser request: %s\n\n", instruction)
	b.WriteString(planReplyFormat)
	return b.String()
}

func renderCatalog(caps []capability.Descriptor) string {
	if len(caps) == 0 {
		return "No capabilities are currently available."
	}
	blocks := make([]string, 0, len(caps))
	for _, c := range caps {
		var params []string
		for _, p := range c.Parameters {
			typ := p.Type
			if typ == "" {
				typ = "string"
			}
			if p.Required {
				typ += ", required"
			}
			line := fmt.Sprintf("      - %s (%s)", p.Name, typ)
			if p.Description != "" {
				line += ": " + p.Description
			}
			params = append(params, line)
		}
		if len(params) == 0 {
			params = []string{"      - None"}
		}
		blocks = append(blocks, fmt.Sprintf("- Name: %s\n  Description: %s\n  Parameters:\n%s",
			c.Name, c.Description, strings.Join(params, "\n")))
	}
	return strings.Join(blocks, "\n")
}

// ComposePrompt renders the answer prompt. capabilityName and content may be empty.
func ComposePrompt(instruction, capabilityName, content, reasoning string, words int) string {
	parts := []string{"User request: " + instruction}
	switch {
	case capabilityName != "" && content != "":
		parts = append(parts, fmt.Sprintf("Capability '%s' output:\n%s", capabilityName, content))
	case capabilityName != "":
		parts = append(parts, fmt.Sprintf("Capability '%s' returned no content.", capabilityName))
	}
	if reasoning != "" {
		parts = append(parts, "Capability selection reasoning: "+reasoning)
	}

	return fmt.Sprintf("Compose a helpful response for the user based on the context below. "+
		"Write exactly %d words (no more, no less) summarising the topic, "+
		"and highlight key details from the capability output when available.\n\n%s\n\nRespond with plain text only.",
		words, strings.Join(parts, "\n\n"))
}

// ExtractJSONObject parses the text between the first '{' and the last '}'.
func ExtractJSONObject(text string) (map[string]interface{}, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end < start {
		return nil, false
	}
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(text[start:end+1]), &out); err != nil {
		return nil, false
	}
	return out, true
}
