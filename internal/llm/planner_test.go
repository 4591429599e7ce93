package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morezero/capability-bridge/pkg/invocation"
)

const plannerTestPrefix = "llm:planner_test"

func reply(text string) Completer {
	return CompleterFunc(func(context.Context, string) (string, error) { return text, nil })
}

func TestPlanner_Plan(t *testing.T) {
	tests := []struct {
		name          string
		reply         string
		required      string
		wantCap       string
		wantArg       interface{}
		wantReasoning string
	}{
		{
			name:          "picks offered capability",
			reply:         `{"tool_name": "read_file", "arguments": {"path": "notes.txt"}, "reasoning": "the user wants the file"}`,
			wantCap:       "read_file",
			wantArg:       "notes.txt",
			wantReasoning: "the user wants the file",
		},
		{
			name:          "null tool",
			reply:         `{"tool_name": null, "arguments": {}, "reasoning": "small talk"}`,
			wantReasoning: "small talk",
		},
		{
			name:          "unknown tool",
			reply:         `{"tool_name": "weather", "arguments": {}, "reasoning": "asks about weather"}`,
			wantReasoning: "asks about weather (capability 'weather' not available)",
		},
		{
			name:          "unparseable reply",
			reply:         "I think you should read the file.",
			wantReasoning: "The planner reply could not be understood.",
		},
		{
			name:          "required overrides choice",
			reply:         `{"tool_name": "echo", "arguments": {"path": "a.txt"}, "reasoning": "echo it"}`,
			required:      "read_file",
			wantCap:       "read_file",
			wantArg:       "a.txt",
			wantReasoning: "echo it (overriding 'echo' with required 'read_file')",
		},
		{
			name:          "required fills empty choice",
			reply:         `{"tool_name": null, "arguments": {}, "reasoning": ""}`,
			required:      "read_file",
			wantCap:       "read_file",
			wantReasoning: "(using required capability 'read_file')",
		},
		{
			name:          "required not offered",
			reply:         `{"tool_name": "read_file", "arguments": {}}`,
			required:      "read_file_mcp",
			wantReasoning: "(required capability 'read_file_mcp' not available)",
		},
		{
			name:          "arguments not an object",
			reply:         `{"tool_name": "echo", "arguments": "hi"}`,
			wantCap:       "echo",
			wantReasoning: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Planner{LLM: reply(tt.reply), RequiredCapability: tt.required}
			plan, err := p.Plan(context.Background(), "do it", promptCatalog())
			require.NoError(t, err, "%s - unexpected error", plannerTestPrefix)
			assert.Equal(t, tt.wantCap, plan.Capability, "%s - unexpected plan.Capability", plannerTestPrefix)
			assert.Equal(t, tt.wantReasoning, plan.Reasoning, "%s - unexpected plan.Reasoning", plannerTestPrefix)
			assert.NotNil(t, plan.Arguments, "%s - expected plan.Arguments", plannerTestPrefix)
			if tt.wantArg != nil {
				assert.Equal(t, tt.wantArg, plan.Arguments["path"], "%s - unexpected plan.Arguments[path]", plannerTestPrefix)
			}
		})
	}
}

func TestPlanner_SendsCatalogInPrompt(t *testing.T) {
	var seen string
	p := &Planner{LLM: CompleterFunc(func(_ context.Context, prompt string) (string, error) {
		seen = prompt
		return `{"tool_name": null}`, nil
	})}

	_, err := p.Plan(context.Background(), "Summarize sample.txt", promptCatalog())
	require.NoError(t, err, "%s - unexpected error", plannerTestPrefix)
	assert.True(t, strings.Contains(seen, "- Name: read_file"), "%s - expected strings.Contains(seen, - Name: read_file)", plannerTestPrefix)
	assert.True(t, strings.Contains(seen, "User request: Summarize sample.txt"), "%s - expected strings.Contains(seen, User request: Summarize sample.txt)", plannerTestPrefix)
}

func TestPlanner_ModelFailure(t *testing.T) {
	p := &Planner{LLM: CompleterFunc(func(context.Context, string) (string, error) {
		return "", errors.New("status 503")
	})}

	plan, err := p.Plan(context.Background(), "read it", promptCatalog())
	assert.Nil(t, plan, "%s - expected no plan", plannerTestPrefix)
	require.Error(t, err, "%s - expected an error", plannerTestPrefix)
	assert.Equal(t, invocation.CodeInternal, invocation.CodeOf(err), "%s - unexpected invocation.CodeOf(err)", plannerTestPrefix)
	assert.False(t, errors.Is(err, invocation.ErrNoApplicableCapability), "%s - expected errors.Is(err, invocation.ErrNoApplicableCapability) to be false", plannerTestPrefix)
}
