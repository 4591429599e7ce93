package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/morezero/capability-bridge/pkg/capability"
	"github.com/morezero/capability-bridge/pkg/invocation"
	"github.com/morezero/capability-bridge/pkg/orchestrator"
)

const plannerLogPrefix = "llm:planner"

// Planner asks the model which capability serves an instruction.
type Planner struct {
	LLM Completer
	// RequiredCapability, when set and offered, overrides the model's choice.
	RequiredCapability string
}

// Plan implements orchestrator.Planner. A reply naming no capability, or one the
// catalog does not offer, yields a plan without a capability; the orchestrator
// answers it as not actionable with the plan's reasoning.
func (p *Planner) Plan(ctx context.Context, instruction string, caps []capability.Descriptor) (*orchestrator.Plan, error) {
	prompt := PlanPrompt(instruction, caps, p.RequiredCapability, orchestrator.DefaultFilePath)
	reply, err := p.LLM.Complete(ctx, prompt)
	if err != nil {
		return nil, invocation.Wrap(invocation.CodeInternal, err, "planning failed")
	}

	data, ok := ExtractJSONObject(reply)
	if !ok {
		slog.Warn(fmt.Sprintf("%s - Reply held no JSON object: %q", plannerLogPrefix, reply))
		return &orchestrator.Plan{Reasoning: "The planner reply could not be understood."}, nil
	}
	return p.interpret(data, caps), nil
}

func (p *Planner) interpret(data map[string]interface{}, caps []capability.Descriptor) *orchestrator.Plan {
	plan := &orchestrator.Plan{Arguments: map[string]interface{}{}}
	plan.Reasoning, _ = data["reasoning"].(string)
	if args, ok := data["arguments"].(map[string]interface{}); ok {
		plan.Arguments = args
	}

	offered := make(map[string]bool, len(caps))
	for _, c := range caps {
		offered[c.Name] = true
	}

	name, _ := data["tool_name"].(string)
	name = strings.TrimSpace(name)
	if name != "" && !offered[name] {
		plan.Reasoning += fmt.Sprintf(" (capability '%s' not available)", name)
		name = ""
	}

	if req := p.RequiredCapability; req != "" {
		switch {
		case !offered[req]:
			plan.Reasoning += fmt.Sprintf(" (required capability '%s' not available)", req)
			name = ""
		case name == "":
			plan.Reasoning += fmt.Sprintf(" (using required capability '%s')", req)
			name = req
		case name != req:
			plan.Reasoning += fmt.Sprintf(" (overriding '%s' with required '%s')", name, req)
			name = req
		}
	}

	plan.Capability = name
	plan.Reasoning = strings.TrimSpace(plan.Reasoning)
	return plan
}
