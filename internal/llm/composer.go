package llm

import (
	"context"
	"fmt"

	"github.com/morezero/capability-bridge/pkg/invocation"
	"github.com/morezero/capability-bridge/pkg/orchestrator"
)

// DefaultAnswerWords is the answer length asked for when Words is unset.
const DefaultAnswerWords = 50

// Composer asks the model for a short answer and appends the raw capability output.
type Composer struct {
	LLM   Completer
	Words int
}

// Compose implements orchestrator.Composer. Errors are returned as is so the
// orchestrator can fall back to the raw result.
func (c *Composer) Compose(ctx context.Context, instruction string, plan *orchestrator.Plan, result *invocation.Result) (string, error) {
	words := c.Words
	if words <= 0 {
		words = DefaultAnswerWords
	}
	var name, reasoning, content string
	if plan != nil {
		name, reasoning = plan.Capability, plan.Reasoning
	}
	if result != nil {
		content = result.Content
	}

	summary, err := c.LLM.Complete(ctx, ComposePrompt(instruction, name, content, reasoning, words))
	if err != nil {
		return "", err
	}
	if content == "" {
		return summary, nil
	}
	if name == "" {
		name = "capability"
	}
	return fmt.Sprintf("%s\n\n--- File Content (%s) ---\n%s", summary, name, content), nil
}
