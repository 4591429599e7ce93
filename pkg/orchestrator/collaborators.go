package orchestrator

import (
	"context"

	"github.com/morezero/capability-bridge/pkg/capability"
	"github.com/morezero/capability-bridge/pkg/gateway"
	"github.com/morezero/capability-bridge/pkg/invocation"
)

// Plan is a planner's choice of capability and arguments.
type Plan struct {
	Capability string                 `json:"capability"`
	Arguments  map[string]interface{} `json:"arguments"`
	Reasoning  string                 `json:"reasoning,omitempty"`
}

// Planner picks the capability that serves an instruction. It returns an error
// matching invocation.ErrNoApplicableCapability when nothing applies.
type Planner interface {
	Plan(ctx context.Context, instruction string, caps []capability.Descriptor) (*Plan, error)
}

// Composer turns a capability result into the answer text.
type Composer interface {
	Compose(ctx context.Context, instruction string, plan *Plan, result *invocation.Result) (string, error)
}

// PlannerFunc adapts a function to Planner.
type PlannerFunc func(ctx context.Context, instruction string, caps []capability.Descriptor) (*Plan, error)

// Plan calls f.
func (f PlannerFunc) Plan(ctx context.Context, instruction string, caps []capability.Descriptor) (*Plan, error) {
	return f(ctx, instruction, caps)
}

// ComposerFunc adapts a function to Composer.
type ComposerFunc func(ctx context.Context, instruction string, plan *Plan, result *invocation.Result) (string, error)

// Compose calls f.
func (f ComposerFunc) Compose(ctx context.Context, instruction string, plan *Plan, result *invocation.Result) (string, error) {
	return f(ctx, instruction, plan, result)
}

// Invoker is the gateway as seen by the orchestrator.
type Invoker interface {
	Invoke(ctx context.Context, name string, args map[string]interface{}, opts ...gateway.CallOption) (*invocation.Outcome, error)
}

// CatalogSource provides the current catalog snapshot.
type CatalogSource interface {
	Catalog() *capability.Catalog
}
