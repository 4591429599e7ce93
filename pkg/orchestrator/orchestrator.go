// Package orchestrator runs one instruction through planning, invocation and composition.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/morezero/capability-bridge/pkg/capability"
	"github.com/morezero/capability-bridge/pkg/invocation"
	"github.com/morezero/capability-bridge/pkg/ledger"
)

const logPrefix = "orchestrator:orchestrator"

// Phase is the stage a run is in.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhasePlanning  Phase = "planning"
	PhaseInvoking  Phase = "invoking"
	PhaseComposing Phase = "composing"
)

// Kind classifies an Answer.
type Kind string

const (
	// KindAnswered means a capability ran and its result was composed.
	KindAnswered Kind = "answered"
	// KindNotActionable means no capability applied; nothing was invoked.
	KindNotActionable Kind = "not_actionable"
	// KindDegraded means the run failed; the text says why.
	KindDegraded Kind = "degraded"
)

// Answer is the composed reply to one instruction.
type Answer struct {
	RunID       string              `json:"runId"`
	Instruction string              `json:"instruction"`
	Kind        Kind                `json:"kind"`
	Text        string              `json:"text"`
	Capability  string              `json:"capability,omitempty"`
	Reasoning   string              `json:"reasoning,omitempty"`
	Outcome     *invocation.Outcome `json:"outcome,omitempty"`
	FailureCode invocation.Code     `json:"failureCode,omitempty"`
	// Composed is false when the composer failed and the text is the raw fallback.
	Composed bool `json:"composed"`
}

// Params wire an Orchestrator.
type Params struct {
	Planner  Planner
	Composer Composer
	Gateway  Invoker
	Catalog  CatalogSource
	Ledger   *ledger.Ledger
	// OnPhase, when set, is called on every phase change of every run.
	OnPhase func(runID string, phase Phase)
}

// Orchestrator drives runs. Runs may overlap; each has its own phase.
type Orchestrator struct {
	planner  Planner
	composer Composer
	gateway  Invoker
	catalog  CatalogSource
	ledger   *ledger.Ledger
	onPhase  func(runID string, phase Phase)

	mu     sync.Mutex
	phases map[string]Phase
}

// New creates an Orchestrator. A nil Ledger gets one of default capacity.
func New(p Params) *Orchestrator {
	l := p.Ledger
	if l == nil {
		l = ledger.New(ledger.DefaultCapacity)
	}
	return &Orchestrator{
		planner:  p.Planner,
		composer: p.Composer,
		gateway:  p.Gateway,
		catalog:  p.Catalog,
		ledger:   l,
		onPhase:  p.OnPhase,
		phases:   map[string]Phase{},
	}
}

// Run handles one instruction end to end. It always returns an answer; failures
// are described in the answer's text.
func (o *Orchestrator) Run(ctx context.Context, instruction string) *Answer {
	ans := &Answer{RunID: uuid.NewString(), Instruction: strings.TrimSpace(instruction)}
	defer o.setPhase(ans.RunID, PhaseIdle)

	if ans.Instruction == "" {
		ans.Kind = KindNotActionable
		ans.Text = "There is nothing to do for an empty instruction."
		return ans
	}

	o.setPhase(ans.RunID, PhasePlanning)
	// One snapshot per run: planning and defaults see the same catalog version.
	snap := o.catalog.Catalog()
	caps := snap.All()
	plan, err := o.planner.Plan(ctx, ans.Instruction, caps)
	switch {
	case errors.Is(err, invocation.ErrNoApplicableCapability) || (err == nil && (plan == nil || plan.Capability == "")):
		reason := ""
		if plan != nil {
			reason = plan.Reasoning
		}
		return o.notActionable(ans, reason, len(caps))
	case err != nil:
		slog.Warn(fmt.Sprintf("%s - Planning failed for run %s: %v", logPrefix, ans.RunID, err))
		return o.degrade(ans, err, "deciding what to do")
	}
	ans.Capability = plan.Capability
	ans.Reasoning = plan.Reasoning

	args := plan.Arguments
	if desc, err := snap.Lookup(plan.Capability); err == nil {
		args = capability.ApplyDefaults(desc, args)
	}

	o.setPhase(ans.RunID, PhaseInvoking)
	out, err := o.gateway.Invoke(ctx, plan.Capability, args)
	ans.Outcome = out
	if err != nil {
		if out != nil && !invocation.IsPreflight(err) {
			o.ledger.Append(out)
		}
		slog.Warn(fmt.Sprintf("%s - Run %s: %s failed: %v", logPrefix, ans.RunID, plan.Capability, err))
		return o.degrade(ans, err, fmt.Sprintf("running %s", plan.Capability))
	}
	o.ledger.Append(out)

	o.setPhase(ans.RunID, PhaseComposing)
	ans.Kind = KindAnswered
	text, err := o.composer.Compose(ctx, ans.Instruction, plan, out.Result)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - Composing failed for run %s: %v", logPrefix, ans.RunID, err))
		ans.Text = Fallback(ans.Instruction, plan.Capability, out.Result, err)
		return ans
	}
	ans.Text = text
	ans.Composed = true
	return ans
}

// RecentHistory returns up to k recorded outcomes, most recent first.
func (o *Orchestrator) RecentHistory(k int) []*invocation.Outcome {
	return o.ledger.Recent(k)
}

// Ledger returns the history ledger.
func (o *Orchestrator) Ledger() *ledger.Ledger { return o.ledger }

// Phases returns the phase of every run in flight.
func (o *Orchestrator) Phases() map[string]Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]Phase, len(o.phases))
	for id, p := range o.phases {
		out[id] = p
	}
	return out
}

func (o *Orchestrator) setPhase(runID string, p Phase) {
	o.mu.Lock()
	if p == PhaseIdle {
		delete(o.phases, runID)
	} else {
		o.phases[runID] = p
	}
	o.mu.Unlock()

	slog.Debug(fmt.Sprintf("%s - Run %s: %s", logPrefix, runID, p))
	if o.onPhase != nil {
		o.onPhase(runID, p)
	}
}

func (o *Orchestrator) notActionable(ans *Answer, reason string, available int) *Answer {
	ans.Kind = KindNotActionable
	ans.FailureCode = invocation.CodeNoApplicableCapability
	ans.Reasoning = reason
	if available == 0 {
		ans.Text = "No capabilities are available right now, so this request cannot be carried out."
	} else {
		ans.Text = fmt.Sprintf("None of the %d available capabilities applies to this request.", available)
	}
	if reason != "" {
		ans.Text += " " + reason
	}
	return ans
}

func (o *Orchestrator) degrade(ans *Answer, err error, while string) *Answer {
	code := invocation.CodeOf(err)
	ans.Kind = KindDegraded
	ans.FailureCode = code
	ans.Text = fmt.Sprintf("Sorry, something went wrong while %s: %s.", while, invocation.Describe(code))
	if detail := userDetail(err); detail != "" {
		ans.Text += " Details: " + detail
	}
	return ans
}

func userDetail(err error) string {
	var e *invocation.Error
	if errors.As(err, &e) {
		if e.Message != "" {
			return e.Message
		}
		if e.Err != nil {
			return e.Err.Error()
		}
		return ""
	}
	return err.Error()
}

// Fallback is the answer text used when composition fails: the instruction, the
// raw result and a note about the failure.
func Fallback(instruction, capabilityName string, result *invocation.Result, cause error) string {
	var b strings.Builder
	b.WriteString(instruction)
	if result != nil && result.Content != "" {
		fmt.Fprintf(&b, "\n\n%s output:\n%s", capabilityName, result.Content)
	}
	fmt.Fprintf(&b, "\n\n(Note: the answer could not be composed: %v)", cause)
	return b.String()
}
