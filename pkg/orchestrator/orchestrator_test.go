package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morezero/capability-bridge/pkg/capability"
	"github.com/morezero/capability-bridge/pkg/gateway"
	"github.com/morezero/capability-bridge/pkg/invocation"
	"github.com/morezero/capability-bridge/pkg/ledger"
)

const orchestratorTestPrefix = "orchestrator:orchestrator_test"

type staticCatalog struct{ cat *capability.Catalog }

func (s staticCatalog) Catalog() *capability.Catalog { return s.cat }

type fakeInvoker struct {
	mu    sync.Mutex
	calls []map[string]interface{}
	fn    func(name string, args map[string]interface{}) (*invocation.Outcome, error)
}

func (f *fakeInvoker) Invoke(_ context.Context, name string, args map[string]interface{}, _ ...gateway.CallOption) (*invocation.Outcome, error) {
	f.mu.Lock()
	f.calls = append(f.calls, args)
	f.mu.Unlock()
	return f.fn(name, args)
}

func readFileCatalog(t *testing.T) staticCatalog {
	t.Helper()
	cat, err := capability.NewCatalog([]capability.Descriptor{{
		Name:       "read_file",
		Parameters: []capability.Parameter{{Name: "path", Type: "string", Required: true, Default: "sample.txt"}},
	}}, 1, time.Now())
	require.NoError(t, err, "%s - unexpected error", orchestratorTestPrefix)
	return staticCatalog{cat: cat}
}

func succeed(content string) func(string, map[string]interface{}) (*invocation.Outcome, error) {
	return func(name string, args map[string]interface{}) (*invocation.Outcome, error) {
		req := invocation.NewRequest("id-"+name, name, args)
		return invocation.Succeeded(req, time.Now(), &invocation.Result{Content: content}), nil
	}
}

func planRead(path string) Planner {
	return PlannerFunc(func(context.Context, string, []capability.Descriptor) (*Plan, error) {
		return &Plan{Capability: "read_file", Arguments: map[string]interface{}{"path": path}, Reasoning: "needs the file"}, nil
	})
}

func TestRun_Answered(t *testing.T) {
	inv := &fakeInvoker{fn: succeed("hello")}
	l := ledger.New(10)
	var phases []Phase
	o := New(Params{
		Planner:  planRead("sample.txt"),
		Composer: TemplateComposer{},
		Gateway:  inv,
		Catalog:  readFileCatalog(t),
		Ledger:   l,
		OnPhase:  func(_ string, p Phase) { phases = append(phases, p) },
	})

	ans := o.Run(context.Background(), "read sample.txt")

	assert.Equal(t, KindAnswered, ans.Kind, "%s - unexpected ans.Kind", orchestratorTestPrefix)
	assert.Contains(t, ans.Text, "hello", "%s - unexpected content in ans.Text", orchestratorTestPrefix)
	assert.True(t, ans.Composed, "%s - expected ans.Composed", orchestratorTestPrefix)
	assert.Equal(t, "read_file", ans.Capability, "%s - unexpected ans.Capability", orchestratorTestPrefix)
	assert.Equal(t, []Phase{PhasePlanning, PhaseInvoking, PhaseComposing, PhaseIdle}, phases, "%s - unexpected phases", orchestratorTestPrefix)
	require.Equal(t, 1, l.Len(), "%s - unexpected l.Len()", orchestratorTestPrefix)
	assert.True(t, o.RecentHistory(1)[0].OK(), "%s - expected o.RecentHistory(1)[0].OK()", orchestratorTestPrefix)
	assert.Empty(t, o.Phases(), "%s - expected empty o.Phases()", orchestratorTestPrefix)
}

func TestRun_FillsDefaults(t *testing.T) {
	inv := &fakeInvoker{fn: succeed("hello")}
	o := New(Params{
		Planner:  planRead(""),
		Composer: TemplateComposer{},
		Gateway:  inv,
		Catalog:  readFileCatalog(t),
	})

	o.Run(context.Background(), "summarize the file")
	require.Len(t, inv.calls, 1, "%s - wrong length of inv.calls", orchestratorTestPrefix)
	assert.Equal(t, "sample.txt", inv.calls[0]["path"], "%s - unexpected inv.calls[0][path]", orchestratorTestPrefix)
}

// swappingCatalog hands out its first catalog once, then the second one.
type swappingCatalog struct {
	mu     sync.Mutex
	reads  int
	first  *capability.Catalog
	second *capability.Catalog
}

func (s *swappingCatalog) Catalog() *capability.Catalog {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.reads == 1 {
		return s.first
	}
	return s.second
}

func TestRun_PlansAndFillsDefaultsFromOneSnapshot(t *testing.T) {
	withDefault := func(version uint64, def string) *capability.Catalog {
		cat, err := capability.NewCatalog([]capability.Descriptor{{
			Name:       "read_file",
			Parameters: []capability.Parameter{{Name: "path", Type: "string", Required: true, Default: def}},
		}}, version, time.Now())
		require.NoError(t, err, "%s - unexpected error", orchestratorTestPrefix)
		return cat
	}
	src := &swappingCatalog{first: withDefault(1, "planned.txt"), second: withDefault(2, "refreshed.txt")}

	var plannedCaps int
	inv := &fakeInvoker{fn: succeed("hello")}
	o := New(Params{
		Planner: PlannerFunc(func(_ context.Context, _ string, caps []capability.Descriptor) (*Plan, error) {
			plannedCaps = len(caps)
			return &Plan{Capability: "read_file", Arguments: map[string]interface{}{}}, nil
		}),
		Composer: TemplateComposer{},
		Gateway:  inv,
		Catalog:  src,
	})

	ans := o.Run(context.Background(), "summarize the file")
	require.Equal(t, KindAnswered, ans.Kind, "%s - %s", orchestratorTestPrefix, ans.Text)
	require.Len(t, inv.calls, 1, "%s - wrong length of inv.calls", orchestratorTestPrefix)
	assert.Equal(t, 1, plannedCaps, "%s - unexpected plannedCaps", orchestratorTestPrefix)
	assert.Equal(t, "planned.txt", inv.calls[0]["path"], "%s - defaults came from a later catalog", orchestratorTestPrefix)
	assert.Equal(t, 1, src.reads, "%s - catalog read more than once per run", orchestratorTestPrefix)
}

func TestRun_NotActionable(t *testing.T) {
	inv := &fakeInvoker{fn: succeed("never")}
	l := ledger.New(10)
	o := New(Params{
		Planner: PlannerFunc(func(context.Context, string, []capability.Descriptor) (*Plan, error) {
			return nil, invocation.Errorf(invocation.CodeNoApplicableCapability, "weather is not a capability")
		}),
		Composer: TemplateComposer{},
		Gateway:  inv,
		Catalog:  readFileCatalog(t),
		Ledger:   l,
	})

	ans := o.Run(context.Background(), "what is the weather")
	assert.Equal(t, KindNotActionable, ans.Kind, "%s - unexpected ans.Kind", orchestratorTestPrefix)
	assert.Equal(t, invocation.CodeNoApplicableCapability, ans.FailureCode, "%s - unexpected ans.FailureCode", orchestratorTestPrefix)
	assert.Contains(t, ans.Text, "None of the 1 available capabilities", "%s - unexpected content in ans.Text", orchestratorTestPrefix)
	assert.Empty(t, inv.calls, "%s - expected empty inv.calls", orchestratorTestPrefix)
	assert.Equal(t, 0, l.Len(), "%s - unexpected l.Len()", orchestratorTestPrefix)
}

func TestRun_EmptyPlanIsNotActionable(t *testing.T) {
	o := New(Params{
		Planner: PlannerFunc(func(context.Context, string, []capability.Descriptor) (*Plan, error) {
			return &Plan{Reasoning: "chit-chat"}, nil
		}),
		Composer: TemplateComposer{},
		Gateway:  &fakeInvoker{fn: succeed("never")},
		Catalog:  readFileCatalog(t),
	})
	ans := o.Run(context.Background(), "hi")
	assert.Equal(t, KindNotActionable, ans.Kind, "%s - unexpected ans.Kind", orchestratorTestPrefix)
	assert.Contains(t, ans.Text, "chit-chat", "%s - unexpected content in ans.Text", orchestratorTestPrefix)
}

func TestRun_EmptyInstruction(t *testing.T) {
	o := New(Params{Planner: planRead("x"), Composer: TemplateComposer{}, Gateway: &fakeInvoker{fn: succeed("")}, Catalog: readFileCatalog(t)})
	ans := o.Run(context.Background(), "   ")
	assert.Equal(t, KindNotActionable, ans.Kind, "%s - unexpected ans.Kind", orchestratorTestPrefix)
}

func TestRun_PlannerFailure(t *testing.T) {
	l := ledger.New(10)
	o := New(Params{
		Planner: PlannerFunc(func(context.Context, string, []capability.Descriptor) (*Plan, error) {
			return nil, errors.New("model unavailable")
		}),
		Composer: TemplateComposer{},
		Gateway:  &fakeInvoker{fn: succeed("never")},
		Catalog:  readFileCatalog(t),
		Ledger:   l,
	})
	ans := o.Run(context.Background(), "read it")
	assert.Equal(t, KindDegraded, ans.Kind, "%s - unexpected ans.Kind", orchestratorTestPrefix)
	assert.Equal(t, invocation.CodeInternal, ans.FailureCode, "%s - unexpected ans.FailureCode", orchestratorTestPrefix)
	assert.Equal(t, 0, l.Len(), "%s - unexpected l.Len()", orchestratorTestPrefix)
}

func TestRun_InvocationFailures(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		outcome    bool
		wantLedger int
		wantWords  string
	}{
		{"transport lost", invocation.Errorf(invocation.CodeTransportLost, "gone"), true, 1, "connection to the provider was lost"},
		{"timeout", invocation.Errorf(invocation.CodeTimeout, "slow"), true, 1, "did not answer in time"},
		{"argument error", invocation.Errorf(invocation.CodeArgument, "missing path"), false, 0, "missing or invalid arguments"},
		{"unknown capability", invocation.Errorf(invocation.CodeUnknownCapability, "gone"), false, 0, "not offered"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := ledger.New(10)
			inv := &fakeInvoker{fn: func(name string, args map[string]interface{}) (*invocation.Outcome, error) {
				if !tt.outcome {
					return nil, tt.err
				}
				return invocation.Failed(invocation.NewRequest("x", name, args), time.Now(), tt.err), tt.err
			}}
			o := New(Params{Planner: planRead("a.txt"), Composer: TemplateComposer{}, Gateway: inv, Catalog: readFileCatalog(t), Ledger: l})

			ans := o.Run(context.Background(), "read a.txt")
			assert.Equal(t, KindDegraded, ans.Kind, "%s - unexpected ans.Kind", orchestratorTestPrefix)
			assert.Equal(t, invocation.CodeOf(tt.err), ans.FailureCode, "%s - unexpected ans.FailureCode", orchestratorTestPrefix)
			assert.Contains(t, ans.Text, tt.wantWords, "%s - unexpected content in ans.Text", orchestratorTestPrefix)
			assert.Equal(t, tt.wantLedger, l.Len(), "%s - unexpected l.Len()", orchestratorTestPrefix)
		})
	}
}

func TestRun_ComposerFallback(t *testing.T) {
	o := New(Params{
		Planner: planRead("a.txt"),
		Composer: ComposerFunc(func(context.Context, string, *Plan, *invocation.Result) (string, error) {
			return "", errors.New("rate limited")
		}),
		Gateway: &fakeInvoker{fn: succeed("file body")},
		Catalog: readFileCatalog(t),
	})

	ans := o.Run(context.Background(), "read a.txt")
	assert.Equal(t, KindAnswered, ans.Kind, "%s - unexpected ans.Kind", orchestratorTestPrefix)
	assert.False(t, ans.Composed, "%s - expected ans.Composed to be false", orchestratorTestPrefix)
	assert.True(t, strings.HasPrefix(ans.Text, "read a.txt"), "%s - expected strings.HasPrefix(ans.Text, read a.txt)", orchestratorTestPrefix)
	assert.Contains(t, ans.Text, "file body", "%s - unexpected content in ans.Text", orchestratorTestPrefix)
	assert.Contains(t, ans.Text, "rate limited", "%s - unexpected content in ans.Text", orchestratorTestPrefix)
}

func TestRun_OverlappingRunsRecordEveryOutcome(t *testing.T) {
	l := ledger.New(100)
	inv := &fakeInvoker{fn: succeed("ok")}
	o := New(Params{Planner: planRead("a.txt"), Composer: TemplateComposer{}, Gateway: inv, Catalog: readFileCatalog(t), Ledger: l})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.Run(context.Background(), "read a.txt")
		}()
	}
	wg.Wait()

	recent := o.RecentHistory(0)
	require.Len(t, recent, 20, "%s - wrong length of recent", orchestratorTestPrefix)
	for i := 1; i < len(recent); i++ {
		assert.False(t, recent[i].CompletedAt.After(recent[i-1].CompletedAt), "%s - expected recent[i].CompletedAt.After(recent[i-1].CompletedAt) to be false", orchestratorTestPrefix)
	}
}
