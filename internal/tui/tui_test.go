package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morezero/capability-bridge/pkg/capability"
	"github.com/morezero/capability-bridge/pkg/invocation"
	"github.com/morezero/capability-bridge/pkg/orchestrator"
	"github.com/morezero/capability-bridge/pkg/session"
)

const tuiTestPrefix = "tui:tui_test"

type fakeBackend struct {
	catalog    *capability.Catalog
	history    []*invocation.Outcome
	refreshErr error
	ran        []string
	historyK   int
}

func (f *fakeBackend) State() session.State          { return session.Ready }
func (f *fakeBackend) Catalog() *capability.Catalog  { return f.catalog }
func (f *fakeBackend) Connect(context.Context) error { return nil }
func (f *fakeBackend) Refresh(context.Context) error { return f.refreshErr }

func (f *fakeBackend) Recent(k int) []*invocation.Outcome {
	f.historyK = k
	return f.history
}

func (f *fakeBackend) Run(_ context.Context, instruction string) *orchestrator.Answer {
	f.ran = append(f.ran, instruction)
	return &orchestrator.Answer{Kind: orchestrator.KindAnswered, Text: "the file says hello", Capability: "read_file"}
}

func newFake(t *testing.T) *fakeBackend {
	t.Helper()
	cat, err := capability.NewCatalog([]capability.Descriptor{{
		Name:        "read_file",
		Description: "Read a file",
		Parameters:  []capability.Parameter{{Name: "path", Type: "string", Required: true}},
	}}, 1, time.Now())
	require.NoError(t, err, "%s - unexpected error", tuiTestPrefix)
	return &fakeBackend{catalog: cat}
}

// enter types line and presses Enter, then runs the returned command chain one level deep.
func enter(t *testing.T, m Model, line string) (Model, tea.Cmd) {
	t.Helper()
	m.input.SetValue(line)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return next.(Model), cmd
}

func transcript(m Model) string {
	return strings.Join(m.Transcript(), "\n")
}

func TestChat_InstructionRunsAndShowsAnswer(t *testing.T) {
	fb := newFake(t)
	m := New(context.Background(), fb)

	m, _ = enter(t, m, "read sample.txt")
	assert.True(t, m.busy, "%s - expected m.busy", tuiTestPrefix)
	assert.Contains(t, transcript(m), "read sample.txt", "%s - unexpected content in transcript(m)", tuiTestPrefix)

	msg := m.runCmd("read sample.txt")()
	next, _ := m.Update(msg)
	m = next.(Model)

	assert.False(t, m.busy, "%s - expected m.busy to be false", tuiTestPrefix)
	assert.Equal(t, []string{"read sample.txt"}, fb.ran, "%s - unexpected fb.ran", tuiTestPrefix)
	assert.Contains(t, transcript(m), "the file says hello", "%s - unexpected content in transcript(m)", tuiTestPrefix)
	assert.Contains(t, transcript(m), "read_file", "%s - unexpected content in transcript(m)", tuiTestPrefix)
}

func TestChat_SecondInstructionWhileBusy(t *testing.T) {
	m := New(context.Background(), newFake(t))
	m, cmd := enter(t, m, "read a.txt")
	require.NotNil(t, cmd, "%s - expected cmd", tuiTestPrefix)
	m, _ = enter(t, m, "read b.txt")
	assert.Contains(t, transcript(m), "still working", "%s - unexpected content in transcript(m)", tuiTestPrefix)
}

func TestChat_Caps(t *testing.T) {
	m := New(context.Background(), newFake(t))
	m, _ = enter(t, m, "/caps")
	out := transcript(m)
	assert.Contains(t, out, "catalog v1", "%s - unexpected content in out", tuiTestPrefix)
	assert.Contains(t, out, "read_file (path) - Read a file", "%s - unexpected content in out", tuiTestPrefix)
}

func TestChat_History(t *testing.T) {
	fb := newFake(t)
	fb.history = []*invocation.Outcome{{
		Request:     invocation.Request{Capability: "read_file"},
		Status:      invocation.StatusFailure,
		ErrorCode:   invocation.CodeTimeout,
		ErrorDetail: "too slow",
		CompletedAt: time.Now(),
	}}
	m := New(context.Background(), fb)

	m, _ = enter(t, m, "/history 3")
	assert.Equal(t, 3, fb.historyK, "%s - unexpected fb.historyK", tuiTestPrefix)
	assert.Contains(t, transcript(m), "[INVOCATION_TIMEOUT] too slow", "%s - unexpected content in transcript(m)", tuiTestPrefix)

	m, _ = enter(t, m, "/history")
	assert.Equal(t, 10, fb.historyK, "%s - unexpected fb.historyK", tuiTestPrefix)

	m, _ = enter(t, m, "/history lots")
	assert.Contains(t, transcript(m), "usage: /history [k]", "%s - unexpected content in transcript(m)", tuiTestPrefix)
}

func TestChat_RefreshFailureIsShown(t *testing.T) {
	fb := newFake(t)
	fb.refreshErr = errors.New("list failed")
	m := New(context.Background(), fb)

	m, _ = enter(t, m, "/refresh")
	require.True(t, m.busy, "%s - expected m.busy", tuiTestPrefix)
	next, _ := m.Update(m.refreshCmd()())
	m = next.(Model)

	assert.False(t, m.busy, "%s - expected m.busy to be false", tuiTestPrefix)
	assert.Contains(t, transcript(m), "error: list failed", "%s - unexpected content in transcript(m)", tuiTestPrefix)
}

func TestChat_UnknownCommandAndQuit(t *testing.T) {
	m := New(context.Background(), newFake(t))
	m, _ = enter(t, m, "/dance")
	assert.Contains(t, transcript(m), "unknown command /dance", "%s - unexpected content in transcript(m)", tuiTestPrefix)

	m, cmd := enter(t, m, "/quit")
	assert.True(t, m.quitting, "%s - expected m.quitting", tuiTestPrefix)
	require.NotNil(t, cmd, "%s - expected cmd", tuiTestPrefix)
	assert.Equal(t, "", m.View(), "%s - unexpected m.View()", tuiTestPrefix)
}

func TestRenderHistory_Empty(t *testing.T) {
	assert.Equal(t, "no invocations recorded", RenderHistory(nil), "%s - unexpected RenderHistory(nil)", tuiTestPrefix)
}
