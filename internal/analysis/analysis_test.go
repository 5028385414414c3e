package analysis

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/signalpilot/signalpilot/internal/action"
	"github.com/signalpilot/signalpilot/internal/actions"
	"github.com/signalpilot/signalpilot/internal/lua"
	"github.com/signalpilot/signalpilot/internal/orchestrator"
	"github.com/signalpilot/signalpilot/internal/provider"
	"github.com/signalpilot/signalpilot/internal/signalinfo"
	"github.com/signalpilot/signalpilot/internal/state"
)

type fakeChatter struct {
	mu      sync.Mutex
	answers []string
	err     error
	calls   [][]provider.Message
}

func (f *fakeChatter) Chat(_ context.Context, messages []provider.Message, _ provider.GenerationParameters) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, messages)
	if f.err != nil {
		return "", f.err
	}
	if len(f.answers) == 0 {
		return "", errors.New("no scripted answer")
	}
	a := f.answers[0]
	if len(f.answers) > 1 {
		f.answers = f.answers[1:]
	}
	return a, nil
}

type pipeline struct {
	selector, planner, coder *fakeChatter
	dispatcher               *orchestrator.Dispatcher
}

func newPipeline(t *testing.T, policy actions.RolePolicy) *pipeline {
	t.Helper()
	p := &pipeline{
		selector: &fakeChatter{answers: []string{"['plot']"}},
		planner:  &fakeChatter{answers: []string{"1. Extract `VehicleSpeed` [km/h]\n2. Plot it"}},
		coder:    &fakeChatter{answers: []string{"```python\nplt.plot(speed)\n```"}},
	}
	defs, err := actions.Definitions(p.planner, p.coder, p.selector, policy, nil)
	if err != nil {
		t.Fatal(err)
	}
	reg := orchestrator.NewActionRegistry()
	for _, d := range defs {
		if err := reg.Register(d); err != nil {
			t.Fatal(err)
		}
	}
	p.dispatcher = orchestrator.NewDispatcher(reg, nil)
	return p
}

const catalogYAML = `numeric_signals_info:
  VehicleSpeed:
    possible_values: [0, 180]
    unit: km/h
`

func TestAsk(t *testing.T) {
	p := newPipeline(t, actions.PreferPlot)
	catalog, err := signalinfo.Parse([]byte(catalogYAML))
	if err != nil {
		t.Fatal(err)
	}
	memory := state.NewMemoryStore()
	a := New(p.dispatcher,
		WithCatalog(catalog),
		WithWorkingMemory(memory),
		WithReplacements(map[string]string{"speed": "VehicleSpeed"}),
	)

	ans, err := a.Ask(context.Background(), Query{
		ConversationID:   "c1",
		Text:             "  plot the speed ",
		FilterConditions: []string{"VehicleSpeed > 10", " "},
	})
	if err != nil {
		t.Fatal(err)
	}
	if ans.Query != "plot the VehicleSpeed." {
		t.Errorf("query = %q", ans.Query)
	}
	if ans.Role != "plot" {
		t.Errorf("role = %q", ans.Role)
	}
	if !strings.HasPrefix(ans.Plan, "1. Extract") {
		t.Errorf("plan = %q", ans.Plan)
	}
	if ans.Code != "```python\nplt.plot(speed)\n```" {
		t.Errorf("code = %q", ans.Code)
	}
	if len(ans.Results) != 3 {
		t.Fatalf("results = %d", len(ans.Results))
	}

	if got := p.selector.calls[0][1].Content; got != "plot the VehicleSpeed." {
		t.Errorf("selector saw %q", got)
	}
	plannerMsgs := p.planner.calls[0]
	if !strings.HasPrefix(plannerMsgs[0].Content, actions.SystemInstructionPlanner) ||
		!strings.Contains(plannerMsgs[0].Content, "- `VehicleSpeed` [km/h]: 0 to 180") {
		t.Errorf("planner system message:\n%s", plannerMsgs[0].Content)
	}
	if plannerMsgs[1].Content != "plot the VehicleSpeed.\nFilter conditions: VehicleSpeed > 10." {
		t.Errorf("planner user message = %q", plannerMsgs[1].Content)
	}
	coderMsgs := p.coder.calls[0]
	if !strings.HasPrefix(coderMsgs[0].Content, actions.SystemInstructionCoderPlot) {
		t.Error("plot role should use the plot coder instruction")
	}
	if !strings.Contains(coderMsgs[1].Content, "Filter conditions: VehicleSpeed > 10.") {
		t.Errorf("coder user message = %q", coderMsgs[1].Content)
	}

	recorded, err := memory.Results(context.Background(), "c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(recorded) != 3 {
		t.Errorf("recorded = %d", len(recorded))
	}
	latest, err := memory.Latest(context.Background(), "c1", "CodeGenerationAction")
	if err != nil || latest.Payload != ans.Code {
		t.Errorf("latest = %+v, %v", latest, err)
	}
}

func TestAskBothRoles(t *testing.T) {
	p := newPipeline(t, actions.ReportBoth)
	p.selector.answers = []string{"['plot', 'computation']"}
	p.coder.answers = []string{"```python\nplot()\n```", "```python\ncompute()\n```"}
	a := New(p.dispatcher)

	ans, err := a.Ask(context.Background(), Query{Text: "Plot and compute the mean speed"})
	if err != nil {
		t.Fatal(err)
	}
	if ans.ConversationID == "" {
		t.Error("conversation id should be generated")
	}
	if ans.Role != "plot,computation" {
		t.Errorf("role = %q", ans.Role)
	}
	if len(p.coder.calls) != 2 {
		t.Fatalf("coder calls = %d", len(p.coder.calls))
	}
	if p.coder.calls[0][0].Content != actions.SystemInstructionCoderPlot ||
		p.coder.calls[1][0].Content != actions.SystemInstructionCoderComputation {
		t.Error("each role should get its coder instruction")
	}
	if ans.Code != "```python\nplot()\n```\n\n```python\ncompute()\n```" {
		t.Errorf("code = %q", ans.Code)
	}
}

func TestAskStopsOnFailedStep(t *testing.T) {
	p := newPipeline(t, actions.PreferPlot)
	p.planner.err = errors.New("backend unavailable")
	memory := state.NewMemoryStore()
	a := New(p.dispatcher, WithWorkingMemory(memory))

	ans, err := a.Ask(context.Background(), Query{ConversationID: "c2", Text: "plot the speed"})
	if err == nil || !strings.Contains(err.Error(), "backend unavailable") {
		t.Fatalf("err = %v", err)
	}
	var execErr *action.ExecutionError
	if !errors.As(err, &execErr) || execErr.Action != "PlanningAction" {
		t.Errorf("err = %#v", err)
	}
	if ans.Role != "plot" || ans.Plan != "" {
		t.Errorf("answer = %+v", ans)
	}
	if len(ans.Results) != 2 || ans.Results[1].OK() {
		t.Errorf("results = %+v", ans.Results)
	}
	if len(p.coder.calls) != 0 {
		t.Error("coder should not run after a failed plan")
	}
	recorded, _ := memory.Results(context.Background(), "c2")
	if len(recorded) != 2 {
		t.Errorf("failed result should be recorded too, got %d", len(recorded))
	}
}

func TestAskEmptyQuery(t *testing.T) {
	a := New(newPipeline(t, actions.PreferPlot).dispatcher)
	if _, err := a.Ask(context.Background(), Query{Text: "  "}); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("err = %v", err)
	}
}

func TestAskUnknownAction(t *testing.T) {
	a := New(orchestrator.NewDispatcher(orchestrator.NewActionRegistry(), nil))
	_, err := a.Ask(context.Background(), Query{Text: "plot"})
	if !errors.Is(err, orchestrator.ErrUnknownAction) {
		t.Errorf("err = %v", err)
	}
}

func writePrepareScript(t *testing.T, script string) *lua.Preparer {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prepare.lua")
	if err := os.WriteFile(path, []byte(script), 0600); err != nil {
		t.Fatal(err)
	}
	prep, err := lua.NewPreparer(path)
	if err != nil {
		t.Fatal(err)
	}
	return prep
}

func TestAskWithPreparer(t *testing.T) {
	p := newPipeline(t, actions.PreferPlot)
	prep := writePrepareScript(t, `function prepare(text) return string.upper(text) end`)
	a := New(p.dispatcher, WithPreparer(prep), WithReplacements(map[string]string{"SPEED": "x"}))

	ans, err := a.Ask(context.Background(), Query{Text: "plot speed"})
	if err != nil {
		t.Fatal(err)
	}
	if ans.Query != "PLOT SPEED" {
		t.Errorf("script output should replace the built-in preparation, got %q", ans.Query)
	}
}

func TestAskPreparerReplies(t *testing.T) {
	p := newPipeline(t, actions.PreferPlot)
	prep := writePrepareScript(t, `
function prepare(text)
  return { send_to_llm = false, message = "Select an MF4 file first." }
end
`)
	a := New(p.dispatcher, WithPreparer(prep))

	ans, err := a.Ask(context.Background(), Query{Text: "plot speed"})
	if err != nil {
		t.Fatal(err)
	}
	if ans.Reply != "Select an MF4 file first." || len(ans.Results) != 0 {
		t.Errorf("answer = %+v", ans)
	}
	if len(p.selector.calls) != 0 {
		t.Error("pipeline should not run when the script replies")
	}
}

func TestAddPeriod(t *testing.T) {
	for in, want := range map[string]string{
		"plot speed":    "plot speed.",
		" plot speed. ": "plot speed.",
		"what?":         "what?.",
		"":              ".",
	} {
		if got := AddPeriod(in); got != want {
			t.Errorf("AddPeriod(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestReplaceWord(t *testing.T) {
	tests := []struct {
		sentence, old, new, want string
	}{
		{"plot the speed", "speed", "VehicleSpeed", "plot the VehicleSpeed"},
		{"plot the speed.", "speed", "VehicleSpeed", "plot the VehicleSpeed."},
		{"speed, rpm?", "speed", "v", "v, rpm?"},
		{"speedy  speed", "speed", "v", "speedy v"},
		{"speed!", "speed", "v", "speed!"},
		{"plot it", "", "v", "plot it"},
	}
	for _, tt := range tests {
		if got := ReplaceWord(tt.sentence, tt.old, tt.new); got != tt.want {
			t.Errorf("ReplaceWord(%q, %q, %q) = %q, want %q", tt.sentence, tt.old, tt.new, got, tt.want)
		}
	}
}
