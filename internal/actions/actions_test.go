package actions

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/signalpilot/signalpilot/internal/action"
	"github.com/signalpilot/signalpilot/internal/provider"
)

type fakeChatter struct {
	mu     sync.Mutex
	answer string
	err    error
	calls  [][]provider.Message
	params []provider.GenerationParameters
}

func (f *fakeChatter) Chat(_ context.Context, messages []provider.Message, params provider.GenerationParameters) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, messages)
	f.params = append(f.params, params)
	return f.answer, f.err
}

func TestExtractPythonBlocks(t *testing.T) {
	text := "Here:\n```python\nimport numpy as np\n```\nand\n```python\nprint(1)\n```\n```bash\nls\n```"
	got := ExtractPythonBlocks(text)
	want := "import numpy as np\nprint(1)"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if got := ExtractPythonBlocks("no code here"); got != "" {
		t.Errorf("got %q for text without code", got)
	}
}

func TestPlanningAction(t *testing.T) {
	llm := &fakeChatter{answer: "  1. Extract `speed` [km/h]\n2. Compute the mean\n"}
	def := action.MustDefine(PlanningAction{LLM: llm})
	if def.Name() != "PlanningAction" {
		t.Fatalf("name = %q", def.Name())
	}

	res := action.Call(context.Background(), def, action.Arguments{
		"user_query_reformatted": "What is the mean speed.",
	})
	if !res.OK() {
		t.Fatalf("result = %+v", res)
	}
	if res.Payload != "1. Extract `speed` [km/h]\n2. Compute the mean" {
		t.Errorf("payload = %q", res.Payload)
	}

	msgs := llm.calls[0]
	if msgs[0].Role != provider.RoleSystem || msgs[0].Content != SystemInstructionPlanner {
		t.Error("planner instruction should be the default system message")
	}
	if msgs[1].Role != provider.RoleUser || msgs[1].Content != "What is the mean speed." {
		t.Errorf("user message = %+v", msgs[1])
	}
	if llm.params[0] != provider.DefaultGenerationParameters() {
		t.Errorf("params = %+v", llm.params[0])
	}
}

func TestPlanningActionOverridesDefaults(t *testing.T) {
	llm := &fakeChatter{answer: "1. Step"}
	def := action.MustDefine(PlanningAction{LLM: llm})
	res := action.Call(context.Background(), def, action.Arguments{
		"user_query_reformatted":             "q.",
		"system_instruction_planner_generic": "custom",
		"generation_parameters":              map[string]any{"max_tokens": 128, "temperature": 0.5},
	})
	if !res.OK() {
		t.Fatalf("result = %+v", res)
	}
	if llm.calls[0][0].Content != "custom" {
		t.Errorf("system = %q", llm.calls[0][0].Content)
	}
	if p := llm.params[0]; p.MaxTokens != 128 || p.Temperature != 0.5 || p.TopK != 50 {
		t.Errorf("params = %+v", p)
	}
}

func TestPlanningActionFailure(t *testing.T) {
	llm := &fakeChatter{err: errors.New("backend down")}
	def := action.MustDefine(PlanningAction{LLM: llm})
	args := action.Arguments{"user_query_reformatted": "q."}
	res := action.Call(context.Background(), def, args)
	if res.Status != action.StatusFailed || !strings.Contains(res.ErrorMessage, "backend down") {
		t.Fatalf("result = %+v", res)
	}
	if res.Arguments["user_query_reformatted"] != "q." {
		t.Errorf("arguments not echoed: %v", res.Arguments)
	}

	res = action.Call(context.Background(), def, action.Arguments{})
	if res.OK() {
		t.Error("empty query should fail")
	}
}

func TestPlanningActionNoClient(t *testing.T) {
	def := action.MustDefine(PlanningAction{})
	res := action.Call(context.Background(), def, action.Arguments{"user_query_reformatted": "q."})
	if res.OK() {
		t.Fatal("expected failure without a chat client")
	}
}

func TestCodeGenerationAction(t *testing.T) {
	llm := &fakeChatter{answer: "Sure.\n```python\nimport numpy as np\nprint(np.mean(x))\n```\nDone."}
	def := action.MustDefine(CodeGenerationAction{LLM: llm})
	res := action.Call(context.Background(), def, action.Arguments{
		"plan":               "1. Compute the mean",
		"system_instruction": SystemInstructionCoderPlot,
	})
	if !res.OK() {
		t.Fatalf("result = %+v", res)
	}
	want := "```python\nimport numpy as np\nprint(np.mean(x))\n```"
	if res.Payload != want {
		t.Errorf("payload = %q, want %q", res.Payload, want)
	}
	if llm.calls[0][0].Content != SystemInstructionCoderPlot {
		t.Error("system instruction not forwarded")
	}
}

func TestCodeGenerationActionNoCode(t *testing.T) {
	llm := &fakeChatter{answer: "I cannot do that."}
	def := action.MustDefine(CodeGenerationAction{LLM: llm})
	res := action.Call(context.Background(), def, action.Arguments{"plan": "1. Step"})
	if !res.OK() || res.Payload != "``````" {
		t.Fatalf("result = %+v", res)
	}
	if llm.calls[0][0].Content != SystemInstructionCoderComputation {
		t.Error("computation instruction should be the default")
	}
}

func TestRoleCoderSelectionAction(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		query  string
		policy RolePolicy
		want   string
	}{
		{"plot", "['plot']", "Plot the speed.", PreferPlot, "plot"},
		{"computation", "['computation']", "Compute the mean.", PreferPlot, "computation"},
		{"both prefers plot", "['plot', 'computation']", "q.", PreferPlot, "plot"},
		{"both prefers computation", "['plot', 'computation']", "q.", PreferComputation, "computation"},
		{"both reported", "['plot', 'computation']", "q.", ReportBoth, "plot,computation"},
		{"zero policy", "['plot', 'computation']", "q.", "", "plot"},
		{"fallback plot", "I am not sure", "Draw a histogram of the speed.", PreferPlot, "plot"},
		{"fallback computation", "???", "What is the max speed?", PreferPlot, "computation"},
		{"fallback nothing", "???", "Hello.", PreferPlot, "computation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &fakeChatter{answer: tt.answer}
			def := action.MustDefine(RoleCoderSelectionAction{LLM: llm, Policy: tt.policy})
			res := action.Call(context.Background(), def, action.Arguments{"user_query": tt.query})
			if !res.OK() {
				t.Fatalf("result = %+v", res)
			}
			if res.Payload != tt.want {
				t.Errorf("payload = %q, want %q", res.Payload, tt.want)
			}
			if llm.calls[0][0].Content != SystemInstructionRoleSelector {
				t.Error("selector instruction not used")
			}
		})
	}
}

func TestRoleCoderSelectionActionFailure(t *testing.T) {
	def := action.MustDefine(RoleCoderSelectionAction{LLM: &fakeChatter{err: errors.New("timeout")}})
	res := action.Call(context.Background(), def, action.Arguments{"user_query": "Plot it."})
	if res.OK() || !strings.Contains(res.ErrorMessage, "timeout") {
		t.Fatalf("result = %+v", res)
	}
}

func TestParseRolePolicy(t *testing.T) {
	for in, want := range map[string]RolePolicy{
		"":            PreferPlot,
		"plot":        PreferPlot,
		"Computation": PreferComputation,
		" both ":      ReportBoth,
	} {
		got, err := ParseRolePolicy(in)
		if err != nil || got != want {
			t.Errorf("ParseRolePolicy(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseRolePolicy("either"); err == nil {
		t.Error("expected error for unknown policy")
	}
}

func TestRoleClassifier(t *testing.T) {
	c := NewRoleClassifier()
	tests := []struct {
		query             string
		plot, computation bool
	}{
		{"Plot the vehicle speed over time.", true, false},
		{"Visualize battery temperature as a heatmap.", true, false},
		{"Calculate the total energy consumed.", false, true},
		{"What is the average speed?", false, true},
		{"Show the max torque and graph it.", true, true},
		{"Hello there.", false, false},
		{"minimalist", false, false},
		{"Give me a summary of the summer drive.", false, false},
		{"Which country was the recording made in?", false, false},
		{"Count the gear shifts.", false, true},
		{"Sum the distance per trip.", false, true},
	}
	for _, tt := range tests {
		plot, computation := c.Classify(tt.query)
		if plot != tt.plot || computation != tt.computation {
			t.Errorf("Classify(%q) = %v, %v; want %v, %v", tt.query, plot, computation, tt.plot, tt.computation)
		}
	}
}

func TestDefinitions(t *testing.T) {
	defs, err := Definitions(&fakeChatter{}, &fakeChatter{}, &fakeChatter{}, ReportBoth, nil)
	if err != nil {
		t.Fatal(err)
	}
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name()
	}
	want := []string{"RoleCoderSelectionAction", "PlanningAction", "CodeGenerationAction"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("names = %v", names)
	}
	if !strings.Contains(defs[1].Description(), "Returns:\n") {
		t.Errorf("planning description:\n%s", defs[1].Description())
	}
}
