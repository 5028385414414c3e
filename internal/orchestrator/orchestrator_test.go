package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/signalpilot/signalpilot/internal/action"
	"github.com/signalpilot/signalpilot/internal/provider"
	"github.com/signalpilot/signalpilot/internal/state"
)

func setupOrchestrator(llm LLMClient, opts ...Option) (*Orchestrator, *state.ConversationStore) {
	conversations := state.NewConversationStore()
	return New(llm, newTestRegistry(), conversations, opts...), conversations
}

func TestOrchestratorDirectAnswer(t *testing.T) {
	llm := &fakeLLM{responses: []string{"The mean speed is 42 km/h."}}
	orch, _ := setupOrchestrator(llm)

	result, err := orch.Run(context.Background(), "c1", "What is the mean speed?")
	if err != nil {
		t.Fatal(err)
	}
	if result.Response != "The mean speed is 42 km/h." {
		t.Errorf("Response = %q", result.Response)
	}
	if len(result.ToolCalls) != 0 || result.Iterations != 1 {
		t.Errorf("result = %+v", result)
	}
}

func TestOrchestratorSystemPrompt(t *testing.T) {
	llm := &fakeLLM{responses: []string{"ok"}}
	orch, _ := setupOrchestrator(llm, WithRules([]string{"Answer in metric units"}))

	if _, err := orch.Run(context.Background(), "c1", "hi"); err != nil {
		t.Fatal(err)
	}
	msgs := llm.seen[0]
	if msgs[0].Role != provider.RoleSystem {
		t.Fatalf("first message role = %q", msgs[0].Role)
	}
	sys := msgs[0].Content
	persona := strings.Index(sys, DefaultPersona)
	howTo := strings.Index(sys, "## HOW TO CALL ACTIONS")
	rules := strings.Index(sys, "## MANDATORY SAFETY RULES")
	actions := strings.Index(sys, "## AVAILABLE ACTIONS")
	echo := strings.Index(sys, "EchoAction")
	if !(persona == 0 && persona < howTo && howTo < rules && rules < actions && actions < echo) {
		t.Errorf("system prompt sections out of order: %d %d %d %d %d", persona, howTo, rules, actions, echo)
	}
	if !strings.Contains(sys, "[custom] Answer in metric units") {
		t.Error("custom rule missing from the system prompt")
	}
	if msgs[1].Role != provider.RoleUser || msgs[1].Content != "hi" {
		t.Errorf("second message = %+v", msgs[1])
	}
}

func TestOrchestratorSingleToolCall(t *testing.T) {
	llm := &fakeLLM{responses: []string{
		"Let me echo.\n" + callBlock("EchoAction", `{"text": "hey", "times": 2}`),
		"The action said heyhey.",
	}}
	mem := state.NewMemoryStore()
	orch, conversations := setupOrchestrator(llm, WithWorkingMemory(mem))

	result, err := orch.Run(context.Background(), "c1", "Echo hey twice")
	if err != nil {
		t.Fatal(err)
	}
	if result.Response != "The action said heyhey." {
		t.Errorf("Response = %q", result.Response)
	}
	if len(result.Results) != 1 || result.Results[0].Payload != "heyhey" {
		t.Fatalf("Results = %+v", result.Results)
	}
	if result.ToolCalls[0].Reason != "needed" {
		t.Errorf("reason = %q", result.ToolCalls[0].Reason)
	}

	// user, assistant (call), user (results), assistant (answer)
	msgs, _ := conversations.Lookup("c1")
	history := msgs.Messages()
	if len(history) != 4 {
		t.Fatalf("history has %d messages, want 4", len(history))
	}
	roles := []provider.Role{provider.RoleUser, provider.RoleAssistant, provider.RoleUser, provider.RoleAssistant}
	for i, r := range roles {
		if history[i].Role != r {
			t.Errorf("history[%d].Role = %q, want %q", i, history[i].Role, r)
		}
	}
	if !strings.Contains(history[2].Content, "[action_output]\nEchoAction returned:\nheyhey\n[/action_output]") {
		t.Errorf("results turn = %q", history[2].Content)
	}

	recorded, _ := mem.Results(context.Background(), "c1")
	if len(recorded) != 1 || recorded[0].Payload != "heyhey" {
		t.Errorf("working memory = %+v", recorded)
	}
}

func TestOrchestratorSeveralCallsFoldIntoOneTurn(t *testing.T) {
	llm := &fakeLLM{responses: []string{
		callBlock("EchoAction", `{"text": "a"}`) + "\n" + callBlock("EchoAction", `{"text": "b"}`),
		"done",
	}}
	orch, _ := setupOrchestrator(llm)

	result, err := orch.Run(context.Background(), "c1", "two echoes")
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Results) != 2 || result.Results[0].Payload != "a" || result.Results[1].Payload != "b" {
		t.Fatalf("Results = %+v", result.Results)
	}
	second := llm.seen[1]
	// system, user, assistant, user
	if len(second) != 4 {
		t.Fatalf("second prompt has %d messages, want 4", len(second))
	}
	if strings.Count(second[3].Content, "[action_output]") != 2 {
		t.Errorf("results should share one turn: %q", second[3].Content)
	}
}

func TestOrchestratorUnknownActionInform(t *testing.T) {
	llm := &fakeLLM{responses: []string{
		callBlock("FormatDisk", `{}`),
		"Sorry, I cannot do that.",
	}}
	orch, _ := setupOrchestrator(llm)

	result, err := orch.Run(context.Background(), "c1", "wipe it")
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Results) != 1 || result.Results[0].OK() {
		t.Fatalf("Results = %+v", result.Results)
	}
	if !strings.Contains(result.Results[0].ErrorMessage, `unknown action "FormatDisk"`) {
		t.Errorf("error = %q", result.Results[0].ErrorMessage)
	}
	if !strings.Contains(llm.seen[1][3].Content, "FormatDisk") {
		t.Error("the model should be told about the unknown action")
	}
}

func TestOrchestratorUnknownActionAbort(t *testing.T) {
	llm := &fakeLLM{responses: []string{callBlock("FormatDisk", `{}`)}}
	orch, conversations := setupOrchestrator(llm, WithUnknownActionPolicy(UnknownActionAbort))

	_, err := orch.Run(context.Background(), "c1", "wipe it")
	if !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("err = %v, want ErrUnknownAction", err)
	}
	h, _ := conversations.Lookup("c1")
	if h.Len() != 0 {
		t.Errorf("aborted turn should be rolled back, history has %d messages: %+v", h.Len(), h.Messages())
	}
}

func TestOrchestratorMaxIterationsExceeded(t *testing.T) {
	loop := callBlock("EchoAction", `{"text": "again"}`)
	llm := &fakeLLM{responses: []string{loop, loop, loop}}
	orch, conversations := setupOrchestrator(llm, WithMaxIterations(3))

	_, err := orch.Run(context.Background(), "c1", "loop forever")
	if !errors.Is(err, ErrMaxIterations) {
		t.Fatalf("err = %v, want ErrMaxIterations", err)
	}
	h, _ := conversations.Lookup("c1")
	if h.Len() != 0 {
		t.Errorf("failed turn should be rolled back, history has %d messages", h.Len())
	}
}

func TestOrchestratorLLMFailureRollsBack(t *testing.T) {
	llm := &fakeLLM{responses: []string{"first answer"}}
	orch, conversations := setupOrchestrator(llm)

	if _, err := orch.Run(context.Background(), "c1", "one"); err != nil {
		t.Fatal(err)
	}
	if _, err := orch.Run(context.Background(), "c1", "two"); err == nil {
		t.Fatal("expected error when the LLM fails")
	}

	h, _ := conversations.Lookup("c1")
	if h.Len() != 2 {
		t.Fatalf("history has %d messages, want 2", h.Len())
	}
	llm.responses = append(llm.responses, "second answer")
	if _, err := orch.Run(context.Background(), "c1", "two"); err != nil {
		t.Errorf("conversation should stay usable: %v", err)
	}
}

func TestOrchestratorHistoryGrows(t *testing.T) {
	llm := &fakeLLM{responses: []string{"one", "two"}}
	orch, _ := setupOrchestrator(llm)

	_, _ = orch.Run(context.Background(), "c1", "first")
	_, _ = orch.Run(context.Background(), "c1", "second")

	history := orch.History("c1")
	if len(history) != 4 {
		t.Fatalf("history has %d messages, want 4", len(history))
	}
	if len(llm.seen[1]) != 4 {
		t.Errorf("second prompt should carry system + 3 messages, got %d", len(llm.seen[1]))
	}
	if orch.History("unknown") != nil {
		t.Error("unknown conversation should have no history")
	}
}

func TestOrchestratorConversationsAreIndependent(t *testing.T) {
	n := 8
	responses := make([]string, n)
	for i := range responses {
		responses[i] = "answer"
	}
	llm := &fakeLLM{responses: responses}
	orch, conversations := setupOrchestrator(llm)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := "c" + string(rune('a'+i%2))
			if _, err := orch.Run(context.Background(), id, "hello"); err != nil {
				t.Errorf("Run(%s): %v", id, err)
			}
		}()
	}
	wg.Wait()

	for _, id := range []string{"ca", "cb"} {
		h, _ := conversations.Lookup(id)
		if h.Len() != n {
			t.Errorf("%s has %d messages, want %d", id, h.Len(), n)
		}
	}
}

func TestRunAction(t *testing.T) {
	orch, _ := setupOrchestrator(&fakeLLM{})

	res, err := orch.RunAction(context.Background(), "EchoAction", action.Arguments{"text": "direct"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Payload != "direct" {
		t.Errorf("Payload = %q", res.Payload)
	}

	if _, err := orch.RunAction(context.Background(), "Nope", nil); !errors.Is(err, ErrUnknownAction) {
		t.Errorf("err = %v", err)
	}
}

func TestParseUnknownActionPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    UnknownActionPolicy
		wantErr bool
	}{
		{"", UnknownActionInform, false},
		{"inform", UnknownActionInform, false},
		{" ABORT ", UnknownActionAbort, false},
		{"ignore", "", true},
	}
	for _, tt := range tests {
		got, err := ParseUnknownActionPolicy(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseUnknownActionPolicy(%q) = %q, %v", tt.in, got, err)
		}
	}
}
