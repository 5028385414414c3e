// Package orchestrator runs the model/action loop: it prompts the model
// with the roster of rendered action descriptions, parses the calls out
// of each generation, dispatches them and folds the results back into the
// conversation.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/signalpilot/signalpilot/internal/action"
	"github.com/signalpilot/signalpilot/internal/actor"
	"github.com/signalpilot/signalpilot/internal/provider"
	"github.com/signalpilot/signalpilot/internal/state"
)

const (
	DefaultMaxIterations = 10

	DefaultPersona = "You are SignalPilot, an assistant that analyses vehicle measurement signals recorded in MF4 files. You answer questions by calling the actions described below."

	toolInstructions = `## HOW TO CALL ACTIONS
To call an action, answer with a fenced ` + "```json" + ` block in exactly the format shown in the action's description.
You may call several actions in one answer; they run in the order they appear.
Every argument value must be an explicit literal.
The results come back to you in [action_output] blocks.
When you have the final answer, reply in plain text without any ` + "```json" + ` block.

`
)

var ErrMaxIterations = errors.New("agent loop exceeded its iteration limit")

// LLMClient is the chat collaborator. *llm.Client satisfies it.
type LLMClient interface {
	Chat(ctx context.Context, messages []provider.Message, params provider.GenerationParameters) (string, error)
}

type Orchestrator struct {
	llm           LLMClient
	parser        ToolCallParser
	registry      *ActionRegistry
	dispatcher    *Dispatcher
	conversations *state.ConversationStore
	memory        state.WorkingMemory
	rules         *RulesConfig
	logger        *slog.Logger

	persona       string
	generation    provider.GenerationParameters
	maxIterations int
	unknownAction UnknownActionPolicy

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

type Option func(*Orchestrator)

func WithParser(p ToolCallParser) Option { return func(o *Orchestrator) { o.parser = p } }

func WithDispatcher(d *Dispatcher) Option { return func(o *Orchestrator) { o.dispatcher = d } }

// WithWorkingMemory records every dispatched result.
func WithWorkingMemory(m state.WorkingMemory) Option { return func(o *Orchestrator) { o.memory = m } }

func WithRules(customRules []string) Option {
	return func(o *Orchestrator) { o.rules = NewRulesConfig(customRules) }
}

func WithPersona(persona string) Option { return func(o *Orchestrator) { o.persona = persona } }

func WithGeneration(g provider.GenerationParameters) Option {
	return func(o *Orchestrator) { o.generation = g }
}

func WithMaxIterations(n int) Option { return func(o *Orchestrator) { o.maxIterations = n } }

func WithUnknownActionPolicy(p UnknownActionPolicy) Option {
	return func(o *Orchestrator) { o.unknownAction = p }
}

func WithLogger(l *slog.Logger) Option { return func(o *Orchestrator) { o.logger = l } }

func New(llm LLMClient, registry *ActionRegistry, conversations *state.ConversationStore, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		llm:           llm,
		registry:      registry,
		conversations: conversations,
		rules:         DefaultRulesConfig(),
		persona:       DefaultPersona,
		generation:    provider.DefaultGenerationParameters(),
		maxIterations: DefaultMaxIterations,
		unknownAction: UnknownActionInform,
		locks:         make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.parser == nil {
		o.parser = NewResponseParser(o.logger)
	}
	if o.dispatcher == nil {
		o.dispatcher = NewDispatcher(registry, NewGuard())
	}
	if o.maxIterations <= 0 {
		o.maxIterations = DefaultMaxIterations
	}
	return o
}

type RunResult struct {
	Response   string
	ToolCalls  []ToolCall
	Results    []action.Result
	Iterations int
}

// conversationLock serializes the turns of one conversation.
func (o *Orchestrator) conversationLock(id string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.locks[id]
	if !ok {
		l = &sync.Mutex{}
		o.locks[id] = l
	}
	return l
}

// Run handles one user message. Each generation is folded into the
// history as one assistant turn followed by one user turn carrying every
// result, until the model answers without calling an action. A failed
// turn is rolled back out of the history.
func (o *Orchestrator) Run(ctx context.Context, conversationID, userMessage string) (*RunResult, error) {
	lock := o.conversationLock(conversationID)
	lock.Lock()
	defer lock.Unlock()
	ctx = actor.WithActor(ctx, conversationID)

	history := o.conversations.Get(conversationID)
	mark := history.Len()
	if err := history.Append(provider.Message{Role: provider.RoleUser, Content: userMessage}); err != nil {
		return nil, fmt.Errorf("adding user message: %w", err)
	}

	result := &RunResult{}
	system := provider.Message{Role: provider.RoleSystem, Content: o.SystemPrompt()}

	for i := 0; i < o.maxIterations; i++ {
		result.Iterations = i + 1
		messages := append([]provider.Message{system}, history.Messages()...)

		text, err := o.llm.Chat(ctx, messages, o.generation)
		if err != nil {
			history.Truncate(mark)
			return nil, fmt.Errorf("LLM completion: %w", err)
		}

		calls := o.parser.Parse(text)
		if err := history.Append(provider.Message{Role: provider.RoleAssistant, Content: text}); err != nil {
			history.Truncate(mark)
			return nil, fmt.Errorf("adding assistant message: %w", err)
		}
		if calls == nil {
			result.Response = text
			return result, nil
		}

		results := make([]action.Result, 0, len(calls))
		for _, call := range calls {
			res, err := o.dispatcher.Dispatch(ctx, call)
			if err != nil {
				if o.unknownAction == UnknownActionAbort {
					history.Truncate(mark)
					return result, err
				}
				o.logger.Warn("model called an unknown action", "conversation", conversationID, "action", call.Action)
				res = action.Failure(call.Action, call.Args, err)
			}
			o.record(ctx, conversationID, res)
			result.ToolCalls = append(result.ToolCalls, call)
			result.Results = append(result.Results, res)
			results = append(results, res)
		}

		if err := history.Append(provider.Message{
			Role:    provider.RoleUser,
			Content: o.dispatcher.Guard().WrapResults(results),
		}); err != nil {
			history.Truncate(mark)
			return nil, fmt.Errorf("adding action results: %w", err)
		}
	}

	// A turn left open on a user message would break alternation for the
	// next one.
	history.Truncate(mark)
	return result, fmt.Errorf("%w (%d)", ErrMaxIterations, o.maxIterations)
}

// SystemPrompt renders the persona, the calling instructions, the safety
// rules and every action description in registration order.
func (o *Orchestrator) SystemPrompt() string {
	var sb strings.Builder
	sb.WriteString(o.persona)
	sb.WriteString("\n\n")
	sb.WriteString(toolInstructions)
	sb.WriteString(o.rules.BuildPromptSection())
	sb.WriteString("## AVAILABLE ACTIONS\n\n")
	sb.WriteString(o.registry.Descriptions())
	return sb.String()
}

func (o *Orchestrator) record(ctx context.Context, conversationID string, res action.Result) {
	if o.memory == nil {
		return
	}
	if err := o.memory.Record(ctx, conversationID, res); err != nil {
		o.logger.Warn("recording action result", "conversation", conversationID, "action", res.ActionType, "error", err)
	}
}

// RunAction executes a single action directly, bypassing the LLM loop.
func (o *Orchestrator) RunAction(ctx context.Context, name string, args action.Arguments) (action.Result, error) {
	return o.dispatcher.Dispatch(ctx, ToolCall{
		ID:     uuid.NewString(),
		Action: name,
		Args:   args,
	})
}

// History returns the conversation's messages so far.
func (o *Orchestrator) History(conversationID string) []provider.Message {
	h, ok := o.conversations.Lookup(conversationID)
	if !ok {
		return nil
	}
	return h.Messages()
}
