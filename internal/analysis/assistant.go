// Package analysis answers questions about a recording by chaining the
// pipeline actions: select the coder role, plan the analysis, generate
// the code.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/signalpilot/signalpilot/internal/action"
	"github.com/signalpilot/signalpilot/internal/actions"
	"github.com/signalpilot/signalpilot/internal/actor"
	"github.com/signalpilot/signalpilot/internal/lua"
	"github.com/signalpilot/signalpilot/internal/orchestrator"
	"github.com/signalpilot/signalpilot/internal/provider"
	"github.com/signalpilot/signalpilot/internal/signalinfo"
	"github.com/signalpilot/signalpilot/internal/state"
)

var ErrEmptyQuery = errors.New("empty query")

// Preparer rewrites a query before the pipeline runs. *lua.Preparer
// satisfies it.
type Preparer interface {
	Prepare(ctx context.Context, text string, filters []string) (*lua.PrepareResult, error)
}

type Query struct {
	// ConversationID groups the recorded results. A new one is generated
	// when empty.
	ConversationID   string
	Text             string
	FilterConditions []string
}

type Answer struct {
	ConversationID string
	Query          string // the prepared query
	Role           string
	Plan           string
	Code           string
	// Reply is set instead of the pipeline output when the preparation
	// script answered the query itself.
	Reply   string
	Results []action.Result
}

type Assistant struct {
	dispatcher   *orchestrator.Dispatcher
	memory       state.WorkingMemory
	catalog      *signalinfo.Catalog
	preparer     Preparer
	replacements map[string]string
	planner      provider.GenerationParameters
	coder        provider.GenerationParameters
	selector     provider.GenerationParameters
	logger       *slog.Logger
}

type Option func(*Assistant)

func WithWorkingMemory(m state.WorkingMemory) Option { return func(a *Assistant) { a.memory = m } }

func WithCatalog(c *signalinfo.Catalog) Option { return func(a *Assistant) { a.catalog = c } }

// WithPreparer replaces the built-in query preparation.
func WithPreparer(p Preparer) Option { return func(a *Assistant) { a.preparer = p } }

// WithReplacements maps user words to signal names.
func WithReplacements(r map[string]string) Option { return func(a *Assistant) { a.replacements = r } }

func WithGeneration(planner, coder, selector provider.GenerationParameters) Option {
	return func(a *Assistant) {
		a.planner, a.coder, a.selector = planner, coder, selector
	}
}

func WithLogger(l *slog.Logger) Option { return func(a *Assistant) { a.logger = l } }

// New builds an assistant over a dispatcher whose registry holds the
// pipeline actions.
func New(dispatcher *orchestrator.Dispatcher, opts ...Option) *Assistant {
	defaults := provider.DefaultGenerationParameters()
	a := &Assistant{
		dispatcher: dispatcher,
		planner:    defaults,
		coder:      defaults,
		selector:   defaults,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a
}

// Ask runs the pipeline for q. The answer carries every result produced
// so far, also when an error is returned.
func (a *Assistant) Ask(ctx context.Context, q Query) (*Answer, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, ErrEmptyQuery
	}
	ans := &Answer{ConversationID: q.ConversationID}
	if ans.ConversationID == "" {
		ans.ConversationID = uuid.NewString()
	}
	logger := a.logger.With("conversation", ans.ConversationID)
	ctx = actor.WithActor(ctx, ans.ConversationID)

	text, reply, err := a.prepare(ctx, q)
	if err != nil {
		return ans, err
	}
	if reply != "" {
		ans.Reply = reply
		return ans, nil
	}
	ans.Query = text

	roleRes, err := a.step(ctx, ans, "RoleCoderSelectionAction", action.Arguments{
		"user_query":            text,
		"generation_parameters": a.selector,
	})
	if err != nil {
		return ans, err
	}
	ans.Role = roleRes.Payload
	logger.Debug("role selected", "role", ans.Role)

	planRes, err := a.step(ctx, ans, "PlanningAction", action.Arguments{
		"user_query_reformatted":             withFilters(text, q.FilterConditions),
		"system_instruction_planner_generic": a.instruction(actions.SystemInstructionPlanner),
		"generation_parameters":              a.planner,
	})
	if err != nil {
		return ans, err
	}
	ans.Plan = planRes.Payload
	logger.Debug("plan ready", "steps", strings.Count(ans.Plan, "\n")+1)

	var code []string
	for _, role := range strings.Split(ans.Role, ",") {
		res, err := a.step(ctx, ans, "CodeGenerationAction", action.Arguments{
			"plan":                  withFilters(ans.Plan, q.FilterConditions),
			"system_instruction":    a.instruction(coderInstruction(actions.Role(role))),
			"generation_parameters": a.coder,
		})
		if err != nil {
			return ans, err
		}
		code = append(code, res.Payload)
	}
	ans.Code = strings.Join(code, "\n\n")
	return ans, nil
}

func (a *Assistant) prepare(ctx context.Context, q Query) (text, reply string, err error) {
	if a.preparer == nil {
		return PrepareQuery(q.Text, a.replacements), "", nil
	}
	res, err := a.preparer.Prepare(ctx, q.Text, q.FilterConditions)
	if err != nil {
		return "", "", fmt.Errorf("preparing query: %w", err)
	}
	if !res.SendToLLM {
		return "", res.Content, nil
	}
	if strings.TrimSpace(res.Content) == "" {
		return "", "", ErrEmptyQuery
	}
	return res.Content, "", nil
}

// step dispatches one pipeline action and records its result. A failed
// result is returned as its error.
func (a *Assistant) step(ctx context.Context, ans *Answer, name string, args action.Arguments) (action.Result, error) {
	res, err := a.dispatcher.Dispatch(ctx, orchestrator.ToolCall{
		ID:     uuid.NewString(),
		Action: name,
		Args:   args,
	})
	if err != nil {
		return res, err
	}
	ans.Results = append(ans.Results, res)
	if a.memory != nil {
		if err := a.memory.Record(ctx, ans.ConversationID, res); err != nil {
			a.logger.Warn("recording action result", "conversation", ans.ConversationID, "action", name, "error", err)
		}
	}
	if !res.OK() {
		return res, res.Err()
	}
	return res, nil
}

// instruction appends the signal table to a system instruction.
func (a *Assistant) instruction(base string) string {
	table := a.catalog.Render()
	if table == "" {
		return base
	}
	return base + "\n\n" + table
}

func coderInstruction(role actions.Role) string {
	if role == actions.RolePlot {
		return actions.SystemInstructionCoderPlot
	}
	return actions.SystemInstructionCoderComputation
}

func withFilters(text string, filters []string) string {
	var conds []string
	for _, f := range filters {
		if f = strings.TrimSpace(f); f != "" {
			conds = append(conds, f)
		}
	}
	if len(conds) == 0 {
		return text
	}
	return text + "\nFilter conditions: " + strings.Join(conds, " and ") + "."
}
