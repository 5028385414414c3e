// Package actions holds the model-invocable actions of the analysis
// pipeline: planning, code generation and role selection.
package actions

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/signalpilot/signalpilot/internal/action"
	"github.com/signalpilot/signalpilot/internal/llm"
	"github.com/signalpilot/signalpilot/internal/provider"
)

var pythonBlock = regexp.MustCompile("(?s)```python(.*?)```")

// ExtractPythonBlocks joins the bodies of every python fence in text.
func ExtractPythonBlocks(text string) string {
	matches := pythonBlock.FindAllStringSubmatch(text, -1)
	blocks := make([]string, 0, len(matches))
	for _, m := range matches {
		blocks = append(blocks, strings.Trim(m[1], "\n"))
	}
	return strings.Join(blocks, "\n")
}

func chat(ctx context.Context, c llm.Chatter, system, user string, params provider.GenerationParameters) (string, error) {
	if c == nil {
		return "", errors.New("no chat client configured")
	}
	return c.Chat(ctx, []provider.Message{
		{Role: provider.RoleSystem, Content: system},
		{Role: provider.RoleUser, Content: user},
	}, params)
}

type PlanningArgs struct {
	UserQueryReformatted            string                        `json:"user_query_reformatted"`
	SystemInstructionPlannerGeneric string                        `json:"system_instruction_planner_generic"`
	GenerationParameters            provider.GenerationParameters `json:"generation_parameters"`
}

// PlanningAction breaks a query into analysis steps.
type PlanningAction struct {
	LLM llm.Chatter
}

func (PlanningAction) Description() string {
	return "This action is the primary resource planning breaking analysis into steps"
}

func (PlanningAction) ParameterDescriptions() []string {
	return []string{"User query", "Planning system instruction", "Generation Parameters"}
}

func (PlanningAction) Returns() string { return "The plan in a step by step list" }

func (PlanningAction) Examples() []string { return []string{"1. Step 1\n 2. Step 2\n 3. Step 3"} }

func (PlanningAction) Args() any {
	return PlanningArgs{
		SystemInstructionPlannerGeneric: SystemInstructionPlanner,
		GenerationParameters:            provider.DefaultGenerationParameters(),
	}
}

func (a PlanningAction) Invoke(ctx context.Context, args action.Arguments) action.Result {
	const name = "PlanningAction"
	in := a.Args().(PlanningArgs)
	if err := action.Bind(args, &in); err != nil {
		return action.Failure(name, args, err)
	}
	if strings.TrimSpace(in.UserQueryReformatted) == "" {
		return action.Failuref(name, args, "user_query_reformatted is empty")
	}
	plan, err := chat(ctx, a.LLM, in.SystemInstructionPlannerGeneric, in.UserQueryReformatted, in.GenerationParameters)
	if err != nil {
		return action.Failure(name, args, err)
	}
	return action.Success(name, args, strings.TrimSpace(plan))
}

type CodeGenerationArgs struct {
	Plan                 string                        `json:"plan"`
	SystemInstruction    string                        `json:"system_instruction"`
	GenerationParameters provider.GenerationParameters `json:"generation_parameters"`
}

// CodeGenerationAction turns a plan into python code.
type CodeGenerationAction struct {
	LLM llm.Chatter
}

func (CodeGenerationAction) Description() string {
	return "This action generates the code for doing computation or plot."
}

func (CodeGenerationAction) ParameterDescriptions() []string {
	return []string{"Plan with steps.", "System Instruction", "Generation parameters"}
}

func (CodeGenerationAction) Returns() string { return "The code." }

func (CodeGenerationAction) Examples() []string { return nil }

func (CodeGenerationAction) Args() any {
	return CodeGenerationArgs{
		SystemInstruction:    SystemInstructionCoderComputation,
		GenerationParameters: provider.DefaultGenerationParameters(),
	}
}

func (a CodeGenerationAction) Invoke(ctx context.Context, args action.Arguments) action.Result {
	const name = "CodeGenerationAction"
	in := a.Args().(CodeGenerationArgs)
	if err := action.Bind(args, &in); err != nil {
		return action.Failure(name, args, err)
	}
	if strings.TrimSpace(in.Plan) == "" {
		return action.Failuref(name, args, "plan is empty")
	}
	answer, err := chat(ctx, a.LLM, in.SystemInstruction, in.Plan, in.GenerationParameters)
	if err != nil {
		return action.Failure(name, args, err)
	}
	code := ExtractPythonBlocks(answer)
	if code == "" {
		return action.Success(name, args, "``````")
	}
	return action.Success(name, args, fmt.Sprintf("```python\n%s\n```", code))
}

type Role string

const (
	RolePlot        Role = "plot"
	RoleComputation Role = "computation"
)

// RolePolicy decides the payload when a query asks for both roles.
type RolePolicy string

const (
	PreferPlot        RolePolicy = "plot"
	PreferComputation RolePolicy = "computation"
	ReportBoth        RolePolicy = "both"
)

func ParseRolePolicy(s string) (RolePolicy, error) {
	switch p := RolePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PreferPlot, nil
	case PreferPlot, PreferComputation, ReportBoth:
		return p, nil
	}
	return "", fmt.Errorf("unknown role policy %q (want plot, computation or both)", s)
}

// Resolve picks the payload for the detected roles. No detected role
// means computation.
func (p RolePolicy) Resolve(plot, computation bool) string {
	switch {
	case plot && computation:
		switch p {
		case ReportBoth:
			return string(RolePlot) + "," + string(RoleComputation)
		case PreferComputation:
			return string(RoleComputation)
		}
		return string(RolePlot)
	case plot:
		return string(RolePlot)
	}
	return string(RoleComputation)
}

type RoleSelectionArgs struct {
	UserQuery            string                        `json:"user_query"`
	GenerationParameters provider.GenerationParameters `json:"generation_parameters"`
}

// RoleCoderSelectionAction decides which coder handles a query.
type RoleCoderSelectionAction struct {
	LLM        llm.Chatter
	Policy     RolePolicy
	Classifier *RoleClassifier
}

func (RoleCoderSelectionAction) Description() string {
	return "This action decides whether the user_query requires computation, plot or both."
}

func (RoleCoderSelectionAction) ParameterDescriptions() []string {
	return []string{"User query alone.", "Generation Parameters"}
}

func (RoleCoderSelectionAction) Returns() string { return "plot or computation" }

func (RoleCoderSelectionAction) Examples() []string { return []string{"plot"} }

func (RoleCoderSelectionAction) Args() any {
	return RoleSelectionArgs{GenerationParameters: provider.DefaultGenerationParameters()}
}

func (a RoleCoderSelectionAction) Invoke(ctx context.Context, args action.Arguments) action.Result {
	const name = "RoleCoderSelectionAction"
	in := a.Args().(RoleSelectionArgs)
	if err := action.Bind(args, &in); err != nil {
		return action.Failure(name, args, err)
	}
	if strings.TrimSpace(in.UserQuery) == "" {
		return action.Failuref(name, args, "user_query is empty")
	}
	answer, err := chat(ctx, a.LLM, SystemInstructionRoleSelector, in.UserQuery, in.GenerationParameters)
	if err != nil {
		return action.Failure(name, args, err)
	}

	lower := strings.ToLower(answer)
	plot := strings.Contains(lower, string(RolePlot))
	computation := strings.Contains(lower, string(RoleComputation))
	if !plot && !computation {
		c := a.Classifier
		if c == nil {
			c = NewRoleClassifier()
		}
		plot, computation = c.Classify(in.UserQuery)
	}
	return action.Success(name, args, a.Policy.Resolve(plot, computation))
}

// Definitions defines every action of the pipeline against one chat
// client per role.
func Definitions(planner, coder, selector llm.Chatter, policy RolePolicy, overrides map[string]action.Metadata) ([]*action.Definition, error) {
	list := []action.Action{
		RoleCoderSelectionAction{LLM: selector, Policy: policy, Classifier: NewRoleClassifier()},
		PlanningAction{LLM: planner},
		CodeGenerationAction{LLM: coder},
	}
	known := make(map[string]bool, len(list))
	defs := make([]*action.Definition, 0, len(list))
	for _, a := range list {
		name := action.TypeName(a)
		known[name] = true
		var opts []action.DefineOption
		if m, ok := overrides[name]; ok {
			opts = append(opts, action.WithMetadata(m))
		}
		def, err := action.Define(a, opts...)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	for name := range overrides {
		if !known[name] {
			return nil, fmt.Errorf("metadata for unknown action %q", name)
		}
	}
	return defs, nil
}
