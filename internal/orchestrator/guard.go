package orchestrator

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/signalpilot/signalpilot/internal/action"
)

const (
	DefaultMaxPayloadBytes = 64 * 1024 // 64KB
	DefaultTimeout         = 120 * time.Second
)

var defaultForbiddenPatterns = []*regexp.Regexp{
	regexp.MustCompile("```json"),
	regexp.MustCompile(`\[tool_call\]`),
	regexp.MustCompile(`<tool_call>`),
	regexp.MustCompile(`<function_call>`),
	regexp.MustCompile(`\[/?action_output\]`),
	regexp.MustCompile(`"type"\s*:\s*"function"`),
	regexp.MustCompile(`"tool_calls"\s*:\s*\[`),
}

// Guard bounds action execution and keeps action output from being read
// back as instructions.
type Guard struct {
	MaxPayloadBytes   int
	Timeout           time.Duration
	ForbiddenPatterns []*regexp.Regexp
}

func NewGuard() *Guard {
	return &Guard{
		MaxPayloadBytes:   DefaultMaxPayloadBytes,
		Timeout:           DefaultTimeout,
		ForbiddenPatterns: defaultForbiddenPatterns,
	}
}

func (g *Guard) Sanitize(res action.Result) action.Result {
	res.Payload = g.sanitizeContent(res.Payload)
	res.ErrorMessage = g.sanitizeContent(res.ErrorMessage)
	return res
}

func (g *Guard) sanitizeContent(s string) string {
	if s == "" {
		return s
	}

	if g.MaxPayloadBytes > 0 && len(s) > g.MaxPayloadBytes {
		s = s[:g.MaxPayloadBytes] + "\n[truncated: output exceeded size limit]"
	}

	for _, pat := range g.ForbiddenPatterns {
		s = pat.ReplaceAllStringFunc(s, func(match string) string {
			return strings.Repeat("*", len(match))
		})
	}

	return s
}

// ValidateResult replaces a result that does not belong to the named
// action.
func (g *Guard) ValidateResult(name string, args action.Arguments, res action.Result) action.Result {
	if res.ActionType != name {
		return action.Failuref(name, args, "action returned a result for %q", res.ActionType)
	}
	if res.Status != action.StatusSuccess && res.Status != action.StatusFailed {
		return action.Failuref(name, args, "action returned unknown status %q", res.Status)
	}
	return res
}

// WrapContent renders one result as a delimited block for the model.
func (g *Guard) WrapContent(res action.Result) string {
	return fmt.Sprintf("[action_output]\n%s\n[/action_output]", res.Message())
}

// WrapResults folds every result of one generation into a single turn.
func (g *Guard) WrapResults(results []action.Result) string {
	blocks := make([]string, len(results))
	for i, res := range results {
		blocks[i] = g.WrapContent(res)
	}
	return strings.Join(blocks, "\n\n")
}

// ExecuteWithTimeout invokes def and gives up after g.Timeout. The
// action sees the deadline through its context.
func (g *Guard) ExecuteWithTimeout(ctx context.Context, def *action.Definition, args action.Arguments) action.Result {
	callCtx, cancel := context.WithTimeout(ctx, g.Timeout)
	defer cancel()

	done := make(chan action.Result, 1)
	go func() {
		done <- action.Call(callCtx, def, args)
	}()

	select {
	case res := <-done:
		return res
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return action.Failure(def.Name(), args, ctx.Err())
		}
		return action.Failuref(def.Name(), args, "action %q timed out after %s", def.Name(), g.Timeout)
	}
}
