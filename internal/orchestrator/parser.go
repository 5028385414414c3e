package orchestrator

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/signalpilot/signalpilot/internal/action"
	"github.com/signalpilot/signalpilot/internal/metrics"
)

// ToolCallParser extracts tool calls from LLM response text.
// Returns nil if the response is a final answer (no tool calls).
type ToolCallParser interface {
	Parse(response string) []ToolCall
}

var jsonFence = regexp.MustCompile("(?s)```json[^\\n]*\\n(.+?)```")

// ResponseParser reads ```json fenced blocks out of generated text. Each
// block is decoded on its own; a block that cannot be decoded, even after
// repair, is logged and skipped.
type ResponseParser struct {
	logger *slog.Logger
}

func NewResponseParser(logger *slog.Logger) *ResponseParser {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResponseParser{logger: logger}
}

// DefaultParser logs through slog.Default.
var DefaultParser ToolCallParser = NewResponseParser(nil)

func (p *ResponseParser) Parse(response string) []ToolCall {
	calls := p.ExtractToolCalls(response)
	if len(calls) == 0 {
		return nil
	}
	return calls
}

// ExtractToolCalls returns every call found in text in order of
// appearance. Calls missing a name or arguments are kept; checking them
// is the dispatcher's job.
func (p *ResponseParser) ExtractToolCalls(text string) []ToolCall {
	var calls []ToolCall
	for i, m := range jsonFence.FindAllStringSubmatch(text, -1) {
		doc, err := decodeBlock(m[1])
		if err != nil {
			metrics.ToolCallParseFailures.Inc()
			p.logger.Warn("skipping undecodable json block", "block", i, "error", err)
			continue
		}
		switch v := doc.(type) {
		case map[string]any:
			calls = append(calls, toToolCall(v))
		case []any:
			for _, item := range v {
				if obj, ok := item.(map[string]any); ok {
					calls = append(calls, toToolCall(obj))
				}
			}
		default:
			metrics.ToolCallParseFailures.Inc()
			p.logger.Warn("skipping json block that is not an object", "block", i)
		}
	}
	return calls
}

func decodeBlock(block string) (any, error) {
	var doc any
	err := json.Unmarshal([]byte(block), &doc)
	if err == nil {
		return doc, nil
	}
	repaired := repairJSON(block)
	if repaired == strings.TrimSpace(block) {
		return nil, err
	}
	if err2 := json.Unmarshal([]byte(repaired), &doc); err2 != nil {
		return nil, err
	}
	return doc, nil
}

// repairJSON fixes the mistakes models commonly make in JSON: text
// around the value, trailing commas and missing closing brackets. String
// contents are copied untouched.
func repairJSON(s string) string {
	s = strings.TrimSpace(s)
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	s = s[start:]

	var (
		out      = make([]byte, 0, len(s)+4)
		stack    []byte
		inString bool
		escaped  bool
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			out = append(out, c)
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			out = dropTrailingComma(out)
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			if len(stack) == 0 {
				return string(append(out, c))
			}
		}
		out = append(out, c)
	}

	out = []byte(strings.TrimRight(string(out), " \t\r\n"))
	if inString {
		out = append(out, '"')
	} else {
		out = dropTrailingComma(out)
	}
	for i := len(stack) - 1; i >= 0; i-- {
		out = append(out, stack[i])
	}
	return string(out)
}

// dropTrailingComma removes a comma left before a closing bracket, along
// with the whitespace after it.
func dropTrailingComma(out []byte) []byte {
	trimmed := strings.TrimRight(string(out), " \t\r\n")
	if strings.HasSuffix(trimmed, ",") {
		return out[:len(trimmed)-1]
	}
	return out
}

// toToolCall accepts {"name", "parameters"} as well as the invocation
// format {"reason", "action": {"name", "arguments"}}.
func toToolCall(obj map[string]any) ToolCall {
	call := ToolCall{ID: uuid.NewString()}
	call.Reason, _ = obj["reason"].(string)

	switch a := obj["action"].(type) {
	case map[string]any:
		call.Action, _ = a["name"].(string)
		call.Args = argumentsOf(a, "arguments", "parameters")
		if call.Reason == "" {
			call.Reason, _ = a["reason"].(string)
		}
	case string:
		call.Action = a
		call.Args = argumentsOf(obj, "arguments", "parameters")
	default:
		call.Action, _ = obj["name"].(string)
		call.Args = argumentsOf(obj, "parameters", "arguments")
	}
	return call
}

func argumentsOf(obj map[string]any, keys ...string) action.Arguments {
	for _, k := range keys {
		switch v := obj[k].(type) {
		case map[string]any:
			return action.Arguments(v)
		case string:
			var args map[string]any
			if json.Unmarshal([]byte(v), &args) == nil {
				return action.Arguments(args)
			}
		}
	}
	return action.Arguments{}
}
