package orchestrator

import (
	"fmt"
	"strings"

	"github.com/signalpilot/signalpilot/internal/action"
)

// ToolCall is one action invocation requested by the model.
type ToolCall struct {
	ID     string           `json:"id" yaml:"id"`
	Action string           `json:"action" yaml:"action"`
	Reason string           `json:"reason,omitempty" yaml:"reason,omitempty"`
	Args   action.Arguments `json:"arguments,omitempty" yaml:"arguments,omitempty"`
}

// UnknownActionPolicy decides what the loop does when the model names an
// action that is not registered.
type UnknownActionPolicy string

const (
	// UnknownActionInform feeds the error back to the model as a failed
	// result.
	UnknownActionInform UnknownActionPolicy = "inform"
	// UnknownActionAbort ends the turn with the error.
	UnknownActionAbort UnknownActionPolicy = "abort"
)

func ParseUnknownActionPolicy(s string) (UnknownActionPolicy, error) {
	switch p := UnknownActionPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return UnknownActionInform, nil
	case UnknownActionInform, UnknownActionAbort:
		return p, nil
	default:
		return "", fmt.Errorf("unknown action policy %q (supported: %s, %s)", s, UnknownActionInform, UnknownActionAbort)
	}
}
