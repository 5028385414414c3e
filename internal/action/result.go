package action

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Arguments are the keyword arguments of one invocation.
type Arguments map[string]any

// Clone returns a shallow copy, so a result's echo is not affected by
// later changes to the caller's map.
func (a Arguments) Clone() Arguments {
	if a == nil {
		return nil
	}
	out := make(Arguments, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// String renders the arguments as k=v pairs in key order.
func (a Arguments) String() string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, a[k])
	}
	return strings.Join(parts, ", ")
}

type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

type Validity string

const (
	ValidityOpen   Validity = "OPEN"
	ValidityClosed Validity = "CLOSED"
)

// Result is the settled outcome of one action invocation.
type Result struct {
	ID           string    `json:"id" yaml:"id"`
	ActionType   string    `json:"action_type" yaml:"action_type"`
	Arguments    Arguments `json:"arguments,omitempty" yaml:"arguments,omitempty"`
	Status       Status    `json:"status" yaml:"status"`
	Validity     Validity  `json:"validity,omitempty" yaml:"validity,omitempty"`
	Payload      string    `json:"payload,omitempty" yaml:"payload,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty" yaml:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
}

// Success builds an OPEN successful result carrying payload.
func Success(actionType string, args Arguments, payload string) Result {
	return Result{
		ID:         uuid.NewString(),
		ActionType: actionType,
		Arguments:  args.Clone(),
		Status:     StatusSuccess,
		Validity:   ValidityOpen,
		Payload:    payload,
		CreatedAt:  time.Now().UTC(),
	}
}

// Failure builds a failed result from err. A nil err still yields a
// non-empty error message.
func Failure(actionType string, args Arguments, err error) Result {
	msg := "unknown error"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return Result{
		ID:           uuid.NewString(),
		ActionType:   actionType,
		Arguments:    args.Clone(),
		Status:       StatusFailed,
		ErrorMessage: msg,
		CreatedAt:    time.Now().UTC(),
	}
}

func Failuref(actionType string, args Arguments, format string, a ...any) Result {
	return Failure(actionType, args, fmt.Errorf(format, a...))
}

func (r Result) OK() bool { return r.Status == StatusSuccess }

// Err returns nil for a successful result and an *ExecutionError otherwise.
func (r Result) Err() error {
	if r.OK() {
		return nil
	}
	return &ExecutionError{Action: r.ActionType, Arguments: r.Arguments, Message: r.ErrorMessage}
}

// Message renders the result as conversation text for the model.
func (r Result) Message() string {
	if r.OK() {
		return fmt.Sprintf("%s returned:\n%s", r.ActionType, r.Payload)
	}
	return r.Err().Error()
}

// ExecutionError is the user-facing form of a failed invocation.
type ExecutionError struct {
	Action    string
	Arguments Arguments
	Message   string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("action %s(%s) failed: %s", e.Action, e.Arguments, e.Message)
}
