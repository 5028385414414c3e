package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/signalpilot/signalpilot/internal/action"
)

var ErrUnknownAction = errors.New("unknown action")

// UnknownActionError reports a call to a name missing from the roster.
type UnknownActionError struct {
	Name  string
	Known []string
}

func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("unknown action %q (available: %s)", e.Name, strings.Join(e.Known, ", "))
}

func (e *UnknownActionError) Is(target error) bool { return target == ErrUnknownAction }

// Dispatcher routes parsed calls to registered actions.
type Dispatcher struct {
	registry *ActionRegistry
	guard    *Guard
}

func NewDispatcher(registry *ActionRegistry, guard *Guard) *Dispatcher {
	if guard == nil {
		guard = NewGuard()
	}
	return &Dispatcher{registry: registry, guard: guard}
}

// Dispatch invokes the action call names. Only an unknown name is an
// error; everything else, including invalid arguments, settles into the
// returned Result.
func (d *Dispatcher) Dispatch(ctx context.Context, call ToolCall) (action.Result, error) {
	def, ok := d.registry.Get(call.Action)
	if !ok {
		return action.Result{}, &UnknownActionError{Name: call.Action, Known: d.registry.Names()}
	}
	args := call.Args
	if args == nil {
		args = action.Arguments{}
	}
	if err := def.Validate(args); err != nil {
		return action.Failure(def.Name(), args, err), nil
	}

	res := d.guard.ExecuteWithTimeout(ctx, def, args)
	res = d.guard.ValidateResult(def.Name(), args, res)
	return d.guard.Sanitize(res), nil
}

// Guard returns the guard used for execution and output wrapping.
func (d *Dispatcher) Guard() *Guard { return d.guard }
