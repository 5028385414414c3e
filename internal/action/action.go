// Package action defines the contract every model-invocable action
// implements, builds the prompt-ready description of an action once at
// definition time and carries the uniform invocation result.
package action

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/signalpilot/signalpilot/internal/metrics"
)

// Action is a named capability the model can invoke. The metadata
// methods must not depend on Invoke having run.
type Action interface {
	Description() string
	ParameterDescriptions() []string
	Returns() string
	Examples() []string
	// Args returns the argument struct holding the defaults of every
	// parameter. Its fields define the call signature.
	Args() any
	// Invoke runs the action. Failures are reported in the returned
	// Result, never by panicking.
	Invoke(ctx context.Context, args Arguments) Result
}

// Definition is an action bound to its derived name, signature, rendered
// description and argument schema. It is immutable.
type Definition struct {
	name        string
	params      []Parameter
	meta        Metadata
	description string
	action      Action
	schema      *argumentSchema
}

type defineOptions struct {
	override Metadata
}

type DefineOption func(*defineOptions)

// WithMetadata overrides the action's own metadata field by field.
func WithMetadata(m Metadata) DefineOption {
	return func(o *defineOptions) { o.override = m }
}

// Define derives a's name from its concrete type and renders its
// description. Declaration errors are returned as is.
func Define(a Action, opts ...DefineOption) (*Definition, error) {
	if a == nil {
		return nil, fmt.Errorf("define: nil action")
	}
	var o defineOptions
	for _, opt := range opts {
		opt(&o)
	}

	name := TypeName(a)
	params, err := SignatureOf(a.Args())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	meta := Metadata{
		Description:           a.Description(),
		ParameterDescriptions: a.ParameterDescriptions(),
		Returns:               a.Returns(),
		Examples:              a.Examples(),
	}.merge(o.override)

	description, err := Build(name, params, meta)
	if err != nil {
		return nil, err
	}
	schema, err := newArgumentSchema(name, a.Args(), params, meta)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &Definition{
		name:        name,
		params:      params,
		meta:        meta,
		description: description,
		action:      a,
		schema:      schema,
	}, nil
}

// MustDefine is Define for process start; it panics on declaration errors.
func MustDefine(a Action, opts ...DefineOption) *Definition {
	d, err := Define(a, opts...)
	if err != nil {
		panic(err)
	}
	return d
}

// TypeName returns the bare name of v's concrete type.
func TypeName(v any) string {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Name() == "" {
		return fmt.Sprintf("%T", v)
	}
	return t.Name()
}

func (d *Definition) Name() string { return d.name }

// Description is the rendered, prompt-ready description.
func (d *Definition) Description() string { return d.description }

func (d *Definition) Metadata() Metadata { return d.meta }

func (d *Definition) Action() Action { return d.action }

func (d *Definition) Parameters() []Parameter {
	out := make([]Parameter, len(d.params))
	copy(out, d.params)
	return out
}

// Call invokes the action behind def. A panic inside the action is
// turned into a failed result.
func Call(ctx context.Context, def *Definition, args Arguments) (res Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = Failuref(def.name, args, "panic: %v", r)
		}
		if res.ActionType == "" {
			res.ActionType = def.name
		}
		metrics.ObserveAction(def.name, string(res.Status), time.Since(start))
	}()
	return def.action.Invoke(ctx, args)
}

// Bind overlays args on dst, which must be a pointer to an argument
// struct already holding its defaults. Unknown keys are ignored and
// missing keys keep their defaults.
func Bind(args Arguments, dst any) error {
	if len(args) == 0 {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("bind arguments: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("bind arguments: %w", err)
	}
	return nil
}
