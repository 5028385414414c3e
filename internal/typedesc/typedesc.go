// Package typedesc renders Go type annotations as the short type strings
// shown to the model in action descriptions.
package typedesc

import (
	"reflect"
	"runtime"
	"strings"
)

const (
	anyName     = "any"
	unknownName = "unknown"
)

// Generic describes a parametrized container that a Go type cannot spell
// directly, for example a tuple. Args may hold reflect.Type values,
// strings, functions, nested Generic values or nil.
type Generic struct {
	Origin string
	Args   []any
}

// Of returns the reflect.Type of T. It works for interface types too.
func Of[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Render returns the human-readable rendering of annotation. It never
// panics; shapes it does not recognize render as "unknown". A *Generic
// that contains itself renders as "unknown" where it recurs.
func Render(annotation any) (out string) {
	defer func() {
		if recover() != nil {
			out = unknownName
		}
	}()
	return render(annotation, make(map[*Generic]bool))
}

// render tracks the *Generic values on the current path in open.
func render(annotation any, open map[*Generic]bool) string {
	switch a := annotation.(type) {
	case nil:
		return anyName
	case reflect.Type:
		return renderType(a)
	case string:
		return a
	case Generic:
		return renderGeneric(a, open)
	case *Generic:
		if a == nil || open[a] {
			return unknownName
		}
		open[a] = true
		defer delete(open, a)
		return renderGeneric(*a, open)
	}

	v := reflect.ValueOf(annotation)
	if v.Kind() == reflect.Func {
		if v.IsNil() {
			return unknownName
		}
		return funcName(v)
	}
	return unknownName
}

func renderType(t reflect.Type) string {
	if t == nil {
		return anyName
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Interface:
		if t.NumMethod() == 0 {
			return anyName
		}
	case reflect.Slice, reflect.Array:
		if t.Name() == "" {
			return "list[" + renderType(t.Elem()) + "]"
		}
	case reflect.Map:
		if t.Name() == "" {
			return "dict[" + renderType(t.Key()) + ", " + renderType(t.Elem()) + "]"
		}
	case reflect.Chan:
		if t.Name() == "" {
			return "chan[" + renderType(t.Elem()) + "]"
		}
	case reflect.Func:
		if t.Name() == "" {
			return "func"
		}
	}
	if name := t.Name(); name != "" {
		return genericBase(name)
	}
	return unknownName
}

func renderGeneric(g Generic, open map[*Generic]bool) string {
	if g.Origin == "" {
		return unknownName
	}
	if len(g.Args) == 0 {
		return g.Origin
	}
	parts := make([]string, len(g.Args))
	for i, arg := range g.Args {
		parts[i] = render(arg, open)
	}
	return g.Origin + "[" + strings.Join(parts, ", ") + "]"
}

// genericBase strips the instantiation suffix reflect adds to names of
// instantiated generic types, e.g. "Pair[int,string]" becomes "Pair".
func genericBase(name string) string {
	if i := strings.IndexByte(name, '['); i > 0 {
		return name[:i]
	}
	return name
}

func funcName(v reflect.Value) string {
	fn := runtime.FuncForPC(v.Pointer())
	if fn == nil {
		return unknownName
	}
	name := fn.Name()
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSuffix(name, "-fm")
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return name
}
