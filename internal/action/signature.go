package action

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/signalpilot/signalpilot/internal/typedesc"
)

// Parameter is one entry of an action's call signature.
type Parameter struct {
	Name string
	Type string
}

var contextType = typedesc.Of[context.Context]()

// SignatureOf extracts the ordered parameters of an action from its
// argument struct. Exported fields are walked in declaration order;
// the name comes from the json tag and the type from the field's Go type
// unless a `type:"..."` tag overrides it. A nil args value has no
// parameters.
func SignatureOf(args any) ([]Parameter, error) {
	if args == nil {
		return nil, nil
	}
	t := reflect.TypeOf(args)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("signature: args must be a struct, got %s", t.Kind())
	}
	var params []Parameter
	collectFields(t, &params)
	return params, nil
}

func collectFields(t reflect.Type, params *[]Parameter) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, skip := fieldName(f)
		if skip {
			continue
		}
		if f.Anonymous && name == "" {
			ft := f.Type
			if ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				collectFields(ft, params)
				continue
			}
		}
		if !f.IsExported() {
			continue
		}
		if name == "" {
			name = f.Name
		}
		typ := f.Tag.Get("type")
		if typ == "" {
			typ = typedesc.Render(f.Type)
		}
		*params = append(*params, Parameter{Name: name, Type: typ})
	}
}

// fieldName returns the json name of f, or skip when the field is
// excluded with `json:"-"`.
func fieldName(f reflect.StructField) (name string, skip bool) {
	tag, ok := f.Tag.Lookup("json")
	if !ok {
		return "", false
	}
	name, _, _ = strings.Cut(tag, ",")
	if name == "-" {
		return "", true
	}
	return name, false
}

// FuncSignature extracts the parameters of a plain function or method
// expression. names supplies the parameter names, which Go does not keep
// at run time. A leading receiver (as in (*T).Method) and a
// context.Context parameter are not part of the signature.
func FuncSignature(fn any, names ...string) ([]Parameter, error) {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return nil, fmt.Errorf("signature: expected a function, got %T", fn)
	}
	t := v.Type()
	in := make([]reflect.Type, 0, t.NumIn())
	for i := 0; i < t.NumIn(); i++ {
		in = append(in, t.In(i))
	}
	if len(in) > 0 && isReceiver(in[0]) && len(in) > len(names) {
		in = in[1:]
	}
	if len(in) > 0 && in[0] == contextType {
		in = in[1:]
	}
	if len(in) != len(names) {
		return nil, &LengthMismatchError{
			Action:       typedesc.Render(fn),
			Parameters:   len(in),
			Descriptions: len(names),
			What:         "parameter names",
		}
	}
	params := make([]Parameter, len(in))
	for i, typ := range in {
		params[i] = Parameter{Name: names[i], Type: typedesc.Render(typ)}
	}
	return params, nil
}

// isReceiver reports whether t looks like the receiver of a method
// expression: a struct, or pointer to one, that has methods.
func isReceiver(t reflect.Type) bool {
	if t.NumMethod() == 0 {
		return false
	}
	switch t.Kind() {
	case reflect.Struct:
		return true
	case reflect.Pointer:
		return t.Elem().Kind() == reflect.Struct
	}
	return false
}
