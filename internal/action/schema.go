package action

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	validator "github.com/santhosh-tekuri/jsonschema/v5"
)

// ToolSchema is the function-calling form of a definition, as accepted by
// OpenAI-compatible tool APIs.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

type argumentSchema struct {
	raw      json.RawMessage
	compiled *validator.Schema
}

func newArgumentSchema(name string, args any, params []Parameter, meta Metadata) (*argumentSchema, error) {
	var s *jsonschema.Schema
	if args == nil {
		s = &jsonschema.Schema{Type: "object"}
	} else {
		r := &jsonschema.Reflector{
			DoNotReference:             true,
			ExpandedStruct:             true,
			AllowAdditionalProperties:  true,
			RequiredFromJSONSchemaTags: true,
		}
		s = r.Reflect(args)
		s.Version = ""
		s.ID = ""
	}
	if s.Properties != nil {
		for i, p := range params {
			if prop, ok := s.Properties.Get(p.Name); ok && prop.Description == "" {
				prop.Description = meta.ParameterDescriptions[i]
			}
		}
	}

	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	c := validator.NewCompiler()
	c.Draft = validator.Draft2020
	url := name + ".json"
	if err := c.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &argumentSchema{raw: raw, compiled: compiled}, nil
}

// Schema returns the JSON Schema of the action's arguments.
func (d *Definition) Schema() json.RawMessage { return d.schema.raw }

func (d *Definition) ToolSchema() ToolSchema {
	return ToolSchema{Name: d.name, Description: d.meta.Description, Parameters: d.schema.raw}
}

// Validate checks args against the argument schema. Keys the schema does
// not know are allowed.
func (d *Definition) Validate(args Arguments) error {
	if args == nil {
		args = Arguments{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("%s: encode arguments: %w", d.name, err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("%s: decode arguments: %w", d.name, err)
	}
	if err := d.schema.compiled.Validate(doc); err != nil {
		return fmt.Errorf("%s: invalid arguments: %w", d.name, err)
	}
	return nil
}
