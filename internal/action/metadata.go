package action

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Metadata is the declared, human-written part of an action description.
type Metadata struct {
	Description           string     `yaml:"description" json:"description"`
	ParameterDescriptions StringList `yaml:"parameter_descriptions" json:"parameter_descriptions"`
	Returns               string     `yaml:"returns,omitempty" json:"returns,omitempty"`
	Examples              StringList `yaml:"examples,omitempty" json:"examples,omitempty"`
}

// merge returns m with every non-empty field of override applied.
func (m Metadata) merge(override Metadata) Metadata {
	if override.Description != "" {
		m.Description = override.Description
	}
	if override.ParameterDescriptions != nil {
		m.ParameterDescriptions = override.ParameterDescriptions
	}
	if override.Returns != "" {
		m.Returns = override.Returns
	}
	if override.Examples != nil {
		m.Examples = override.Examples
	}
	return m
}

// StringList is a list of strings that also accepts a single scalar
// string, which becomes a one-element list.
type StringList []string

// Lines normalizes v into a StringList. Strings become one-element lists;
// anything that is not a string or a string slice yields nil.
func Lines(v any) StringList {
	switch x := v.(type) {
	case string:
		return StringList{x}
	case []string:
		return StringList(x)
	case StringList:
		return x
	}
	return nil
}

func (l *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		*l = StringList{s}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := value.Decode(&items); err != nil {
			return err
		}
		*l = items
		return nil
	default:
		return fmt.Errorf("line %d: expected string or list of strings", value.Line)
	}
}

func (l *StringList) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*l = StringList{s}
		return nil
	}
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("expected string or list of strings: %w", err)
	}
	*l = items
	return nil
}
