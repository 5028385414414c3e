// Package signalinfo loads the signal catalog of an MF4 recording: the
// name, unit and observed values of every channel.
package signalinfo

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type Kind string

const (
	KindNumeric Kind = "numeric"
	KindText    Kind = "text"
)

// Signal is one channel of the recording. Numeric signals carry their
// [min, max] range in PossibleValues, text signals their distinct values.
type Signal struct {
	Name           string   `yaml:"-"`
	Kind           Kind     `yaml:"-"`
	PossibleValues []string `yaml:"possible_values"`
	Unit           string   `yaml:"unit"`
}

type file struct {
	Numeric map[string]Signal `yaml:"numeric_signals_info"`
	Text    map[string]Signal `yaml:"text_signals_info"`
}

// Catalog is the read-only set of signals of one recording.
type Catalog struct {
	signals map[string]Signal
}

// Load reads a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading signal info: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes the YAML form of a catalog. A numeric and a text signal
// sharing a name is an error.
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing signal info: %w", err)
	}
	c := &Catalog{signals: make(map[string]Signal, len(f.Numeric)+len(f.Text))}
	for name, s := range f.Numeric {
		s.Name, s.Kind = name, KindNumeric
		c.signals[name] = s
	}
	for name, s := range f.Text {
		if _, dup := c.signals[name]; dup {
			return nil, fmt.Errorf("signal %q is both numeric and text", name)
		}
		s.Name, s.Kind = name, KindText
		c.signals[name] = s
	}
	return c, nil
}

func (c *Catalog) Lookup(name string) (Signal, bool) {
	s, ok := c.signals[name]
	return s, ok
}

// Names returns the signal names sorted case-insensitively.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.signals))
	for n := range c.signals {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		li, lj := strings.ToLower(names[i]), strings.ToLower(names[j])
		if li == lj {
			return names[i] < names[j]
		}
		return li < lj
	})
	return names
}

func (c *Catalog) Len() int { return len(c.signals) }

// Render formats the catalog as the signal table appended to the
// planner and coder instructions.
func (c *Catalog) Render() string {
	if c == nil || len(c.signals) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Available signals (`signal_name` [unit]: possible values):\n")
	for _, name := range c.Names() {
		s := c.signals[name]
		unit := s.Unit
		if unit == "" {
			unit = "Not available"
		}
		fmt.Fprintf(&sb, "- `%s` [%s]", name, unit)
		if v := s.values(); v != "" {
			sb.WriteString(": " + v)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (s Signal) values() string {
	if len(s.PossibleValues) == 0 {
		return ""
	}
	if s.Kind == KindNumeric && len(s.PossibleValues) == 2 {
		lo, hi := s.PossibleValues[0], s.PossibleValues[1]
		if isNaN(lo) || isNaN(hi) {
			return ""
		}
		return lo + " to " + hi
	}
	return strings.Join(s.PossibleValues, ", ")
}

func isNaN(v string) bool {
	switch strings.ToLower(v) {
	case "", ".nan", "nan":
		return true
	}
	return false
}
