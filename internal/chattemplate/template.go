// Package chattemplate serializes a conversation into the single prompt
// string a model family expects on its raw completion endpoint.
package chattemplate

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/signalpilot/signalpilot/internal/provider"
)

// Template formats messages for one model family. Implementations are
// pure and safe for concurrent use.
type Template interface {
	Name() string
	// Format renders messages. When addGenerationPrompt is set, the
	// output ends with an open assistant turn.
	Format(messages []provider.Message, addGenerationPrompt bool) (string, error)
}

// ErrRoleAlternation matches every *RoleAlternationError.
var ErrRoleAlternation = errors.New("Conversation roles must alternate user/assistant/user/assistant/...")

// RoleAlternationError reports the first message that breaks strict
// user/assistant alternation.
type RoleAlternationError struct {
	Index int
	Role  provider.Role
}

func (e *RoleAlternationError) Error() string {
	return fmt.Sprintf("%s (message %d has role %q)", ErrRoleAlternation.Error(), e.Index, e.Role)
}

func (e *RoleAlternationError) Is(target error) bool {
	return target == ErrRoleAlternation
}

// conversation is a validated message list with the optional leading
// system message split off.
type conversation struct {
	system    string
	hasSystem bool
	turns     []provider.Message
}

func split(messages []provider.Message) (conversation, error) {
	var c conversation
	turns := messages
	offset := 0
	if len(turns) > 0 && turns[0].Role == provider.RoleSystem {
		c.system = turns[0].Content
		c.hasSystem = true
		turns = turns[1:]
		offset = 1
	}
	for i, m := range turns {
		want := provider.RoleUser
		if i%2 == 1 {
			want = provider.RoleAssistant
		}
		if m.Role != want {
			return conversation{}, &RoleAlternationError{Index: i + offset, Role: m.Role}
		}
	}
	c.turns = turns
	return c, nil
}

// Validate reports whether messages alternate strictly after an optional
// leading system message.
func Validate(messages []provider.Message) error {
	_, err := split(messages)
	return err
}

var registry = map[string]func() Template{
	"llama3":  func() Template { return Llama3{} },
	"llama31": func() Template { return Llama31{} },
	"mixtral": func() Template { return Mixtral{} },
	"phind":   func() Template { return Phind{} },
}

// Lookup returns the template registered under name.
func Lookup(name string) (Template, error) {
	f, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown chat template %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	return f(), nil
}

func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ForModel picks a template from a model id such as "llama-31-70b".
func ForModel(model string) (Template, bool) {
	m := strings.ToLower(model)
	switch {
	case containsAny(m, "phind", "codellama"):
		return Phind{}, true
	case containsAny(m, "llama-31", "llama31", "llama-3.1", "llama3.1", "llama-3-1"):
		return Llama31{}, true
	case containsAny(m, "llama-3", "llama3"):
		return Llama3{}, true
	case strings.Contains(m, "mixtral"):
		return Mixtral{}, true
	}
	return nil, false
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
