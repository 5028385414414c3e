package state

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/signalpilot/signalpilot/internal/provider"
	"gopkg.in/yaml.v3"
)

// ErrAlternation is returned when an append would break the
// system?, user, assistant, user, ... ordering of a conversation.
var ErrAlternation = errors.New("conversation must alternate user and assistant turns")

// History is the ordered message list of one conversation. It only
// grows, except for Truncate which rolls back a failed turn.
type History struct {
	mu        sync.RWMutex
	id        string
	messages  []provider.Message
	createdAt time.Time
	updatedAt time.Time
}

func NewHistory(id string) *History {
	now := time.Now()
	return &History{
		id:        id,
		messages:  make([]provider.Message, 0),
		createdAt: now,
		updatedAt: now,
	}
}

func (h *History) ID() string { return h.id }

// Append adds msg when it keeps strict alternation. A system message is
// only accepted as the first message.
func (h *History) Append(msg provider.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if want := h.nextRole(); msg.Role != want && !(msg.Role == provider.RoleSystem && len(h.messages) == 0) {
		return fmt.Errorf("%w: message %d has role %q, want %q", ErrAlternation, len(h.messages), msg.Role, want)
	}
	h.messages = append(h.messages, msg)
	h.updatedAt = time.Now()
	return nil
}

func (h *History) nextRole() provider.Role {
	if len(h.messages) == 0 {
		return provider.RoleUser
	}
	switch h.messages[len(h.messages)-1].Role {
	case provider.RoleUser:
		return provider.RoleAssistant
	default:
		return provider.RoleUser
	}
}

// Messages returns a copy of the conversation.
func (h *History) Messages() []provider.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]provider.Message, len(h.messages))
	copy(out, h.messages)
	return out
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

func (h *History) Last() (provider.Message, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.messages) == 0 {
		return provider.Message{}, false
	}
	return h.messages[len(h.messages)-1], true
}

// Truncate drops every message from index n on.
func (h *History) Truncate(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n < 0 {
		n = 0
	}
	if n < len(h.messages) {
		h.messages = h.messages[:n]
		h.updatedAt = time.Now()
	}
}

type transcript struct {
	ID        string             `yaml:"id"`
	Messages  []provider.Message `yaml:"messages"`
	CreatedAt time.Time          `yaml:"created_at"`
	UpdatedAt time.Time          `yaml:"updated_at"`
}

// WriteYAML dumps the conversation as a YAML transcript.
func (h *History) WriteYAML(w io.Writer) error {
	h.mu.RLock()
	t := transcript{ID: h.id, Messages: h.messages, CreatedAt: h.createdAt, UpdatedAt: h.updatedAt}
	data, err := yaml.Marshal(t)
	h.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshaling transcript: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// ConversationStore maps conversation ids to their History. It lives in
// memory only.
type ConversationStore struct {
	mu            sync.RWMutex
	conversations map[string]*History
}

func NewConversationStore() *ConversationStore {
	return &ConversationStore{conversations: make(map[string]*History)}
}

// Get returns the History of id, creating it on first use.
func (s *ConversationStore) Get(id string) *History {
	s.mu.RLock()
	h, ok := s.conversations[id]
	s.mu.RUnlock()
	if ok {
		return h
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.conversations[id]; ok {
		return h
	}
	h = NewHistory(id)
	s.conversations[id] = h
	return h
}

func (s *ConversationStore) Lookup(id string) (*History, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.conversations[id]
	return h, ok
}

func (s *ConversationStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, id)
}

// IDs returns the known conversation ids in sorted order.
func (s *ConversationStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.conversations))
	for id := range s.conversations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
