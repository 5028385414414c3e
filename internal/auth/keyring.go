// Package auth rotates the API keys of one provider. A rate-limited key
// rests for a growing cooldown and a rejected key is disabled.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// ErrExhausted is returned when every key is resting.
var ErrExhausted = errors.New("all API keys are cooling down")

type Stats struct {
	LastUsed      time.Time
	CooldownUntil time.Time
	DisabledUntil time.Time
	ErrorCount    int
}

// Credential is one API key of a provider.
type Credential struct {
	ID     string
	secret string
	seq    uint64
	Stats  Stats
}

func (c *Credential) InCooldown(now time.Time) bool {
	return !c.Stats.CooldownUntil.IsZero() && now.Before(c.Stats.CooldownUntil)
}

func (c *Credential) IsDisabled(now time.Time) bool {
	return !c.Stats.DisabledUntil.IsZero() && now.Before(c.Stats.DisabledUntil)
}

func (c *Credential) Available(now time.Time) bool {
	return !c.InCooldown(now) && !c.IsDisabled(now)
}

const maskSuffix = "***"

// Masked shows at most the first 6 characters of the key.
func (c *Credential) Masked() string {
	const visible = 6
	if len(c.secret) <= visible {
		return maskSuffix
	}
	return c.secret[:visible] + maskSuffix
}

// Keyring hands out the least recently used available key. It
// implements provider.Keys.
type Keyring struct {
	mu       sync.Mutex
	provider string
	creds    []*Credential
	cooldown CooldownConfig
	seq      uint64
	now      func() time.Time
}

// NewKeyring drops empty and repeated keys.
func NewKeyring(providerID string, keys []string, cfg CooldownConfig) *Keyring {
	k := &Keyring{provider: providerID, cooldown: cfg, now: time.Now}
	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		k.creds = append(k.creds, &Credential{
			ID:     fmt.Sprintf("%s#%d", providerID, len(k.creds)+1),
			secret: key,
		})
	}
	return k
}

func (k *Keyring) Len() int { return len(k.creds) }

func (k *Keyring) Next() (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if len(k.creds) == 0 {
		return "", fmt.Errorf("no API keys for provider %q", k.provider)
	}
	now := k.now()
	var pick *Credential
	for _, c := range k.creds {
		if !c.Available(now) {
			continue
		}
		if pick == nil || c.seq < pick.seq {
			pick = c
		}
	}
	if pick == nil {
		return "", fmt.Errorf("provider %q: %w", k.provider, ErrExhausted)
	}
	k.seq++
	pick.seq = k.seq
	pick.Stats.LastUsed = now
	return pick.secret, nil
}

// Report updates the key after a response with status. Server errors say
// nothing about the key and are ignored.
func (k *Keyring) Report(key string, status int) {
	k.mu.Lock()
	defer k.mu.Unlock()

	c := k.find(key)
	if c == nil {
		return
	}
	now := k.now()
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		c.Stats.DisabledUntil = now.Add(k.cooldown.Disable)
	case status == http.StatusTooManyRequests:
		c.Stats.ErrorCount++
		c.Stats.CooldownUntil = now.Add(k.cooldown.duration(c.Stats.ErrorCount))
	case status >= 200 && status < 300:
		c.Stats = Stats{LastUsed: c.Stats.LastUsed}
	}
}

// Credentials returns a copy of every key's state, for status output.
func (k *Keyring) Credentials() []Credential {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]Credential, len(k.creds))
	for i, c := range k.creds {
		out[i] = *c
	}
	return out
}

func (k *Keyring) find(key string) *Credential {
	for _, c := range k.creds {
		if c.secret == key {
			return c
		}
	}
	return nil
}
