package provider

import (
	"fmt"
	"net/http"
	"time"
)

const (
	APIOpenAI    = "openai-completions"
	APIAnthropic = "anthropic-messages"
)

// ProviderConfig mirrors config.ProviderConfig to avoid circular imports.
type ProviderConfig struct {
	ID      string
	BaseURL string
	APIKey  string
	API     string
	Models  []ModelInfo
	Timeout time.Duration
	// Keys, when set, replaces APIKey.
	Keys Keys
}

// FromConfig creates a Provider from a config entry. The api field
// determines which wire format to use:
//   - "openai-completions"  -> OpenAI-compatible (OpenAI, vLLM, TGI, Ollama, etc.)
//   - "anthropic-messages"  -> Anthropic Messages API
func FromConfig(cfg ProviderConfig) (Provider, error) {
	switch cfg.API {
	case APIOpenAI, "":
		opts := []OpenAIOption{WithOpenAITimeout(cfg.Timeout)}
		if cfg.Keys != nil {
			opts = append(opts, WithOpenAIKeys(cfg.Keys))
		}
		return NewOpenAIProvider(cfg.ID, cfg.BaseURL, cfg.APIKey, cfg.Models, opts...), nil
	case APIAnthropic:
		var opts []AnthropicOption
		if cfg.Keys != nil {
			opts = append(opts, WithAnthropicKeys(cfg.Keys))
		}
		p := NewAnthropicProvider(cfg.ID, cfg.BaseURL, cfg.APIKey, cfg.Models, opts...)
		if cfg.Timeout > 0 {
			p.client = &http.Client{Timeout: cfg.Timeout}
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown api type %q for provider %q (supported: %s, %s)",
			cfg.API, cfg.ID, APIOpenAI, APIAnthropic)
	}
}
