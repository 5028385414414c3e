package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalpilot/signalpilot/internal/provider"
)

type Config struct {
	Models  ModelsConfig  `yaml:"models"`
	Agent   AgentConfig   `yaml:"agent"`
	Retry   RetryConfig   `yaml:"retry"`
	Log     LogConfig     `yaml:"log"`
	Memory  MemoryConfig  `yaml:"memory"`
	Signals SignalsConfig `yaml:"signals"`
	Prepare PrepareConfig `yaml:"prepare"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type ModelsConfig struct {
	Providers map[string]ProviderConfig `yaml:"providers"`
	Catalog   map[string]CatalogEntry   `yaml:"catalog"`
}

type ProviderConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	// APIKeys are rotated together with APIKey. A rate-limited key
	// rests before it is used again.
	APIKeys []string          `yaml:"api_keys"`
	API     string            `yaml:"api"`
	Models  []ModelDefinition `yaml:"models"`
}

// ModelDefinition declares a model a provider serves. MaxTokens caps
// every completion requested from it.
type ModelDefinition struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	MaxTokens int    `yaml:"max_tokens"`
}

// CatalogEntry ranks a provider/model ref. The highest weight serves every
// role without a pinned model; the rest are its fallbacks.
type CatalogEntry struct {
	Alias  string `yaml:"alias"`
	Weight int    `yaml:"weight"`
	// Template formats prompts for the raw completion endpoint.
	Template string `yaml:"template"`
}

type AgentConfig struct {
	PlannerModel  string `yaml:"planner_model"`
	CoderModel    string `yaml:"coder_model"`
	SelectorModel string `yaml:"selector_model"`
	ChatModel     string `yaml:"chat_model"`
	// Template overrides the chat template of every model.
	Template      string            `yaml:"template"`
	MaxIterations int               `yaml:"max_iterations"`
	ActionTimeout time.Duration     `yaml:"action_timeout"`
	UnknownAction string            `yaml:"unknown_action"`
	RolePolicy    string            `yaml:"role_policy"`
	Persona       string            `yaml:"persona"`
	Rules         []string          `yaml:"rules"`
	Replacements  map[string]string `yaml:"replacements"`
	Generation    GenerationConfig  `yaml:"generation"`
	// MetadataDir holds YAML overrides of the action descriptions.
	MetadataDir string `yaml:"metadata_dir"`
}

type GenerationConfig struct {
	Planner  provider.GenerationParameters `yaml:"planner"`
	Coder    provider.GenerationParameters `yaml:"coder"`
	Selector provider.GenerationParameters `yaml:"selector"`
	Chat     provider.GenerationParameters `yaml:"chat"`
}

type RetryConfig struct {
	MaxRetries int `yaml:"max_retries"`
	// Timeout bounds one HTTP request to a provider.
	Timeout    time.Duration `yaml:"timeout"`
	MinBackoff time.Duration `yaml:"min_backoff"`
	MaxBackoff time.Duration `yaml:"max_backoff"`
	// MaxElapsed bounds all attempts against one model.
	MaxElapsed time.Duration `yaml:"max_elapsed"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MemoryConfig struct {
	Backend       string        `yaml:"backend"`
	DataDir       string        `yaml:"data_dir"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	TTL           time.Duration `yaml:"ttl"`
}

type SignalsConfig struct {
	File string `yaml:"file"`
}

type PrepareConfig struct {
	Script string `yaml:"script"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

const (
	MemoryBackendInMemory = "memory"
	MemoryBackendSQLite   = "sqlite"
	MemoryBackendRedis    = "redis"

	LogFormatText = "text"
	LogFormatJSON = "json"
	LogFormatTint = "tint"
)

// Default returns the configuration every file is overlaid on.
func Default() *Config {
	gen := provider.DefaultGenerationParameters()
	return &Config{
		Agent: AgentConfig{
			MaxIterations: 10,
			ActionTimeout: 120 * time.Second,
			UnknownAction: "inform",
			RolePolicy:    "plot",
			Generation: GenerationConfig{
				Planner:  gen,
				Coder:    gen,
				Selector: gen,
				Chat:     gen,
			},
		},
		Retry: RetryConfig{
			MaxRetries: 3,
			Timeout:    120 * time.Second,
			MinBackoff: time.Second,
			MaxBackoff: 20 * time.Second,
			MaxElapsed: 60 * time.Second,
		},
		Log:    LogConfig{Level: "info", Format: LogFormatTint},
		Memory: MemoryConfig{Backend: MemoryBackendInMemory, RedisAddr: "localhost:6379", TTL: 24 * time.Hour},
	}
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)}`)

func expandEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envPattern.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

func expandEnvInConfig(cfg *Config) {
	for name, p := range cfg.Models.Providers {
		p.BaseURL = expandEnv(p.BaseURL)
		p.APIKey = expandEnv(p.APIKey)
		for i, k := range p.APIKeys {
			p.APIKeys[i] = expandEnv(k)
		}
		cfg.Models.Providers[name] = p
	}
	cfg.Memory.DataDir = expandEnv(cfg.Memory.DataDir)
	cfg.Memory.RedisAddr = expandEnv(cfg.Memory.RedisAddr)
	cfg.Memory.RedisPassword = expandEnv(cfg.Memory.RedisPassword)
	cfg.Agent.MetadataDir = expandEnv(cfg.Agent.MetadataDir)
	cfg.Signals.File = expandEnv(cfg.Signals.File)
	cfg.Prepare.Script = expandEnv(cfg.Prepare.Script)
	cfg.Metrics.Addr = expandEnv(cfg.Metrics.Addr)
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse overlays data on Default. Fields the document leaves out keep
// their defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	expandEnvInConfig(cfg)
	return cfg, nil
}

// DataDir returns the SQLite directory, defaulting to ~/.signalpilot.
func (c *Config) DataDir() string {
	dir := c.Memory.DataDir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ".signalpilot"
		}
		return filepath.Join(home, ".signalpilot")
	}
	if strings.HasPrefix(dir, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, dir[2:])
		}
	}
	return dir
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	oneOf := func(field, value string, allowed ...string) {
		for _, a := range allowed {
			if strings.EqualFold(value, a) {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%s: unknown value %q (want one of %s)", field, value, strings.Join(allowed, ", ")))
	}

	for name, p := range c.Models.Providers {
		if p.API != "" {
			oneOf("models.providers."+name+".api", p.API, provider.APIOpenAI, provider.APIAnthropic)
		}
		for i, m := range p.Models {
			field := fmt.Sprintf("models.providers.%s.models[%d]", name, i)
			if m.ID == "" {
				errs = append(errs, fmt.Errorf("%s.id is required", field))
			}
			if m.MaxTokens < 0 {
				errs = append(errs, fmt.Errorf("%s.max_tokens must not be negative", field))
			}
		}
	}
	for ref := range c.Models.Catalog {
		errs = append(errs, c.checkModel("models.catalog", ref))
	}
	for field, ref := range map[string]string{
		"agent.planner_model":  c.Agent.PlannerModel,
		"agent.coder_model":    c.Agent.CoderModel,
		"agent.selector_model": c.Agent.SelectorModel,
		"agent.chat_model":     c.Agent.ChatModel,
	} {
		if ref != "" {
			errs = append(errs, c.checkModel(field, ref))
		}
	}

	if c.Agent.UnknownAction != "" {
		oneOf("agent.unknown_action", c.Agent.UnknownAction, "inform", "abort")
	}
	if c.Agent.RolePolicy != "" {
		oneOf("agent.role_policy", c.Agent.RolePolicy, "plot", "computation", "both")
	}
	if c.Agent.MaxIterations < 0 {
		errs = append(errs, fmt.Errorf("agent.max_iterations must not be negative"))
	}
	if c.Retry.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("retry.max_retries must not be negative"))
	}
	if c.Retry.MaxBackoff > 0 && c.Retry.MinBackoff > c.Retry.MaxBackoff {
		errs = append(errs, fmt.Errorf("retry.min_backoff %s exceeds retry.max_backoff %s", c.Retry.MinBackoff, c.Retry.MaxBackoff))
	}
	oneOf("log.level", c.Log.Level, "debug", "info", "warn", "error")
	oneOf("log.format", c.Log.Format, LogFormatText, LogFormatJSON, LogFormatTint)
	oneOf("memory.backend", c.Memory.Backend, MemoryBackendInMemory, MemoryBackendSQLite, MemoryBackendRedis)
	if strings.EqualFold(c.Memory.Backend, MemoryBackendRedis) && c.Memory.RedisAddr == "" {
		errs = append(errs, fmt.Errorf("memory.redis_addr is required for the redis backend"))
	}
	return errors.Join(errs...)
}

// checkModel accepts a provider/model ref of a configured provider or,
// outside the catalog itself, a catalog alias.
func (c *Config) checkModel(field, ref string) error {
	if field != "models.catalog" {
		for _, e := range c.Models.Catalog {
			if e.Alias != "" && e.Alias == ref {
				return nil
			}
		}
	}
	r, err := provider.ParseModelRef(ref)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if _, ok := c.Models.Providers[r.Provider()]; !ok {
		return fmt.Errorf("%s: model %q uses unconfigured provider %q", field, ref, r.Provider())
	}
	return nil
}
