// Package app wires the SignalPilot services from the configuration using
// go.uber.org/dig.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"go.uber.org/dig"

	"github.com/signalpilot/signalpilot/internal/action"
	"github.com/signalpilot/signalpilot/internal/actions"
	"github.com/signalpilot/signalpilot/internal/auth"
	"github.com/signalpilot/signalpilot/internal/analysis"
	"github.com/signalpilot/signalpilot/internal/chattemplate"
	"github.com/signalpilot/signalpilot/internal/config"
	"github.com/signalpilot/signalpilot/internal/failover"
	"github.com/signalpilot/signalpilot/internal/llm"
	"github.com/signalpilot/signalpilot/internal/lua"
	"github.com/signalpilot/signalpilot/internal/orchestrator"
	"github.com/signalpilot/signalpilot/internal/provider"
	"github.com/signalpilot/signalpilot/internal/router"
	"github.com/signalpilot/signalpilot/internal/signalinfo"
	"github.com/signalpilot/signalpilot/internal/state"
	"github.com/signalpilot/signalpilot/internal/state/redisstore"
	"github.com/signalpilot/signalpilot/internal/state/store"
)

// App holds the resolved service singletons. Callers use the fields;
// they never need to import dig directly.
type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Providers     *provider.Registry
	Router        *router.WeightedRouter
	Clients       Clients
	Registry      *orchestrator.ActionRegistry
	Dispatcher    *orchestrator.Dispatcher
	Conversations *state.ConversationStore
	Orchestrator  *orchestrator.Orchestrator
	Memory        state.WorkingMemory
	Catalog       *signalinfo.Catalog
	Assistant     *analysis.Assistant

	closers *closers
}

// Clients maps every role to its chat client.
type Clients map[router.Role]*llm.Client

// closers collects resources App.Close releases, in reverse order.
type closers struct{ list []io.Closer }

func (c *closers) add(cl io.Closer) { c.list = append(c.list, cl) }

// New builds and wires every service from cfg.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d := dig.New()

	constructors := []any{
		func() *config.Config { return cfg },
		func() *slog.Logger { return logger },
		func() *closers { return &closers{} },
		newProviderRegistry,
		NewRouter,
		newClients,
		NewActionRegistry,
		newDispatcher,
		state.NewConversationStore,
		newWorkingMemory,
		newOrchestrator,
		newCatalog,
		newAssistant,
	}
	for _, c := range constructors {
		if err := d.Provide(c); err != nil {
			return nil, err
		}
	}

	var result *App
	err := d.Invoke(func(
		providers *provider.Registry,
		rt *router.WeightedRouter,
		clients Clients,
		registry *orchestrator.ActionRegistry,
		dispatcher *orchestrator.Dispatcher,
		conversations *state.ConversationStore,
		orch *orchestrator.Orchestrator,
		memory state.WorkingMemory,
		catalog *signalinfo.Catalog,
		assistant *analysis.Assistant,
		cl *closers,
	) {
		result = &App{
			Config:        cfg,
			Logger:        logger,
			Providers:     providers,
			Router:        rt,
			Clients:       clients,
			Registry:      registry,
			Dispatcher:    dispatcher,
			Conversations: conversations,
			Orchestrator:  orch,
			Memory:        memory,
			Catalog:       catalog,
			Assistant:     assistant,
			closers:       cl,
		}
	})
	if err != nil {
		return nil, dig.RootCause(err)
	}
	return result, nil
}

// Close releases the working memory backend.
func (a *App) Close() error {
	if a == nil || a.closers == nil {
		return nil
	}
	var errs []error
	for i := len(a.closers.list) - 1; i >= 0; i-- {
		errs = append(errs, a.closers.list[i].Close())
	}
	a.closers.list = nil
	return errors.Join(errs...)
}

// ModelStatus probes the model of every role, once per distinct model.
func (a *App) ModelStatus(ctx context.Context) map[string]llm.Status {
	byModel := make(map[string]*llm.Client)
	for _, c := range a.Clients {
		byModel[c.Model().String()] = c
	}
	return llm.CheckAvailability(ctx, byModel)
}

func newProviderRegistry(cfg *config.Config) (*provider.Registry, error) {
	reg := provider.NewRegistry()
	names := make([]string, 0, len(cfg.Models.Providers))
	for name := range cfg.Models.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		pc := cfg.Models.Providers[name]
		models := make([]provider.ModelInfo, 0, len(pc.Models))
		for _, m := range pc.Models {
			models = append(models, provider.ModelInfo{
				ID:         m.ID,
				Name:       m.Name,
				ProviderID: name,
				MaxTokens:  m.MaxTokens,
			})
		}
		pcfg := provider.ProviderConfig{
			ID:      name,
			BaseURL: pc.BaseURL,
			APIKey:  pc.APIKey,
			API:     pc.API,
			Models:  models,
			Timeout: cfg.Retry.Timeout,
		}
		if len(pc.APIKeys) > 0 {
			keys := append([]string{pc.APIKey}, pc.APIKeys...)
			pcfg.Keys = auth.NewKeyring(name, keys, auth.DefaultCooldownConfig())
		}
		p, err := provider.FromConfig(pcfg)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(p); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// NewRouter ranks the catalog and pins the per-role models of cfg.
func NewRouter(cfg *config.Config) *router.WeightedRouter {
	catalog := make([]router.CatalogModel, 0, len(cfg.Models.Catalog))
	for ref, e := range cfg.Models.Catalog {
		catalog = append(catalog, router.CatalogModel{
			Ref:      provider.ModelRef(ref),
			Alias:    e.Alias,
			Weight:   e.Weight,
			Template: e.Template,
		})
	}
	pins := map[router.Role]provider.ModelRef{}
	for role, ref := range map[router.Role]string{
		router.RolePlanner:  cfg.Agent.PlannerModel,
		router.RoleCoder:    cfg.Agent.CoderModel,
		router.RoleSelector: cfg.Agent.SelectorModel,
		router.RoleChat:     cfg.Agent.ChatModel,
	} {
		if ref != "" {
			pins[role] = provider.ModelRef(ref)
		}
	}
	return router.NewWeightedRouter(catalog, pins)
}

// templateFor returns the agent-wide template override, else the
// template of the model's catalog entry. Nil means the chat endpoint.
func templateFor(cfg *config.Config, rt *router.WeightedRouter, ref provider.ModelRef) (chattemplate.Template, error) {
	name := cfg.Agent.Template
	if name == "" {
		if m, ok := rt.Lookup(ref); ok {
			name = m.Template
		}
	}
	if name == "" {
		return nil, nil
	}
	return chattemplate.Lookup(name)
}

func newClients(cfg *config.Config, providers *provider.Registry, rt *router.WeightedRouter, logger *slog.Logger) (Clients, error) {
	policy := failover.Policy{
		MaxRetries:      cfg.Retry.MaxRetries,
		InitialInterval: cfg.Retry.MinBackoff,
		MaxInterval:     cfg.Retry.MaxBackoff,
		MaxElapsed:      cfg.Retry.MaxElapsed,
	}

	clients := make(Clients)
	for _, role := range router.Roles() {
		ref, err := rt.Route(role, nil)
		if err != nil {
			return nil, err
		}
		if _, err := providers.GetForModel(ref); err != nil {
			return nil, fmt.Errorf("%s model %s: %w", role, ref, err)
		}
		tmpl, err := templateFor(cfg, rt, ref)
		if err != nil {
			return nil, fmt.Errorf("%s model %s: %w", role, ref, err)
		}

		// A fallback must speak the same prompt format.
		var fallbacks []provider.ModelRef
		for _, fb := range rt.Fallbacks(ref) {
			fbTmpl, err := templateFor(cfg, rt, fb)
			if err != nil || templateName(fbTmpl) != templateName(tmpl) {
				continue
			}
			fallbacks = append(fallbacks, fb)
		}

		roleLogger := logger.With("role", string(role))
		opts := []llm.Option{
			llm.WithLogger(roleLogger),
			llm.WithRetry(failover.NewController(policy, fallbacks, roleLogger)),
		}
		if tmpl != nil {
			opts = append(opts, llm.WithTemplate(tmpl))
		}
		clients[role] = llm.New(providers, ref, opts...)
	}
	return clients, nil
}

func templateName(t chattemplate.Template) string {
	if t == nil {
		return ""
	}
	return t.Name()
}

// NewActionRegistry defines the pipeline actions against clients, with
// the metadata overrides of agent.metadata_dir. Nil clients give a
// registry that can only be inspected.
func NewActionRegistry(cfg *config.Config, clients Clients) (*orchestrator.ActionRegistry, error) {
	policy, err := actions.ParseRolePolicy(cfg.Agent.RolePolicy)
	if err != nil {
		return nil, err
	}
	var overrides map[string]action.Metadata
	if cfg.Agent.MetadataDir != "" {
		if overrides, err = actions.LoadMetadataDir(cfg.Agent.MetadataDir); err != nil {
			return nil, err
		}
	}
	defs, err := actions.Definitions(
		chatter(clients[router.RolePlanner]),
		chatter(clients[router.RoleCoder]),
		chatter(clients[router.RoleSelector]),
		policy,
		overrides,
	)
	if err != nil {
		return nil, err
	}
	reg := orchestrator.NewActionRegistry()
	for _, def := range defs {
		if err := reg.Register(def); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func chatter(c *llm.Client) llm.Chatter {
	if c == nil {
		return nil
	}
	return c
}

func newDispatcher(cfg *config.Config, registry *orchestrator.ActionRegistry) *orchestrator.Dispatcher {
	guard := orchestrator.NewGuard()
	if cfg.Agent.ActionTimeout > 0 {
		guard.Timeout = cfg.Agent.ActionTimeout
	}
	return orchestrator.NewDispatcher(registry, guard)
}

func newWorkingMemory(cfg *config.Config, cl *closers, logger *slog.Logger) (state.WorkingMemory, error) {
	switch strings.ToLower(cfg.Memory.Backend) {
	case config.MemoryBackendSQLite:
		db, err := store.Open(cfg.DataDir())
		if err != nil {
			return nil, err
		}
		cl.add(db)
		logger.Debug("working memory", "backend", "sqlite", "dir", cfg.DataDir())
		return store.NewWorkingMemory(db), nil
	case config.MemoryBackendRedis:
		m := redisstore.New(redisstore.Options{
			Addr:     cfg.Memory.RedisAddr,
			Password: cfg.Memory.RedisPassword,
			DB:       cfg.Memory.RedisDB,
			TTL:      cfg.Memory.TTL,
		})
		if err := m.Ping(context.Background()); err != nil {
			m.Close()
			return nil, err
		}
		cl.add(m)
		logger.Debug("working memory", "backend", "redis", "addr", cfg.Memory.RedisAddr)
		return m, nil
	case config.MemoryBackendInMemory, "":
		return state.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown memory backend %q", cfg.Memory.Backend)
}

func newOrchestrator(
	cfg *config.Config,
	clients Clients,
	registry *orchestrator.ActionRegistry,
	dispatcher *orchestrator.Dispatcher,
	conversations *state.ConversationStore,
	memory state.WorkingMemory,
	logger *slog.Logger,
) (*orchestrator.Orchestrator, error) {
	policy, err := orchestrator.ParseUnknownActionPolicy(cfg.Agent.UnknownAction)
	if err != nil {
		return nil, err
	}
	opts := []orchestrator.Option{
		orchestrator.WithDispatcher(dispatcher),
		orchestrator.WithWorkingMemory(memory),
		orchestrator.WithRules(cfg.Agent.Rules),
		orchestrator.WithGeneration(cfg.Agent.Generation.Chat),
		orchestrator.WithMaxIterations(cfg.Agent.MaxIterations),
		orchestrator.WithUnknownActionPolicy(policy),
		orchestrator.WithLogger(logger),
	}
	if cfg.Agent.Persona != "" {
		opts = append(opts, orchestrator.WithPersona(cfg.Agent.Persona))
	}
	return orchestrator.New(clients[router.RoleChat], registry, conversations, opts...), nil
}

// newCatalog loads the signal catalog. No file gives an empty catalog.
func newCatalog(cfg *config.Config) (*signalinfo.Catalog, error) {
	if cfg.Signals.File == "" {
		return signalinfo.Parse(nil)
	}
	return signalinfo.Load(cfg.Signals.File)
}

func newAssistant(
	cfg *config.Config,
	dispatcher *orchestrator.Dispatcher,
	memory state.WorkingMemory,
	catalog *signalinfo.Catalog,
	logger *slog.Logger,
) (*analysis.Assistant, error) {
	gen := cfg.Agent.Generation
	opts := []analysis.Option{
		analysis.WithWorkingMemory(memory),
		analysis.WithCatalog(catalog),
		analysis.WithReplacements(cfg.Agent.Replacements),
		analysis.WithGeneration(gen.Planner, gen.Coder, gen.Selector),
		analysis.WithLogger(logger),
	}
	if cfg.Prepare.Script != "" {
		p, err := lua.NewPreparer(cfg.Prepare.Script)
		if err != nil {
			return nil, err
		}
		opts = append(opts, analysis.WithPreparer(p))
	}
	return analysis.New(dispatcher, opts...), nil
}
