// Package llm is the chat client the actions and the orchestrator talk to.
// It hides chat templates, backend error detection and retries behind a
// messages-in, text-out API.
package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/signalpilot/signalpilot/internal/actor"
	"github.com/signalpilot/signalpilot/internal/chattemplate"
	"github.com/signalpilot/signalpilot/internal/failover"
	"github.com/signalpilot/signalpilot/internal/metrics"
	"github.com/signalpilot/signalpilot/internal/provider"
)

// Resolver finds the provider serving a model. *provider.Registry
// satisfies it.
type Resolver interface {
	GetForModel(ref provider.ModelRef) (provider.Provider, error)
}

// Chatter is the subset of Client the actions depend on.
type Chatter interface {
	Chat(ctx context.Context, messages []provider.Message, params provider.GenerationParameters) (string, error)
}

// Reply is the settled value of an asynchronous chat.
type Reply struct {
	Text string
	Err  error
}

type Client struct {
	resolver Resolver
	model    provider.ModelRef
	template chattemplate.Template
	retry    *failover.Controller
	logger   *slog.Logger
}

type Option func(*Client)

// WithTemplate formats conversations through t and sends them to the raw
// completion endpoint.
func WithTemplate(t chattemplate.Template) Option {
	return func(c *Client) { c.template = t }
}

func WithRetry(ctrl *failover.Controller) Option {
	return func(c *Client) { c.retry = ctrl }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func New(resolver Resolver, model provider.ModelRef, opts ...Option) *Client {
	c := &Client{
		resolver: resolver,
		model:    model,
	}
	for _, o := range opts {
		o(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.retry == nil {
		c.retry = failover.NewController(failover.DefaultPolicy(), nil, c.logger)
	}
	return c
}

func (c *Client) Model() provider.ModelRef { return c.model }

// Template returns the configured chat template, or nil.
func (c *Client) Template() chattemplate.Template { return c.template }

// Chat sends messages and returns the generated text.
func (c *Client) Chat(ctx context.Context, messages []provider.Message, params provider.GenerationParameters) (string, error) {
	return c.retry.Execute(ctx, c.model, func(ctx context.Context, model provider.ModelRef) (string, error) {
		text, err := c.once(ctx, model, messages, params)
		metrics.ObserveLLMRequest(model.String(), err)
		return text, err
	})
}

// ChatAsync runs Chat in its own goroutine. The channel receives exactly
// one Reply and is then closed.
func (c *Client) ChatAsync(ctx context.Context, messages []provider.Message, params provider.GenerationParameters) <-chan Reply {
	out := make(chan Reply, 1)
	go func() {
		defer close(out)
		text, err := c.Chat(ctx, messages, params)
		out <- Reply{Text: text, Err: err}
	}()
	return out
}

// StreamChat streams a chat completion, calling onChunk for every piece
// of content, and returns the full text. The stream is not retried once
// it has been opened.
func (c *Client) StreamChat(ctx context.Context, messages []provider.Message, params provider.GenerationParameters, onChunk func(string)) (string, error) {
	p, err := c.resolver.GetForModel(c.model)
	if err != nil {
		return "", err
	}
	params = clamp(p, c.model, params)
	c.logPrompt(ctx, c.model, messages)

	stream, err := p.Stream(ctx, &provider.CompletionRequest{
		Model:      c.model.Model(),
		Messages:   messages,
		Generation: params,
		Stream:     true,
	})
	if err != nil {
		metrics.ObserveLLMRequest(c.model.String(), err)
		return "", fmt.Errorf("open stream: %w", err)
	}
	text, err := provider.Collect(stream, func(chunk provider.StreamChunk) error {
		if onChunk != nil && chunk.Content != "" {
			onChunk(chunk.Content)
		}
		return nil
	})
	if err == nil {
		err = provider.CheckResponse(text)
	}
	metrics.ObserveLLMRequest(c.model.String(), err)
	if err != nil {
		return "", err
	}
	return text, nil
}

func (c *Client) once(ctx context.Context, model provider.ModelRef, messages []provider.Message, params provider.GenerationParameters) (string, error) {
	p, err := c.resolver.GetForModel(model)
	if err != nil {
		return "", err
	}
	params = clamp(p, model, params)

	var resp *provider.CompletionResponse
	if c.template != nil {
		tc, ok := p.(provider.TextCompleter)
		if !ok {
			return "", fmt.Errorf("provider %q has no raw completion endpoint for template %s", p.ID(), c.template.Name())
		}
		prompt, err := c.template.Format(messages, true)
		if err != nil {
			return "", err
		}
		c.logger.Debug("llm prompt", "model", model.String(), "conversation", actor.Actor(ctx), "template", c.template.Name(), "prompt", prompt)
		resp, err = tc.CompleteText(ctx, &provider.TextRequest{
			Model:      model.Model(),
			Prompt:     prompt,
			Generation: params,
		})
		if err != nil {
			return "", err
		}
	} else {
		c.logPrompt(ctx, model, messages)
		resp, err = p.Complete(ctx, &provider.CompletionRequest{
			Model:      model.Model(),
			Messages:   messages,
			Generation: params,
		})
		if err != nil {
			return "", err
		}
	}

	if err := provider.CheckResponse(resp.Content); err != nil {
		return "", err
	}
	return resp.Content, nil
}

// clamp applies the completion limit p declares for model.
func clamp(p provider.Provider, model provider.ModelRef, params provider.GenerationParameters) provider.GenerationParameters {
	if info, ok := provider.ModelOf(p, model.Model()); ok {
		return info.Clamp(params)
	}
	return params
}

func (c *Client) logPrompt(ctx context.Context, model provider.ModelRef, messages []provider.Message) {
	if !c.logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	c.logger.Debug("llm prompt", "model", model.String(), "conversation", actor.Actor(ctx), "messages", messages)
}
