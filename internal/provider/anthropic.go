package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	anthropicDefaultBaseURL = "https://api.anthropic.com"
	anthropicMessagesPath   = "/v1/messages"
	anthropicAPIVersion     = "2023-06-01"
)

// AnthropicProvider implements the Provider interface for the
// Anthropic Messages API.
type AnthropicProvider struct {
	id      string
	baseURL string
	apiKey  string
	keys    Keys
	models  []ModelInfo
	client  *http.Client
}

// AnthropicOption configures an AnthropicProvider.
type AnthropicOption func(*AnthropicProvider)

// WithAnthropicHTTPClient sets a custom HTTP client.
func WithAnthropicHTTPClient(c *http.Client) AnthropicOption {
	return func(p *AnthropicProvider) { p.client = c }
}

// WithAnthropicKeys rotates the API key per request.
func WithAnthropicKeys(k Keys) AnthropicOption {
	return func(p *AnthropicProvider) { p.keys = k }
}

// NewAnthropicProvider creates a provider for the Anthropic API.
func NewAnthropicProvider(id, baseURL, apiKey string, models []ModelInfo, opts ...AnthropicOption) *AnthropicProvider {
	if baseURL == "" {
		baseURL = anthropicDefaultBaseURL
	}
	p := &AnthropicProvider{
		id:      id,
		baseURL: baseURL,
		apiKey:  apiKey,
		models:  models,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *AnthropicProvider) ID() string { return p.id }

func (p *AnthropicProvider) Models() []ModelInfo { return p.models }

// -- Anthropic wire types --

type anthRequest struct {
	Model       string        `json:"model"`
	System      string        `json:"system,omitempty"`
	Messages    []anthMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature *float64      `json:"temperature,omitempty"`
	TopP        *float64      `json:"top_p,omitempty"`
	TopK        int           `json:"top_k,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type anthMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthResponse struct {
	ID      string             `json:"id"`
	Type    string             `json:"type"`
	Model   string             `json:"model"`
	Content []anthContentBlock `json:"content"`
	Usage   anthUsage          `json:"usage"`
	Error   *anthError         `json:"error,omitempty"`
}

type anthContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error *anthError `json:"error,omitempty"`
}

type anthError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Complete sends a non-streaming completion request.
func (p *AnthropicProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	httpResp, err := p.post(ctx, p.toAnthRequest(req))
	if err != nil {
		return nil, err
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, &APIError{Provider: p.id, StatusCode: httpResp.StatusCode, Body: string(respBody)}
	}

	var anthResp anthResponse
	if err := json.Unmarshal(respBody, &anthResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if anthResp.Error != nil {
		return nil, fmt.Errorf("anthropic error [%s]: %s", anthResp.Error.Type, anthResp.Error.Message)
	}

	content := p.extractContent(anthResp.Content)

	return &CompletionResponse{
		ID:      anthResp.ID,
		Model:   anthResp.Model,
		Content: content,
		Usage: Usage{
			InputTokens:  anthResp.Usage.InputTokens,
			OutputTokens: anthResp.Usage.OutputTokens,
		},
	}, nil
}

// Stream opens a streaming Messages request and yields text deltas.
func (p *AnthropicProvider) Stream(ctx context.Context, req *CompletionRequest) (ResponseStream, error) {
	anthReq := p.toAnthRequest(req)
	anthReq.Stream = true

	httpResp, err := p.post(ctx, anthReq)
	if err != nil {
		return nil, err
	}
	if httpResp.StatusCode != http.StatusOK {
		defer func() { _ = httpResp.Body.Close() }()
		body, _ := io.ReadAll(httpResp.Body)
		return nil, &APIError{Provider: p.id, StatusCode: httpResp.StatusCode, Body: string(body)}
	}
	return newSSEStream(httpResp.Body, decodeAnthEvent), nil
}

func decodeAnthEvent(data []byte) (StreamChunk, bool, error) {
	var ev anthStreamEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return StreamChunk{}, false, fmt.Errorf("decode stream event: %w", err)
	}
	switch ev.Type {
	case "error":
		if ev.Error != nil {
			return StreamChunk{}, false, fmt.Errorf("anthropic error [%s]: %s", ev.Error.Type, ev.Error.Message)
		}
		return StreamChunk{}, false, fmt.Errorf("anthropic stream error")
	case "content_block_delta":
		if ev.Delta.Type == "text_delta" {
			return StreamChunk{Content: ev.Delta.Text}, ev.Delta.Text == "", nil
		}
	case "message_stop":
		return StreamChunk{Done: true}, false, nil
	}
	return StreamChunk{}, true, nil
}

func (p *AnthropicProvider) post(ctx context.Context, anthReq anthRequest) (*http.Response, error) {
	body, err := json.Marshal(anthReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+anthropicMessagesPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	key := p.apiKey
	if p.keys != nil {
		if key, err = p.keys.Next(); err != nil {
			return nil, fmt.Errorf("%s: %w", p.id, err)
		}
	}
	p.setHeaders(httpReq, key)

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	if p.keys != nil {
		p.keys.Report(key, httpResp.StatusCode)
	}
	return httpResp, nil
}

func (p *AnthropicProvider) toAnthRequest(req *CompletionRequest) anthRequest {
	var system string
	msgs := make([]anthMessage, 0, len(req.Messages))

	for _, m := range req.Messages {
		if m.Role == RoleSystem {
			system = m.Content
			continue
		}
		msgs = append(msgs, anthMessage{Role: string(m.Role), Content: m.Content})
	}

	g := req.Generation
	maxTokens := g.MaxTokens
	if maxTokens == 0 {
		maxTokens = DefaultGenerationParameters().MaxTokens
	}
	temperature := g.Temperature
	anthReq := anthRequest{
		Model:       req.Model,
		System:      system,
		Messages:    msgs,
		MaxTokens:   maxTokens,
		Temperature: &temperature,
		TopK:        g.TopK,
	}
	if g.TopP > 0 && g.TopP < 1 {
		topP := g.TopP
		anthReq.TopP = &topP
	}
	return anthReq
}

func (p *AnthropicProvider) extractContent(blocks []anthContentBlock) string {
	var parts []string
	for _, b := range blocks {
		if b.Type == "text" {
			parts = append(parts, b.Text)
		}
	}
	return joinStrings(parts)
}

func joinStrings(parts []string) string {
	if len(parts) == 0 {
		return ""
	}
	if len(parts) == 1 {
		return parts[0]
	}
	result := parts[0]
	for _, p := range parts[1:] {
		result += "\n\n" + p
	}
	return result
}

func (p *AnthropicProvider) setHeaders(req *http.Request, key string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", key)
	req.Header.Set("anthropic-version", anthropicAPIVersion)
}
