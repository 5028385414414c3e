package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	openAIDefaultBaseURL = "https://api.openai.com/v1"
	openAIChatPath       = "/chat/completions"
	openAITextPath       = "/completions"
	openAIDefaultTimeout = 120 * time.Second
)

// OpenAIProvider implements the Provider interface for any
// OpenAI-compatible API (OpenAI, vLLM, TGI, Ollama, Groq, OVH, etc.).
type OpenAIProvider struct {
	id      string
	baseURL string
	apiKey  string
	keys    Keys
	models  []ModelInfo
	client  *http.Client
}

// OpenAIOption configures an OpenAIProvider.
type OpenAIOption func(*OpenAIProvider)

// WithOpenAIHTTPClient sets a custom HTTP client.
func WithOpenAIHTTPClient(c *http.Client) OpenAIOption {
	return func(p *OpenAIProvider) { p.client = c }
}

// WithOpenAITimeout sets the per-request timeout of the default client.
func WithOpenAITimeout(d time.Duration) OpenAIOption {
	return func(p *OpenAIProvider) {
		if d > 0 {
			p.client = &http.Client{Timeout: d}
		}
	}
}

// WithOpenAIKeys rotates the API key per request. It replaces the static
// key.
func WithOpenAIKeys(k Keys) OpenAIOption {
	return func(p *OpenAIProvider) { p.keys = k }
}

// NewOpenAIProvider creates a provider for any OpenAI-compatible endpoint.
func NewOpenAIProvider(id, baseURL, apiKey string, models []ModelInfo, opts ...OpenAIOption) *OpenAIProvider {
	if baseURL == "" {
		baseURL = openAIDefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	p := &OpenAIProvider{
		id:      id,
		baseURL: baseURL,
		apiKey:  apiKey,
		models:  models,
		client:  &http.Client{Timeout: openAIDefaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *OpenAIProvider) ID() string { return p.id }

func (p *OpenAIProvider) Models() []ModelInfo { return p.models }

// -- OpenAI wire types --

type oaiRequest struct {
	Model       string       `json:"model"`
	Messages    []oaiMessage `json:"messages,omitempty"`
	Prompt      string       `json:"prompt,omitempty"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Temperature *float64     `json:"temperature,omitempty"`
	TopP        *float64     `json:"top_p,omitempty"`
	TopK        int          `json:"top_k,omitempty"`
	Stream      bool         `json:"stream,omitempty"`
}

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiResponse struct {
	ID      string      `json:"id"`
	Model   string      `json:"model"`
	Choices []oaiChoice `json:"choices"`
	Usage   oaiUsage    `json:"usage"`
	Error   *oaiError   `json:"error,omitempty"`
}

type oaiChoice struct {
	Index        int        `json:"index"`
	Message      oaiMessage `json:"message"`
	Delta        oaiMessage `json:"delta"`
	Text         string     `json:"text"`
	FinishReason string     `json:"finish_reason,omitempty"`
}

type oaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type oaiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// Complete sends a non-streaming chat completion request.
func (p *OpenAIProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	oaiReq := p.toOAIRequest(req)
	oaiReq.Stream = false

	oaiResp, err := p.do(ctx, openAIChatPath, oaiReq)
	if err != nil {
		return nil, err
	}
	content := ""
	if len(oaiResp.Choices) > 0 {
		content = oaiResp.Choices[0].Message.Content
	}
	return p.toResponse(oaiResp, content), nil
}

// CompleteText sends a raw prompt to the legacy completions endpoint.
func (p *OpenAIProvider) CompleteText(ctx context.Context, req *TextRequest) (*CompletionResponse, error) {
	oaiReq := oaiRequest{Model: req.Model, Prompt: req.Prompt}
	applyGeneration(&oaiReq, req.Generation)

	oaiResp, err := p.do(ctx, openAITextPath, oaiReq)
	if err != nil {
		return nil, err
	}
	content := ""
	if len(oaiResp.Choices) > 0 {
		content = oaiResp.Choices[0].Text
	}
	return p.toResponse(oaiResp, content), nil
}

func (p *OpenAIProvider) do(ctx context.Context, path string, oaiReq oaiRequest) (*oaiResponse, error) {
	httpResp, err := p.post(ctx, path, oaiReq)
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

	var oaiResp oaiResponse
	if err := json.Unmarshal(respBody, &oaiResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if oaiResp.Error != nil {
		return nil, fmt.Errorf("openai error [%s]: %s", oaiResp.Error.Type, oaiResp.Error.Message)
	}
	return &oaiResp, nil
}

func (p *OpenAIProvider) post(ctx context.Context, path string, oaiReq oaiRequest) (*http.Response, error) {
	body, err := json.Marshal(oaiReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
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
	if oaiReq.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	if p.keys != nil {
		p.keys.Report(key, httpResp.StatusCode)
	}
	return httpResp, nil
}

// Stream opens a server-sent-events chat completion.
func (p *OpenAIProvider) Stream(ctx context.Context, req *CompletionRequest) (ResponseStream, error) {
	oaiReq := p.toOAIRequest(req)
	oaiReq.Stream = true

	httpResp, err := p.post(ctx, openAIChatPath, oaiReq)
	if err != nil {
		return nil, err
	}
	if httpResp.StatusCode != http.StatusOK {
		defer func() { _ = httpResp.Body.Close() }()
		body, _ := io.ReadAll(httpResp.Body)
		return nil, &APIError{Provider: p.id, StatusCode: httpResp.StatusCode, Body: string(body)}
	}
	return newSSEStream(httpResp.Body, decodeOAIChunk), nil
}

func decodeOAIChunk(data []byte) (StreamChunk, bool, error) {
	var chunk oaiResponse
	if err := json.Unmarshal(data, &chunk); err != nil {
		return StreamChunk{}, false, fmt.Errorf("decode stream chunk: %w", err)
	}
	if chunk.Error != nil {
		return StreamChunk{}, false, fmt.Errorf("openai error [%s]: %s", chunk.Error.Type, chunk.Error.Message)
	}
	if len(chunk.Choices) == 0 {
		return StreamChunk{}, true, nil
	}
	c := chunk.Choices[0]
	content := c.Delta.Content
	if content == "" {
		content = c.Text
	}
	return StreamChunk{Content: content}, content == "", nil
}

func (p *OpenAIProvider) toOAIRequest(req *CompletionRequest) oaiRequest {
	msgs := make([]oaiMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = oaiMessage{Role: string(m.Role), Content: m.Content}
	}
	oaiReq := oaiRequest{
		Model:    req.Model,
		Messages: msgs,
	}
	applyGeneration(&oaiReq, req.Generation)
	return oaiReq
}

func applyGeneration(oaiReq *oaiRequest, g GenerationParameters) {
	temperature, topP := g.Temperature, g.TopP
	oaiReq.MaxTokens = g.MaxTokens
	oaiReq.Temperature = &temperature
	if topP > 0 {
		oaiReq.TopP = &topP
	}
	oaiReq.TopK = g.TopK
}

func (p *OpenAIProvider) toResponse(oaiResp *oaiResponse, content string) *CompletionResponse {
	return &CompletionResponse{
		ID:      oaiResp.ID,
		Model:   oaiResp.Model,
		Content: content,
		Usage: Usage{
			InputTokens:  oaiResp.Usage.PromptTokens,
			OutputTokens: oaiResp.Usage.CompletionTokens,
		},
	}
}

func (p *OpenAIProvider) setHeaders(req *http.Request, key string) {
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
}
