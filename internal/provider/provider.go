package provider

import (
	"context"
	"fmt"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

// GenerationParameters are the sampling settings sent with every request.
type GenerationParameters struct {
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
	TopP        float64 `json:"top_p" yaml:"top_p"`
	TopK        int     `json:"top_k" yaml:"top_k"`
}

// DefaultGenerationParameters is the deterministic configuration the
// actions fall back to.
func DefaultGenerationParameters() GenerationParameters {
	return GenerationParameters{
		MaxTokens:   4096,
		Temperature: 0.0,
		TopP:        1.0,
		TopK:        50,
	}
}

type CompletionRequest struct {
	Model      string               `json:"model"`
	Messages   []Message            `json:"messages"`
	Generation GenerationParameters `json:"generation"`
	Stream     bool                 `json:"stream,omitempty"`
}

// TextRequest is a raw prompt completion, used with a chat template that
// already serialized the conversation.
type TextRequest struct {
	Model      string               `json:"model"`
	Prompt     string               `json:"prompt"`
	Generation GenerationParameters `json:"generation"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type CompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

type StreamChunk struct {
	Content string `json:"content"`
	Done    bool   `json:"done"`
}

// ResponseStream yields chunks until one with Done set. Callers must read
// it to the end and then Close it.
type ResponseStream interface {
	Recv() (StreamChunk, error)
	Close() error
}

type Provider interface {
	ID() string
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
	Stream(ctx context.Context, req *CompletionRequest) (ResponseStream, error)
	// Models lists the models configured for the provider. It may be
	// empty; unlisted models are still served.
	Models() []ModelInfo
}

// TextCompleter is implemented by providers that expose a raw prompt
// completion endpoint.
type TextCompleter interface {
	CompleteText(ctx context.Context, req *TextRequest) (*CompletionResponse, error)
}

// Keys hands out the API key of each request and is told the HTTP
// status the key received.
type Keys interface {
	Next() (string, error)
	Report(key string, status int)
}

// APIError is a non-2xx answer from a provider endpoint.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s api error (status %d): %s", e.Provider, e.StatusCode, e.Body)
}
