package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAIComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("auth = %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content-type = %q", r.Header.Get("Content-Type"))
		}

		var req oaiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Model != "gpt-4o" {
			t.Errorf("model = %q", req.Model)
		}
		if len(req.Messages) != 2 {
			t.Errorf("messages = %d", len(req.Messages))
		}
		if req.Messages[0].Role != "system" {
			t.Errorf("messages[0].role = %q", req.Messages[0].Role)
		}

		resp := oaiResponse{
			ID:    "chatcmpl-123",
			Model: "gpt-4o",
			Choices: []oaiChoice{
				{Index: 0, Message: oaiMessage{Role: "assistant", Content: "Hello! How can I help?"}},
			},
			Usage: oaiUsage{PromptTokens: 10, CompletionTokens: 5},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p := NewOpenAIProvider("openai", server.URL, "test-key", nil)

	resp, err := p.Complete(context.Background(), &CompletionRequest{
		Model: "gpt-4o",
		Messages: []Message{
			{Role: RoleSystem, Content: "You are helpful."},
			{Role: RoleUser, Content: "Hi"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if resp.ID != "chatcmpl-123" {
		t.Errorf("id = %q", resp.ID)
	}
	if resp.Content != "Hello! How can I help?" {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.Usage.InputTokens != 10 {
		t.Errorf("input_tokens = %d", resp.Usage.InputTokens)
	}
	if resp.Usage.OutputTokens != 5 {
		t.Errorf("output_tokens = %d", resp.Usage.OutputTokens)
	}
}

func TestOpenAICompleteAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit_error"}}`))
	}))
	defer server.Close()

	p := NewOpenAIProvider("openai", server.URL, "key", nil)

	_, err := p.Complete(context.Background(), &CompletionRequest{
		Model:    "gpt-4o",
		Messages: []Message{{Role: RoleUser, Content: "Hi"}},
	})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestOpenAICompleteErrorInBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		resp := oaiResponse{
			Error: &oaiError{Type: "invalid_request_error", Message: "bad model"},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p := NewOpenAIProvider("openai", server.URL, "key", nil)

	_, err := p.Complete(context.Background(), &CompletionRequest{
		Model:    "bad-model",
		Messages: []Message{{Role: RoleUser, Content: "Hi"}},
	})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestOpenAINoAPIKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("should not send Authorization header when no API key")
		}
		resp := oaiResponse{
			ID:      "local-1",
			Model:   "llama3",
			Choices: []oaiChoice{{Message: oaiMessage{Content: "ok"}}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p := NewOpenAIProvider("ollama", server.URL, "", nil)

	resp, err := p.Complete(context.Background(), &CompletionRequest{
		Model:    "llama3",
		Messages: []Message{{Role: RoleUser, Content: "Hi"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "ok" {
		t.Errorf("content = %q", resp.Content)
	}
}

func TestOpenAIProviderModels(t *testing.T) {
	models := []ModelInfo{{ID: "mixtral-8x7b", ProviderID: "coreml", MaxTokens: 2048}}
	p := NewOpenAIProvider("coreml", "", "key", models)

	if p.ID() != "coreml" {
		t.Errorf("id = %q", p.ID())
	}
	m, ok := ModelOf(p, "mixtral-8x7b")
	if !ok || m.MaxTokens != 2048 {
		t.Errorf("ModelOf = %+v, %v", m, ok)
	}
	if _, ok := ModelOf(p, "llama3-8b"); ok {
		t.Error("unlisted model should not be found")
	}
}

func TestOpenAIDefaultBaseURL(t *testing.T) {
	p := NewOpenAIProvider("openai", "", "key", nil)
	if p.baseURL != openAIDefaultBaseURL {
		t.Errorf("baseURL = %q, want %q", p.baseURL, openAIDefaultBaseURL)
	}
}

func TestOpenAITrailingSlash(t *testing.T) {
	p := NewOpenAIProvider("openai", "https://api.example.com/v1/", "key", nil)
	if p.baseURL != "https://api.example.com/v1" {
		t.Errorf("baseURL = %q, should strip trailing slash", p.baseURL)
	}
}

func TestOpenAISendsGenerationParameters(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req oaiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.MaxTokens != 4096 || req.TopK != 50 {
			t.Errorf("max_tokens = %d, top_k = %d", req.MaxTokens, req.TopK)
		}
		if req.Temperature == nil || *req.Temperature != 0 {
			t.Errorf("temperature = %v, want explicit 0", req.Temperature)
		}
		if req.TopP == nil || *req.TopP != 1 {
			t.Errorf("top_p = %v", req.TopP)
		}
		_ = json.NewEncoder(w).Encode(oaiResponse{Choices: []oaiChoice{{Message: oaiMessage{Content: "ok"}}}})
	}))
	defer server.Close()

	p := NewOpenAIProvider("vllm", server.URL, "", nil)
	_, err := p.Complete(context.Background(), &CompletionRequest{
		Model:      "llama-31-70b",
		Messages:   []Message{{Role: RoleUser, Content: "Hi"}},
		Generation: DefaultGenerationParameters(),
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestOpenAICompleteText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req oaiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Prompt != "<|begin_of_text|>hi" {
			t.Errorf("prompt = %q", req.Prompt)
		}
		if len(req.Messages) != 0 {
			t.Errorf("messages should be omitted, got %d", len(req.Messages))
		}
		_ = json.NewEncoder(w).Encode(oaiResponse{ID: "cmpl-1", Choices: []oaiChoice{{Text: "generated"}}})
	}))
	defer server.Close()

	p := NewOpenAIProvider("tgi", server.URL, "", nil)
	resp, err := p.CompleteText(context.Background(), &TextRequest{Model: "llama-31-70b", Prompt: "<|begin_of_text|>hi"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "generated" {
		t.Errorf("content = %q", resp.Content)
	}
}

func TestOpenAIStatusErrorIsAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("overloaded"))
	}))
	defer server.Close()

	p := NewOpenAIProvider("vllm", server.URL, "", nil)
	_, err := p.Complete(context.Background(), &CompletionRequest{Messages: []Message{{Role: RoleUser, Content: "Hi"}}})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusServiceUnavailable || apiErr.Body != "overloaded" {
		t.Errorf("api error = %+v", apiErr)
	}
}

func TestOpenAIStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req oaiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if !req.Stream {
			t.Error("stream flag not set")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Hel", "", "lo"} {
			chunk := oaiResponse{Choices: []oaiChoice{{Delta: oaiMessage{Content: part}}}}
			data, _ := json.Marshal(chunk)
			_, _ = w.Write([]byte("data: " + string(data) + "\n\n"))
		}
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer server.Close()

	p := NewOpenAIProvider("vllm", server.URL, "", nil)
	stream, err := p.Stream(context.Background(), &CompletionRequest{Messages: []Message{{Role: RoleUser, Content: "Hi"}}})
	if err != nil {
		t.Fatal(err)
	}
	var chunks []string
	text, err := Collect(stream, func(c StreamChunk) error {
		if !c.Done {
			chunks = append(chunks, c.Content)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if text != "Hello" {
		t.Errorf("text = %q", text)
	}
	if len(chunks) != 2 {
		t.Errorf("chunks = %q, want two non-empty deltas", chunks)
	}
}
