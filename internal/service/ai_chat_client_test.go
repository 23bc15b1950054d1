package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

type fakeHTTPClient struct {
	handler func(*http.Request) (*http.Response, error)
}

func (f fakeHTTPClient) Do(req *http.Request) (*http.Response, error) {
	if f.handler == nil {
		return nil, errors.New("no handler configured")
	}
	return f.handler(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func TestAIChatClientDefaults(t *testing.T) {
	t.Parallel()

	client := NewAIChatClient(AIClientOptions{APIKey: "key"})
	if client.Provider() != AIProviderGemini {
		t.Fatalf("expected gemini by default, got %s", client.Provider())
	}
	if client.model != defaultGeminiModel || client.baseURL != defaultGeminiBaseURL {
		t.Fatalf("unexpected defaults: model=%s base=%s", client.model, client.baseURL)
	}

	httpClient, ok := client.http.(*http.Client)
	if !ok {
		t.Fatalf("expected *http.Client, got %T", client.http)
	}
	if httpClient.Timeout < time.Minute {
		t.Fatalf("default timeout too short: %v", httpClient.Timeout)
	}

	client.SetHTTPClient(nil)
	if _, ok := client.http.(*http.Client); !ok {
		t.Fatalf("expected *http.Client after reset, got %T", client.http)
	}

	ds := NewAIChatClient(AIClientOptions{Provider: "DeepSeek", APIKey: "key"})
	if ds.model != defaultDeepSeekModel || ds.baseURL != defaultDeepSeekBaseURL {
		t.Fatalf("unexpected deepseek defaults: model=%s base=%s", ds.model, ds.baseURL)
	}
}

func TestAIChatClientGemini(t *testing.T) {
	t.Parallel()

	client := NewAIChatClient(AIClientOptions{Provider: AIProviderGemini, APIKey: "g-key", BaseURL: "https://gemini.test/v1beta/"})
	client.SetHTTPClient(fakeHTTPClient{handler: func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/v1beta/models/gemini-2.5-flash:generateContent" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("x-goog-api-key"); got != "g-key" {
			t.Fatalf("unexpected api key header %q", got)
		}

		var payload geminiRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if payload.SystemInstruction == nil || payload.SystemInstruction.Parts[0].Text != "system" {
			t.Fatalf("unexpected system instruction: %#v", payload.SystemInstruction)
		}
		if len(payload.Contents) != 1 || payload.Contents[0].Parts[0].Text != "user prompt" {
			t.Fatalf("unexpected contents: %#v", payload.Contents)
		}

		return jsonResponse(http.StatusOK, `{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "Traffic is "}, {"text": "rising.\n"}]}}],
			"usageMetadata": {"promptTokenCount": 42, "candidatesTokenCount": 7}
		}`), nil
	}})

	resp, err := client.GenerateText(context.Background(), TextRequest{SystemPrompt: "system", UserPrompt: "user prompt", Temperature: 0.4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "Traffic is rising.\n" {
		t.Fatalf("unexpected content %q", resp.Content)
	}
	if resp.PromptTokens != 42 || resp.CompletionTokens != 7 {
		t.Fatalf("unexpected usage: %+v", resp)
	}
}

func TestAIChatClientOpenAICompatible(t *testing.T) {
	t.Parallel()

	client := NewAIChatClient(AIClientOptions{Provider: AIProviderOpenAI, APIKey: "sk-test", BaseURL: "https://openai.test/v1"})
	client.SetHTTPClient(fakeHTTPClient{handler: func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Fatalf("unexpected authorization header %s", got)
		}

		var payload chatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if payload.Model != defaultOpenAIModel {
			t.Fatalf("unexpected model %s", payload.Model)
		}
		if len(payload.Messages) != 2 || payload.Messages[0].Role != "system" || payload.Messages[1].Content != "hello" {
			t.Fatalf("unexpected messages: %#v", payload.Messages)
		}

		return jsonResponse(http.StatusOK, `{
			"choices": [{"message": {"role": "assistant", "content": "  report  "}}],
			"usage": {"prompt_tokens": 100, "completion_tokens": 30}
		}`), nil
	}})

	resp, err := client.GenerateText(context.Background(), TextRequest{SystemPrompt: "system", UserPrompt: "hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "  report  " || resp.PromptTokens != 100 || resp.CompletionTokens != 30 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestAIChatClientErrors(t *testing.T) {
	t.Parallel()

	missing := NewAIChatClient(AIClientOptions{})
	if _, err := missing.GenerateText(context.Background(), TextRequest{UserPrompt: "x"}); !errors.Is(err, ErrAIAPIKeyMissing) {
		t.Fatalf("expected ErrAIAPIKeyMissing, got %v", err)
	}

	apiErr := NewAIChatClient(AIClientOptions{Provider: AIProviderOpenAI, APIKey: "sk"})
	apiErr.SetHTTPClient(fakeHTTPClient{handler: func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusUnauthorized, `{"error": {"message": "invalid key"}}`), nil
	}})
	_, err := apiErr.GenerateText(context.Background(), TextRequest{UserPrompt: "x"})
	if err == nil || !strings.Contains(err.Error(), "invalid key") {
		t.Fatalf("expected upstream error message, got %v", err)
	}

	empty := NewAIChatClient(AIClientOptions{APIKey: "g"})
	empty.SetHTTPClient(fakeHTTPClient{handler: func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"candidates": [{"content": {"parts": [{"text": "   "}]}}]}`), nil
	}})
	if _, err := empty.GenerateText(context.Background(), TextRequest{UserPrompt: "x"}); !errors.Is(err, ErrEmptyCompletion) {
		t.Fatalf("expected ErrEmptyCompletion, got %v", err)
	}

	transport := NewAIChatClient(AIClientOptions{APIKey: "g"})
	transport.SetHTTPClient(fakeHTTPClient{handler: func(*http.Request) (*http.Response, error) {
		return nil, context.DeadlineExceeded
	}})
	if _, err := transport.GenerateText(context.Background(), TextRequest{UserPrompt: "x"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected wrapped deadline error, got %v", err)
	}
}
