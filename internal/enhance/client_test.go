package enhance

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

func TestClaudeClient_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "key" {
			t.Errorf("missing api key header")
		}
		var req anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.System != "sys" || len(req.Messages) != 1 || req.Messages[0].Content != "hello" {
			t.Errorf("unexpected request %+v", req)
		}
		w.Write([]byte(`{"content":[{"type":"text","text":"[{\"id\":1,\"text\":\"ok\"}]"}]}`))
	}))
	defer srv.Close()

	c := NewClaudeClient("key", "claude-test").WithURL(srv.URL)
	defer c.Close()

	got, err := c.Complete(context.Background(), "sys", "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != `[{"id":1,"text":"ok"}]` {
		t.Errorf("unexpected reply %q", got)
	}
	if c.ModelName() != "claude-test" {
		t.Errorf("unexpected model %q", c.ModelName())
	}
}

func TestClaudeClient_StatusHandling(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusTooManyRequests)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
		w.Write([]byte(`{"error":{"type":"x","message":"y"}}`))
	}))
	defer srv.Close()
	c := NewClaudeClient("key", "m").WithURL(srv.URL)

	if _, err := c.Complete(context.Background(), "", "p"); !IsRetryable(err) {
		t.Errorf("429 should be retryable, got %v", err)
	}
	status.Store(http.StatusBadRequest)
	_, err := c.Complete(context.Background(), "", "p")
	if err == nil || IsRetryable(err) {
		t.Errorf("400 should be a permanent error, got %v", err)
	}
}

type fakeChat struct {
	resp openai.ChatCompletionResponse
	err  error
	req  openai.ChatCompletionRequest
}

func (f *fakeChat) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.req = req
	return f.resp, f.err
}

func TestOpenAICompleter(t *testing.T) {
	fc := &fakeChat{resp: openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "  [ ]  "}}},
	}}
	c := &OpenAICompleter{Client: fc, Model: "gpt-test"}

	got, err := c.Complete(context.Background(), "sys", "user")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "[ ]" {
		t.Errorf("unexpected reply %q", got)
	}
	if fc.req.Model != "gpt-test" || len(fc.req.Messages) != 2 || fc.req.Messages[0].Role != openai.ChatMessageRoleSystem {
		t.Errorf("unexpected request %+v", fc.req)
	}

	fc.resp = openai.ChatCompletionResponse{}
	if _, err := c.Complete(context.Background(), "s", "u"); err == nil {
		t.Error("expected error for empty choices")
	}
}

func TestOpenAICompleter_ErrorClassification(t *testing.T) {
	tests := []struct {
		err       error
		retryable bool
	}{
		{&openai.APIError{HTTPStatusCode: 503, Message: "busy"}, true},
		{&openai.APIError{HTTPStatusCode: 429, Message: "rate"}, true},
		{&openai.APIError{HTTPStatusCode: 401, Message: "auth"}, false},
		{&openai.RequestError{HTTPStatusCode: 502, Err: errors.New("bad gateway")}, true},
		{errors.New("dial tcp: refused"), false},
	}
	for _, tt := range tests {
		c := &OpenAICompleter{Client: &fakeChat{err: tt.err}, Model: "m"}
		_, err := c.Complete(context.Background(), "s", "u")
		if IsRetryable(err) != tt.retryable {
			t.Errorf("%v: retryable=%v, want %v", tt.err, IsRetryable(err), tt.retryable)
		}
	}
}
