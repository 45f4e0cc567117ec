package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danshapiro/promptforge/internal/llm"
	"github.com/danshapiro/promptforge/internal/optimizer/model"
)

func testReq() llm.Request {
	return llm.Request{
		Stage:     "optimize",
		Step:      model.StepGoal,
		Prompt:    "rendered prompt",
		Model:     "gpt-4o-mini",
		MaxTokens: 256,
	}
}

func TestComplete_ParsesChatCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("auth header: %q", r.Header.Get("Authorization"))
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if rf, ok := body["response_format"].(map[string]any); !ok || rf["type"] != "json_object" {
			t.Errorf("response_format: %v", body["response_format"])
		}
		if body["max_completion_tokens"] != float64(256) {
			t.Errorf("max_completion_tokens: %v", body["max_completion_tokens"])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": `{"value": "sharp goal", "rationale": "r", "confidence": 0.6}`}},
			},
			"usage": map[string]any{
				"prompt_tokens":         50,
				"completion_tokens":     10,
				"prompt_tokens_details": map[string]any{"cached_tokens": 16},
			},
		})
	}))
	defer srv.Close()

	resp, err := New("sk-test", srv.URL).Complete(context.Background(), testReq())
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if resp.Value != "sharp goal" || resp.Confidence != 0.6 {
		t.Fatalf("parsed response: %+v", resp)
	}
	if resp.PromptTokens != 50 || resp.CompletionTokens != 10 || resp.CachedTokens != 16 {
		t.Fatalf("usage: %+v", resp)
	}
}

func TestComplete_ServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error": {"message": "upstream sad"}}`))
	}))
	defer srv.Close()

	_, err := New("sk-test", srv.URL).Complete(context.Background(), testReq())
	var ce *llm.ClientError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ClientError, got %v", err)
	}
	if !ce.Retryable() || ce.StatusCode() != http.StatusBadGateway {
		t.Fatalf("classification: retryable=%v status=%d", ce.Retryable(), ce.StatusCode())
	}
}
