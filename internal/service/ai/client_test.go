package ai

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"kenchat/internal/apperrors"
	"kenchat/internal/config"
)

func testModels() *config.ModelsConfig {
	return config.NewModelsConfigFromModels([]config.Model{
		{ID: "gpt-4o", Name: "GPT-4o", Provider: "openai", InputPricePer1K: 0.0025, OutputPricePer1K: 0.01},
		{ID: "gpt-4o-mini", Name: "GPT-4o mini", Provider: "openai", InputPricePer1K: 0.00015, OutputPricePer1K: 0.0006},
	})
}

func testClient(baseURL string) *Client {
	return NewClient(config.OpenAIConfig{
		APIKey:         "test-key",
		BaseURL:        baseURL,
		RequestTimeout: 5 * time.Second,
		MaxRetries:     3,
		BackoffBase:    time.Millisecond,
		BackoffCap:     10 * time.Millisecond,
	}, testModels())
}

func completionBody(content string, promptTokens, completionTokens int) string {
	return fmt.Sprintf(`{
		"id": "chatcmpl-123",
		"created": 1700000000,
		"model": "gpt-4o",
		"choices": [{"message": {"role": "assistant", "content": %q}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": %d, "completion_tokens": %d, "total_tokens": %d}
	}`, content, promptTokens, completionTokens, promptTokens+completionTokens)
}

func TestGenerateResponse_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		fmt.Fprint(w, completionBody("Hello there", 1000, 500))
	}))
	defer server.Close()

	client := testClient(server.URL)
	resp, err := client.GenerateResponse(context.Background(), []Message{{Role: "user", Content: "Hi"}}, "gpt-4o", Options{})
	if err != nil {
		t.Fatalf("GenerateResponse() error = %v", err)
	}

	if resp.Content != "Hello there" {
		t.Errorf("Content = %q, want %q", resp.Content, "Hello there")
	}
	if resp.FinishReason != "stop" {
		t.Errorf("FinishReason = %q, want stop", resp.FinishReason)
	}
	if resp.ID != "chatcmpl-123" {
		t.Errorf("ID = %q, want chatcmpl-123", resp.ID)
	}
	// 1000/1000*0.0025 + 500/1000*0.01 = 0.0075
	if resp.Cost != 0.0075 {
		t.Errorf("Cost = %v, want 0.0075", resp.Cost)
	}
}

func TestGenerateResponse_InvalidModelNoNetworkCall(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, completionBody("unreachable", 1, 1))
	}))
	defer server.Close()

	client := testClient(server.URL)
	_, err := client.GenerateResponse(context.Background(), []Message{{Role: "user", Content: "Hi"}}, "gpt-9", Options{})
	if err == nil {
		t.Fatal("expected error for unsupported model")
	}
	if !apperrors.IsKind(err, apperrors.KindAIInvalidModel) {
		t.Errorf("expected AIInvalidModel error, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 0 {
		t.Errorf("expected no network call, server saw %d requests", n)
	}
}

func TestGenerateResponse_RetriesOn429ThenSucceeds(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, completionBody("third time lucky", 10, 10))
	}))
	defer server.Close()

	client := testClient(server.URL)
	start := time.Now()
	resp, err := client.GenerateResponse(context.Background(), []Message{{Role: "user", Content: "Hi"}}, "gpt-4o", Options{})
	if err != nil {
		t.Fatalf("GenerateResponse() error = %v", err)
	}
	if resp.Content != "third time lucky" {
		t.Errorf("Content = %q", resp.Content)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("expected 3 attempts, got %d", n)
	}
	// Two backoff delays must have elapsed (1ms base, so at least ~3ms)
	if elapsed := time.Since(start); elapsed < 3*time.Millisecond {
		t.Errorf("expected backoff delays, request finished in %v", elapsed)
	}
}

func TestGenerateResponse_ExhaustsRetries(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := testClient(server.URL)
	_, err := client.GenerateResponse(context.Background(), []Message{{Role: "user", Content: "Hi"}}, "gpt-4o", Options{})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if !apperrors.IsKind(err, apperrors.KindAIService) {
		t.Errorf("expected AIService error, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("expected 3 attempts, got %d", n)
	}
}

func TestGenerateResponse_NonRetryableStatuses(t *testing.T) {
	tests := []struct {
		status int
		kind   apperrors.Kind
	}{
		{http.StatusBadRequest, apperrors.KindAIInvalidModel},
		{http.StatusUnauthorized, apperrors.KindAIService},
		{http.StatusPaymentRequired, apperrors.KindAIQuotaExceeded},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			var calls int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			client := testClient(server.URL)
			_, err := client.GenerateResponse(context.Background(), []Message{{Role: "user", Content: "Hi"}}, "gpt-4o", Options{})
			if err == nil {
				t.Fatal("expected error")
			}
			if !apperrors.IsKind(err, tt.kind) {
				t.Errorf("expected kind %v, got %v", tt.kind, err)
			}
			if n := atomic.LoadInt32(&calls); n != 1 {
				t.Errorf("expected exactly 1 attempt for non-retryable status, got %d", n)
			}
		})
	}
}

func TestGenerateResponseStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"id":"chatcmpl-s1","created":1700000000,"choices":[{"delta":{"role":"assistant","content":"Hel"}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"id":"chatcmpl-s1","choices":[{"delta":{"content":"lo"},"finish_reason":"stop"}]}`+"\n\n")
		fmt.Fprint(w, `data: {"id":"chatcmpl-s1","choices":[],"usage":{"prompt_tokens":8,"completion_tokens":2,"total_tokens":10}}`+"\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := testClient(server.URL)
	chunks, err := client.GenerateResponseStream(context.Background(), []Message{{Role: "user", Content: "Hi"}}, "gpt-4o", Options{})
	if err != nil {
		t.Fatalf("GenerateResponseStream() error = %v", err)
	}

	var content string
	var final *Response
	for chunk := range chunks {
		if chunk.Err != nil {
			t.Fatalf("stream error: %v", chunk.Err)
		}
		if chunk.Final != nil {
			final = chunk.Final
			continue
		}
		content += chunk.Content
	}

	if content != "Hello" {
		t.Errorf("streamed content = %q, want Hello", content)
	}
	if final == nil {
		t.Fatal("expected final chunk")
	}
	if final.Content != "Hello" {
		t.Errorf("final content = %q, want Hello", final.Content)
	}
	if final.Usage.TotalTokens != 10 {
		t.Errorf("final usage = %+v, want total 10", final.Usage)
	}
	if final.FinishReason != "stop" {
		t.Errorf("finish reason = %q, want stop", final.FinishReason)
	}
	if final.Cost == 0 {
		t.Error("expected non-zero cost on final chunk")
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"abcd", 1},
		{"hello world!", 3},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.text); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}
