package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", Validation("bad field"), http.StatusBadRequest},
		{"authentication", Authentication("invalid credentials"), http.StatusUnauthorized},
		{"token", Token("expired", nil), http.StatusUnauthorized},
		{"authorization", Authorization("not your conversation"), http.StatusForbidden},
		{"not found", NotFound("conversation %s", "abc"), http.StatusNotFound},
		{"conflict", Conflict("username taken"), http.StatusConflict},
		{"invalid model", AIInvalidModel("gpt-9"), http.StatusBadRequest},
		{"quota", AIQuotaExceeded("out of credits"), http.StatusPaymentRequired},
		{"rate limit", AIRateLimit("slow down"), http.StatusTooManyRequests},
		{"service", AIService("upstream failed", nil), http.StatusBadGateway},
		{"network", AINetwork("connection reset", nil), http.StatusBadGateway},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusCode(tt.err); got != tt.want {
				t.Errorf("StatusCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestStatusCodeWrapped(t *testing.T) {
	err := fmt.Errorf("handling request: %w", NotFound("conversation missing"))
	if got := StatusCode(err); got != http.StatusNotFound {
		t.Errorf("StatusCode(wrapped) = %d, want %d", got, http.StatusNotFound)
	}
}

func TestIsKind(t *testing.T) {
	err := fmt.Errorf("outer: %w", AIInvalidModel("nope"))
	if !IsKind(err, KindAIInvalidModel) {
		t.Error("expected wrapped error to match KindAIInvalidModel")
	}
	if IsKind(err, KindNotFound) {
		t.Error("did not expect KindNotFound")
	}
	if IsKind(errors.New("plain"), KindValidation) {
		t.Error("plain error should not match any kind")
	}
}
