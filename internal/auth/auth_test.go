package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"kenchat/internal/config"
)

func testService() *Service {
	return NewService(config.AuthConfig{
		JWTSecret:         []byte("test-secret-key-at-least-32-chars!"),
		TokenExpiration:   time.Hour,
		RefreshExpiration: 24 * time.Hour,
	})
}

func TestTokenRoundTrip(t *testing.T) {
	svc := testService()

	token, err := svc.GenerateToken("alice")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Username != "alice" {
		t.Errorf("username = %q, want alice", claims.Username)
	}
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	svc := testService()

	refresh, err := svc.GenerateRefreshToken("alice")
	if err != nil {
		t.Fatalf("GenerateRefreshToken: %v", err)
	}

	claims, err := svc.ValidateRefreshToken(refresh)
	if err != nil {
		t.Fatalf("ValidateRefreshToken: %v", err)
	}
	if claims.Username != "alice" {
		t.Errorf("username = %q, want alice", claims.Username)
	}
}

func TestRefreshTokenRejectedAsAccessToken(t *testing.T) {
	svc := testService()

	refresh, err := svc.GenerateRefreshToken("alice")
	if err != nil {
		t.Fatalf("GenerateRefreshToken: %v", err)
	}
	if _, err := svc.ValidateToken(refresh); err == nil {
		t.Error("refresh token accepted as access token")
	}

	access, err := svc.GenerateToken("alice")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := svc.ValidateRefreshToken(access); err == nil {
		t.Error("access token accepted as refresh token")
	}
}

func TestValidateToken_WrongSecret(t *testing.T) {
	token, err := testService().GenerateToken("alice")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	other := NewService(config.AuthConfig{
		JWTSecret:       []byte("a-completely-different-32-char-key"),
		TokenExpiration: time.Hour,
	})
	if _, err := other.ValidateToken(token); err == nil {
		t.Error("token signed with a different secret was accepted")
	}
}

func TestValidateToken_Expired(t *testing.T) {
	svc := NewService(config.AuthConfig{
		JWTSecret:       []byte("test-secret-key-at-least-32-chars!"),
		TokenExpiration: -time.Minute,
	})

	token, err := svc.GenerateToken("alice")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := svc.ValidateToken(token); err == nil {
		t.Error("expired token was accepted")
	}
}

func TestMiddleware(t *testing.T) {
	svc := testService()
	token, err := svc.GenerateToken("alice")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	var gotUsername string
	handler := svc.Middleware(func(w http.ResponseWriter, r *http.Request) {
		gotUsername, _ = UsernameFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"valid token", "Bearer " + token, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"malformed header", "Token " + token, http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && gotUsername != "alice" {
				t.Errorf("context username = %q, want alice", gotUsername)
			}
		})
	}
}
