// Package auth issues and validates the JWT access and refresh tokens that
// guard the API
package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"kenchat/internal/apperrors"
	"kenchat/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

// UserContextKey holds the authenticated username in the request context
const UserContextKey contextKey = "user"

const refreshTokenType = "refresh"

// Claims are the JWT claims carried by both token types
type Claims struct {
	Username  string `json:"username"`
	TokenType string `json:"token_type,omitempty"`
	jwt.RegisteredClaims
}

// Service issues and validates tokens
type Service struct {
	cfg config.AuthConfig
}

// NewService creates a new auth Service
func NewService(cfg config.AuthConfig) *Service {
	return &Service{cfg: cfg}
}

// GenerateToken issues a short-lived access token
func (s *Service) GenerateToken(username string) (string, error) {
	return s.sign(username, "", s.cfg.TokenExpiration)
}

// GenerateRefreshToken issues a long-lived refresh token. Refresh tokens
// carry a distinct type claim so they cannot authenticate API requests.
func (s *Service) GenerateRefreshToken(username string) (string, error) {
	return s.sign(username, refreshTokenType, s.cfg.RefreshExpiration)
}

func (s *Service) sign(username, tokenType string, expiration time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Username:  username,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.cfg.JWTSecret)
}

// ValidateToken parses and verifies an access token
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenType == refreshTokenType {
		return nil, apperrors.Token("refresh token cannot be used for authentication", nil)
	}
	return claims, nil
}

// ValidateRefreshToken parses and verifies a refresh token
func (s *Service) ValidateRefreshToken(tokenString string) (*Claims, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != refreshTokenType {
		return nil, apperrors.Token("not a refresh token", nil)
	}
	return claims, nil
}

func (s *Service) parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.cfg.JWTSecret, nil
	})
	if err != nil {
		return nil, apperrors.Token("invalid token", err)
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, apperrors.Token("invalid token claims", nil)
}

// Middleware enforces a valid Bearer access token and stores the username
// in the request context
func (s *Service) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			unauthorized(w, "Missing authorization header")
			return
		}

		bearerToken := strings.Split(authHeader, " ")
		if len(bearerToken) != 2 || bearerToken[0] != "Bearer" {
			unauthorized(w, "Invalid authorization header format")
			return
		}

		claims, err := s.ValidateToken(bearerToken[1])
		if err != nil {
			unauthorized(w, "Invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, claims.Username)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// UsernameFromContext extracts the authenticated username placed by Middleware
func UsernameFromContext(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(UserContextKey).(string)
	return username, ok
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"code":401,"message":"` + message + `"}`))
}
