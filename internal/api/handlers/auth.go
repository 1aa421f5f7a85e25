package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"kenchat/internal/app"
	"kenchat/internal/auth"
	"kenchat/internal/logger"
	"kenchat/internal/repository/postgres"
	"kenchat/pkg/validation"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type TokenResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
}

// AuthHandlers serves login, registration, and token refresh
type AuthHandlers struct {
	config    *app.Config
	tokens    *auth.Service
	validator *validation.AuthRequestValidator
}

// NewAuthHandlers creates a new AuthHandlers
func NewAuthHandlers(config *app.Config, tokens *auth.Service) *AuthHandlers {
	return &AuthHandlers{
		config:    config,
		tokens:    tokens,
		validator: validation.NewAuthRequestValidator(),
	}
}

// LoginHandler authenticates a user and returns an access and refresh token pair
func (h *AuthHandlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.validator.ValidateLoginRequest(req.Username, req.Password); err != nil {
		sendError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	user, err := h.config.DB.GetUserByUsername(req.Username)
	if err != nil {
		logger.Log.WithField("username", req.Username).Info("Login failed: user not found")
		sendError(w, http.StatusUnauthorized, "Invalid credentials", nil)
		return
	}
	if !postgres.VerifyPassword(user, req.Password) {
		logger.Log.WithField("username", req.Username).Info("Login failed: invalid password")
		sendError(w, http.StatusUnauthorized, "Invalid credentials", nil)
		return
	}

	if err := h.config.DB.UpdateLastLogin(user.ID); err != nil {
		logger.Log.WithError(err).Warn("Failed to update last login timestamp")
	}

	pair, err := h.issueTokens(user.Username)
	if err != nil {
		sendError(w, http.StatusInternalServerError, "Error generating token", err)
		return
	}

	logger.Log.WithField("username", user.Username).Info("User logged in")
	sendJSON(w, http.StatusOK, pair)
}

// RegisterHandler creates a new user account
func (h *AuthHandlers) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.validator.ValidateRegisterRequest(req.Username, req.Email, req.Password); err != nil {
		sendError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	user, err := h.config.DB.CreateUser(req.Username, req.Email, req.Password)
	if err != nil {
		logger.Log.WithError(err).WithField("username", req.Username).Info("Registration failed")
		if strings.Contains(err.Error(), "already exists") {
			sendError(w, http.StatusConflict, "Username already exists", err)
			return
		}
		sendError(w, http.StatusInternalServerError, "Error creating user", err)
		return
	}

	pair, err := h.issueTokens(user.Username)
	if err != nil {
		sendError(w, http.StatusInternalServerError, "Error generating token", err)
		return
	}

	logger.Log.WithField("username", user.Username).Info("User registered")
	sendJSON(w, http.StatusCreated, pair)
}

// RefreshHandler exchanges a refresh token for a new token pair
func (h *AuthHandlers) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.RefreshToken == "" {
		sendError(w, http.StatusBadRequest, "refresh_token is required", nil)
		return
	}

	claims, err := h.tokens.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		sendError(w, http.StatusUnauthorized, "Invalid refresh token", err)
		return
	}

	// The account may have been deactivated since the token was issued
	user, err := h.config.DB.GetUserByUsername(claims.Username)
	if err != nil || !user.IsActive {
		sendError(w, http.StatusUnauthorized, "Invalid refresh token", nil)
		return
	}

	pair, err := h.issueTokens(user.Username)
	if err != nil {
		sendError(w, http.StatusInternalServerError, "Error generating token", err)
		return
	}
	sendJSON(w, http.StatusOK, pair)
}

func (h *AuthHandlers) issueTokens(username string) (*TokenResponse, error) {
	token, err := h.tokens.GenerateToken(username)
	if err != nil {
		return nil, err
	}
	refresh, err := h.tokens.GenerateRefreshToken(username)
	if err != nil {
		return nil, err
	}
	return &TokenResponse{Token: token, RefreshToken: refresh}, nil
}
