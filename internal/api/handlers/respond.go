package handlers

import (
	"encoding/json"
	"net/http"

	"kenchat/internal/apperrors"
	"kenchat/internal/auth"
	"kenchat/internal/repository/db"
)

// ErrorResponse is the standard JSON error envelope
type ErrorResponse struct {
	Error   string `json:"error,omitempty"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// sendError sends a standardized JSON error response
func sendError(w http.ResponseWriter, status int, message string, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	errResp := ErrorResponse{
		Code:    status,
		Message: message,
	}
	if err != nil {
		errResp.Error = err.Error()
	}
	json.NewEncoder(w).Encode(errResp)
}

// sendServiceError maps a service-layer error to its HTTP status
func sendServiceError(w http.ResponseWriter, message string, err error) {
	sendError(w, apperrors.StatusCode(err), message, err)
}

// sendJSON sends a JSON response with the given status
func sendJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// userFromContext resolves the authenticated username to its user row
func userFromContext(r *http.Request, database db.Database) (*db.User, error) {
	username, ok := auth.UsernameFromContext(r.Context())
	if !ok {
		return nil, apperrors.Authentication("no authenticated user in request context")
	}
	return database.GetUserByUsername(username)
}
