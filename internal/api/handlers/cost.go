package handlers

import (
	"net/http"
	"strconv"
	"time"

	"kenchat/internal/app"
	"kenchat/internal/repository/db"
	usageService "kenchat/internal/service/usage"
)

type ConversationCostResponse struct {
	ConversationID string  `json:"conversation_id"`
	TotalCost      float64 `json:"total_cost"`
}

// CostHandlers serves the cost tracking and reporting endpoints
type CostHandlers struct {
	config *app.Config
	usage  *usageService.Service
}

// NewCostHandlers creates a new CostHandlers
func NewCostHandlers(config *app.Config, usage *usageService.Service) *CostHandlers {
	return &CostHandlers{config: config, usage: usage}
}

// StatsHandler returns the user's spend over the current day, week, and month
func (h *CostHandlers) StatsHandler(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r, h.config.DB)
	if err != nil {
		sendError(w, http.StatusNotFound, "User not found", err)
		return
	}

	stats, err := h.usage.GetStats(user.ID)
	if err != nil {
		sendServiceError(w, "Error computing cost stats", err)
		return
	}
	sendJSON(w, http.StatusOK, stats)
}

// ReportHandler returns total, daily, and per-conversation cost breakdowns
// for a window. Defaults to the last 30 days.
func (h *CostHandlers) ReportHandler(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r, h.config.DB)
	if err != nil {
		sendError(w, http.StatusNotFound, "User not found", err)
		return
	}

	end := time.Now()
	start := end.AddDate(0, 0, -30)
	if v := r.URL.Query().Get("start"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			sendError(w, http.StatusBadRequest, "Invalid start date, expected YYYY-MM-DD", err)
			return
		}
		start = parsed
	}
	if v := r.URL.Query().Get("end"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			sendError(w, http.StatusBadRequest, "Invalid end date, expected YYYY-MM-DD", err)
			return
		}
		end = parsed.AddDate(0, 0, 1) // inclusive end day
	}
	if end.Before(start) {
		sendError(w, http.StatusBadRequest, "end date precedes start date", nil)
		return
	}

	report, err := h.usage.GetReport(user.ID, start, end)
	if err != nil {
		sendServiceError(w, "Error building cost report", err)
		return
	}
	sendJSON(w, http.StatusOK, report)
}

// LimitsHandler returns the configured ceilings and the user's standing
// against each of them
func (h *CostHandlers) LimitsHandler(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r, h.config.DB)
	if err != nil {
		sendError(w, http.StatusNotFound, "User not found", err)
		return
	}

	sendJSON(w, http.StatusOK, map[string]any{
		"limits": h.usage.Limits(),
		"status": h.usage.CheckCostLimits(user.ID),
	})
}

// LogsHandler returns raw usage ledger entries with optional filters
func (h *CostHandlers) LogsHandler(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r, h.config.DB)
	if err != nil {
		sendError(w, http.StatusNotFound, "User not found", err)
		return
	}

	q := r.URL.Query()
	filter := db.UsageFilter{
		ConversationID: q.Get("conversation_id"),
		Action:         q.Get("action"),
		Model:          q.Get("model"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			sendError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			sendError(w, http.StatusBadRequest, "Invalid offset", err)
			return
		}
		filter.Offset = n
	}

	logs, err := h.usage.ListLogs(user.ID, filter)
	if err != nil {
		sendServiceError(w, "Error retrieving usage logs", err)
		return
	}
	sendJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

// PricingHandler returns the per-1K-token rates for every available model
func (h *CostHandlers) PricingHandler(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, map[string]any{
		"models": h.config.ModelsConfig().GetAvailableModels(),
	})
}

// ConversationCostHandler returns the accumulated cost of one conversation
func (h *CostHandlers) ConversationCostHandler(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r, h.config.DB)
	if err != nil {
		sendError(w, http.StatusNotFound, "User not found", err)
		return
	}

	convID := r.PathValue("id")
	conversation, err := h.config.DB.GetConversation(convID)
	if err != nil {
		sendError(w, http.StatusNotFound, "Conversation not found", err)
		return
	}
	if conversation.UserID != user.ID {
		sendError(w, http.StatusForbidden, "Unauthorized", nil)
		return
	}

	total, err := h.usage.ConversationCost(convID)
	if err != nil {
		sendServiceError(w, "Error computing conversation cost", err)
		return
	}
	sendJSON(w, http.StatusOK, ConversationCostResponse{ConversationID: convID, TotalCost: total})
}
