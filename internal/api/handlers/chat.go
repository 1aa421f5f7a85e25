package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"kenchat/internal/app"
	"kenchat/internal/config"
	"kenchat/internal/logger"
	"kenchat/internal/repository/db"
	"kenchat/internal/service/ai"
	chatService "kenchat/internal/service/chat"
	summaryService "kenchat/internal/service/summary"
	usageService "kenchat/internal/service/usage"
	"kenchat/pkg/validation"

	"github.com/sirupsen/logrus"
)

type ChatRequest struct {
	Message            string   `json:"message"`
	ConversationID     string   `json:"conversation_id,omitempty"`
	Model              string   `json:"model,omitempty"`
	Temperature        *float64 `json:"temperature,omitempty"`
	PersonaID          string   `json:"persona_id,omitempty"`
	Intent             string   `json:"intent,omitempty"`
	CustomInstructions string   `json:"custom_instructions,omitempty"`
}

type ModelsResponse struct {
	Models []config.Model `json:"models"`
}

type SummariesResponse struct {
	Summaries []SummaryData `json:"summaries"`
}

type SummaryData struct {
	ID             string  `json:"id"`
	Content        string  `json:"content"`
	StartMessageID string  `json:"start_message_id"`
	EndMessageID   string  `json:"end_message_id"`
	TokenCount     int     `json:"token_count"`
	Cost           float64 `json:"cost"`
	IsActive       bool    `json:"is_active"`
	CreatedAt      string  `json:"created_at"`
}

type ChatResponse struct {
	ConversationID   string                        `json:"conversation_id"`
	UserMessage      *MessageData                  `json:"user_message"`
	AssistantMessage *MessageData                  `json:"assistant_message"`
	Model            string                        `json:"model"`
	Usage            ai.Usage                      `json:"usage"`
	Cost             float64                       `json:"cost"`
	CostStatus       *usageService.CostLimitReport `json:"cost_status,omitempty"`
}

type StreamEventData struct {
	Type           string                        `json:"type"`
	Status         string                        `json:"status,omitempty"`
	ConversationID string                        `json:"conversation_id,omitempty"`
	Message        *MessageData                  `json:"message,omitempty"`
	Content        string                        `json:"content,omitempty"`
	Accumulated    string                        `json:"accumulated,omitempty"`
	Model          string                        `json:"model,omitempty"`
	Usage          *ai.Usage                     `json:"usage,omitempty"`
	Cost           float64                       `json:"cost,omitempty"`
	CostStatus     *usageService.CostLimitReport `json:"cost_status,omitempty"`
	Error          string                        `json:"error,omitempty"`
}

type SummarizeResponse struct {
	Summary        SummaryData `json:"summary"`
	MessagesFolded int         `json:"messages_folded"`
	TokensBefore   int         `json:"tokens_before"`
	TokensAfter    int         `json:"tokens_after"`
}

// ChatHandlers serves the chat endpoints
type ChatHandlers struct {
	config    *app.Config
	validator *validation.ChatRequestValidator
	chat      *chatService.Service
	summaries *summaryService.Service
}

// NewChatHandlers creates a new ChatHandlers
func NewChatHandlers(config *app.Config, chat *chatService.Service, summaries *summaryService.Service) *ChatHandlers {
	return &ChatHandlers{
		config:    config,
		validator: validation.NewChatRequestValidator(),
		chat:      chat,
		summaries: summaries,
	}
}

// ChatHandler is the REST endpoint for chat (non-streaming)
func (ch *ChatHandlers) ChatHandler(w http.ResponseWriter, r *http.Request) {
	req, user, ok := ch.decodeChatRequest(w, r)
	if !ok {
		return
	}

	response, err := ch.chat.SendMessage(r.Context(), chatService.SendMessageRequest{
		Message:            req.Message,
		ConversationID:     req.ConversationID,
		Model:              req.Model,
		Temperature:        req.Temperature,
		PersonaID:          req.PersonaID,
		Intent:             req.Intent,
		CustomInstructions: req.CustomInstructions,
		UserID:             user,
	})
	if err != nil {
		logger.Log.WithError(err).Error("Chat request failed")
		sendServiceError(w, "Error processing message", err)
		return
	}

	sendJSON(w, http.StatusOK, ChatResponse{
		ConversationID:   response.ConversationID,
		UserMessage:      toMessageData(response.UserMessage),
		AssistantMessage: toMessageData(response.AssistantMessage),
		Model:            response.Model,
		Usage:            response.Usage,
		Cost:             response.Cost,
		CostStatus:       response.CostStatus,
	})
}

// ChatStreamHandler is the SSE endpoint for streaming chat responses.
// Events are named after their payload type: status, user_message,
// content_chunk, assistant_message, complete, and error.
func (ch *ChatHandlers) ChatStreamHandler(w http.ResponseWriter, r *http.Request) {
	req, user, ok := ch.decodeChatRequest(w, r)
	if !ok {
		return
	}

	flusher, flushable := w.(http.Flusher)
	if !flushable {
		sendError(w, http.StatusInternalServerError, "Streaming not supported", nil)
		return
	}

	events, err := ch.chat.SendMessageStream(r.Context(), chatService.SendMessageRequest{
		Message:            req.Message,
		ConversationID:     req.ConversationID,
		Model:              req.Model,
		Temperature:        req.Temperature,
		PersonaID:          req.PersonaID,
		Intent:             req.Intent,
		CustomInstructions: req.CustomInstructions,
		UserID:             user,
	})
	if err != nil {
		logger.Log.WithError(err).Error("Chat stream setup failed")
		sendServiceError(w, "Error processing message", err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	for event := range events {
		payload, err := json.Marshal(StreamEventData{
			Type:           event.Type,
			Status:         event.Status,
			ConversationID: event.ConversationID,
			Message:        toMessageData(event.Message),
			Content:        event.Content,
			Accumulated:    event.Accumulated,
			Model:          event.Model,
			Usage:          event.Usage,
			Cost:           event.Cost,
			CostStatus:     event.CostStatus,
			Error:          event.Error,
		})
		if err != nil {
			logger.Log.WithError(err).Error("Failed to encode stream event")
			continue
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, payload)
		flusher.Flush()
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// SummarizeHandler explicitly summarizes a conversation
func (ch *ChatHandlers) SummarizeHandler(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r, ch.config.DB)
	if err != nil {
		sendError(w, http.StatusNotFound, "User not found", err)
		return
	}
	convID := r.PathValue("id")

	logger.Log.WithFields(logrus.Fields{
		"username":        user.Username,
		"conversation_id": convID,
	}).Info("Summarize request")

	result, err := ch.summaries.SummarizeConversation(r.Context(), convID, user.ID)
	if err != nil {
		logger.Log.WithError(err).Error("Summarization failed")
		sendServiceError(w, "Error generating summary", err)
		return
	}

	sendJSON(w, http.StatusOK, SummarizeResponse{
		Summary:        toSummaryData(result.Summary),
		MessagesFolded: result.MessagesFolded,
		TokensBefore:   result.TokensBefore,
		TokensAfter:    result.TokensAfter,
	})
}

// GetSummariesHandler returns every summary of a conversation
func (ch *ChatHandlers) GetSummariesHandler(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r, ch.config.DB)
	if err != nil {
		sendError(w, http.StatusNotFound, "User not found", err)
		return
	}

	summaries, err := ch.summaries.GetAllSummaries(r.PathValue("id"), user.ID)
	if err != nil {
		sendServiceError(w, "Error retrieving summaries", err)
		return
	}

	data := make([]SummaryData, 0, len(summaries))
	for i := range summaries {
		data = append(data, toSummaryData(&summaries[i]))
	}
	sendJSON(w, http.StatusOK, SummariesResponse{Summaries: data})
}

func toMessageData(msg *db.Message) *MessageData {
	if msg == nil {
		return nil
	}
	return &MessageData{
		ID:           msg.ID,
		Role:         msg.Role,
		Content:      msg.Content,
		TokenCount:   msg.TokenCount,
		Model:        msg.Model,
		Cost:         msg.Cost,
		IsSummarized: msg.IsSummarized,
		CreatedAt:    msg.CreatedAt.Format(timeLayout),
	}
}

func toSummaryData(s *db.Summary) SummaryData {
	return SummaryData{
		ID:             s.ID,
		Content:        s.Content,
		StartMessageID: s.StartMessageID,
		EndMessageID:   s.EndMessageID,
		TokenCount:     s.TokenCount,
		Cost:           s.Cost,
		IsActive:       s.IsActive,
		CreatedAt:      s.CreatedAt.Format(timeLayout),
	}
}

// GetModelsHandler lists the configured models and their pricing
func (ch *ChatHandlers) GetModelsHandler(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, ModelsResponse{Models: ch.config.ModelsConfig().GetAvailableModels()})
}

// decodeChatRequest handles the shared decode/validate/user-lookup prologue
// of both chat endpoints
func (ch *ChatHandlers) decodeChatRequest(w http.ResponseWriter, r *http.Request) (ChatRequest, string, bool) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body", err)
		return req, "", false
	}

	if err := ch.validator.ValidateChatRequest(req.Message, req.Temperature, req.Intent, req.CustomInstructions); err != nil {
		sendError(w, http.StatusBadRequest, "Validation failed", err)
		return req, "", false
	}

	user, err := userFromContext(r, ch.config.DB)
	if err != nil {
		sendError(w, http.StatusNotFound, "User not found", err)
		return req, "", false
	}

	logger.Log.WithFields(logrus.Fields{
		"username":      user.Username,
		"message_chars": len(req.Message),
	}).Debug("Chat request received")

	return req, user.ID, true
}
