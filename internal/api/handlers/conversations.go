package handlers

import (
	"encoding/json"
	"net/http"

	"kenchat/internal/app"
	"kenchat/internal/logger"
	"kenchat/internal/repository/db"
	conversationService "kenchat/internal/service/conversation"
	"kenchat/pkg/validation"
)

type CreateConversationRequest struct {
	Title              string `json:"title"`
	Intent             string `json:"intent,omitempty"`
	CustomInstructions string `json:"custom_instructions,omitempty"`
	PersonaID          string `json:"persona_id,omitempty"`
}

type UpdateConversationRequest struct {
	Title              *string `json:"title,omitempty"`
	Intent             *string `json:"intent,omitempty"`
	CustomInstructions *string `json:"custom_instructions,omitempty"`
	PersonaID          *string `json:"persona_id,omitempty"`
	IsArchived         *bool   `json:"is_archived,omitempty"`
}

type ConversationInfo struct {
	ID                 string   `json:"id"`
	Title              string   `json:"title"`
	Intent             string   `json:"intent,omitempty"`
	CustomInstructions string   `json:"custom_instructions,omitempty"`
	PersonaID          *string  `json:"persona_id,omitempty"`
	IsArchived         bool     `json:"is_archived"`
	TotalCost          float64  `json:"total_cost"`
	MessageCount       int      `json:"message_count"`
	CreatedAt          string   `json:"created_at"`
	UpdatedAt          string   `json:"updated_at"`
}

type ConversationsResponse struct {
	Conversations []ConversationInfo `json:"conversations"`
}

type MessageData struct {
	ID           string  `json:"id"`
	Role         string  `json:"role"`
	Content      string  `json:"content"`
	TokenCount   int     `json:"token_count"`
	Model        string  `json:"model,omitempty"`
	Cost         float64 `json:"cost"`
	IsSummarized bool    `json:"is_summarized"`
	CreatedAt    string  `json:"created_at"`
}

type MessagesResponse struct {
	Messages []MessageData `json:"messages"`
}

type AddMessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type DeleteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

// ConversationHandlers serves conversation CRUD endpoints
type ConversationHandlers struct {
	config        *app.Config
	validator     *validation.ChatRequestValidator
	conversations *conversationService.Service
}

// NewConversationHandlers creates a new ConversationHandlers
func NewConversationHandlers(config *app.Config, conversations *conversationService.Service) *ConversationHandlers {
	return &ConversationHandlers{
		config:        config,
		validator:     validation.NewChatRequestValidator(),
		conversations: conversations,
	}
}

// CreateHandler creates a new conversation
func (h *ConversationHandlers) CreateHandler(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r, h.config.DB)
	if err != nil {
		sendError(w, http.StatusNotFound, "User not found", err)
		return
	}

	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validator.ValidateTitle(req.Title); err != nil {
		sendError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}
	if err := h.validator.ValidateIntent(req.Intent); err != nil {
		sendError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}
	if err := h.validator.ValidateCustomInstructions(req.CustomInstructions); err != nil {
		sendError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	conversation, err := h.conversations.Create(conversationService.CreateRequest{
		UserID:             user.ID,
		Title:              req.Title,
		Intent:             req.Intent,
		CustomInstructions: req.CustomInstructions,
		PersonaID:          req.PersonaID,
	})
	if err != nil {
		sendServiceError(w, "Error creating conversation", err)
		return
	}

	sendJSON(w, http.StatusCreated, toConversationInfo(conversation))
}

// ListHandler returns the user's conversations
func (h *ConversationHandlers) ListHandler(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r, h.config.DB)
	if err != nil {
		sendError(w, http.StatusNotFound, "User not found", err)
		return
	}

	includeArchived := r.URL.Query().Get("include_archived") == "true"
	conversations, err := h.conversations.List(user.ID, includeArchived)
	if err != nil {
		sendServiceError(w, "Error retrieving conversations", err)
		return
	}

	infos := make([]ConversationInfo, 0, len(conversations))
	for i := range conversations {
		infos = append(infos, toConversationInfo(&conversations[i]))
	}
	sendJSON(w, http.StatusOK, ConversationsResponse{Conversations: infos})
}

// GetHandler returns one conversation
func (h *ConversationHandlers) GetHandler(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r, h.config.DB)
	if err != nil {
		sendError(w, http.StatusNotFound, "User not found", err)
		return
	}

	conversation, err := h.conversations.Get(r.PathValue("id"), user.ID)
	if err != nil {
		sendServiceError(w, "Error retrieving conversation", err)
		return
	}
	sendJSON(w, http.StatusOK, toConversationInfo(conversation))
}

// UpdateHandler applies partial updates to a conversation
func (h *ConversationHandlers) UpdateHandler(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r, h.config.DB)
	if err != nil {
		sendError(w, http.StatusNotFound, "User not found", err)
		return
	}

	var req UpdateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Title != nil {
		if err := h.validator.ValidateTitle(*req.Title); err != nil {
			sendError(w, http.StatusBadRequest, "Validation failed", err)
			return
		}
	}
	if req.Intent != nil {
		if err := h.validator.ValidateIntent(*req.Intent); err != nil {
			sendError(w, http.StatusBadRequest, "Validation failed", err)
			return
		}
	}
	if req.CustomInstructions != nil {
		if err := h.validator.ValidateCustomInstructions(*req.CustomInstructions); err != nil {
			sendError(w, http.StatusBadRequest, "Validation failed", err)
			return
		}
	}

	conversation, err := h.conversations.Update(r.PathValue("id"), user.ID, db.ConversationUpdate{
		Title:              req.Title,
		Intent:             req.Intent,
		CustomInstructions: req.CustomInstructions,
		PersonaID:          req.PersonaID,
		IsArchived:         req.IsArchived,
	})
	if err != nil {
		sendServiceError(w, "Error updating conversation", err)
		return
	}
	sendJSON(w, http.StatusOK, toConversationInfo(conversation))
}

// DeleteHandler removes a conversation and its messages
func (h *ConversationHandlers) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r, h.config.DB)
	if err != nil {
		sendError(w, http.StatusNotFound, "User not found", err)
		return
	}

	convID := r.PathValue("id")
	if err := h.conversations.Delete(convID, user.ID); err != nil {
		sendServiceError(w, "Error deleting conversation", err)
		return
	}

	logger.Log.WithField("conversation_id", convID).Info("Conversation deleted via API")
	sendJSON(w, http.StatusOK, DeleteResponse{Success: true, Message: "Conversation deleted"})
}

// GetMessagesHandler returns all messages from a conversation
func (h *ConversationHandlers) GetMessagesHandler(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r, h.config.DB)
	if err != nil {
		sendError(w, http.StatusNotFound, "User not found", err)
		return
	}

	messages, err := h.conversations.GetMessages(r.PathValue("id"), user.ID)
	if err != nil {
		sendServiceError(w, "Error retrieving messages", err)
		return
	}

	data := make([]MessageData, 0, len(messages))
	for _, msg := range messages {
		data = append(data, MessageData{
			ID:           msg.ID,
			Role:         msg.Role,
			Content:      msg.Content,
			TokenCount:   msg.TokenCount,
			Model:        msg.Model,
			Cost:         msg.Cost,
			IsSummarized: msg.IsSummarized,
			CreatedAt:    msg.CreatedAt.Format(timeLayout),
		})
	}
	sendJSON(w, http.StatusOK, MessagesResponse{Messages: data})
}

// AddMessageHandler appends a message to a conversation without invoking
// the model
func (h *ConversationHandlers) AddMessageHandler(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r, h.config.DB)
	if err != nil {
		sendError(w, http.StatusNotFound, "User not found", err)
		return
	}

	var req AddMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Role == "" {
		req.Role = db.RoleUser
	}
	if err := h.validator.ValidateMessage(req.Content); err != nil {
		sendError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	message, err := h.conversations.AddMessage(r.PathValue("id"), user.ID, req.Role, req.Content)
	if err != nil {
		sendServiceError(w, "Error adding message", err)
		return
	}

	sendJSON(w, http.StatusCreated, MessageData{
		ID:         message.ID,
		Role:       message.Role,
		Content:    message.Content,
		TokenCount: message.TokenCount,
		Cost:       message.Cost,
		CreatedAt:  message.CreatedAt.Format(timeLayout),
	})
}

func toConversationInfo(c *db.Conversation) ConversationInfo {
	return ConversationInfo{
		ID:                 c.ID,
		Title:              c.Title,
		Intent:             c.Intent,
		CustomInstructions: c.CustomInstructions,
		PersonaID:          c.PersonaID,
		IsArchived:         c.IsArchived,
		TotalCost:          c.TotalCost,
		MessageCount:       c.MessageCount,
		CreatedAt:          c.CreatedAt.Format(timeLayout),
		UpdatedAt:          c.UpdatedAt.Format(timeLayout),
	}
}
