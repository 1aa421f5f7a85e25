// Package chat handles the business logic for chat operations: conversation
// context assembly, persona application, cost checks, and the model round trip.
package chat

import (
	"context"
	"fmt"

	"kenchat/internal/apperrors"
	"kenchat/internal/logger"
	"kenchat/internal/metrics"
	"kenchat/internal/repository/db"
	"kenchat/internal/service/ai"
	"kenchat/internal/service/summary"
	"kenchat/internal/service/usage"

	"github.com/sirupsen/logrus"
)

// SendMessageRequest contains all the parameters needed to send a message
type SendMessageRequest struct {
	Message            string
	ConversationID     string
	Model              string
	Temperature        *float64
	PersonaID          string
	Intent             string
	CustomInstructions string
	UserID             string // Extracted from auth context
}

// SendMessageResponse contains the outcome of a completed chat turn.
// Handlers map the rows to their wire shapes.
type SendMessageResponse struct {
	ConversationID   string
	UserMessage      *db.Message
	AssistantMessage *db.Message
	Model            string
	Usage            ai.Usage
	Cost             float64
	CostStatus       *usage.CostLimitReport
}

// Service handles the business logic for chat operations
type Service struct {
	db         db.Database
	provider   ai.Provider
	usage      *usage.Service
	summarizer *summary.Service
}

// NewService creates a new chat Service
func NewService(database db.Database, provider ai.Provider, usageService *usage.Service, summarizer *summary.Service) *Service {
	return &Service{
		db:         database,
		provider:   provider,
		usage:      usageService,
		summarizer: summarizer,
	}
}

// ConversationContext is the assembled model context for a conversation:
// the active summary, if any, plus every message after the summarized range.
type ConversationContext struct {
	Summary     *db.Summary
	Messages    []db.Message
	TotalTokens int
}

// GetConversationContext assembles the context for the next model call.
// Assembly reads committed state only, so repeated calls between writes
// return the same context.
func (s *Service) GetConversationContext(conversationID string) (*ConversationContext, error) {
	activeSummary, err := s.db.GetActiveSummary(conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load active summary: %w", err)
	}

	var messages []db.Message
	if activeSummary != nil {
		messages, err = s.db.GetMessagesAfter(conversationID, activeSummary.EndMessageID)
		if err != nil {
			return nil, fmt.Errorf("failed to load messages after summary: %w", err)
		}
	} else {
		messages, err = s.db.GetMessages(conversationID)
		if err != nil {
			return nil, fmt.Errorf("failed to load conversation messages: %w", err)
		}
	}

	total := 0
	if activeSummary != nil {
		total += activeSummary.TokenCount
	}
	for _, msg := range messages {
		total += msg.TokenCount
	}

	return &ConversationContext{Summary: activeSummary, Messages: messages, TotalTokens: total}, nil
}

// SendMessage processes a chat message and returns the model response
func (s *Service) SendMessage(ctx context.Context, req SendMessageRequest) (*SendMessageResponse, error) {
	metrics.Global().ChatRequests.Inc()

	turn, err := s.prepareTurn(ctx, req)
	if err != nil {
		metrics.Global().ChatFailures.Inc()
		return nil, err
	}

	response, err := s.provider.GenerateResponse(ctx, turn.input, req.Model, ai.Options{Temperature: req.Temperature})
	if err != nil {
		metrics.Global().ChatFailures.Inc()
		return nil, err
	}

	assistantMessage, err := s.finishTurn(req.UserID, turn.conversation.ID, response)
	if err != nil {
		metrics.Global().ChatFailures.Inc()
		return nil, err
	}

	return &SendMessageResponse{
		ConversationID:   turn.conversation.ID,
		UserMessage:      turn.userMessage,
		AssistantMessage: assistantMessage,
		Model:            response.Model,
		Usage:            response.Usage,
		Cost:             response.Cost,
		CostStatus:       turn.costStatus,
	}, nil
}

// Stream event types
const (
	EventStatus           = "status"
	EventUserMessage      = "user_message"
	EventContentChunk     = "content_chunk"
	EventAssistantMessage = "assistant_message"
	EventComplete         = "complete"
	EventError            = "error"
)

// StreamEvent is one event of a streamed chat turn. Handlers map the rows
// to their wire shapes.
type StreamEvent struct {
	Type           string
	Status         string
	ConversationID string
	Message        *db.Message
	Content        string
	Accumulated    string
	Model          string
	Usage          *ai.Usage
	Cost           float64
	CostStatus     *usage.CostLimitReport
	Error          string
}

// SendMessageStream processes a chat message and streams the model response.
// Setup errors (validation, ownership, persistence of the user message) are
// returned directly; errors after streaming begins arrive as an error event.
func (s *Service) SendMessageStream(ctx context.Context, req SendMessageRequest) (<-chan StreamEvent, error) {
	metrics.Global().ChatRequests.Inc()

	turn, err := s.prepareTurn(ctx, req)
	if err != nil {
		metrics.Global().ChatFailures.Inc()
		return nil, err
	}

	chunks, err := s.provider.GenerateResponseStream(ctx, turn.input, req.Model, ai.Options{Temperature: req.Temperature})
	if err != nil {
		metrics.Global().ChatFailures.Inc()
		return nil, err
	}

	events := make(chan StreamEvent)
	go func() {
		defer close(events)

		events <- StreamEvent{Type: EventStatus, Status: "generating", ConversationID: turn.conversation.ID}
		events <- StreamEvent{Type: EventUserMessage, ConversationID: turn.conversation.ID, Message: turn.userMessage, CostStatus: turn.costStatus}

		var accumulated string
		for chunk := range chunks {
			if chunk.Err != nil {
				metrics.Global().ChatFailures.Inc()
				events <- StreamEvent{Type: EventError, Error: chunk.Err.Error()}
				return
			}
			if chunk.Content != "" {
				accumulated += chunk.Content
				events <- StreamEvent{Type: EventContentChunk, Content: chunk.Content, Accumulated: accumulated}
			}
			if chunk.Final != nil {
				// The client already holds the full content; a failed
				// write is logged in finishTurn and the stream completes.
				assistantMessage, _ := s.finishTurn(req.UserID, turn.conversation.ID, chunk.Final)
				events <- StreamEvent{Type: EventAssistantMessage, ConversationID: turn.conversation.ID, Message: assistantMessage}
				events <- StreamEvent{
					Type:           EventComplete,
					ConversationID: turn.conversation.ID,
					Model:          chunk.Final.Model,
					Usage:          &chunk.Final.Usage,
					Cost:           chunk.Final.Cost,
				}
			}
		}
	}()

	return events, nil
}

// preparedTurn carries the state shared by the blocking and streaming paths
type preparedTurn struct {
	conversation *db.Conversation
	userMessage  *db.Message
	input        []ai.Message
	costStatus   *usage.CostLimitReport
}

// prepareTurn runs everything up to the model call: conversation resolution,
// ownership and model validation, persona application, the advisory cost
// check, persisting the user message, opportunistic summarization, and
// context assembly.
func (s *Service) prepareTurn(ctx context.Context, req SendMessageRequest) (*preparedTurn, error) {
	if err := s.provider.ValidateModel(req.Model); err != nil {
		return nil, err
	}

	conversation, created, err := s.getOrCreateConversation(req)
	if err != nil {
		return nil, err
	}
	if !created && conversation.UserID != req.UserID {
		return nil, apperrors.Authorization("user does not own this conversation")
	}

	persona, err := s.resolvePersona(req.UserID, conversation)
	if err != nil {
		return nil, err
	}

	costStatus := s.usage.CheckCostLimits(req.UserID)

	userMessage, err := s.db.AddMessage(conversation.ID, db.RoleUser, req.Message, ai.EstimateTokens(req.Message), "", 0)
	if err != nil {
		return nil, fmt.Errorf("failed to save user message: %w", err)
	}
	s.usage.Record(db.UsageLog{
		UserID:         req.UserID,
		ConversationID: &conversation.ID,
		Action:         db.ActionMessageSent,
		TotalTokens:    userMessage.TokenCount,
	})

	s.maybeSummarize(ctx, conversation.ID, req.UserID)

	convContext, err := s.GetConversationContext(conversation.ID)
	if err != nil {
		return nil, err
	}
	input := s.buildModelInput(conversation, persona, convContext)

	logger.Log.WithFields(logrus.Fields{
		"conversation_id": conversation.ID,
		"message_count":   len(convContext.Messages),
		"has_summary":     convContext.Summary != nil,
	}).Debug("Prepared model call")

	return &preparedTurn{
		conversation: conversation,
		userMessage:  userMessage,
		input:        input,
		costStatus:   costStatus,
	}, nil
}

// finishTurn persists the assistant message and records its usage. Ledger
// failures are logged inside Record and never fail the turn; a failed
// message write is returned to the caller. Usage is recorded either way,
// the generation was billed upstream.
func (s *Service) finishTurn(userID, conversationID string, response *ai.Response) (*db.Message, error) {
	assistantMessage, err := s.db.AddMessage(
		conversationID,
		db.RoleAssistant,
		response.Content,
		response.Usage.CompletionTokens,
		response.Model,
		response.Cost,
	)
	if err != nil {
		logger.Log.WithError(err).WithField("conversation_id", conversationID).Error("Failed to save assistant message")
		err = fmt.Errorf("failed to save assistant message: %w", err)
	}

	s.usage.Record(db.UsageLog{
		UserID:           userID,
		ConversationID:   &conversationID,
		Action:           db.ActionMessageReceived,
		Model:            response.Model,
		PromptTokens:     response.Usage.PromptTokens,
		CompletionTokens: response.Usage.CompletionTokens,
		TotalTokens:      response.Usage.TotalTokens,
		Cost:             response.Cost,
		FinishReason:     response.FinishReason,
	})

	return assistantMessage, err
}

// getOrCreateConversation returns the requested conversation, or creates a
// new one titled after the first message
func (s *Service) getOrCreateConversation(req SendMessageRequest) (*db.Conversation, bool, error) {
	if req.ConversationID != "" {
		conversation, err := s.db.GetConversation(req.ConversationID)
		if err != nil {
			return nil, false, apperrors.NotFound("conversation not found")
		}
		return conversation, false, nil
	}

	title := req.Message
	if runes := []rune(title); len(runes) > 100 {
		title = string(runes[:100])
	}
	var personaID *string
	if req.PersonaID != "" {
		personaID = &req.PersonaID
	}
	conversation, err := s.db.CreateConversation(req.UserID, title, req.Intent, req.CustomInstructions, personaID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conversation, true, nil
}

// resolvePersona loads the conversation's persona, verifies ownership, bumps
// its usage counter, and records the use in the ledger
func (s *Service) resolvePersona(userID string, conversation *db.Conversation) (*db.Persona, error) {
	if conversation.PersonaID == nil {
		return nil, nil
	}

	persona, err := s.db.GetPersona(*conversation.PersonaID)
	if err != nil {
		return nil, apperrors.NotFound("persona not found")
	}
	if persona.UserID != userID {
		return nil, apperrors.Authorization("user does not own this persona")
	}

	if err := s.db.IncrementPersonaUsage(persona.ID); err != nil {
		logger.Log.WithError(err).WithField("persona_id", persona.ID).Warn("Failed to increment persona usage")
	}
	s.usage.Record(db.UsageLog{
		UserID:         userID,
		ConversationID: &conversation.ID,
		Action:         db.ActionPersonaUsed,
	})

	return persona, nil
}

// maybeSummarize triggers summarization when the conversation has grown past
// the token threshold. Failures are logged and the turn continues with the
// unsummarized context.
func (s *Service) maybeSummarize(ctx context.Context, conversationID, userID string) {
	should, err := s.summarizer.ShouldSummarize(conversationID)
	if err != nil {
		logger.Log.WithError(err).WithField("conversation_id", conversationID).Warn("Summarization check failed")
		return
	}
	if !should {
		return
	}

	if _, err := s.summarizer.SummarizeConversation(ctx, conversationID, userID); err != nil {
		if apperrors.IsKind(err, apperrors.KindConflict) {
			logger.Log.WithField("conversation_id", conversationID).Debug("Summarization already running")
			return
		}
		logger.Log.WithError(err).WithField("conversation_id", conversationID).Warn("Automatic summarization failed, continuing with full context")
	}
}

// buildModelInput flattens the system prompt, summary context, and recent
// messages into the model input
func (s *Service) buildModelInput(conversation *db.Conversation, persona *db.Persona, convContext *ConversationContext) []ai.Message {
	systemPrompt := ""
	if persona != nil {
		systemPrompt = persona.SystemPrompt
	}
	if conversation.CustomInstructions != "" {
		if systemPrompt != "" {
			systemPrompt += "\n\n"
		}
		systemPrompt += conversation.CustomInstructions
	}
	if convContext.Summary != nil {
		if systemPrompt != "" {
			systemPrompt += "\n\n"
		}
		systemPrompt += fmt.Sprintf("Previous conversation summary:\n%s", convContext.Summary.Content)
	}

	input := make([]ai.Message, 0, len(convContext.Messages)+1)
	if systemPrompt != "" {
		input = append(input, ai.Message{Role: db.RoleSystem, Content: systemPrompt})
	}
	for _, msg := range convContext.Messages {
		input = append(input, ai.Message{Role: msg.Role, Content: msg.Content})
	}
	return input
}
