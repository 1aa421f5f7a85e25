// Package summary compresses old conversation turns into model-generated
// summaries so long conversations keep fitting in the model context window.
package summary

import (
	"context"
	"fmt"

	"kenchat/internal/apperrors"
	"kenchat/internal/config"
	"kenchat/internal/logger"
	"kenchat/internal/metrics"
	"kenchat/internal/repository/db"
	"kenchat/internal/service/ai"
	"kenchat/internal/service/usage"

	"github.com/sirupsen/logrus"
)

// Result describes a completed summarization run. Handlers map the summary
// row to its wire shape.
type Result struct {
	Summary        *db.Summary
	MessagesFolded int
	TokensBefore   int
	TokensAfter    int
}

// Service handles the business logic for conversation summarization
type Service struct {
	db       db.Database
	provider ai.Provider
	usage    *usage.Service
	cfg      config.SummaryConfig
}

// NewService creates a new summary Service
func NewService(database db.Database, provider ai.Provider, usageService *usage.Service, cfg config.SummaryConfig) *Service {
	return &Service{
		db:       database,
		provider: provider,
		usage:    usageService,
		cfg:      cfg,
	}
}

// ShouldSummarize reports whether the conversation's unsummarized tokens
// exceed the configured threshold
func (s *Service) ShouldSummarize(conversationID string) (bool, error) {
	tokens, err := s.db.UnsummarizedTokenCount(conversationID)
	if err != nil {
		return false, fmt.Errorf("failed to count unsummarized tokens: %w", err)
	}
	return tokens > s.cfg.MaxTokensBeforeSummarization, nil
}

// SummarizeConversation folds the conversation's older unsummarized messages
// into a new summary, preserving the most recent messages verbatim. The run
// is guarded by a per-conversation lock so concurrent triggers produce a
// single summary; losing the race returns a conflict error.
func (s *Service) SummarizeConversation(ctx context.Context, conversationID, userID string) (*Result, error) {
	conversation, err := s.db.GetConversation(conversationID)
	if err != nil {
		return nil, apperrors.NotFound("conversation not found")
	}
	if conversation.UserID != userID {
		return nil, apperrors.Authorization("user does not own this conversation")
	}

	acquired, err := s.db.TryBeginSummarization(conversationID, s.cfg.LockTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire summarization lock: %w", err)
	}
	if !acquired {
		return nil, apperrors.Conflict("summarization already in progress")
	}
	defer func() {
		if err := s.db.EndSummarization(conversationID); err != nil {
			logger.Log.WithError(err).WithField("conversation_id", conversationID).Error("Failed to release summarization lock")
		}
	}()

	unsummarized, err := s.db.GetUnsummarizedMessages(conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load unsummarized messages: %w", err)
	}
	if len(unsummarized) <= s.cfg.PreserveRecentMessages {
		return nil, apperrors.Validation("not enough messages to summarize")
	}
	toFold := unsummarized[:len(unsummarized)-s.cfg.PreserveRecentMessages]

	input, tokensBefore := s.buildSummarizationInput(conversationID, toFold)

	logger.Log.WithFields(logrus.Fields{
		"conversation_id": conversationID,
		"message_count":   len(toFold),
		"tokens_before":   tokensBefore,
	}).Info("Generating conversation summary")

	response, err := s.provider.GenerateResponse(ctx, input, s.cfg.Model, ai.Options{
		MaxTokens: s.cfg.MaxSummaryTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("summarization model call failed: %w", err)
	}

	summaryTokens := response.Usage.CompletionTokens
	if summaryTokens == 0 {
		summaryTokens = ai.EstimateTokens(response.Content)
	}

	summary, err := s.db.CreateSummary(
		conversationID,
		response.Content,
		toFold[0].ID,
		toFold[len(toFold)-1].ID,
		summaryTokens,
		response.Cost,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save summary: %w", err)
	}

	messageIDs := make([]string, len(toFold))
	for i, msg := range toFold {
		messageIDs[i] = msg.ID
	}
	if err := s.db.MarkMessagesSummarized(conversationID, messageIDs); err != nil {
		return nil, fmt.Errorf("failed to mark messages summarized: %w", err)
	}

	s.usage.Record(db.UsageLog{
		UserID:           userID,
		ConversationID:   &conversationID,
		Action:           db.ActionSummaryCreated,
		Model:            response.Model,
		PromptTokens:     response.Usage.PromptTokens,
		CompletionTokens: response.Usage.CompletionTokens,
		TotalTokens:      response.Usage.TotalTokens,
		Cost:             response.Cost,
		FinishReason:     response.FinishReason,
	})
	metrics.Global().SummariesTotal.Inc()

	logger.Log.WithFields(logrus.Fields{
		"conversation_id": conversationID,
		"summary_id":      summary.ID,
		"tokens_before":   tokensBefore,
		"tokens_after":    summaryTokens,
	}).Info("Created conversation summary")

	return &Result{
		Summary:        summary,
		MessagesFolded: len(toFold),
		TokensBefore:   tokensBefore,
		TokensAfter:    summaryTokens,
	}, nil
}

// GetAllSummaries returns every summary for a conversation, newest first
func (s *Service) GetAllSummaries(conversationID, userID string) ([]db.Summary, error) {
	conversation, err := s.db.GetConversation(conversationID)
	if err != nil {
		return nil, apperrors.NotFound("conversation not found")
	}
	if conversation.UserID != userID {
		return nil, apperrors.Authorization("user does not own this conversation")
	}

	summaries, err := s.db.GetAllSummaries(conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve summaries: %w", err)
	}
	return summaries, nil
}

// buildSummarizationInput assembles the model input for a summarization run:
// the summarization instructions, the previous summary when one exists, and
// the messages being folded. Returns the input and the token count being
// replaced.
func (s *Service) buildSummarizationInput(conversationID string, toFold []db.Message) ([]ai.Message, int) {
	input := []ai.Message{
		{Role: db.RoleSystem, Content: s.cfg.Prompt},
	}

	tokensBefore := 0
	previous, err := s.db.GetActiveSummary(conversationID)
	if err != nil {
		logger.Log.WithError(err).WithField("conversation_id", conversationID).Warn("Failed to load previous summary, summarizing without it")
		previous = nil
	}
	if previous != nil {
		input = append(input, ai.Message{
			Role:    db.RoleAssistant,
			Content: fmt.Sprintf("Previous summary:\n%s", previous.Content),
		})
		tokensBefore += previous.TokenCount
	}

	for _, msg := range toFold {
		input = append(input, ai.Message{Role: msg.Role, Content: msg.Content})
		tokensBefore += msg.TokenCount
	}

	return input, tokensBefore
}
