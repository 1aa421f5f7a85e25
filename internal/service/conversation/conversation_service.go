// Package conversation handles conversation lifecycle: listing, updates,
// archiving, and deletion, with per-user ownership enforcement.
package conversation

import (
	"fmt"

	"kenchat/internal/apperrors"
	"kenchat/internal/logger"
	"kenchat/internal/repository/db"
	"kenchat/internal/service/ai"
)

// Service handles the business logic for conversation management
type Service struct {
	db db.Database
}

// NewService creates a new conversation Service
func NewService(database db.Database) *Service {
	return &Service{db: database}
}

// CreateRequest contains the parameters for creating a conversation
type CreateRequest struct {
	UserID             string
	Title              string
	Intent             string
	CustomInstructions string
	PersonaID          string
}

// Create creates a new conversation for the user
func (s *Service) Create(req CreateRequest) (*db.Conversation, error) {
	var personaID *string
	if req.PersonaID != "" {
		persona, err := s.db.GetPersona(req.PersonaID)
		if err != nil {
			return nil, apperrors.NotFound("persona not found")
		}
		if persona.UserID != req.UserID {
			return nil, apperrors.Authorization("user does not own this persona")
		}
		personaID = &req.PersonaID
	}

	conversation, err := s.db.CreateConversation(req.UserID, req.Title, req.Intent, req.CustomInstructions, personaID)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conversation, nil
}

// Get returns one conversation after verifying ownership
func (s *Service) Get(conversationID, userID string) (*db.Conversation, error) {
	return s.owned(conversationID, userID)
}

// List returns the user's conversations, optionally including archived ones
func (s *Service) List(userID string, includeArchived bool) ([]db.Conversation, error) {
	conversations, err := s.db.GetConversationsByUser(userID, includeArchived)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return conversations, nil
}

// Update applies the given field changes to an owned conversation
func (s *Service) Update(conversationID, userID string, update db.ConversationUpdate) (*db.Conversation, error) {
	if _, err := s.owned(conversationID, userID); err != nil {
		return nil, err
	}
	if update.PersonaID != nil && *update.PersonaID != "" {
		persona, err := s.db.GetPersona(*update.PersonaID)
		if err != nil {
			return nil, apperrors.NotFound("persona not found")
		}
		if persona.UserID != userID {
			return nil, apperrors.Authorization("user does not own this persona")
		}
	}

	conversation, err := s.db.UpdateConversation(conversationID, update)
	if err != nil {
		return nil, fmt.Errorf("failed to update conversation: %w", err)
	}
	return conversation, nil
}

// SetArchived flips the archive flag on an owned conversation
func (s *Service) SetArchived(conversationID, userID string, archived bool) (*db.Conversation, error) {
	if _, err := s.owned(conversationID, userID); err != nil {
		return nil, err
	}
	conversation, err := s.db.UpdateConversation(conversationID, db.ConversationUpdate{IsArchived: &archived})
	if err != nil {
		return nil, fmt.Errorf("failed to update archive flag: %w", err)
	}
	return conversation, nil
}

// Delete removes an owned conversation and, via cascade, its messages
func (s *Service) Delete(conversationID, userID string) error {
	if _, err := s.owned(conversationID, userID); err != nil {
		return err
	}
	if err := s.db.DeleteConversation(conversationID); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	logger.Log.WithField("conversation_id", conversationID).Info("Deleted conversation")
	return nil
}

// AddMessage appends a message to an owned conversation without triggering
// a model call. Used for importing history or injecting system notes.
func (s *Service) AddMessage(conversationID, userID, role, content string) (*db.Message, error) {
	switch role {
	case db.RoleUser, db.RoleAssistant, db.RoleSystem:
	default:
		return nil, apperrors.Validation("invalid message role: %s", role)
	}
	if _, err := s.owned(conversationID, userID); err != nil {
		return nil, err
	}
	message, err := s.db.AddMessage(conversationID, role, content, ai.EstimateTokens(content), "", 0)
	if err != nil {
		return nil, fmt.Errorf("failed to add message: %w", err)
	}
	return message, nil
}

// GetMessages returns the full message history of an owned conversation
func (s *Service) GetMessages(conversationID, userID string) ([]db.Message, error) {
	if _, err := s.owned(conversationID, userID); err != nil {
		return nil, err
	}
	messages, err := s.db.GetMessages(conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	return messages, nil
}

func (s *Service) owned(conversationID, userID string) (*db.Conversation, error) {
	conversation, err := s.db.GetConversation(conversationID)
	if err != nil {
		return nil, apperrors.NotFound("conversation not found")
	}
	if conversation.UserID != userID {
		return nil, apperrors.Authorization("user does not own this conversation")
	}
	return conversation, nil
}
