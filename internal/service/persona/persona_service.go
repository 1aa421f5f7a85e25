// Package persona manages reusable system-prompt profiles
package persona

import (
	"fmt"
	"strings"

	"kenchat/internal/apperrors"
	"kenchat/internal/repository/db"
)

const maxSystemPromptLength = 4000

// Service handles the business logic for persona management
type Service struct {
	db db.Database
}

// NewService creates a new persona Service
func NewService(database db.Database) *Service {
	return &Service{db: database}
}

// CreateRequest contains the parameters for creating a persona
type CreateRequest struct {
	UserID       string
	Name         string
	Description  string
	SystemPrompt string
	IsDefault    bool
}

// Create creates a new persona for the user
func (s *Service) Create(req CreateRequest) (*db.Persona, error) {
	if err := validate(req.Name, req.SystemPrompt); err != nil {
		return nil, err
	}

	persona, err := s.db.CreatePersona(req.UserID, req.Name, req.Description, req.SystemPrompt, req.IsDefault)
	if err != nil {
		return nil, fmt.Errorf("failed to create persona: %w", err)
	}
	return persona, nil
}

// Get returns one persona after verifying ownership
func (s *Service) Get(personaID, userID string) (*db.Persona, error) {
	return s.owned(personaID, userID)
}

// List returns all of the user's personas
func (s *Service) List(userID string) ([]db.Persona, error) {
	personas, err := s.db.GetPersonasByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list personas: %w", err)
	}
	return personas, nil
}

// Update modifies an owned persona
func (s *Service) Update(personaID, userID, name, description, systemPrompt string) (*db.Persona, error) {
	if _, err := s.owned(personaID, userID); err != nil {
		return nil, err
	}
	if err := validate(name, systemPrompt); err != nil {
		return nil, err
	}

	persona, err := s.db.UpdatePersona(personaID, name, description, systemPrompt)
	if err != nil {
		return nil, fmt.Errorf("failed to update persona: %w", err)
	}
	return persona, nil
}

// Delete removes an owned persona. Conversations referencing it keep
// working with the reference cleared.
func (s *Service) Delete(personaID, userID string) error {
	if _, err := s.owned(personaID, userID); err != nil {
		return err
	}
	if err := s.db.DeletePersona(personaID); err != nil {
		return fmt.Errorf("failed to delete persona: %w", err)
	}
	return nil
}

// SetDefault marks one owned persona as the user's default, clearing any
// previous default
func (s *Service) SetDefault(personaID, userID string) error {
	if _, err := s.owned(personaID, userID); err != nil {
		return err
	}
	if err := s.db.SetDefaultPersona(userID, personaID); err != nil {
		return fmt.Errorf("failed to set default persona: %w", err)
	}
	return nil
}

func (s *Service) owned(personaID, userID string) (*db.Persona, error) {
	persona, err := s.db.GetPersona(personaID)
	if err != nil {
		return nil, apperrors.NotFound("persona not found")
	}
	if persona.UserID != userID {
		return nil, apperrors.Authorization("user does not own this persona")
	}
	return persona, nil
}

func validate(name, systemPrompt string) error {
	if strings.TrimSpace(name) == "" {
		return apperrors.Validation("persona name is required")
	}
	if strings.TrimSpace(systemPrompt) == "" {
		return apperrors.Validation("system prompt is required")
	}
	if len(systemPrompt) > maxSystemPromptLength {
		return apperrors.Validation("system prompt exceeds %d characters", maxSystemPromptLength)
	}
	return nil
}
