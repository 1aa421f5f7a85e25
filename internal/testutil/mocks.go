package testutil

import (
	"errors"
	"time"

	"kenchat/internal/config"
	"kenchat/internal/repository/db"
)

// MockDatabase is a mock implementation of db.Database for testing
type MockDatabase struct {
	// User mocks
	GetUserByUsernameFunc func(username string) (*db.User, error)
	GetUserByIDFunc       func(id string) (*db.User, error)
	CreateUserFunc        func(username, email, password string) (*db.User, error)
	UpdateLastLoginFunc   func(userID string) error

	// Persona mocks
	CreatePersonaFunc         func(userID, name, description, systemPrompt string, isDefault bool) (*db.Persona, error)
	GetPersonaFunc            func(id string) (*db.Persona, error)
	GetPersonasByUserFunc     func(userID string) ([]db.Persona, error)
	UpdatePersonaFunc         func(id, name, description, systemPrompt string) (*db.Persona, error)
	DeletePersonaFunc         func(id string) error
	SetDefaultPersonaFunc     func(userID, personaID string) error
	IncrementPersonaUsageFunc func(id string) error

	// Conversation mocks
	CreateConversationFunc     func(userID, title, intent, customInstructions string, personaID *string) (*db.Conversation, error)
	GetConversationFunc        func(id string) (*db.Conversation, error)
	GetConversationsByUserFunc func(userID string, includeArchived bool) ([]db.Conversation, error)
	UpdateConversationFunc     func(id string, update db.ConversationUpdate) (*db.Conversation, error)
	DeleteConversationFunc     func(id string) error

	// Message mocks
	AddMessageFunc              func(conversationID, role, content string, tokenCount int, model string, cost float64) (*db.Message, error)
	GetMessagesFunc             func(conversationID string) ([]db.Message, error)
	GetMessagesAfterFunc        func(conversationID, afterMessageID string) ([]db.Message, error)
	GetUnsummarizedMessagesFunc func(conversationID string) ([]db.Message, error)
	MarkMessagesSummarizedFunc  func(conversationID string, messageIDs []string) error
	UnsummarizedTokenCountFunc  func(conversationID string) (int, error)

	// Summary mocks
	CreateSummaryFunc         func(conversationID, content, startMessageID, endMessageID string, tokenCount int, cost float64) (*db.Summary, error)
	GetActiveSummaryFunc      func(conversationID string) (*db.Summary, error)
	GetAllSummariesFunc       func(conversationID string) ([]db.Summary, error)
	TryBeginSummarizationFunc func(conversationID string, staleAfter time.Duration) (bool, error)
	EndSummarizationFunc      func(conversationID string) error

	// Usage mocks
	RecordUsageFunc              func(entry db.UsageLog) (*db.UsageLog, error)
	TotalCostForUserFunc         func(userID string, start, end time.Time) (float64, error)
	TotalCostForConversationFunc func(conversationID string) (float64, error)
	DailyBreakdownFunc           func(userID string, start, end time.Time) ([]db.DailyCost, error)
	ConversationBreakdownFunc    func(userID string, start, end time.Time) ([]db.ConversationCost, error)
	ListUsageFunc                func(userID string, filter db.UsageFilter) ([]db.UsageLog, error)
	DeleteUsageOlderThanFunc     func(cutoff time.Time) (int64, error)
}

var _ db.Database = (*MockDatabase)(nil)

var errNotImplemented = errors.New("not implemented")

// User methods

func (m *MockDatabase) GetUserByUsername(username string) (*db.User, error) {
	if m.GetUserByUsernameFunc != nil {
		return m.GetUserByUsernameFunc(username)
	}
	return nil, errNotImplemented
}

func (m *MockDatabase) GetUserByID(id string) (*db.User, error) {
	if m.GetUserByIDFunc != nil {
		return m.GetUserByIDFunc(id)
	}
	return nil, errNotImplemented
}

func (m *MockDatabase) CreateUser(username, email, password string) (*db.User, error) {
	if m.CreateUserFunc != nil {
		return m.CreateUserFunc(username, email, password)
	}
	return nil, errNotImplemented
}

func (m *MockDatabase) UpdateLastLogin(userID string) error {
	if m.UpdateLastLoginFunc != nil {
		return m.UpdateLastLoginFunc(userID)
	}
	return nil
}

// Persona methods

func (m *MockDatabase) CreatePersona(userID, name, description, systemPrompt string, isDefault bool) (*db.Persona, error) {
	if m.CreatePersonaFunc != nil {
		return m.CreatePersonaFunc(userID, name, description, systemPrompt, isDefault)
	}
	return nil, errNotImplemented
}

func (m *MockDatabase) GetPersona(id string) (*db.Persona, error) {
	if m.GetPersonaFunc != nil {
		return m.GetPersonaFunc(id)
	}
	return nil, errNotImplemented
}

func (m *MockDatabase) GetPersonasByUser(userID string) ([]db.Persona, error) {
	if m.GetPersonasByUserFunc != nil {
		return m.GetPersonasByUserFunc(userID)
	}
	return nil, errNotImplemented
}

func (m *MockDatabase) UpdatePersona(id, name, description, systemPrompt string) (*db.Persona, error) {
	if m.UpdatePersonaFunc != nil {
		return m.UpdatePersonaFunc(id, name, description, systemPrompt)
	}
	return nil, errNotImplemented
}

func (m *MockDatabase) DeletePersona(id string) error {
	if m.DeletePersonaFunc != nil {
		return m.DeletePersonaFunc(id)
	}
	return errNotImplemented
}

func (m *MockDatabase) SetDefaultPersona(userID, personaID string) error {
	if m.SetDefaultPersonaFunc != nil {
		return m.SetDefaultPersonaFunc(userID, personaID)
	}
	return errNotImplemented
}

func (m *MockDatabase) IncrementPersonaUsage(id string) error {
	if m.IncrementPersonaUsageFunc != nil {
		return m.IncrementPersonaUsageFunc(id)
	}
	return nil
}

// Conversation methods

func (m *MockDatabase) CreateConversation(userID, title, intent, customInstructions string, personaID *string) (*db.Conversation, error) {
	if m.CreateConversationFunc != nil {
		return m.CreateConversationFunc(userID, title, intent, customInstructions, personaID)
	}
	return nil, errNotImplemented
}

func (m *MockDatabase) GetConversation(id string) (*db.Conversation, error) {
	if m.GetConversationFunc != nil {
		return m.GetConversationFunc(id)
	}
	return nil, errNotImplemented
}

func (m *MockDatabase) GetConversationsByUser(userID string, includeArchived bool) ([]db.Conversation, error) {
	if m.GetConversationsByUserFunc != nil {
		return m.GetConversationsByUserFunc(userID, includeArchived)
	}
	return nil, errNotImplemented
}

func (m *MockDatabase) UpdateConversation(id string, update db.ConversationUpdate) (*db.Conversation, error) {
	if m.UpdateConversationFunc != nil {
		return m.UpdateConversationFunc(id, update)
	}
	return nil, errNotImplemented
}

func (m *MockDatabase) DeleteConversation(id string) error {
	if m.DeleteConversationFunc != nil {
		return m.DeleteConversationFunc(id)
	}
	return errNotImplemented
}

// Message methods

func (m *MockDatabase) AddMessage(conversationID, role, content string, tokenCount int, model string, cost float64) (*db.Message, error) {
	if m.AddMessageFunc != nil {
		return m.AddMessageFunc(conversationID, role, content, tokenCount, model, cost)
	}
	return nil, errNotImplemented
}

func (m *MockDatabase) GetMessages(conversationID string) ([]db.Message, error) {
	if m.GetMessagesFunc != nil {
		return m.GetMessagesFunc(conversationID)
	}
	return nil, errNotImplemented
}

func (m *MockDatabase) GetMessagesAfter(conversationID, afterMessageID string) ([]db.Message, error) {
	if m.GetMessagesAfterFunc != nil {
		return m.GetMessagesAfterFunc(conversationID, afterMessageID)
	}
	return nil, errNotImplemented
}

func (m *MockDatabase) GetUnsummarizedMessages(conversationID string) ([]db.Message, error) {
	if m.GetUnsummarizedMessagesFunc != nil {
		return m.GetUnsummarizedMessagesFunc(conversationID)
	}
	return nil, errNotImplemented
}

func (m *MockDatabase) MarkMessagesSummarized(conversationID string, messageIDs []string) error {
	if m.MarkMessagesSummarizedFunc != nil {
		return m.MarkMessagesSummarizedFunc(conversationID, messageIDs)
	}
	return errNotImplemented
}

func (m *MockDatabase) UnsummarizedTokenCount(conversationID string) (int, error) {
	if m.UnsummarizedTokenCountFunc != nil {
		return m.UnsummarizedTokenCountFunc(conversationID)
	}
	return 0, errNotImplemented
}

// Summary methods

func (m *MockDatabase) CreateSummary(conversationID, content, startMessageID, endMessageID string, tokenCount int, cost float64) (*db.Summary, error) {
	if m.CreateSummaryFunc != nil {
		return m.CreateSummaryFunc(conversationID, content, startMessageID, endMessageID, tokenCount, cost)
	}
	return nil, errNotImplemented
}

func (m *MockDatabase) GetActiveSummary(conversationID string) (*db.Summary, error) {
	if m.GetActiveSummaryFunc != nil {
		return m.GetActiveSummaryFunc(conversationID)
	}
	return nil, nil
}

func (m *MockDatabase) GetAllSummaries(conversationID string) ([]db.Summary, error) {
	if m.GetAllSummariesFunc != nil {
		return m.GetAllSummariesFunc(conversationID)
	}
	return nil, errNotImplemented
}

func (m *MockDatabase) TryBeginSummarization(conversationID string, staleAfter time.Duration) (bool, error) {
	if m.TryBeginSummarizationFunc != nil {
		return m.TryBeginSummarizationFunc(conversationID, staleAfter)
	}
	return true, nil
}

func (m *MockDatabase) EndSummarization(conversationID string) error {
	if m.EndSummarizationFunc != nil {
		return m.EndSummarizationFunc(conversationID)
	}
	return nil
}

// Usage methods

func (m *MockDatabase) RecordUsage(entry db.UsageLog) (*db.UsageLog, error) {
	if m.RecordUsageFunc != nil {
		return m.RecordUsageFunc(entry)
	}
	return &entry, nil
}

func (m *MockDatabase) TotalCostForUser(userID string, start, end time.Time) (float64, error) {
	if m.TotalCostForUserFunc != nil {
		return m.TotalCostForUserFunc(userID, start, end)
	}
	return 0, nil
}

func (m *MockDatabase) TotalCostForConversation(conversationID string) (float64, error) {
	if m.TotalCostForConversationFunc != nil {
		return m.TotalCostForConversationFunc(conversationID)
	}
	return 0, nil
}

func (m *MockDatabase) DailyBreakdown(userID string, start, end time.Time) ([]db.DailyCost, error) {
	if m.DailyBreakdownFunc != nil {
		return m.DailyBreakdownFunc(userID, start, end)
	}
	return nil, nil
}

func (m *MockDatabase) ConversationBreakdown(userID string, start, end time.Time) ([]db.ConversationCost, error) {
	if m.ConversationBreakdownFunc != nil {
		return m.ConversationBreakdownFunc(userID, start, end)
	}
	return nil, nil
}

func (m *MockDatabase) ListUsage(userID string, filter db.UsageFilter) ([]db.UsageLog, error) {
	if m.ListUsageFunc != nil {
		return m.ListUsageFunc(userID, filter)
	}
	return nil, nil
}

func (m *MockDatabase) DeleteUsageOlderThan(cutoff time.Time) (int64, error) {
	if m.DeleteUsageOlderThanFunc != nil {
		return m.DeleteUsageOlderThanFunc(cutoff)
	}
	return 0, nil
}

// NewTestModels returns a small models config for service tests
func NewTestModels() *config.ModelsConfig {
	return config.NewModelsConfigFromModels([]config.Model{
		{ID: "gpt-4o", Name: "GPT-4o", Provider: "openai", InputPricePer1K: 0.0025, OutputPricePer1K: 0.01, MaxContextTokens: 128000},
		{ID: "gpt-4o-mini", Name: "GPT-4o mini", Provider: "openai", InputPricePer1K: 0.00015, OutputPricePer1K: 0.0006, MaxContextTokens: 128000},
	})
}
