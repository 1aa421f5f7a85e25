package db

import "time"

// Database defines the interface for all database operations.
// This allows for easier testing through mocking and decouples the services
// from the specific database implementation.
type Database interface {
	// Users
	GetUserByUsername(username string) (*User, error)
	GetUserByID(id string) (*User, error)
	CreateUser(username, email, password string) (*User, error)
	UpdateLastLogin(userID string) error

	// Personas
	CreatePersona(userID, name, description, systemPrompt string, isDefault bool) (*Persona, error)
	GetPersona(id string) (*Persona, error)
	GetPersonasByUser(userID string) ([]Persona, error)
	UpdatePersona(id, name, description, systemPrompt string) (*Persona, error)
	DeletePersona(id string) error
	SetDefaultPersona(userID, personaID string) error
	IncrementPersonaUsage(id string) error

	// Conversations
	CreateConversation(userID, title, intent, customInstructions string, personaID *string) (*Conversation, error)
	GetConversation(id string) (*Conversation, error)
	GetConversationsByUser(userID string, includeArchived bool) ([]Conversation, error)
	UpdateConversation(id string, update ConversationUpdate) (*Conversation, error)
	DeleteConversation(id string) error

	// Messages
	AddMessage(conversationID, role, content string, tokenCount int, model string, cost float64) (*Message, error)
	GetMessages(conversationID string) ([]Message, error)
	GetMessagesAfter(conversationID, afterMessageID string) ([]Message, error)
	GetUnsummarizedMessages(conversationID string) ([]Message, error)
	MarkMessagesSummarized(conversationID string, messageIDs []string) error
	UnsummarizedTokenCount(conversationID string) (int, error)

	// Summaries
	CreateSummary(conversationID, content, startMessageID, endMessageID string, tokenCount int, cost float64) (*Summary, error)
	GetActiveSummary(conversationID string) (*Summary, error)
	GetAllSummaries(conversationID string) ([]Summary, error)

	// Summarization lock (conditional update on conversations.summarizing_at)
	TryBeginSummarization(conversationID string, staleAfter time.Duration) (bool, error)
	EndSummarization(conversationID string) error

	// Usage ledger
	RecordUsage(entry UsageLog) (*UsageLog, error)
	TotalCostForUser(userID string, start, end time.Time) (float64, error)
	TotalCostForConversation(conversationID string) (float64, error)
	DailyBreakdown(userID string, start, end time.Time) ([]DailyCost, error)
	ConversationBreakdown(userID string, start, end time.Time) ([]ConversationCost, error)
	ListUsage(userID string, filter UsageFilter) ([]UsageLog, error)
	DeleteUsageOlderThan(cutoff time.Time) (int64, error)
}
