package db

import "time"

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Usage ledger action types
const (
	ActionMessageSent     = "message_sent"
	ActionMessageReceived = "message_received"
	ActionSummaryCreated  = "summary_created"
	ActionPersonaUsed     = "persona_used"
)

// User represents a user in the database
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	IsActive     bool
	LastLoginAt  *time.Time
	CreatedAt    time.Time
}

// Persona is a reusable system-prompt profile owned by one user
type Persona struct {
	ID           string
	UserID       string
	Name         string
	Description  string
	SystemPrompt string
	IsDefault    bool
	UsageCount   int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Conversation represents a conversation in the database.
// TotalCost is a denormalized sum of the conversation's usage ledger
// entries, kept in step with the ledger inside the RecordUsage transaction.
type Conversation struct {
	ID                 string
	UserID             string
	PersonaID          *string
	Title              string
	Intent             string
	CustomInstructions string
	IsArchived         bool
	TotalCost          float64
	MessageCount       int
	SummarizingAt      *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Message represents a message in a conversation. Rows are immutable after
// insert except for the IsSummarized flag, which flips when the message is
// folded into a summary.
type Message struct {
	ID             string
	ConversationID string
	Role           string
	Content        string
	TokenCount     int
	Model          string
	Cost           float64
	IsSummarized   bool
	CreatedAt      time.Time
}

// Summary is a model-generated compression of older conversation turns.
// StartMessageID..EndMessageID is the inclusive range of messages it covers.
// A newer summary supersedes the old one (IsActive flips to false).
type Summary struct {
	ID             string
	ConversationID string
	Content        string
	StartMessageID string
	EndMessageID   string
	TokenCount     int
	Cost           float64
	IsActive       bool
	CreatedAt      time.Time
}

// UsageLog is one append-only ledger entry for a billable or countable event
type UsageLog struct {
	ID               string
	UserID           string
	ConversationID   *string
	Action           string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Cost             float64
	FinishReason     string
	CreatedAt        time.Time
}

// DailyCost is one row of a per-day cost breakdown
type DailyCost struct {
	Day      time.Time
	Tokens   int
	Cost     float64
	Requests int
}

// ConversationCost is one row of a per-conversation cost breakdown
type ConversationCost struct {
	ConversationID string
	Title          string
	Tokens         int
	Cost           float64
	Requests       int
}

// UsageFilter narrows ListUsage results. Zero values mean "no filter".
type UsageFilter struct {
	ConversationID string
	Action         string
	Model          string
	Start          time.Time
	End            time.Time
	Limit          int
	Offset         int
}

// ConversationUpdate carries the mutable conversation fields for UpdateConversation.
// Nil pointers leave the column unchanged.
type ConversationUpdate struct {
	Title              *string
	Intent             *string
	CustomInstructions *string
	PersonaID          *string
	IsArchived         *bool
}
