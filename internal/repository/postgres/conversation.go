package postgres

import (
	"database/sql"
	"fmt"
	"kenchat/internal/logger"
	"kenchat/internal/repository/db"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const conversationColumns = `id, user_id, persona_id, title, intent, custom_instructions,
	is_archived, total_cost, message_count, summarizing_at, created_at, updated_at`

func scanConversation(row interface{ Scan(...any) error }) (*db.Conversation, error) {
	var conv db.Conversation
	err := row.Scan(
		&conv.ID, &conv.UserID, &conv.PersonaID, &conv.Title, &conv.Intent,
		&conv.CustomInstructions, &conv.IsArchived, &conv.TotalCost,
		&conv.MessageCount, &conv.SummarizingAt, &conv.CreatedAt, &conv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// CreateConversation creates a new conversation for a user
func (p *PostgresDB) CreateConversation(userID, title, intent, customInstructions string, personaID *string) (*db.Conversation, error) {
	conv := &db.Conversation{
		ID:                 uuid.New().String(),
		UserID:             userID,
		PersonaID:          personaID,
		Title:              title,
		Intent:             intent,
		CustomInstructions: customInstructions,
	}

	query := `
	INSERT INTO conversations (id, user_id, persona_id, title, intent, custom_instructions)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING created_at, updated_at
	`

	err := p.conn.QueryRow(query, conv.ID, userID, personaID, title, intent, customInstructions).
		Scan(&conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("error creating conversation: %w", err)
	}

	logger.Log.WithFields(logrus.Fields{"conversation_id": conv.ID, "user_id": userID}).Info("Created new conversation")
	return conv, nil
}

// GetConversation retrieves a specific conversation
func (p *PostgresDB) GetConversation(id string) (*db.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`

	conv, err := scanConversation(p.conn.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("conversation not found")
		}
		return nil, fmt.Errorf("error retrieving conversation: %w", err)
	}
	return conv, nil
}

// GetConversationsByUser retrieves a user's conversations, most recently
// updated first. Archived conversations are excluded unless requested.
func (p *PostgresDB) GetConversationsByUser(userID string, includeArchived bool) ([]db.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE user_id = $1`
	if !includeArchived {
		query += ` AND is_archived = FALSE`
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := p.conn.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("error querying conversations: %w", err)
	}
	defer rows.Close()

	var conversations []db.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning conversation: %w", err)
		}
		conversations = append(conversations, *conv)
	}

	return conversations, rows.Err()
}

// UpdateConversation applies the non-nil fields of the update
func (p *PostgresDB) UpdateConversation(id string, update db.ConversationUpdate) (*db.Conversation, error) {
	sets := []string{"updated_at = CURRENT_TIMESTAMP"}
	args := []any{id}

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.Title != nil {
		add("title", *update.Title)
	}
	if update.Intent != nil {
		add("intent", *update.Intent)
	}
	if update.CustomInstructions != nil {
		add("custom_instructions", *update.CustomInstructions)
	}
	if update.PersonaID != nil {
		if *update.PersonaID == "" {
			sets = append(sets, "persona_id = NULL")
		} else {
			add("persona_id", *update.PersonaID)
		}
	}
	if update.IsArchived != nil {
		add("is_archived", *update.IsArchived)
	}

	query := fmt.Sprintf(`UPDATE conversations SET %s WHERE id = $1`, strings.Join(sets, ", "))
	res, err := p.conn.Exec(query, args...)
	if err != nil {
		return nil, fmt.Errorf("error updating conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("conversation not found")
	}

	return p.GetConversation(id)
}

// DeleteConversation deletes a conversation; messages and summaries cascade
func (p *PostgresDB) DeleteConversation(id string) error {
	res, err := p.conn.Exec(`DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("error deleting conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("conversation not found")
	}

	logger.Log.WithField("conversation_id", id).Info("Deleted conversation")
	return nil
}

// TryBeginSummarization attempts to acquire the per-conversation
// summarization lock. The lock is a conditional update on summarizing_at:
// it succeeds when no summarization is running or the previous run went
// stale (crashed before clearing the flag).
func (p *PostgresDB) TryBeginSummarization(conversationID string, staleAfter time.Duration) (bool, error) {
	query := `
	UPDATE conversations
	SET summarizing_at = CURRENT_TIMESTAMP
	WHERE id = $1 AND (summarizing_at IS NULL OR summarizing_at < $2)
	`

	res, err := p.conn.Exec(query, conversationID, time.Now().Add(-staleAfter))
	if err != nil {
		return false, fmt.Errorf("error acquiring summarization lock: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error checking summarization lock: %w", err)
	}
	return n == 1, nil
}

// EndSummarization releases the summarization lock
func (p *PostgresDB) EndSummarization(conversationID string) error {
	query := `UPDATE conversations SET summarizing_at = NULL WHERE id = $1`
	if _, err := p.conn.Exec(query, conversationID); err != nil {
		return fmt.Errorf("error releasing summarization lock: %w", err)
	}
	return nil
}
