package postgres

import (
	"fmt"
	"kenchat/internal/logger"
	"kenchat/internal/repository/db"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

const messageColumns = `id, conversation_id, role, content, token_count, model, cost, is_summarized, created_at`

// AddMessage appends a message to a conversation and bumps the
// conversation's message count and updated_at in the same transaction.
func (p *PostgresDB) AddMessage(conversationID, role, content string, tokenCount int, model string, cost float64) (*db.Message, error) {
	tx, err := p.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	msg := &db.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		TokenCount:     tokenCount,
		Model:          model,
		Cost:           cost,
	}

	query := `
	INSERT INTO messages (id, conversation_id, role, content, token_count, model, cost)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING created_at
	`

	err = tx.QueryRow(query, msg.ID, conversationID, role, content, tokenCount, model, cost).Scan(&msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("error adding message: %w", err)
	}

	updateQuery := `
	UPDATE conversations
	SET message_count = message_count + 1, updated_at = CURRENT_TIMESTAMP
	WHERE id = $1
	`
	if _, err := tx.Exec(updateQuery, conversationID); err != nil {
		return nil, fmt.Errorf("error updating conversation counters: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing message: %w", err)
	}

	logger.Log.WithFields(logrus.Fields{
		"conversation_id": conversationID,
		"role":            role,
		"model":           model,
		"tokens":          tokenCount,
	}).Debug("Added message to conversation")

	return msg, nil
}

// GetMessages retrieves all messages of a conversation in chronological order
func (p *PostgresDB) GetMessages(conversationID string) ([]db.Message, error) {
	query := `
	SELECT ` + messageColumns + `
	FROM messages
	WHERE conversation_id = $1
	ORDER BY created_at ASC
	`
	return p.queryMessages(query, conversationID)
}

// GetMessagesAfter retrieves the messages created after a specific message
func (p *PostgresDB) GetMessagesAfter(conversationID, afterMessageID string) ([]db.Message, error) {
	query := `
	SELECT ` + messageColumns + `
	FROM messages
	WHERE conversation_id = $1 AND created_at > (
		SELECT created_at FROM messages WHERE id = $2
	)
	ORDER BY created_at ASC
	`
	return p.queryMessages(query, conversationID, afterMessageID)
}

// GetUnsummarizedMessages retrieves the messages not yet folded into a summary
func (p *PostgresDB) GetUnsummarizedMessages(conversationID string) ([]db.Message, error) {
	query := `
	SELECT ` + messageColumns + `
	FROM messages
	WHERE conversation_id = $1 AND is_summarized = FALSE
	ORDER BY created_at ASC
	`
	return p.queryMessages(query, conversationID)
}

// MarkMessagesSummarized flags the given messages as folded into a summary.
// Messages are never deleted by summarization.
func (p *PostgresDB) MarkMessagesSummarized(conversationID string, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}

	query := `
	UPDATE messages
	SET is_summarized = TRUE
	WHERE conversation_id = $1 AND id = ANY($2)
	`
	if _, err := p.conn.Exec(query, conversationID, pq.Array(messageIDs)); err != nil {
		return fmt.Errorf("error marking messages summarized: %w", err)
	}

	logger.Log.WithFields(logrus.Fields{
		"conversation_id": conversationID,
		"count":           len(messageIDs),
	}).Debug("Marked messages as summarized")
	return nil
}

// UnsummarizedTokenCount sums the token counts of the active (non-summarized)
// messages, the quantity the summarization trigger compares against.
func (p *PostgresDB) UnsummarizedTokenCount(conversationID string) (int, error) {
	query := `
	SELECT COALESCE(SUM(token_count), 0)
	FROM messages
	WHERE conversation_id = $1 AND is_summarized = FALSE
	`

	var total int
	if err := p.conn.QueryRow(query, conversationID).Scan(&total); err != nil {
		return 0, fmt.Errorf("error summing message tokens: %w", err)
	}
	return total, nil
}

func (p *PostgresDB) queryMessages(query string, args ...any) ([]db.Message, error) {
	rows, err := p.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying messages: %w", err)
	}
	defer rows.Close()

	var messages []db.Message
	for rows.Next() {
		var msg db.Message
		if err := rows.Scan(
			&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content,
			&msg.TokenCount, &msg.Model, &msg.Cost, &msg.IsSummarized, &msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("error scanning message: %w", err)
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}
