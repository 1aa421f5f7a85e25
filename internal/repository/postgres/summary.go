package postgres

import (
	"database/sql"
	"fmt"
	"kenchat/internal/logger"
	"kenchat/internal/repository/db"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const summaryColumns = `id, conversation_id, content, start_message_id, end_message_id,
	token_count, cost, is_active, created_at`

// CreateSummary inserts a new summary and deactivates any previous one for
// the conversation in the same transaction. The old summary is superseded,
// not merged.
func (p *PostgresDB) CreateSummary(conversationID, content, startMessageID, endMessageID string, tokenCount int, cost float64) (*db.Summary, error) {
	tx, err := p.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE conversation_summaries SET is_active = FALSE WHERE conversation_id = $1 AND is_active = TRUE`, conversationID); err != nil {
		return nil, fmt.Errorf("error deactivating previous summary: %w", err)
	}

	summary := &db.Summary{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Content:        content,
		StartMessageID: startMessageID,
		EndMessageID:   endMessageID,
		TokenCount:     tokenCount,
		Cost:           cost,
		IsActive:       true,
	}

	query := `
	INSERT INTO conversation_summaries (id, conversation_id, content, start_message_id, end_message_id, token_count, cost)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING created_at
	`

	err = tx.QueryRow(query, summary.ID, conversationID, content, startMessageID, endMessageID, tokenCount, cost).
		Scan(&summary.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("error creating summary: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing summary: %w", err)
	}

	logger.Log.WithFields(logrus.Fields{"summary_id": summary.ID, "conversation_id": conversationID}).Info("Created summary")
	return summary, nil
}

// GetActiveSummary retrieves the active summary for a conversation, or nil
// when the conversation has never been summarized.
func (p *PostgresDB) GetActiveSummary(conversationID string) (*db.Summary, error) {
	var summary db.Summary
	query := `
	SELECT ` + summaryColumns + `
	FROM conversation_summaries
	WHERE conversation_id = $1 AND is_active = TRUE
	ORDER BY created_at DESC
	LIMIT 1
	`

	err := p.conn.QueryRow(query, conversationID).Scan(
		&summary.ID, &summary.ConversationID, &summary.Content,
		&summary.StartMessageID, &summary.EndMessageID,
		&summary.TokenCount, &summary.Cost, &summary.IsActive, &summary.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("error retrieving active summary: %w", err)
	}

	return &summary, nil
}

// GetAllSummaries retrieves all summaries for a conversation in chronological order
func (p *PostgresDB) GetAllSummaries(conversationID string) ([]db.Summary, error) {
	query := `
	SELECT ` + summaryColumns + `
	FROM conversation_summaries
	WHERE conversation_id = $1
	ORDER BY created_at ASC
	`

	rows, err := p.conn.Query(query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("error querying summaries: %w", err)
	}
	defer rows.Close()

	var summaries []db.Summary
	for rows.Next() {
		var summary db.Summary
		if err := rows.Scan(
			&summary.ID, &summary.ConversationID, &summary.Content,
			&summary.StartMessageID, &summary.EndMessageID,
			&summary.TokenCount, &summary.Cost, &summary.IsActive, &summary.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("error scanning summary: %w", err)
		}
		summaries = append(summaries, summary)
	}

	return summaries, rows.Err()
}
