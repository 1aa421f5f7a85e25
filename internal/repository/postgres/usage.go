package postgres

import (
	"fmt"
	"kenchat/internal/logger"
	"kenchat/internal/repository/db"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RecordUsage appends one ledger entry. When the entry is tied to a
// conversation, the conversation's denormalized total_cost is incremented in
// the same transaction so the running total cannot drift from the ledger
// under partial failure.
func (p *PostgresDB) RecordUsage(entry db.UsageLog) (*db.UsageLog, error) {
	tx, err := p.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	entry.ID = uuid.New().String()

	query := `
	INSERT INTO usage_logs (id, user_id, conversation_id, action, model, prompt_tokens, completion_tokens, total_tokens, cost, finish_reason)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	RETURNING created_at
	`

	err = tx.QueryRow(query,
		entry.ID, entry.UserID, entry.ConversationID, entry.Action, entry.Model,
		entry.PromptTokens, entry.CompletionTokens, entry.TotalTokens,
		entry.Cost, entry.FinishReason,
	).Scan(&entry.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("error recording usage: %w", err)
	}

	if entry.ConversationID != nil && entry.Cost != 0 {
		updateQuery := `UPDATE conversations SET total_cost = total_cost + $2 WHERE id = $1`
		if _, err := tx.Exec(updateQuery, *entry.ConversationID, entry.Cost); err != nil {
			return nil, fmt.Errorf("error updating conversation cost: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing usage entry: %w", err)
	}

	logger.Log.WithFields(logrus.Fields{
		"user_id": entry.UserID,
		"action":  entry.Action,
		"tokens":  entry.TotalTokens,
		"cost":    entry.Cost,
	}).Debug("Recorded usage entry")

	return &entry, nil
}

// TotalCostForUser sums the user's ledger cost over [start, end)
func (p *PostgresDB) TotalCostForUser(userID string, start, end time.Time) (float64, error) {
	query := `
	SELECT COALESCE(SUM(cost), 0)
	FROM usage_logs
	WHERE user_id = $1 AND created_at >= $2 AND created_at < $3
	`

	var total float64
	if err := p.conn.QueryRow(query, userID, start, end).Scan(&total); err != nil {
		return 0, fmt.Errorf("error summing user cost: %w", err)
	}
	return total, nil
}

// TotalCostForConversation sums the ledger cost of one conversation.
// This is the source of truth the denormalized conversations.total_cost
// column mirrors.
func (p *PostgresDB) TotalCostForConversation(conversationID string) (float64, error) {
	query := `
	SELECT COALESCE(SUM(cost), 0)
	FROM usage_logs
	WHERE conversation_id = $1
	`

	var total float64
	if err := p.conn.QueryRow(query, conversationID).Scan(&total); err != nil {
		return 0, fmt.Errorf("error summing conversation cost: %w", err)
	}
	return total, nil
}

// DailyBreakdown aggregates the user's usage per day over [start, end)
func (p *PostgresDB) DailyBreakdown(userID string, start, end time.Time) ([]db.DailyCost, error) {
	query := `
	SELECT date_trunc('day', created_at) AS day,
	       COALESCE(SUM(total_tokens), 0),
	       COALESCE(SUM(cost), 0),
	       COUNT(*)
	FROM usage_logs
	WHERE user_id = $1 AND created_at >= $2 AND created_at < $3
	GROUP BY day
	ORDER BY day ASC
	`

	rows, err := p.conn.Query(query, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("error querying daily breakdown: %w", err)
	}
	defer rows.Close()

	var breakdown []db.DailyCost
	for rows.Next() {
		var row db.DailyCost
		if err := rows.Scan(&row.Day, &row.Tokens, &row.Cost, &row.Requests); err != nil {
			return nil, fmt.Errorf("error scanning daily breakdown: %w", err)
		}
		breakdown = append(breakdown, row)
	}

	return breakdown, rows.Err()
}

// ConversationBreakdown aggregates the user's usage per conversation over [start, end)
func (p *PostgresDB) ConversationBreakdown(userID string, start, end time.Time) ([]db.ConversationCost, error) {
	query := `
	SELECT u.conversation_id,
	       COALESCE(c.title, ''),
	       COALESCE(SUM(u.total_tokens), 0),
	       COALESCE(SUM(u.cost), 0),
	       COUNT(*)
	FROM usage_logs u
	LEFT JOIN conversations c ON c.id = u.conversation_id
	WHERE u.user_id = $1 AND u.conversation_id IS NOT NULL
	  AND u.created_at >= $2 AND u.created_at < $3
	GROUP BY u.conversation_id, c.title
	ORDER BY SUM(u.cost) DESC
	`

	rows, err := p.conn.Query(query, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("error querying conversation breakdown: %w", err)
	}
	defer rows.Close()

	var breakdown []db.ConversationCost
	for rows.Next() {
		var row db.ConversationCost
		if err := rows.Scan(&row.ConversationID, &row.Title, &row.Tokens, &row.Cost, &row.Requests); err != nil {
			return nil, fmt.Errorf("error scanning conversation breakdown: %w", err)
		}
		breakdown = append(breakdown, row)
	}

	return breakdown, rows.Err()
}

// ListUsage returns the raw ledger entries for a user, newest first
func (p *PostgresDB) ListUsage(userID string, filter db.UsageFilter) ([]db.UsageLog, error) {
	query := `
	SELECT id, user_id, conversation_id, action, model, prompt_tokens, completion_tokens, total_tokens, cost, finish_reason, created_at
	FROM usage_logs
	WHERE user_id = $1
	`
	args := []any{userID}

	add := func(clause string, value any) {
		args = append(args, value)
		query += fmt.Sprintf(" AND %s $%d", clause, len(args))
	}

	if filter.ConversationID != "" {
		add("conversation_id =", filter.ConversationID)
	}
	if filter.Action != "" {
		add("action =", filter.Action)
	}
	if filter.Model != "" {
		add("model =", filter.Model)
	}
	if !filter.Start.IsZero() {
		add("created_at >=", filter.Start)
	}
	if !filter.End.IsZero() {
		add("created_at <", filter.End)
	}

	query += " ORDER BY created_at DESC"

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := p.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying usage logs: %w", err)
	}
	defer rows.Close()

	var entries []db.UsageLog
	for rows.Next() {
		var entry db.UsageLog
		if err := rows.Scan(
			&entry.ID, &entry.UserID, &entry.ConversationID, &entry.Action, &entry.Model,
			&entry.PromptTokens, &entry.CompletionTokens, &entry.TotalTokens,
			&entry.Cost, &entry.FinishReason, &entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("error scanning usage log: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// DeleteUsageOlderThan removes ledger entries older than the cutoff.
// This is the only mutation the append-only table ever sees.
func (p *PostgresDB) DeleteUsageOlderThan(cutoff time.Time) (int64, error) {
	res, err := p.conn.Exec(`DELETE FROM usage_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("error deleting old usage logs: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error counting deleted usage logs: %w", err)
	}

	if n > 0 {
		logger.Log.WithFields(logrus.Fields{"deleted": n, "cutoff": cutoff}).Info("Cleaned up old usage logs")
	}
	return n, nil
}
