package postgres

import (
	"database/sql"
	"fmt"
	"kenchat/internal/logger"
	"kenchat/internal/repository/db"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// CreatePersona creates a new persona for a user. When isDefault is set the
// user's previous default is cleared in the same transaction.
func (p *PostgresDB) CreatePersona(userID, name, description, systemPrompt string, isDefault bool) (*db.Persona, error) {
	tx, err := p.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	if isDefault {
		if _, err := tx.Exec(`UPDATE personas SET is_default = FALSE WHERE user_id = $1`, userID); err != nil {
			return nil, fmt.Errorf("error clearing default persona: %w", err)
		}
	}

	persona := &db.Persona{
		ID:           uuid.New().String(),
		UserID:       userID,
		Name:         name,
		Description:  description,
		SystemPrompt: systemPrompt,
		IsDefault:    isDefault,
	}

	query := `
	INSERT INTO personas (id, user_id, name, description, system_prompt, is_default)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING created_at, updated_at
	`

	err = tx.QueryRow(query, persona.ID, userID, name, description, systemPrompt, isDefault).
		Scan(&persona.CreatedAt, &persona.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("error creating persona: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing persona: %w", err)
	}

	logger.Log.WithFields(logrus.Fields{"persona_id": persona.ID, "user_id": userID}).Info("Created persona")
	return persona, nil
}

// GetPersona retrieves a specific persona
func (p *PostgresDB) GetPersona(id string) (*db.Persona, error) {
	var persona db.Persona
	query := `
	SELECT id, user_id, name, description, system_prompt, is_default, usage_count, created_at, updated_at
	FROM personas WHERE id = $1
	`

	err := p.conn.QueryRow(query, id).Scan(
		&persona.ID, &persona.UserID, &persona.Name, &persona.Description,
		&persona.SystemPrompt, &persona.IsDefault, &persona.UsageCount,
		&persona.CreatedAt, &persona.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("persona not found")
		}
		return nil, fmt.Errorf("error retrieving persona: %w", err)
	}

	return &persona, nil
}

// GetPersonasByUser retrieves all personas owned by a user
func (p *PostgresDB) GetPersonasByUser(userID string) ([]db.Persona, error) {
	query := `
	SELECT id, user_id, name, description, system_prompt, is_default, usage_count, created_at, updated_at
	FROM personas
	WHERE user_id = $1
	ORDER BY created_at ASC
	`

	rows, err := p.conn.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("error querying personas: %w", err)
	}
	defer rows.Close()

	var personas []db.Persona
	for rows.Next() {
		var persona db.Persona
		if err := rows.Scan(
			&persona.ID, &persona.UserID, &persona.Name, &persona.Description,
			&persona.SystemPrompt, &persona.IsDefault, &persona.UsageCount,
			&persona.CreatedAt, &persona.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("error scanning persona: %w", err)
		}
		personas = append(personas, persona)
	}

	return personas, rows.Err()
}

// UpdatePersona updates a persona's editable fields
func (p *PostgresDB) UpdatePersona(id, name, description, systemPrompt string) (*db.Persona, error) {
	query := `
	UPDATE personas
	SET name = $2, description = $3, system_prompt = $4, updated_at = CURRENT_TIMESTAMP
	WHERE id = $1
	`

	res, err := p.conn.Exec(query, id, name, description, systemPrompt)
	if err != nil {
		return nil, fmt.Errorf("error updating persona: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("persona not found")
	}

	return p.GetPersona(id)
}

// DeletePersona deletes a persona. Conversations referencing it keep running
// with persona_id set to NULL (FK is ON DELETE SET NULL).
func (p *PostgresDB) DeletePersona(id string) error {
	res, err := p.conn.Exec(`DELETE FROM personas WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("error deleting persona: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("persona not found")
	}

	logger.Log.WithField("persona_id", id).Info("Deleted persona")
	return nil
}

// SetDefaultPersona marks one persona as the user's default and clears the rest
func (p *PostgresDB) SetDefaultPersona(userID, personaID string) error {
	tx, err := p.conn.Begin()
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE personas SET is_default = FALSE WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("error clearing default persona: %w", err)
	}

	res, err := tx.Exec(`UPDATE personas SET is_default = TRUE, updated_at = CURRENT_TIMESTAMP WHERE id = $1 AND user_id = $2`, personaID, userID)
	if err != nil {
		return fmt.Errorf("error setting default persona: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("persona not found")
	}

	return tx.Commit()
}

// IncrementPersonaUsage bumps the persona usage counter
func (p *PostgresDB) IncrementPersonaUsage(id string) error {
	query := `UPDATE personas SET usage_count = usage_count + 1 WHERE id = $1`
	if _, err := p.conn.Exec(query, id); err != nil {
		return fmt.Errorf("error incrementing persona usage: %w", err)
	}
	return nil
}
