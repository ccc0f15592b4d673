package store

import (
	"context"
	"fmt"

	"github.com/Wick-Lim/helper/pkg/models"
)

// AppendConversation appends one turn to a session's history.
func (s *Store) AppendConversation(ctx context.Context, sessionID string, role models.Role, content string) error {
	if role != models.RoleUser && role != models.RoleModel {
		return fmt.Errorf("append conversation: invalid role %q", role)
	}
	_, err := s.exec(ctx, `
		INSERT INTO conversations (session_id, role, content) VALUES (?, ?, ?)
	`, sessionID, role, content)
	if err != nil {
		return fmt.Errorf("append conversation: %w", err)
	}
	return nil
}

// ConversationHistory returns a session's turns in creation order. A
// positive lastN restricts the result to the newest lastN rows.
func (s *Store) ConversationHistory(ctx context.Context, sessionID string, lastN int) ([]models.ConversationRow, error) {
	query := `
		SELECT id, session_id, role, content, created_at
		FROM conversations WHERE session_id = ? ORDER BY id ASC
	`
	args := []any{sessionID}
	if lastN > 0 {
		query = `
			SELECT id, session_id, role, content, created_at FROM (
				SELECT id, session_id, role, content, created_at
				FROM conversations WHERE session_id = ? ORDER BY id DESC LIMIT ?
			) ORDER BY id ASC
		`
		args = append(args, lastN)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("conversation history: %w", err)
	}
	defer rows.Close()

	var out []models.ConversationRow
	for rows.Next() {
		var r models.ConversationRow
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Role, &r.Content, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PruneConversation keeps only the newest keepN rows of a session.
func (s *Store) PruneConversation(ctx context.Context, sessionID string, keepN int) (int, error) {
	if keepN < 0 {
		keepN = 0
	}
	res, err := s.exec(ctx, `
		DELETE FROM conversations WHERE session_id = ? AND id NOT IN (
			SELECT id FROM conversations WHERE session_id = ? ORDER BY id DESC LIMIT ?
		)
	`, sessionID, sessionID, keepN)
	if err != nil {
		return 0, fmt.Errorf("prune conversation: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ClearConversation deletes a session's entire history.
func (s *Store) ClearConversation(ctx context.Context, sessionID string) error {
	if _, err := s.exec(ctx, "DELETE FROM conversations WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("clear conversation: %w", err)
	}
	return nil
}
