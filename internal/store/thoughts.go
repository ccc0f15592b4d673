package store

import (
	"context"
	"fmt"
	"time"

	"github.com/Wick-Lim/helper/internal/events"
	"github.com/Wick-Lim/helper/pkg/models"
	"github.com/google/uuid"
)

// DefaultThoughtRetention is how long thoughts are kept before pruning.
const DefaultThoughtRetention = 7 * 24 * time.Hour

// SaveThought persists a reflection and publishes it.
func (s *Store) SaveThought(ctx context.Context, content, summary, category string) (*models.Thought, error) {
	if category == "" {
		category = "reflection"
	}
	th := &models.Thought{
		ID:        uuid.New().String(),
		Content:   content,
		Summary:   summary,
		Category:  category,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.exec(ctx, `
		INSERT INTO thoughts (id, content, summary, category, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, th.ID, th.Content, th.Summary, th.Category, th.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("save thought: %w", err)
	}

	s.publish(events.StreamThoughts, "thought_created", th)
	s.publish(events.StreamTimeline, "thought_created", models.TimelineEntry{
		ID:      th.ID,
		Type:    models.TimelineThought,
		Content: th.Content,
		Summary: th.Summary,
		Metadata: map[string]string{
			"category": th.Category,
		},
		When: th.CreatedAt,
	})
	return th, nil
}

// RecentThoughts returns the newest thoughts, newest first.
func (s *Store) RecentThoughts(ctx context.Context, limit int) ([]models.Thought, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, summary, category, created_at
		FROM thoughts ORDER BY created_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent thoughts: %w", err)
	}
	defer rows.Close()

	var out []models.Thought
	for rows.Next() {
		var th models.Thought
		if err := rows.Scan(&th.ID, &th.Content, &th.Summary, &th.Category, &th.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan thought: %w", err)
		}
		out = append(out, th)
	}
	return out, rows.Err()
}

// CountThoughts returns the thought row count.
func (s *Store) CountThoughts(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM thoughts").Scan(&n)
	return n, err
}

// PruneThoughts deletes thoughts older than the retention window.
func (s *Store) PruneThoughts(ctx context.Context, retention time.Duration) (int, error) {
	if retention <= 0 {
		retention = DefaultThoughtRetention
	}
	cutoff := time.Now().UTC().Add(-retention)
	res, err := s.exec(ctx, "DELETE FROM thoughts WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune thoughts: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
