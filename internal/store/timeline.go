package store

import (
	"context"
	"fmt"

	"github.com/Wick-Lim/helper/pkg/models"
)

// Timeline returns the newest entries of the unified view over thoughts,
// knowledge, and tasks, ordered by timestamp descending.
func (s *Store) Timeline(ctx context.Context, limit int) ([]models.TimelineEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, 'thought' AS type, content, summary, category AS meta1, '' AS meta2, created_at
		FROM thoughts
		UNION ALL
		SELECT id, 'knowledge', content, summary, source, CAST(importance AS TEXT), created_at
		FROM knowledge
		UNION ALL
		SELECT id, 'task', description, result, status, session_id, created_at
		FROM tasks
		ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("timeline: %w", err)
	}
	defer rows.Close()

	var out []models.TimelineEntry
	for rows.Next() {
		var e models.TimelineEntry
		var typ, meta1, meta2 string
		if err := rows.Scan(&e.ID, &typ, &e.Content, &e.Summary, &meta1, &meta2, &e.When); err != nil {
			return nil, fmt.Errorf("scan timeline entry: %w", err)
		}
		e.Type = models.TimelineType(typ)
		switch e.Type {
		case models.TimelineThought:
			e.Metadata = map[string]string{"category": meta1}
		case models.TimelineKnowledge:
			e.Metadata = map[string]string{"source": meta1, "importance": meta2}
		case models.TimelineTask:
			e.Metadata = map[string]string{"status": meta1, "session_id": meta2}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
