package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/Wick-Lim/helper/internal/events"
	"github.com/Wick-Lim/helper/pkg/models"
	"github.com/google/uuid"
)

// SaveKnowledge persists a knowledge row and, when a non-empty embedding
// is provided and the vector index is available, its vector. Vectors are
// normalized to unit length before storage.
func (s *Store) SaveKnowledge(ctx context.Context, content, summary, source string, importance int, embedding []float32) (*models.Knowledge, error) {
	k := &models.Knowledge{
		ID:         uuid.New().String(),
		Content:    content,
		Summary:    summary,
		Source:     source,
		Importance: clampInt(importance, 1, 10),
		CreatedAt:  time.Now().UTC(),
	}
	_, err := s.exec(ctx, `
		INSERT INTO knowledge (id, content, summary, source, importance, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, k.ID, k.Content, k.Summary, k.Source, k.Importance, k.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("save knowledge: %w", err)
	}

	if len(embedding) > 0 {
		if err := s.saveVector(ctx, k.ID, embedding); err != nil {
			s.logger.Warn("failed to index knowledge vector", "id", k.ID, "error", err)
		}
	}

	s.publish(events.StreamTimeline, "knowledge_created", models.TimelineEntry{
		ID:      k.ID,
		Type:    models.TimelineKnowledge,
		Content: k.Content,
		Summary: k.Summary,
		Metadata: map[string]string{
			"source":     k.Source,
			"importance": fmt.Sprintf("%d", k.Importance),
		},
		When: k.CreatedAt,
	})
	return k, nil
}

func (s *Store) saveVector(ctx context.Context, id string, embedding []float32) error {
	if s.vec == nil {
		return fmt.Errorf("vector index absent")
	}
	if len(embedding) != s.cfg.Dimension {
		return fmt.Errorf("embedding dimension %d, want %d", len(embedding), s.cfg.Dimension)
	}
	_, err := s.vec.ExecContext(ctx, `
		INSERT OR REPLACE INTO knowledge_vectors (id, embedding) VALUES (?, ?)
	`, id, encodeEmbedding(normalize(embedding)))
	return err
}

// SearchKnowledge returns the k nearest knowledge rows to the query vector
// by cosine distance. Stored vectors are normalized, so distance is
// 1 - dot(querŷ, stored). Ties break by ascending id. When the vector
// index is absent the search returns empty with a warning.
func (s *Store) SearchKnowledge(ctx context.Context, query []float32, k int) ([]models.KnowledgeMatch, error) {
	if s.vec == nil {
		s.logger.Warn("vector search requested but vector index is absent")
		return nil, nil
	}
	if k <= 0 {
		k = 5
	}
	if len(query) != s.cfg.Dimension {
		return nil, fmt.Errorf("query dimension %d, want %d", len(query), s.cfg.Dimension)
	}
	q := normalize(query)

	rows, err := s.vec.QueryContext(ctx, "SELECT id, embedding FROM knowledge_vectors")
	if err != nil {
		return nil, fmt.Errorf("search knowledge: %w", err)
	}
	defer rows.Close()

	type hit struct {
		id       string
		distance float64
	}
	var hits []hit
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("scan vector: %w", err)
		}
		stored := decodeEmbedding(blob)
		if len(stored) != len(q) {
			continue
		}
		hits = append(hits, hit{id: id, distance: 1 - dot(q, stored)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].distance != hits[j].distance {
			return hits[i].distance < hits[j].distance
		}
		return hits[i].id < hits[j].id
	})
	if len(hits) > k {
		hits = hits[:k]
	}

	var out []models.KnowledgeMatch
	for _, h := range hits {
		kn, err := s.getKnowledge(ctx, h.id)
		if err != nil {
			return nil, err
		}
		if kn == nil {
			// Orphaned vector; repair the invariant.
			if _, err := s.vec.ExecContext(ctx, "DELETE FROM knowledge_vectors WHERE id = ?", h.id); err != nil {
				s.logger.Warn("failed to remove orphaned vector", "id", h.id, "error", err)
			}
			continue
		}
		out = append(out, models.KnowledgeMatch{Knowledge: *kn, Distance: h.distance})
	}
	return out, nil
}

func (s *Store) getKnowledge(ctx context.Context, id string) (*models.Knowledge, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, content, summary, source, importance, created_at
		FROM knowledge WHERE id = ?
	`, id)
	var k models.Knowledge
	err := row.Scan(&k.ID, &k.Content, &k.Summary, &k.Source, &k.Importance, &k.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get knowledge: %w", err)
	}
	return &k, nil
}

// CountKnowledge returns the knowledge row count.
func (s *Store) CountKnowledge(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM knowledge").Scan(&n)
	return n, err
}

// PruneKnowledge deletes the least valuable rows beyond the configured
// cap, ordered by ascending (importance, created_at). Each deleted row's
// vector is deleted with it.
func (s *Store) PruneKnowledge(ctx context.Context) (int, error) {
	count, err := s.CountKnowledge(ctx)
	if err != nil {
		return 0, err
	}
	excess := count - s.cfg.KnowledgeCap
	if excess <= 0 {
		return 0, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM knowledge ORDER BY importance ASC, created_at ASC LIMIT ?
	`, excess)
	if err != nil {
		return 0, fmt.Errorf("prune knowledge: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	deleted := 0
	for _, id := range ids {
		if err := s.DeleteKnowledge(ctx, id); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

// DeleteKnowledge removes a knowledge row together with its vector.
func (s *Store) DeleteKnowledge(ctx context.Context, id string) error {
	if _, err := s.exec(ctx, "DELETE FROM knowledge WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete knowledge: %w", err)
	}
	if s.vec != nil {
		if _, err := s.vec.ExecContext(ctx, "DELETE FROM knowledge_vectors WHERE id = ?", id); err != nil {
			return fmt.Errorf("delete knowledge vector: %w", err)
		}
	}
	return nil
}

// encodeEmbedding packs a float32 slice little-endian, 4 bytes per value.
func encodeEmbedding(embedding []float32) []byte {
	data := make([]byte, len(embedding)*4)
	for i, f := range embedding {
		bits := math.Float32bits(f)
		data[i*4] = byte(bits)
		data[i*4+1] = byte(bits >> 8)
		data[i*4+2] = byte(bits >> 16)
		data[i*4+3] = byte(bits >> 24)
	}
	return data
}

func decodeEmbedding(data []byte) []float32 {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil
	}
	embedding := make([]float32, len(data)/4)
	for i := range embedding {
		bits := uint32(data[i*4]) |
			uint32(data[i*4+1])<<8 |
			uint32(data[i*4+2])<<16 |
			uint32(data[i*4+3])<<24
		embedding[i] = math.Float32frombits(bits)
	}
	return embedding
}

func normalize(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
