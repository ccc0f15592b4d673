package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/Wick-Lim/helper/pkg/models"
)

// SetMemory upserts a memory row by key. Importance is clamped to [1,10].
func (s *Store) SetMemory(ctx context.Context, key, value, category string, importance int) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("memory key is required")
	}
	if category == "" {
		category = "general"
	}
	importance = clampInt(importance, 1, 10)

	_, err := s.exec(ctx, `
		INSERT INTO memories (key, value, category, importance, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			category = excluded.category,
			importance = excluded.importance,
			updated_at = CURRENT_TIMESTAMP
	`, key, value, category, importance)
	if err != nil {
		return fmt.Errorf("set memory: %w", err)
	}
	return nil
}

// GetMemory returns the memory for key and increments its access count.
func (s *Store) GetMemory(ctx context.Context, key string) (*models.Memory, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT key, value, category, importance, access_count, created_at, updated_at
		FROM memories WHERE key = ?
	`, key)

	m, err := scanMemory(row)
	if err != nil || m == nil {
		return nil, err
	}

	if _, err := s.exec(ctx, "UPDATE memories SET access_count = access_count + 1 WHERE key = ?", key); err != nil {
		s.logger.Warn("failed to bump memory access count", "key", key, "error", err)
	} else {
		m.AccessCount++
	}
	return m, nil
}

// DeleteMemory removes a memory by key. Reports whether a row was deleted.
func (s *Store) DeleteMemory(ctx context.Context, key string) (bool, error) {
	res, err := s.exec(ctx, "DELETE FROM memories WHERE key = ?", key)
	if err != nil {
		return false, fmt.Errorf("delete memory: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ScoredMemory pairs a memory with its keyword search score.
type ScoredMemory struct {
	Memory models.Memory
	Score  float64
}

// SearchMemory scores every memory against the query and returns the top
// limit matches. Score = matched lowercase token count across key, value,
// and category + 0.1*importance + 0.2*log(1+access_count); ties break by
// importance, then updated_at. Deterministic for fixed table contents.
func (s *Store) SearchMemory(ctx context.Context, query string, limit int) ([]ScoredMemory, error) {
	if limit <= 0 {
		limit = 10
	}
	tokens := queryTokens(query)
	if len(tokens) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value, category, importance, access_count, created_at, updated_at
		FROM memories
	`)
	if err != nil {
		return nil, fmt.Errorf("search memory: %w", err)
	}
	defer rows.Close()

	var scored []ScoredMemory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		score := keywordScore(tokens, m)
		if score <= 0 {
			continue
		}
		scored = append(scored, ScoredMemory{Memory: *m, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if scored[i].Memory.Importance != scored[j].Memory.Importance {
			return scored[i].Memory.Importance > scored[j].Memory.Importance
		}
		return scored[i].Memory.UpdatedAt.After(scored[j].Memory.UpdatedAt)
	})

	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// keywordScore computes the search score for one memory. Each query token
// counts once per field it appears in.
func keywordScore(tokens []string, m *models.Memory) float64 {
	fields := []string{
		strings.ToLower(m.Key),
		strings.ToLower(m.Value),
		strings.ToLower(m.Category),
	}
	matched := 0
	for _, tok := range tokens {
		for _, field := range fields {
			if strings.Contains(field, tok) {
				matched++
			}
		}
	}
	if matched == 0 {
		return 0
	}
	return float64(matched) +
		0.1*float64(m.Importance) +
		0.2*math.Log(1+float64(m.AccessCount))
}

func queryTokens(query string) []string {
	raw := strings.Fields(strings.ToLower(query))
	seen := make(map[string]bool, len(raw))
	var out []string
	for _, tok := range raw {
		tok = strings.Trim(tok, `"'.,;:!?()[]{}`)
		if tok == "" || seen[tok] {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	return out
}

// CountMemories returns the memory row count.
func (s *Store) CountMemories(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM memories").Scan(&n)
	return n, err
}

// PruneMemories deletes the least valuable rows beyond the configured cap,
// ordered by ascending (importance, access_count, updated_at). Returns the
// number of rows removed.
func (s *Store) PruneMemories(ctx context.Context) (int, error) {
	count, err := s.CountMemories(ctx)
	if err != nil {
		return 0, err
	}
	excess := count - s.cfg.MemoryCap
	if excess <= 0 {
		return 0, nil
	}

	res, err := s.exec(ctx, `
		DELETE FROM memories WHERE key IN (
			SELECT key FROM memories
			ORDER BY importance ASC, access_count ASC, updated_at ASC
			LIMIT ?
		)
	`, excess)
	if err != nil {
		return 0, fmt.Errorf("prune memories: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(r rowScanner) (*models.Memory, error) {
	var m models.Memory
	var created, updated time.Time
	err := r.Scan(&m.Key, &m.Value, &m.Category, &m.Importance, &m.AccessCount, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan memory: %w", err)
	}
	m.CreatedAt = created
	m.UpdatedAt = updated
	return &m, nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
