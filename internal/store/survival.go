package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Wick-Lim/helper/pkg/models"
)

// Survival economics. The agent owes HourlyDebt for every hour it exists;
// real work credits the ledger back.
const (
	// HourlyDebt is the cost of one hour of existence: $250 per 720-hour
	// month.
	HourlyDebt = 250.0 / 720.0

	// DailyDebt is the cost of one day of existence.
	DailyDebt = 250.0 / 30.0
)

// AppendLedger appends one signed entry to the survival ledger.
func (s *Store) AppendLedger(ctx context.Context, amount float64, reason string) error {
	if reason == "" {
		return fmt.Errorf("ledger reason is required")
	}
	if _, err := s.exec(ctx, `
		INSERT INTO survival_ledger (amount, reason) VALUES (?, ?)
	`, amount, reason); err != nil {
		return fmt.Errorf("append ledger: %w", err)
	}
	return nil
}

// Balance returns the sum of all ledger amounts.
func (s *Store) Balance(ctx context.Context) (float64, error) {
	var balance sql.NullFloat64
	err := s.db.QueryRowContext(ctx, "SELECT SUM(amount) FROM survival_ledger").Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("ledger balance: %w", err)
	}
	return balance.Float64, nil
}

// RecentLedger returns the newest ledger entries, newest first.
func (s *Store) RecentLedger(ctx context.Context, limit int) ([]models.LedgerEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, amount, reason, created_at
		FROM survival_ledger ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent ledger: %w", err)
	}
	defer rows.Close()

	var out []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.Amount, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

const debtReason = "hourly existence debt"

// lastDebtTime returns the timestamp of the most recent hourly debt entry,
// or the first ledger entry's time, or zero when the ledger is empty.
func (s *Store) lastDebtTime(ctx context.Context) (time.Time, error) {
	var t time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT created_at FROM survival_ledger WHERE reason = ? ORDER BY id DESC LIMIT 1
	`, debtReason).Scan(&t)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, fmt.Errorf("last debt time: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT created_at FROM survival_ledger ORDER BY id ASC LIMIT 1
	`).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("last debt time: %w", err)
	}
	return t, nil
}

// ApplyHourlyDebt appends hours_since_last_debt * HourlyDebt as a negative
// entry when at least one full hour has elapsed since the last debt entry.
// Idempotent across overlapping schedules: a second caller in the same
// hour window applies nothing. Returns the amount charged (≥ 0).
func (s *Store) ApplyHourlyDebt(ctx context.Context, now time.Time) (float64, error) {
	last, err := s.lastDebtTime(ctx)
	if err != nil {
		return 0, err
	}
	if last.IsZero() {
		// Empty ledger: open it with a zero-hour marker so the clock
		// starts now rather than charging retroactively.
		if err := s.AppendLedger(ctx, 0, debtReason); err != nil {
			return 0, err
		}
		return 0, nil
	}

	hours := now.Sub(last).Hours()
	if hours < 1 {
		return 0, nil
	}
	charge := hours * HourlyDebt
	if err := s.AppendLedger(ctx, -charge, debtReason); err != nil {
		return 0, err
	}
	s.logger.Info("applied survival debt", "hours", fmt.Sprintf("%.2f", hours), "charge", fmt.Sprintf("%.4f", charge))
	return charge, nil
}
