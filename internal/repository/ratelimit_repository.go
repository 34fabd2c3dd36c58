package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/swg-labs/smssend-api/internal/models"
)

// RateLimitRepository drives the DB-backed sliding-window counters. The
// whole state transition runs inside one transaction with the row locked,
// so concurrent hits across workers serialize instead of double-counting.
type RateLimitRepository struct {
	db *sqlx.DB
}

// NewRateLimitRepository creates a new instance of RateLimitRepository.
func NewRateLimitRepository(db *sqlx.DB) *RateLimitRepository {
	return &RateLimitRepository{db: db}
}

// Hit records one attempt against the key and reports whether the caller
// is limited and for how long. Transitions:
//   - no row: start a window at count=1
//   - blocked and block not elapsed: limited, remaining block as retry
//   - window elapsed: reset to count=1 and clear any stale block
//   - count exceeds maxCount: block for the configured duration
func (r *RateLimitRepository) Hit(ctx context.Context, key string, maxCount int, window, block time.Duration) (bool, time.Duration, error) {
	now := time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, 0, fmt.Errorf("begin rate limit: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var state models.RateLimitState
	const sel = `SELECT key, window_started_at, count, blocked_until, updated_at
		FROM rate_limits WHERE key = $1 FOR UPDATE`
	err = tx.GetContext(ctx, &state, sel, key)
	switch {
	case err == sql.ErrNoRows:
		const insert = `INSERT INTO rate_limits (key, window_started_at, count, blocked_until, updated_at)
			VALUES ($1, $2, 1, NULL, $2)`
		if _, err := tx.ExecContext(ctx, insert, key, now); err != nil {
			return false, 0, fmt.Errorf("insert rate limit: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return false, 0, fmt.Errorf("commit rate limit: %w", err)
		}
		return false, 0, nil
	case err != nil:
		return false, 0, fmt.Errorf("load rate limit: %w", err)
	}

	if state.BlockedUntil != nil && state.BlockedUntil.After(now) {
		retry := state.BlockedUntil.Sub(now)
		if err := tx.Commit(); err != nil {
			return false, 0, fmt.Errorf("commit rate limit: %w", err)
		}
		return true, retry, nil
	}

	if !now.Before(state.WindowStartedAt.Add(window)) {
		state.WindowStartedAt = now
		state.Count = 0
		state.BlockedUntil = nil
	}

	state.Count++

	limited := false
	retry := time.Duration(0)
	if state.Count > maxCount {
		blockedUntil := now.Add(block)
		state.BlockedUntil = &blockedUntil
		limited = true
		retry = block
	}

	const update = `UPDATE rate_limits SET window_started_at = $2, count = $3, blocked_until = $4, updated_at = $5 WHERE key = $1`
	if _, err := tx.ExecContext(ctx, update, key, state.WindowStartedAt, state.Count, state.BlockedUntil, now); err != nil {
		return false, 0, fmt.Errorf("update rate limit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, 0, fmt.Errorf("commit rate limit: %w", err)
	}
	return limited, retry, nil
}

// PurgeExpired removes rows whose window and block have both lapsed.
// Run periodically; correctness does not depend on it.
func (r *RateLimitRepository) PurgeExpired(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	const query = `DELETE FROM rate_limits
		WHERE updated_at < $1 AND (blocked_until IS NULL OR blocked_until < $1)`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge rate limits: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge rate limits: %w", err)
	}
	return n, nil
}
