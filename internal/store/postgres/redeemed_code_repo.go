package postgres

import (
	"context"
	"fmt"
	"time"
)

// RedeemedCodeRepo is the durable redeemed-codes set behind the replay
// guard. Rows are permanent denial records and are never deleted.
type RedeemedCodeRepo struct {
	db *DB
}

func NewRedeemedCodeRepo(db *DB) *RedeemedCodeRepo {
	return &RedeemedCodeRepo{db: db}
}

func (r *RedeemedCodeRepo) IsRedeemed(ctx context.Context, code string) (bool, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var exists bool
	if err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM redeemed_codes WHERE code = $1)", code,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("check redeemed code: %w", err)
	}
	return exists, nil
}

func (r *RedeemedCodeRepo) MarkRedeemed(ctx context.Context, code string, redeemedBy string, redeemedAt time.Time) error {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	// Idempotent: commit retries after a crash hit the same row.
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO redeemed_codes (code, redeemed_by, redeemed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (code) DO NOTHING
	`, code, redeemedBy, redeemedAt); err != nil {
		return fmt.Errorf("mark code redeemed: %w", err)
	}
	return nil
}
