package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/giftwell/fraudguard/internal/domain/model"
	"github.com/giftwell/fraudguard/internal/store"
)

// FraudLogRepo is the append-only Postgres store for fraud telemetry.
type FraudLogRepo struct {
	db *DB
}

func NewFraudLogRepo(db *DB) *FraudLogRepo {
	return &FraudLogRepo{db: db}
}

func (r *FraudLogRepo) Insert(ctx context.Context, log *model.FraudLog) error {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO fraud_logs
			(id, ip_address, user_agent, device_fingerprint, merchant_id,
			 code_attempted, failure_reason, severity, blocked, metadata, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, log.ID, log.IPAddress, log.UserAgent, log.DeviceFingerprint, log.MerchantID,
		log.CodeAttempted, log.FailureReason, log.Severity, log.Blocked,
		nullableJSON(log.Metadata), log.Timestamp)
	if err != nil {
		return fmt.Errorf("insert fraud log: %w", err)
	}
	return nil
}

func (r *FraudLogRepo) List(ctx context.Context, q store.FraudLogQuery) ([]model.FraudLog, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	limit := q.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, ip_address, user_agent, device_fingerprint, merchant_id,
		       code_attempted, failure_reason, severity, blocked, metadata, timestamp
		FROM fraud_logs
		WHERE timestamp >= $1
		ORDER BY timestamp DESC, id DESC
		LIMIT $2 OFFSET $3
	`, q.Since, limit, q.Offset)
	if err != nil {
		return nil, fmt.Errorf("list fraud logs: %w", err)
	}
	defer rows.Close()

	return scanFraudLogs(rows)
}

// ListSince orders ascending by (timestamp, id) so clustering input is
// stable across runs.
func (r *FraudLogRepo) ListSince(ctx context.Context, since time.Time) ([]model.FraudLog, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, ip_address, user_agent, device_fingerprint, merchant_id,
		       code_attempted, failure_reason, severity, blocked, metadata, timestamp
		FROM fraud_logs
		WHERE timestamp >= $1
		ORDER BY timestamp ASC, id ASC
	`, since)
	if err != nil {
		return nil, fmt.Errorf("list fraud logs since: %w", err)
	}
	defer rows.Close()

	return scanFraudLogs(rows)
}

func scanFraudLogs(rows *sql.Rows) ([]model.FraudLog, error) {
	var out []model.FraudLog
	for rows.Next() {
		var l model.FraudLog
		var metadata []byte
		if err := rows.Scan(
			&l.ID, &l.IPAddress, &l.UserAgent, &l.DeviceFingerprint, &l.MerchantID,
			&l.CodeAttempted, &l.FailureReason, &l.Severity, &l.Blocked,
			&metadata, &l.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan fraud log: %w", err)
		}
		if len(metadata) > 0 {
			l.Metadata = json.RawMessage(metadata)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fraud logs: %w", err)
	}
	return out, nil
}

// nullableJSON maps an empty raw message to SQL NULL.
func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
