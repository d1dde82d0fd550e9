package postgres

import (
	"context"
	"fmt"

	"github.com/giftwell/fraudguard/internal/store"
)

// StatsRepo computes fraud statistics aggregates in SQL so the admin
// surface never pulls raw rows over the wire.
type StatsRepo struct {
	db *DB
}

func NewStatsRepo(db *DB) *StatsRepo {
	return &StatsRepo{db: db}
}

func (r *StatsRepo) FraudStatistics(ctx context.Context, recentHours int) (*store.FraudStatistics, error) {
	ctx, cancel := withTimeout(ctx, LongQueryTimeout)
	defer cancel()

	if recentHours <= 0 || recentHours > 168 {
		recentHours = 24
	}

	stats := &store.FraudStatistics{}

	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE blocked)
		FROM fraud_logs
	`).Scan(&stats.Total, &stats.Blocked); err != nil {
		return nil, fmt.Errorf("count fraud logs: %w", err)
	}
	if stats.Total > 0 {
		stats.BlockRate = float64(stats.Blocked) / float64(stats.Total)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT failure_reason, COUNT(*) AS cnt
		FROM fraud_logs
		GROUP BY failure_reason
		ORDER BY cnt DESC, failure_reason ASC
		LIMIT 10
	`)
	if err != nil {
		return nil, fmt.Errorf("top threat types: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var t store.ThreatTypeCount
		if err := rows.Scan(&t.FailureReason, &t.Count); err != nil {
			return nil, fmt.Errorf("scan threat type: %w", err)
		}
		stats.TopThreatTypes = append(stats.TopThreatTypes, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate threat types: %w", err)
	}

	hourRows, err := r.db.QueryContext(ctx, `
		SELECT date_trunc('hour', timestamp) AS hour,
		       COUNT(*),
		       COUNT(*) FILTER (WHERE blocked)
		FROM fraud_logs
		WHERE timestamp >= now() - make_interval(hours => $1)
		GROUP BY hour
		ORDER BY hour ASC
	`, recentHours)
	if err != nil {
		return nil, fmt.Errorf("hourly buckets: %w", err)
	}
	defer hourRows.Close()
	for hourRows.Next() {
		var b store.HourBucket
		if err := hourRows.Scan(&b.Hour, &b.Total, &b.Blocked); err != nil {
			return nil, fmt.Errorf("scan hour bucket: %w", err)
		}
		stats.RecentHours = append(stats.RecentHours, b)
	}
	if err := hourRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hour buckets: %w", err)
	}

	return stats, nil
}
