package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/giftwell/fraudguard/internal/domain/model"
)

// ClusterRepo persists fraud clusters and their log assignments. Inserts
// and updates run in one transaction with the pattern rows so a cluster is
// never visible without its assignments.
type ClusterRepo struct {
	db *DB
}

func NewClusterRepo(db *DB) *ClusterRepo {
	return &ClusterRepo{db: db}
}

func (r *ClusterRepo) ListOpen(ctx context.Context, since time.Time) ([]model.FraudCluster, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, label, pattern_type, score, severity, threat_count, metadata, created_at, updated_at
		FROM fraud_clusters
		WHERE updated_at >= $1
		ORDER BY updated_at ASC, id ASC
	`, since)
	if err != nil {
		return nil, fmt.Errorf("list open clusters: %w", err)
	}
	defer rows.Close()

	return scanClusters(rows)
}

func (r *ClusterRepo) Get(ctx context.Context, id uuid.UUID) (*model.FraudCluster, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		SELECT id, label, pattern_type, score, severity, threat_count, metadata, created_at, updated_at
		FROM fraud_clusters
		WHERE id = $1
	`, id)

	var c model.FraudCluster
	var metadata []byte
	err := row.Scan(&c.ID, &c.Label, &c.PatternType, &c.Score, &c.Severity,
		&c.ThreatCount, &metadata, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cluster: %w", err)
	}
	if err := json.Unmarshal(metadata, &c.Metadata); err != nil {
		return nil, fmt.Errorf("decode cluster metadata: %w", err)
	}
	return &c, nil
}

func (r *ClusterRepo) List(ctx context.Context, limit int) ([]model.FraudCluster, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, label, pattern_type, score, severity, threat_count, metadata, created_at, updated_at
		FROM fraud_clusters
		ORDER BY score DESC, updated_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list clusters: %w", err)
	}
	defer rows.Close()

	return scanClusters(rows)
}

func (r *ClusterRepo) Insert(ctx context.Context, c *model.FraudCluster, patterns []model.ClusterPattern) error {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	metadata, err := json.Marshal(c.Metadata)
	if err != nil {
		return fmt.Errorf("encode cluster metadata: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert cluster: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO fraud_clusters
			(id, label, pattern_type, score, severity, threat_count, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, c.ID, c.Label, c.PatternType, c.Score, c.Severity, c.ThreatCount,
		metadata, c.CreatedAt, c.UpdatedAt); err != nil {
		return fmt.Errorf("insert cluster: %w", err)
	}

	if err := insertPatternsTx(ctx, tx, patterns); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert cluster: %w", err)
	}
	return nil
}

func (r *ClusterRepo) Update(ctx context.Context, c *model.FraudCluster, newPatterns []model.ClusterPattern) error {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	metadata, err := json.Marshal(c.Metadata)
	if err != nil {
		return fmt.Errorf("encode cluster metadata: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update cluster: %w", err)
	}
	defer tx.Rollback()

	// GREATEST enforces monotonicity at the storage layer too; a stale
	// engine can never lower a live cluster's score or severity.
	if _, err := tx.ExecContext(ctx, `
		UPDATE fraud_clusters SET
			score = GREATEST(score, $2),
			severity = GREATEST(severity, $3),
			threat_count = GREATEST(threat_count, $4),
			metadata = $5,
			updated_at = $6
		WHERE id = $1
	`, c.ID, c.Score, c.Severity, c.ThreatCount, metadata, c.UpdatedAt); err != nil {
		return fmt.Errorf("update cluster: %w", err)
	}

	if err := insertPatternsTx(ctx, tx, newPatterns); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update cluster: %w", err)
	}
	return nil
}

func (r *ClusterRepo) PatternsForCluster(ctx context.Context, clusterID uuid.UUID) ([]model.ClusterPattern, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, cluster_id, fraud_log_id, similarity, created_at
		FROM cluster_patterns
		WHERE cluster_id = $1
		ORDER BY created_at ASC, id ASC
	`, clusterID)
	if err != nil {
		return nil, fmt.Errorf("list cluster patterns: %w", err)
	}
	defer rows.Close()

	var out []model.ClusterPattern
	for rows.Next() {
		var p model.ClusterPattern
		if err := rows.Scan(&p.ID, &p.ClusterID, &p.FraudLogID, &p.Similarity, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan cluster pattern: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cluster patterns: %w", err)
	}
	return out, nil
}

func (r *ClusterRepo) AssignedLogIDs(ctx context.Context, since time.Time) (map[uuid.UUID]bool, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT cp.fraud_log_id
		FROM cluster_patterns cp
		JOIN fraud_logs fl ON fl.id = cp.fraud_log_id
		WHERE fl.timestamp >= $1
	`, since)
	if err != nil {
		return nil, fmt.Errorf("list assigned log ids: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]bool)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan assigned log id: %w", err)
		}
		out[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assigned log ids: %w", err)
	}
	return out, nil
}

func insertPatternsTx(ctx context.Context, tx *sql.Tx, patterns []model.ClusterPattern) error {
	for _, p := range patterns {
		// ON CONFLICT keeps assignments immutable: a log stays with its
		// first cluster even if a later run tries to reassign it.
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO cluster_patterns (id, cluster_id, fraud_log_id, similarity, created_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (fraud_log_id) DO NOTHING
		`, p.ID, p.ClusterID, p.FraudLogID, p.Similarity, p.CreatedAt); err != nil {
			return fmt.Errorf("insert cluster pattern: %w", err)
		}
	}
	return nil
}

func scanClusters(rows *sql.Rows) ([]model.FraudCluster, error) {
	var out []model.FraudCluster
	for rows.Next() {
		var c model.FraudCluster
		var metadata []byte
		if err := rows.Scan(&c.ID, &c.Label, &c.PatternType, &c.Score, &c.Severity,
			&c.ThreatCount, &metadata, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan cluster: %w", err)
		}
		if err := json.Unmarshal(metadata, &c.Metadata); err != nil {
			return nil, fmt.Errorf("decode cluster metadata: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clusters: %w", err)
	}
	return out, nil
}
