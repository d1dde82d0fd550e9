package store

import (
	"context"
	"time"

	"github.com/giftwell/fraudguard/internal/domain/model"
	"github.com/google/uuid"
)

//go:generate mockgen -source=repository.go -destination=mocks/repository_mock.go -package=mocks

// FraudLogQuery narrows a fraud log listing.
type FraudLogQuery struct {
	Since  time.Time
	Limit  int
	Offset int
}

// FraudLogRepository provides append-only access to fraud telemetry.
type FraudLogRepository interface {
	Insert(ctx context.Context, log *model.FraudLog) error
	List(ctx context.Context, q FraudLogQuery) ([]model.FraudLog, error)
	// ListSince returns rows with timestamp >= since, ordered by
	// (timestamp, id) ascending so clustering input is deterministic.
	ListSince(ctx context.Context, since time.Time) ([]model.FraudLog, error)
}

// ClusterRepository persists clusters and their log assignments. Written
// only by the threat clustering engine.
type ClusterRepository interface {
	ListOpen(ctx context.Context, since time.Time) ([]model.FraudCluster, error)
	Get(ctx context.Context, id uuid.UUID) (*model.FraudCluster, error)
	List(ctx context.Context, limit int) ([]model.FraudCluster, error)
	Insert(ctx context.Context, c *model.FraudCluster, patterns []model.ClusterPattern) error
	// Update merges new assignments into an existing cluster. Score and
	// threat count are only ever raised by the engine.
	Update(ctx context.Context, c *model.FraudCluster, newPatterns []model.ClusterPattern) error
	PatternsForCluster(ctx context.Context, clusterID uuid.UUID) ([]model.ClusterPattern, error)
	// AssignedLogIDs returns the fraud log IDs already assigned to any
	// cluster, so repeated runs never double-assign a row.
	AssignedLogIDs(ctx context.Context, since time.Time) (map[uuid.UUID]bool, error)
}

// RedeemedCodeRepository is the durable redeemed-codes set owned by the
// replay guard. A row here is a permanent denial record for that code.
type RedeemedCodeRepository interface {
	IsRedeemed(ctx context.Context, code string) (bool, error)
	MarkRedeemed(ctx context.Context, code string, redeemedBy string, redeemedAt time.Time) error
}

// ThreatTypeCount is one entry of the top-threat-types aggregate.
type ThreatTypeCount struct {
	FailureReason model.FailureReason `json:"failureReason"`
	Count         int                 `json:"count"`
}

// HourBucket is one hour of fraud event volume.
type HourBucket struct {
	Hour    time.Time `json:"hour"`
	Total   int       `json:"total"`
	Blocked int       `json:"blocked"`
}

// FraudStatistics aggregates fraud telemetry for the admin surface.
type FraudStatistics struct {
	Total          int               `json:"total"`
	Blocked        int               `json:"blocked"`
	BlockRate      float64           `json:"blockRate"`
	TopThreatTypes []ThreatTypeCount `json:"topThreatTypes"`
	RecentHours    []HourBucket      `json:"recentHours"`
}

// StatsRepository computes fraud statistics aggregates.
type StatsRepository interface {
	FraudStatistics(ctx context.Context, recentHours int) (*FraudStatistics, error)
}
