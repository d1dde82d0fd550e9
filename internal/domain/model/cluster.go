package model

import (
	"time"

	"github.com/google/uuid"
)

// PatternType identifies which grouping pass produced a cluster.
type PatternType string

const (
	PatternIPBased           PatternType = "ip_based"
	PatternDeviceFingerprint PatternType = "device_fingerprint"
	PatternVelocity          PatternType = "velocity"
	PatternUserAgent         PatternType = "user_agent"
)

// ClusterMetadata summarises the identity spread of a cluster.
type ClusterMetadata struct {
	UniqueIPs     int      `json:"uniqueIPs"`
	UniqueDevices int      `json:"uniqueDevices"`
	TimeSpanMs    int64    `json:"timeSpanMs"`
	ThreatTypes   []string `json:"threatTypes"`
}

// FraudCluster is a named grouping of related fraud log rows, written only
// by the threat clustering engine. Score and ThreatCount are monotonic
// non-decreasing while the cluster remains open.
type FraudCluster struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	Label       string          `db:"label" json:"label"`
	PatternType PatternType     `db:"pattern_type" json:"patternType"`
	Score       float64         `db:"score" json:"score"`
	Severity    int             `db:"severity" json:"severity"`
	ThreatCount int             `db:"threat_count" json:"threatCount"`
	Metadata    ClusterMetadata `db:"metadata" json:"metadata"`
	CreatedAt   time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updatedAt"`
}

// ClusterPattern links one fraud log row to the cluster it was assigned to.
// Immutable after insert; at most one assignment per log per clustering run.
type ClusterPattern struct {
	ID         uuid.UUID `db:"id" json:"id"`
	ClusterID  uuid.UUID `db:"cluster_id" json:"clusterId"`
	FraudLogID uuid.UUID `db:"fraud_log_id" json:"fraudLogId"`
	Similarity float64   `db:"similarity" json:"similarity"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}
