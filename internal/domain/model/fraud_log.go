package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// FailureReason classifies why a redemption attempt was denied or flagged.
type FailureReason string

const (
	ReasonReusedCode         FailureReason = "REUSED_CODE"
	ReasonInvalidCode        FailureReason = "INVALID_CODE"
	ReasonIPRateLimit        FailureReason = "IP_RATE_LIMIT"
	ReasonDeviceRateLimit    FailureReason = "DEVICE_RATE_LIMIT"
	ReasonMerchantRateLimit  FailureReason = "MERCHANT_RATE_LIMIT"
	ReasonSuspiciousActivity FailureReason = "SUSPICIOUS_ACTIVITY"
)

// Valid reports whether r is a known failure reason.
func (r FailureReason) Valid() bool {
	switch r {
	case ReasonReusedCode, ReasonInvalidCode, ReasonIPRateLimit,
		ReasonDeviceRateLimit, ReasonMerchantRateLimit, ReasonSuspiciousActivity:
		return true
	}
	return false
}

// Severity is the coarse risk label attached to a single fraud log row.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// DefaultSeverityFor maps a failure reason to its baseline severity.
// Replay and suspicious-activity events rank higher than plain rate limits.
func DefaultSeverityFor(reason FailureReason) Severity {
	switch reason {
	case ReasonReusedCode, ReasonSuspiciousActivity:
		return SeverityHigh
	case ReasonMerchantRateLimit, ReasonDeviceRateLimit:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// FraudLog is one append-only row per suspicious or denied redemption event.
// Rows are never updated after insert; the clustering engine and the admin
// surface only ever read them.
type FraudLog struct {
	ID                uuid.UUID       `db:"id" json:"id"`
	IPAddress         string          `db:"ip_address" json:"ipAddress"`
	UserAgent         string          `db:"user_agent" json:"userAgent"`
	DeviceFingerprint string          `db:"device_fingerprint" json:"deviceFingerprint"`
	MerchantID        *string         `db:"merchant_id" json:"merchantId,omitempty"`
	CodeAttempted     *string         `db:"code_attempted" json:"codeAttempted,omitempty"`
	FailureReason     FailureReason   `db:"failure_reason" json:"failureReason"`
	Severity          Severity        `db:"severity" json:"severity"`
	Blocked           bool            `db:"blocked" json:"blocked"`
	Metadata          json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	Timestamp         time.Time       `db:"timestamp" json:"timestamp"`
}

// Validate checks the fields the clustering engine depends on. A row that
// fails validation is skipped by a clustering run, never fatal.
func (f *FraudLog) Validate() error {
	if f.ID == uuid.Nil {
		return fmt.Errorf("fraud log: missing id")
	}
	if f.IPAddress == "" {
		return fmt.Errorf("fraud log %s: missing ip address", f.ID)
	}
	if !f.FailureReason.Valid() {
		return fmt.Errorf("fraud log %s: unknown failure reason %q", f.ID, f.FailureReason)
	}
	if f.Timestamp.IsZero() {
		return fmt.Errorf("fraud log %s: zero timestamp", f.ID)
	}
	return nil
}

// RedactCode returns a partial form of a redemption code safe to persist
// alongside fraud telemetry. Only the first four characters survive.
func RedactCode(code string) string {
	if code == "" {
		return ""
	}
	if len(code) <= 4 {
		return code + "****"
	}
	return code[:4] + "****"
}
