package model

import "time"

// Fingerprint is the identity tuple used to key rate limits. A degraded
// fingerprint (missing device header, synthesized device ID) is still
// usable; it just carries less entropy.
type Fingerprint struct {
	IP            string
	DeviceID      string
	UserAgentHash string
	UserAgent     string
	Degraded      bool
}

// RedemptionRequest is the core's view of one inbound redemption attempt.
// Transport framing (HTTP body parsing, auth) happens outside the guard.
type RedemptionRequest struct {
	Code       string
	RedeemedBy string
	MerchantID string
	AmountCents int64

	// Transport metadata consumed by the fingerprint extractor.
	RemoteAddr string
	Headers    map[string]string
}

// DenyReason is the machine-readable denial taxonomy returned to callers.
type DenyReason string

const (
	DenyRateLimited         DenyReason = "RATE_LIMITED"
	DenyReplayedCode        DenyReason = "REPLAYED_CODE"
	DenyInvalidCode         DenyReason = "INVALID_CODE"
	DenyReservationConflict DenyReason = "RESERVATION_CONFLICT"
	DenyUpstreamUnavailable DenyReason = "UPSTREAM_UNAVAILABLE"
)

// Decision is the outcome of a full guard pipeline evaluation.
type Decision struct {
	Allowed     bool
	Reason      DenyReason
	RetryAfter  time.Duration
	AmountCents int64
	Fingerprint Fingerprint
}
