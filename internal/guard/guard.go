// Package guard composes the fingerprint extractor, rate limit store, and
// replay guard into one ordered redemption decision pipeline. Checks run
// cheapest-first, and the replay check runs last so it can never be
// bypassed by rate-limit timing.
package guard

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/giftwell/fraudguard/internal/alert"
	"github.com/giftwell/fraudguard/internal/domain/model"
	"github.com/giftwell/fraudguard/internal/fingerprint"
	"github.com/giftwell/fraudguard/internal/giftcard"
	"github.com/giftwell/fraudguard/internal/metrics"
	"github.com/giftwell/fraudguard/internal/ratelimit"
	"github.com/giftwell/fraudguard/internal/replay"
	"github.com/giftwell/fraudguard/internal/store"
)

// Policies holds the per-scope limits the guard enforces. All values are
// configuration-driven defaults, not contractual constants.
type Policies struct {
	IPLimit  int
	IPWindow time.Duration

	DeviceLimit  int
	DeviceWindow time.Duration

	DeviceFailureLimit  int
	DeviceFailureWindow time.Duration

	MerchantLimit  int
	MerchantWindow time.Duration

	RedeemTimeout time.Duration
}

// DefaultPolicies mirrors the shipped defaults; see config for overrides.
func DefaultPolicies() Policies {
	return Policies{
		IPLimit:             3,
		IPWindow:            time.Minute,
		DeviceLimit:         15,
		DeviceWindow:        10 * time.Minute,
		DeviceFailureLimit:  5,
		DeviceFailureWindow: 10 * time.Minute,
		MerchantLimit:       10,
		MerchantWindow:      5 * time.Minute,
		RedeemTimeout:       5 * time.Second,
	}
}

// Guard is the redemption decision orchestrator. Safe for concurrent use;
// all hot-path state lives in the rate limit store and replay guard.
type Guard struct {
	limits      ratelimit.Store
	replayGuard *replay.Guard
	redeemer    giftcard.Redeemer
	fraudLogs   store.FraudLogRepository
	broadcaster *alert.Broadcaster
	policies    Policies
	logger      *slog.Logger
	nowFunc     func() time.Time
}

// New creates a redemption guard.
func New(
	limits ratelimit.Store,
	replayGuard *replay.Guard,
	redeemer giftcard.Redeemer,
	fraudLogs store.FraudLogRepository,
	broadcaster *alert.Broadcaster,
	policies Policies,
	logger *slog.Logger,
) *Guard {
	return &Guard{
		limits:      limits,
		replayGuard: replayGuard,
		redeemer:    redeemer,
		fraudLogs:   fraudLogs,
		broadcaster: broadcaster,
		policies:    policies,
		logger:      logger.With("component", "redemption_guard"),
		nowFunc:     time.Now,
	}
}

// Evaluate runs the full pipeline for one redemption attempt. Every denial
// writes a fraud log row before returning, so the record survives even if
// the response never reaches the caller.
func (g *Guard) Evaluate(ctx context.Context, req model.RedemptionRequest) model.Decision {
	start := g.nowFunc()
	ctx, span := otel.Tracer("fraudguard/guard").Start(ctx, "guard.Evaluate")
	defer span.End()

	fp := fingerprint.Extract(req.RemoteAddr, req.Headers)
	span.SetAttributes(attribute.Bool("fingerprint.degraded", fp.Degraded))

	decision := g.evaluate(ctx, req, fp)
	decision.Fingerprint = fp

	outcome := "allow"
	reason := ""
	if !decision.Allowed {
		outcome = "deny"
		reason = string(decision.Reason)
	}
	metrics.GuardDecisionsTotal.WithLabelValues(outcome, reason).Inc()
	metrics.GuardEvaluateLatency.WithLabelValues(outcome).Observe(g.nowFunc().Sub(start).Seconds())
	return decision
}

func (g *Guard) evaluate(ctx context.Context, req model.RedemptionRequest, fp model.Fingerprint) model.Decision {
	p := g.policies

	// IP rate limit.
	if res := g.limits.CheckAndIncrement(ratelimit.ScopeIP, fp.IP, p.IPLimit, p.IPWindow); !res.Allowed {
		metrics.RateLimitDenialsTotal.WithLabelValues(string(ratelimit.ScopeIP)).Inc()
		g.recordFraud(ctx, req, fp, model.ReasonIPRateLimit, true)
		return denyRateLimited(res.RetryAfter)
	}

	// Device failure velocity: a device that keeps failing is denied even
	// when no single attempt limit was breached.
	if g.limits.Count(ratelimit.ScopeDeviceFailure, fp.DeviceID, p.DeviceFailureWindow) >= p.DeviceFailureLimit {
		metrics.RateLimitDenialsTotal.WithLabelValues(string(ratelimit.ScopeDeviceFailure)).Inc()
		g.recordFraud(ctx, req, fp, model.ReasonSuspiciousActivity, true)
		return denyRateLimited(p.DeviceFailureWindow)
	}

	// Device rate limit.
	if res := g.limits.CheckAndIncrement(ratelimit.ScopeDevice, fp.DeviceID, p.DeviceLimit, p.DeviceWindow); !res.Allowed {
		metrics.RateLimitDenialsTotal.WithLabelValues(string(ratelimit.ScopeDevice)).Inc()
		g.recordFraud(ctx, req, fp, model.ReasonDeviceRateLimit, true)
		return denyRateLimited(res.RetryAfter)
	}

	// Merchant rate limit, only when the caller presents a merchant.
	if req.MerchantID != "" {
		if res := g.limits.CheckAndIncrement(ratelimit.ScopeMerchant, req.MerchantID, p.MerchantLimit, p.MerchantWindow); !res.Allowed {
			metrics.RateLimitDenialsTotal.WithLabelValues(string(ratelimit.ScopeMerchant)).Inc()
			g.recordFraud(ctx, req, fp, model.ReasonMerchantRateLimit, true)
			return denyRateLimited(res.RetryAfter)
		}
	}

	// Replay reservation.
	if err := g.replayGuard.Reserve(ctx, req.Code); err != nil {
		switch {
		case errors.Is(err, replay.ErrAlreadyRedeemed):
			metrics.ReplayConflictsTotal.WithLabelValues("reused_code").Inc()
			g.recordFailure(ctx, req, fp)
			g.recordFraud(ctx, req, fp, model.ReasonReusedCode, true)
			return model.Decision{Reason: model.DenyReplayedCode}
		case errors.Is(err, replay.ErrReservationHeld):
			metrics.ReplayConflictsTotal.WithLabelValues("reservation_conflict").Inc()
			g.recordFraud(ctx, req, fp, model.ReasonReusedCode, true)
			return model.Decision{Reason: model.DenyReservationConflict}
		default:
			// Durable store unreachable: fail closed without polluting
			// fraud telemetry, this is an operational failure.
			g.logger.Error("replay check unavailable, denying", "error", err)
			return model.Decision{Reason: model.DenyUpstreamUnavailable}
		}
	}

	// Hand off to the external gift-card store.
	redeemCtx, cancel := context.WithTimeout(ctx, p.RedeemTimeout)
	defer cancel()

	result, err := g.redeemer.Redeem(redeemCtx, req.Code, req.RedeemedBy, req.AmountCents)
	if err != nil {
		g.replayGuard.Release(req.Code)
		g.logger.Error("redemption delegate failed, denying", "error", err)
		return model.Decision{Reason: model.DenyUpstreamUnavailable}
	}

	switch result.Status {
	case giftcard.StatusUnknownCode:
		g.replayGuard.Release(req.Code)
		g.recordFailure(ctx, req, fp)
		g.recordFraud(ctx, req, fp, model.ReasonInvalidCode, true)
		return model.Decision{Reason: model.DenyInvalidCode}

	case giftcard.StatusAlreadyRedeemed:
		g.replayGuard.Release(req.Code)
		metrics.ReplayConflictsTotal.WithLabelValues("reused_code").Inc()
		g.recordFailure(ctx, req, fp)
		g.recordFraud(ctx, req, fp, model.ReasonReusedCode, true)
		return model.Decision{Reason: model.DenyReplayedCode}
	}

	// Success: convert the reservation into a permanent denial record.
	if err := g.replayGuard.Commit(ctx, req.Code, req.RedeemedBy); err != nil {
		// The external redemption already happened; the reservation stays
		// in place until its TTL and the commit is retried by the next
		// attempt hitting the durable store.
		g.logger.Error("replay commit failed after successful redemption",
			"error", err)
	}

	g.broadcaster.Publish(ctx, alert.Event{
		Type: alert.EventTransactionFeed,
		Payload: map[string]any{
			"code":       model.RedactCode(req.Code),
			"redeemedBy": req.RedeemedBy,
			"merchantId": req.MerchantID,
			"amount":     result.AmountCents,
			"ip":         fp.IP,
		},
	})
	return model.Decision{Allowed: true, AmountCents: result.AmountCents}
}

// recordFailure bumps the device failure-velocity counter. Crossing the
// threshold exactly emits a SUSPICIOUS_ACTIVITY row even though the
// attempt itself was denied for its own reason.
func (g *Guard) recordFailure(ctx context.Context, req model.RedemptionRequest, fp model.Fingerprint) {
	res := g.limits.CheckAndIncrement(
		ratelimit.ScopeDeviceFailure, fp.DeviceID,
		g.policies.DeviceFailureLimit, g.policies.DeviceFailureWindow,
	)
	if res.Count == g.policies.DeviceFailureLimit {
		g.recordFraud(ctx, req, fp, model.ReasonSuspiciousActivity, false)
	}
}

// recordFraud writes the fraud log row synchronously and publishes the
// real-time alert. A failed insert is logged but never masks the denial.
func (g *Guard) recordFraud(ctx context.Context, req model.RedemptionRequest, fp model.Fingerprint, reason model.FailureReason, blocked bool) {
	row := &model.FraudLog{
		ID:                uuid.New(),
		IPAddress:         fp.IP,
		UserAgent:         fp.UserAgent,
		DeviceFingerprint: fp.DeviceID,
		FailureReason:     reason,
		Severity:          model.DefaultSeverityFor(reason),
		Blocked:           blocked,
		Timestamp:         g.nowFunc().UTC(),
	}
	if req.MerchantID != "" {
		m := req.MerchantID
		row.MerchantID = &m
	}
	if req.Code != "" {
		c := model.RedactCode(req.Code)
		row.CodeAttempted = &c
	}

	if err := g.fraudLogs.Insert(ctx, row); err != nil {
		g.logger.Error("fraud log write failed",
			"reason", reason, "ip", fp.IP, "error", err)
	} else {
		metrics.FraudLogsWrittenTotal.WithLabelValues(string(reason)).Inc()
	}

	g.broadcaster.Publish(ctx, alert.Event{Type: alert.EventFraudAlert, Payload: row})
}

func denyRateLimited(retryAfter time.Duration) model.Decision {
	return model.Decision{Reason: model.DenyRateLimited, RetryAfter: retryAfter}
}
