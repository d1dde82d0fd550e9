// Package httpapi exposes the public redemption surface: the guarded
// redeem endpoint, partner fraud webhooks, and liveness.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/giftwell/fraudguard/internal/alert"
	"github.com/giftwell/fraudguard/internal/domain/model"
	"github.com/giftwell/fraudguard/internal/store"
)

const maxRequestBodyBytes = 1 << 20 // 1 MB

// Evaluator is the redemption decision pipeline behind POST /redeem.
type Evaluator interface {
	Evaluate(ctx context.Context, req model.RedemptionRequest) model.Decision
}

// Pinger reports storage liveness for the health endpoint.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// AnalysisStatus reports clustering engine progress for health snapshots.
type AnalysisStatus interface {
	LastRunAt() time.Time
}

// Server is the public HTTP API.
type Server struct {
	guard       Evaluator
	fraudLogs   store.FraudLogRepository
	broadcaster *alert.Broadcaster
	db          Pinger
	analysis    AnalysisStatus
	logger      *slog.Logger
	nowFunc     func() time.Time
}

func NewServer(
	guard Evaluator,
	fraudLogs store.FraudLogRepository,
	broadcaster *alert.Broadcaster,
	db Pinger,
	logger *slog.Logger,
) *Server {
	return &Server{
		guard:       guard,
		fraudLogs:   fraudLogs,
		broadcaster: broadcaster,
		db:          db,
		logger:      logger.With("component", "httpapi"),
		nowFunc:     time.Now,
	}
}

// SetAnalysisStatus attaches the clustering engine so health responses
// include its last completed run.
func (s *Server) SetAnalysisStatus(a AnalysisStatus) {
	s.analysis = a
}

// Handler returns the HTTP handler for the public API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /redeem", s.handleRedeem)
	mux.HandleFunc("POST /webhooks/fraud-alert", s.handleFraudWebhook)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	return mux
}

type redeemRequest struct {
	Code        string `json:"code"`
	RedeemedBy  string `json:"redeemedBy"`
	MerchantID  string `json:"merchantId"`
	AmountCents int64  `json:"amountCents"`
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Code) == "" || strings.TrimSpace(req.RedeemedBy) == "" {
		http.Error(w, `{"error":"code and redeemedBy are required"}`, http.StatusBadRequest)
		return
	}

	headers := make(map[string]string, len(r.Header))
	for name := range r.Header {
		headers[name] = r.Header.Get(name)
	}

	decision := s.guard.Evaluate(r.Context(), model.RedemptionRequest{
		Code:        req.Code,
		RedeemedBy:  req.RedeemedBy,
		MerchantID:  req.MerchantID,
		AmountCents: req.AmountCents,
		RemoteAddr:  r.RemoteAddr,
		Headers:     headers,
	})

	if decision.Allowed {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"amount":  decision.AmountCents,
		})
		return
	}

	switch decision.Reason {
	case model.DenyRateLimited:
		retryAfter := int(decision.RetryAfter.Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"success":    false,
			"error":      "Too many redemption attempts, try again later",
			"retryAfter": retryAfter,
		})
	case model.DenyReplayedCode, model.DenyReservationConflict:
		writeJSON(w, http.StatusForbidden, map[string]any{
			"success": false,
			"error":   "This gift card has already been redeemed",
		})
	case model.DenyInvalidCode:
		writeJSON(w, http.StatusNotFound, map[string]any{
			"success": false,
			"error":   "Gift card not found",
		})
	default:
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"success": false,
			"error":   "Redemption temporarily unavailable, try again",
		})
	}
}

// fraudWebhookRequest is the payload partners push when their own systems
// flag an attempt against one of our codes.
type fraudWebhookRequest struct {
	GAN        string    `json:"gan"`
	IP         string    `json:"ip"`
	Reason     string    `json:"reason"`
	MerchantID string    `json:"merchantId"`
	Timestamp  time.Time `json:"timestamp"`
}

func (s *Server) handleFraudWebhook(w http.ResponseWriter, r *http.Request) {
	var req fraudWebhookRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.IP == "" {
		http.Error(w, `{"error":"ip is required"}`, http.StatusBadRequest)
		return
	}

	at := req.Timestamp
	if at.IsZero() {
		at = s.nowFunc().UTC()
	}

	// External reports land as unblocked suspicious-activity rows: the
	// clustering engine correlates them, nothing was denied on our side.
	row := &model.FraudLog{
		ID:            uuid.New(),
		IPAddress:     req.IP,
		FailureReason: model.ReasonSuspiciousActivity,
		Severity:      model.DefaultSeverityFor(model.ReasonSuspiciousActivity),
		Blocked:       false,
		Timestamp:     at,
	}
	if req.MerchantID != "" {
		m := req.MerchantID
		row.MerchantID = &m
	}
	if req.GAN != "" {
		c := model.RedactCode(req.GAN)
		row.CodeAttempted = &c
	}
	if req.Reason != "" {
		meta, err := json.Marshal(map[string]string{"reportedReason": req.Reason, "source": "webhook"})
		if err == nil {
			row.Metadata = meta
		}
	}

	if err := s.fraudLogs.Insert(r.Context(), row); err != nil {
		s.logger.Error("webhook fraud log write failed", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	s.broadcaster.Publish(r.Context(), alert.Event{Type: alert.EventFraudAlert, Payload: row})

	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	dbStatus := "ok"
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			s.logger.Warn("health check db ping failed", "error", err)
			status = "degraded"
			dbStatus = "unreachable"
			code = http.StatusServiceUnavailable
		}
	}

	resp := map[string]any{
		"status":           status,
		"db":               dbStatus,
		"alertSubscribers": s.broadcaster.SubscriberCount(),
	}
	if s.analysis != nil {
		if last := s.analysis.LastRunAt(); !last.IsZero() {
			resp["lastClusterRunAt"] = last.UTC()
		}
	}
	writeJSON(w, code, resp)
}

// writeJSON writes v as JSON with the given HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decodeJSONBody reads and decodes a JSON request body into v.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, `{"error":"invalid JSON body"}`, http.StatusBadRequest)
		return false
	}
	return true
}
