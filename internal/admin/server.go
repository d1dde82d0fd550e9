// Package admin exposes the operator API: fraud telemetry listings,
// statistics, cluster review, on-demand threat analysis, and the live
// alert stream. Callers are already authenticated upstream; this package
// only rate-limits and audits.
package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/giftwell/fraudguard/internal/alert"
	"github.com/giftwell/fraudguard/internal/cluster"
	"github.com/giftwell/fraudguard/internal/domain/model"
	"github.com/giftwell/fraudguard/internal/store"
)

// AnalysisTrigger runs an on-demand clustering pass.
type AnalysisTrigger interface {
	Trigger(ctx context.Context) (cluster.RunResult, error)
	LastRunAt() time.Time
}

// Server provides the HTTP admin API.
type Server struct {
	fraudLogs   store.FraudLogRepository
	clusters    store.ClusterRepository
	stats       store.StatsRepository
	analysis    AnalysisTrigger
	broadcaster *alert.Broadcaster
	logger      *slog.Logger
}

func NewServer(
	fraudLogs store.FraudLogRepository,
	clusters store.ClusterRepository,
	stats store.StatsRepository,
	analysis AnalysisTrigger,
	broadcaster *alert.Broadcaster,
	logger *slog.Logger,
) *Server {
	return &Server{
		fraudLogs:   fraudLogs,
		clusters:    clusters,
		stats:       stats,
		analysis:    analysis,
		broadcaster: broadcaster,
		logger:      logger.With("component", "admin"),
	}
}

// Handler returns the HTTP handler for the admin API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /admin/fraud-logs", s.handleListFraudLogs)
	mux.HandleFunc("GET /admin/fraud-statistics", s.handleFraudStatistics)
	mux.HandleFunc("GET /admin/fraud-clusters", s.handleListClusters)
	mux.HandleFunc("GET /admin/fraud-clusters/{id}", s.handleGetCluster)
	mux.HandleFunc("POST /admin/threat-analysis/trigger", s.handleTriggerAnalysis)
	mux.HandleFunc("GET /admin/alerts/stream", s.handleAlertStream)
	return mux
}

func (s *Server) handleListFraudLogs(w http.ResponseWriter, r *http.Request) {
	q := store.FraudLogQuery{
		Limit:  intQuery(r, "limit", 100),
		Offset: intQuery(r, "offset", 0),
	}
	if hours := intQuery(r, "sinceHours", 24); hours > 0 {
		q.Since = time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	}

	logs, err := s.fraudLogs.List(r.Context(), q)
	if err != nil {
		s.logger.Error("list fraud logs failed", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	if logs == nil {
		logs = []model.FraudLog{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs, "count": len(logs)})
}

func (s *Server) handleFraudStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.stats.FraudStatistics(r.Context(), intQuery(r, "hours", 24))
	if err != nil {
		s.logger.Error("fraud statistics failed", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleListClusters(w http.ResponseWriter, r *http.Request) {
	clusters, err := s.clusters.List(r.Context(), intQuery(r, "limit", 100))
	if err != nil {
		s.logger.Error("list clusters failed", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	if clusters == nil {
		clusters = []model.FraudCluster{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"clusters": clusters, "count": len(clusters)})
}

func (s *Server) handleGetCluster(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid cluster id"}`, http.StatusBadRequest)
		return
	}

	c, err := s.clusters.Get(r.Context(), id)
	if err != nil {
		s.logger.Error("get cluster failed", "error", err, "cluster_id", id)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	if c == nil {
		http.Error(w, `{"error":"cluster not found"}`, http.StatusNotFound)
		return
	}

	patterns, err := s.clusters.PatternsForCluster(r.Context(), id)
	if err != nil {
		s.logger.Error("get cluster patterns failed", "error", err, "cluster_id", id)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	if patterns == nil {
		patterns = []model.ClusterPattern{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"cluster": c, "patterns": patterns})
}

func (s *Server) handleTriggerAnalysis(w http.ResponseWriter, r *http.Request) {
	result, err := s.analysis.Trigger(r.Context())
	if err != nil {
		s.logger.Error("threat analysis trigger failed", "error", err)
		http.Error(w, `{"error":"threat analysis failed"}`, http.StatusInternalServerError)
		return
	}

	s.logger.Info("threat analysis triggered via admin API",
		"clusters_found", result.ClustersFound,
		"threats_analyzed", result.ThreatsAnalyzed,
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"result":    result,
		"lastRunAt": s.analysis.LastRunAt().UTC(),
	})
}

// handleAlertStream pushes fraud and cluster alerts to the session as
// server-sent events until the client disconnects.
func (s *Server) handleAlertStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, `{"error":"streaming unsupported"}`, http.StatusInternalServerError)
		return
	}

	events, cancel := s.broadcaster.Subscribe(64)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				s.logger.Warn("skipping unencodable alert event", "event", event.Type, "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, payload)
			flusher.Flush()
		}
	}
}

func intQuery(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// writeJSON writes v as JSON with the given HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
