package admin

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/giftwell/fraudguard/internal/alert"
	"github.com/giftwell/fraudguard/internal/cluster"
	"github.com/giftwell/fraudguard/internal/domain/model"
	"github.com/giftwell/fraudguard/internal/store"
	"github.com/giftwell/fraudguard/internal/store/mocks"
)

type stubAnalysis struct {
	result    cluster.RunResult
	err       error
	lastRunAt time.Time
}

func (s *stubAnalysis) Trigger(context.Context) (cluster.RunResult, error) {
	return s.result, s.err
}

func (s *stubAnalysis) LastRunAt() time.Time { return s.lastRunAt }

type testFixture struct {
	server    *Server
	fraudLogs *mocks.MockFraudLogRepository
	clusters  *mocks.MockClusterRepository
	stats     *mocks.MockStatsRepository
	analysis  *stubAnalysis
}

func newFixture(t *testing.T) *testFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	f := &testFixture{
		fraudLogs: mocks.NewMockFraudLogRepository(ctrl),
		clusters:  mocks.NewMockClusterRepository(ctrl),
		stats:     mocks.NewMockStatsRepository(ctrl),
		analysis:  &stubAnalysis{},
	}
	f.server = NewServer(f.fraudLogs, f.clusters, f.stats, f.analysis, alert.NewBroadcaster(logger), logger)
	return f
}

func TestHandleListFraudLogs(t *testing.T) {
	f := newFixture(t)
	f.fraudLogs.EXPECT().List(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, q store.FraudLogQuery) ([]model.FraudLog, error) {
			assert.Equal(t, 5, q.Limit)
			return []model.FraudLog{
				{ID: uuid.New(), IPAddress: "203.0.113.1", FailureReason: model.ReasonInvalidCode},
			}, nil
		})

	req := httptest.NewRequest(http.MethodGet, "/admin/fraud-logs?limit=5", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Logs  []model.FraudLog `json:"logs"`
		Count int              `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "203.0.113.1", resp.Logs[0].IPAddress)
}

func TestHandleListFraudLogs_EmptyIsArray(t *testing.T) {
	f := newFixture(t)
	f.fraudLogs.EXPECT().List(gomock.Any(), gomock.Any()).Return(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/fraud-logs", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"logs":[]`)
}

func TestHandleFraudStatistics(t *testing.T) {
	f := newFixture(t)
	f.stats.EXPECT().FraudStatistics(gomock.Any(), 48).Return(&store.FraudStatistics{
		Total: 10, Blocked: 7, BlockRate: 0.7,
		TopThreatTypes: []store.ThreatTypeCount{{FailureReason: model.ReasonReusedCode, Count: 4}},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/fraud-statistics?hours=48", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp store.FraudStatistics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 10, resp.Total)
	assert.InDelta(t, 0.7, resp.BlockRate, 0.001)
}

func TestHandleFraudStatistics_Error(t *testing.T) {
	f := newFixture(t)
	f.stats.EXPECT().FraudStatistics(gomock.Any(), gomock.Any()).Return(nil, errors.New("db down"))

	req := httptest.NewRequest(http.MethodGet, "/admin/fraud-statistics", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleGetCluster(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()
	f.clusters.EXPECT().Get(gomock.Any(), id).Return(&model.FraudCluster{
		ID: id, Label: "IP-based threat cluster 203.0.113.9",
		PatternType: model.PatternIPBased, ThreatCount: 3,
	}, nil)
	f.clusters.EXPECT().PatternsForCluster(gomock.Any(), id).Return([]model.ClusterPattern{
		{ID: uuid.New(), ClusterID: id, FraudLogID: uuid.New(), Similarity: 1.0},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/fraud-clusters/"+id.String(), nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Cluster  model.FraudCluster     `json:"cluster"`
		Patterns []model.ClusterPattern `json:"patterns"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, id, resp.Cluster.ID)
	assert.Len(t, resp.Patterns, 1)
}

func TestHandleGetCluster_NotFound(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()
	f.clusters.EXPECT().Get(gomock.Any(), id).Return(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/fraud-clusters/"+id.String(), nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleGetCluster_BadID(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/fraud-clusters/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleTriggerAnalysis(t *testing.T) {
	f := newFixture(t)
	f.analysis.result = cluster.RunResult{ClustersFound: 2, ThreatsAnalyzed: 9}
	f.analysis.lastRunAt = time.Now()

	req := httptest.NewRequest(http.MethodPost, "/admin/threat-analysis/trigger", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Result cluster.RunResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Result.ClustersFound)
	assert.Equal(t, 9, resp.Result.ThreatsAnalyzed)
}

func TestHandleTriggerAnalysis_Error(t *testing.T) {
	f := newFixture(t)
	f.analysis.err = errors.New("already running")

	req := httptest.NewRequest(http.MethodPost, "/admin/threat-analysis/trigger", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleAlertStream_DeliversEvents(t *testing.T) {
	ctrl := gomock.NewController(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	broadcaster := alert.NewBroadcaster(logger)
	srv := NewServer(
		mocks.NewMockFraudLogRepository(ctrl),
		mocks.NewMockClusterRepository(ctrl),
		mocks.NewMockStatsRepository(ctrl),
		&stubAnalysis{},
		broadcaster,
		logger,
	)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/admin/alerts/stream", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// Wait for the subscription to register before publishing.
	require.Eventually(t, func() bool {
		return broadcaster.SubscriberCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	broadcaster.Publish(context.Background(), alert.Event{
		Type:    alert.EventFraudAlert,
		Payload: map[string]any{"ip": "203.0.113.1"},
	})

	reader := bufio.NewReader(resp.Body)
	deadline := time.Now().Add(3 * time.Second)
	var sawEvent bool
	for time.Now().Before(deadline) {
		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		if strings.HasPrefix(line, "event: fraud-alert") {
			sawEvent = true
			break
		}
	}
	assert.True(t, sawEvent, "expected a fraud-alert SSE frame")
	cancel()
}

func TestRateLimit_TriggerBudgetTighterThanReads(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rl := NewRateLimitMiddleware(logger, 60, 10)
	defer rl.Stop()

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := rl.Wrap(ok)

	trigger := func() int {
		req := httptest.NewRequest(http.MethodPost, "/admin/threat-analysis/trigger", nil)
		req.RemoteAddr = "203.0.113.1:40000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, trigger())
	assert.Equal(t, http.StatusTooManyRequests, trigger())

	// Reads from the same IP still pass on the default budget.
	req := httptest.NewRequest(http.MethodGet, "/admin/fraud-logs", nil)
	req.RemoteAddr = "203.0.113.1:40000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit_PerIPIsolation(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rl := NewRateLimitMiddleware(logger, 60, 10)
	defer rl.Stop()

	h := rl.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	post := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/admin/threat-analysis/trigger", nil)
		req.RemoteAddr = ip + ":40000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, post("203.0.113.1"))
	require.Equal(t, http.StatusTooManyRequests, post("203.0.113.1"))
	assert.Equal(t, http.StatusOK, post("203.0.113.2"))
}

func TestRateLimit_StaleEviction(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rl := NewRateLimitMiddleware(logger, 60, 10)
	defer rl.Stop()

	now := time.Now()
	rl.nowFunc = func() time.Time { return now }

	h := rl.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/admin/fraud-logs", nil)
	req.RemoteAddr = "203.0.113.1:40000"
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, 1, rl.LimiterCount())

	now = now.Add(staleLimiterTTL + time.Minute)
	rl.evictStale()
	assert.Equal(t, 0, rl.LimiterCount())
}
