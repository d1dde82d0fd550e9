package cluster

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giftwell/fraudguard/internal/domain/model"
	"github.com/giftwell/fraudguard/internal/store"
)

// fakeFraudLogRepo serves a fixed set of rows.
type fakeFraudLogRepo struct {
	rows []model.FraudLog
}

func (f *fakeFraudLogRepo) Insert(_ context.Context, row *model.FraudLog) error {
	f.rows = append(f.rows, *row)
	return nil
}

func (f *fakeFraudLogRepo) List(_ context.Context, q store.FraudLogQuery) ([]model.FraudLog, error) {
	return f.rows, nil
}

func (f *fakeFraudLogRepo) ListSince(_ context.Context, since time.Time) ([]model.FraudLog, error) {
	var out []model.FraudLog
	for _, r := range f.rows {
		if !r.Timestamp.Before(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

// fakeClusterRepo is an in-memory ClusterRepository.
type fakeClusterRepo struct {
	mu       sync.Mutex
	clusters map[uuid.UUID]model.FraudCluster
	patterns map[uuid.UUID][]model.ClusterPattern
}

func newFakeClusterRepo() *fakeClusterRepo {
	return &fakeClusterRepo{
		clusters: make(map[uuid.UUID]model.FraudCluster),
		patterns: make(map[uuid.UUID][]model.ClusterPattern),
	}
}

func (f *fakeClusterRepo) ListOpen(_ context.Context, since time.Time) ([]model.FraudCluster, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.FraudCluster
	for _, c := range f.clusters {
		if !c.UpdatedAt.Before(since) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeClusterRepo) Get(_ context.Context, id uuid.UUID) (*model.FraudCluster, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.clusters[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (f *fakeClusterRepo) List(_ context.Context, limit int) ([]model.FraudCluster, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.FraudCluster
	for _, c := range f.clusters {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeClusterRepo) Insert(_ context.Context, c *model.FraudCluster, patterns []model.ClusterPattern) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clusters[c.ID] = *c
	f.patterns[c.ID] = append(f.patterns[c.ID], patterns...)
	return nil
}

func (f *fakeClusterRepo) Update(_ context.Context, c *model.FraudCluster, newPatterns []model.ClusterPattern) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clusters[c.ID] = *c
	f.patterns[c.ID] = append(f.patterns[c.ID], newPatterns...)
	return nil
}

func (f *fakeClusterRepo) PatternsForCluster(_ context.Context, clusterID uuid.UUID) ([]model.ClusterPattern, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.patterns[clusterID], nil
}

func (f *fakeClusterRepo) AssignedLogIDs(_ context.Context, since time.Time) (map[uuid.UUID]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[uuid.UUID]bool)
	for _, ps := range f.patterns {
		for _, p := range ps {
			out[p.FraudLogID] = true
		}
	}
	return out, nil
}

func (f *fakeClusterRepo) all() []model.FraudCluster {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.FraudCluster
	for _, c := range f.clusters {
		out = append(out, c)
	}
	return out
}

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func fraudRow(ip, device, ua string, reason model.FailureReason, at time.Time) model.FraudLog {
	return model.FraudLog{
		ID:                uuid.New(),
		IPAddress:         ip,
		DeviceFingerprint: device,
		UserAgent:         ua,
		FailureReason:     reason,
		Severity:          model.DefaultSeverityFor(reason),
		Blocked:           true,
		Timestamp:         at,
	}
}

func newTestEngine(logs *fakeFraudLogRepo, clusters *fakeClusterRepo) *Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := NewEngine(DefaultConfig(), logs, clusters, nil, logger)
	e.nowFunc = func() time.Time { return testNow }
	return e
}

func TestTrigger_IPBasedCluster_ScenarioD(t *testing.T) {
	logs := &fakeFraudLogRepo{}
	// 3 rows sharing one IP within a 5 minute span.
	for i := 0; i < 3; i++ {
		logs.rows = append(logs.rows, fraudRow(
			"203.0.113.9", "dev-"+string(rune('a'+i)), "ua",
			model.ReasonInvalidCode, testNow.Add(-time.Hour+time.Duration(i)*2*time.Minute)))
	}
	clusters := newFakeClusterRepo()
	e := newTestEngine(logs, clusters)

	res, err := e.Trigger(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.ClustersFound)
	assert.Equal(t, 3, res.ThreatsAnalyzed)

	all := clusters.all()
	require.Len(t, all, 1)
	c := all[0]
	assert.Equal(t, model.PatternIPBased, c.PatternType)
	assert.Equal(t, 3, c.ThreatCount)
	assert.Equal(t, 1, c.Metadata.UniqueIPs)
	assert.Equal(t, 3, c.Metadata.UniqueDevices)
	assert.Equal(t, []string{string(model.ReasonInvalidCode)}, c.Metadata.ThreatTypes)
	assert.Greater(t, c.Score, 0.0)
	assert.GreaterOrEqual(t, c.Severity, 1)
	assert.LessOrEqual(t, c.Severity, 5)

	patterns, err := clusters.PatternsForCluster(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Len(t, patterns, 3)
}

func TestTrigger_Determinism(t *testing.T) {
	mkLogs := func() *fakeFraudLogRepo {
		logs := &fakeFraudLogRepo{}
		base := testNow.Add(-2 * time.Hour)
		for i := 0; i < 4; i++ {
			logs.rows = append(logs.rows, fraudRow(
				"198.51.100.1", "dev-x", "bot-ua",
				model.ReasonReusedCode, base.Add(time.Duration(i)*time.Minute)))
		}
		for i := 0; i < 3; i++ {
			logs.rows = append(logs.rows, fraudRow(
				"198.51.100.2", "dev-y", "bot-ua",
				model.ReasonIPRateLimit, base.Add(30*time.Minute+time.Duration(i)*time.Minute)))
		}
		return logs
	}

	run := func() []model.FraudCluster {
		clusters := newFakeClusterRepo()
		e := newTestEngine(mkLogs(), clusters)
		_, err := e.Trigger(context.Background())
		require.NoError(t, err)
		return clusters.all()
	}

	first := run()
	second := run()
	require.Equal(t, len(first), len(second))

	byLabel := func(cs []model.FraudCluster) map[string]model.FraudCluster {
		out := make(map[string]model.FraudCluster)
		for _, c := range cs {
			out[c.Label] = c
		}
		return out
	}
	fm, sm := byLabel(first), byLabel(second)
	for label, fc := range fm {
		sc, ok := sm[label]
		require.True(t, ok, "cluster %q missing from second run", label)
		assert.Equal(t, fc.Score, sc.Score, label)
		assert.Equal(t, fc.Severity, sc.Severity, label)
		assert.Equal(t, fc.ThreatCount, sc.ThreatCount, label)
		assert.Equal(t, fc.Metadata, sc.Metadata, label)
	}
}

func TestTrigger_RepeatRunDoesNotDuplicate(t *testing.T) {
	logs := &fakeFraudLogRepo{}
	for i := 0; i < 3; i++ {
		logs.rows = append(logs.rows, fraudRow(
			"203.0.113.5", "dev-z", "ua",
			model.ReasonInvalidCode, testNow.Add(-time.Hour+time.Duration(i)*time.Minute)))
	}
	clusters := newFakeClusterRepo()
	e := newTestEngine(logs, clusters)

	res1, err := e.Trigger(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res1.ClustersFound)

	// Unchanged input: already-assigned rows are excluded, nothing new.
	res2, err := e.Trigger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res2.ClustersFound)
	assert.Equal(t, 0, res2.ClustersMerged)
	assert.Len(t, clusters.all(), 1)
}

func TestTrigger_MergeIsMonotonic(t *testing.T) {
	logs := &fakeFraudLogRepo{}
	for i := 0; i < 3; i++ {
		logs.rows = append(logs.rows, fraudRow(
			"203.0.113.7", "dev-m", "ua",
			model.ReasonInvalidCode, testNow.Add(-time.Hour+time.Duration(i)*time.Minute)))
	}
	clusters := newFakeClusterRepo()
	e := newTestEngine(logs, clusters)

	_, err := e.Trigger(context.Background())
	require.NoError(t, err)
	before := clusters.all()[0]

	// New matching rows appear; the next run merges instead of duplicating.
	for i := 0; i < 3; i++ {
		logs.rows = append(logs.rows, fraudRow(
			"203.0.113.7", "dev-m", "ua",
			model.ReasonReusedCode, testNow.Add(-30*time.Minute+time.Duration(i)*time.Minute)))
	}

	res, err := e.Trigger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.ClustersMerged)

	all := clusters.all()
	require.Len(t, all, 1)
	after := all[0]
	assert.Equal(t, before.ID, after.ID)
	assert.Equal(t, 6, after.ThreatCount)
	assert.GreaterOrEqual(t, after.Score, before.Score)
	assert.GreaterOrEqual(t, after.Severity, before.Severity)

	patterns, _ := clusters.PatternsForCluster(context.Background(), after.ID)
	assert.Len(t, patterns, 6)
}

func TestTrigger_VelocityCluster(t *testing.T) {
	logs := &fakeFraudLogRepo{}
	// 3 events within 10 seconds across distinct IPs and devices.
	base := testNow.Add(-time.Hour)
	for i := 0; i < 3; i++ {
		logs.rows = append(logs.rows, fraudRow(
			"198.51.100."+string(rune('1'+i)), "dev-"+string(rune('1'+i)), "",
			model.ReasonInvalidCode, base.Add(time.Duration(i)*3*time.Second)))
	}
	clusters := newFakeClusterRepo()
	e := newTestEngine(logs, clusters)

	res, err := e.Trigger(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.ClustersFound)

	c := clusters.all()[0]
	assert.Equal(t, model.PatternVelocity, c.PatternType)
	assert.Equal(t, 3, c.ThreatCount)
	assert.Equal(t, 3, c.Metadata.UniqueIPs)
}

func TestTrigger_UserAgentCluster(t *testing.T) {
	logs := &fakeFraudLogRepo{}
	// One rare user agent across 3 distinct IPs, spaced well apart so
	// neither the velocity nor the per-IP pass claims the rows.
	base := testNow.Add(-3 * time.Hour)
	for i := 0; i < 3; i++ {
		logs.rows = append(logs.rows, fraudRow(
			"203.0.113."+string(rune('1'+i)), "dev-ua-"+string(rune('1'+i)), "scraper-bot/9.9",
			model.ReasonDeviceRateLimit, base.Add(time.Duration(i)*20*time.Minute)))
	}
	clusters := newFakeClusterRepo()
	e := newTestEngine(logs, clusters)

	res, err := e.Trigger(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.ClustersFound)

	c := clusters.all()[0]
	assert.Equal(t, model.PatternUserAgent, c.PatternType)
	assert.Equal(t, 3, c.Metadata.UniqueIPs)
}

func TestTrigger_MalformedRowsSkipped(t *testing.T) {
	logs := &fakeFraudLogRepo{}
	for i := 0; i < 3; i++ {
		logs.rows = append(logs.rows, fraudRow(
			"203.0.113.1", "dev-1", "ua",
			model.ReasonInvalidCode, testNow.Add(-time.Hour+time.Duration(i)*time.Minute)))
	}
	// Row with no IP address cannot be clustered.
	bad := fraudRow("", "dev-1", "ua", model.ReasonInvalidCode, testNow.Add(-time.Hour))
	logs.rows = append(logs.rows, bad)
	// Row with an unknown reason is also skipped.
	ugly := fraudRow("203.0.113.1", "dev-1", "ua", "WHAT", testNow.Add(-time.Hour))
	logs.rows = append(logs.rows, ugly)

	clusters := newFakeClusterRepo()
	e := newTestEngine(logs, clusters)

	res, err := e.Trigger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.MalformedRows)
	assert.Equal(t, 1, res.ClustersFound)
	assert.Equal(t, 3, res.ThreatsAnalyzed)
}

func TestSeverityFor_Breakpoints(t *testing.T) {
	assert.Equal(t, 1, severityFor(0))
	assert.Equal(t, 1, severityFor(19.9))
	assert.Equal(t, 2, severityFor(20))
	assert.Equal(t, 3, severityFor(45))
	assert.Equal(t, 4, severityFor(60))
	assert.Equal(t, 5, severityFor(80))
	assert.Equal(t, 5, severityFor(500))
}

func TestComputeScore_ConcentrationScoresHigher(t *testing.T) {
	// Same volume: one identity vs many identities.
	concentrated := computeScore(6, model.ClusterMetadata{
		UniqueIPs: 1, UniqueDevices: 1,
		ThreatTypes: []string{string(model.ReasonInvalidCode)},
	})
	diffuse := computeScore(6, model.ClusterMetadata{
		UniqueIPs: 6, UniqueDevices: 6,
		ThreatTypes: []string{string(model.ReasonInvalidCode)},
	})
	assert.Greater(t, concentrated, diffuse)
}
