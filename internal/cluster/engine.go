// Package cluster implements the periodic threat clustering engine. It
// reads recent fraud log rows, groups them into named clusters by pattern
// type, scores severity, and persists the result for human review.
//
// Runs are deterministic: given the same set of rows and the same open
// clusters, repeated runs produce the same clustering. All grouping is an
// explicit pass over a sorted working set; wall-clock time only sets the
// look-back boundary.
package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/giftwell/fraudguard/internal/alert"
	"github.com/giftwell/fraudguard/internal/domain/model"
	"github.com/giftwell/fraudguard/internal/metrics"
	"github.com/giftwell/fraudguard/internal/store"
)

// Config holds the clustering thresholds. All values are env-overridable
// defaults, not contractual constants.
type Config struct {
	Interval        time.Duration // how often a scheduled run fires
	LookBack        time.Duration // how far back a run reads fraud logs
	MinThreatCount  int           // group size needed to qualify as a cluster
	GroupWindow     time.Duration // ip/device grouping window
	VelocityCount   int           // events within VelocityWindow to qualify
	VelocityWindow  time.Duration
	UserAgentMinIPs int // distinct IPs needed for a user_agent cluster
}

// DefaultConfig returns the shipped clustering defaults.
func DefaultConfig() Config {
	return Config{
		Interval:        5 * time.Minute,
		LookBack:        24 * time.Hour,
		MinThreatCount:  3,
		GroupWindow:     15 * time.Minute,
		VelocityCount:   3,
		VelocityWindow:  10 * time.Second,
		UserAgentMinIPs: 3,
	}
}

// RunResult summarises one clustering run.
type RunResult struct {
	ClustersFound   int `json:"clustersFound"`
	ClustersMerged  int `json:"clustersMerged"`
	ThreatsAnalyzed int `json:"threatsAnalyzed"`
	MalformedRows   int `json:"malformedRows"`
}

// Engine is the threat clustering engine. Only one run may be active at a
// time; a scheduled tick that finds a run in progress is skipped.
type Engine struct {
	cfg         Config
	fraudLogs   store.FraudLogRepository
	clusters    store.ClusterRepository
	broadcaster *alert.Broadcaster
	logger      *slog.Logger
	nowFunc     func() time.Time

	runMu sync.Mutex

	mu        sync.Mutex
	lastRunAt time.Time
}

// NewEngine creates a clustering engine.
func NewEngine(
	cfg Config,
	fraudLogs store.FraudLogRepository,
	clusters store.ClusterRepository,
	broadcaster *alert.Broadcaster,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		cfg:         cfg,
		fraudLogs:   fraudLogs,
		clusters:    clusters,
		broadcaster: broadcaster,
		logger:      logger.With("component", "cluster_engine"),
		nowFunc:     time.Now,
	}
}

// Start runs scheduled clustering until ctx is cancelled.
func (e *Engine) Start(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("cluster engine stopped")
			return ctx.Err()
		case <-ticker.C:
			if !e.runMu.TryLock() {
				e.logger.Warn("skipping scheduled clustering run, previous run still active")
				metrics.ClusterRunsTotal.WithLabelValues("skipped").Inc()
				continue
			}
			if _, err := e.run(ctx); err != nil {
				e.logger.Error("scheduled clustering run failed", "error", err)
			}
			e.runMu.Unlock()
		}
	}
}

// Trigger performs an on-demand clustering run. It shares the single-run
// mutex with the scheduler, so a triggered run never overlaps a scheduled
// one.
func (e *Engine) Trigger(ctx context.Context) (RunResult, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	return e.run(ctx)
}

// LastRunAt reports when the most recent run finished (for health).
func (e *Engine) LastRunAt() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastRunAt
}

func (e *Engine) run(ctx context.Context) (RunResult, error) {
	start := e.nowFunc()
	since := start.Add(-e.cfg.LookBack)
	var result RunResult

	logs, err := e.fraudLogs.ListSince(ctx, since)
	if err != nil {
		metrics.ClusterRunsTotal.WithLabelValues("error").Inc()
		return result, fmt.Errorf("list fraud logs: %w", err)
	}

	assigned, err := e.clusters.AssignedLogIDs(ctx, since)
	if err != nil {
		metrics.ClusterRunsTotal.WithLabelValues("error").Inc()
		return result, fmt.Errorf("list assigned log ids: %w", err)
	}

	open, err := e.clusters.ListOpen(ctx, since)
	if err != nil {
		metrics.ClusterRunsTotal.WithLabelValues("error").Inc()
		return result, fmt.Errorf("list open clusters: %w", err)
	}
	openByLabel := make(map[string]*model.FraudCluster, len(open))
	for i := range open {
		openByLabel[open[i].Label] = &open[i]
	}

	// Working set: valid, not yet assigned, sorted for determinism.
	working := make([]model.FraudLog, 0, len(logs))
	for i := range logs {
		if err := logs[i].Validate(); err != nil {
			result.MalformedRows++
			metrics.ClusterMalformedRowsTotal.Inc()
			e.logger.Warn("skipping malformed fraud log row", "error", err)
			continue
		}
		if assigned[logs[i].ID] {
			continue
		}
		working = append(working, logs[i])
	}
	sortLogs(working)
	result.ThreatsAnalyzed = len(working)

	consumed := make(map[uuid.UUID]bool, len(working))

	// Pattern passes run in fixed order so a log lands in at most one
	// cluster per run.
	for _, pass := range []struct {
		pattern model.PatternType
		group   func([]model.FraudLog) []group
	}{
		{model.PatternIPBased, e.groupByIP},
		{model.PatternDeviceFingerprint, e.groupByDevice},
		{model.PatternVelocity, e.groupByVelocity},
		{model.PatternUserAgent, e.groupByUserAgent},
	} {
		remaining := filterConsumed(working, consumed)
		for _, grp := range pass.group(remaining) {
			if err := ctx.Err(); err != nil {
				// Abort cleanly: groups already persisted stay valid,
				// unmerged ones are retried next run.
				metrics.ClusterRunsTotal.WithLabelValues("aborted").Inc()
				return result, err
			}
			merged, err := e.persistGroup(ctx, pass.pattern, grp, openByLabel)
			if err != nil {
				e.logger.Error("persist cluster group failed",
					"pattern", pass.pattern, "label", grp.label, "error", err)
				continue
			}
			for _, l := range grp.logs {
				consumed[l.ID] = true
			}
			if merged {
				result.ClustersMerged++
			} else {
				result.ClustersFound++
			}
		}
	}

	e.mu.Lock()
	e.lastRunAt = e.nowFunc()
	e.mu.Unlock()

	metrics.ClusterRunsTotal.WithLabelValues("ok").Inc()
	metrics.ClusterRunLatency.Observe(e.nowFunc().Sub(start).Seconds())
	e.logger.Info("clustering run complete",
		"clusters_found", result.ClustersFound,
		"clusters_merged", result.ClustersMerged,
		"threats_analyzed", result.ThreatsAnalyzed,
		"malformed_rows", result.MalformedRows,
	)
	return result, nil
}

// group is one qualifying set of related logs.
type group struct {
	label      string
	logs       []model.FraudLog
	similarity float64
}

func (e *Engine) persistGroup(ctx context.Context, pattern model.PatternType, grp group, openByLabel map[string]*model.FraudCluster) (merged bool, err error) {
	now := e.nowFunc().UTC()
	meta := buildMetadata(grp.logs)
	score := computeScore(len(grp.logs), meta)

	if existing, ok := openByLabel[grp.label]; ok {
		// Merge into the open cluster; score and threat count only move up.
		combinedCount := existing.ThreatCount + len(grp.logs)
		combinedMeta := mergeMetadata(existing.Metadata, meta)
		combinedScore := computeScore(combinedCount, combinedMeta)
		if combinedScore < existing.Score {
			combinedScore = existing.Score
		}

		existing.ThreatCount = combinedCount
		existing.Metadata = combinedMeta
		existing.Score = combinedScore
		if sev := severityFor(combinedScore); sev > existing.Severity {
			existing.Severity = sev
		}
		existing.UpdatedAt = now

		if err := e.clusters.Update(ctx, existing, patternsFor(existing.ID, grp, now)); err != nil {
			return false, err
		}
		metrics.ClustersMergedTotal.WithLabelValues(string(pattern)).Inc()
		e.publishCluster(ctx, *existing)
		return true, nil
	}

	c := &model.FraudCluster{
		ID:          uuid.New(),
		Label:       grp.label,
		PatternType: pattern,
		Score:       score,
		Severity:    severityFor(score),
		ThreatCount: len(grp.logs),
		Metadata:    meta,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.clusters.Insert(ctx, c, patternsFor(c.ID, grp, now)); err != nil {
		return false, err
	}
	openByLabel[grp.label] = c
	metrics.ClustersCreatedTotal.WithLabelValues(string(pattern)).Inc()
	e.publishCluster(ctx, *c)
	return false, nil
}

func (e *Engine) publishCluster(ctx context.Context, c model.FraudCluster) {
	if e.broadcaster == nil {
		return
	}
	e.broadcaster.Publish(ctx, alert.Event{Type: alert.EventClusterAlert, Payload: c})
}

func patternsFor(clusterID uuid.UUID, grp group, now time.Time) []model.ClusterPattern {
	patterns := make([]model.ClusterPattern, 0, len(grp.logs))
	for _, l := range grp.logs {
		patterns = append(patterns, model.ClusterPattern{
			ID:         uuid.New(),
			ClusterID:  clusterID,
			FraudLogID: l.ID,
			Similarity: grp.similarity,
			CreatedAt:  now,
		})
	}
	return patterns
}

// groupByIP groups logs sharing an IP, splitting when a log falls outside
// the group window anchored at the group's first event.
func (e *Engine) groupByIP(logs []model.FraudLog) []group {
	return e.groupByKey(logs, e.cfg.GroupWindow, e.cfg.MinThreatCount, 1.0,
		func(l model.FraudLog) string { return l.IPAddress },
		func(key string) string { return "IP-based threat cluster " + key },
	)
}

// groupByDevice groups logs sharing a device fingerprint.
func (e *Engine) groupByDevice(logs []model.FraudLog) []group {
	return e.groupByKey(logs, e.cfg.GroupWindow, e.cfg.MinThreatCount, 1.0,
		func(l model.FraudLog) string { return l.DeviceFingerprint },
		func(key string) string { return "Device fingerprint cluster " + key },
	)
}

// groupByVelocity catches distributed scripted attacks: any run of events
// whose inter-arrival gap stays under the velocity window, regardless of
// shared identity.
func (e *Engine) groupByVelocity(logs []model.FraudLog) []group {
	var groups []group
	var current []model.FraudLog

	flush := func() {
		if len(current) >= e.cfg.VelocityCount {
			groups = append(groups, group{
				label:      "Velocity burst starting " + current[0].Timestamp.UTC().Format(time.RFC3339),
				logs:       current,
				similarity: 0.8,
			})
		}
		current = nil
	}

	for _, l := range logs {
		if len(current) > 0 && l.Timestamp.Sub(current[len(current)-1].Timestamp) > e.cfg.VelocityWindow {
			flush()
		}
		current = append(current, l)
	}
	flush()
	return groups
}

// groupByUserAgent groups logs sharing one user-agent string seen across
// multiple distinct IPs.
func (e *Engine) groupByUserAgent(logs []model.FraudLog) []group {
	buckets := make(map[string][]model.FraudLog)
	for _, l := range logs {
		if l.UserAgent == "" {
			continue
		}
		buckets[l.UserAgent] = append(buckets[l.UserAgent], l)
	}

	keys := sortedKeys(buckets)
	var groups []group
	for _, ua := range keys {
		members := buckets[ua]
		if len(members) < e.cfg.MinThreatCount {
			continue
		}
		ips := make(map[string]bool)
		for _, l := range members {
			ips[l.IPAddress] = true
		}
		if len(ips) < e.cfg.UserAgentMinIPs {
			continue
		}
		groups = append(groups, group{
			label:      "User-agent cluster " + ua,
			logs:       members,
			similarity: 0.9,
		})
	}
	return groups
}

// groupByKey buckets logs by keyFn, then splits each bucket into windows
// anchored at the first event. Bucket keys are visited in sorted order so
// output is deterministic.
func (e *Engine) groupByKey(
	logs []model.FraudLog,
	window time.Duration,
	minCount int,
	similarity float64,
	keyFn func(model.FraudLog) string,
	labelFn func(string) string,
) []group {
	buckets := make(map[string][]model.FraudLog)
	for _, l := range logs {
		key := keyFn(l)
		if key == "" {
			continue
		}
		buckets[key] = append(buckets[key], l)
	}

	var groups []group
	for _, key := range sortedKeys(buckets) {
		members := buckets[key]
		var current []model.FraudLog
		flush := func() {
			if len(current) >= minCount {
				groups = append(groups, group{
					label:      labelFn(key),
					logs:       current,
					similarity: similarity,
				})
			}
			current = nil
		}
		for _, l := range members {
			if len(current) > 0 && l.Timestamp.Sub(current[0].Timestamp) > window {
				flush()
			}
			current = append(current, l)
		}
		flush()
	}
	return groups
}

func filterConsumed(logs []model.FraudLog, consumed map[uuid.UUID]bool) []model.FraudLog {
	out := make([]model.FraudLog, 0, len(logs))
	for _, l := range logs {
		if !consumed[l.ID] {
			out = append(out, l)
		}
	}
	return out
}

func sortLogs(logs []model.FraudLog) {
	sort.Slice(logs, func(i, j int) bool {
		if !logs[i].Timestamp.Equal(logs[j].Timestamp) {
			return logs[i].Timestamp.Before(logs[j].Timestamp)
		}
		return logs[i].ID.String() < logs[j].ID.String()
	})
}

func sortedKeys(m map[string][]model.FraudLog) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
