package cluster

import (
	"sort"

	"github.com/giftwell/fraudguard/internal/domain/model"
)

// Severity breakpoints on the continuous score.
const (
	severity2Threshold = 20
	severity3Threshold = 40
	severity4Threshold = 60
	severity5Threshold = 80
)

// computeScore is a weighted function of volume, identity concentration,
// and severity mix. Few identities generating many events score higher
// than the same volume spread across many identities.
func computeScore(threatCount int, meta model.ClusterMetadata) float64 {
	if threatCount == 0 {
		return 0
	}
	identities := meta.UniqueIPs + meta.UniqueDevices
	if identities < 1 {
		identities = 1
	}
	concentration := float64(threatCount) / float64(identities)

	sevWeight := 0.0
	for _, tt := range meta.ThreatTypes {
		switch model.DefaultSeverityFor(model.FailureReason(tt)) {
		case model.SeverityHigh:
			sevWeight += 3
		case model.SeverityMedium:
			sevWeight += 2
		default:
			sevWeight += 1
		}
	}
	if n := len(meta.ThreatTypes); n > 0 {
		sevWeight /= float64(n)
	}

	return float64(threatCount)*8 + concentration*20 + sevWeight*10
}

// severityFor maps a score to the 1-5 integer rating.
func severityFor(score float64) int {
	switch {
	case score < severity2Threshold:
		return 1
	case score < severity3Threshold:
		return 2
	case score < severity4Threshold:
		return 3
	case score < severity5Threshold:
		return 4
	default:
		return 5
	}
}

// buildMetadata summarises the identity spread of a group of logs.
func buildMetadata(logs []model.FraudLog) model.ClusterMetadata {
	ips := make(map[string]bool)
	devices := make(map[string]bool)
	reasons := make(map[string]bool)

	for _, l := range logs {
		if l.IPAddress != "" {
			ips[l.IPAddress] = true
		}
		if l.DeviceFingerprint != "" {
			devices[l.DeviceFingerprint] = true
		}
		reasons[string(l.FailureReason)] = true
	}

	meta := model.ClusterMetadata{
		UniqueIPs:     len(ips),
		UniqueDevices: len(devices),
	}
	if len(logs) > 0 {
		meta.TimeSpanMs = logs[len(logs)-1].Timestamp.Sub(logs[0].Timestamp).Milliseconds()
	}
	for r := range reasons {
		meta.ThreatTypes = append(meta.ThreatTypes, r)
	}
	sort.Strings(meta.ThreatTypes)
	return meta
}

// mergeMetadata combines existing cluster metadata with a new batch. All
// fields are monotonic non-decreasing.
func mergeMetadata(old, add model.ClusterMetadata) model.ClusterMetadata {
	out := model.ClusterMetadata{
		UniqueIPs:     maxInt(old.UniqueIPs, add.UniqueIPs),
		UniqueDevices: maxInt(old.UniqueDevices, add.UniqueDevices),
		TimeSpanMs:    maxInt64(old.TimeSpanMs, add.TimeSpanMs),
	}
	seen := make(map[string]bool)
	for _, t := range old.ThreatTypes {
		seen[t] = true
	}
	for _, t := range add.ThreatTypes {
		seen[t] = true
	}
	for t := range seen {
		out.ThreatTypes = append(out.ThreatTypes, t)
	}
	sort.Strings(out.ThreatTypes)
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
