// Package ratelimit implements the keyed fixed-window counters backing the
// redemption guard. The store is an injectable component so the guard logic
// stays independent of the backing implementation.
package ratelimit

import (
	"hash/fnv"
	"sync"
	"time"
)

// Scope partitions counter keyspaces so the same identity can be tracked
// under independent policies.
type Scope string

const (
	ScopeIP            Scope = "IP"
	ScopeDevice        Scope = "DEVICE"
	ScopeMerchant      Scope = "MERCHANT"
	ScopeDeviceFailure Scope = "DEVICE_FAILURE"
)

// Result is the outcome of a single check-and-increment.
type Result struct {
	Allowed    bool
	Count      int
	Limit      int
	RetryAfter time.Duration
}

// Store is the counter abstraction consumed by the redemption guard.
type Store interface {
	// CheckAndIncrement atomically bumps the counter for (scope, key) in
	// the current fixed window and reports whether the caller is within
	// limit. When denied, RetryAfter is the time remaining in the window.
	CheckAndIncrement(scope Scope, key string, limit int, window time.Duration) Result

	// Count returns the current in-window count without incrementing.
	Count(scope Scope, key string, window time.Duration) int

	// Stop releases any background resources.
	Stop()
}

const (
	shardCount = 16

	// sweepInterval is how often the background goroutine scans for idle
	// windows. Entries are dropped after 2x their window without traffic.
	sweepInterval = time.Minute
)

type window struct {
	count       int
	windowStart time.Time
	duration    time.Duration
	lastSeen    time.Time
}

type shard struct {
	mu      sync.Mutex
	windows map[string]*window
}

// MemoryStore is the in-process Store implementation. Keys are distributed
// across shards by FNV-32a hash so unrelated keys never contend on the
// same mutex; mutations to one key are serialized by its shard lock.
type MemoryStore struct {
	shards   [shardCount]*shard
	nowFunc  func() time.Time
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewMemoryStore creates a MemoryStore and starts its eviction sweeper.
// Call Stop when the store is no longer needed.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		nowFunc: time.Now,
		stopCh:  make(chan struct{}),
	}
	for i := range s.shards {
		s.shards[i] = &shard{windows: make(map[string]*window)}
	}
	go s.sweepLoop()
	return s
}

// Stop shuts down the background sweeper. Safe to call multiple times.
func (s *MemoryStore) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *MemoryStore) CheckAndIncrement(scope Scope, key string, limit int, windowDur time.Duration) Result {
	now := s.nowFunc()
	start := now.Truncate(windowDur)

	sh := s.shard(scope, key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	k := string(scope) + "|" + key
	w, ok := sh.windows[k]
	if !ok || !w.windowStart.Equal(start) || w.duration != windowDur {
		w = &window{windowStart: start, duration: windowDur}
		sh.windows[k] = w
	}
	w.count++
	w.lastSeen = now

	res := Result{Count: w.count, Limit: limit}
	if w.count > limit {
		res.RetryAfter = start.Add(windowDur).Sub(now)
		return res
	}
	res.Allowed = true
	return res
}

func (s *MemoryStore) Count(scope Scope, key string, windowDur time.Duration) int {
	now := s.nowFunc()
	start := now.Truncate(windowDur)

	sh := s.shard(scope, key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	w, ok := sh.windows[string(scope)+"|"+key]
	if !ok || !w.windowStart.Equal(start) {
		return 0
	}
	return w.count
}

// Len returns the number of live window entries (for tests/monitoring).
func (s *MemoryStore) Len() int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		total += len(sh.windows)
		sh.mu.Unlock()
	}
	return total
}

func (s *MemoryStore) shard(scope Scope, key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(scope))
	h.Write([]byte{'|'})
	h.Write([]byte(key))
	return s.shards[int(h.Sum32())%shardCount]
}

func (s *MemoryStore) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.evictIdle()
		}
	}
}

// evictIdle drops windows that saw no traffic for twice their duration.
// Bounds memory without needing a precise LRU.
func (s *MemoryStore) evictIdle() {
	now := s.nowFunc()
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, w := range sh.windows {
			if now.Sub(w.lastSeen) > 2*w.duration {
				delete(sh.windows, k)
			}
		}
		sh.mu.Unlock()
	}
}
