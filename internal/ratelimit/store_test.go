package ratelimit

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*MemoryStore, *time.Time) {
	t.Helper()
	s := NewMemoryStore()
	t.Cleanup(s.Stop)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.nowFunc = func() time.Time { return now }
	return s, &now
}

func TestCheckAndIncrement_AllowsUpToLimit(t *testing.T) {
	s, _ := newTestStore(t)

	for i := 1; i <= 3; i++ {
		res := s.CheckAndIncrement(ScopeIP, "203.0.113.1", 3, time.Minute)
		require.True(t, res.Allowed, "attempt %d should be allowed", i)
		assert.Equal(t, i, res.Count)
	}

	res := s.CheckAndIncrement(ScopeIP, "203.0.113.1", 3, time.Minute)
	assert.False(t, res.Allowed)
	assert.Equal(t, 4, res.Count)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, res.RetryAfter, time.Minute)
}

func TestCheckAndIncrement_WindowReset(t *testing.T) {
	s, now := newTestStore(t)

	for i := 0; i < 4; i++ {
		s.CheckAndIncrement(ScopeIP, "203.0.113.1", 3, time.Minute)
	}
	res := s.CheckAndIncrement(ScopeIP, "203.0.113.1", 3, time.Minute)
	require.False(t, res.Allowed)

	// Advance past the window boundary: counter resets atomically.
	*now = now.Add(time.Minute)
	res = s.CheckAndIncrement(ScopeIP, "203.0.113.1", 3, time.Minute)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Count)
}

func TestCheckAndIncrement_ScopesAndKeysIndependent(t *testing.T) {
	s, _ := newTestStore(t)

	for i := 0; i < 3; i++ {
		s.CheckAndIncrement(ScopeIP, "203.0.113.1", 3, time.Minute)
	}

	// Different key, same scope.
	res := s.CheckAndIncrement(ScopeIP, "203.0.113.2", 3, time.Minute)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Count)

	// Same key, different scope.
	res = s.CheckAndIncrement(ScopeDevice, "203.0.113.1", 3, time.Minute)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Count)
}

func TestCount_PeeksWithoutIncrementing(t *testing.T) {
	s, _ := newTestStore(t)

	assert.Equal(t, 0, s.Count(ScopeDeviceFailure, "dev-1", 10*time.Minute))

	s.CheckAndIncrement(ScopeDeviceFailure, "dev-1", 5, 10*time.Minute)
	s.CheckAndIncrement(ScopeDeviceFailure, "dev-1", 5, 10*time.Minute)

	assert.Equal(t, 2, s.Count(ScopeDeviceFailure, "dev-1", 10*time.Minute))
	assert.Equal(t, 2, s.Count(ScopeDeviceFailure, "dev-1", 10*time.Minute))
}

func TestEvictIdle_DropsStaleWindows(t *testing.T) {
	s, now := newTestStore(t)

	s.CheckAndIncrement(ScopeIP, "a", 3, time.Minute)
	s.CheckAndIncrement(ScopeIP, "b", 3, time.Minute)
	require.Equal(t, 2, s.Len())

	*now = now.Add(3 * time.Minute)
	s.evictIdle()
	assert.Equal(t, 0, s.Len())
}

func TestCheckAndIncrement_ConcurrentSameKey(t *testing.T) {
	s := NewMemoryStore()
	defer s.Stop()

	const workers = 50
	const limit = 10

	var wg sync.WaitGroup
	start := make(chan struct{})
	allowed := make(chan bool, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			res := s.CheckAndIncrement(ScopeIP, "contended", limit, time.Hour)
			allowed <- res.Allowed
		}()
	}
	close(start)
	wg.Wait()
	close(allowed)

	got := 0
	for ok := range allowed {
		if ok {
			got++
		}
	}
	assert.Equal(t, limit, got, "exactly limit callers should be admitted")
}

func TestCheckAndIncrement_ConcurrentDistinctKeys(t *testing.T) {
	s := NewMemoryStore()
	defer s.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("ip-%d", i)
			res := s.CheckAndIncrement(ScopeIP, key, 3, time.Minute)
			assert.True(t, res.Allowed)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 100, s.Len())
}
