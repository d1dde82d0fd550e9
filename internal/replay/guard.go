// Package replay blocks reuse of redemption codes. A short-lived in-process
// reservation closes the race between "check if redeemed" and "mark
// redeemed" in the durable store: two concurrent requests for the same code
// can never both pass, because only one of them wins the reservation.
package replay

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/giftwell/fraudguard/internal/circuitbreaker"
	"github.com/giftwell/fraudguard/internal/store"
)

var (
	// ErrAlreadyRedeemed means the durable store has a permanent denial
	// record for the code.
	ErrAlreadyRedeemed = errors.New("code already redeemed")

	// ErrReservationHeld means another in-flight request holds the code.
	// Callers treat this identically to reuse.
	ErrReservationHeld = errors.New("code reservation held by another request")

	// ErrUpstreamUnavailable means the durable store could not be
	// consulted in time. The guard fails closed.
	ErrUpstreamUnavailable = errors.New("redeemed-code store unavailable")
)

const (
	// DefaultReservationTTL bounds how long an abandoned reservation can
	// wedge a code if a process dies mid-request.
	DefaultReservationTTL = 30 * time.Second

	// DefaultLookupTimeout bounds the durable redeemed-code check.
	DefaultLookupTimeout = 5 * time.Second

	shardCount = 16
)

type reservation struct {
	claimedAt time.Time
	expiresAt time.Time
}

type shard struct {
	mu           sync.Mutex
	reservations map[string]reservation
}

// Guard owns the reservation table and fronts the durable redeemed-code
// set. Safe for concurrent use; reservations for different codes proceed
// fully in parallel.
type Guard struct {
	shards        [shardCount]*shard
	codes         store.RedeemedCodeRepository
	breaker       *circuitbreaker.Breaker
	ttl           time.Duration
	lookupTimeout time.Duration
	logger        *slog.Logger
	nowFunc       func() time.Time
}

// Option configures a Guard.
type Option func(*Guard)

// WithReservationTTL overrides the reservation expiry.
func WithReservationTTL(ttl time.Duration) Option {
	return func(g *Guard) { g.ttl = ttl }
}

// WithLookupTimeout overrides the durable lookup timeout.
func WithLookupTimeout(d time.Duration) Option {
	return func(g *Guard) { g.lookupTimeout = d }
}

// NewGuard creates a replay guard over the durable redeemed-code set.
func NewGuard(codes store.RedeemedCodeRepository, logger *slog.Logger, opts ...Option) *Guard {
	g := &Guard{
		codes:         codes,
		ttl:           DefaultReservationTTL,
		lookupTimeout: DefaultLookupTimeout,
		logger:        logger.With("component", "replay_guard"),
		nowFunc:       time.Now,
	}
	for i := range g.shards {
		g.shards[i] = &shard{reservations: make(map[string]reservation)}
	}
	g.breaker = circuitbreaker.New(circuitbreaker.Config{
		OnStateChange: func(from, to circuitbreaker.State) {
			g.logger.Warn("redeemed-code store breaker state change",
				"from", from.String(), "to", to.String())
		},
	})
	return g
}

// Reserve claims a code for the duration of one redemption attempt.
// It returns ErrReservationHeld if another request holds a live claim,
// ErrAlreadyRedeemed if the durable store says the code was used, and
// ErrUpstreamUnavailable if the durable check could not complete.
func (g *Guard) Reserve(ctx context.Context, code string) error {
	code = canonical(code)
	now := g.nowFunc()

	sh := g.shard(code)
	sh.mu.Lock()
	if r, ok := sh.reservations[code]; ok && now.Before(r.expiresAt) {
		sh.mu.Unlock()
		return ErrReservationHeld
	}
	sh.reservations[code] = reservation{claimedAt: now, expiresAt: now.Add(g.ttl)}
	sh.mu.Unlock()

	redeemed, err := g.isRedeemed(ctx, code)
	if err != nil {
		g.Release(code)
		g.logger.Warn("durable replay check failed, failing closed", "error", err)
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	if redeemed {
		g.Release(code)
		return ErrAlreadyRedeemed
	}
	return nil
}

// Commit converts the reservation into a permanent denial record. The
// reservation is only dropped once the durable write succeeded; on error
// it stays in place until its TTL so the code cannot be raced meanwhile.
func (g *Guard) Commit(ctx context.Context, code, redeemedBy string) error {
	code = canonical(code)

	ctx, cancel := context.WithTimeout(ctx, g.lookupTimeout)
	defer cancel()

	if err := g.codes.MarkRedeemed(ctx, code, redeemedBy, g.nowFunc()); err != nil {
		return fmt.Errorf("mark redeemed: %w", err)
	}
	g.Release(code)
	return nil
}

// Release frees a reservation after a failed or abandoned attempt.
func (g *Guard) Release(code string) {
	code = canonical(code)
	sh := g.shard(code)
	sh.mu.Lock()
	delete(sh.reservations, code)
	sh.mu.Unlock()
}

// ReservationCount returns the number of live reservations (for tests and
// health reporting). Expired entries are not counted.
func (g *Guard) ReservationCount() int {
	now := g.nowFunc()
	total := 0
	for _, sh := range g.shards {
		sh.mu.Lock()
		for _, r := range sh.reservations {
			if now.Before(r.expiresAt) {
				total++
			}
		}
		sh.mu.Unlock()
	}
	return total
}

func (g *Guard) isRedeemed(ctx context.Context, code string) (bool, error) {
	var redeemed bool
	err := g.breaker.Do(func() error {
		ctx, cancel := context.WithTimeout(ctx, g.lookupTimeout)
		defer cancel()

		var err error
		redeemed, err = g.codes.IsRedeemed(ctx, code)
		return err
	})
	return redeemed, err
}

func (g *Guard) shard(code string) *shard {
	h := fnv.New32a()
	h.Write([]byte(code))
	return g.shards[int(h.Sum32())%shardCount]
}

func canonical(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
