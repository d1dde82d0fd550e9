// Package giftcard defines the contract the core expects from the external
// gift-card store. Issuance, balances, and payment capture live outside
// this service; the guard only delegates the final redemption operation.
package giftcard

import (
	"context"
	"strings"
	"sync"
)

// Status is the outcome of a delegated redemption.
type Status int

const (
	StatusOK Status = iota
	StatusUnknownCode
	StatusAlreadyRedeemed
)

// Result is what the external store reports for one redemption.
type Result struct {
	Status      Status
	AmountCents int64
}

// Redeemer is the external collaborator interface. Implementations must be
// safe for concurrent use and honor ctx cancellation.
type Redeemer interface {
	Redeem(ctx context.Context, code, redeemedBy string, amountCents int64) (Result, error)
}

// MemoryRedeemer is an in-process Redeemer used in development and tests.
type MemoryRedeemer struct {
	mu    sync.Mutex
	cards map[string]*card
}

type card struct {
	amountCents int64
	redeemed    bool
}

// NewMemoryRedeemer creates an empty in-memory store.
func NewMemoryRedeemer() *MemoryRedeemer {
	return &MemoryRedeemer{cards: make(map[string]*card)}
}

// Issue registers a card so it can later be redeemed.
func (m *MemoryRedeemer) Issue(code string, amountCents int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cards[normalize(code)] = &card{amountCents: amountCents}
}

func (m *MemoryRedeemer) Redeem(ctx context.Context, code, _ string, _ int64) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.cards[normalize(code)]
	if !ok {
		return Result{Status: StatusUnknownCode}, nil
	}
	if c.redeemed {
		return Result{Status: StatusAlreadyRedeemed}, nil
	}
	c.redeemed = true
	return Result{Status: StatusOK, AmountCents: c.amountCents}, nil
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
