package onchain

import (
	"context"
	"sync"

	"github.com/elementsproject/electrumpay/electrum"
)

// reservations holds the outpoints that running payment attempts selected.
type reservations struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newReservations() *reservations {
	return &reservations{held: make(map[string]struct{})}
}

func (r *reservations) tryReserve(outpoint string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.held[outpoint]; ok {
		return false
	}
	r.held[outpoint] = struct{}{}
	return true
}

func (r *reservations) release(outpoints []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, op := range outpoints {
		delete(r.held, op)
	}
}

func (r *reservations) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.held)
}

// claim tracks the outpoints one attempt reserved so they can be released
// together.
type claim struct {
	set  *reservations
	mu   sync.Mutex
	held []string
}

func (c *claim) take(outpoint string) bool {
	if !c.set.tryReserve(outpoint) {
		return false
	}
	c.mu.Lock()
	c.held = append(c.held, outpoint)
	c.mu.Unlock()
	return true
}

func (c *claim) release() {
	c.mu.Lock()
	held := c.held
	c.held = nil
	c.mu.Unlock()
	c.set.release(held)
}

// reservingResolver reserves each candidate before resolving it.
type reservingResolver struct {
	next  PrevOutResolver
	claim *claim
}

func (r *reservingResolver) Resolve(ctx context.Context, candidate *electrum.ListUnspentResult) (*UnspentOutput, error) {
	if !r.claim.take(outPoint(candidate.Hash, candidate.Position)) {
		return nil, ErrOutputReserved
	}
	return r.next.Resolve(ctx, candidate)
}
