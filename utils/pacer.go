package utils

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer enforces a minimum interval between successive calls to an
// external service. The first Wait returns immediately.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer creates a Pacer spacing calls at least interval apart.
// A non-positive interval disables pacing.
func NewPacer(interval time.Duration) *Pacer {
	if interval <= 0 {
		return &Pacer{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait blocks until the next call is allowed or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// KeySet is an insertion-ordered set of strings.
type KeySet struct {
	seen  map[string]struct{}
	order []string
}

// NewKeySet creates an empty KeySet.
func NewKeySet() *KeySet {
	return &KeySet{seen: make(map[string]struct{})}
}

// Add returns true if the key was newly added, false if already present.
func (s *KeySet) Add(key string) bool {
	if _, exists := s.seen[key]; exists {
		return false
	}
	s.seen[key] = struct{}{}
	s.order = append(s.order, key)
	return true
}

// Contains returns true if the key has already been added.
func (s *KeySet) Contains(key string) bool {
	_, exists := s.seen[key]
	return exists
}

// Keys returns the keys in insertion order.
func (s *KeySet) Keys() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Size returns the number of unique keys tracked.
func (s *KeySet) Size() int {
	return len(s.order)
}
