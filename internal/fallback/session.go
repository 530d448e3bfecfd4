package fallback

import (
	"maps"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Session is the mutable state shared by every descriptor in one run: the
// call budget, per-provider counters and the duplicate-call suppression
// group.
type Session struct {
	Budget *Budget

	group      singleflight.Group
	budgetOnce sync.Once

	mu        sync.Mutex
	calls     map[string]int
	failures  map[string]int
	cacheHits int
}

// NewSession starts a run with a budget of maxCalls (negative = unlimited).
func NewSession(maxCalls int) *Session {
	return &Session{
		Budget:   NewBudget(maxCalls),
		calls:    make(map[string]int),
		failures: make(map[string]int),
	}
}

func (s *Session) recordCalls(provider string, n int, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > 0 {
		s.calls[provider] += n
	}
	if failed {
		s.failures[provider]++
	}
}

func (s *Session) recordHit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cacheHits++
}

// Calls returns provider calls made per provider.
func (s *Session) Calls() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.calls)
}

// Failures returns failed lookups per provider.
func (s *Session) Failures() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.failures)
}

// TotalCalls returns provider calls made across all providers.
func (s *Session) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.calls {
		total += n
	}
	return total
}

// CacheHits returns the number of lookups answered from the cache.
func (s *Session) CacheHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cacheHits
}
