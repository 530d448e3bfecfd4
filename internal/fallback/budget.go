package fallback

import "sync/atomic"

// Budget caps the number of provider calls in a run. It is safe for
// concurrent use.
type Budget struct {
	limit int64
	used  atomic.Int64
}

// NewBudget creates a budget of limit calls. A negative limit is unlimited;
// zero allows no calls at all (cache-only).
func NewBudget(limit int) *Budget {
	return &Budget{limit: int64(limit)}
}

// TryTake spends one call if any remain.
func (b *Budget) TryTake() bool {
	for {
		used := b.used.Load()
		if b.limit >= 0 && used >= b.limit {
			return false
		}
		if b.used.CompareAndSwap(used, used+1) {
			return true
		}
	}
}

// Used returns the number of calls spent.
func (b *Budget) Used() int { return int(b.used.Load()) }

// Exhausted reports whether no calls remain.
func (b *Budget) Exhausted() bool {
	return b.limit >= 0 && b.used.Load() >= b.limit
}
