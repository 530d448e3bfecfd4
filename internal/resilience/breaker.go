// Package resilience guards outbound provider calls with circuit breakers,
// retry backoff and transient-error classification.
package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// State is a breaker state.
type State int

const (
	// StateClosed lets calls through.
	StateClosed State = iota
	// StateOpen rejects calls until the cooldown elapses.
	StateOpen
	// StateHalfOpen lets a single probe through.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when a call is rejected by an open breaker.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// BreakerConfig controls when a breaker opens and how long it stays open.
type BreakerConfig struct {
	// Threshold is the number of consecutive counted failures that opens the
	// breaker. Zero or less disables the breaker.
	Threshold int
	// Cooldown is how long the breaker stays open before allowing a probe.
	Cooldown time.Duration
	// Counts decides whether an error counts as a failure. Nil counts all errors.
	Counts func(err error) bool
	// OnStateChange observes transitions.
	OnStateChange func(name string, from, to State)
}

// Breaker is a circuit breaker for one provider.
type Breaker struct {
	name string
	cfg  BreakerConfig
	now  func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker creates a closed breaker.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &Breaker{name: name, cfg: cfg, now: time.Now}
}

// Allow reports whether a call may proceed. Every successful Allow must be
// followed by exactly one Record.
func (b *Breaker) Allow() error {
	if b.cfg.Threshold <= 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			return ErrCircuitOpen
		}
		b.transition(StateHalfOpen)
		b.probing = true
		return nil
	case StateHalfOpen:
		if b.probing {
			return ErrCircuitOpen
		}
		b.probing = true
		return nil
	default:
		return nil
	}
}

// Record reports the outcome of an allowed call.
func (b *Breaker) Record(err error) {
	if b.cfg.Threshold <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	failed := err != nil && (b.cfg.Counts == nil || b.cfg.Counts(err))
	if b.state == StateHalfOpen {
		b.probing = false
		if failed {
			b.open()
		} else {
			b.failures = 0
			b.transition(StateClosed)
		}
		return
	}

	if !failed {
		b.failures = 0
		return
	}
	b.failures++
	if b.failures >= b.cfg.Threshold {
		b.open()
	}
}

// Cancel releases an allowed call that never reached the provider.
func (b *Breaker) Cancel() {
	if b.cfg.Threshold <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen {
		b.probing = false
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) open() {
	b.openedAt = b.now()
	b.transition(StateOpen)
}

func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	if from != to && b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.name, from, to)
	}
}

// Breakers holds one breaker per provider.
type Breakers struct {
	cfg BreakerConfig

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewBreakers creates a registry that lazily builds breakers with cfg.
func NewBreakers(cfg BreakerConfig) *Breakers {
	return &Breakers{cfg: cfg, breakers: make(map[string]*Breaker)}
}

// For returns the breaker for provider, creating it on first use.
func (bs *Breakers) For(provider string) *Breaker {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	b, ok := bs.breakers[provider]
	if !ok {
		b = NewBreaker(provider, bs.cfg)
		bs.breakers[provider] = b
	}
	return b
}

// Open lists providers whose breaker is currently open, sorted.
func (bs *Breakers) Open() []string {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	var names []string
	for name, b := range bs.breakers {
		if b.State() == StateOpen {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
