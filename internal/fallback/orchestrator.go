// Package fallback drives the provider gateway over the configured provider
// order for one descriptor, consulting the query cache first and spending
// the run's call budget only on misses.
package fallback

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/wine-resolver/internal/cache"
	"github.com/sells-group/wine-resolver/internal/model"
	"github.com/sells-group/wine-resolver/internal/provider"
	"github.com/sells-group/wine-resolver/internal/query"
)

// ErrBudgetExhausted marks a lookup the call budget prevented.
var ErrBudgetExhausted = eris.New("fallback: budget exhausted")

// ErrUnavailable marks a cache miss for a provider that cannot be called.
var ErrUnavailable = eris.New("fallback: provider unavailable")

// Cache is the query cache the orchestrator reads and writes through.
type Cache interface {
	Get(ctx context.Context, query, provider string) ([]model.Candidate, bool, error)
	Put(ctx context.Context, query, provider string, cands []model.Candidate, ttl time.Duration) error
}

// Caller calls a single named provider.
type Caller interface {
	Available(name string) bool
	Call(ctx context.Context, name, query string, acquire func() bool) ([]model.Candidate, error)
}

// Options configure an Orchestrator.
type Options struct {
	// ProviderOrder is the fallback order. Empty uses provider.DefaultOrder.
	ProviderOrder []string
	// StopOnFirstSuccess ends a descriptor after the first provider that
	// returns candidates. When false later providers still run.
	StopOnFirstSuccess bool
	// CacheTTL is the lifetime of entries written by this run.
	CacheTTL time.Duration
}

// Outcome is everything the orchestrator learned about one descriptor.
type Outcome struct {
	Candidates []model.Candidate
	// Notes are short provider failure tags such as "serper:quota".
	Notes     []string
	Calls     int
	CacheHits int
	// Complete is false when budget exhaustion or cancellation cut the
	// descriptor short, when it ended without candidates after provider
	// failures, or when no provider answered because none could be called.
	Complete        bool
	BudgetExhausted bool
}

// Orchestrator runs the query × provider fallback loop.
type Orchestrator struct {
	cache   Cache
	gateway Caller
	opts    Options
}

// New creates an Orchestrator.
func New(c Cache, gw Caller, opts Options) *Orchestrator {
	if len(opts.ProviderOrder) == 0 {
		opts.ProviderOrder = provider.DefaultOrder
	}
	return &Orchestrator{cache: c, gateway: gw, opts: opts}
}

type lookup struct {
	cands  []model.Candidate
	cached bool
	calls  int
	err    error
}

// Resolve gathers candidates for d. Provider failures are recorded in the
// outcome; the returned error is non-nil only when a cache write failed.
func (o *Orchestrator) Resolve(ctx context.Context, s *Session, d model.Descriptor) (Outcome, error) {
	out := Outcome{Candidates: []model.Candidate{}, Complete: true}
	queries := query.Generate(d)
	if len(queries) == 0 {
		return out, nil
	}

	satisfied := make(map[string]bool)
	seen := make(map[string]bool)
	providerErrors := 0
	unserved, answered := 0, 0

	for rank, q := range queries {
		for _, name := range o.opts.ProviderOrder {
			if satisfied[name] {
				continue
			}
			if ctx.Err() != nil {
				out.Complete = false
				return out, nil
			}

			res, executed, err := o.lookup(ctx, s, name, q)
			if err != nil {
				out.Complete = false
				return out, err
			}
			if executed {
				out.Calls += res.calls
			}

			switch {
			case errors.Is(res.err, ErrBudgetExhausted):
				out.BudgetExhausted = true
				out.Complete = false
				continue
			case errors.Is(res.err, ErrUnavailable):
				unserved++
				continue
			case res.err != nil:
				providerErrors++
				out.Notes = append(out.Notes, provider.Classify(name, res.err).Note())
				zap.L().Debug("fallback: provider failed, trying next",
					zap.String("raw_name", d.RawName),
					zap.String("provider", name),
					zap.Error(res.err),
				)
				continue
			}
			answered++
			if res.cached {
				out.CacheHits++
			}

			for _, c := range res.cands {
				key := dedupeKey(c)
				if seen[key] {
					continue
				}
				seen[key] = true
				out.Candidates = append(out.Candidates, c.WithProvenance(name, rank+1, q))
			}

			if len(res.cands) > 0 {
				satisfied[name] = true
				if o.opts.StopOnFirstSuccess {
					return out, nil
				}
			}
		}
	}

	if len(out.Candidates) == 0 && (providerErrors > 0 || (unserved > 0 && answered == 0)) {
		out.Complete = false
	}
	return out, nil
}

// lookup answers one (provider, query) pair from the cache or a provider
// call. Providers without credentials are still answered from the cache. Concurrent lookups of the same pair share one execution; executed
// reports whether this caller ran it.
func (o *Orchestrator) lookup(ctx context.Context, s *Session, name, q string) (lookup, bool, error) {
	executed := false
	v, err, _ := s.group.Do(name+"|"+cache.Key(q), func() (any, error) {
		executed = true

		cands, hit, err := o.cache.Get(ctx, q, name)
		if err != nil {
			zap.L().Warn("fallback: cache read failed, treating as miss",
				zap.String("provider", name),
				zap.String("query", q),
				zap.Error(err),
			)
		}
		if hit {
			s.recordHit()
			zap.L().Debug("fallback: cache hit",
				zap.String("provider", name),
				zap.String("query", q),
				zap.Int("candidates", len(cands)),
			)
			return lookup{cands: cands, cached: true}, nil
		}

		if !o.gateway.Available(name) {
			return lookup{err: ErrUnavailable}, nil
		}
		if s.Budget.Exhausted() {
			o.logBudget(s)
			return lookup{err: ErrBudgetExhausted}, nil
		}

		attempts := 0
		acquire := func() bool {
			if !s.Budget.TryTake() {
				return false
			}
			attempts++
			return true
		}
		cands, err = o.gateway.Call(ctx, name, q, acquire)
		if err != nil {
			budget := errors.Is(err, provider.ErrNoBudget)
			s.recordCalls(name, attempts, !budget)
			if budget {
				o.logBudget(s)
				return lookup{err: ErrBudgetExhausted, calls: attempts}, nil
			}
			return lookup{err: err, calls: attempts}, nil
		}
		s.recordCalls(name, attempts, false)

		if err := o.cache.Put(context.WithoutCancel(ctx), q, name, cands, o.opts.CacheTTL); err != nil {
			return nil, eris.Wrapf(err, "fallback: cache %s result for %q", name, q)
		}
		return lookup{cands: cands, calls: attempts}, nil
	})
	if err != nil {
		return lookup{}, executed, err
	}
	return v.(lookup), executed, nil
}

func (o *Orchestrator) logBudget(s *Session) {
	s.budgetOnce.Do(func() {
		zap.L().Info("fallback: call budget exhausted, using cache only",
			zap.Int("calls", s.Budget.Used()),
		)
	})
}

func dedupeKey(c model.Candidate) string {
	if c.URL != "" {
		return provider.CanonicalURL(c.URL)
	}
	return "name:" + strings.ToLower(strings.TrimSpace(c.Name))
}
