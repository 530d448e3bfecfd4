package provider

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/wine-resolver/internal/model"
	"github.com/sells-group/wine-resolver/internal/resilience"
)

// DefaultCallTimeout bounds a single provider call.
const DefaultCallTimeout = 20 * time.Second

// Gateway calls registered providers with a per-call timeout, a per-provider
// rate limiter and circuit breaker, and optional retries.
type Gateway struct {
	registry *Registry
	timeout  time.Duration
	policy   resilience.Policy
	breakers *resilience.Breakers

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithCallTimeout sets the per-call timeout.
func WithCallTimeout(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithRetryPolicy sets the retry policy. Its Retryable func is replaced by
// the provider error classification.
func WithRetryPolicy(p resilience.Policy) GatewayOption {
	return func(g *Gateway) { g.policy = p }
}

// WithBreakers sets the breaker registry.
func WithBreakers(bs *resilience.Breakers) GatewayOption {
	return func(g *Gateway) { g.breakers = bs }
}

// WithRateLimit limits calls to provider to perSec with the given burst.
// perSec <= 0 leaves the provider unlimited.
func WithRateLimit(provider string, perSec float64, burst int) GatewayOption {
	return func(g *Gateway) {
		if perSec <= 0 {
			return
		}
		if burst < 1 {
			burst = 1
		}
		g.limiters[provider] = rate.NewLimiter(rate.Limit(perSec), burst)
	}
}

// NewGateway creates a gateway over registry.
func NewGateway(registry *Registry, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		registry: registry,
		timeout:  DefaultCallTimeout,
		policy:   resilience.DefaultPolicy(),
		breakers: resilience.NewBreakers(resilience.BreakerConfig{}),
		limiters: make(map[string]*rate.Limiter),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Available reports whether name is registered and has credentials.
func (g *Gateway) Available(name string) bool {
	p := g.registry.Get(name)
	return p != nil && p.Available()
}

// Breakers exposes the breaker registry for reporting.
func (g *Gateway) Breakers() *resilience.Breakers { return g.breakers }

// Call runs query against the named provider. acquire is asked for one
// budget unit before every attempt that would reach the provider; when it
// refuses, Call returns ErrNoBudget. Any other failure is a *ProviderError.
func (g *Gateway) Call(ctx context.Context, name, query string, acquire func() bool) ([]model.Candidate, error) {
	p := g.registry.Get(name)
	if p == nil {
		return nil, &ProviderError{Provider: name, Kind: KindNotRegistered, Err: ErrProviderUnavailable}
	}
	if !p.Available() {
		return nil, &ProviderError{Provider: name, Kind: KindMissingCredentials, Err: ErrProviderUnavailable}
	}

	policy := g.policy
	policy.Retryable = func(err error) bool {
		var pe *ProviderError
		return errors.As(err, &pe) && pe.Retryable()
	}
	if policy.OnRetry == nil {
		policy.OnRetry = resilience.RetryLogger(name)
	}

	br := g.breakers.For(name)
	limiter := g.limiter(name)

	return resilience.Retry(ctx, policy, func(ctx context.Context, attempt int) ([]model.Candidate, error) {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return nil, Classify(name, err)
			}
		}
		if err := br.Allow(); err != nil {
			return nil, Classify(name, err)
		}
		if acquire != nil && !acquire() {
			br.Cancel()
			return nil, ErrNoBudget
		}

		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		start := time.Now()
		cands, err := p.Search(callCtx, query)
		if err != nil && ctx.Err() != nil {
			br.Cancel()
			return nil, &ProviderError{Provider: name, Kind: KindCanceled, Err: err}
		}
		br.Record(err)
		if err != nil {
			if callCtx.Err() == context.DeadlineExceeded {
				err = &ProviderError{Provider: name, Kind: KindTimeout, Err: err}
			}
			zap.L().Warn("provider: call failed",
				zap.String("provider", name),
				zap.String("query", query),
				zap.Int("attempt", attempt),
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err),
			)
			return nil, Classify(name, err)
		}
		zap.L().Debug("provider: call succeeded",
			zap.String("provider", name),
			zap.String("query", query),
			zap.Int("results", len(cands)),
			zap.Duration("elapsed", time.Since(start)),
		)
		return normalize(name, cands), nil
	})
}

func (g *Gateway) limiter(name string) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.limiters[name]
}

// normalize trims names, drops nameless results, dedupes by URL and stamps
// the provider. The result is never nil.
func normalize(provider string, cands []model.Candidate) []model.Candidate {
	out := make([]model.Candidate, 0, len(cands))
	seen := make(map[string]bool, len(cands))
	for _, c := range cands {
		c.Name = strings.TrimSpace(c.Name)
		c.URL = strings.TrimSpace(c.URL)
		if c.Name == "" {
			continue
		}
		key := c.URL
		if key == "" {
			key = "name:" + strings.ToLower(c.Name)
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		c.Provider = provider
		out = append(out, c)
	}
	return out
}
