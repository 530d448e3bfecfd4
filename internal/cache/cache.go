// Package cache is the persistent (query, provider) result cache that keeps
// repeated runs from paying for the same search twice.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/wine-resolver/internal/model"
	"github.com/sells-group/wine-resolver/internal/store"
)

// ErrPersist marks a failure to durably record a cache entry.
var ErrPersist = eris.New("cache: persist failed")

// Backend is the storage the cache reads and writes through.
type Backend interface {
	GetCachedQuery(ctx context.Context, provider, query string) (*store.CachedQuery, error)
	SetCachedQuery(ctx context.Context, entry store.CachedQuery) error
}

// QueryCache maps (normalized query, provider) to the candidates returned by
// that provider. Empty result lists are cached like any other answer.
type QueryCache struct {
	backend Backend
	now     func() time.Time
	// scopes hold per-provider settings that shape result sets. They are
	// part of the stored key so a settings change never serves old answers.
	scopes map[string]string

	hits   atomic.Int64
	misses atomic.Int64
}

// Option configures a QueryCache.
type Option func(*QueryCache)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *QueryCache) { c.now = now }
}

// WithScopes sets the per-provider scope folded into stored keys.
func WithScopes(scopes map[string]string) Option {
	return func(c *QueryCache) { c.scopes = scopes }
}

// New creates a QueryCache.
func New(backend Backend, opts ...Option) *QueryCache {
	c := &QueryCache{backend: backend, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key normalizes a query for cache lookups: lowercase, trimmed, single spaces.
func Key(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// Scope renders the provider settings that change what a search returns.
func Scope(maxResults int, siteDomain, pathMarker string) string {
	return fmt.Sprintf("n=%d site=%s%s", maxResults, strings.ToLower(siteDomain), pathMarker)
}

func (c *QueryCache) key(provider, query string) string {
	if scope := c.scopes[provider]; scope != "" {
		return scope + "|" + Key(query)
	}
	return Key(query)
}

// Get returns the cached candidates for (query, provider). Expired entries
// are reported as misses.
func (c *QueryCache) Get(ctx context.Context, query, provider string) ([]model.Candidate, bool, error) {
	entry, err := c.backend.GetCachedQuery(ctx, provider, c.key(provider, query))
	if err != nil {
		c.misses.Add(1)
		return nil, false, eris.Wrap(err, "cache: get")
	}
	if entry == nil || entry.Expired(c.now()) {
		c.misses.Add(1)
		return nil, false, nil
	}

	var cands []model.Candidate
	if err := json.Unmarshal(entry.Results, &cands); err != nil {
		c.misses.Add(1)
		return nil, false, eris.Wrapf(err, "cache: decode %s/%s", provider, entry.Query)
	}
	if cands == nil {
		cands = []model.Candidate{}
	}
	c.hits.Add(1)
	return cands, true, nil
}

// Put stores candidates for (query, provider). A ttl of zero or less stores
// an entry that never expires. The write is flushed before
// Put returns; a failure wraps ErrPersist.
func (c *QueryCache) Put(ctx context.Context, query, provider string, cands []model.Candidate, ttl time.Duration) error {
	stripped := make([]model.Candidate, len(cands))
	for i, cand := range cands {
		stripped[i] = cand.StripProvenance()
	}
	data, err := json.Marshal(stripped)
	if err != nil {
		return eris.Wrap(ErrPersist, "encode candidates: "+err.Error())
	}

	err = c.backend.SetCachedQuery(ctx, store.CachedQuery{
		Provider: provider,
		Query:    c.key(provider, query),
		Results:  data,
		CachedAt: c.now().UTC(),
		TTL:      ttl,
	})
	if err != nil {
		return eris.Wrap(ErrPersist, err.Error())
	}
	return nil
}

// Stats returns hit and miss counts since the cache was created.
func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
