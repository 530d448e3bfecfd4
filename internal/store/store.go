// Package store persists the query cache and resolver run state.
package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/wine-resolver/internal/model"
)

// CachedQuery is one (provider, query) entry of the query cache.
type CachedQuery struct {
	Provider string
	Query    string // normalized cache key
	Results  []byte // JSON-encoded []model.Candidate
	CachedAt time.Time
	TTL      time.Duration // zero means the entry never expires
}

// Expired reports whether the entry is stale at now.
func (c *CachedQuery) Expired(now time.Time) bool {
	return c.TTL > 0 && !now.Before(c.CachedAt.Add(c.TTL))
}

// CacheStats summarizes cache entries for one provider.
type CacheStats struct {
	Provider string `json:"provider"`
	Entries  int    `json:"entries"`
	Expired  int    `json:"expired"`
}

// RunRecord is the audit row written when a run commits its state.
type RunRecord struct {
	ID          string
	CommittedAt time.Time
	Processed   int
	Summary     []byte // JSON-encoded run summary
}

// Store defines the persistence interface for the resolver.
type Store interface {
	// Query cache
	GetCachedQuery(ctx context.Context, provider, query string) (*CachedQuery, error)
	SetCachedQuery(ctx context.Context, entry CachedQuery) error
	DeleteExpiredQueries(ctx context.Context, now time.Time) (int, error)
	QueryCacheStats(ctx context.Context, now time.Time) ([]CacheStats, error)

	// Run state
	LoadRunState(ctx context.Context) (*model.RunState, error)
	CommitRunState(ctx context.Context, run RunRecord, entries []model.ProcessedEntry) error
	ResetRunState(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

func expiresAt(e CachedQuery) sql.NullInt64 {
	if e.TTL <= 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: e.CachedAt.Add(e.TTL).UnixMilli(), Valid: true}
}

func validateEntry(e CachedQuery) error {
	if e.Provider == "" || e.Query == "" {
		return eris.New("store: cache entry requires provider and query")
	}
	return nil
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
