package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/wine-resolver/internal/db"
	"github.com/sells-group/wine-resolver/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

var processedUpsert = db.UpsertConfig{
	Table:        "processed_names",
	Columns:      []string{"raw_name", "had_override", "run_id", "processed_at"},
	ConflictKeys: []string{"raw_name"},
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS query_cache (
	provider   TEXT NOT NULL,
	query      TEXT NOT NULL,
	results    JSONB NOT NULL,
	cached_at  BIGINT NOT NULL,
	ttl_ms     BIGINT NOT NULL DEFAULT 0,
	expires_at BIGINT,
	PRIMARY KEY (provider, query)
);

CREATE TABLE IF NOT EXISTS processed_names (
	raw_name     TEXT PRIMARY KEY,
	had_override BOOLEAN NOT NULL DEFAULT false,
	run_id       TEXT NOT NULL,
	processed_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS resolver_runs (
	id           TEXT PRIMARY KEY,
	committed_at BIGINT NOT NULL,
	processed    INTEGER NOT NULL,
	summary      JSONB
);

CREATE INDEX IF NOT EXISTS idx_query_cache_expires_at ON query_cache(expires_at);
CREATE INDEX IF NOT EXISTS idx_resolver_runs_committed_at ON resolver_runs(committed_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) GetCachedQuery(ctx context.Context, provider, query string) (*CachedQuery, error) {
	var (
		results  []byte
		cachedAt int64
		ttlMS    int64
	)
	err := s.pool.QueryRow(ctx,
		`SELECT results, cached_at, ttl_ms FROM query_cache WHERE provider = $1 AND query = $2`,
		provider, query,
	).Scan(&results, &cachedAt, &ttlMS)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get cached query %s/%s", provider, query)
	}
	return &CachedQuery{
		Provider: provider,
		Query:    query,
		Results:  results,
		CachedAt: fromMillis(cachedAt),
		TTL:      time.Duration(ttlMS) * time.Millisecond,
	}, nil
}

func (s *PostgresStore) SetCachedQuery(ctx context.Context, entry CachedQuery) error {
	if err := validateEntry(entry); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO query_cache (provider, query, results, cached_at, ttl_ms, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (provider, query) DO UPDATE SET
			results = EXCLUDED.results,
			cached_at = EXCLUDED.cached_at,
			ttl_ms = EXCLUDED.ttl_ms,
			expires_at = EXCLUDED.expires_at`,
		entry.Provider, entry.Query, entry.Results,
		entry.CachedAt.UnixMilli(), entry.TTL.Milliseconds(), expiresAt(entry),
	)
	return eris.Wrapf(err, "postgres: set cached query %s/%s", entry.Provider, entry.Query)
}

func (s *PostgresStore) DeleteExpiredQueries(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM query_cache WHERE expires_at IS NOT NULL AND expires_at <= $1`,
		now.UnixMilli(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired queries")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) QueryCacheStats(ctx context.Context, now time.Time) ([]CacheStats, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT provider, COUNT(*)::int,
			COUNT(*) FILTER (WHERE expires_at IS NOT NULL AND expires_at <= $1)::int
		FROM query_cache GROUP BY provider ORDER BY provider`,
		now.UnixMilli(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: cache stats")
	}
	defer rows.Close()

	var stats []CacheStats
	for rows.Next() {
		var st CacheStats
		if err := rows.Scan(&st.Provider, &st.Entries, &st.Expired); err != nil {
			return nil, eris.Wrap(err, "postgres: scan cache stats")
		}
		stats = append(stats, st)
	}
	return stats, eris.Wrap(rows.Err(), "postgres: iterate cache stats")
}

func (s *PostgresStore) LoadRunState(ctx context.Context) (*model.RunState, error) {
	state := model.NewRunState()

	rows, err := s.pool.Query(ctx,
		`SELECT raw_name, had_override, run_id, processed_at FROM processed_names`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load processed names")
	}
	defer rows.Close()
	for rows.Next() {
		var (
			e           model.ProcessedEntry
			processedAt int64
		)
		if err := rows.Scan(&e.RawName, &e.HadOverride, &e.RunID, &processedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan processed name")
		}
		e.ProcessedAt = fromMillis(processedAt)
		state.Processed[e.RawName] = e
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate processed names")
	}

	var (
		runID       string
		committedAt int64
	)
	err = s.pool.QueryRow(ctx,
		`SELECT id, committed_at FROM resolver_runs ORDER BY committed_at DESC LIMIT 1`,
	).Scan(&runID, &committedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return nil, eris.Wrap(err, "postgres: load last run")
	default:
		at := fromMillis(committedAt)
		state.LastRunID = runID
		state.LastRunAt = &at
	}
	return state, nil
}

func (s *PostgresStore) CommitRunState(ctx context.Context, run RunRecord, entries []model.ProcessedEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin run state tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	rows := make([][]any, len(entries))
	for i, e := range entries {
		rows[i] = []any{e.RawName, e.HadOverride, run.ID, e.ProcessedAt.UnixMilli()}
	}
	if _, err := db.BulkUpsert(ctx, tx, processedUpsert, rows); err != nil {
		return eris.Wrap(err, "postgres: upsert processed names")
	}

	var summary any
	if len(run.Summary) > 0 {
		summary = run.Summary
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO resolver_runs (id, committed_at, processed, summary) VALUES ($1, $2, $3, $4)`,
		run.ID, run.CommittedAt.UnixMilli(), run.Processed, summary,
	); err != nil {
		return eris.Wrapf(err, "postgres: insert run %s", run.ID)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit run state")
}

func (s *PostgresStore) ResetRunState(ctx context.Context) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin reset tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx, `DELETE FROM processed_names`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete processed names")
	}
	if _, err := tx.Exec(ctx, `DELETE FROM resolver_runs`); err != nil {
		return 0, eris.Wrap(err, "postgres: delete runs")
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit reset")
	}
	return int(tag.RowsAffected()), nil
}
