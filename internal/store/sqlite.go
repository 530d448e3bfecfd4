package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/wine-resolver/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS query_cache (
	provider   TEXT NOT NULL,
	query      TEXT NOT NULL,
	results    TEXT NOT NULL,
	cached_at  INTEGER NOT NULL,
	ttl_ms     INTEGER NOT NULL DEFAULT 0,
	expires_at INTEGER,
	PRIMARY KEY (provider, query)
);

CREATE TABLE IF NOT EXISTS processed_names (
	raw_name     TEXT PRIMARY KEY,
	had_override INTEGER NOT NULL DEFAULT 0,
	run_id       TEXT NOT NULL,
	processed_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS resolver_runs (
	id           TEXT PRIMARY KEY,
	committed_at INTEGER NOT NULL,
	processed    INTEGER NOT NULL,
	summary      TEXT
);

CREATE INDEX IF NOT EXISTS idx_query_cache_expires_at ON query_cache(expires_at);
CREATE INDEX IF NOT EXISTS idx_resolver_runs_committed_at ON resolver_runs(committed_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetCachedQuery(ctx context.Context, provider, query string) (*CachedQuery, error) {
	var (
		results  string
		cachedAt int64
		ttlMS    int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT results, cached_at, ttl_ms FROM query_cache WHERE provider = ? AND query = ?`,
		provider, query,
	).Scan(&results, &cachedAt, &ttlMS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get cached query %s/%s", provider, query)
	}
	return &CachedQuery{
		Provider: provider,
		Query:    query,
		Results:  []byte(results),
		CachedAt: fromMillis(cachedAt),
		TTL:      time.Duration(ttlMS) * time.Millisecond,
	}, nil
}

func (s *SQLiteStore) SetCachedQuery(ctx context.Context, entry CachedQuery) error {
	if err := validateEntry(entry); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO query_cache (provider, query, results, cached_at, ttl_ms, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(provider, query) DO UPDATE SET
			results = excluded.results,
			cached_at = excluded.cached_at,
			ttl_ms = excluded.ttl_ms,
			expires_at = excluded.expires_at`,
		entry.Provider, entry.Query, string(entry.Results),
		entry.CachedAt.UnixMilli(), entry.TTL.Milliseconds(), expiresAt(entry),
	)
	return eris.Wrapf(err, "sqlite: set cached query %s/%s", entry.Provider, entry.Query)
}

func (s *SQLiteStore) DeleteExpiredQueries(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM query_cache WHERE expires_at IS NOT NULL AND expires_at <= ?`,
		now.UnixMilli(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired queries")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return int(n), nil
}

func (s *SQLiteStore) QueryCacheStats(ctx context.Context, now time.Time) ([]CacheStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT provider, COUNT(*),
			COALESCE(SUM(CASE WHEN expires_at IS NOT NULL AND expires_at <= ? THEN 1 ELSE 0 END), 0)
		FROM query_cache GROUP BY provider ORDER BY provider`,
		now.UnixMilli(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: cache stats")
	}
	defer rows.Close()

	var stats []CacheStats
	for rows.Next() {
		var st CacheStats
		if err := rows.Scan(&st.Provider, &st.Entries, &st.Expired); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan cache stats")
		}
		stats = append(stats, st)
	}
	return stats, eris.Wrap(rows.Err(), "sqlite: iterate cache stats")
}

func (s *SQLiteStore) LoadRunState(ctx context.Context) (*model.RunState, error) {
	state := model.NewRunState()

	rows, err := s.db.QueryContext(ctx,
		`SELECT raw_name, had_override, run_id, processed_at FROM processed_names`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load processed names")
	}
	defer rows.Close()
	for rows.Next() {
		var (
			e           model.ProcessedEntry
			hadOverride int
			processedAt int64
		)
		if err := rows.Scan(&e.RawName, &hadOverride, &e.RunID, &processedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan processed name")
		}
		e.HadOverride = hadOverride != 0
		e.ProcessedAt = fromMillis(processedAt)
		state.Processed[e.RawName] = e
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate processed names")
	}

	var (
		runID       string
		committedAt int64
	)
	err = s.db.QueryRowContext(ctx,
		`SELECT id, committed_at FROM resolver_runs ORDER BY committed_at DESC LIMIT 1`,
	).Scan(&runID, &committedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, eris.Wrap(err, "sqlite: load last run")
	default:
		at := fromMillis(committedAt)
		state.LastRunID = runID
		state.LastRunAt = &at
	}
	return state, nil
}

func (s *SQLiteStore) CommitRunState(ctx context.Context, run RunRecord, entries []model.ProcessedEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin run state tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO processed_names (raw_name, had_override, run_id, processed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(raw_name) DO UPDATE SET
			had_override = excluded.had_override,
			run_id = excluded.run_id,
			processed_at = excluded.processed_at`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare processed upsert")
	}
	defer stmt.Close()

	for _, e := range entries {
		hadOverride := 0
		if e.HadOverride {
			hadOverride = 1
		}
		if _, err := stmt.ExecContext(ctx, e.RawName, hadOverride, run.ID, e.ProcessedAt.UnixMilli()); err != nil {
			return eris.Wrapf(err, "sqlite: upsert processed %q", e.RawName)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO resolver_runs (id, committed_at, processed, summary) VALUES (?, ?, ?, ?)`,
		run.ID, run.CommittedAt.UnixMilli(), run.Processed, string(run.Summary),
	); err != nil {
		return eris.Wrapf(err, "sqlite: insert run %s", run.ID)
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit run state")
}

func (s *SQLiteStore) ResetRunState(ctx context.Context) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin reset tx")
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `DELETE FROM processed_names`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete processed names")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM resolver_runs`); err != nil {
		return 0, eris.Wrap(err, "sqlite: delete runs")
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit reset")
	}
	return int(n), nil
}
