package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/wine-resolver/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return &PostgresStore{pool: mock}, mock
}

func TestPostgresStore_ImplementsStore(t *testing.T) {
	var _ Store = (*PostgresStore)(nil)
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS query_cache`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetCachedQuery_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT results, cached_at, ttl_ms FROM query_cache`).
		WithArgs("brave", "opus one").
		WillReturnError(pgx.ErrNoRows)

	got, err := s.GetCachedQuery(context.Background(), "brave", "opus one")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetCachedQuery_Found(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT results, cached_at, ttl_ms FROM query_cache`).
		WithArgs("brave", "opus one").
		WillReturnRows(pgxmock.NewRows([]string{"results", "cached_at", "ttl_ms"}).
			AddRow([]byte(`[]`), at.UnixMilli(), int64(3600000)))

	got, err := s.GetCachedQuery(context.Background(), "brave", "opus one")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []byte(`[]`), got.Results)
	assert.True(t, got.CachedAt.Equal(at))
	assert.Equal(t, time.Hour, got.TTL)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetCachedQuery_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT results`).
		WithArgs("brave", "q").
		WillReturnError(errors.New("connection reset"))

	_, err := s.GetCachedQuery(context.Background(), "brave", "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get cached query")
}

func TestPostgresStore_SetCachedQuery(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO query_cache .* ON CONFLICT \(provider, query\) DO UPDATE`).
		WithArgs("brave", "q", []byte(`[]`), at.UnixMilli(), int64(3600000), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SetCachedQuery(context.Background(), CachedQuery{
		Provider: "brave", Query: "q", Results: []byte(`[]`), CachedAt: at, TTL: time.Hour,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteExpiredQueries(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(`DELETE FROM query_cache WHERE expires_at IS NOT NULL`).
		WithArgs(now.UnixMilli()).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))

	n, err := s.DeleteExpiredQueries(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_QueryCacheStats(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT provider, COUNT`).
		WithArgs(now.UnixMilli()).
		WillReturnRows(pgxmock.NewRows([]string{"provider", "entries", "expired"}).
			AddRow("brave", 3, 1).
			AddRow("serper", 2, 0))

	stats, err := s.QueryCacheStats(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, []CacheStats{
		{Provider: "brave", Entries: 3, Expired: 1},
		{Provider: "serper", Entries: 2, Expired: 0},
	}, stats)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadRunState(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT raw_name, had_override, run_id, processed_at FROM processed_names`).
		WillReturnRows(pgxmock.NewRows([]string{"raw_name", "had_override", "run_id", "processed_at"}).
			AddRow("Opus One 2019", true, "run-1", at.UnixMilli()))
	mock.ExpectQuery(`SELECT id, committed_at FROM resolver_runs`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "committed_at"}).AddRow("run-1", at.UnixMilli()))

	state, err := s.LoadRunState(context.Background())
	require.NoError(t, err)
	require.Contains(t, state.Processed, "Opus One 2019")
	assert.True(t, state.Processed["Opus One 2019"].HadOverride)
	assert.Equal(t, "run-1", state.LastRunID)
	require.NotNil(t, state.LastRunAt)
	assert.True(t, state.LastRunAt.Equal(at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadRunState_NoRuns(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT raw_name`).
		WillReturnRows(pgxmock.NewRows([]string{"raw_name", "had_override", "run_id", "processed_at"}))
	mock.ExpectQuery(`SELECT id, committed_at FROM resolver_runs`).
		WillReturnError(pgx.ErrNoRows)

	state, err := s.LoadRunState(context.Background())
	require.NoError(t, err)
	assert.Empty(t, state.Processed)
	assert.Nil(t, state.LastRunAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CommitRunState(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_processed_names"`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_processed_names"}, processedUpsert.Columns).
		WillReturnResult(1)
	mock.ExpectExec(`INSERT INTO "processed_names"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO resolver_runs`).
		WithArgs("run-1", at.UnixMilli(), 1, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := s.CommitRunState(context.Background(), RunRecord{ID: "run-1", CommittedAt: at, Processed: 1},
		[]model.ProcessedEntry{{RawName: "Opus One 2019", ProcessedAt: at}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CommitRunState_RollsBackOnError(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO resolver_runs`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("duplicate key"))
	mock.ExpectRollback()

	err := s.CommitRunState(context.Background(), RunRecord{ID: "run-1", CommittedAt: at}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert run")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ResetRunState(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM processed_names`).WillReturnResult(pgxmock.NewResult("DELETE", 7))
	mock.ExpectExec(`DELETE FROM resolver_runs`).WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectCommit()

	n, err := s.ResetRunState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
