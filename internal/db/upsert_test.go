package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var processedCfg = UpsertConfig{
	Table:        "processed_names",
	Columns:      []string{"raw_name", "had_override", "run_id", "processed_at"},
	ConflictKeys: []string{"raw_name"},
}

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.Background(), nil, processedCfg, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_NoColumns(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:        "processed_names",
		ConflictKeys: []string{"raw_name"},
	}, [][]any{{"a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBulkUpsert_NoConflictKeys(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:   "processed_names",
		Columns: []string{"raw_name"},
	}, [][]any{{"a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestBulkUpsert_Success(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_processed_names"`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_processed_names"}, processedCfg.Columns).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "processed_names" .* ON CONFLICT \("raw_name"\) DO UPDATE SET`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	ctx := context.Background()
	tx, err := mock.Begin(ctx)
	require.NoError(t, err)

	n, err := BulkUpsert(ctx, tx, processedCfg, [][]any{
		{"Opus One 2019", false, "run-1", int64(1)},
		{"Caymus", true, "run-1", int64(1)},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	require.NoError(t, tx.Commit(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_CopyError(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_processed_names"}, processedCfg.Columns).
		WillReturnError(errors.New("copy failed"))
	mock.ExpectRollback()

	ctx := context.Background()
	tx, err := mock.Begin(ctx)
	require.NoError(t, err)

	_, err = BulkUpsert(ctx, tx, processedCfg, [][]any{{"a", false, "r", int64(1)}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY into temp table")
	require.NoError(t, tx.Rollback(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSQL(t *testing.T) {
	got := upsertSQL(processedCfg, "_tmp")
	assert.Equal(t,
		`INSERT INTO "processed_names" ("raw_name", "had_override", "run_id", "processed_at") `+
			`SELECT "raw_name", "had_override", "run_id", "processed_at" FROM "_tmp" `+
			`ON CONFLICT ("raw_name") DO UPDATE SET "had_override" = EXCLUDED."had_override", `+
			`"run_id" = EXCLUDED."run_id", "processed_at" = EXCLUDED."processed_at"`,
		got)

	nothing := upsertSQL(UpsertConfig{Table: "t", Columns: []string{"k"}, ConflictKeys: []string{"k"}}, "_tmp")
	assert.Contains(t, nothing, "DO NOTHING")
}

func TestSanitizeTable(t *testing.T) {
	assert.Equal(t, `"simple"`, sanitizeTable("simple"))
	assert.Equal(t, `"resolver"."processed_names"`, sanitizeTable("resolver.processed_names"))
}

func TestQuoteAndJoin(t *testing.T) {
	assert.Equal(t, `"id", "name", "value"`, quoteAndJoin([]string{"id", "name", "value"}))
}
