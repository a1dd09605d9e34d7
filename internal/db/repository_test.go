package db

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benbakir04-create/teachers-report/backend/internal/models"
)

func setupRepo(t *testing.T) (*Repository, *DB) {
	t.Helper()
	database, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, database.Migrate())

	repo := NewRepository(database.DB)
	t.Cleanup(func() {
		repo.Close()
		database.Close()
	})
	return repo, database
}

func TestRepository_PutGet(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	rec := models.Record{
		ID:         "r1",
		Collection: models.CollectionReports,
		Key:        "2026-03-01|t1",
		Payload:    []byte(`{"notes":"hello"}`),
		CreatedAt:  1000,
	}
	require.NoError(t, repo.PutRecord(ctx, rec))

	got, err := repo.GetRecord(ctx, models.CollectionReports, "r1")
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestRepository_PutOverwrites(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	rec := models.Record{ID: "r1", Collection: models.CollectionReports, Payload: []byte(`{"v":1}`), CreatedAt: 1}
	require.NoError(t, repo.PutRecord(ctx, rec))
	rec.Payload = []byte(`{"v":2}`)
	require.NoError(t, repo.PutRecord(ctx, rec))

	n, err := repo.CountRecords(ctx, models.CollectionReports)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := repo.GetRecord(ctx, models.CollectionReports, "r1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(got.Payload))
}

func TestRepository_CollectionsAreIsolated(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.PutRecord(ctx, models.Record{ID: "same", Collection: models.CollectionReports, Payload: []byte(`1`), CreatedAt: 1}))
	require.NoError(t, repo.PutRecord(ctx, models.Record{ID: "same", Collection: models.CollectionSyncQueue, Payload: []byte(`2`), CreatedAt: 1}))

	reports, err := repo.ListRecords(ctx, models.CollectionReports)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "1", string(reports[0].Payload))

	require.NoError(t, repo.DeleteRecord(ctx, models.CollectionReports, "same"))
	n, _ := repo.CountRecords(ctx, models.CollectionSyncQueue)
	assert.Equal(t, 1, n)
}

func TestRepository_DeleteAbsentIsNoop(t *testing.T) {
	repo, _ := setupRepo(t)
	assert.NoError(t, repo.DeleteRecord(context.Background(), models.CollectionSettings, "missing"))
}

func TestRepository_GetMissing(t *testing.T) {
	repo, _ := setupRepo(t)
	_, err := repo.GetRecord(context.Background(), models.CollectionSettings, "missing")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestRepository_CorruptPayload(t *testing.T) {
	repo, database := setupRepo(t)
	ctx := context.Background()

	_, err := database.Exec(`INSERT INTO records (collection, id, business_key, payload, created_at)
		VALUES ('syncQueue', 'bad', '', x'ffffffff', 1)`)
	require.NoError(t, err)

	records, err := repo.ListRecords(ctx, models.CollectionSyncQueue)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Nil(t, records[0].Payload)
}

func TestRepository_ListOrder(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	for i, id := range []string{"c", "a", "b"} {
		require.NoError(t, repo.PutRecord(ctx, models.Record{
			ID: id, Collection: models.CollectionReports, Payload: []byte(`{}`), CreatedAt: int64(10 - i),
		}))
	}

	records, err := repo.ListRecords(ctx, models.CollectionReports)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"b", "a", "c"}, []string{records[0].ID, records[1].ID, records[2].ID})
}
