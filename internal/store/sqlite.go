package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/benbakir04-create/teachers-report/backend/internal/db"
	apperrors "github.com/benbakir04-create/teachers-report/backend/internal/errors"
	"github.com/benbakir04-create/teachers-report/backend/internal/models"
)

// SQLStore is a Store backed by the SQLite records table.
type SQLStore struct {
	database *db.DB
	repo     *db.Repository
}

var _ Store = (*SQLStore)(nil)

// OpenSQLite opens (creating if needed) the database in dataDir and
// applies pending migrations.
func OpenSQLite(dataDir string) (*SQLStore, error) {
	database, err := db.Open(dataDir)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorageUnavailable, "open database", err)
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, apperrors.Wrap(apperrors.ErrMigration, "migrate database", err)
	}

	return &SQLStore{database: database, repo: db.NewRepository(database.DB)}, nil
}

// Put implements Store.
func (s *SQLStore) Put(ctx context.Context, collection models.Collection, rec models.Record) error {
	if err := checkRecord(collection, rec); err != nil {
		return err
	}
	rec.Collection = collection
	if err := s.repo.PutRecord(ctx, rec); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "put record", err)
	}
	return nil
}

// Get implements Store.
func (s *SQLStore) Get(ctx context.Context, collection models.Collection, id string) (models.Record, error) {
	if err := checkCollection(collection); err != nil {
		return models.Record{}, err
	}
	rec, err := s.repo.GetRecord(ctx, collection, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Record{}, notFound(collection, id)
	}
	if err != nil {
		return models.Record{}, apperrors.Wrap(apperrors.ErrDatabase, "get record", err)
	}
	return rec, nil
}

// GetAll implements Store.
func (s *SQLStore) GetAll(ctx context.Context, collection models.Collection) ([]models.Record, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	records, err := s.repo.ListRecords(ctx, collection)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "list records", err)
	}
	return records, nil
}

// Delete implements Store.
func (s *SQLStore) Delete(ctx context.Context, collection models.Collection, id string) error {
	if err := checkCollection(collection); err != nil {
		return err
	}
	if err := s.repo.DeleteRecord(ctx, collection, id); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "delete record", err)
	}
	return nil
}

// Count implements Store.
func (s *SQLStore) Count(ctx context.Context, collection models.Collection) (int, error) {
	if err := checkCollection(collection); err != nil {
		return 0, err
	}
	n, err := s.repo.CountRecords(ctx, collection)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrDatabase, "count records", err)
	}
	return n, nil
}

// Close releases prepared statements and the database handle.
func (s *SQLStore) Close() error {
	stmtErr := s.repo.Close()
	if err := s.database.Close(); err != nil {
		return err
	}
	return stmtErr
}
