package db

import (
	"context"
	"fmt"
	"sync"

	"github.com/golang/snappy"
	"github.com/jmoiron/sqlx"

	"github.com/benbakir04-create/teachers-report/backend/internal/models"
)

// Repository provides CRUD operations on the records table.
// Payloads are snappy-compressed at rest.
type Repository struct {
	db *sqlx.DB

	// Statements are prepared on first use and cached for reuse.
	stmtCache sync.Map // map[string]*sqlx.Stmt
}

// recordRow is the on-disk shape of a models.Record.
type recordRow struct {
	Collection string `db:"collection"`
	ID         string `db:"id"`
	Key        string `db:"business_key"`
	Payload    []byte `db:"payload"`
	CreatedAt  int64  `db:"created_at"`
}

// NewRepository creates a new Repository instance.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// PrepareStmt gets or creates a prepared statement from cache.
func (r *Repository) PrepareStmt(query string) (*sqlx.Stmt, error) {
	if stmt, ok := r.stmtCache.Load(query); ok {
		return stmt.(*sqlx.Stmt), nil
	}

	stmt, err := r.db.Preparex(query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}

	// Another goroutine may have prepared the same query meanwhile.
	actual, loaded := r.stmtCache.LoadOrStore(query, stmt)
	if loaded {
		stmt.Close()
		return actual.(*sqlx.Stmt), nil
	}
	return stmt, nil
}

// Close closes all cached prepared statements.
func (r *Repository) Close() error {
	var firstErr error
	r.stmtCache.Range(func(key, value interface{}) bool {
		if err := value.(*sqlx.Stmt).Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		r.stmtCache.Delete(key)
		return true
	})
	return firstErr
}

// PutRecord inserts rec or overwrites the record with the same id.
func (r *Repository) PutRecord(ctx context.Context, rec models.Record) error {
	stmt, err := r.PrepareStmt(`
	INSERT INTO records (collection, id, business_key, payload, created_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(collection, id) DO UPDATE SET
		business_key = excluded.business_key,
		payload = excluded.payload,
		created_at = excluded.created_at
	`)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, string(rec.Collection), rec.ID, rec.Key,
		snappy.Encode(nil, rec.Payload), rec.CreatedAt)
	return err
}

// GetRecord retrieves one record. Returns sql.ErrNoRows when absent.
func (r *Repository) GetRecord(ctx context.Context, collection models.Collection, id string) (models.Record, error) {
	stmt, err := r.PrepareStmt(`
	SELECT collection, id, business_key, payload, created_at
	FROM records WHERE collection = ? AND id = ?
	`)
	if err != nil {
		return models.Record{}, err
	}

	var row recordRow
	if err := stmt.GetContext(ctx, &row, string(collection), id); err != nil {
		return models.Record{}, err
	}
	return row.toModel(), nil
}

// ListRecords returns every record in collection, oldest first.
func (r *Repository) ListRecords(ctx context.Context, collection models.Collection) ([]models.Record, error) {
	stmt, err := r.PrepareStmt(`
	SELECT collection, id, business_key, payload, created_at
	FROM records WHERE collection = ?
	ORDER BY created_at, id
	`)
	if err != nil {
		return nil, err
	}

	var rows []recordRow
	if err := stmt.SelectContext(ctx, &rows, string(collection)); err != nil {
		return nil, err
	}

	records := make([]models.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.toModel())
	}
	return records, nil
}

// DeleteRecord removes a record. Deleting an absent record is not an error.
func (r *Repository) DeleteRecord(ctx context.Context, collection models.Collection, id string) error {
	stmt, err := r.PrepareStmt(`DELETE FROM records WHERE collection = ? AND id = ?`)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, string(collection), id)
	return err
}

// CountRecords returns the number of records in collection.
func (r *Repository) CountRecords(ctx context.Context, collection models.Collection) (int, error) {
	stmt, err := r.PrepareStmt(`SELECT COUNT(*) FROM records WHERE collection = ?`)
	if err != nil {
		return 0, err
	}
	var n int
	err = stmt.GetContext(ctx, &n, string(collection))
	return n, err
}

// toModel decompresses the payload. A payload that fails to decompress is
// returned as nil so the caller can treat the record as corrupt.
func (row recordRow) toModel() models.Record {
	payload, err := snappy.Decode(nil, row.Payload)
	if err != nil {
		payload = nil
	}
	return models.Record{
		ID:         row.ID,
		Collection: models.Collection(row.Collection),
		Key:        row.Key,
		Payload:    payload,
		CreatedAt:  row.CreatedAt,
	}
}
