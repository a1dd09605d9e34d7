// Package store implements the local store: durable keyed collections of
// records (reports, sync queue, settings) that survive restarts.
package store

import (
	"context"

	apperrors "github.com/benbakir04-create/teachers-report/backend/internal/errors"
	"github.com/benbakir04-create/teachers-report/backend/internal/models"
)

// Store is the local persistence contract. Every method is safe for
// concurrent use; each call is its own transaction.
type Store interface {
	// Put inserts rec or overwrites the record with the same ID.
	Put(ctx context.Context, collection models.Collection, rec models.Record) error
	// Get returns one record, or a NOT_FOUND AppError.
	Get(ctx context.Context, collection models.Collection, id string) (models.Record, error)
	// GetAll returns every record in collection in unspecified order.
	GetAll(ctx context.Context, collection models.Collection) ([]models.Record, error)
	// Delete removes a record; deleting an absent id is not an error.
	Delete(ctx context.Context, collection models.Collection, id string) error
	// Count returns the number of records in collection.
	Count(ctx context.Context, collection models.Collection) (int, error)
}

func checkCollection(collection models.Collection) error {
	if !collection.Valid() {
		return apperrors.New(apperrors.ErrInvalid, "unknown collection "+string(collection))
	}
	return nil
}

func checkRecord(collection models.Collection, rec models.Record) error {
	if err := checkCollection(collection); err != nil {
		return err
	}
	if rec.ID == "" {
		return apperrors.New(apperrors.ErrInvalid, "record id is required")
	}
	return nil
}

func notFound(collection models.Collection, id string) error {
	return apperrors.New(apperrors.ErrNotFound, string(collection)+"/"+id+" not found")
}
