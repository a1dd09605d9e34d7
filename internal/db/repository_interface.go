package db

import (
	"context"

	"github.com/benbakir04-create/teachers-report/backend/internal/models"
)

// RecordRepository defines operations for record persistence.
type RecordRepository interface {
	PutRecord(ctx context.Context, rec models.Record) error
	GetRecord(ctx context.Context, collection models.Collection, id string) (models.Record, error)
	ListRecords(ctx context.Context, collection models.Collection) ([]models.Record, error)
	DeleteRecord(ctx context.Context, collection models.Collection, id string) error
	CountRecords(ctx context.Context, collection models.Collection) (int, error)
}

// Ensure *Repository implements the interface at compile time.
var _ RecordRepository = (*Repository)(nil)
