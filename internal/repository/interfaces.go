package repository

import (
	"context"
	"errors"

	"emotionserver/internal/dto"
	"emotionserver/internal/model"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// PredictionRepository defines the interface for prediction history operations.
type PredictionRepository interface {
	// Create operations
	Insert(ctx context.Context, p *model.Prediction) (int64, error)

	// Read operations
	GetByID(ctx context.Context, id int64) (*model.Prediction, error)
	GetAll(ctx context.Context, filter *dto.PredictionFilter) ([]model.Prediction, error)
	GetTotalCount(ctx context.Context, filter *dto.PredictionFilter) (int, error)
	GetStats(ctx context.Context) (*model.PredictionStats, error)

	// Delete operations
	Delete(ctx context.Context, id int64) error
	DeleteAll(ctx context.Context) (int64, error)

	Close() error
}
