package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"emotionserver/internal/dto"
	"emotionserver/internal/model"
	"emotionserver/internal/repository"
)

const predictionColumns = `id, request_id, emotion, confidence, x, y, width, height, source, created_at`

func placeholder(int) string { return "?" }

// PredictionRepository implements repository.PredictionRepository for SQLite.
type PredictionRepository struct {
	db *DB
}

// NewPredictionRepository creates a new SQLite prediction repository.
func NewPredictionRepository(db *DB) *PredictionRepository {
	return &PredictionRepository{db: db}
}

// Open opens the database at path and returns a repository owning it.
func Open(path string) (*PredictionRepository, error) {
	db, err := New(path)
	if err != nil {
		return nil, err
	}
	return NewPredictionRepository(db), nil
}

// Insert adds a new prediction record to the database.
func (r *PredictionRepository) Insert(ctx context.Context, p *model.Prediction) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().ExecContext(ctx, `
		INSERT INTO predictions (request_id, emotion, confidence, x, y, width, height, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.RequestID, p.Emotion, p.Confidence, p.X, p.Y, p.Width, p.Height, p.Source, p.CreatedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to insert prediction: %w", err)
	}

	return result.LastInsertId()
}

// GetByID retrieves a prediction by its ID.
func (r *PredictionRepository) GetByID(ctx context.Context, id int64) (*model.Prediction, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	row := r.db.Conn().QueryRowContext(ctx, `SELECT `+predictionColumns+` FROM predictions WHERE id = ?`, id)
	p, err := scanPrediction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prediction: %w", err)
	}
	return p, nil
}

// GetAll retrieves predictions matching filter, newest first.
func (r *PredictionRepository) GetAll(ctx context.Context, filter *dto.PredictionFilter) ([]model.Prediction, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := repository.Where(filter, placeholder)
	limit, offset := repository.Page(filter)
	query := `SELECT ` + predictionColumns + ` FROM predictions` + where +
		` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	defer rows.Close()

	predictions := []model.Prediction{}
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		predictions = append(predictions, *p)
	}
	return predictions, rows.Err()
}

// GetTotalCount returns the number of predictions matching filter, ignoring paging.
func (r *PredictionRepository) GetTotalCount(ctx context.Context, filter *dto.PredictionFilter) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := repository.Where(filter, placeholder)
	var count int
	if err := r.db.Conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM predictions`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count predictions: %w", err)
	}
	return count, nil
}

// GetStats returns per-emotion counts and confidence averages.
func (r *PredictionRepository) GetStats(ctx context.Context) (*model.PredictionStats, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	stats := &model.PredictionStats{PerEmotion: make(map[string]model.EmotionStats)}

	if err := r.db.Conn().QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(AVG(confidence), 0) FROM predictions
	`).Scan(&stats.Total, &stats.AverageConfidence); err != nil {
		return nil, fmt.Errorf("failed to aggregate predictions: %w", err)
	}
	if stats.Total == 0 {
		return stats, nil
	}

	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT emotion, COUNT(*), AVG(confidence)
		FROM predictions
		GROUP BY emotion
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to group predictions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var label string
		var s model.EmotionStats
		if err := rows.Scan(&label, &s.Count, &s.AverageConfidence); err != nil {
			return nil, err
		}
		stats.PerEmotion[label] = s
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Aggregates lose the DATETIME column type, so read the bounds as rows.
	var first, last time.Time
	if err := r.db.Conn().QueryRowContext(ctx, `SELECT created_at FROM predictions ORDER BY created_at ASC LIMIT 1`).Scan(&first); err != nil {
		return nil, err
	}
	if err := r.db.Conn().QueryRowContext(ctx, `SELECT created_at FROM predictions ORDER BY created_at DESC LIMIT 1`).Scan(&last); err != nil {
		return nil, err
	}
	first, last = first.UTC(), last.UTC()
	stats.First, stats.Last = &first, &last

	return stats, nil
}

// Delete removes a prediction by its ID.
func (r *PredictionRepository) Delete(ctx context.Context, id int64) error {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().ExecContext(ctx, `DELETE FROM predictions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete prediction: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteAll removes every prediction and returns how many were deleted.
func (r *PredictionRepository) DeleteAll(ctx context.Context) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().ExecContext(ctx, `DELETE FROM predictions`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete predictions: %w", err)
	}
	return result.RowsAffected()
}

// Close closes the underlying database.
func (r *PredictionRepository) Close() error {
	return r.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPrediction(s scanner) (*model.Prediction, error) {
	var p model.Prediction
	if err := s.Scan(&p.ID, &p.RequestID, &p.Emotion, &p.Confidence, &p.X, &p.Y, &p.Width, &p.Height, &p.Source, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}
