// Package postgres stores prediction history in PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"emotionserver/internal/dto"
	"emotionserver/internal/model"
	"emotionserver/internal/repository"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const predictionColumns = `id, request_id, emotion, confidence, x, y, width, height, source, created_at`

func placeholder(n int) string { return "$" + strconv.Itoa(n) }

// Store implements repository.PredictionRepository on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to connString and ensures the schema exists.
func New(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{pool: pool}, nil
}

// initSchema creates the predictions table if it does not exist.
func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	query := `
		CREATE TABLE IF NOT EXISTS predictions (
			id BIGSERIAL PRIMARY KEY,
			request_id TEXT NOT NULL,
			emotion TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			x INT NOT NULL DEFAULT 0,
			y INT NOT NULL DEFAULT 0,
			width INT NOT NULL DEFAULT 0,
			height INT NOT NULL DEFAULT 0,
			source TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS predictions_emotion_idx ON predictions (emotion);
		CREATE INDEX IF NOT EXISTS predictions_created_at_idx ON predictions (created_at);
	`
	_, err := pool.Exec(ctx, query)
	return err
}

// Insert saves p and returns its ID.
func (s *Store) Insert(ctx context.Context, p *model.Prediction) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO predictions (request_id, emotion, confidence, x, y, width, height, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, p.RequestID, p.Emotion, p.Confidence, p.X, p.Y, p.Width, p.Height, p.Source, p.CreatedAt.UTC()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert prediction: %w", err)
	}
	return id, nil
}

// GetByID returns one prediction or repository.ErrNotFound.
func (s *Store) GetByID(ctx context.Context, id int64) (*model.Prediction, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+predictionColumns+` FROM predictions WHERE id = $1`, id)
	p, err := scanPrediction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prediction: %w", err)
	}
	return p, nil
}

// GetAll returns predictions matching filter, newest first.
func (s *Store) GetAll(ctx context.Context, filter *dto.PredictionFilter) ([]model.Prediction, error) {
	where, args := repository.Where(filter, placeholder)
	limit, offset := repository.Page(filter)
	args = append(args, limit, offset)
	query := `SELECT ` + predictionColumns + ` FROM predictions` + where +
		` ORDER BY created_at DESC, id DESC LIMIT ` + placeholder(len(args)-1) + ` OFFSET ` + placeholder(len(args))

	rows, err := s.pool.Query(ctx, query, args...)
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

// GetTotalCount counts predictions matching filter, ignoring paging.
func (s *Store) GetTotalCount(ctx context.Context, filter *dto.PredictionFilter) (int, error) {
	where, args := repository.Where(filter, placeholder)
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM predictions`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count predictions: %w", err)
	}
	return count, nil
}

// GetStats aggregates the whole history.
func (s *Store) GetStats(ctx context.Context) (*model.PredictionStats, error) {
	stats := &model.PredictionStats{PerEmotion: make(map[string]model.EmotionStats)}

	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(AVG(confidence), 0), MIN(created_at), MAX(created_at)
		FROM predictions
	`).Scan(&stats.Total, &stats.AverageConfidence, &stats.First, &stats.Last)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate predictions: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
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
		var es model.EmotionStats
		if err := rows.Scan(&label, &es.Count, &es.AverageConfidence); err != nil {
			return nil, err
		}
		stats.PerEmotion[label] = es
	}
	return stats, rows.Err()
}

// Delete removes one prediction.
func (s *Store) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM predictions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete prediction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteAll removes the whole history.
func (s *Store) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM predictions`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete predictions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Reset drops the predictions table.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DROP TABLE IF EXISTS predictions CASCADE`)
	return err
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func scanPrediction(row pgx.Row) (*model.Prediction, error) {
	var p model.Prediction
	if err := row.Scan(&p.ID, &p.RequestID, &p.Emotion, &p.Confidence, &p.X, &p.Y, &p.Width, &p.Height, &p.Source, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}
