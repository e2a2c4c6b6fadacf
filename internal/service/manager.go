// Package service wires the emotion pipeline to the history store and the viewer hub.
package service

import (
	"context"
	"fmt"
	"image"
	"time"

	"emotionserver/internal/dto"
	"emotionserver/internal/logger"
	"emotionserver/internal/model"
	"emotionserver/internal/repository"
	"emotionserver/internal/service/emotion"
	"emotionserver/internal/service/frame"
	"emotionserver/internal/service/websocket"

	"github.com/google/uuid"
)

// Recorder counts persisted predictions.
type Recorder interface {
	RecordStored()
}

type Manager struct {
	pipeline         *emotion.Pipeline
	repo             repository.PredictionRepository
	websocketService *websocket.HubService
	recorder         Recorder
	logger           *logger.Logger
	maxFramePixels   int

	now func() time.Time
}

// NewManager builds a Manager. hub and recorder may be nil.
func NewManager(pipeline *emotion.Pipeline, repo repository.PredictionRepository, hub *websocket.HubService, recorder Recorder, logger *logger.Logger) *Manager {
	return &Manager{
		pipeline:         pipeline,
		repo:             repo,
		websocketService: hub,
		recorder:         recorder,
		logger:           logger,
		maxFramePixels:   frame.DefaultMaxPixels,
		now:              time.Now,
	}
}

// SetMaxFramePixels bounds the declared size of uploads PredictImage decodes.
func (m *Manager) SetMaxFramePixels(n int) {
	m.maxFramePixels = n
}

// Predict runs the pipeline on a decoded frame without persisting anything.
func (m *Manager) Predict(ctx context.Context, img image.Image) (emotion.Decision, error) {
	return m.pipeline.Predict(ctx, img)
}

// PredictImage decodes an upload, classifies it and stores the result.
// The returned prediction is nil when no face was found.
func (m *Manager) PredictImage(ctx context.Context, data []byte, source, requestID string) (emotion.Decision, *model.Prediction, error) {
	img, format, err := frame.DecodeLimited(data, m.maxFramePixels)
	if err != nil {
		return emotion.Decision{}, nil, err
	}
	m.logger.Debug("Decoded %s upload %q (%dx%d)", format, source, img.Bounds().Dx(), img.Bounds().Dy())

	d, err := m.pipeline.Predict(ctx, img)
	if err != nil {
		return emotion.Decision{}, nil, fmt.Errorf("predict: %w", err)
	}

	p, err := m.Record(ctx, d, source, requestID)
	if err != nil {
		return d, nil, err
	}
	return d, p, nil
}

// Record persists an Emotion decision. NoFace decisions are not stored.
func (m *Manager) Record(ctx context.Context, d emotion.Decision, source, requestID string) (*model.Prediction, error) {
	e, ok := d.Emotion()
	if !ok {
		return nil, nil
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}

	p := &model.Prediction{
		RequestID:  requestID,
		Emotion:    e.Label,
		Confidence: e.Confidence,
		X:          d.Region.Min.X,
		Y:          d.Region.Min.Y,
		Width:      d.Region.Dx(),
		Height:     d.Region.Dy(),
		Source:     source,
		CreatedAt:  m.now().UTC().Truncate(time.Microsecond),
	}
	id, err := m.repo.Insert(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("store prediction: %w", err)
	}
	p.ID = id

	if m.recorder != nil {
		m.recorder.RecordStored()
	}
	m.logger.Info("Stored prediction %d: %s (%.2f) from %s", id, p.Emotion, p.Confidence, source)
	return p, nil
}

// History returns one page of predictions and the total matching the filter.
func (m *Manager) History(ctx context.Context, filter *dto.PredictionFilter) ([]model.Prediction, int, error) {
	records, err := m.repo.GetAll(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	total, err := m.repo.GetTotalCount(ctx, filter)
	if err != nil {
		m.logger.Error("Error counting predictions: %v", err)
		total = len(records)
	}
	return records, total, nil
}

func (m *Manager) GetPrediction(ctx context.Context, id int64) (*model.Prediction, error) {
	return m.repo.GetByID(ctx, id)
}

func (m *Manager) Stats(ctx context.Context) (*model.PredictionStats, error) {
	return m.repo.GetStats(ctx)
}

func (m *Manager) DeletePrediction(ctx context.Context, id int64) error {
	return m.repo.Delete(ctx, id)
}

// ClearHistory removes every stored prediction.
func (m *Manager) ClearHistory(ctx context.Context) (int64, error) {
	n, err := m.repo.DeleteAll(ctx)
	if err != nil {
		return 0, err
	}
	m.logger.Warning("Cleared %d predictions from history", n)
	return n, nil
}

func (m *Manager) Labels() []string {
	return m.pipeline.Labels()
}

func (m *Manager) GetWebsocketService() *websocket.HubService {
	return m.websocketService
}
