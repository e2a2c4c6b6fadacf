// Package storage buffers live-loop predictions and flushes them to the history store.
package storage

import (
	"context"
	"image"
	"sync"
	"time"

	"emotionserver/internal/logger"
	"emotionserver/internal/model"
	"emotionserver/internal/service/emotion"
)

// BufferLimit caps how many predictions per camera are kept between flushes.
const BufferLimit = 10

// Recorder persists one decision.
type Recorder interface {
	Record(ctx context.Context, d emotion.Decision, source, requestID string) (*model.Prediction, error)
}

type bufferedDecision struct {
	decision emotion.Decision
	camera   string
}

// BufferService keeps Emotion decisions of the live loop in memory and
// periodically writes them to the history. NoFace frames are not buffered.
type BufferService struct {
	camera      string
	recorder    Recorder
	pending     []bufferedDecision
	bufferCount map[string]int
	mu          sync.Mutex
	logger      *logger.Logger
}

// NewBufferService creates a buffer recording under camera.
func NewBufferService(camera string, recorder Recorder, logger *logger.Logger) *BufferService {
	return &BufferService{
		camera:      camera,
		recorder:    recorder,
		bufferCount: make(map[string]int),
		logger:      logger,
	}
}

// Run flushes every interval until ctx is done, then flushes once more.
func (s *BufferService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			// ctx is already cancelled; the final flush must still reach the store.
			s.Flush(context.WithoutCancel(ctx))
			return
		case <-ticker.C:
			s.Flush(ctx)
		}
	}
}

// Add buffers d. It returns false when d is NoFace or the camera's buffer is full.
func (s *BufferService) Add(d emotion.Decision, camera string) bool {
	if _, ok := d.Emotion(); !ok {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bufferCount[camera] >= BufferLimit {
		return false
	}
	s.pending = append(s.pending, bufferedDecision{decision: d, camera: camera})
	s.bufferCount[camera]++
	s.logger.Debug("Buffer size for camera %s: %d/%d", camera, s.bufferCount[camera], BufferLimit)
	return true
}

// Render lets the buffer sit in the live loop as a renderer. It never stops the loop.
func (s *BufferService) Render(frame image.Image, d emotion.Decision) (bool, error) {
	s.Add(d, s.camera)
	return false, nil
}

// Flush writes buffered decisions and resets the per-camera counters.
// It returns how many were stored.
func (s *BufferService) Flush(ctx context.Context) int {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	clear(s.bufferCount)
	s.mu.Unlock()

	saved := 0
	for _, b := range pending {
		if _, err := s.recorder.Record(ctx, b.decision, b.camera, ""); err != nil {
			s.logger.Error("Error saving live prediction from %s: %v", b.camera, err)
			continue
		}
		saved++
	}
	if saved > 0 {
		s.logger.Info("Flushed %d live predictions", saved)
	}
	return saved
}
