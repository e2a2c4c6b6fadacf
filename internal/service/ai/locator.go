package ai

import (
	"strings"

	"emotionserver/internal/config"
	"emotionserver/internal/logger"
	"emotionserver/internal/service/emotion"
)

// FaceLocator is a Locator holding native resources.
type FaceLocator interface {
	emotion.Locator
	Close() error
}

// NewLocator builds the locator selected by cfg.Detector.
func NewLocator(cfg *config.Config, logger *logger.Logger) (FaceLocator, error) {
	if strings.EqualFold(cfg.Detector, "pigo") {
		l, err := NewPigoLocator(cfg.CascadePath, PigoOptions{
			MinFaceSize: cfg.MinFaceSize,
			ScaleFactor: cfg.ScaleFactor,
			ShiftFactor: cfg.PigoShift,
			IoU:         cfg.PigoIoU,
			MinQuality:  cfg.PigoMinQuality,
		}, logger)
		if err != nil {
			return nil, err
		}
		return l, nil
	}
	l, err := NewCascadeLocator(cfg.CascadePath, CascadeOptions{
		ScaleFactor:  cfg.ScaleFactor,
		MinNeighbors: cfg.MinNeighbors,
		MinFaceSize:  cfg.MinFaceSize,
	}, logger)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// NewModel loads the classifier described by cfg.
func NewModel(cfg *config.Config, logger *logger.Logger) (*EmotionModel, error) {
	return NewEmotionModel(ModelOptions{
		ModelPath:   cfg.ModelPath,
		ConfigPath:  cfg.ModelConfig,
		Labels:      cfg.Labels,
		InputWidth:  cfg.InputWidth,
		InputHeight: cfg.InputHeight,
		Layout:      cfg.InputLayout,
		Backend:     cfg.NetBackend,
		Target:      cfg.NetTarget,
	}, logger)
}
