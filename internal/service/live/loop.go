// Package live runs the camera loop: acquire, mirror, predict, render.
package live

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"

	"emotionserver/internal/logger"
	"emotionserver/internal/service/emotion"

	"github.com/disintegration/imaging"
)

// FrameSource yields frames until it returns io.EOF.
type FrameSource interface {
	Read(ctx context.Context) (image.Image, error)
}

// Predictor is the frame-to-decision pipeline.
type Predictor interface {
	Predict(ctx context.Context, frame image.Image) (emotion.Decision, error)
}

// Renderer displays or forwards one annotated frame. Returning stop=true ends the loop.
type Renderer interface {
	Render(frame image.Image, d emotion.Decision) (stop bool, err error)
}

// Loop is the live recognition loop. Only the predictor's model is shared
// between iterations.
type Loop struct {
	source    FrameSource
	predictor Predictor
	renderers []Renderer
	mirror    bool
	logger    *logger.Logger

	frames int
	faces  int
}

// NewLoop creates a loop mirroring frames when mirror is set.
func NewLoop(source FrameSource, predictor Predictor, mirror bool, logger *logger.Logger, renderers ...Renderer) *Loop {
	return &Loop{
		source:    source,
		predictor: predictor,
		renderers: renderers,
		mirror:    mirror,
		logger:    logger,
	}
}

// Run processes frames until ctx is done, a renderer asks to stop or the source
// is exhausted. Those three cases return nil.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("Live loop started (mirror=%t, renderers=%d)", l.mirror, len(l.renderers))
	defer func() {
		l.logger.Info("Live loop stopped after %d frames, %d with a face", l.frames, l.faces)
	}()

	for {
		stop, err := l.Step(ctx)
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			if ctx.Err() != nil {
				return nil
			}
			return err
		case err != nil:
			return err
		case stop:
			return nil
		}
	}
}

// Step runs one iteration. The frame is mirrored before detection so the
// overlay lines up with what the viewer sees.
func (l *Loop) Step(ctx context.Context) (bool, error) {
	frame, err := l.source.Read(ctx)
	if err != nil {
		return false, err
	}
	if l.mirror {
		frame = imaging.FlipH(frame)
	}

	d, err := l.predictor.Predict(ctx, frame)
	if err != nil {
		return false, fmt.Errorf("frame %d: %w", l.frames, err)
	}
	l.frames++
	if _, ok := d.Emotion(); ok {
		l.faces++
	}

	stop := false
	for _, r := range l.renderers {
		s, err := r.Render(frame, d)
		if err != nil {
			return false, fmt.Errorf("render frame %d: %w", l.frames, err)
		}
		stop = stop || s
	}
	return stop, nil
}

// Frames returns how many frames were processed.
func (l *Loop) Frames() int {
	return l.frames
}
