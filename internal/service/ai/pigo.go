package ai

import (
	"fmt"
	"image"
	"math"
	"os"

	"emotionserver/internal/logger"

	"github.com/disintegration/imaging"
	pigo "github.com/esimov/pigo/core"
)

// 8 reserved bytes, tree depth, tree count.
const pigoHeaderSize = 16

// PigoOptions tune the pure-Go locator.
type PigoOptions struct {
	MinFaceSize int
	ScaleFactor float64
	ShiftFactor float64
	IoU         float64
	MinQuality  float64
}

// PigoLocator finds faces with a pigo pixel-intensity cascade. It does not need OpenCV.
type PigoLocator struct {
	classifier *pigo.Pigo
	opts       PigoOptions
}

// NewPigoLocator unpacks the binary cascade ("facefinder") at path.
func NewPigoLocator(path string, opts PigoOptions, logger *logger.Logger) (*PigoLocator, error) {
	// RunCascade loops forever when the window size does not grow.
	if int(float64(opts.MinFaceSize)*opts.ScaleFactor) <= opts.MinFaceSize {
		return nil, fmt.Errorf("%w: min face size %d with scale factor %v", ErrLocatorOptions, opts.MinFaceSize, opts.ScaleFactor)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCascadeLoad, err)
	}
	// Unpack indexes the header without bounds checks.
	if len(data) < pigoHeaderSize {
		return nil, fmt.Errorf("%w: %s: truncated cascade", ErrCascadeLoad, path)
	}
	classifier, err := pigo.NewPigo().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCascadeLoad, path, err)
	}

	logger.Info("Pigo cascade loaded from %s", path)
	return &PigoLocator{classifier: classifier, opts: opts}, nil
}

// Locate returns clustered detections above the quality threshold, in pigo's order.
// Unpacked cascades are read-only, so Locate is safe for concurrent use.
func (l *PigoLocator) Locate(frame image.Image) ([]image.Rectangle, error) {
	src := imaging.Clone(frame)
	cols, rows := src.Bounds().Dx(), src.Bounds().Dy()

	maxSize := int(math.Min(float64(cols), float64(rows)))
	if maxSize < l.opts.MinFaceSize {
		return nil, nil
	}

	params := pigo.CascadeParams{
		MinSize:     l.opts.MinFaceSize,
		MaxSize:     maxSize,
		ShiftFactor: l.opts.ShiftFactor,
		ScaleFactor: l.opts.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: pigo.RgbToGrayscale(src),
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	dets := l.classifier.RunCascade(params, 0.0)
	dets = l.classifier.ClusterDetections(dets, l.opts.IoU)

	rects := make([]image.Rectangle, 0, len(dets))
	for _, det := range dets {
		if float64(det.Q) < l.opts.MinQuality {
			continue
		}
		half := det.Scale / 2
		rects = append(rects, image.Rect(det.Col-half, det.Row-half, det.Col+half, det.Row+half))
	}
	return clipRegions(rects, frame.Bounds().Min, frame.Bounds()), nil
}

// Close is a no-op; it exists so both locators share a lifecycle.
func (l *PigoLocator) Close() error {
	return nil
}
