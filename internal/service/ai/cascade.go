package ai

import (
	"fmt"
	"image"
	"os"
	"sync"

	"emotionserver/internal/logger"

	"gocv.io/x/gocv"
)

// CascadeLocator finds faces with an OpenCV Haar cascade.
type CascadeLocator struct {
	classifier   gocv.CascadeClassifier
	scaleFactor  float64
	minNeighbors int
	minSize      image.Point
	mutex        sync.Mutex
	logger       *logger.Logger
}

// CascadeOptions are the DetectMultiScale tunables.
type CascadeOptions struct {
	ScaleFactor  float64
	MinNeighbors int
	MinFaceSize  int
}

// NewCascadeLocator loads the cascade XML at path.
func NewCascadeLocator(path string, opts CascadeOptions, logger *logger.Logger) (*CascadeLocator, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCascadeLoad, path, err)
	}

	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(path) {
		classifier.Close()
		return nil, fmt.Errorf("%w: %s", ErrCascadeLoad, path)
	}

	logger.Info("Haar cascade loaded from %s (scale %.2f, neighbors %d)", path, opts.ScaleFactor, opts.MinNeighbors)
	return &CascadeLocator{
		classifier:   classifier,
		scaleFactor:  opts.ScaleFactor,
		minNeighbors: opts.MinNeighbors,
		minSize:      image.Pt(opts.MinFaceSize, opts.MinFaceSize),
		logger:       logger,
	}, nil
}

// Locate returns face rectangles in detector order, clipped to the frame.
func (l *CascadeLocator) Locate(frame image.Image) ([]image.Rectangle, error) {
	mat, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame: %w", err)
	}
	defer mat.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	if err := gocv.CvtColor(mat, &gray, gocv.ColorBGRToGray); err != nil {
		return nil, fmt.Errorf("failed to convert image to grayscale: %w", err)
	}

	l.mutex.Lock()
	rects := l.classifier.DetectMultiScaleWithParams(gray, l.scaleFactor, l.minNeighbors, 0, l.minSize, image.Point{})
	l.mutex.Unlock()

	// The Mat starts at the origin; shift back into frame coordinates.
	return clipRegions(rects, frame.Bounds().Min, frame.Bounds()), nil
}

// Close releases the cascade.
func (l *CascadeLocator) Close() error {
	return l.classifier.Close()
}

func clipRegions(rects []image.Rectangle, offset image.Point, bounds image.Rectangle) []image.Rectangle {
	regions := make([]image.Rectangle, 0, len(rects))
	for _, r := range rects {
		r = r.Add(offset).Intersect(bounds)
		if r.Empty() {
			continue
		}
		regions = append(regions, r)
	}
	return regions
}
