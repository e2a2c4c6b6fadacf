// Package emotiontest provides deterministic pipeline stages for tests of the layers above the pipeline.
package emotiontest

import (
	"image"
	"sync"

	"emotionserver/internal/service/emotion"
)

// Labels is the label order of the bundled model.
var Labels = []string{"angry", "disgusted", "fearful", "happy", "neutral", "sad", "surprised"}

// Locator always reports the same regions.
type Locator struct {
	Regions []image.Rectangle
}

func (l Locator) Locate(frame image.Image) ([]image.Rectangle, error) {
	return l.Regions, nil
}

// OneHotClassifier puts all mass on one label and counts its calls.
type OneHotClassifier struct {
	Index int

	mu    sync.Mutex
	calls int
}

func (c *OneHotClassifier) Labels() []string { return Labels }

func (c *OneHotClassifier) Classify(t emotion.Tensor) (emotion.Distribution, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()

	probs := make([]float32, len(Labels))
	probs[c.Index] = 1
	return emotion.NewDistribution(Labels, probs)
}

// Calls returns how often Classify ran.
func (c *OneHotClassifier) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Pipeline returns a pipeline that finds regions and always answers Labels[index].
func Pipeline(index int, regions ...image.Rectangle) (*emotion.Pipeline, *OneHotClassifier) {
	c := &OneHotClassifier{Index: index}
	return emotion.NewPipeline(Locator{Regions: regions}, c), c
}
