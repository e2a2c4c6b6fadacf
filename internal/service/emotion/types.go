// Package emotion implements the frame-to-prediction pipeline: locate faces,
// normalize the selected region, classify it and decide on a single result.
package emotion

import (
	"fmt"
	"image"
	"math"

	"gonum.org/v1/gonum/floats"
)

// SumTolerance is how far a distribution may drift from summing to 1.
const SumTolerance = 1e-3

// Score is one (label, probability) pair of a Distribution.
type Score struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

// Distribution is the classifier output, ordered like the configured label set.
type Distribution []Score

// NewDistribution zips labels with raw classifier outputs. The lengths must match.
func NewDistribution(labels []string, probs []float32) (Distribution, error) {
	if len(labels) != len(probs) {
		return nil, fmt.Errorf("%w: %d outputs for %d labels", ErrLabelMismatch, len(probs), len(labels))
	}
	d := make(Distribution, len(labels))
	for i, l := range labels {
		d[i] = Score{Label: l, Probability: float64(probs[i])}
	}
	return d, nil
}

// Probabilities returns the probabilities in label order.
func (d Distribution) Probabilities() []float64 {
	p := make([]float64, len(d))
	for i, s := range d {
		p[i] = s.Probability
	}
	return p
}

// Validate checks the distribution covers labelCount labels and sums to 1.
func (d Distribution) Validate(labelCount int) error {
	if len(d) != labelCount {
		return fmt.Errorf("%w: distribution has %d entries, label set has %d", ErrLabelMismatch, len(d), labelCount)
	}
	if len(d) == 0 {
		return fmt.Errorf("%w: empty distribution", ErrInvalidDistribution)
	}
	p := d.Probabilities()
	for _, v := range p {
		if math.IsNaN(v) || v < 0 || v > 1+SumTolerance {
			return fmt.Errorf("%w: probability %v out of range", ErrInvalidDistribution, v)
		}
	}
	if sum := floats.Sum(p); math.Abs(sum-1) > SumTolerance {
		return fmt.Errorf("%w: probabilities sum to %.4f", ErrInvalidDistribution, sum)
	}
	return nil
}

// Top returns the argmax label and its probability. Ties go to the lowest index.
func (d Distribution) Top() Emotion {
	p := d.Probabilities()
	i := floats.MaxIdx(p)
	return Emotion{Label: d[i].Label, Confidence: p[i]}
}

// Result is either NoFace or Emotion. Callers are expected to type-switch.
type Result interface {
	isResult()
	String() string
}

// NoFace means the locator found nothing; the classifier was not consulted.
type NoFace struct{}

func (NoFace) isResult()       {}
func (NoFace) String() string { return "no face" }

// Emotion is a classified expression.
type Emotion struct {
	Label      string
	Confidence float64
}

func (Emotion) isResult() {}

// String renders the label the way the live overlay shows it.
func (e Emotion) String() string {
	return fmt.Sprintf("%s (%.2f)", e.Label, e.Confidence)
}

// Decision is the pipeline output: the selected region and its result.
// Region is the zero rectangle when Result is NoFace.
type Decision struct {
	Region image.Rectangle
	Result Result
}

// Emotion returns the classified emotion, if any.
func (d Decision) Emotion() (Emotion, bool) {
	e, ok := d.Result.(Emotion)
	return e, ok
}

// Tensor is a normalized HWC float32 image in [0,1].
type Tensor struct {
	Width    int
	Height   int
	Channels int
	Data     []float32
}

// NewTensor allocates a zeroed tensor.
func NewTensor(width, height, channels int) Tensor {
	return Tensor{
		Width:    width,
		Height:   height,
		Channels: channels,
		Data:     make([]float32, width*height*channels),
	}
}

// At returns the value at row y, column x, channel c.
func (t Tensor) At(y, x, c int) float32 {
	return t.Data[(y*t.Width+x)*t.Channels+c]
}

// Check fails with ErrTensorShape unless t is exactly width x height x channels.
func (t Tensor) Check(width, height, channels int) error {
	if t.Width != width || t.Height != height || t.Channels != channels ||
		len(t.Data) != width*height*channels {
		return fmt.Errorf("%w: got %dx%dx%d (%d values), want %dx%dx%d",
			ErrTensorShape, t.Height, t.Width, t.Channels, len(t.Data), height, width, channels)
	}
	return nil
}
