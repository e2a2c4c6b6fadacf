package emotion

import (
	"context"
	"fmt"
	"image"
	"time"
)

// Stage names reported to an Observer.
const (
	StageLocate    = "locate"
	StageNormalize = "normalize"
	StageClassify  = "classify"
)

// Locator finds face regions in a frame. Regions are clipped to the frame bounds.
type Locator interface {
	Locate(frame image.Image) ([]image.Rectangle, error)
}

// Classifier maps a normalized tensor to a distribution over Labels().
type Classifier interface {
	Classify(t Tensor) (Distribution, error)
	Labels() []string
}

// BatchClassifier classifies several tensors in one call. Row i of the result
// must equal Classify(tensors[i]).
type BatchClassifier interface {
	Classifier
	ClassifyBatch(tensors []Tensor) ([]Distribution, error)
}

// Observer receives stage timings and outcomes, e.g. for metrics.
type Observer interface {
	ObserveStage(stage string, d time.Duration)
	ObserveResult(r Result)
}

// Pipeline runs locate -> normalize -> classify -> decide on one frame.
// It keeps no state between calls; the classifier is shared read-only.
type Pipeline struct {
	locator    Locator
	normalizer *Normalizer
	classifier Classifier
	observer   Observer
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithNormalizer overrides the default 48x48 normalizer.
func WithNormalizer(n *Normalizer) Option {
	return func(p *Pipeline) { p.normalizer = n }
}

// WithObserver attaches an Observer.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

// NewPipeline wires a locator and a classifier.
func NewPipeline(locator Locator, classifier Classifier, opts ...Option) *Pipeline {
	p := &Pipeline{
		locator:    locator,
		normalizer: NewNormalizer(48, 48),
		classifier: classifier,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Labels returns the classifier's label set.
func (p *Pipeline) Labels() []string {
	return p.classifier.Labels()
}

// Predict locates faces in frame and decides on the first one.
// ctx is checked between stages only.
func (p *Pipeline) Predict(ctx context.Context, frame image.Image) (Decision, error) {
	if frame == nil || frame.Bounds().Empty() {
		return Decision{}, ErrEmptyFrame
	}
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	start := time.Now()
	regions, err := p.locator.Locate(frame)
	if err != nil {
		return Decision{}, fmt.Errorf("locate faces: %w", err)
	}
	p.observeStage(StageLocate, start)

	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}
	return p.Decide(frame, regions)
}

// Decide applies the decision policy: no regions yields NoFace without touching
// the classifier, otherwise regions[0] is classified. The first region is used
// as returned by the locator, not the largest one.
func (p *Pipeline) Decide(frame image.Image, regions []image.Rectangle) (Decision, error) {
	if len(regions) == 0 {
		d := Decision{Result: NoFace{}}
		p.observeResult(d.Result)
		return d, nil
	}

	region := regions[0]
	dist, err := p.classify(frame, region)
	if err != nil {
		return Decision{}, err
	}

	d := Decision{Region: region, Result: dist.Top()}
	p.observeResult(d.Result)
	return d, nil
}

// ClassifyRegions classifies every region independently, batching when the
// classifier supports it. It does not apply the decision policy.
func (p *Pipeline) ClassifyRegions(frame image.Image, regions []image.Rectangle) ([]Distribution, error) {
	if len(regions) == 0 {
		return nil, nil
	}

	start := time.Now()
	tensors := make([]Tensor, len(regions))
	for i, r := range regions {
		t, err := p.normalizer.Normalize(frame, r)
		if err != nil {
			return nil, err
		}
		tensors[i] = t
	}
	p.observeStage(StageNormalize, start)

	start = time.Now()
	var dists []Distribution
	if bc, ok := p.classifier.(BatchClassifier); ok {
		var err error
		if dists, err = bc.ClassifyBatch(tensors); err != nil {
			return nil, fmt.Errorf("classify batch: %w", err)
		}
	} else {
		dists = make([]Distribution, len(tensors))
		for i, t := range tensors {
			d, err := p.classifier.Classify(t)
			if err != nil {
				return nil, fmt.Errorf("classify region %d: %w", i, err)
			}
			dists[i] = d
		}
	}
	p.observeStage(StageClassify, start)

	if len(dists) != len(regions) {
		return nil, fmt.Errorf("%w: %d distributions for %d regions", ErrInvalidDistribution, len(dists), len(regions))
	}
	labelCount := len(p.classifier.Labels())
	for _, d := range dists {
		if err := d.Validate(labelCount); err != nil {
			return nil, err
		}
	}
	return dists, nil
}

func (p *Pipeline) classify(frame image.Image, region image.Rectangle) (Distribution, error) {
	start := time.Now()
	t, err := p.normalizer.Normalize(frame, region)
	if err != nil {
		return nil, err
	}
	p.observeStage(StageNormalize, start)

	start = time.Now()
	dist, err := p.classifier.Classify(t)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}
	p.observeStage(StageClassify, start)

	if err := dist.Validate(len(p.classifier.Labels())); err != nil {
		return nil, err
	}
	return dist, nil
}

func (p *Pipeline) observeStage(stage string, start time.Time) {
	if p.observer != nil {
		p.observer.ObserveStage(stage, time.Since(start))
	}
}

func (p *Pipeline) observeResult(r Result) {
	if p.observer != nil {
		p.observer.ObserveResult(r)
	}
}
