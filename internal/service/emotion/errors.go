package emotion

import "errors"

var (
	// ErrLabelMismatch means the classifier output width differs from the label set.
	ErrLabelMismatch = errors.New("classifier output does not match label set")
	// ErrInvalidDistribution means the classifier output is not a probability distribution.
	ErrInvalidDistribution = errors.New("invalid emotion distribution")
	// ErrTensorShape means a tensor does not have the classifier's input shape.
	ErrTensorShape = errors.New("tensor shape mismatch")
	// ErrInvalidRegion means a face region is empty or outside the frame.
	ErrInvalidRegion = errors.New("invalid face region")
	// ErrEmptyFrame means the frame has no pixels.
	ErrEmptyFrame = errors.New("empty frame")
)
