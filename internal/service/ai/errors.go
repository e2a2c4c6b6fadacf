package ai

import "errors"

var (
	// ErrModelLoad is returned when the classifier artifact is missing or unusable.
	ErrModelLoad = errors.New("failed to load emotion model")
	// ErrCascadeLoad is returned when a face cascade cannot be loaded.
	ErrCascadeLoad = errors.New("failed to load face cascade")
	// ErrLocatorOptions is returned for locator settings the detector cannot run with.
	ErrLocatorOptions = errors.New("invalid face locator options")
	// ErrClosed is returned by a capture or model used after Close.
	ErrClosed = errors.New("resource closed")
)
