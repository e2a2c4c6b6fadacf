package dto

import (
	"image"
	"time"

	"emotionserver/internal/model"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Region is a face rectangle in frame coordinates.
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// RegionOf converts a rectangle.
func RegionOf(r image.Rectangle) Region {
	return Region{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

// PredictionResponse is returned by the upload endpoint and the history endpoints.
type PredictionResponse struct {
	ID         int64     `json:"id"`
	RequestID  string    `json:"request_id,omitempty"`
	Emotion    string    `json:"emotion"`
	Confidence float64   `json:"confidence"`
	Region     Region    `json:"region"`
	Source     string    `json:"source,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewPredictionResponse maps a stored prediction.
func NewPredictionResponse(p *model.Prediction) PredictionResponse {
	return PredictionResponse{
		ID:         p.ID,
		RequestID:  p.RequestID,
		Emotion:    p.Emotion,
		Confidence: p.Confidence,
		Region:     Region{X: p.X, Y: p.Y, Width: p.Width, Height: p.Height},
		Source:     p.Source,
		CreatedAt:  p.CreatedAt,
	}
}

// HealthResponse reports liveness and the loaded label set.
type HealthResponse struct {
	Status  string   `json:"status"`
	Labels  []string `json:"labels"`
	Viewers int      `json:"viewers"`
}

// DeleteResponse reports how many records were removed.
type DeleteResponse struct {
	Deleted int64 `json:"deleted"`
}
