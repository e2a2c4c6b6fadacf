package model

import "time"

// Prediction is one persisted classification of an uploaded or captured frame.
type Prediction struct {
	ID         int64     `json:"id"`
	RequestID  string    `json:"request_id"`
	Emotion    string    `json:"emotion"`
	Confidence float64   `json:"confidence"`
	X          int       `json:"x"`
	Y          int       `json:"y"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Source     string    `json:"source"`
	CreatedAt  time.Time `json:"created_at"`
}

// EmotionStats aggregates predictions of one label.
type EmotionStats struct {
	Count             int     `json:"count"`
	AverageConfidence float64 `json:"average_confidence"`
}

// PredictionStats summarizes the prediction history.
type PredictionStats struct {
	Total             int                     `json:"total"`
	AverageConfidence float64                 `json:"average_confidence"`
	PerEmotion        map[string]EmotionStats `json:"per_emotion"`
	First             *time.Time              `json:"first,omitempty"`
	Last              *time.Time              `json:"last,omitempty"`
}
