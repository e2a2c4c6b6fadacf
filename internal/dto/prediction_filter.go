// PredictionFilter describes user-provided filters to narrow the prediction history.
package dto

import "time"

type PredictionFilter struct {
	Emotion string
	Since   time.Time
	Limit   int
	Offset  int
}
