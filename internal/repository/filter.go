package repository

import (
	"strings"

	"emotionserver/internal/dto"
)

// DefaultLimit caps history pages when the caller sets no limit.
const DefaultLimit = 100

// MaxLimit is the largest accepted page size.
const MaxLimit = 1000

// Where renders filter as SQL conditions joined with AND, starting with "WHERE 1=1".
// placeholder returns the bind marker for the n-th argument (1-based).
func Where(filter *dto.PredictionFilter, placeholder func(n int) string) (string, []any) {
	var b strings.Builder
	b.WriteString(" WHERE 1=1")
	args := []any{}
	if filter == nil {
		return b.String(), args
	}

	if filter.Emotion != "" {
		args = append(args, filter.Emotion)
		b.WriteString(" AND emotion = " + placeholder(len(args)))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since.UTC())
		b.WriteString(" AND created_at >= " + placeholder(len(args)))
	}
	return b.String(), args
}

// Page returns the effective limit and offset of filter.
func Page(filter *dto.PredictionFilter) (limit, offset int) {
	limit = DefaultLimit
	if filter == nil {
		return limit, 0
	}
	if filter.Limit > 0 {
		limit = min(filter.Limit, MaxLimit)
	}
	if filter.Offset > 0 {
		offset = filter.Offset
	}
	return limit, offset
}
