package repository

import (
	"context"
	"fmt"
	"slices"

	"emotionserver/internal/dto"
	"emotionserver/internal/model"
)

// Copy inserts every prediction of src into dst, oldest first. Ids are
// reassigned by dst. progress, if set, is called after each insert.
func Copy(ctx context.Context, dst, src PredictionRepository, progress func()) (int, error) {
	var all []model.Prediction
	filter := &dto.PredictionFilter{Limit: MaxLimit}
	for {
		page, err := src.GetAll(ctx, filter)
		if err != nil {
			return 0, fmt.Errorf("read source: %w", err)
		}
		all = append(all, page...)
		if len(page) < MaxLimit {
			break
		}
		filter.Offset += len(page)
	}

	slices.Reverse(all)
	for i := range all {
		if _, err := dst.Insert(ctx, &all[i]); err != nil {
			return i, fmt.Errorf("insert prediction %d: %w", all[i].ID, err)
		}
		if progress != nil {
			progress()
		}
	}
	return len(all), nil
}
