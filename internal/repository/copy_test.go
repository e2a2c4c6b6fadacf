package repository_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"emotionserver/internal/dto"
	"emotionserver/internal/model"
	"emotionserver/internal/repository"
	"emotionserver/internal/repository/sqlite"
)

func openTemp(t *testing.T, name string) *sqlite.PredictionRepository {
	t.Helper()
	repo, err := sqlite.Open(filepath.Join(t.TempDir(), name))
	if err != nil {
		t.Fatalf("Failed to open %s: %v", name, err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestCopy(t *testing.T) {
	ctx := context.Background()
	src := openTemp(t, "src.db")
	dst := openTemp(t, "dst.db")

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	labels := []string{"happy", "sad", "angry"}
	for i, label := range labels {
		_, err := src.Insert(ctx, &model.Prediction{
			RequestID:  "req",
			Emotion:    label,
			Confidence: 0.9,
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	calls := 0
	n, err := repository.Copy(ctx, dst, src, func() { calls++ })
	if err != nil {
		t.Fatalf("Copy failed: %v", err)
	}
	if n != 3 || calls != 3 {
		t.Errorf("copied %d with %d progress calls, expected 3", n, calls)
	}

	got, err := dst.GetAll(ctx, &dto.PredictionFilter{})
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d", len(got))
	}
	// Oldest inserted first, so ids follow creation order.
	if got[0].Emotion != "angry" || got[0].ID != 3 || !got[0].CreatedAt.Equal(base.Add(2*time.Second)) {
		t.Errorf("unexpected newest record %+v", got[0])
	}
}

func TestWhereAndPage(t *testing.T) {
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	where, args := repository.Where(&dto.PredictionFilter{Emotion: "happy", Since: since}, func(n int) string { return "?" })
	if where != " WHERE 1=1 AND emotion = ? AND created_at >= ?" || len(args) != 2 {
		t.Errorf("unexpected where %q %v", where, args)
	}

	tests := []struct {
		filter *dto.PredictionFilter
		limit  int
		offset int
	}{
		{nil, repository.DefaultLimit, 0},
		{&dto.PredictionFilter{Limit: 5, Offset: 10}, 5, 10},
		{&dto.PredictionFilter{Limit: 50000}, repository.MaxLimit, 0},
		{&dto.PredictionFilter{Limit: -1, Offset: -3}, repository.DefaultLimit, 0},
	}
	for _, tt := range tests {
		limit, offset := repository.Page(tt.filter)
		if limit != tt.limit || offset != tt.offset {
			t.Errorf("Page(%+v) = %d,%d expected %d,%d", tt.filter, limit, offset, tt.limit, tt.offset)
		}
	}
}
