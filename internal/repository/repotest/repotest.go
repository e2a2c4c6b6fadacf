// Package repotest holds the behaviour every PredictionRepository must share.
package repotest

import (
	"context"
	"errors"
	"testing"
	"time"

	"emotionserver/internal/dto"
	"emotionserver/internal/model"
	"emotionserver/internal/repository"
)

// Factory returns an empty repository. It is called once per subtest.
type Factory func(t *testing.T) repository.PredictionRepository

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func sample(label string, confidence float64, offset time.Duration) *model.Prediction {
	return &model.Prediction{
		RequestID:  "req-" + label,
		Emotion:    label,
		Confidence: confidence,
		X:          10,
		Y:          20,
		Width:      30,
		Height:     40,
		Source:     "test.jpg",
		CreatedAt:  base.Add(offset),
	}
}

func seed(t *testing.T, repo repository.PredictionRepository) []int64 {
	t.Helper()
	ctx := context.Background()
	records := []*model.Prediction{
		sample("happy", 0.9, 0),
		sample("sad", 0.6, time.Minute),
		sample("happy", 0.7, 2*time.Minute),
		sample("neutral", 0.5, 3*time.Minute),
	}
	ids := make([]int64, len(records))
	for i, p := range records {
		id, err := repo.Insert(ctx, p)
		if err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		ids[i] = id
	}
	return ids
}

// Run exercises repo against the shared contract.
func Run(t *testing.T, newRepo Factory) {
	ctx := context.Background()

	t.Run("InsertAndGet", func(t *testing.T) {
		repo := newRepo(t)
		p := sample("surprised", 0.83, 0)

		id, err := repo.Insert(ctx, p)
		if err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		if id <= 0 {
			t.Fatalf("expected positive id, got %d", id)
		}

		got, err := repo.GetByID(ctx, id)
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if got.Emotion != "surprised" || got.Confidence != 0.83 || got.RequestID != "req-surprised" {
			t.Errorf("unexpected record %+v", got)
		}
		if got.X != 10 || got.Y != 20 || got.Width != 30 || got.Height != 40 {
			t.Errorf("unexpected region %+v", got)
		}
		if !got.CreatedAt.Equal(base) {
			t.Errorf("created_at = %v, expected %v", got.CreatedAt, base)
		}
	})

	t.Run("GetByIDMissing", func(t *testing.T) {
		repo := newRepo(t)
		if _, err := repo.GetByID(ctx, 9999); !errors.Is(err, repository.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("GetAllNewestFirst", func(t *testing.T) {
		repo := newRepo(t)
		seed(t, repo)

		all, err := repo.GetAll(ctx, &dto.PredictionFilter{})
		if err != nil {
			t.Fatalf("GetAll failed: %v", err)
		}
		want := []string{"neutral", "happy", "sad", "happy"}
		if len(all) != len(want) {
			t.Fatalf("expected %d records, got %d", len(want), len(all))
		}
		for i, label := range want {
			if all[i].Emotion != label {
				t.Errorf("record %d = %s, expected %s", i, all[i].Emotion, label)
			}
		}
	})

	t.Run("Filters", func(t *testing.T) {
		repo := newRepo(t)
		seed(t, repo)

		tests := []struct {
			name   string
			filter dto.PredictionFilter
			want   int
			total  int
		}{
			{"emotion", dto.PredictionFilter{Emotion: "happy"}, 2, 2},
			{"since", dto.PredictionFilter{Since: base.Add(90 * time.Second)}, 2, 2},
			{"emotion and since", dto.PredictionFilter{Emotion: "happy", Since: base.Add(time.Minute)}, 1, 1},
			{"limit", dto.PredictionFilter{Limit: 3}, 3, 4},
			{"offset", dto.PredictionFilter{Limit: 3, Offset: 3}, 1, 4},
			{"unknown emotion", dto.PredictionFilter{Emotion: "angry"}, 0, 0},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := repo.GetAll(ctx, &tt.filter)
				if err != nil {
					t.Fatalf("GetAll failed: %v", err)
				}
				if len(got) != tt.want {
					t.Errorf("GetAll returned %d records, expected %d", len(got), tt.want)
				}
				total, err := repo.GetTotalCount(ctx, &tt.filter)
				if err != nil {
					t.Fatalf("GetTotalCount failed: %v", err)
				}
				if total != tt.total {
					t.Errorf("GetTotalCount = %d, expected %d", total, tt.total)
				}
			})
		}
	})

	t.Run("Stats", func(t *testing.T) {
		repo := newRepo(t)

		empty, err := repo.GetStats(ctx)
		if err != nil {
			t.Fatalf("GetStats failed: %v", err)
		}
		if empty.Total != 0 || len(empty.PerEmotion) != 0 || empty.First != nil {
			t.Errorf("expected empty stats, got %+v", empty)
		}

		seed(t, repo)
		stats, err := repo.GetStats(ctx)
		if err != nil {
			t.Fatalf("GetStats failed: %v", err)
		}
		if stats.Total != 4 {
			t.Errorf("Total = %d, expected 4", stats.Total)
		}
		happy := stats.PerEmotion["happy"]
		if happy.Count != 2 || !approx(happy.AverageConfidence, 0.8) {
			t.Errorf("happy stats = %+v", happy)
		}
		if !approx(stats.AverageConfidence, 0.675) {
			t.Errorf("AverageConfidence = %v, expected 0.675", stats.AverageConfidence)
		}
		if stats.First == nil || !stats.First.Equal(base) {
			t.Errorf("First = %v, expected %v", stats.First, base)
		}
		if stats.Last == nil || !stats.Last.Equal(base.Add(3*time.Minute)) {
			t.Errorf("Last = %v", stats.Last)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		repo := newRepo(t)
		ids := seed(t, repo)

		if err := repo.Delete(ctx, ids[0]); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := repo.GetByID(ctx, ids[0]); !errors.Is(err, repository.ErrNotFound) {
			t.Errorf("expected deleted record to be gone, got %v", err)
		}
		if err := repo.Delete(ctx, ids[0]); !errors.Is(err, repository.ErrNotFound) {
			t.Errorf("expected ErrNotFound on second delete, got %v", err)
		}

		n, err := repo.DeleteAll(ctx)
		if err != nil {
			t.Fatalf("DeleteAll failed: %v", err)
		}
		if n != 3 {
			t.Errorf("DeleteAll removed %d, expected 3", n)
		}
		total, _ := repo.GetTotalCount(ctx, nil)
		if total != 0 {
			t.Errorf("expected empty history, %d left", total)
		}
	})
}

func approx(a, b float64) bool {
	d := a - b
	return d < 1e-9 && d > -1e-9
}
