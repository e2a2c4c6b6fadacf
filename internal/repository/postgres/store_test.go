package postgres

import (
	"context"
	"os"
	"testing"

	"emotionserver/internal/repository"
	"emotionserver/internal/repository/repotest"
)

func setupStore(t *testing.T) repository.PredictionRepository {
	t.Helper()
	url := os.Getenv("EMOTION_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("EMOTION_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	store, err := New(ctx, url)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	if err := store.Reset(ctx); err != nil {
		t.Fatalf("failed to reset: %v", err)
	}
	store.Close()

	// Reconnect so the schema is recreated.
	store, err = New(ctx, url)
	if err != nil {
		t.Fatalf("failed to reconnect: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore(t *testing.T) {
	repotest.Run(t, setupStore)
}

func TestPlaceholder(t *testing.T) {
	if got := placeholder(3); got != "$3" {
		t.Errorf("placeholder(3) = %q", got)
	}
}
