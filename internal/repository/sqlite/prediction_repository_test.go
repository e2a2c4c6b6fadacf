package sqlite

import (
	"os"
	"path/filepath"
	"testing"

	"emotionserver/internal/repository"
	"emotionserver/internal/repository/repotest"
)

func setupTestDB(t *testing.T) repository.PredictionRepository {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "predictions.db")

	repo, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestPredictionRepository(t *testing.T) {
	repotest.Run(t, setupTestDB)
}

func TestNew_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "predictions.db")

	db, err := New(dbPath)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("database file not created: %v", err)
	}
}

func TestNew_MigrateIsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "predictions.db")

	for i := 0; i < 2; i++ {
		db, err := New(dbPath)
		if err != nil {
			t.Fatalf("open %d failed: %v", i, err)
		}
		db.Close()
	}
}
