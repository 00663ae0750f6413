package storage

import (
	"path/filepath"
	"testing"

	"encargos/internal/store"
	"encargos/internal/store/storetest"
)

func TestSQLiteStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "encargos.db"))
		if err != nil {
			t.Fatalf("open repository: %v", err)
		}
		t.Cleanup(func() { repo.Close() })
		return repo
	})
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "encargos.db")
	repo, err := NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if repo.SchemaVersion() != 1 {
		t.Errorf("schema version = %d, want 1", repo.SchemaVersion())
	}
	repo.Close()

	version, err := RunMigrations(path)
	if err != nil {
		t.Fatalf("second migration run: %v", err)
	}
	if version != 1 {
		t.Errorf("second run version = %d, want 1", version)
	}
}
