// Package testutil provides shared test helpers for setting up note stores
// and artifact directories.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/starford/notebridge/internal/storage"
	"github.com/starford/notebridge/internal/store"
)

// TestDB creates a temporary SQLite note store that is automatically closed.
func TestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "notebridge-test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestRoot creates a temporary artifact directory.
func TestRoot(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	fs, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, fs
}
