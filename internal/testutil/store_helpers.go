package testutil

import (
	"path/filepath"
	"testing"

	"github.com/archivekeep/chathist/internal/store"
)

// NewTestStore creates a temporary database for testing. Schema is applied
// by Open itself; the database is closed automatically on test cleanup.
func NewTestStore(t *testing.T) *store.Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	t.Cleanup(func() {
		st.Close()
	})

	return st
}
