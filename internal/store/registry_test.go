package store

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/archivekeep/chathist/internal/apperr"
)

func TestRegistryLoadReturnsSameInstance(t *testing.T) {
	r := NewRegistry()
	dbPath := filepath.Join(t.TempDir(), "data.sqlite")
	t.Cleanup(func() { r.CloseAll() })

	a, err := r.Load(dbPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	b, err := r.Load(dbPath)
	if err != nil {
		t.Fatalf("load again: %v", err)
	}
	if a != b {
		t.Errorf("expected same *Store instance for repeated loads of %q", dbPath)
	}
}

func TestRegistryClose(t *testing.T) {
	r := NewRegistry()
	dbPath := filepath.Join(t.TempDir(), "data.sqlite")

	if _, err := r.Load(dbPath); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := r.Close(dbPath); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Loading again should open a fresh instance, not reuse the closed one.
	reopened, err := r.Load(dbPath)
	if err != nil {
		t.Fatalf("reload after close: %v", err)
	}
	t.Cleanup(func() { reopened.Close() })

	if _, err := reopened.Datasets(); err != nil {
		t.Fatalf("use reopened store: %v", err)
	}
}

func TestRegistryCloseAll(t *testing.T) {
	r := NewRegistry()
	p1 := filepath.Join(t.TempDir(), "a.sqlite")
	p2 := filepath.Join(t.TempDir(), "b.sqlite")

	if _, err := r.Load(p1); err != nil {
		t.Fatalf("load p1: %v", err)
	}
	if _, err := r.Load(p2); err != nil {
		t.Fatalf("load p2: %v", err)
	}
	if err := r.CloseAll(); err != nil {
		t.Fatalf("close all: %v", err)
	}
}

func TestShiftDatasetTimeNotSupportedOnPersistentStore(t *testing.T) {
	st := newTestStore(t)
	d := testDataset(t, "ds")
	err := st.ShiftDatasetTime(d.UUID, 1)
	if !errors.Is(err, apperr.NotSupported) {
		t.Errorf("expected NotSupported, got %v", err)
	}
}
