package store

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/archivekeep/chathist/internal/apperr"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestInsertAndListDatasets(t *testing.T) {
	st := newTestStore(t)

	d := testDataset(t, "export one")
	if err := st.InsertDataset(d); err != nil {
		t.Fatalf("insert dataset: %v", err)
	}

	datasets, err := st.Datasets()
	if err != nil {
		t.Fatalf("datasets: %v", err)
	}
	if len(datasets) != 1 {
		t.Fatalf("expected 1 dataset, got %d", len(datasets))
	}
	if datasets[0].UUID != d.UUID || datasets[0].Alias != d.Alias {
		t.Errorf("dataset mismatch: got %+v, want %+v", datasets[0], d)
	}
}

func TestInsertDatasetConflict(t *testing.T) {
	st := newTestStore(t)
	d := testDataset(t, "first")
	if err := st.InsertDataset(d); err != nil {
		t.Fatalf("insert dataset: %v", err)
	}
	err := st.InsertDataset(d)
	if !errors.Is(err, apperr.Conflict) {
		t.Errorf("expected Conflict, got %v", err)
	}
}

func TestUpdateDatasetRenames(t *testing.T) {
	st := newTestStore(t)
	d := testDataset(t, "old alias")
	if err := st.InsertDataset(d); err != nil {
		t.Fatalf("insert dataset: %v", err)
	}

	if err := st.UpdateDataset(d.UUID, "new alias"); err != nil {
		t.Fatalf("update dataset: %v", err)
	}

	datasets, err := st.Datasets()
	if err != nil {
		t.Fatalf("datasets: %v", err)
	}
	if datasets[0].Alias != "new alias" {
		t.Errorf("expected alias %q, got %q", "new alias", datasets[0].Alias)
	}
}

func TestUpdateDatasetNotFound(t *testing.T) {
	st := newTestStore(t)
	err := st.UpdateDataset(uuid.New(), "whatever")
	if !errors.Is(err, apperr.NotFound) {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestDeleteDatasetCascades(t *testing.T) {
	st := newTestStore(t)
	d := testDataset(t, "to delete")
	if err := st.InsertDataset(d); err != nil {
		t.Fatalf("insert dataset: %v", err)
	}
	if err := st.InsertUser(testUser(d.UUID, 1, true)); err != nil {
		t.Fatalf("insert user: %v", err)
	}

	if err := st.DeleteDataset(d.UUID, "", nil); err != nil {
		t.Fatalf("delete dataset: %v", err)
	}

	datasets, err := st.Datasets()
	if err != nil {
		t.Fatalf("datasets: %v", err)
	}
	if len(datasets) != 0 {
		t.Errorf("expected 0 datasets after delete, got %d", len(datasets))
	}

	users, err := st.Users(d.UUID)
	if err != nil {
		t.Fatalf("users: %v", err)
	}
	if len(users) != 0 {
		t.Errorf("expected cascading delete of users, got %d", len(users))
	}
}

func TestDeleteDatasetNotFound(t *testing.T) {
	st := newTestStore(t)
	err := st.DeleteDataset(uuid.New(), "", nil)
	if !errors.Is(err, apperr.NotFound) {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestDeleteDatasetInvokesMoveToBackup(t *testing.T) {
	st := newTestStore(t)
	d := testDataset(t, "with attachments")
	if err := st.InsertDataset(d); err != nil {
		t.Fatalf("insert dataset: %v", err)
	}

	var calledWith string
	err := st.DeleteDataset(d.UUID, "/attachments/root", func(root string) error {
		calledWith = root
		return nil
	})
	if err != nil {
		t.Fatalf("delete dataset: %v", err)
	}
	if calledWith != "/attachments/root" {
		t.Errorf("expected moveToBackup called with root, got %q", calledWith)
	}
}
