package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestBackupCreatesZip(t *testing.T) {
	st := newTestStore(t)
	mustInsertDataset(t, st, "ds")

	root := t.TempDir()
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	zipPath, err := st.Backup(root, now)
	if err != nil {
		t.Fatalf("backup: %v", err)
	}
	if filepath.Ext(zipPath) != ".zip" {
		t.Errorf("expected a .zip path, got %q", zipPath)
	}
	if _, err := os.Stat(zipPath); err != nil {
		t.Errorf("expected zip to exist: %v", err)
	}

	backupsDir := filepath.Join(root, "_backups")
	plainCopy := filepath.Join(backupsDir, filepath.Base(st.Path()))
	if _, err := os.Stat(plainCopy); !os.IsNotExist(err) {
		t.Errorf("expected uncompressed copy to be removed, stat err = %v", err)
	}
}

func TestBackupRetainsOnlyThreeNewest(t *testing.T) {
	st := newTestStore(t)
	root := t.TempDir()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var zips []string
	for i := 0; i < 5; i++ {
		zipPath, err := st.Backup(root, base.Add(time.Duration(i)*time.Hour))
		if err != nil {
			t.Fatalf("backup %d: %v", i, err)
		}
		zips = append(zips, zipPath)
	}

	backupsDir := filepath.Join(root, "_backups")
	entries, err := os.ReadDir(backupsDir)
	if err != nil {
		t.Fatalf("read backups dir: %v", err)
	}
	var zipCount int
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".zip" {
			zipCount++
		}
	}
	if zipCount != 3 {
		t.Errorf("expected 3 retained backups, got %d", zipCount)
	}

	for _, early := range zips[:2] {
		if _, err := os.Stat(early); !os.IsNotExist(err) {
			t.Errorf("expected old backup %q to be pruned", early)
		}
	}
	if _, err := os.Stat(zips[len(zips)-1]); err != nil {
		t.Errorf("expected newest backup to survive: %v", err)
	}
}

func TestBackupAsyncProducesZipAndPrunes(t *testing.T) {
	st := newTestStore(t)
	mustInsertDataset(t, st, "ds")

	root := t.TempDir()
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	handle, err := st.BackupAsync(root, now)
	if err != nil {
		t.Fatalf("backup async: %v", err)
	}
	zipPath, err := handle.Wait()
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if filepath.Ext(zipPath) != ".zip" {
		t.Errorf("expected a .zip path, got %q", zipPath)
	}
	if _, err := os.Stat(zipPath); err != nil {
		t.Errorf("expected zip to exist: %v", err)
	}

	backupsDir := filepath.Join(root, "_backups")
	plainCopy := filepath.Join(backupsDir, filepath.Base(st.Path()))
	if _, err := os.Stat(plainCopy); !os.IsNotExist(err) {
		t.Errorf("expected uncompressed copy to be removed, stat err = %v", err)
	}
}

func TestBackupAsyncPrunesAlongsideSyncBackups(t *testing.T) {
	st := newTestStore(t)
	root := t.TempDir()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		if _, err := st.Backup(root, base.Add(time.Duration(i)*time.Hour)); err != nil {
			t.Fatalf("backup %d: %v", i, err)
		}
	}

	handle, err := st.BackupAsync(root, base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("backup async: %v", err)
	}
	if _, err := handle.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}

	if _, err := st.Backup(root, base.Add(3*time.Hour)); err != nil {
		t.Fatalf("backup 3: %v", err)
	}

	backupsDir := filepath.Join(root, "_backups")
	entries, err := os.ReadDir(backupsDir)
	if err != nil {
		t.Fatalf("read backups dir: %v", err)
	}
	var zipCount int
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".zip" {
			zipCount++
		}
	}
	if zipCount != 3 {
		t.Errorf("expected 3 retained backups, got %d", zipCount)
	}
}
