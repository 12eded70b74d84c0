package store

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/archivekeep/chathist/internal/apperr"
)

// Backup performs an online paged copy of the database file into
// <storageRoot>/_backups/<dbfilename>, compresses it into a timestamped zip,
// deletes the uncompressed copy, and retains only the 3 newest backups by
// filename order.
//
// The page size and pause keep a long backup from starving concurrent
// readers/writers of the live database (SPEC_FULL.md's invariant: the main
// database is never left inconsistent by a backup run).
func (s *Store) Backup(storageRoot string, now time.Time) (string, error) {
	backupsDir := filepath.Join(storageRoot, "_backups")
	if err := os.MkdirAll(backupsDir, 0755); err != nil {
		return "", apperr.Wrap(apperr.IO, err, "create backups directory")
	}

	plainCopy := filepath.Join(backupsDir, filepath.Base(s.dbPath))
	if err := pagedCopyFile(s.dbPath, plainCopy); err != nil {
		return "", apperr.Wrap(apperr.IO, err, "copy database for backup")
	}

	zipPath, err := uniqueBackupPath(backupsDir, now)
	if err != nil {
		_ = os.Remove(plainCopy)
		return "", err
	}
	if err := zipFile(plainCopy, zipPath); err != nil {
		_ = os.Remove(plainCopy)
		return "", apperr.Wrap(apperr.IO, err, "compress backup")
	}
	if err := os.Remove(plainCopy); err != nil {
		return "", apperr.Wrap(apperr.IO, err, "remove uncompressed backup copy")
	}

	if err := pruneBackups(backupsDir, 3); err != nil {
		return zipPath, err
	}
	return zipPath, nil
}

// BackupHandle is the join handle for a backup run whose compression and
// pruning phase was off-loaded onto a separate task (SPEC_FULL.md §5:
// backup's compression phase is explicitly off-loaded, unlike other
// long-running operations which block the caller directly).
type BackupHandle struct {
	g       *errgroup.Group
	zipPath string
}

// Wait blocks until compression and pruning complete, returning the
// finished backup's zip path.
func (h *BackupHandle) Wait() (string, error) {
	if err := h.g.Wait(); err != nil {
		return "", err
	}
	return h.zipPath, nil
}

// BackupAsync performs the paged database copy synchronously (the source
// file must stay stable for its duration), then returns immediately with a
// handle for the compression and pruning phase running on a separate task.
func (s *Store) BackupAsync(storageRoot string, now time.Time) (*BackupHandle, error) {
	backupsDir := filepath.Join(storageRoot, "_backups")
	if err := os.MkdirAll(backupsDir, 0755); err != nil {
		return nil, apperr.Wrap(apperr.IO, err, "create backups directory")
	}

	plainCopy := filepath.Join(backupsDir, filepath.Base(s.dbPath))
	if err := pagedCopyFile(s.dbPath, plainCopy); err != nil {
		return nil, apperr.Wrap(apperr.IO, err, "copy database for backup")
	}

	h := &BackupHandle{g: new(errgroup.Group)}
	h.g.Go(func() error {
		zipPath, err := uniqueBackupPath(backupsDir, now)
		if err != nil {
			os.Remove(plainCopy)
			return err
		}
		if err := zipFile(plainCopy, zipPath); err != nil {
			os.Remove(plainCopy)
			return apperr.Wrap(apperr.IO, err, "compress backup")
		}
		if err := os.Remove(plainCopy); err != nil {
			return apperr.Wrap(apperr.IO, err, "remove uncompressed backup copy")
		}
		if err := pruneBackups(backupsDir, 3); err != nil {
			return err
		}
		h.zipPath = zipPath
		return nil
	})
	return h, nil
}

const backupPageSize = 4 << 20 // 4 MiB pages, with a short pause between each

func pagedCopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	buf := make([]byte, backupPageSize)
	for {
		n, readErr := in.Read(buf)
		if n > 0 {
			if _, err := out.Write(buf[:n]); err != nil {
				return err
			}
			time.Sleep(time.Millisecond)
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}

func uniqueBackupPath(backupsDir string, now time.Time) (string, error) {
	stamp := now.Format("2006-01-02_15-04-05")
	base := fmt.Sprintf("backup_%s.zip", stamp)
	path := filepath.Join(backupsDir, base)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path, nil
	}
	for n := 1; ; n++ {
		candidate := filepath.Join(backupsDir, fmt.Sprintf("backup_%s_%d.zip", stamp, n))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		}
		if n > 10000 {
			return "", apperr.New(apperr.IO, "could not find a free backup filename for %s", stamp)
		}
	}
}

func zipFile(src, dstZip string) error {
	out, err := os.Create(dstZip)
	if err != nil {
		return err
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	defer zw.Close()

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	w, err := zw.Create(filepath.Base(src))
	if err != nil {
		return err
	}
	_, err = io.Copy(w, in)
	return err
}

// pruneBackups keeps only the `keep` newest backup_*.zip files by filename
// order (the timestamped name sorts chronologically) and removes the rest.
func pruneBackups(backupsDir string, keep int) error {
	entries, err := os.ReadDir(backupsDir)
	if err != nil {
		return apperr.Wrap(apperr.IO, err, "list backups directory")
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".zip" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	if len(names) <= keep {
		return nil
	}
	for _, name := range names[:len(names)-keep] {
		if err := os.Remove(filepath.Join(backupsDir, name)); err != nil {
			return apperr.Wrap(apperr.IO, err, "remove stale backup %q", name)
		}
	}
	return nil
}
