package filestore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/archivekeep/chathist/internal/apperr"
)

func writeFile(t *testing.T, dir, rel string, content []byte) string {
	t.Helper()
	p := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p, content, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestCopyFileMissingSourceIsSkippedNotFailed(t *testing.T) {
	srcRoot := t.TempDir()
	dstRoot := t.TempDir()

	rel, err := CopyFile(CopyRequest{
		SrcRoot:    srcRoot,
		DstRoot:    dstRoot,
		ChatID:     1,
		Subdir:     SubdirFiles,
		SrcRelPath: "does-not-exist.bin",
	})
	if err != nil {
		t.Fatalf("CopyFile: %v", err)
	}
	if rel != "" {
		t.Fatalf("rel = %q, want empty", rel)
	}
}

func TestCopyFileHashingSubdirNamesByHash(t *testing.T) {
	srcRoot := t.TempDir()
	dstRoot := t.TempDir()
	writeFile(t, srcRoot, "photo.jpg", []byte("photo-bytes"))

	rel, err := CopyFile(CopyRequest{
		SrcRoot:    srcRoot,
		DstRoot:    dstRoot,
		ChatID:     7,
		Subdir:     SubdirPhotos,
		SrcRelPath: "photo.jpg",
	})
	if err != nil {
		t.Fatalf("CopyFile: %v", err)
	}
	wantPrefix := "chat_7/photos/"
	if filepath.ToSlash(rel)[:len(wantPrefix)] != wantPrefix {
		t.Fatalf("rel = %q, want prefix %q", rel, wantPrefix)
	}
	if filepath.Ext(rel) != ".jpg" {
		t.Fatalf("rel = %q, want .jpg extension", rel)
	}
	if !FileExists(dstRoot, rel) {
		t.Fatalf("copied file does not exist at %q", rel)
	}
}

func TestCopyFilePassthroughPreservesName(t *testing.T) {
	srcRoot := t.TempDir()
	dstRoot := t.TempDir()
	writeFile(t, srcRoot, "report.pdf", []byte("report-bytes"))

	rel, err := CopyFile(CopyRequest{
		SrcRoot:    srcRoot,
		DstRoot:    dstRoot,
		ChatID:     3,
		Subdir:     SubdirFiles,
		SrcRelPath: "report.pdf",
	})
	if err != nil {
		t.Fatalf("CopyFile: %v", err)
	}
	want := filepath.Join("chat_3", "files", "report.pdf")
	if rel != filepath.ToSlash(want) && rel != want {
		t.Fatalf("rel = %q, want %q", rel, want)
	}
}

func TestCopyFilePassthroughConflictOnDifferentContent(t *testing.T) {
	srcRoot := t.TempDir()
	dstRoot := t.TempDir()
	writeFile(t, srcRoot, "report.pdf", []byte("version-a"))
	writeFile(t, dstRoot, "chat_3/files/report.pdf", []byte("version-b"))

	_, err := CopyFile(CopyRequest{
		SrcRoot:    srcRoot,
		DstRoot:    dstRoot,
		ChatID:     3,
		Subdir:     SubdirFiles,
		SrcRelPath: "report.pdf",
	})
	if err == nil {
		t.Fatal("expected conflict error, got nil")
	}
	if !errors.Is(err, apperr.Conflict) {
		t.Fatalf("error = %v, want apperr.Conflict", err)
	}
}

func TestCopyFilePassthroughAcceptsIdenticalExisting(t *testing.T) {
	srcRoot := t.TempDir()
	dstRoot := t.TempDir()
	writeFile(t, srcRoot, "report.pdf", []byte("same-bytes"))
	writeFile(t, dstRoot, "chat_3/files/report.pdf", []byte("same-bytes"))

	rel, err := CopyFile(CopyRequest{
		SrcRoot:    srcRoot,
		DstRoot:    dstRoot,
		ChatID:     3,
		Subdir:     SubdirFiles,
		SrcRelPath: "report.pdf",
	})
	if err != nil {
		t.Fatalf("CopyFile: %v", err)
	}
	if !FileExists(dstRoot, rel) {
		t.Fatalf("file missing at %q", rel)
	}
}

func TestCopyFileThumbnailNamedAfterBase(t *testing.T) {
	srcRoot := t.TempDir()
	dstRoot := t.TempDir()
	writeFile(t, srcRoot, "clip.mp4", []byte("video-bytes"))
	writeFile(t, srcRoot, "clip_thumb.jpg", []byte("thumb-bytes"))

	mainRel, err := CopyFile(CopyRequest{
		SrcRoot: srcRoot, DstRoot: dstRoot, ChatID: 9,
		Subdir: SubdirFiles, SrcRelPath: "clip.mp4",
	})
	if err != nil {
		t.Fatalf("CopyFile main: %v", err)
	}
	thumbRel, err := CopyFile(CopyRequest{
		SrcRoot: srcRoot, DstRoot: dstRoot, ChatID: 9,
		Subdir: SubdirFiles, SrcRelPath: "clip_thumb.jpg",
		ThumbnailOfRelPath: mainRel,
	})
	if err != nil {
		t.Fatalf("CopyFile thumb: %v", err)
	}
	want := filepath.Join("chat_9", "files", "clip_thumb.jpg")
	if thumbRel != want && thumbRel != filepath.ToSlash(want) {
		t.Fatalf("thumbRel = %q, want %q", thumbRel, want)
	}
}

func TestFilesEqual(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.bin", []byte("hello world"))
	b := writeFile(t, dir, "b.bin", []byte("hello world"))
	c := writeFile(t, dir, "c.bin", []byte("hello there"))

	eq, err := FilesEqual(a, b)
	if err != nil {
		t.Fatalf("FilesEqual: %v", err)
	}
	if !eq {
		t.Fatal("expected a.bin == b.bin")
	}

	eq, err = FilesEqual(a, c)
	if err != nil {
		t.Fatalf("FilesEqual: %v", err)
	}
	if eq {
		t.Fatal("expected a.bin != c.bin")
	}
}

func TestFilesEqualMissingFile(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.bin", []byte("hello"))
	eq, err := FilesEqual(a, filepath.Join(dir, "missing.bin"))
	if err != nil {
		t.Fatalf("FilesEqual: %v", err)
	}
	if eq {
		t.Fatal("expected false for missing file")
	}
}
