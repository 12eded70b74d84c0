// Package filestore implements the dataset-root file store (SPEC_FULL.md
// §4.1): it owns all attachment files for one dataset and guarantees that
// relative paths stored inside messages resolve through the dataset root.
//
// Layout: <dataset_root>/chat_<chat_id>/<subdir>/<filename>. Subdirs are
// per-content-class; hashing subdirs name files by content hash (dedup-
// friendly for small, frequently-duplicated media), passthrough subdirs
// keep the original filename. The chat's own image sits at the chat
// directory's root.
package filestore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/archivekeep/chathist/internal/apperr"
	"github.com/archivekeep/chathist/internal/fileutil"
)

// Subdir names the per-content-class directory under a chat directory. The
// empty Subdir ("") is the chat directory's own root, used for the chat
// image.
type Subdir string

const (
	SubdirNone          Subdir = ""
	SubdirPhotos        Subdir = "photos"
	SubdirStickers      Subdir = "stickers"
	SubdirVoiceMessages Subdir = "voice_messages"
	SubdirAudios        Subdir = "audios"
	SubdirVideoMessages Subdir = "video_messages"
	SubdirVideos        Subdir = "videos"
	SubdirFiles         Subdir = "files"
)

// hashingSubdirs name files by content hash; everything else is passthrough.
var hashingSubdirs = map[Subdir]bool{
	SubdirPhotos:        true,
	SubdirStickers:      true,
	SubdirAudios:        true,
	SubdirVideoMessages: true,
	SubdirVideos:        true,
}

// UsesHashing reports whether subdir names files by content hash rather
// than preserving the original filename.
func (s Subdir) UsesHashing() bool { return hashingSubdirs[s] }

// CopyRequest describes one file to copy from a source dataset root into a
// destination dataset root.
type CopyRequest struct {
	SrcRoot string
	DstRoot string
	ChatID  int64
	Subdir  Subdir
	// SrcRelPath is relative to SrcRoot.
	SrcRelPath string
	// ThumbnailOfRelPath, if set, names another file's relative destination
	// path whose basename this thumbnail derives its filename from
	// (<base>_thumb<ext>). Used for passthrough subdirs only.
	ThumbnailOfRelPath string
}

// CopyFile resolves req.SrcRelPath against req.SrcRoot and copies it into
// req.DstRoot under chat_<id>/<subdir>/<filename>, returning the path
// relative to DstRoot for storage in the message record.
//
// If the source file does not exist, CopyFile returns ("", nil): this is
// the one case the spec allows to pass silently (an unresolved reference
// is kept in the caller's message record; callers should log it at info
// level rather than treat it as an error).
func CopyFile(req CopyRequest) (string, error) {
	if req.SrcRelPath == "" {
		return "", nil
	}
	srcAbs := filepath.Join(req.SrcRoot, filepath.FromSlash(req.SrcRelPath))
	srcInfo, err := os.Stat(srcAbs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", apperr.Wrap(apperr.IO, err, "stat source attachment %q", req.SrcRelPath)
	}
	if !srcInfo.Mode().IsRegular() {
		return "", apperr.New(apperr.IO, "source attachment %q is not a regular file", req.SrcRelPath)
	}

	filename, err := destFilename(req, srcAbs)
	if err != nil {
		return "", err
	}

	dstRel := path.Join(fmt.Sprintf("chat_%d", req.ChatID), string(req.Subdir), filename)
	dstAbs := filepath.Join(req.DstRoot, filepath.FromSlash(dstRel))

	if err := fileutil.SecureMkdirAll(filepath.Dir(dstAbs), 0700); err != nil {
		return "", apperr.Wrap(apperr.IO, err, "create attachment directory for %q", dstRel)
	}

	if dstInfo, err := os.Lstat(dstAbs); err == nil {
		if !dstInfo.Mode().IsRegular() {
			return "", apperr.New(apperr.IO, "destination attachment %q is not a regular file", dstRel)
		}
		if req.Subdir.UsesHashing() {
			// Hash collisions are assumed absent; accept the existing file as-is.
			return dstRel, nil
		}
		equal, err := FilesEqual(srcAbs, dstAbs)
		if err != nil {
			return "", apperr.Wrap(apperr.IO, err, "compare attachment %q with existing %q", req.SrcRelPath, dstRel)
		}
		if !equal {
			return "", apperr.New(apperr.Conflict, "attachment %q already exists at %q with different content", req.SrcRelPath, dstRel)
		}
		return dstRel, nil
	} else if !os.IsNotExist(err) {
		return "", apperr.Wrap(apperr.IO, err, "lstat destination attachment %q", dstRel)
	}

	if err := copyFileAtomic(srcAbs, dstAbs); err != nil {
		return "", apperr.Wrap(apperr.IO, err, "copy attachment %q to %q", req.SrcRelPath, dstRel)
	}
	return dstRel, nil
}

func destFilename(req CopyRequest, srcAbs string) (string, error) {
	ext := filepath.Ext(srcAbs)
	if req.ThumbnailOfRelPath != "" {
		base := strings.TrimSuffix(filepath.Base(req.ThumbnailOfRelPath), filepath.Ext(req.ThumbnailOfRelPath))
		return base + "_thumb" + ext, nil
	}
	if req.Subdir.UsesHashing() {
		hash, err := hashFile(srcAbs)
		if err != nil {
			return "", apperr.Wrap(apperr.IO, err, "hash attachment %q", req.SrcRelPath)
		}
		return hash + ext, nil
	}
	return filepath.Base(srcAbs), nil
}

func hashFile(path string) (string, error) {
	f, err := openNoFollow(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// copyFileAtomic streams src into a temp file beside dst and renames it into
// place, so a concurrent reader never observes a partially-written file.
func copyFileAtomic(src, dst string) error {
	in, err := openNoFollow(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	dir := filepath.Dir(dst)
	tmp, err := os.CreateTemp(dir, filepath.Base(dst)+".tmp.")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	removeTmp := true
	defer func() {
		if removeTmp {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmp, in); err != nil {
		return fmt.Errorf("copy bytes: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	removeTmp = false
	return nil
}

const compareChunkSize = 64 * 1024

// chunkBufPool reduces allocation churn for the streaming comparisons that
// FilesEqual and bulk-copy equivalence checks perform repeatedly.
var chunkBufPool = sync.Pool{New: func() any { return make([]byte, compareChunkSize) }}

// FilesEqual reports whether two files exist, have identical sizes, and
// identical byte contents, comparing in fixed-size chunks so large
// attachments are never fully buffered in memory.
func FilesEqual(pathA, pathB string) (bool, error) {
	infoA, err := os.Stat(pathA)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	infoB, err := os.Stat(pathB)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if infoA.Size() != infoB.Size() {
		return false, nil
	}

	fa, err := openNoFollow(pathA)
	if err != nil {
		return false, err
	}
	defer fa.Close()
	fb, err := openNoFollow(pathB)
	if err != nil {
		return false, err
	}
	defer fb.Close()

	bufA := chunkBufPool.Get().([]byte)
	bufB := chunkBufPool.Get().([]byte)
	defer chunkBufPool.Put(bufA)
	defer chunkBufPool.Put(bufB)

	for {
		nA, errA := io.ReadFull(fa, bufA)
		nB, errB := io.ReadFull(fb, bufB)
		if nA != nB {
			return false, nil
		}
		if nA > 0 && string(bufA[:nA]) != string(bufB[:nB]) {
			return false, nil
		}
		doneA := errA == io.EOF || errA == io.ErrUnexpectedEOF
		doneB := errB == io.EOF || errB == io.ErrUnexpectedEOF
		if doneA != doneB {
			return false, nil
		}
		if doneA {
			return true, nil
		}
		if errA != nil {
			return false, errA
		}
		if errB != nil {
			return false, errB
		}
	}
}

// FileExists reports whether relPath resolves to a regular file under root.
// Used by practical equality's "missing from disk" carve-out.
func FileExists(root, relPath string) bool {
	if relPath == "" {
		return false
	}
	info, err := os.Stat(filepath.Join(root, filepath.FromSlash(relPath)))
	return err == nil && info.Mode().IsRegular()
}

// PrepareRoot ensures a dataset root directory exists and resolves symlinks,
// matching the dataset-root file store's invariant that all content paths
// stay inside the root.
func PrepareRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", apperr.Wrap(apperr.IO, err, "resolve dataset root %q", root)
	}
	if err := fileutil.SecureMkdirAll(abs, 0700); err != nil {
		return "", apperr.Wrap(apperr.IO, err, "create dataset root %q", root)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", apperr.Wrap(apperr.IO, err, "resolve dataset root symlinks %q", root)
	}
	return resolved, nil
}
