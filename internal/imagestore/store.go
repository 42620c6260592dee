// Package imagestore is the flat on-disk directory tree holding originals,
// derived/cached outputs, and thumbnails.
package imagestore

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	CachedImagesDir = "cached_images"
	ThumbnailsDir   = "thumbnails"
)

// Store roots every filesystem path the core touches at one directory.
type Store struct {
	Root string
}

// New creates a Store rooted at dir, ensuring the cached_images/ and
// thumbnails/ subtrees exist.
func New(dir string) (*Store, error) {

	s := &Store{Root: dir}

	for _, sub := range []string{"", CachedImagesDir, ThumbnailsDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create image store directory %q: %v", filepath.Join(dir, sub), err)
		}
	}

	return s, nil
}

// OriginalsDir is the root directory search for uploaded originals.
func (s *Store) OriginalsDir() string {
	return s.Root
}

// CachedImagesPath returns the path a derived image with the given uuid
// would occupy: cached_images/<uuid>.png.
func (s *Store) CachedImagesPath(uuid string) string {
	return filepath.Join(s.Root, CachedImagesDir, uuid+".png")
}

// ThumbnailPath returns the path a thumbnail for (uuid, width) would
// occupy: thumbnails/<uuid>_w<width>.jpg.
func (s *Store) ThumbnailPath(uuid string, width int) string {
	return filepath.Join(s.Root, ThumbnailsDir, fmt.Sprintf("%s_w%d.jpg", uuid, width))
}

// ThumbnailLockPath returns the lock sentinel path for a thumbnail target.
func (s *Store) ThumbnailLockPath(uuid string, width int) string {
	return s.ThumbnailPath(uuid, width) + ".lock"
}

// SaveOriginal writes bytes for a newly-arrived input image named
// <uuid><ext> at the store root. This is the only file-upload-handling
// surface this package owns; upload parsing itself happens upstream.
func (s *Store) SaveOriginal(uuid, ext string, data []byte) (string, error) {

	path := filepath.Join(s.Root, uuid+ext)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write original image %s: %v", path, err)
	}

	return path, nil
}

// RemoveIfExists deletes path if present; a missing file is not an error.
// Both deliberate invalidation and cache self-heal treat "already gone"
// as success.
func RemoveIfExists(path string) error {

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %v", path, err)
	}

	return nil
}
