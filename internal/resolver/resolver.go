// Package resolver, given a UUID, locates the single file on disk whose
// basename begins with that UUID.
package resolver

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/daboe01/VIPSPatchbay/internal/imagestore"
)

// canonicalUuid matches the canonical hyphenated-hex UUID text form
// ("[0-9a-f-]{36}"). It is intentionally permissive about hyphen
// placement while rejecting anything containing characters outside
// [0-9a-f-] or of the wrong length.
var canonicalUuid = regexp.MustCompile(`^[0-9a-f-]{36}$`)

// Resolver resolves content-handle UUIDs to filesystem paths.
type Resolver struct {
	store *imagestore.Store
}

// New creates a Resolver backed by the given Store.
func New(store *imagestore.Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve maps uuid to a filesystem path, or reports missing. It searches
// the store root (originals) first, then cached_images/ (derived),
// non-recursively, and returns the first file whose basename is exactly
// uuid or uuid.<ext>. No lock is held; callers needing stability under
// concurrent deletion must re-check existence themselves.
func (r *Resolver) Resolve(uuid string) (string, bool) {

	if !canonicalUuid.MatchString(uuid) {
		return "", false
	}

	for _, dir := range []string{r.store.OriginalsDir(), filepath.Join(r.store.Root, imagestore.CachedImagesDir)} {

		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}

		for _, e := range entries {
			if e.IsDir() {
				continue
			}

			name := e.Name()
			if name == uuid || (strings.HasPrefix(name, uuid) && strings.HasPrefix(name[len(uuid):], ".")) {
				return filepath.Join(dir, name), true
			}
		}
	}

	return "", false
}
