package resolver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/daboe01/VIPSPatchbay/internal/imagestore"
)

func newTestStore(t *testing.T) *imagestore.Store {
	t.Helper()

	dir := t.TempDir()
	store, err := imagestore.New(dir)
	if err != nil {
		t.Fatalf("failed to create image store: %v", err)
	}
	return store
}

const testUuid = "1a2b3c4d-0000-0000-0000-abcdefabcdef"

func TestResolveFindsOriginal(t *testing.T) {

	store := newTestStore(t)
	r := New(store)

	original := filepath.Join(store.Root, testUuid+".png")
	if err := os.WriteFile(original, []byte("data"), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	path, ok := r.Resolve(testUuid)
	if !ok {
		t.Fatalf("expected to resolve %s", testUuid)
	}
	if path != original {
		t.Errorf("path = %q, want %q", path, original)
	}
}

func TestResolveFindsCachedImage(t *testing.T) {

	store := newTestStore(t)
	r := New(store)

	cached := filepath.Join(store.Root, imagestore.CachedImagesDir, testUuid+".png")
	if err := os.WriteFile(cached, []byte("data"), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	path, ok := r.Resolve(testUuid)
	if !ok {
		t.Fatalf("expected to resolve %s", testUuid)
	}
	if path != cached {
		t.Errorf("path = %q, want %q", path, cached)
	}
}

func TestResolveMissing(t *testing.T) {

	store := newTestStore(t)
	r := New(store)

	if _, ok := r.Resolve(testUuid); ok {
		t.Errorf("expected resolve of absent uuid to fail")
	}
}

func TestResolveRejectsMalformedUuid(t *testing.T) {

	store := newTestStore(t)
	r := New(store)

	if _, ok := r.Resolve("not-a-uuid"); ok {
		t.Errorf("expected resolve of malformed uuid to fail")
	}
}
