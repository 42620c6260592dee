package invalidate

import (
	"fmt"
	"os"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/daboe01/VIPSPatchbay/internal/cache"
	"github.com/daboe01/VIPSPatchbay/internal/graph"
	"github.com/daboe01/VIPSPatchbay/internal/imagestore"
	"github.com/daboe01/VIPSPatchbay/internal/resolver"
)

type fakeRepository struct {
	instances map[int]*graph.BlockInstance
	enabled   map[int]bool
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{instances: map[int]*graph.BlockInstance{}, enabled: map[int]bool{}}
}

func (f *fakeRepository) GetBlockInstance(id int) (*graph.BlockInstance, error) {
	inst, ok := f.instances[id]
	if !ok {
		return nil, fmt.Errorf("no such instance %d", id)
	}
	return inst, nil
}

func (f *fakeRepository) GetBlockType(id int) (*graph.BlockType, error) {
	return nil, fmt.Errorf("not implemented in fake")
}

func (f *fakeRepository) FindInputImageUuidByFilename(filename string) (string, error) {
	return "", fmt.Errorf("not implemented in fake")
}

func (f *fakeRepository) ListProjectBlocks(idProject int) ([]graph.BlockInstance, error) {
	var out []graph.BlockInstance
	for _, inst := range f.instances {
		if inst.IdProject == idProject {
			out = append(out, *inst)
		}
	}
	return out, nil
}

func (f *fakeRepository) TerminalBlock(idProject int) (*graph.BlockInstance, error) {
	return nil, fmt.Errorf("not implemented in fake")
}

func (f *fakeRepository) SetEnabled(id int, enabled bool) error {
	inst, ok := f.instances[id]
	if !ok {
		return fmt.Errorf("no such instance %d", id)
	}
	inst.Enabled = &enabled
	return nil
}

func (f *fakeRepository) InsertInputImage(uuid, filename string) error {
	return fmt.Errorf("not implemented in fake")
}

type fakeCacheIndex struct {
	rowsByBlock map[int][]string
	deleted     map[string]bool
}

func newFakeCacheIndex() *fakeCacheIndex {
	return &fakeCacheIndex{rowsByBlock: map[int][]string{}, deleted: map[string]bool{}}
}

func (f *fakeCacheIndex) Lookup(key cache.Key) (string, bool, error) {
	return "", false, fmt.Errorf("not implemented in fake")
}

func (f *fakeCacheIndex) Insert(uuid string, key cache.Key) error {
	f.rowsByBlock[key.IdBlock] = append(f.rowsByBlock[key.IdBlock], uuid)
	return nil
}

func (f *fakeCacheIndex) DeleteByUuid(uuid string) error {
	f.deleted[uuid] = true
	return nil
}

func (f *fakeCacheIndex) ListUuidsForBlocks(idBlocks []int) ([]string, error) {
	var out []string
	for _, id := range idBlocks {
		out = append(out, f.rowsByBlock[id]...)
	}
	return out, nil
}

func (f *fakeCacheIndex) LatestUuidForBlock(idBlock int) (string, bool, error) {
	return "", false, fmt.Errorf("not implemented in fake")
}

// TestDownstreamInvalidation verifies that toggling a non-leaf block to
// disabled evicts every cached output for every block in its downstream
// closure, and only those. The toggled block (B, id 2) is itself a
// general block with its own cache row, not merely a leaf upstream of the
// blocks it invalidates -- this catches a regression where the closure
// walk collects only blocks discovered via BFS edges and forgets to seed
// the root block's own id, leaving its own cache row untouched.
func TestDownstreamInvalidation(t *testing.T) {

	dir := t.TempDir()
	store, err := imagestore.New(dir)
	if err != nil {
		t.Fatalf("failed to create image store: %v", err)
	}
	resolve := resolver.New(store)

	repo := newFakeRepository()
	ci := newFakeCacheIndex()

	// A -> B -> C, and D independent of A. B, the block being toggled, is
	// itself a general block with a cache row of its own.
	repo.instances[1] = &graph.BlockInstance{Id: 1, IdProject: 1, Connections: json.RawMessage(`{}`)}
	repo.instances[2] = &graph.BlockInstance{Id: 2, IdProject: 1, Connections: json.RawMessage(`{"in":1}`)} // B depends on A
	repo.instances[3] = &graph.BlockInstance{Id: 3, IdProject: 1, Connections: json.RawMessage(`{"in":2}`)} // C depends on B
	repo.instances[4] = &graph.BlockInstance{Id: 4, IdProject: 1, Connections: json.RawMessage(`{}`)}       // D independent

	uuidB := "bbbbbbbb-0000-0000-0000-000000000002"
	uuidC := "cccccccc-0000-0000-0000-000000000003"
	uuidD := "dddddddd-0000-0000-0000-000000000004"

	for _, u := range []string{uuidB, uuidC, uuidD} {
		if err := os.WriteFile(store.CachedImagesPath(u), []byte("x"), 0o644); err != nil {
			t.Fatalf("failed to seed fixture %s: %v", u, err)
		}
	}

	ci.rowsByBlock[2] = []string{uuidB}
	ci.rowsByBlock[3] = []string{uuidC}
	ci.rowsByBlock[4] = []string{uuidD}

	ctrl := New(repo, ci, resolve)

	if err := ctrl.ToggleEnabled(2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !repo.instances[2].IsDisabled() {
		t.Errorf("expected block 2 to be disabled after toggling")
	}

	for _, u := range []string{uuidB, uuidC} {
		if _, err := os.Stat(store.CachedImagesPath(u)); !os.IsNotExist(err) {
			t.Errorf("expected cached file for %s to be removed", u)
		}
		if !ci.deleted[u] {
			t.Errorf("expected cache row for %s to be deleted", u)
		}
	}

	if _, err := os.Stat(store.CachedImagesPath(uuidD)); err != nil {
		t.Errorf("expected cached file for independent block D to survive, got %v", err)
	}
	if ci.deleted[uuidD] {
		t.Errorf("did not expect independent block D's cache row to be touched")
	}
}

func TestToggleEnabledFlipsBackToEnabled(t *testing.T) {

	dir := t.TempDir()
	store, err := imagestore.New(dir)
	if err != nil {
		t.Fatalf("failed to create image store: %v", err)
	}
	resolve := resolver.New(store)

	repo := newFakeRepository()
	ci := newFakeCacheIndex()

	currentlyEnabled := false
	repo.instances[1] = &graph.BlockInstance{Id: 1, IdProject: 1, Connections: json.RawMessage(`{}`), Enabled: &currentlyEnabled}

	ctrl := New(repo, ci, resolve)

	if err := ctrl.ToggleEnabled(1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if repo.instances[1].IsDisabled() {
		t.Errorf("expected block 1 to be re-enabled")
	}
}
