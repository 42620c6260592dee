// Package invalidate toggles a block's enabled flag and, on disable,
// evicts every cached output downstream of it so the next evaluation
// recomputes them.
package invalidate

import (
	"fmt"
	"log/slog"

	"github.com/daboe01/VIPSPatchbay/internal/cache"
	"github.com/daboe01/VIPSPatchbay/internal/graph"
	"github.com/daboe01/VIPSPatchbay/internal/imagestore"
	"github.com/daboe01/VIPSPatchbay/internal/resolver"
	"github.com/daboe01/VIPSPatchbay/internal/util"
)

// Controller toggles a block instance's enabled flag and sweeps its
// downstream cache closure on disable.
type Controller struct {
	blocks  graph.Repository
	ci      cache.CacheIndex
	resolve *resolver.Resolver

	logger *slog.Logger
}

// New creates an invalidation Controller.
func New(blocks graph.Repository, ci cache.CacheIndex, resolve *resolver.Resolver) *Controller {
	return &Controller{
		blocks:  blocks,
		ci:      ci,
		resolve: resolve,

		logger: slog.Default().
			With(slog.String(util.PackageKey, util.PackageInvalidate)).
			With(slog.String(util.ComponentKey, util.ComponentInvalidation)),
	}
}

// ToggleEnabled flips a block instance's enabled flag. On a transition into
// disabled, it walks the downstream closure of "B depends on A" edges
// within the instance's project -- every block instance whose connections
// transitively reference this one -- and evicts every cached output
// belonging to a block instance in that closure, deleting both the Cache
// Index rows and the physical files they named. Deletion is best-effort
// and idempotent: a file already gone is not an error.
func (c *Controller) ToggleEnabled(id int) error {

	instance, err := c.blocks.GetBlockInstance(id)
	if err != nil {
		return fmt.Errorf("failed to load block instance %d: %v", id, err)
	}

	wasDisabled := instance.IsDisabled()
	nowEnabled := wasDisabled // flip

	if err := c.blocks.SetEnabled(id, nowEnabled); err != nil {
		return fmt.Errorf("failed to toggle enabled on block %d: %v", id, err)
	}

	if !nowEnabled {
		// transitioned into disabled: sweep the downstream closure
		if err := c.invalidateDownstreamOf(instance.IdProject, id); err != nil {
			return fmt.Errorf("failed to invalidate downstream of block %d: %v", id, err)
		}
	}

	return nil
}

// invalidateDownstreamOf computes the BFS closure of block instances within
// idProject that transitively depend on root, including root itself, via
// a single batched fetch of the project's block instances followed by an
// in-memory BFS rather than one query per edge, then evicts every cached
// output for a block instance in that closure.
func (c *Controller) invalidateDownstreamOf(idProject, root int) error {

	instances, err := c.blocks.ListProjectBlocks(idProject)
	if err != nil {
		return fmt.Errorf("failed to list blocks for project %d: %v", idProject, err)
	}

	// dependents[A] = every B with an edge B -> A (B depends on A)
	dependents := make(map[int][]int, len(instances))
	for _, inst := range instances {
		conns, err := inst.ConnectionsMap()
		if err != nil {
			return fmt.Errorf("failed to decode connections for block %d: %v", inst.Id, err)
		}
		for _, upstream := range conns {
			dependents[upstream] = append(dependents[upstream], inst.Id)
		}
	}

	closure := map[int]bool{root: true}
	queue := []int{root}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, next := range dependents[cur] {
			if !closure[next] {
				closure[next] = true
				queue = append(queue, next)
			}
		}
	}

	idBlocks := make([]int, 0, len(closure))
	for id := range closure {
		idBlocks = append(idBlocks, id)
	}

	uuids, err := c.ci.ListUuidsForBlocks(idBlocks)
	if err != nil {
		return fmt.Errorf("failed to list cached outputs for downstream closure of block %d: %v", root, err)
	}

	for _, uuid := range uuids {
		if path, ok := c.resolve.Resolve(uuid); ok {
			if err := imagestore.RemoveIfExists(path); err != nil {
				c.logger.Warn("failed to remove invalidated output file", slog.String("uuid", uuid), slog.Any("error", err))
			}
		}
		if err := c.ci.DeleteByUuid(uuid); err != nil {
			return fmt.Errorf("failed to delete cache row for uuid %s: %v", uuid, err)
		}
	}

	c.logger.Info("invalidated downstream cache entries",
		slog.Int("root_block", root), slog.Int("affected_blocks", len(closure)), slog.Int("evicted_uuids", len(uuids)))

	return nil
}
