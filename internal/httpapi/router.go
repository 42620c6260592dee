// Package httpapi exposes the core's HTTP surface on top of net/http's
// ServeMux: one handler per resource family, dispatching on r.Method and
// hand-parsed path segments rather than a routing library.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/daboe01/VIPSPatchbay/internal/cache"
	"github.com/daboe01/VIPSPatchbay/internal/evaluator"
	"github.com/daboe01/VIPSPatchbay/internal/graph"
	"github.com/daboe01/VIPSPatchbay/internal/imagestore"
	"github.com/daboe01/VIPSPatchbay/internal/invalidate"
	"github.com/daboe01/VIPSPatchbay/internal/resolver"
	"github.com/daboe01/VIPSPatchbay/internal/thumbnail"
	"github.com/daboe01/VIPSPatchbay/internal/util"
)

// Router wires the core's HTTP surface to its components.
type Router struct {
	blocks    graph.Repository
	ci        cache.CacheIndex
	eval      *evaluator.Evaluator
	resolve   *resolver.Resolver
	store     *imagestore.Store
	thumbs    *thumbnail.Service
	invalid   *invalidate.Controller

	logger *slog.Logger
}

// New builds a Router from the core's constructed components.
func New(
	blocks graph.Repository,
	ci cache.CacheIndex,
	eval *evaluator.Evaluator,
	resolve *resolver.Resolver,
	store *imagestore.Store,
	thumbs *thumbnail.Service,
	invalid *invalidate.Controller,
) *Router {
	return &Router{
		blocks:  blocks,
		ci:      ci,
		eval:    eval,
		resolve: resolve,
		store:   store,
		thumbs:  thumbs,
		invalid: invalid,

		logger: slog.Default().
			With(slog.String(util.PackageKey, util.PackageHttpapi)),
	}
}

// Mux registers every route against a fresh http.ServeMux.
func (rt *Router) Mux() *http.ServeMux {

	mux := http.NewServeMux()

	mux.HandleFunc("/VIPS/upload", rt.handleUpload)
	mux.HandleFunc("/VIPS/preview/", rt.handlePreview)
	mux.HandleFunc("/VIPS/run", rt.handleRun)
	mux.HandleFunc("/VIPS/block/", rt.handleBlock)
	mux.HandleFunc("/VIPS/project/", rt.handleProject)

	return mux
}
