package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/daboe01/VIPSPatchbay/internal/cache"
	"github.com/daboe01/VIPSPatchbay/internal/config"
	"github.com/daboe01/VIPSPatchbay/internal/evaluator"
	"github.com/daboe01/VIPSPatchbay/internal/graph"
	"github.com/daboe01/VIPSPatchbay/internal/httpapi"
	"github.com/daboe01/VIPSPatchbay/internal/imagestore"
	"github.com/daboe01/VIPSPatchbay/internal/invalidate"
	"github.com/daboe01/VIPSPatchbay/internal/resolver"
	"github.com/daboe01/VIPSPatchbay/internal/storedb"
	"github.com/daboe01/VIPSPatchbay/internal/thumbnail"
	"github.com/daboe01/VIPSPatchbay/internal/util"
)

func main() {

	// set logging to json format for application
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(jsonHandler).
		With(slog.String(util.ServiceKey, util.ServiceVIPS)))

	logger := slog.Default().
		With(slog.String(util.PackageKey, util.PackageMain)).
		With(slog.String(util.ComponentKey, util.ComponentMain))

	cfg, err := config.Load()
	if err != nil {
		logger.Error(fmt.Sprintf("failed to load %s config", util.ServiceVIPS), "err", err.Error())
		os.Exit(1)
	}

	db, err := storedb.Connect(cfg.Database)
	if err != nil {
		logger.Error(fmt.Sprintf("failed to connect %s to its database", util.ServiceVIPS), "err", err.Error())
		os.Exit(1)
	}
	defer db.Close()

	store, err := imagestore.New(cfg.ImageStoreRoot)
	if err != nil {
		logger.Error("failed to initialize image store", "err", err.Error())
		os.Exit(1)
	}

	resolve := resolver.New(store)
	blocks := graph.NewRepository(db)
	ci := cache.NewCacheIndex(db)
	eval := evaluator.New(blocks, ci, resolve, store)
	thumbs := thumbnail.New(store, resolve, cfg.ThumbnailerCommand)
	invalid := invalidate.New(blocks, ci, resolve)

	router := httpapi.New(blocks, ci, eval, resolve, store, thumbs, invalid)

	logger.Info(fmt.Sprintf("starting %s on %s", util.ServiceVIPS, cfg.ServicePort))

	if err := http.ListenAndServe(cfg.ServicePort, router.Mux()); err != nil {
		logger.Error(fmt.Sprintf("failed to run %s", util.ServiceVIPS), "err", err.Error())
		os.Exit(1)
	}
}
