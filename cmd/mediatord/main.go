// Command mediatord runs the mediator's HTTP server: it wires the engine
// adapter, registry, indexer, and query executor together and serves the
// ingestion and query routes.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/cognicore/ewbmediator/pkg/config"
	"github.com/cognicore/ewbmediator/pkg/engine"
	"github.com/cognicore/ewbmediator/pkg/httpapi"
	"github.com/cognicore/ewbmediator/pkg/indexer"
	"github.com/cognicore/ewbmediator/pkg/model"
	"github.com/cognicore/ewbmediator/pkg/model/mallet"
	"github.com/cognicore/ewbmediator/pkg/query"
	"github.com/cognicore/ewbmediator/pkg/registry"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to the mediator's YAML config file (required)")
		addr       = flag.String("addr", ":8080", "Address to listen on")
		dev        = flag.Bool("dev", false, "Use human-readable text logging instead of JSON")
	)
	flag.Parse()

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "--config required")
		os.Exit(2)
	}

	logger := newLogger(*dev)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("loading config", "error", err)
		os.Exit(1)
	}

	client := engine.New(engine.Config{BaseURL: cfg.EngineURL})

	reg, err := registry.New(client, cfg.RegistryCollection)
	if err != nil {
		logger.Error("creating registry", "error", err)
		os.Exit(1)
	}

	loader := model.NewLoader(cfg.PayloadScale, cfg.PayloadSeed, map[string]model.TrainerFamily{
		"mallet": mallet.New(),
	})

	ix := indexer.New(indexer.Options{
		Engine:    client,
		Registry:  reg,
		Config:    cfg,
		Loader:    loader,
		BatchSize: cfg.BatchSize,
	})

	executor := query.New(client, reg, cfg.PayloadScale)

	server := &httpapi.Server{
		Indexer:  ix,
		Query:    executor,
		Engine:   client,
		Log:      logger,
		Denylist: cfg.DenylistFields,
	}

	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("mediator listening", "addr", *addr, "engine_url", cfg.EngineURL)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func newLogger(dev bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	var handler slog.Handler
	if dev {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
