package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/deusflow/technews/internal/app"
	"github.com/deusflow/technews/internal/config"
	"github.com/deusflow/technews/internal/logger"
)

func main() {
	once := flag.Bool("once", false, "run one fetch cycle plus summarization and exit")
	sweep := flag.Bool("sweep", false, "run one retention sweep and exit")
	catalog := flag.String("catalog", "", "path to the catalog YAML (overrides CATALOG_PATH)")
	flag.Parse()

	logger.Init()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if *catalog != "" {
		cfg.CatalogPath = *catalog
	}

	mode := app.ModeServe
	switch {
	case *once && *sweep:
		logger.Error("-once and -sweep are mutually exclusive")
		os.Exit(2)
	case *once:
		mode = app.ModeOnce
	case *sweep:
		mode = app.ModeSweep
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, cfg, mode); err != nil {
		logger.Error("technews stopped with error", "error", err)
		stop()
		os.Exit(1)
	}
	logger.Info("technews stopped")
}
