package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"mysokha/internal/backend"
	"mysokha/internal/cli"
	"mysokha/internal/config"
	"mysokha/internal/log"
	"mysokha/internal/store"
)

func main() {
	file := flag.String("file", "", "realtime-database JSON export to import")
	dryRun := flag.Bool("dry-run", false, "count the records without writing them")
	flag.Parse()

	cli.LoadEnvFile()
	cfg := config.Load()
	logger := cli.SetupLogger(cfg.LogLevel).WithComponent(log.ComponentImport)

	if *file == "" {
		fmt.Fprintln(os.Stderr, "usage: mysokha-import -file export.json [-dry-run]")
		os.Exit(2)
	}
	if err := run(cfg, logger, *file, *dryRun); err != nil {
		logger.Error("Import failed", log.FieldError, err, "file", *file)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *log.Logger, file string, dryRun bool) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate configuration: %w", err)
	}

	fh, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("open export: %w", err)
	}
	defer fh.Close()
	tree, err := store.ReadExport(fh)
	if err != nil {
		return fmt.Errorf("read export: %w", err)
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return fmt.Errorf("backend configuration: %w", err)
	}
	paths := backendCfg.Paths

	if dryRun {
		for _, p := range paths.All() {
			logger.Info("Records found", log.FieldStorePath, p, log.FieldCount, len(store.CollectionFromTree(tree, p)))
		}
		return nil
	}

	// the seed file is what we are importing here
	backendCfg.SeedFile = ""
	res, err := backend.NewFactory(logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		return fmt.Errorf("initialize %s backend: %w", cfg.DataBackend, err)
	}
	defer res.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	start := time.Now()
	n, err := store.Import(ctx, res.Store, tree, paths.All())
	if err != nil {
		return fmt.Errorf("import after %d records: %w", n, err)
	}
	logger.Info("Import finished",
		log.FieldCount, n,
		"app_id", paths.AppID,
		"backend", cfg.DataBackend,
		"duration", time.Since(start).Round(time.Millisecond).String())
	return nil
}
