package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/EmpoweredVote/crime-analytics/internal/app"
	"github.com/EmpoweredVote/crime-analytics/internal/apperrors"
	"github.com/EmpoweredVote/crime-analytics/internal/catalog"
	"github.com/EmpoweredVote/crime-analytics/internal/config"
	"github.com/EmpoweredVote/crime-analytics/internal/db"
	"github.com/EmpoweredVote/crime-analytics/internal/districtimport"
	"github.com/EmpoweredVote/crime-analytics/internal/metrics"
	"github.com/EmpoweredVote/crime-analytics/internal/store"
)

func main() {
	var (
		configPath  = flag.String("config", "config.yaml", "path to YAML config (optional)")
		path        = flag.String("path", "", "shapefile or directory of shapefiles (overrides SHAPEFILE_PATH)")
		idField     = flag.String("id-field", "", "attribute holding the district id")
		nameField   = flag.String("name-field", "", "attribute holding the district name")
		parentField = flag.String("parent-field", "", "attribute holding the state name")
		dryRun      = flag.Bool("dry-run", false, "parse and report without writing")
	)
	flag.Parse()

	cfg, log, err := app.Setup(*configPath)
	if err != nil {
		app.Exit(nil, err)
	}
	if *path != "" {
		cfg.Import.Path = *path
	}
	if *idField != "" {
		cfg.Import.IDField = *idField
	}
	if *nameField != "" {
		cfg.Import.NameField = *nameField
	}
	if *parentField != "" {
		cfg.Import.ParentField = *parentField
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, *dryRun, log)
	metrics.Push(context.Background(), cfg.Metrics.PushgatewayURL, "district-import", log)
	stop()
	app.Exit(log, err)
}

func run(ctx context.Context, cfg *config.Config, dryRun bool, log *zap.Logger) error {
	if cfg.Import.Path == "" {
		return fmt.Errorf("%w: no shapefile path; pass -path or set SHAPEFILE_PATH", apperrors.ErrInvalidInput)
	}
	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return err
	}

	jobCfg := districtimport.Config{
		Path: cfg.Import.Path,
		Fields: districtimport.Fields{
			ID:     cfg.Import.IDField,
			Name:   cfg.Import.NameField,
			Parent: cfg.Import.ParentField,
		},
		Catalog: cat,
		DryRun:  dryRun,
	}

	// A dry run never touches the store, so it works without a database.
	var districts store.DistrictStore
	if !dryRun {
		gdb, err := app.OpenDatabase(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer db.Close(gdb)
		districts = store.NewGorm(gdb)
	}

	res, err := districtimport.Run(ctx, jobCfg, districts, log)
	if err != nil {
		return err
	}
	log.Info("District import finished",
		zap.Int("districts", res.Districts),
		zap.Bool("written", res.Written))
	return nil
}
