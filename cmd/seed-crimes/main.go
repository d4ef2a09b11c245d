package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/EmpoweredVote/crime-analytics/internal/app"
	"github.com/EmpoweredVote/crime-analytics/internal/catalog"
	"github.com/EmpoweredVote/crime-analytics/internal/config"
	"github.com/EmpoweredVote/crime-analytics/internal/crimegen"
	"github.com/EmpoweredVote/crime-analytics/internal/db"
	"github.com/EmpoweredVote/crime-analytics/internal/metrics"
	"github.com/EmpoweredVote/crime-analytics/internal/store"
)

func main() {
	var (
		configPath  = flag.String("config", "config.yaml", "path to YAML config (optional)")
		count       = flag.Int("count", -1, "total records spread across districts (overrides GENERATE_COUNT)")
		perDistrict = flag.Int("per-district", -1, "records per district; wins over -count")
		suspects    = flag.Int("suspects", -1, "suspects generated with the batch (overrides GENERATE_SUSPECTS)")
		districtIDs = flag.String("districts", "", "comma-separated district ids to restrict generation")
		from        = flag.String("from", "", "window start, RFC3339 or YYYY-MM-DD")
		to          = flag.String("to", "", "window end (exclusive), RFC3339 or YYYY-MM-DD")
		seed        = flag.Int64("seed", 0, "random seed; 0 uses GENERATE_SEED or the clock")
		workers     = flag.Int("workers", 0, "parallel district workers")
		dryRun      = flag.Bool("dry-run", false, "generate and report without writing")
	)
	flag.Parse()

	cfg, log, err := app.Setup(*configPath)
	if err != nil {
		app.Exit(nil, err)
	}
	g := &cfg.Generate
	if *count >= 0 {
		g.Count = *count
	}
	if *perDistrict >= 0 {
		g.PerDistrict = *perDistrict
	}
	if *suspects >= 0 {
		g.Suspects = *suspects
	}
	if *from != "" {
		g.From = *from
	}
	if *to != "" {
		g.To = *to
	}
	if *seed != 0 {
		g.Seed = *seed
	}
	if *workers > 0 {
		g.Workers = *workers
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, splitIDs(*districtIDs), *dryRun, log)
	metrics.Push(context.Background(), cfg.Metrics.PushgatewayURL, "seed-crimes", log)
	stop()
	app.Exit(log, err)
}

func run(ctx context.Context, cfg *config.Config, ids []string, dryRun bool, log *zap.Logger) error {
	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return err
	}
	now := time.Now()
	from, to, err := cfg.Generate.Range(now)
	if err != nil {
		return err
	}

	gdb, err := app.OpenDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close(gdb)
	st := store.NewGorm(gdb)

	res, err := crimegen.Run(ctx, crimegen.Config{
		Count:       cfg.Generate.Count,
		PerDistrict: cfg.Generate.PerDistrict,
		Suspects:    cfg.Generate.Suspects,
		DistrictIDs: ids,
		From:        from,
		To:          to,
		MaxAttempts: cfg.Generate.MaxAttempts,
		Workers:     cfg.Generate.Workers,
		BatchSize:   cfg.Generate.BatchSize,
		Seed:        cfg.Generate.Seed,
		Catalog:     cat,
		DryRun:      dryRun,
		Now:         func() time.Time { return now },
	}, st, st, log)
	if err != nil {
		return err
	}
	log.Info("Crime seeding finished",
		zap.String("batch_id", res.BatchID.String()),
		zap.Int64("seed", res.Seed),
		zap.Int("records", res.Records),
		zap.Int("suspects", res.Suspects),
		zap.Strings("skipped", res.Skipped))
	return nil
}

func splitIDs(s string) []string {
	var out []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}
