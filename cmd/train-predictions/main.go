package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/EmpoweredVote/crime-analytics/internal/app"
	"github.com/EmpoweredVote/crime-analytics/internal/config"
	"github.com/EmpoweredVote/crime-analytics/internal/db"
	"github.com/EmpoweredVote/crime-analytics/internal/metrics"
	"github.com/EmpoweredVote/crime-analytics/internal/predict"
	"github.com/EmpoweredVote/crime-analytics/internal/store"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to YAML config (optional)")
		minRecords = flag.Int("min-records", -1, "records a district needs to be fitted (overrides TRAIN_MIN_RECORDS)")
		lookback   = flag.Int("lookback-days", 0, "training window in days")
		dryRun     = flag.Bool("dry-run", false, "train and report without writing")
	)
	flag.Parse()

	cfg, log, err := app.Setup(*configPath)
	if err != nil {
		app.Exit(nil, err)
	}
	if *minRecords >= 0 {
		cfg.Train.MinRecords = *minRecords
	}
	if *lookback > 0 {
		cfg.Train.LookbackDays = *lookback
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, *dryRun, log)
	metrics.Push(context.Background(), cfg.Metrics.PushgatewayURL, "train-predictions", log)
	stop()
	app.Exit(log, err)
}

func run(ctx context.Context, cfg *config.Config, dryRun bool, log *zap.Logger) error {
	gdb, err := app.OpenDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close(gdb)
	st := store.NewGorm(gdb)

	t := cfg.Train
	res, err := predict.Run(ctx, predict.Config{
		MinRecords:   t.MinRecords,
		LookbackDays: t.LookbackDays,
		ScoreMin:     t.ScoreMin,
		ScoreMax:     t.ScoreMax,
		NeutralScore: t.NeutralScore,
		Epochs:       t.Epochs,
		LearningRate: t.LearningRate,
		Holdout:      t.Holdout,
		Seed:         t.Seed,
		DryRun:       dryRun,
	}, st, st, st, log)
	if err != nil {
		return err
	}
	log.Info("Training finished",
		zap.Int64("model_version", res.Version),
		zap.Int("predictions", res.Predictions),
		zap.Int("defaulted", res.Defaulted),
		zap.Float64("holdout_accuracy", res.Accuracy))
	return nil
}
