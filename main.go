package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/EmpoweredVote/crime-analytics/internal/app"
	"github.com/EmpoweredVote/crime-analytics/internal/catalog"
	"github.com/EmpoweredVote/crime-analytics/internal/config"
	"github.com/EmpoweredVote/crime-analytics/internal/dashboard"
	"github.com/EmpoweredVote/crime-analytics/internal/db"
	"github.com/EmpoweredVote/crime-analytics/internal/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to YAML config (optional)")
	flag.Parse()

	cfg, log, err := app.Setup(*configPath)
	if err != nil {
		app.Exit(nil, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = serve(ctx, cfg, log)
	stop()
	app.Exit(log, err)
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return err
	}

	gdb, err := app.OpenDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close(gdb)
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}

	var cache dashboard.Cache = dashboard.NoCache{}
	redisClient, err := db.NewRedisClient(ctx, cfg.Redis)
	switch {
	case err != nil:
		log.Warn("Redis unavailable; serving without cache", zap.Error(err))
	case redisClient != nil:
		defer redisClient.Close()
		cache = dashboard.NewRedisCache(redisClient, cfg.Redis.TTL, log)
		log.Info("Query cache enabled", zap.String("addr", cfg.Redis.Addr), zap.Duration("ttl", cfg.Redis.TTL))
	}

	st := store.NewGorm(gdb)
	h := dashboard.NewHandler(st, st, cat, cache, sqlDB.PingContext, log)

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Server.Port,
		Handler:           dashboard.SetupRoutes(h, cfg.Server, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
