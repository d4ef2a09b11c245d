// Package app holds the startup steps shared by the dashboard server and the
// batch jobs.
package app

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/EmpoweredVote/crime-analytics/internal/apperrors"
	"github.com/EmpoweredVote/crime-analytics/internal/config"
	"github.com/EmpoweredVote/crime-analytics/internal/db"
	"github.com/EmpoweredVote/crime-analytics/internal/logging"
)

// Setup loads .env.local when present, then the config file and the logger.
func Setup(configPath string) (*config.Config, *zap.Logger, error) {
	_ = godotenv.Load(".env.local")

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	return cfg, log, nil
}

// OpenDatabase connects and applies pending migrations.
func OpenDatabase(ctx context.Context, cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	gdb, err := db.Connect(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(cfg.Database.DSN(), log); err != nil {
		_ = db.Close(gdb)
		return nil, err
	}
	return gdb, nil
}

// Exit logs err and terminates with its exit code. A nil err exits 0.
func Exit(log *zap.Logger, err error) {
	code := apperrors.ExitCode(err)
	if err != nil {
		if log != nil {
			log.Error("Job failed", zap.Int("exit_code", code), zap.String("error", logging.SanitizeError(err)))
			_ = log.Sync()
		} else {
			fmt.Fprintln(os.Stderr, logging.SanitizeError(err))
		}
	}
	os.Exit(code)
}
