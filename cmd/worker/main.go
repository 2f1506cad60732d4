package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/nexopos/sucursalsync/internal/app"
	"github.com/nexopos/sucursalsync/internal/history"
	"github.com/nexopos/sucursalsync/internal/inconsistencies"
	"github.com/nexopos/sucursalsync/internal/odoo"
	"github.com/nexopos/sucursalsync/internal/platform/db"
	"github.com/nexopos/sucursalsync/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	registry := odoo.NewRegistry(logger)
	connectCatalogs(ctx, logger, registry, cfg)

	detector := inconsistencies.NewService(logger)
	historyRepo := history.NewRepository(pool)

	driftScan := jobs.NewDriftScanHandler(jobs.DriftScanDeps{
		Logger:   logger,
		Registry: registry,
		Detector: detector,
		History:  historyRepo,
	})

	driftTask, err := jobs.NewDriftScanTask(jobs.DriftScanPayload{RecordHistory: true})
	if err != nil {
		logger.Error("build drift scan task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeDriftScan, Handler: driftScan},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.DriftScanCron, Task: driftTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

// connectCatalogs authenticates against the catalogs whose credentials are
// present in the environment. A failed connection only logs; the drift scan
// handler skips runs until both sessions exist.
func connectCatalogs(ctx context.Context, logger *slog.Logger, registry *odoo.Registry, cfg *app.Config) {
	if cfg.PrincipalURL != "" {
		_, err := registry.ConnectPrincipal(ctx, odoo.Credentials{
			URL:      cfg.PrincipalURL,
			Database: cfg.PrincipalDB,
			Username: cfg.PrincipalUsername,
			Password: cfg.PrincipalPassword,
		})
		if err != nil {
			logger.Warn("connect principal catalog", slog.Any("error", err))
		}
	}
	if cfg.BranchURL != "" {
		_, err := registry.ConnectBranch(ctx, odoo.Credentials{
			URL:      cfg.BranchURL,
			Database: cfg.BranchDB,
			Username: cfg.BranchUsername,
			Password: cfg.BranchPassword,
		})
		if err != nil {
			logger.Warn("connect branch catalog", slog.Any("error", err))
		}
	}
}
