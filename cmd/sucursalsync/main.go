package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nexopos/sucursalsync/internal/app"
	"github.com/nexopos/sucursalsync/internal/auth"
	"github.com/nexopos/sucursalsync/internal/history"
	"github.com/nexopos/sucursalsync/internal/inconsistencies"
	"github.com/nexopos/sucursalsync/internal/invoice"
	"github.com/nexopos/sucursalsync/internal/odoo"
	"github.com/nexopos/sucursalsync/internal/platform/cache"
	"github.com/nexopos/sucursalsync/internal/platform/db"
	"github.com/nexopos/sucursalsync/internal/products"
	"github.com/nexopos/sucursalsync/internal/shared"
	"github.com/nexopos/sucursalsync/internal/transfers"
	"github.com/nexopos/sucursalsync/jobs"
	"github.com/nexopos/sucursalsync/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "sucursal_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	registry := odoo.NewRegistry(logger)
	connectCatalogs(ctx, logger, registry, cfg)

	auditLogger := shared.NewAuditLogger(dbpool)

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager, auditLogger)

	reportClient := report.NewClient(cfg.GotenbergURL)
	reportStore, err := report.NewStore(cfg.ReportsDir)
	if err != nil {
		logger.Error("init report store", slog.Any("error", err))
		os.Exit(1)
	}
	reportGenerator, err := report.NewGenerator(logger, reportClient, reportStore)
	if err != nil {
		logger.Error("init report generator", slog.Any("error", err))
		os.Exit(1)
	}
	reportHandler := report.NewHandler(reportClient, reportStore, logger)

	historyRepo := history.NewRepository(dbpool)
	historyHandler := history.NewHandler(logger, historyRepo)

	connectionHandler := odoo.NewHandler(logger, registry)

	syncService := products.NewService(logger)
	productsHandler := products.NewHandler(logger, syncService, registry, reportGenerator, historyRepo)

	transferRepo := transfers.NewPGRepository(dbpool)
	transferService := transfers.NewService(logger, syncService, transferRepo, reportGenerator, historyRepo)
	transfersHandler := transfers.NewHandler(logger, transferService, registry)

	inconsistencyService := inconsistencies.NewService(logger)
	inconsistenciesHandler := inconsistencies.NewHandler(logger, inconsistencyService, registry)

	invoiceParser := invoice.NewParser(logger)
	invoiceMapper := invoice.NewMapper(cfg.ProfitMargin, cfg.IVARate)
	invoiceHandler := invoice.NewHandler(logger, invoiceParser, invoiceMapper, syncService, registry)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		Registry:       registry,

		AuthHandler:            authHandler,
		ConnectionHandler:      connectionHandler,
		ProductsHandler:        productsHandler,
		TransfersHandler:       transfersHandler,
		InconsistenciesHandler: inconsistenciesHandler,
		InvoiceHandler:         invoiceHandler,
		HistoryHandler:         historyHandler,
		ReportHandler:          reportHandler,
		JobHandler:             jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

// connectCatalogs authenticates against the catalogs whose credentials are
// present in the environment. Failures are logged and left for the operator
// to retry through the connections API.
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
