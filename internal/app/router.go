package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/nexopos/sucursalsync/internal/auth"
	"github.com/nexopos/sucursalsync/internal/history"
	"github.com/nexopos/sucursalsync/internal/inconsistencies"
	"github.com/nexopos/sucursalsync/internal/invoice"
	"github.com/nexopos/sucursalsync/internal/odoo"
	"github.com/nexopos/sucursalsync/internal/products"
	"github.com/nexopos/sucursalsync/internal/shared"
	"github.com/nexopos/sucursalsync/internal/transfers"
	"github.com/nexopos/sucursalsync/jobs"
	"github.com/nexopos/sucursalsync/report"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Registry       *odoo.Registry

	AuthHandler            *auth.Handler
	ConnectionHandler      *odoo.Handler
	ProductsHandler        *products.Handler
	TransfersHandler       *transfers.Handler
	InconsistenciesHandler *inconsistencies.Handler
	InvoiceHandler         *invoice.Handler
	HistoryHandler         *history.Handler
	ReportHandler          *report.Handler
	JobHandler             *jobs.Handler
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)
	r.Route("/connections", params.ConnectionHandler.MountRoutes)
	r.Route("/sync", params.ProductsHandler.MountRoutes)
	r.Route("/products", params.ProductsHandler.MountProductRoutes)
	r.Route("/transfers", params.TransfersHandler.MountRoutes)
	r.Route("/inconsistencies", params.InconsistenciesHandler.MountRoutes)
	r.Route("/invoices", params.InvoiceHandler.MountRoutes)
	if params.HistoryHandler != nil {
		r.Route("/history", params.HistoryHandler.MountRoutes)
	}
	if params.ReportHandler != nil {
		r.Route("/reports", params.ReportHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	return r
}
