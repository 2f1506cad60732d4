package products

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/nexopos/sucursalsync/internal/odoo"
	"github.com/nexopos/sucursalsync/internal/platform/httpx"
)

// SyncReportBuilder renders a stock movement report for a finished batch and
// returns the stored file name.
type SyncReportBuilder interface {
	SyncReport(ctx context.Context, catalog string, results []Result, movements []StockMovement) (string, error)
}

// SyncRecorder persists a summary of a finished batch.
type SyncRecorder interface {
	RecordSync(ctx context.Context, catalog string, results []Result) error
}

// Handler wires HTTP endpoints for catalog synchronization.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	registry  *odoo.Registry
	reports   SyncReportBuilder
	history   SyncRecorder
	validator *validator.Validate
}

// NewHandler constructs a Handler instance. reports and history may be nil
// when the corresponding backend is not configured.
func NewHandler(logger *slog.Logger, service *Service, registry *odoo.Registry, reports SyncReportBuilder, history SyncRecorder) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		registry:  registry,
		reports:   reports,
		history:   history,
		validator: validator.New(),
	}
}

// MountRoutes registers sync routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleBatch)
	r.Post("/product", h.handleSingle)
	r.Post("/fix-tracking", h.handleFixTracking)
}

// MountProductRoutes registers read-only product lookups.
func (h *Handler) MountProductRoutes(r chi.Router) {
	r.Get("/{barcode}", h.handleLookup)
}

type batchRequest struct {
	Catalog  string          `json:"catalog" validate:"omitempty,oneof=principal branch"`
	Products []MappedProduct `json:"products" validate:"required,min=1,dive"`
}

type batchResponse struct {
	Success      bool            `json:"success"`
	Total        int             `json:"total"`
	Synced       int             `json:"synced"`
	Failed       int             `json:"failed"`
	Results      []Result        `json:"results"`
	Movements    []StockMovement `json:"stock_movements,omitempty"`
	ReportFile   string          `json:"report_file,omitempty"`
	ErrorDetails []string        `json:"error_details,omitempty"`
}

func (h *Handler) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}

	gw, catalog, err := h.gateway(req.Catalog)
	if err != nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Catalog not connected", err.Error())
		return
	}

	results, movements, err := h.service.SyncBatch(r.Context(), gw, req.Products)
	if err != nil {
		if errors.Is(err, odoo.ErrNotAuthenticated) {
			httpx.Problem(w, http.StatusServiceUnavailable, "Catalog not connected", err.Error())
			return
		}
		httpx.Problem(w, http.StatusBadGateway, "Sync failed", err.Error())
		return
	}

	resp := h.summarize(catalog, results)
	resp.Movements = movements
	if h.reports != nil {
		file, err := h.reports.SyncReport(r.Context(), catalog, results, movements)
		if err != nil {
			h.logger.Warn("sync report generation failed", slog.Any("error", err))
		} else {
			resp.ReportFile = file
		}
	}
	h.record(r.Context(), catalog, results)
	httpx.JSON(w, http.StatusOK, resp)
}

type singleRequest struct {
	Catalog string        `json:"catalog" validate:"omitempty,oneof=principal branch"`
	Product MappedProduct `json:"product" validate:"required"`
}

func (h *Handler) handleSingle(w http.ResponseWriter, r *http.Request) {
	var req singleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}

	gw, catalog, err := h.gateway(req.Catalog)
	if err != nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Catalog not connected", err.Error())
		return
	}

	res := h.service.Upsert(r.Context(), gw, req.Product)
	h.record(r.Context(), catalog, []Result{res})
	status := http.StatusOK
	if !res.Success {
		status = http.StatusUnprocessableEntity
	}
	httpx.JSON(w, status, res)
}

func (h *Handler) handleFixTracking(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}

	gw, catalog, err := h.gateway(req.Catalog)
	if err != nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Catalog not connected", err.Error())
		return
	}

	results := h.service.FixTracking(r.Context(), gw, req.Products)
	h.record(r.Context(), catalog, results)
	httpx.JSON(w, http.StatusOK, h.summarize(catalog, results))
}

func (h *Handler) handleLookup(w http.ResponseWriter, r *http.Request) {
	barcode := chi.URLParam(r, "barcode")
	if barcode == "" {
		httpx.Problem(w, http.StatusBadRequest, "Missing barcode", "barcode path parameter is required")
		return
	}

	gw, _, err := h.gateway(r.URL.Query().Get("catalog"))
	if err != nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Catalog not connected", err.Error())
		return
	}

	id, err := gw.FindByBarcode(r.Context(), barcode)
	if err != nil {
		if errors.Is(err, odoo.ErrProductNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Product not found", "no active product carries barcode "+barcode)
			return
		}
		httpx.Problem(w, http.StatusBadGateway, "Lookup failed", err.Error())
		return
	}
	rec, err := gw.ReadProduct(r.Context(), id)
	if err != nil {
		httpx.Problem(w, http.StatusBadGateway, "Lookup failed", err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

// gateway resolves the target catalog, defaulting to the principal.
func (h *Handler) gateway(catalog string) (CatalogPort, string, error) {
	if catalog == "" {
		catalog = "principal"
	}
	if catalog == "branch" {
		gw, err := h.registry.Branch()
		return gw, catalog, err
	}
	gw, err := h.registry.Principal()
	return gw, catalog, err
}

func (h *Handler) summarize(catalog string, results []Result) batchResponse {
	resp := batchResponse{Total: len(results), Results: results}
	for _, res := range results {
		if res.Success {
			resp.Synced++
			continue
		}
		resp.Failed++
		if res.ErrorDetail != "" {
			resp.ErrorDetails = append(resp.ErrorDetails, res.Barcode+": "+res.ErrorDetail)
		}
	}
	resp.Success = resp.Synced > 0
	h.logger.Info("batch finished",
		slog.String("catalog", catalog),
		slog.Int("total", resp.Total),
		slog.Int("synced", resp.Synced),
		slog.Int("failed", resp.Failed),
	)
	return resp
}

func (h *Handler) record(ctx context.Context, catalog string, results []Result) {
	if h.history == nil {
		return
	}
	if err := h.history.RecordSync(ctx, catalog, results); err != nil {
		h.logger.Warn("recording sync history failed", slog.Any("error", err))
	}
}
