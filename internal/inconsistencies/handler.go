package inconsistencies

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/nexopos/sucursalsync/internal/odoo"
	"github.com/nexopos/sucursalsync/internal/platform/httpx"
)

// Handler wires HTTP endpoints for catalog drift detection.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	registry  *odoo.Registry
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, registry *odoo.Registry) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		registry:  registry,
		validator: validator.New(),
	}
}

// MountRoutes registers drift routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleDetect)
	r.Post("/fix", h.handleFix)
}

func (h *Handler) handleDetect(w http.ResponseWriter, r *http.Request) {
	principal, branch, err := h.gateways()
	if err != nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Catalogs not connected", err.Error())
		return
	}

	report, err := h.service.Detect(r.Context(), principal, branch)
	if err != nil {
		if errors.Is(err, odoo.ErrNotAuthenticated) {
			httpx.Problem(w, http.StatusServiceUnavailable, "Catalogs not connected", err.Error())
			return
		}
		httpx.Problem(w, http.StatusBadGateway, "Scan failed", err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

type fixRequest struct {
	Items []FixItem `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) handleFix(w http.ResponseWriter, r *http.Request) {
	var req fixRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}

	branch, err := h.registry.Branch()
	if err != nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Branch not connected", err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, h.service.Fix(r.Context(), branch, req.Items))
}

func (h *Handler) gateways() (CatalogPort, CatalogPort, error) {
	principal, err := h.registry.Principal()
	if err != nil {
		return nil, nil, err
	}
	branch, err := h.registry.Branch()
	if err != nil {
		return nil, nil, err
	}
	return principal, branch, nil
}
