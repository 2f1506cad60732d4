package transfers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/nexopos/sucursalsync/internal/odoo"
	"github.com/nexopos/sucursalsync/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the transfer protocol.
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

// MountRoutes registers transfer routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/prepare", h.handlePrepare)
	r.Post("/confirm", h.handleConfirm)
	r.Post("/confirm-dual", h.handleConfirmDual)
	r.Post("/parse-manifest", h.handleParseManifest)
	r.Get("/", h.handleList)
	r.Get("/{code}", h.handleGet)
	r.Get("/{code}/manifest", h.handleManifest)
	r.Post("/{code}/cancel", h.handleCancel)
}

type prepareRequest struct {
	Kind    string `json:"kind" validate:"omitempty,oneof=single dual"`
	Catalog string `json:"catalog" validate:"omitempty,oneof=principal branch"`
	Items   []Item `json:"items" validate:"required,min=1,dive"`
}

type prepareResponse struct {
	Code      string     `json:"code"`
	Kind      string     `json:"kind"`
	Status    string     `json:"status"`
	Items     []Snapshot `json:"items"`
	Dropped   int        `json:"dropped"`
	CreatedAt string     `json:"created_at"`
}

func (h *Handler) handlePrepare(w http.ResponseWriter, r *http.Request) {
	var req prepareRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}
	if req.Kind == "" {
		req.Kind = KindSingle
	}

	src, err := h.sourceGateway(req)
	if err != nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Catalog not connected", err.Error())
		return
	}

	pending, err := h.service.Prepare(r.Context(), src, req.Kind, req.Items)
	if err != nil {
		switch {
		case errors.Is(err, ErrEmptyTransfer), errors.Is(err, ErrNothingTransferred):
			httpx.Problem(w, http.StatusUnprocessableEntity, "Nothing to transfer", err.Error())
		case errors.Is(err, odoo.ErrNotAuthenticated):
			httpx.Problem(w, http.StatusServiceUnavailable, "Catalog not connected", err.Error())
		default:
			httpx.Problem(w, http.StatusBadGateway, "Prepare failed", err.Error())
		}
		return
	}

	httpx.JSON(w, http.StatusCreated, prepareResponse{
		Code:      pending.Code,
		Kind:      pending.Kind,
		Status:    pending.Status,
		Items:     pending.Items,
		Dropped:   len(req.Items) - len(pending.Items),
		CreatedAt: pending.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	})
}

type confirmRequest struct {
	Code    string `json:"code" validate:"required"`
	Catalog string `json:"catalog" validate:"omitempty,oneof=principal branch"`
}

func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}

	src, err := h.sourceGateway(prepareRequest{Catalog: req.Catalog})
	if err != nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Catalog not connected", err.Error())
		return
	}

	out, err := h.service.Confirm(r.Context(), src, req.Code)
	if err != nil {
		h.respondConfirmError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleConfirmDual(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}

	principal, err := h.registry.Principal()
	if err != nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Principal not connected", err.Error())
		return
	}
	branch, err := h.registry.Branch()
	if err != nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Branch not connected", err.Error())
		return
	}

	out, err := h.service.ConfirmDual(r.Context(), principal, branch, req.Code)
	if err != nil {
		h.respondConfirmError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) respondConfirmError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrTransferNotFound):
		httpx.Problem(w, http.StatusNotFound, "Transfer not found", err.Error())
	case errors.Is(err, ErrAlreadyConfirmed), errors.Is(err, ErrTransferCancelled):
		httpx.Problem(w, http.StatusConflict, "Transfer not confirmable", err.Error())
	case errors.Is(err, odoo.ErrNotAuthenticated):
		httpx.Problem(w, http.StatusServiceUnavailable, "Catalog not connected", err.Error())
	default:
		httpx.Problem(w, http.StatusBadGateway, "Confirm failed", err.Error())
	}
}

// handleParseManifest reads a manifest document from an uploaded file or the
// raw request body and returns its lines.
func (h *Handler) handleParseManifest(w http.ResponseWriter, r *http.Request) {
	body := r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("manifest")
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Missing manifest file", err.Error())
			return
		}
		defer file.Close()
		body = file
	}

	lines, err := ParseManifest(body)
	if err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unreadable manifest", err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"total": len(lines),
		"lines": lines,
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	transfers, err := h.service.List(r.Context(), limit)
	if err != nil {
		httpx.Problem(w, http.StatusInternalServerError, "Listing transfers failed", err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"total":     len(transfers),
		"transfers": transfers,
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	pending, err := h.service.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		if errors.Is(err, ErrTransferNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Transfer not found", err.Error())
			return
		}
		httpx.Problem(w, http.StatusInternalServerError, "Loading transfer failed", err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, pending)
}

func (h *Handler) handleManifest(w http.ResponseWriter, r *http.Request) {
	pending, err := h.service.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		if errors.Is(err, ErrTransferNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Transfer not found", err.Error())
			return
		}
		httpx.Problem(w, http.StatusInternalServerError, "Loading transfer failed", err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="transfer-`+pending.Code+`.xml"`)
	_, _ = w.Write([]byte(pending.ManifestXML))
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if err := h.service.Cancel(r.Context(), code); err != nil {
		h.respondConfirmError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"code": code, "status": StatusCancelled})
}

func (h *Handler) sourceGateway(req prepareRequest) (SourcePort, error) {
	if req.Catalog == "branch" {
		return h.registry.Branch()
	}
	return h.registry.Principal()
}
