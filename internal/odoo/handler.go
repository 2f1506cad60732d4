package odoo

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/nexopos/sucursalsync/internal/platform/httpx"
)

// Handler exposes connection management endpoints.
type Handler struct {
	logger    *slog.Logger
	registry  *Registry
	validator *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, registry *Registry) *Handler {
	return &Handler{
		logger:    logger,
		registry:  registry,
		validator: validator.New(),
	}
}

// MountRoutes registers connection routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/principal", h.connectPrincipal)
	r.Post("/branch", h.connectBranch)
	r.Get("/status", h.status)
}

type connectResponse struct {
	Success bool   `json:"success"`
	Version string `json:"version"`
	UID     int64  `json:"uid"`
}

func (h *Handler) connectPrincipal(w http.ResponseWriter, r *http.Request) {
	h.connect(w, r, "principal", h.registry.ConnectPrincipal)
}

func (h *Handler) connectBranch(w http.ResponseWriter, r *http.Request) {
	h.connect(w, r, "branch", h.registry.ConnectBranch)
}

func (h *Handler) connect(w http.ResponseWriter, r *http.Request, name string, connect func(context.Context, Credentials) (*ConnectionInfo, error)) {
	var creds Credentials
	if err := httpx.DecodeJSON(r, &creds); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(creds); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	info, err := connect(r.Context(), creds)
	if err != nil {
		h.logger.Warn("catalog connection failed", slog.String("catalog", name), slog.Any("error", err))
		if errors.Is(err, ErrInvalidLogin) {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "catalog rejected the credentials")
			return
		}
		httpx.Problem(w, http.StatusBadGateway, "Connection Failed", err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, connectResponse{Success: true, Version: info.Version, UID: info.UID})
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.registry.Status())
}
