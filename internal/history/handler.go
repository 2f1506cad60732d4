package history

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nexopos/sucursalsync/internal/platform/httpx"
)

// Handler serves the recorded runs.
type Handler struct {
	logger *slog.Logger
	repo   *Repository
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, repo *Repository) *Handler {
	return &Handler{logger: logger, repo: repo}
}

// MountRoutes registers history routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/syncs", h.handleSyncs)
	r.Get("/transfers", h.handleTransfers)
	r.Get("/drifts", h.handleDrifts)
}

func (h *Handler) handleSyncs(w http.ResponseWriter, r *http.Request) {
	runs, err := h.repo.ListSyncRuns(r.Context(), queryLimit(r))
	if err != nil {
		httpx.Problem(w, http.StatusInternalServerError, "Loading sync history failed", err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"total": len(runs), "runs": runs})
}

func (h *Handler) handleTransfers(w http.ResponseWriter, r *http.Request) {
	runs, err := h.repo.ListTransferRuns(r.Context(), queryLimit(r))
	if err != nil {
		httpx.Problem(w, http.StatusInternalServerError, "Loading transfer history failed", err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"total": len(runs), "runs": runs})
}

func (h *Handler) handleDrifts(w http.ResponseWriter, r *http.Request) {
	runs, err := h.repo.ListDriftRuns(r.Context(), queryLimit(r))
	if err != nil {
		httpx.Problem(w, http.StatusInternalServerError, "Loading drift history failed", err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"total": len(runs), "runs": runs})
}

func queryLimit(r *http.Request) int {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return limit
}
