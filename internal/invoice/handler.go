package invoice

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nexopos/sucursalsync/internal/odoo"
	"github.com/nexopos/sucursalsync/internal/platform/httpx"
	"github.com/nexopos/sucursalsync/internal/products"
)

// Handler wires HTTP endpoints for supplier invoice ingestion.
type Handler struct {
	logger   *slog.Logger
	parser   *Parser
	mapper   *Mapper
	sync     *products.Service
	registry *odoo.Registry
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, parser *Parser, mapper *Mapper, sync *products.Service, registry *odoo.Registry) *Handler {
	return &Handler{
		logger:   logger,
		parser:   parser,
		mapper:   mapper,
		sync:     sync,
		registry: registry,
	}
}

// MountRoutes registers invoice routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/parse", h.handleParse)
	r.Post("/import", h.handleImport)
}

// handleParse returns the parsed and priced lines without touching any
// catalog, so an operator can review before importing.
func (h *Handler) handleParse(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.readDocument(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"provider": doc.Provider,
		"total":    len(doc.Lines),
		"skipped":  doc.Skipped,
		"lines":    doc.Lines,
		"products": h.mapper.MapAll(doc.Lines),
	})
}

// handleImport parses, prices and syncs the invoice into the target catalog
// in one step.
func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.readDocument(w, r)
	if !ok {
		return
	}

	gw, err := h.gateway(r)
	if err != nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Catalog not connected", err.Error())
		return
	}

	results, movements, err := h.sync.SyncBatch(r.Context(), gw, h.mapper.MapAll(doc.Lines))
	if err != nil {
		if errors.Is(err, odoo.ErrNotAuthenticated) {
			httpx.Problem(w, http.StatusServiceUnavailable, "Catalog not connected", err.Error())
			return
		}
		httpx.Problem(w, http.StatusBadGateway, "Import failed", err.Error())
		return
	}

	synced := 0
	for _, res := range results {
		if res.Success {
			synced++
		}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"provider":        doc.Provider,
		"total":           len(results),
		"synced":          synced,
		"failed":          len(results) - synced,
		"results":         results,
		"stock_movements": movements,
	})
}

// readDocument pulls the invoice XML from a multipart upload or the raw
// request body and parses it.
func (h *Handler) readDocument(w http.ResponseWriter, r *http.Request) (*Document, bool) {
	var body io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("invoice")
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Missing invoice file", err.Error())
			return nil, false
		}
		defer file.Close()
		body = file
	}

	doc, err := h.parser.Parse(body, r.URL.Query().Get("provider"))
	if err != nil {
		if errors.Is(err, ErrNoLines) {
			httpx.Problem(w, http.StatusUnprocessableEntity, "Empty invoice", err.Error())
			return nil, false
		}
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unreadable invoice", err.Error())
		return nil, false
	}
	return doc, true
}

func (h *Handler) gateway(r *http.Request) (products.CatalogPort, error) {
	if r.URL.Query().Get("catalog") == "branch" {
		return h.registry.Branch()
	}
	return h.registry.Principal()
}
