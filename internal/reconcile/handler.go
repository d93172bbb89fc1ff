package reconcile

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/kiosk-inventory/internal/inventory"
	"github.com/odyssey-erp/kiosk-inventory/internal/platform/db"
	"github.com/odyssey-erp/kiosk-inventory/internal/platform/httpx"
	"github.com/odyssey-erp/kiosk-inventory/internal/shared"
)

// Handler wires HTTP endpoints for reconciliation.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs reconcile handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers reconcile routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/audit", func(r chi.Router) {
		r.Get("/drift", h.handleDrift)
		r.Get("/{kind}/{id}", h.handleAudit)
		r.Post("/{kind}/{id}/correct", h.handleCorrect)
	})
}

type reportResponse struct {
	Report
	Consistent bool `json:"consistent"`
}

func (h *Handler) handleAudit(w http.ResponseWriter, r *http.Request) {
	ref, err := inventory.ParseRef(chi.URLParam(r, "kind"), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	report, err := h.service.AuditProduct(r.Context(), ref)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, reportResponse{Report: report, Consistent: report.Consistent()})
}

func (h *Handler) handleDrift(w http.ResponseWriter, r *http.Request) {
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	summary, err := h.service.ScanDrift(r.Context(), refresh)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

type correctRequest struct {
	Note string `json:"note" validate:"required,max=1000"`
}

type correctResponse struct {
	Ref       inventory.StockRef       `json:"ref"`
	Drift     int64                    `json:"drift"`
	Corrected bool                     `json:"corrected"`
	Entry     *inventory.EntryResponse `json:"entry,omitempty"`
}

func (h *Handler) handleCorrect(w http.ResponseWriter, r *http.Request) {
	ref, err := inventory.ParseRef(chi.URLParam(r, "kind"), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req correctRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actorID := shared.ActorFromContext(r.Context())
	var result Correction
	err = db.RetryTransient(r.Context(), func(ctx context.Context) error {
		var err error
		result, err = h.service.CorrectDrift(ctx, ref, actorID, req.Note)
		return err
	})
	if err != nil {
		h.logger.Warn("drift correction failed", slog.String("ref", ref.String()), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	resp := correctResponse{Ref: result.Ref, Drift: result.Drift, Corrected: result.Entry != nil}
	if result.Entry != nil {
		entry := inventory.ToResponse(*result.Entry)
		resp.Entry = &entry
	}
	httpx.JSON(w, http.StatusOK, resp)
}
