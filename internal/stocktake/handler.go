package stocktake

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/kiosk-inventory/internal/platform/db"
	"github.com/odyssey-erp/kiosk-inventory/internal/platform/httpx"
	"github.com/odyssey-erp/kiosk-inventory/internal/shared"
)

// Handler wires HTTP endpoints for count sessions.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs stocktake handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers stocktake routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/counts", func(r chi.Router) {
		r.Post("/", h.handleStart)
		r.Get("/", h.handleList)
		r.Get("/{id}", h.handleGet)
		r.Put("/{id}/items/{productId}", h.handleRecord)
		r.Delete("/{id}/items/{productId}", h.handleRemove)
		r.Get("/{id}/preview", h.handlePreview)
		r.Post("/{id}/complete", h.handleComplete)
		r.Post("/{id}/cancel", h.handleCancel)
	})
}

type startRequest struct {
	Note string `json:"note" validate:"max=1000"`
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if r.ContentLength != 0 {
		if err := httpx.Bind(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	c, err := h.service.StartCount(r.Context(), req.Note, shared.ActorFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	counts, page, err := h.service.ListCounts(r.Context(), ListFilter{
		Status:  Status(r.URL.Query().Get("status")),
		Page:    httpx.QueryInt(r, "page", 1),
		PerPage: httpx.QueryInt(r, "per_page", 0),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if counts == nil {
		counts = []Count{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": counts, "pagination": page})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.RespondError(w, ErrCountNotFound)
		return
	}
	c, err := h.service.GetCount(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

type recordRequest struct {
	CountedQty *int64 `json:"counted_qty" validate:"required,gte=0"`
}

func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.RespondError(w, ErrCountNotFound)
		return
	}
	productID, ok := httpx.IDParam(r, "productId")
	if !ok {
		httpx.RespondError(w, ErrProductNotFound)
		return
	}
	var req recordRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.RecordCount(r.Context(), id, productID, *req.CountedQty)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) handleRemove(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.RespondError(w, ErrCountNotFound)
		return
	}
	productID, ok := httpx.IDParam(r, "productId")
	if !ok {
		httpx.RespondError(w, ErrItemNotFound)
		return
	}
	if err := h.service.RemoveCountItem(r.Context(), id, productID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.RespondError(w, ErrCountNotFound)
		return
	}
	variances, err := h.service.Preview(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"count_id": id, "variances": variances})
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.RespondError(w, ErrCountNotFound)
		return
	}
	var c Count
	err := db.RetryTransient(r.Context(), func(ctx context.Context) error {
		var err error
		c, err = h.service.CompleteCount(ctx, id, shared.ActorFromContext(ctx))
		return err
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.RespondError(w, ErrCountNotFound)
		return
	}
	c, err := h.service.CancelCount(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}
