package orders

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/kiosk-inventory/internal/platform/db"
	"github.com/odyssey-erp/kiosk-inventory/internal/platform/httpx"
	"github.com/odyssey-erp/kiosk-inventory/internal/shared"
)

// Handler manages order endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	policy  ReorderPolicy
}

// NewHandler builds Handler. policy supplies the reorder defaults used by
// the on-demand generation endpoint.
func NewHandler(logger *slog.Logger, service *Service, policy ReorderPolicy) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, policy: policy}
}

// MountRoutes registers order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.handleCreateDraft)
		r.Get("/", h.handleList)
		r.Post("/reorder-drafts", h.handleReorderDrafts)
		r.Get("/{id}", h.handleGet)
		r.Delete("/{id}", h.handleDelete)
		r.Post("/{id}/items", h.handleAddItem)
		r.Post("/{id}/place", h.handlePlace)
		r.Post("/{id}/cancel", h.handleCancel)
	})
	r.Route("/order-items", func(r chi.Router) {
		r.Post("/receive", h.handleReceive)
		r.Patch("/{id}", h.handleUpdateItem)
		r.Delete("/{id}", h.handleRemoveItem)
		r.Post("/{id}/receive", h.handleReceive)
	})
}

type itemRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int64 `json:"quantity" validate:"required,gt=0"`
}

type draftRequest struct {
	Supplier string        `json:"supplier" validate:"max=200"`
	Note     string        `json:"note" validate:"max=1000"`
	Items    []itemRequest `json:"items" validate:"dive"`
}

func (h *Handler) handleCreateDraft(w http.ResponseWriter, r *http.Request) {
	var req draftRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := DraftInput{Supplier: req.Supplier, Note: req.Note, ActorID: shared.ActorFromContext(r.Context())}
	for _, it := range req.Items {
		in.Items = append(in.Items, ItemInput(it))
	}
	o, err := h.service.CreateDraft(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, o)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	orders, page, err := h.service.ListOrders(r.Context(), ListFilter{
		Status:  Status(r.URL.Query().Get("status")),
		Page:    httpx.QueryInt(r, "page", 1),
		PerPage: httpx.QueryInt(r, "per_page", 0),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if orders == nil {
		orders = []Order{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": orders, "pagination": page})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.RespondError(w, ErrOrderNotFound)
		return
	}
	o, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.RespondError(w, ErrOrderNotFound)
		return
	}
	if err := h.service.DeleteDraft(r.Context(), id, shared.ActorFromContext(r.Context())); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.RespondError(w, ErrOrderNotFound)
		return
	}
	var req itemRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	o, err := h.service.AddDraftItem(r.Context(), id, ItemInput(req))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

type quantityRequest struct {
	Quantity int64 `json:"quantity" validate:"required,gt=0"`
}

func (h *Handler) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.RespondError(w, ErrItemNotFound)
		return
	}
	var req quantityRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	o, err := h.service.UpdateDraftItem(r.Context(), id, req.Quantity)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

func (h *Handler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.RespondError(w, ErrItemNotFound)
		return
	}
	o, err := h.service.RemoveDraftItem(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

func (h *Handler) handlePlace(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.RespondError(w, ErrOrderNotFound)
		return
	}
	o, err := h.service.PlaceOrder(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.RespondError(w, ErrOrderNotFound)
		return
	}
	o, err := h.service.CancelOrder(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

type receiveRequest struct {
	OrderItemID int64 `json:"orderItemId" validate:"gte=0"`
	Quantity    int64 `json:"quantity" validate:"required,gt=0"`
}

// handleReceive accepts the item id in the path, the body, or both when they
// agree.
func (h *Handler) handleReceive(w http.ResponseWriter, r *http.Request) {
	var req receiveRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	itemID := req.OrderItemID
	if chi.URLParam(r, "id") != "" {
		pathID, ok := httpx.IDParam(r, "id")
		if !ok || (itemID != 0 && itemID != pathID) {
			httpx.RespondError(w, ErrItemNotFound)
			return
		}
		itemID = pathID
	}
	if itemID == 0 {
		httpx.RespondError(w, ErrItemNotFound)
		return
	}
	var o Order
	err := db.RetryTransient(r.Context(), func(ctx context.Context) error {
		var err error
		o, err = h.service.ReceiveItem(ctx, ReceiveInput{ItemID: itemID, Quantity: req.Quantity, ActorID: shared.ActorFromContext(ctx)})
		return err
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "orderId": o.ID, "status": o.Status, "order": o})
}

type reorderRequest struct {
	Multiplier int64  `json:"multiplier" validate:"gte=0"`
	Supplier   string `json:"supplier" validate:"max=200"`
}

func (h *Handler) handleReorderDrafts(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if r.ContentLength != 0 {
		if err := httpx.Bind(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	policy := h.policy
	if req.Multiplier > 0 {
		policy.Multiplier = req.Multiplier
	}
	if req.Supplier != "" {
		policy.Supplier = req.Supplier
	}
	policy.ActorID = shared.ActorFromContext(r.Context())
	o, created, err := h.service.GenerateReorderDrafts(r.Context(), policy)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !created {
		httpx.JSON(w, http.StatusOK, map[string]any{"created": false})
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"created": true, "order": o})
}
