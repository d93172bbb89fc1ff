package inventory

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/kiosk-inventory/internal/platform/db"
	"github.com/odyssey-erp/kiosk-inventory/internal/platform/httpx"
	"github.com/odyssey-erp/kiosk-inventory/internal/shared"
)

// Handler wires HTTP endpoints for the ledger.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/movements", h.handleAdjust)
	r.Get("/stock-card", h.handleStockCard)
}

type adjustRequest struct {
	Kind   string `json:"kind" validate:"required,oneof=product aircon"`
	ID     int64  `json:"id" validate:"required,gt=0"`
	Delta  int64  `json:"delta" validate:"required"`
	Reason string `json:"reason" validate:"required"`
}

// EntryResponse is the wire shape of a ledger row.
type EntryResponse struct {
	ID         int64     `json:"id"`
	Kind       StockKind `json:"kind"`
	RefID      int64     `json:"stock_id"`
	Delta      int64     `json:"delta"`
	EventType  EventType `json:"event_type"`
	Reason     string    `json:"reason,omitempty"`
	RefModule  string    `json:"ref_module,omitempty"`
	Reference  string    `json:"ref_id,omitempty"`
	StockAfter int64     `json:"stock_after"`
	ActorID    int64     `json:"actor_id,omitempty"`
	CreatedAt  string    `json:"created_at"`
}

// ToResponse converts a ledger entry for JSON output.
func ToResponse(e LedgerEntry) EntryResponse {
	return EntryResponse{
		ID:         e.ID,
		Kind:       e.Ref.Kind,
		RefID:      e.Ref.ID,
		Delta:      e.Delta,
		EventType:  e.EventType,
		Reason:     e.Reason,
		RefModule:  e.RefModule,
		Reference:  e.RefID,
		StockAfter: e.StockAfter,
		ActorID:    e.ActorID,
		CreatedAt:  e.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

func (h *Handler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := AdjustInput{
		Ref:     StockRef{Kind: StockKind(req.Kind), ID: req.ID},
		Delta:   req.Delta,
		Reason:  req.Reason,
		ActorID: shared.ActorFromContext(r.Context()),
	}
	var entry LedgerEntry
	err := db.RetryTransient(r.Context(), func(ctx context.Context) error {
		var err error
		entry, err = h.service.Adjust(ctx, in)
		return err
	})
	if err != nil {
		h.logger.Warn("adjustment failed", slog.String("ref", in.Ref.String()), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ToResponse(entry))
}

type stockCardResponse struct {
	Kind    StockKind       `json:"kind"`
	ID      int64           `json:"id"`
	Code    string          `json:"code"`
	Name    string          `json:"name"`
	Stock   int64           `json:"stock"`
	Entries []EntryResponse `json:"entries"`
}

func (h *Handler) handleStockCard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ref, err := ParseRef(q.Get("kind"), q.Get("id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	from, err := httpx.QueryDate(r, "from")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	to, err := httpx.QueryDate(r, "to")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	from, to = DayRange(from, to)
	stock, err := h.service.GetStock(r.Context(), ref)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entries, err := h.service.StockCard(r.Context(), StockCardFilter{Ref: ref, From: from, To: to, Limit: httpx.QueryInt(r, "limit", 0)})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	resp := stockCardResponse{Kind: ref.Kind, ID: ref.ID, Code: stock.Code, Name: stock.Name, Stock: stock.Qty, Entries: make([]EntryResponse, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, ToResponse(e))
	}
	httpx.JSON(w, http.StatusOK, resp)
}
