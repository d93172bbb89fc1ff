package checkout

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/kiosk-inventory/internal/inventory"
	"github.com/odyssey-erp/kiosk-inventory/internal/platform/db"
	"github.com/odyssey-erp/kiosk-inventory/internal/platform/httpx"
	"github.com/odyssey-erp/kiosk-inventory/internal/shared"
)

// Handler wires HTTP endpoints for kiosk checkout.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs checkout handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers checkout routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/checkout", h.handleCheckout)
	r.Post("/checkout/aircon", h.handleAirconCheckout)
	r.Post("/aircon-logs/{id}/return", h.handleReturn)
	r.Get("/vendors/{id}/held-units", h.handleHeldUnits)
	r.Get("/aircon-units/{id}/availability", h.handleAvailability)
	r.Get("/transactions", h.handleListTransactions)
	r.Get("/transactions/{id}", h.handleGetTransaction)
}

type cartItemRequest struct {
	ProductID  int64            `json:"productId" validate:"required_without=ManualName,excluded_with=ManualName"`
	ManualName string           `json:"manualName" validate:"max=200"`
	Quantity   int64            `json:"quantity" validate:"required,gt=0,lte=100000"`
	IsBox      bool             `json:"isBox"`
	UnitPrice  *decimal.Decimal `json:"unitPrice"`
}

type checkoutRequest struct {
	VendorID        int64             `json:"vendorId" validate:"required,gt=0"`
	VendorUserID    int64             `json:"vendorUserId" validate:"gte=0"`
	Items           []cartItemRequest `json:"items" validate:"required,min=1,dive"`
	IsProxy         bool              `json:"isProxy"`
	TransactionDate string            `json:"transactionDate"`
}

type shortageResponse struct {
	ProductID int64  `json:"productId"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	Available int64  `json:"available"`
	Requested int64  `json:"requested"`
}

type failureResponse struct {
	Success   bool               `json:"success"`
	Message   string             `json:"message"`
	Type      string             `json:"type,omitempty"`
	Shortages []shortageResponse `json:"shortages,omitempty"`
}

func (h *Handler) respondFailure(w http.ResponseWriter, err error) {
	status, kind := httpx.Status(err)
	resp := failureResponse{Success: false, Message: err.Error(), Type: kind}
	if status == http.StatusInternalServerError {
		h.logger.Error("checkout request failed", slog.Any("error", err))
		resp.Message = "internal error"
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	for _, s := range inventory.AsShortage(err) {
		resp.Shortages = append(resp.Shortages, shortageResponse{ProductID: s.Ref.ID, Code: s.Code, Name: s.Name, Available: s.Available, Requested: s.Requested})
	}
	httpx.JSON(w, status, resp)
}

func parseDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: transactionDate must be RFC3339 or YYYY-MM-DD", shared.ErrValidation)
}

func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := httpx.Bind(r, &req); err != nil {
		h.respondFailure(w, err)
		return
	}
	date, err := parseDate(req.TransactionDate)
	if err != nil {
		h.respondFailure(w, err)
		return
	}
	in := CheckoutInput{
		VendorID:        req.VendorID,
		VendorUserID:    req.VendorUserID,
		IsProxy:         req.IsProxy,
		TransactionDate: date,
		ActorID:         shared.ActorFromContext(r.Context()),
		IdempotencyKey:  r.Header.Get("Idempotency-Key"),
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, CartItem{ProductID: it.ProductID, ManualName: it.ManualName, Quantity: it.Quantity, IsBox: it.IsBox, UnitPrice: it.UnitPrice})
	}
	var res Result
	err = db.RetryTransient(r.Context(), func(ctx context.Context) error {
		var err error
		res, err = h.service.CreateTransaction(ctx, in)
		return err
	})
	if err != nil {
		h.respondFailure(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"success":       true,
		"transactionId": res.Transaction.ID,
		"code":          res.Transaction.Code,
		"totalAmount":   res.Transaction.TotalAmount,
		"stockSnapshot": res.Snapshot,
	})
}

type airconItemRequest struct {
	ModelNumber  string `json:"modelNumber" validate:"required,max=100"`
	ManagementNo string `json:"managementNo" validate:"max=100"`
	CustomerName string `json:"customerName" validate:"max=200"`
	Contractor   string `json:"contractor" validate:"max=200"`
}

type airconCheckoutRequest struct {
	VendorID        int64               `json:"vendorId" validate:"required,gt=0"`
	VendorUserID    int64               `json:"vendorUserId" validate:"gte=0"`
	Items           []airconItemRequest `json:"items" validate:"required,min=1,dive"`
	IsProxy         bool                `json:"isProxy"`
	TransactionDate string              `json:"transactionDate"`
}

func (h *Handler) handleAirconCheckout(w http.ResponseWriter, r *http.Request) {
	var req airconCheckoutRequest
	if err := httpx.Bind(r, &req); err != nil {
		h.respondFailure(w, err)
		return
	}
	date, err := parseDate(req.TransactionDate)
	if err != nil {
		h.respondFailure(w, err)
		return
	}
	in := AirconCheckoutInput{
		VendorID:        req.VendorID,
		VendorUserID:    req.VendorUserID,
		IsProxy:         req.IsProxy,
		TransactionDate: date,
		ActorID:         shared.ActorFromContext(r.Context()),
		IdempotencyKey:  r.Header.Get("Idempotency-Key"),
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, AirconItem(it))
	}
	var res AirconResult
	err = db.RetryTransient(r.Context(), func(ctx context.Context) error {
		var err error
		res, err = h.service.CheckoutAircon(ctx, in)
		return err
	})
	if err != nil {
		h.respondFailure(w, err)
		return
	}
	unmatched := res.Unmatched
	if unmatched == nil {
		unmatched = []string{}
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"success":       true,
		"transactionId": res.Transaction.ID,
		"code":          res.Transaction.Code,
		"logs":          res.Logs,
		"stockSnapshot": res.Snapshot,
		"unmatched":     unmatched,
	})
}

func (h *Handler) handleReturn(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		h.respondFailure(w, ErrLogNotFound)
		return
	}
	var log AirconLog
	err := db.RetryTransient(r.Context(), func(ctx context.Context) error {
		var err error
		log, err = h.service.ReturnUnit(ctx, id, shared.ActorFromContext(ctx))
		return err
	})
	if err != nil {
		h.respondFailure(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "log": log})
}

func (h *Handler) handleHeldUnits(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.RespondError(w, shared.ErrNotFound)
		return
	}
	held, err := h.service.VendorHeldStock(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var count int64
	for _, u := range held {
		count += u.Count
	}
	if held == nil {
		held = []HeldUnit{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"vendor_id": id, "total": count, "units": held})
}

func (h *Handler) handleAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.RespondError(w, shared.ErrNotFound)
		return
	}
	avail, err := h.service.UnitAvailability(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, avail)
}

func (h *Handler) handleListTransactions(w http.ResponseWriter, r *http.Request) {
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
	from, to = inventory.DayRange(from, to)
	txns, page, err := h.service.ListTransactions(r.Context(), TransactionFilter{
		VendorID: int64(httpx.QueryInt(r, "vendor_id", 0)),
		From:     from,
		To:       to,
		Page:     httpx.QueryInt(r, "page", 1),
		PerPage:  httpx.QueryInt(r, "per_page", 0),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if txns == nil {
		txns = []Transaction{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": txns, "pagination": page})
}

func (h *Handler) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.RespondError(w, ErrTransactionNotFound)
		return
	}
	txn, err := h.service.GetTransaction(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, txn)
}
