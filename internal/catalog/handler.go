package catalog

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/kiosk-inventory/internal/platform/db"
	"github.com/odyssey-erp/kiosk-inventory/internal/platform/httpx"
	"github.com/odyssey-erp/kiosk-inventory/internal/shared"
)

// Handler wires HTTP endpoints for master data.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs catalog handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/products", func(r chi.Router) {
		r.Post("/", h.handleCreateProduct)
		r.Get("/", h.handleListProducts)
		r.Get("/{id}", h.handleGetProduct)
		r.Patch("/{id}", h.handleUpdateProduct)
	})
	r.Post("/aircon-units", h.handleCreateUnit)
	r.Get("/aircon-units", h.handleListUnits)
	r.Get("/aircon-units/{id}", h.handleGetUnit)
	r.Post("/aircon-models", h.handleMapModel)
	r.Get("/aircon-models/{modelNumber}", h.handleModelHistory)
	r.Route("/vendors", func(r chi.Router) {
		r.Post("/", h.handleCreateVendor)
		r.Get("/", h.handleListVendors)
		r.Get("/{id}", h.handleGetVendor)
		r.Post("/{id}/users", h.handleAddVendorUser)
	})
}

type productRequest struct {
	Code         string              `json:"code" validate:"required,max=64"`
	Name         string              `json:"name" validate:"required,max=200"`
	Category     string              `json:"category"`
	Subcategory  string              `json:"subcategory"`
	ProductType  string              `json:"product_type"`
	Unit         string              `json:"unit" validate:"required,oneof=piece meter roll box"`
	QtyPerBox    int64               `json:"qty_per_box" validate:"omitempty,gte=1,lte=10000"`
	Cost         decimal.Decimal     `json:"cost"`
	Price        decimal.Decimal     `json:"price"`
	Price2       decimal.NullDecimal `json:"price2"`
	MinStock     int64               `json:"min_stock" validate:"gte=0"`
	InitialStock int64               `json:"initial_stock" validate:"gte=0"`
}

func (h *Handler) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.CreateProduct(r.Context(), ProductInput{
		Code:         req.Code,
		Name:         req.Name,
		Category:     req.Category,
		Subcategory:  req.Subcategory,
		ProductType:  req.ProductType,
		Unit:         Unit(req.Unit),
		QtyPerBox:    req.QtyPerBox,
		Cost:         req.Cost,
		Price:        req.Price,
		Price2:       req.Price2,
		MinStock:     req.MinStock,
		InitialStock: req.InitialStock,
		ActorID:      shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.logger.Warn("create product failed", slog.String("code", req.Code), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	products, page, err := h.service.ListProducts(r.Context(), ProductFilter{
		Category:     q.Get("category"),
		Search:       q.Get("search"),
		BelowMinimum: q.Get("below_minimum") == "true",
		Page:         httpx.QueryInt(r, "page", 1),
		PerPage:      httpx.QueryInt(r, "per_page", 0),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if products == nil {
		products = []Product{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": products, "pagination": page})
}

func (h *Handler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.RespondError(w, ErrProductNotFound)
		return
	}
	p, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

type productPatchRequest struct {
	Name        *string              `json:"name" validate:"omitempty,min=1,max=200"`
	Category    *string              `json:"category"`
	Subcategory *string              `json:"subcategory"`
	ProductType *string              `json:"product_type"`
	QtyPerBox   *int64               `json:"qty_per_box" validate:"omitempty,gte=1,lte=10000"`
	Cost        *decimal.Decimal     `json:"cost"`
	Price       *decimal.Decimal     `json:"price"`
	Price2      *decimal.NullDecimal `json:"price2"`
	MinStock    *int64               `json:"min_stock" validate:"omitempty,gte=0"`
}

func (h *Handler) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.RespondError(w, ErrProductNotFound)
		return
	}
	var req productPatchRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.UpdateProduct(r.Context(), id, ProductUpdate(req))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

type unitRequest struct {
	Code         string `json:"code" validate:"required,max=64"`
	Capacity     string `json:"capacity"`
	YearSuffix   string `json:"year_suffix"`
	MinStock     int64  `json:"min_stock" validate:"gte=0"`
	InitialStock int64  `json:"initial_stock" validate:"gte=0"`
}

func (h *Handler) handleCreateUnit(w http.ResponseWriter, r *http.Request) {
	var req unitRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	u, err := h.service.CreateAirconUnit(r.Context(), AirconUnitInput{
		Code:         req.Code,
		Capacity:     req.Capacity,
		YearSuffix:   req.YearSuffix,
		MinStock:     req.MinStock,
		InitialStock: req.InitialStock,
		ActorID:      shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, u)
}

func (h *Handler) handleListUnits(w http.ResponseWriter, r *http.Request) {
	units, err := h.service.ListAirconUnits(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if units == nil {
		units = []AirconUnit{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": units})
}

func (h *Handler) handleGetUnit(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.RespondError(w, ErrUnitNotFound)
		return
	}
	u, err := h.service.GetAirconUnit(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, u)
}

type mapModelRequest struct {
	ModelNumber string `json:"model_number" validate:"required"`
	UnitID      int64  `json:"unit_id" validate:"required,gt=0"`
}

func (h *Handler) handleMapModel(w http.ResponseWriter, r *http.Request) {
	var req mapModelRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	var mapping ModelMapping
	err := db.RetryTransient(r.Context(), func(ctx context.Context) error {
		var err error
		mapping, err = h.service.MapModel(ctx, req.ModelNumber, req.UnitID, shared.ActorFromContext(ctx))
		return err
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, mapping)
}

func (h *Handler) handleModelHistory(w http.ResponseWriter, r *http.Request) {
	model, err := url.PathUnescape(chi.URLParam(r, "modelNumber"))
	if err != nil {
		httpx.RespondError(w, ErrInvalidModel)
		return
	}
	mappings, err := h.service.ListModelMappings(r.Context(), model)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	resp := map[string]any{"model_number": NormalizeModel(model), "versions": mappings}
	if mappings == nil {
		resp["versions"] = []ModelMapping{}
	}
	if len(mappings) > 0 && mappings[0].Active() {
		resp["active_unit_id"] = mappings[0].UnitID
	}
	httpx.JSON(w, http.StatusOK, resp)
}

type vendorRequest struct {
	Code      string `json:"code" validate:"required,max=64"`
	Name      string `json:"name" validate:"required,max=200"`
	PriceTier int    `json:"price_tier" validate:"omitempty,oneof=1 2"`
}

func (h *Handler) handleCreateVendor(w http.ResponseWriter, r *http.Request) {
	var req vendorRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	v, err := h.service.CreateVendor(r.Context(), VendorInput(req))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, v)
}

func (h *Handler) handleListVendors(w http.ResponseWriter, r *http.Request) {
	vendors, err := h.service.ListVendors(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if vendors == nil {
		vendors = []Vendor{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": vendors})
}

func (h *Handler) handleGetVendor(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.RespondError(w, ErrVendorNotFound)
		return
	}
	v, err := h.service.GetVendor(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, v)
}

type vendorUserRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

func (h *Handler) handleAddVendorUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.RespondError(w, ErrVendorNotFound)
		return
	}
	var req vendorUserRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	u, err := h.service.AddVendorUser(r.Context(), id, req.Name)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, u)
}
