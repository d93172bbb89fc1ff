package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/odyssey-erp/kiosk-inventory/internal/inventory"
	"github.com/odyssey-erp/kiosk-inventory/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetProduct(ctx context.Context, id int64) (Product, error)
	UpdateProduct(ctx context.Context, p Product) error
	ListProducts(ctx context.Context, filter ProductFilter) ([]Product, int, error)
	GetAirconUnit(ctx context.Context, id int64) (AirconUnit, error)
	ListAirconUnits(ctx context.Context) ([]AirconUnit, error)
	ResolveModel(ctx context.Context, model string) (AirconUnit, bool, error)
	ListModelMappings(ctx context.Context, model string) ([]ModelMapping, error)
	InsertVendor(ctx context.Context, v Vendor) (Vendor, error)
	GetVendor(ctx context.Context, id int64) (Vendor, error)
	ListVendors(ctx context.Context) ([]Vendor, error)
	InsertVendorUser(ctx context.Context, u VendorUser) (VendorUser, error)
	GetVendorUser(ctx context.Context, id int64) (VendorUser, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages master data for products, units and vendors.
type Service struct {
	repo     RepositoryPort
	recorder *inventory.Recorder
	audit    AuditPort
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, recorder *inventory.Recorder, audit AuditPort, logger *slog.Logger) *Service {
	if recorder == nil {
		recorder = inventory.NewRecorder(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, recorder: recorder, audit: audit, logger: logger, now: time.Now}
}

// CreateProduct inserts a product with a zero counter and records any
// opening balance as an INITIAL movement in the same transaction.
func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (Product, error) {
	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	if in.QtyPerBox == 0 {
		in.QtyPerBox = 1
	}
	if err := validateProductInput(in); err != nil {
		return Product{}, err
	}
	var created Product
	var entry inventory.LedgerEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.InsertProduct(ctx, Product{
			Code:        in.Code,
			Name:        in.Name,
			Category:    in.Category,
			Subcategory: in.Subcategory,
			ProductType: in.ProductType,
			Unit:        in.Unit,
			QtyPerBox:   in.QtyPerBox,
			Cost:        in.Cost,
			Price:       in.Price,
			Price2:      in.Price2,
			MinStock:    in.MinStock,
		})
		if err != nil {
			return err
		}
		if in.InitialStock > 0 {
			entry, err = s.recorder.Apply(ctx, tx, inventory.MovementInput{
				Ref:       inventory.ProductRef(p.ID),
				Delta:     in.InitialStock,
				EventType: inventory.EventInitial,
				Reason:    "opening balance",
				RefModule: "catalog",
				RefID:     p.Code,
				ActorID:   in.ActorID,
			})
			if err != nil {
				return err
			}
			p.Stock = entry.StockAfter
		}
		created = p
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	if entry.ID != 0 {
		s.recorder.Committed(entry)
	}
	return created, nil
}

// UpdateProduct applies a partial update to editable attributes.
func (s *Service) UpdateProduct(ctx context.Context, id int64, upd ProductUpdate) (Product, error) {
	p, err := s.GetProduct(ctx, id)
	if err != nil {
		return Product{}, err
	}
	if upd.Name != nil {
		p.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.Category != nil {
		p.Category = *upd.Category
	}
	if upd.Subcategory != nil {
		p.Subcategory = *upd.Subcategory
	}
	if upd.ProductType != nil {
		p.ProductType = *upd.ProductType
	}
	if upd.QtyPerBox != nil {
		p.QtyPerBox = *upd.QtyPerBox
	}
	if upd.Cost != nil {
		p.Cost = *upd.Cost
	}
	if upd.Price != nil {
		p.Price = *upd.Price
	}
	if upd.Price2 != nil {
		p.Price2 = *upd.Price2
	}
	if upd.MinStock != nil {
		p.MinStock = *upd.MinStock
	}
	if err := validateProductInput(ProductInput{
		Code: p.Code, Name: p.Name, Unit: p.Unit, QtyPerBox: p.QtyPerBox,
		Cost: p.Cost, Price: p.Price, Price2: p.Price2, MinStock: p.MinStock,
	}); err != nil {
		return Product{}, err
	}
	if err := s.repo.UpdateProduct(ctx, p); err != nil {
		return Product{}, err
	}
	return p, nil
}

// GetProduct returns a product with its live counter.
func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, ErrProductNotFound
	}
	return s.repo.GetProduct(ctx, id)
}

// ListProducts returns a page of products.
func (s *Service) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, shared.Pagination, error) {
	filter.Page, filter.PerPage = shared.NormalizePage(filter.Page, filter.PerPage)
	products, total, err := s.repo.ListProducts(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return products, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// CreateAirconUnit inserts a unit and records its opening balance.
func (s *Service) CreateAirconUnit(ctx context.Context, in AirconUnitInput) (AirconUnit, error) {
	in.Code = strings.TrimSpace(in.Code)
	if in.Code == "" {
		return AirconUnit{}, fmt.Errorf("%w: unit code required", shared.ErrValidation)
	}
	if in.MinStock < 0 || in.InitialStock < 0 {
		return AirconUnit{}, fmt.Errorf("%w: stock values must not be negative", shared.ErrValidation)
	}
	var created AirconUnit
	var entry inventory.LedgerEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		u, err := tx.InsertAirconUnit(ctx, AirconUnit{Code: in.Code, Capacity: in.Capacity, YearSuffix: in.YearSuffix, MinStock: in.MinStock})
		if err != nil {
			return err
		}
		if in.InitialStock > 0 {
			entry, err = s.recorder.Apply(ctx, tx, inventory.MovementInput{
				Ref:       inventory.AirconRef(u.ID),
				Delta:     in.InitialStock,
				EventType: inventory.EventInitial,
				Reason:    "opening balance",
				RefModule: "catalog",
				RefID:     u.Code,
				ActorID:   in.ActorID,
			})
			if err != nil {
				return err
			}
			u.Stock = entry.StockAfter
		}
		created = u
		return nil
	})
	if err != nil {
		return AirconUnit{}, err
	}
	if entry.ID != 0 {
		s.recorder.Committed(entry)
	}
	return created, nil
}

// GetAirconUnit returns a unit with its live counter.
func (s *Service) GetAirconUnit(ctx context.Context, id int64) (AirconUnit, error) {
	if id <= 0 {
		return AirconUnit{}, ErrUnitNotFound
	}
	return s.repo.GetAirconUnit(ctx, id)
}

// ListAirconUnits returns every unit.
func (s *Service) ListAirconUnits(ctx context.Context) ([]AirconUnit, error) {
	return s.repo.ListAirconUnits(ctx)
}

// MapModel points a model number at a unit. The active mapping, if any, is
// retired and a new version inserted so earlier resolutions stay auditable.
func (s *Service) MapModel(ctx context.Context, model string, unitID, actorID int64) (ModelMapping, error) {
	normalized := NormalizeModel(model)
	if normalized == "" {
		return ModelMapping{}, ErrInvalidModel
	}
	var mapping ModelMapping
	var previous *ModelMapping
	changed := false
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ok, err := tx.AirconUnitExists(ctx, unitID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrUnitNotFound
		}
		active, found, err := tx.LockActiveMapping(ctx, normalized)
		if err != nil {
			return err
		}
		if found && active.UnitID == unitID {
			mapping = active
			return nil
		}
		version, err := tx.LatestMappingVersion(ctx, normalized)
		if err != nil {
			return err
		}
		if found {
			if err := tx.RetireMapping(ctx, active.ID, s.now().UTC()); err != nil {
				return err
			}
			previous = &active
		}
		mapping, err = tx.InsertMapping(ctx, ModelMapping{ModelNumber: normalized, UnitID: unitID, Version: version + 1, CreatedBy: actorID})
		changed = err == nil
		return err
	})
	if err != nil {
		return ModelMapping{}, err
	}
	if changed && s.audit != nil {
		meta := map[string]any{"unit_id": unitID, "version": mapping.Version}
		if previous != nil {
			meta["previous_unit_id"] = previous.UnitID
		}
		if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: "catalog.model_mapped", Entity: "aircon_model", EntityID: normalized, Meta: meta}); err != nil {
			s.logger.Warn("audit record failed", slog.String("model_number", normalized), slog.Any("error", err))
		}
	}
	return mapping, nil
}

// ResolveModel returns the unit currently mapped to model. The boolean is
// false when no active mapping exists.
func (s *Service) ResolveModel(ctx context.Context, model string) (AirconUnit, bool, error) {
	normalized := NormalizeModel(model)
	if normalized == "" {
		return AirconUnit{}, false, ErrInvalidModel
	}
	return s.repo.ResolveModel(ctx, normalized)
}

// ListModelMappings returns every version recorded for model.
func (s *Service) ListModelMappings(ctx context.Context, model string) ([]ModelMapping, error) {
	normalized := NormalizeModel(model)
	if normalized == "" {
		return nil, ErrInvalidModel
	}
	return s.repo.ListModelMappings(ctx, normalized)
}

// CreateVendor registers a vendor. Price tier defaults to 1.
func (s *Service) CreateVendor(ctx context.Context, in VendorInput) (Vendor, error) {
	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	if in.PriceTier == 0 {
		in.PriceTier = 1
	}
	if in.Code == "" || in.Name == "" {
		return Vendor{}, fmt.Errorf("%w: vendor code and name required", shared.ErrValidation)
	}
	if in.PriceTier != 1 && in.PriceTier != 2 {
		return Vendor{}, fmt.Errorf("%w: price tier must be 1 or 2", shared.ErrValidation)
	}
	return s.repo.InsertVendor(ctx, Vendor{Code: in.Code, Name: in.Name, PriceTier: in.PriceTier, Active: true})
}

// GetVendor loads a vendor.
func (s *Service) GetVendor(ctx context.Context, id int64) (Vendor, error) {
	if id <= 0 {
		return Vendor{}, ErrVendorNotFound
	}
	return s.repo.GetVendor(ctx, id)
}

// ListVendors returns every vendor.
func (s *Service) ListVendors(ctx context.Context) ([]Vendor, error) {
	return s.repo.ListVendors(ctx)
}

// AddVendorUser registers a user under a vendor.
func (s *Service) AddVendorUser(ctx context.Context, vendorID int64, name string) (VendorUser, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return VendorUser{}, fmt.Errorf("%w: vendor user name required", shared.ErrValidation)
	}
	if _, err := s.GetVendor(ctx, vendorID); err != nil {
		return VendorUser{}, err
	}
	return s.repo.InsertVendorUser(ctx, VendorUser{VendorID: vendorID, Name: name, Active: true})
}

// GetVendorUser loads a vendor user.
func (s *Service) GetVendorUser(ctx context.Context, id int64) (VendorUser, error) {
	if id <= 0 {
		return VendorUser{}, ErrVendorUserNotFound
	}
	return s.repo.GetVendorUser(ctx, id)
}
