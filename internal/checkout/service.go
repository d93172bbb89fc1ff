package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/kiosk-inventory/internal/catalog"
	"github.com/odyssey-erp/kiosk-inventory/internal/inventory"
	"github.com/odyssey-erp/kiosk-inventory/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetTransaction(ctx context.Context, id int64) (Transaction, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, int, error)
	ListHeldLogs(ctx context.Context, vendorID int64) ([]AirconLog, error)
	CountHeldUnits(ctx context.Context, unitID int64) (int64, error)
}

// CatalogPort resolves master data referenced by a cart.
type CatalogPort interface {
	GetProduct(ctx context.Context, id int64) (catalog.Product, error)
	GetAirconUnit(ctx context.Context, id int64) (catalog.AirconUnit, error)
	ResolveModel(ctx context.Context, model string) (catalog.AirconUnit, bool, error)
	GetVendor(ctx context.Context, id int64) (catalog.Vendor, error)
	GetVendorUser(ctx context.Context, id int64) (catalog.VendorUser, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards against duplicate kiosk submissions.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

const idempotencyModule = "checkout"

// Service composes checkouts and returns.
type Service struct {
	repo        RepositoryPort
	catalog     CatalogPort
	recorder    *inventory.Recorder
	audit       AuditPort
	idempotency IdempotencyPort
	logger      *slog.Logger
	now         func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, cat CatalogPort, recorder *inventory.Recorder, audit AuditPort, idem IdempotencyPort, logger *slog.Logger) *Service {
	if recorder == nil {
		recorder = inventory.NewRecorder(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, catalog: cat, recorder: recorder, audit: audit, idempotency: idem, logger: logger, now: time.Now}
}

type header struct {
	vendor       catalog.Vendor
	vendorUserID *int64
	date         time.Time
}

func (s *Service) resolveHeader(ctx context.Context, vendorID, vendorUserID int64, isProxy bool, date *time.Time) (header, error) {
	vendor, err := s.catalog.GetVendor(ctx, vendorID)
	if err != nil {
		return header{}, err
	}
	if !vendor.Active {
		return header{}, fmt.Errorf("%w: %s", ErrVendorInactive, vendor.Code)
	}
	h := header{vendor: vendor, date: s.now().UTC()}
	if vendorUserID != 0 {
		user, err := s.catalog.GetVendorUser(ctx, vendorUserID)
		if err != nil {
			return header{}, err
		}
		if user.VendorID != vendor.ID {
			return header{}, ErrVendorUserMismatch
		}
		h.vendorUserID = &user.ID
	}
	if date != nil {
		if !isProxy {
			return header{}, ErrDateRequiresProxy
		}
		if date.After(h.date.Add(time.Minute)) {
			return header{}, ErrFutureDate
		}
		h.date = date.UTC()
	}
	return h, nil
}

// buildItems resolves cart lines into serialized line items and the per-product
// movements they imply. Repeated products collapse into one movement.
func (s *Service) buildItems(ctx context.Context, vendor catalog.Vendor, cart []CartItem) ([]LineItem, []int64, map[int64]int64, map[int64]catalog.Product, error) {
	items := make([]LineItem, 0, len(cart))
	deltas := make(map[int64]int64)
	products := make(map[int64]catalog.Product)
	var order []int64
	for i, ci := range cart {
		if ci.Quantity <= 0 || ci.Quantity > MaxLineQuantity {
			return nil, nil, nil, nil, fmt.Errorf("%w: line %d quantity must be between 1 and %d", ErrInvalidItem, i+1, MaxLineQuantity)
		}
		name := strings.TrimSpace(ci.ManualName)
		switch {
		case ci.ProductID > 0 && name != "":
			return nil, nil, nil, nil, fmt.Errorf("%w: line %d names both a product and a manual item", ErrInvalidItem, i+1)
		case ci.ProductID > 0:
			p, ok := products[ci.ProductID]
			if !ok {
				var err error
				p, err = s.catalog.GetProduct(ctx, ci.ProductID)
				if err != nil {
					return nil, nil, nil, nil, fmt.Errorf("line %d: %w", i+1, err)
				}
				products[p.ID] = p
				order = append(order, p.ID)
			}
			perBox := int64(1)
			if ci.IsBox {
				perBox = p.QtyPerBox
			}
			if perBox < 1 || ci.Quantity > MaxProductUnits/perBox {
				return nil, nil, nil, nil, fmt.Errorf("%w: line %d exceeds %d units", ErrInvalidItem, i+1, MaxProductUnits)
			}
			units := ci.Quantity * perBox
			if units > MaxProductUnits+deltas[p.ID] {
				return nil, nil, nil, nil, fmt.Errorf("%w: product %s exceeds %d units in one cart", ErrInvalidItem, p.Code, MaxProductUnits)
			}
			price := p.PriceFor(vendor.PriceTier)
			items = append(items, LineItem{
				Kind:      ItemCatalog,
				ProductID: p.ID,
				Code:      p.Code,
				Name:      p.Name,
				Quantity:  ci.Quantity,
				IsBox:     ci.IsBox,
				QtyPerBox: perBox,
				Units:     units,
				UnitPrice: price,
				Amount:    price.Mul(decimal.NewFromInt(units)),
			})
			deltas[p.ID] -= units
		case name != "":
			price := decimal.Zero
			if ci.UnitPrice != nil {
				if ci.UnitPrice.IsNegative() {
					return nil, nil, nil, nil, fmt.Errorf("%w: line %d price must not be negative", ErrInvalidItem, i+1)
				}
				price = *ci.UnitPrice
			}
			items = append(items, LineItem{
				Kind:      ItemManual,
				Name:      name,
				Quantity:  ci.Quantity,
				UnitPrice: price,
				Amount:    price.Mul(decimal.NewFromInt(ci.Quantity)),
			})
		default:
			return nil, nil, nil, nil, fmt.Errorf("%w: line %d needs a product or a manual name", ErrInvalidItem, i+1)
		}
	}
	return items, order, deltas, products, nil
}

func total(items []LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, li := range items {
		sum = sum.Add(li.Amount)
	}
	return sum
}

func (s *Service) claim(ctx context.Context, key string) (func(), error) {
	if key == "" || s.idempotency == nil {
		return func() {}, nil
	}
	if err := s.idempotency.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
		return nil, err
	}
	return func() {
		if err := s.idempotency.Delete(context.WithoutCancel(ctx), key); err != nil {
			s.logger.Error("release idempotency key", slog.String("key", key), slog.Any("error", err))
		}
	}, nil
}

// CreateTransaction records a kiosk checkout. Every catalog line is checked
// against live stock under row locks; when any line falls short nothing is
// written and all shortfalls are reported together.
func (s *Service) CreateTransaction(ctx context.Context, in CheckoutInput) (Result, error) {
	if len(in.Items) == 0 {
		return Result{}, ErrEmptyCart
	}
	h, err := s.resolveHeader(ctx, in.VendorID, in.VendorUserID, in.IsProxy, in.TransactionDate)
	if err != nil {
		return Result{}, err
	}
	items, order, deltas, products, err := s.buildItems(ctx, h.vendor, in.Items)
	if err != nil {
		return Result{}, err
	}

	release, err := s.claim(ctx, in.IdempotencyKey)
	if err != nil {
		return Result{}, err
	}

	txn := Transaction{
		Code:            uuid.New(),
		VendorID:        h.vendor.ID,
		VendorUserID:    h.vendorUserID,
		Items:           items,
		TotalAmount:     total(items),
		IsProxy:         in.IsProxy,
		TransactionDate: h.date,
		CreatedBy:       in.ActorID,
	}
	moves := make([]inventory.MovementInput, 0, len(order))
	for _, id := range order {
		moves = append(moves, inventory.MovementInput{
			Ref:       inventory.ProductRef(id),
			Delta:     deltas[id],
			EventType: inventory.EventCheckout,
			Reason:    "checkout",
			RefModule: "checkout",
			RefID:     txn.Code.String(),
			ActorID:   in.ActorID,
		})
	}

	var entries []inventory.LedgerEntry
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entries, err = s.recorder.ApplyBatch(ctx, tx, moves)
		if err != nil {
			return err
		}
		txn, err = tx.InsertTransaction(ctx, txn)
		return err
	})
	if err != nil {
		release()
		s.logRejection(in.VendorID, err)
		return Result{}, err
	}
	s.recorder.Committed(entries...)

	snapshot := make([]StockSnapshot, 0, len(entries))
	for _, e := range entries {
		p := products[e.Ref.ID]
		snapshot = append(snapshot, StockSnapshot{ProductID: p.ID, Code: p.Code, Name: p.Name, ExpectedStock: e.StockAfter})
	}
	s.logger.Info("checkout recorded",
		slog.Int64("transaction_id", txn.ID),
		slog.String("code", txn.Code.String()),
		slog.Int64("vendor_id", txn.VendorID),
		slog.Int("items", len(items)),
		slog.Bool("proxy", txn.IsProxy))
	return Result{Transaction: txn, Snapshot: snapshot}, nil
}

func (s *Service) logRejection(vendorID int64, err error) {
	if shortages := inventory.AsShortage(err); len(shortages) > 0 {
		codes := make([]string, 0, len(shortages))
		for _, sh := range shortages {
			codes = append(codes, sh.Code)
		}
		s.logger.Info("checkout rejected: insufficient stock", slog.Int64("vendor_id", vendorID), slog.Any("codes", codes))
		return
	}
	if errors.Is(err, shared.ErrValidation) || errors.Is(err, shared.ErrNotFound) {
		return
	}
	s.logger.Error("checkout failed", slog.Int64("vendor_id", vendorID), slog.Any("error", err))
}

// CheckoutAircon records serialized units leaving with a vendor. Model numbers
// resolve through the versioned mapping; unmatched models are still logged
// but carry no stock effect.
func (s *Service) CheckoutAircon(ctx context.Context, in AirconCheckoutInput) (AirconResult, error) {
	if len(in.Items) == 0 {
		return AirconResult{}, ErrEmptyCart
	}
	h, err := s.resolveHeader(ctx, in.VendorID, in.VendorUserID, in.IsProxy, in.TransactionDate)
	if err != nil {
		return AirconResult{}, err
	}

	items := make([]LineItem, 0, len(in.Items))
	logs := make([]AirconLog, 0, len(in.Items))
	counts := make(map[int64]int64)
	units := make(map[int64]catalog.AirconUnit)
	var order []int64
	var unmatched []string
	for i, it := range in.Items {
		model := catalog.NormalizeModel(it.ModelNumber)
		if model == "" {
			return AirconResult{}, fmt.Errorf("%w: line %d model number required", ErrInvalidItem, i+1)
		}
		unit, found, err := s.catalog.ResolveModel(ctx, model)
		if err != nil {
			return AirconResult{}, err
		}
		li := LineItem{Kind: ItemUnit, Name: model, Quantity: 1, ModelNumber: model, ManagementNo: strings.TrimSpace(it.ManagementNo)}
		l := AirconLog{
			CustomerName: strings.TrimSpace(it.CustomerName),
			Contractor:   strings.TrimSpace(it.Contractor),
			ModelNumber:  model,
			VendorID:     h.vendor.ID,
			VendorUserID: h.vendorUserID,
		}
		if li.ManagementNo != "" {
			mn := li.ManagementNo
			l.ManagementNo = &mn
		}
		if found {
			id := unit.ID
			li.UnitID, l.UnitID = &id, &id
			li.Code = unit.Code
			if _, seen := units[id]; !seen {
				units[id] = unit
				order = append(order, id)
			}
			counts[id]++
		} else {
			unmatched = append(unmatched, model)
		}
		items = append(items, li)
		logs = append(logs, l)
	}

	release, err := s.claim(ctx, in.IdempotencyKey)
	if err != nil {
		return AirconResult{}, err
	}

	txn := Transaction{
		Code:            uuid.New(),
		VendorID:        h.vendor.ID,
		VendorUserID:    h.vendorUserID,
		Items:           items,
		TotalAmount:     decimal.Zero,
		IsProxy:         in.IsProxy,
		TransactionDate: h.date,
		CreatedBy:       in.ActorID,
	}
	moves := make([]inventory.MovementInput, 0, len(order))
	for _, id := range order {
		moves = append(moves, inventory.MovementInput{
			Ref:       inventory.AirconRef(id),
			Delta:     -counts[id],
			EventType: inventory.EventCheckout,
			Reason:    "aircon checkout",
			RefModule: "checkout",
			RefID:     txn.Code.String(),
			ActorID:   in.ActorID,
		})
	}

	var entries []inventory.LedgerEntry
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entries, err = s.recorder.ApplyBatch(ctx, tx, moves)
		if err != nil {
			return err
		}
		txn, err = tx.InsertTransaction(ctx, txn)
		if err != nil {
			return err
		}
		for i := range logs {
			txID := txn.ID
			logs[i].TransactionID = &txID
			logs[i], err = tx.InsertAirconLog(ctx, logs[i])
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		release()
		s.logRejection(in.VendorID, err)
		return AirconResult{}, err
	}
	s.recorder.Committed(entries...)

	for _, model := range unmatched {
		s.logger.Warn("aircon model not mapped; recorded without stock effect",
			slog.String("model_number", model),
			slog.Int64("transaction_id", txn.ID),
			slog.Int64("vendor_id", txn.VendorID))
		if s.audit != nil {
			if err := s.audit.Record(ctx, shared.AuditLog{
				ActorID:  in.ActorID,
				Action:   "checkout.aircon_unmatched",
				Entity:   "transaction",
				EntityID: strconv.FormatInt(txn.ID, 10),
				Meta:     map[string]any{"model_number": model, "vendor_id": txn.VendorID},
			}); err != nil {
				s.logger.Warn("audit record failed", slog.Any("error", err))
			}
		}
	}

	snapshot := make([]UnitSnapshot, 0, len(entries))
	for _, e := range entries {
		snapshot = append(snapshot, UnitSnapshot{UnitID: e.Ref.ID, Code: units[e.Ref.ID].Code, ExpectedStock: e.StockAfter})
	}
	return AirconResult{Transaction: txn, Logs: logs, Snapshot: snapshot, Unmatched: unmatched}, nil
}

// ReturnUnit marks an air-conditioner log returned and puts the unit back in
// stock. A second return of the same log fails with ErrAlreadyReturned.
func (s *Service) ReturnUnit(ctx context.Context, logID, actorID int64) (AirconLog, error) {
	if logID <= 0 {
		return AirconLog{}, ErrLogNotFound
	}
	var log AirconLog
	var entry inventory.LedgerEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		log, err = tx.LockAirconLog(ctx, logID)
		if err != nil {
			return err
		}
		if log.IsReturned {
			return fmt.Errorf("%w: log %d", ErrAlreadyReturned, logID)
		}
		at := s.now().UTC()
		if err := tx.MarkLogReturned(ctx, logID, at); err != nil {
			return err
		}
		log.IsReturned, log.ReturnedAt = true, &at
		if log.UnitID != nil {
			entry, err = s.recorder.Apply(ctx, tx, inventory.MovementInput{
				Ref:       inventory.AirconRef(*log.UnitID),
				Delta:     1,
				EventType: inventory.EventReturn,
				Reason:    "aircon return",
				RefModule: "aircon_log",
				RefID:     strconv.FormatInt(logID, 10),
				ActorID:   actorID,
			})
			if err != nil {
				return err
			}
		}
		if log.TransactionID != nil {
			open, err := tx.CountOpenLogs(ctx, *log.TransactionID)
			if err != nil {
				return err
			}
			if open == 0 {
				return tx.MarkTransactionReturned(ctx, *log.TransactionID)
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyReturned) {
			s.logger.Info("return rejected: already returned", slog.Int64("log_id", logID))
		}
		return AirconLog{}, err
	}
	if entry.ID != 0 {
		s.recorder.Committed(entry)
	}
	return log, nil
}

// VendorHeldStock lists units a vendor holds informally, grouped by model.
func (s *Service) VendorHeldStock(ctx context.Context, vendorID int64) ([]HeldUnit, error) {
	if _, err := s.catalog.GetVendor(ctx, vendorID); err != nil {
		return nil, err
	}
	logs, err := s.repo.ListHeldLogs(ctx, vendorID)
	if err != nil {
		return nil, err
	}
	var out []HeldUnit
	index := make(map[string]int)
	for _, l := range logs {
		key := l.ModelNumber
		if l.UnitID != nil {
			key = "unit:" + strconv.FormatInt(*l.UnitID, 10)
		}
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, HeldUnit{ModelNumber: l.ModelNumber, UnitID: l.UnitID})
		}
		out[i].Count++
		out[i].LogIDs = append(out[i].LogIDs, l.ID)
	}
	return out, nil
}

// UnitAvailability combines warehouse stock with units held by vendors.
func (s *Service) UnitAvailability(ctx context.Context, unitID int64) (Availability, error) {
	unit, err := s.catalog.GetAirconUnit(ctx, unitID)
	if err != nil {
		return Availability{}, err
	}
	held, err := s.repo.CountHeldUnits(ctx, unitID)
	if err != nil {
		return Availability{}, err
	}
	return Availability{UnitID: unit.ID, Code: unit.Code, Warehouse: unit.Stock, VendorHeld: held, Total: unit.Stock + held}, nil
}

// GetTransaction loads a transaction.
func (s *Service) GetTransaction(ctx context.Context, id int64) (Transaction, error) {
	if id <= 0 {
		return Transaction{}, ErrTransactionNotFound
	}
	return s.repo.GetTransaction(ctx, id)
}

// ListTransactions returns a page of transactions.
func (s *Service) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, shared.Pagination, error) {
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, shared.Pagination{}, fmt.Errorf("%w: range end before start", shared.ErrValidation)
	}
	filter.Page, filter.PerPage = shared.NormalizePage(filter.Page, filter.PerPage)
	txns, total, err := s.repo.ListTransactions(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return txns, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}
