package orders

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/kiosk-inventory/internal/inventory"
	"github.com/odyssey-erp/kiosk-inventory/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id int64) (Order, error)
	ListOrders(ctx context.Context, filter ListFilter) ([]Order, int, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service drives replenishment orders from draft to receipt.
type Service struct {
	repo     RepositoryPort
	recorder *inventory.Recorder
	audit    AuditPort
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the orders service.
func NewService(repo RepositoryPort, recorder *inventory.Recorder, audit AuditPort, logger *slog.Logger) *Service {
	if recorder == nil {
		recorder = inventory.NewRecorder(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, recorder: recorder, audit: audit, logger: logger, now: time.Now}
}

func generateNumber() string {
	return "PO-" + strings.ToUpper(uuid.NewString()[:8])
}

func addItem(ctx context.Context, tx TxRepository, orderID int64, in ItemInput) error {
	if in.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	ok, err := tx.ProductExists(ctx, in.ProductID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %d", ErrProductNotFound, in.ProductID)
	}
	_, err = tx.AddItem(ctx, orderID, in.ProductID, in.Quantity)
	return err
}

func lockDraft(ctx context.Context, tx TxRepository, orderID int64) (Order, error) {
	o, err := tx.LockOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if o.Status != StatusDraft {
		return Order{}, fmt.Errorf("%w: %s is %s", ErrNotDraft, o.Number, o.Status)
	}
	return o, nil
}

// lockLine locks an order and then one of its lines. Every write locks the
// order row before any of its lines.
func lockLine(ctx context.Context, tx TxRepository, itemID int64, draftOnly bool) (Order, Item, error) {
	orderID, err := tx.ItemOrderID(ctx, itemID)
	if err != nil {
		return Order{}, Item{}, err
	}
	var o Order
	if draftOnly {
		o, err = lockDraft(ctx, tx, orderID)
	} else {
		o, err = tx.LockOrder(ctx, orderID)
	}
	if err != nil {
		return Order{}, Item{}, err
	}
	item, err := tx.LockItem(ctx, itemID)
	if err != nil {
		return Order{}, Item{}, err
	}
	return o, item, nil
}

// CreateDraft inserts a draft order. Repeated products are merged into one
// line.
func (s *Service) CreateDraft(ctx context.Context, in DraftInput) (Order, error) {
	var created Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		o, err := tx.InsertOrder(ctx, Order{
			Number:    generateNumber(),
			Supplier:  strings.TrimSpace(in.Supplier),
			Status:    StatusDraft,
			Note:      strings.TrimSpace(in.Note),
			CreatedBy: in.ActorID,
		})
		if err != nil {
			return err
		}
		for _, it := range in.Items {
			if err := addItem(ctx, tx, o.ID, it); err != nil {
				return err
			}
		}
		created, err = tx.LockOrder(ctx, o.ID)
		return err
	})
	if err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, in.ActorID, "orders.draft_created", created, nil)
	return created, nil
}

// AddDraftItem adds a product line to a draft order.
func (s *Service) AddDraftItem(ctx context.Context, orderID int64, in ItemInput) (Order, error) {
	var out Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := lockDraft(ctx, tx, orderID); err != nil {
			return err
		}
		if err := addItem(ctx, tx, orderID, in); err != nil {
			return err
		}
		var err error
		out, err = tx.LockOrder(ctx, orderID)
		return err
	})
	return out, err
}

// UpdateDraftItem changes the ordered quantity of a draft line.
func (s *Service) UpdateDraftItem(ctx context.Context, itemID, qty int64) (Order, error) {
	if qty <= 0 {
		return Order{}, ErrInvalidQuantity
	}
	var out Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		_, item, err := lockLine(ctx, tx, itemID, true)
		if err != nil {
			return err
		}
		if err := tx.SetItemOrdered(ctx, itemID, qty); err != nil {
			return err
		}
		out, err = tx.LockOrder(ctx, item.OrderID)
		return err
	})
	return out, err
}

// RemoveDraftItem deletes a line from a draft order.
func (s *Service) RemoveDraftItem(ctx context.Context, itemID int64) (Order, error) {
	var out Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		_, item, err := lockLine(ctx, tx, itemID, true)
		if err != nil {
			return err
		}
		if err := tx.DeleteItem(ctx, itemID); err != nil {
			return err
		}
		out, err = tx.LockOrder(ctx, item.OrderID)
		return err
	})
	return out, err
}

// DeleteDraft removes a draft order and its lines.
func (s *Service) DeleteDraft(ctx context.Context, orderID, actorID int64) error {
	var deleted Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		o, err := lockDraft(ctx, tx, orderID)
		if err != nil {
			return err
		}
		deleted = o
		return tx.DeleteOrder(ctx, orderID)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "orders.draft_deleted", deleted, nil)
	return nil
}

// PlaceOrder moves a draft to ORDERED.
func (s *Service) PlaceOrder(ctx context.Context, orderID, actorID int64) (Order, error) {
	var out Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		o, err := lockDraft(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if len(o.Items) == 0 {
			return ErrEmptyOrder
		}
		at := s.now().UTC()
		o.Status, o.OrderedAt = StatusOrdered, &at
		if err := tx.UpdateOrderStatus(ctx, o); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, actorID, "orders.placed", out, nil)
	return out, nil
}

// CancelOrder cancels a draft or placed order that has not received goods.
func (s *Service) CancelOrder(ctx context.Context, orderID, actorID int64) (Order, error) {
	var out Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status != StatusDraft && o.Status != StatusOrdered {
			return fmt.Errorf("%w: cannot cancel %s order %s", shared.ErrInvalidState, o.Status, o.Number)
		}
		o.Status = StatusCancelled
		if err := tx.UpdateOrderStatus(ctx, o); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, actorID, "orders.cancelled", out, nil)
	return out, nil
}

// ReceiveItem books goods arriving for one order line. The line update, the
// RECEIPT movement and the order status recompute commit together.
func (s *Service) ReceiveItem(ctx context.Context, in ReceiveInput) (Order, error) {
	if in.Quantity <= 0 {
		return Order{}, ErrInvalidQuantity
	}
	var out Order
	var entry inventory.LedgerEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		o, item, err := lockLine(ctx, tx, in.ItemID, false)
		if err != nil {
			return err
		}
		switch {
		case o.Status == StatusReceived:
			return fmt.Errorf("%w: %s", ErrAlreadyReceived, o.Number)
		case !o.Status.Receivable():
			return fmt.Errorf("%w: %s is %s", ErrNotReceivable, o.Number, o.Status)
		}
		if item.QtyReceived+in.Quantity > item.QtyOrdered {
			return fmt.Errorf("%w: %s outstanding %d, received %d", ErrOverReceipt, item.ProductCode, item.Outstanding(), in.Quantity)
		}
		received := item.QtyReceived + in.Quantity
		if err := tx.SetItemReceived(ctx, item.ID, received); err != nil {
			return err
		}
		entry, err = s.recorder.Apply(ctx, tx, inventory.MovementInput{
			Ref:       inventory.ProductRef(item.ProductID),
			Delta:     in.Quantity,
			EventType: inventory.EventReceipt,
			Reason:    "order " + o.Number + " receipt",
			RefModule: "order",
			RefID:     o.Number,
			ActorID:   in.ActorID,
		})
		if err != nil {
			return err
		}
		for i := range o.Items {
			if o.Items[i].ID == item.ID {
				o.Items[i].QtyReceived = received
			}
		}
		next := DeriveStatus(o.Status, o.Items)
		if next != o.Status {
			o.Status = next
			if next == StatusReceived {
				at := s.now().UTC()
				o.ReceivedAt = &at
			}
			if err := tx.UpdateOrderStatus(ctx, o); err != nil {
				return err
			}
		}
		out = o
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.recorder.Committed(entry)
	s.logger.Info("order item received",
		slog.String("order", out.Number),
		slog.Int64("item_id", in.ItemID),
		slog.Int64("quantity", in.Quantity),
		slog.String("status", string(out.Status)))
	s.recordAudit(ctx, in.ActorID, "orders.received", out, map[string]any{"item_id": in.ItemID, "quantity": in.Quantity})
	return out, nil
}

// GenerateReorderDrafts creates one draft covering every product below its
// minimum stock that no open order already covers. It reports false when
// nothing qualifies. Concurrent runs are serialized by an advisory lock.
func (s *Service) GenerateReorderDrafts(ctx context.Context, policy ReorderPolicy) (Order, bool, error) {
	if policy.Multiplier <= 0 {
		policy.Multiplier = 2
	}
	if strings.TrimSpace(policy.Supplier) == "" {
		policy.Supplier = autoReorderSupplier
	}
	var out Order
	var created bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.AcquireAdvisoryLock(ctx, shared.ReorderLockKey()); err != nil {
			return err
		}
		candidates, err := tx.ReorderCandidates(ctx)
		if err != nil {
			return err
		}
		var lines []ItemInput
		for _, c := range candidates {
			if qty := c.ProposedQty(policy.Multiplier); qty > 0 {
				lines = append(lines, ItemInput{ProductID: c.ProductID, Quantity: qty})
			}
		}
		if len(lines) == 0 {
			return nil
		}
		o, err := tx.InsertOrder(ctx, Order{
			Number:    generateNumber(),
			Supplier:  policy.Supplier,
			Status:    StatusDraft,
			Note:      fmt.Sprintf("generated for %d products below minimum stock", len(lines)),
			CreatedBy: policy.ActorID,
		})
		if err != nil {
			return err
		}
		for _, l := range lines {
			if _, err := tx.AddItem(ctx, o.ID, l.ProductID, l.Quantity); err != nil {
				return err
			}
		}
		out, err = tx.LockOrder(ctx, o.ID)
		created = err == nil
		return err
	})
	if err != nil {
		return Order{}, false, err
	}
	if !created {
		s.logger.Info("reorder drafts: nothing below minimum")
		return Order{}, false, nil
	}
	s.logger.Info("reorder draft generated", slog.String("order", out.Number), slog.Int("items", len(out.Items)))
	s.recordAudit(ctx, policy.ActorID, "orders.reorder_generated", out, map[string]any{"items": len(out.Items)})
	return out, true, nil
}

// GetOrder loads an order with its items.
func (s *Service) GetOrder(ctx context.Context, id int64) (Order, error) {
	if id <= 0 {
		return Order{}, ErrOrderNotFound
	}
	return s.repo.GetOrder(ctx, id)
}

// ListOrders returns a page of orders.
func (s *Service) ListOrders(ctx context.Context, filter ListFilter) ([]Order, shared.Pagination, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, shared.Pagination{}, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, filter.Status)
	}
	filter.Page, filter.PerPage = shared.NormalizePage(filter.Page, filter.PerPage)
	orders, total, err := s.repo.ListOrders(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return orders, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, o Order, extra map[string]any) {
	if s.audit == nil {
		return
	}
	meta := map[string]any{"number": o.Number, "status": string(o.Status)}
	for k, v := range extra {
		meta[k] = v
	}
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "order", EntityID: strconv.FormatInt(o.ID, 10), Meta: meta}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
