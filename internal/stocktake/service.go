package stocktake

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/kiosk-inventory/internal/inventory"
	"github.com/odyssey-erp/kiosk-inventory/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetCount(ctx context.Context, id int64) (Count, error)
	ListCounts(ctx context.Context, filter ListFilter) ([]Count, int, error)
}

// StockPort reads live counters for previews.
type StockPort interface {
	GetStock(ctx context.Context, ref inventory.StockRef) (inventory.Stock, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service runs physical count sessions.
type Service struct {
	repo     RepositoryPort
	stock    StockPort
	recorder *inventory.Recorder
	audit    AuditPort
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the stocktake service.
func NewService(repo RepositoryPort, stock StockPort, recorder *inventory.Recorder, audit AuditPort, logger *slog.Logger) *Service {
	if recorder == nil {
		recorder = inventory.NewRecorder(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, stock: stock, recorder: recorder, audit: audit, logger: logger, now: time.Now}
}

func lockOpen(ctx context.Context, tx TxRepository, id int64) (Count, error) {
	c, err := tx.LockCount(ctx, id)
	if err != nil {
		return Count{}, err
	}
	switch c.Status {
	case StatusInProgress:
		return c, nil
	case StatusCompleted:
		return Count{}, fmt.Errorf("%w: count %d", ErrAlreadyCompleted, id)
	}
	return Count{}, fmt.Errorf("%w: count %d is %s", ErrNotInProgress, id, c.Status)
}

// StartCount opens a new count session.
func (s *Service) StartCount(ctx context.Context, note string, actorID int64) (Count, error) {
	var out Count
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.InsertCount(ctx, Count{Status: StatusInProgress, Note: strings.TrimSpace(note), StartedBy: actorID})
		return err
	})
	if err != nil {
		return Count{}, err
	}
	s.recordAudit(ctx, actorID, "stocktake.started", out.ID, nil)
	return out, nil
}

// RecordCount stores the counted quantity of a product, replacing an
// earlier entry for the same product.
func (s *Service) RecordCount(ctx context.Context, countID, productID, qty int64) (CountItem, error) {
	if qty < 0 {
		return CountItem{}, ErrNegativeCount
	}
	var out CountItem
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := lockOpen(ctx, tx, countID); err != nil {
			return err
		}
		ok, err := tx.ProductExists(ctx, productID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %d", ErrProductNotFound, productID)
		}
		out, err = tx.UpsertItem(ctx, countID, productID, qty)
		return err
	})
	return out, err
}

// RemoveCountItem drops a product from an open count.
func (s *Service) RemoveCountItem(ctx context.Context, countID, productID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := lockOpen(ctx, tx, countID); err != nil {
			return err
		}
		return tx.DeleteItem(ctx, countID, productID)
	})
}

// Preview compares counted quantities with live stock without writing.
func (s *Service) Preview(ctx context.Context, countID int64) ([]Variance, error) {
	c, err := s.GetCount(ctx, countID)
	if err != nil {
		return nil, err
	}
	out := make([]Variance, 0, len(c.Items))
	for _, it := range c.Items {
		st, err := s.stock.GetStock(ctx, inventory.ProductRef(it.ProductID))
		if err != nil {
			return nil, err
		}
		out = append(out, Variance{
			ProductID:  it.ProductID,
			Code:       it.ProductCode,
			Name:       it.ProductName,
			CountedQty: it.CountedQty,
			SystemQty:  st.Qty,
			Delta:      it.CountedQty - st.Qty,
		})
	}
	return out, nil
}

// CompleteCount sets every counted product to its physical quantity. Each
// nonzero difference becomes a STOCKTAKE movement; the system quantity seen
// under lock and the applied delta are kept on the count item.
func (s *Service) CompleteCount(ctx context.Context, countID, actorID int64) (Count, error) {
	var out Count
	var entries []inventory.LedgerEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.AcquireAdvisoryLock(ctx, shared.CountLockKey(countID)); err != nil {
			return err
		}
		c, err := lockOpen(ctx, tx, countID)
		if err != nil {
			return err
		}
		if len(c.Items) == 0 {
			return ErrEmptyCount
		}
		sort.Slice(c.Items, func(i, j int) bool { return c.Items[i].ProductID < c.Items[j].ProductID })
		reason := "stocktake #" + strconv.FormatInt(c.ID, 10)
		for i, it := range c.Items {
			ref := inventory.ProductRef(it.ProductID)
			st, err := tx.LockStock(ctx, ref)
			if err != nil {
				return err
			}
			delta := it.CountedQty - st.Qty
			if err := tx.SetItemResult(ctx, it.ID, st.Qty, delta); err != nil {
				return err
			}
			system := st.Qty
			c.Items[i].SystemQty, c.Items[i].AppliedDelta = &system, &delta
			if delta == 0 {
				continue
			}
			entry, err := s.recorder.Apply(ctx, tx, inventory.MovementInput{
				Ref:       ref,
				Delta:     delta,
				EventType: inventory.EventStocktake,
				Reason:    reason,
				RefModule: "stocktake",
				RefID:     strconv.FormatInt(c.ID, 10),
				ActorID:   actorID,
			})
			if err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		at := s.now().UTC()
		c.Status, c.CompletedAt = StatusCompleted, &at
		if err := tx.UpdateCount(ctx, c); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return Count{}, err
	}
	s.recorder.Committed(entries...)
	s.logger.Info("stock count completed",
		slog.Int64("count_id", out.ID),
		slog.Int("items", len(out.Items)),
		slog.Int("adjusted", len(entries)))
	s.recordAudit(ctx, actorID, "stocktake.completed", out.ID, map[string]any{"items": len(out.Items), "adjusted": len(entries)})
	return out, nil
}

// CancelCount abandons an open count without touching stock.
func (s *Service) CancelCount(ctx context.Context, countID, actorID int64) (Count, error) {
	var out Count
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		c, err := tx.LockCount(ctx, countID)
		if err != nil {
			return err
		}
		if c.Status != StatusInProgress {
			return fmt.Errorf("%w: count %d is %s", ErrNotInProgress, countID, c.Status)
		}
		c.Status = StatusCancelled
		if err := tx.UpdateCount(ctx, c); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return Count{}, err
	}
	s.recordAudit(ctx, actorID, "stocktake.cancelled", out.ID, nil)
	return out, nil
}

// GetCount loads a count with its items.
func (s *Service) GetCount(ctx context.Context, id int64) (Count, error) {
	if id <= 0 {
		return Count{}, ErrCountNotFound
	}
	return s.repo.GetCount(ctx, id)
}

// ListCounts returns a page of counts.
func (s *Service) ListCounts(ctx context.Context, filter ListFilter) ([]Count, shared.Pagination, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, shared.Pagination{}, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, filter.Status)
	}
	filter.Page, filter.PerPage = shared.NormalizePage(filter.Page, filter.PerPage)
	counts, total, err := s.repo.ListCounts(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return counts, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, countID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "inventory_count", EntityID: strconv.FormatInt(countID, 10), Meta: meta}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
