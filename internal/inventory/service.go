package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/kiosk-inventory/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetStock(ctx context.Context, ref StockRef) (Stock, error)
	ListEntries(ctx context.Context, filter StockCardFilter) ([]LedgerEntry, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates standalone ledger operations.
type Service struct {
	repo     RepositoryPort
	recorder *Recorder
	audit    AuditPort
	logger   *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, recorder *Recorder, audit AuditPort, logger *slog.Logger) *Service {
	if recorder == nil {
		recorder = NewRecorder(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, recorder: recorder, audit: audit, logger: logger}
}

// Recorder exposes the shared movement recorder.
func (s *Service) Recorder() *Recorder { return s.recorder }

// RecordMovement applies one movement in its own transaction.
func (s *Service) RecordMovement(ctx context.Context, in MovementInput) (LedgerEntry, error) {
	var entry LedgerEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = s.recorder.Apply(ctx, tx, in)
		return err
	})
	if err != nil {
		if errors.Is(err, shared.ErrInsufficientStock) {
			s.logger.Info("movement rejected", slog.String("ref", in.Ref.String()), slog.String("event_type", string(in.EventType)), slog.Any("error", err))
		}
		return LedgerEntry{}, err
	}
	s.recorder.Committed(entry)
	return entry, nil
}

// AdjustInput captures an administrative correction.
type AdjustInput struct {
	Ref     StockRef
	Delta   int64
	Reason  string
	ActorID int64
}

// Adjust records an ADJUSTMENT movement. It is the only sanctioned way to
// correct a counter outside the checkout, order and stocktake flows.
func (s *Service) Adjust(ctx context.Context, in AdjustInput) (LedgerEntry, error) {
	if strings.TrimSpace(in.Reason) == "" {
		return LedgerEntry{}, ErrReasonRequired
	}
	entry, err := s.RecordMovement(ctx, MovementInput{
		Ref:       in.Ref,
		Delta:     in.Delta,
		EventType: EventAdjustment,
		Reason:    in.Reason,
		RefModule: "adjustment",
		RefID:     uuid.NewString(),
		ActorID:   in.ActorID,
	})
	if err != nil {
		return LedgerEntry{}, err
	}
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  in.ActorID,
			Action:   "inventory.adjust",
			Entity:   string(in.Ref.Kind),
			EntityID: fmt.Sprint(in.Ref.ID),
			Meta:     map[string]any{"delta": in.Delta, "reason": in.Reason, "stock_after": entry.StockAfter},
		}); err != nil {
			s.logger.Warn("audit record failed", slog.String("ref", in.Ref.String()), slog.Any("error", err))
		}
	}
	return entry, nil
}

// StockCard lists ledger entries for one counter chronologically.
func (s *Service) StockCard(ctx context.Context, filter StockCardFilter) ([]LedgerEntry, error) {
	if !filter.Ref.Valid() {
		return nil, fmt.Errorf("%w: stock reference required", shared.ErrValidation)
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, fmt.Errorf("%w: range end before start", shared.ErrValidation)
	}
	if _, err := s.repo.GetStock(ctx, filter.Ref); err != nil {
		return nil, err
	}
	if filter.Limit <= 0 || filter.Limit > 1000 {
		filter.Limit = 500
	}
	return s.repo.ListEntries(ctx, filter)
}

// GetStock returns the live counter.
func (s *Service) GetStock(ctx context.Context, ref StockRef) (Stock, error) {
	if !ref.Valid() {
		return Stock{}, fmt.Errorf("%w: stock reference required", shared.ErrValidation)
	}
	return s.repo.GetStock(ctx, ref)
}

// DayRange expands a date pair into an inclusive [from, to] range.
func DayRange(from, to time.Time) (time.Time, time.Time) {
	if !to.IsZero() {
		to = to.Add(24*time.Hour - time.Nanosecond)
	}
	return from, to
}
