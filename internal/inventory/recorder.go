package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Recorder applies movements through a caller-supplied transaction so that
// composite operations (checkout, receipt, stocktake) commit ledger rows and
// counters together with their own records.
type Recorder struct {
	observer Observer
}

// NewRecorder builds a Recorder. A nil observer discards events.
func NewRecorder(observer Observer) *Recorder {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Recorder{observer: observer}
}

// Validate checks a movement without touching storage.
func Validate(in MovementInput) error {
	if !in.Ref.Valid() {
		return fmt.Errorf("%w: stock reference %s", ErrStockNotFound, in.Ref)
	}
	if !in.EventType.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidEventType, in.EventType)
	}
	if in.Delta == 0 {
		return fmt.Errorf("%w: delta must be non zero", ErrInvalidQuantity)
	}
	if err := in.EventType.checkSign(in.Delta); err != nil {
		return err
	}
	if in.EventType == EventAdjustment && strings.TrimSpace(in.Reason) == "" {
		return ErrReasonRequired
	}
	return nil
}

// Apply locks the counter, checks the floor, appends the ledger row and
// updates the counter.
func (r *Recorder) Apply(ctx context.Context, tx TxRepository, in MovementInput) (LedgerEntry, error) {
	entries, err := r.ApplyBatch(ctx, tx, []MovementInput{in})
	if err != nil {
		var batch *ShortageError
		if errors.As(err, &batch) && len(batch.Shortages) == 1 {
			return LedgerEntry{}, &batch.Shortages[0]
		}
		return LedgerEntry{}, err
	}
	return entries[0], nil
}

// ApplyBatch applies several movements against distinct counters. Rows are
// locked in ascending reference order. Every floor violation is collected
// before anything is written; on any shortfall nothing is applied and a
// *ShortageError lists them all. Entries are returned in input order.
func (r *Recorder) ApplyBatch(ctx context.Context, tx TxRepository, inputs []MovementInput) ([]LedgerEntry, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	seen := make(map[StockRef]struct{}, len(inputs))
	for _, in := range inputs {
		if err := Validate(in); err != nil {
			r.observer.MovementRejected(MovementRejectedEvent{Ref: in.Ref, EventType: in.EventType, Reason: RejectInvalidMovement})
			return nil, err
		}
		if _, dup := seen[in.Ref]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRef, in.Ref)
		}
		seen[in.Ref] = struct{}{}
	}

	order := make([]int, len(inputs))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return inputs[order[a]].Ref.Less(inputs[order[b]].Ref)
	})

	stocks := make([]Stock, len(inputs))
	var shortages []InsufficientStockError
	for _, idx := range order {
		in := inputs[idx]
		stock, err := tx.LockStock(ctx, in.Ref)
		if err != nil {
			return nil, err
		}
		stocks[idx] = stock
		if in.EventType.EnforcesFloor() && stock.Qty+in.Delta < 0 {
			shortages = append(shortages, InsufficientStockError{
				Ref:       in.Ref,
				Code:      stock.Code,
				Name:      stock.Name,
				Available: stock.Qty,
				Requested: -in.Delta,
			})
		}
	}
	if len(shortages) > 0 {
		for _, s := range shortages {
			r.observer.MovementRejected(MovementRejectedEvent{Ref: s.Ref, EventType: EventCheckout, Reason: RejectInsufficientStock})
		}
		return nil, &ShortageError{Shortages: shortages}
	}

	entries := make([]LedgerEntry, len(inputs))
	for _, idx := range order {
		in := inputs[idx]
		after := stocks[idx].Qty + in.Delta
		entry, err := tx.InsertEntry(ctx, LedgerEntry{
			Ref:        in.Ref,
			Delta:      in.Delta,
			EventType:  in.EventType,
			Reason:     in.Reason,
			RefModule:  in.RefModule,
			RefID:      in.RefID,
			StockAfter: after,
			ActorID:    in.ActorID,
		})
		if err != nil {
			return nil, fmt.Errorf("inventory: append ledger %s: %w", in.Ref, err)
		}
		if err := tx.SetStock(ctx, in.Ref, after); err != nil {
			return nil, fmt.Errorf("inventory: update counter %s: %w", in.Ref, err)
		}
		entries[idx] = entry
	}
	return entries, nil
}

// AcknowledgeDrift appends an ADJUSTMENT row equal to the difference between
// the live counter and the ledger sum, leaving the counter untouched. It
// returns a zero entry and zero drift when the two already agree.
func (r *Recorder) AcknowledgeDrift(ctx context.Context, tx TxRepository, ref StockRef, reason string, actorID int64) (LedgerEntry, int64, error) {
	if !ref.Valid() {
		return LedgerEntry{}, 0, fmt.Errorf("%w: stock reference %s", ErrStockNotFound, ref)
	}
	if strings.TrimSpace(reason) == "" {
		return LedgerEntry{}, 0, ErrReasonRequired
	}
	stock, err := tx.LockStock(ctx, ref)
	if err != nil {
		return LedgerEntry{}, 0, err
	}
	sum, err := tx.SumEntries(ctx, ref)
	if err != nil {
		return LedgerEntry{}, 0, err
	}
	drift := stock.Qty - sum
	if drift == 0 {
		return LedgerEntry{}, 0, nil
	}
	entry, err := tx.InsertEntry(ctx, LedgerEntry{
		Ref:        ref,
		Delta:      drift,
		EventType:  EventAdjustment,
		Reason:     reason,
		RefModule:  "reconcile",
		RefID:      ref.String(),
		StockAfter: stock.Qty,
		ActorID:    actorID,
	})
	if err != nil {
		return LedgerEntry{}, 0, fmt.Errorf("inventory: append drift correction %s: %w", ref, err)
	}
	return entry, drift, nil
}

// Committed reports entries whose transaction has committed.
func (r *Recorder) Committed(entries ...LedgerEntry) {
	for _, evt := range recordedEvents(entries) {
		r.observer.MovementRecorded(evt)
	}
}
