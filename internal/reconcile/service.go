package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/odyssey-erp/kiosk-inventory/internal/checkout"
	"github.com/odyssey-erp/kiosk-inventory/internal/inventory"
	"github.com/odyssey-erp/kiosk-inventory/internal/shared"
)

// LedgerPort is the ledger view reconciliation reads and corrects.
type LedgerPort interface {
	WithTx(ctx context.Context, fn func(context.Context, inventory.TxRepository) error) error
	GetStock(ctx context.Context, ref inventory.StockRef) (inventory.Stock, error)
	ListEntries(ctx context.Context, filter inventory.StockCardFilter) ([]inventory.LedgerEntry, error)
}

// RepositoryPort provides the cross-check and bulk drift queries.
type RepositoryPort interface {
	TransactionsReferencing(ctx context.Context, ref inventory.StockRef) ([]checkout.Transaction, error)
	DriftRows(ctx context.Context) ([]DriftItem, int, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// DriftGauge receives the size of each drift scan.
type DriftGauge interface {
	SetDriftItems(n int)
}

// ErrNoteRequired is returned when a correction carries no explanation.
var ErrNoteRequired = fmt.Errorf("%w: reconcile: note required", shared.ErrValidation)

// Service audits counters against the ledger.
type Service struct {
	ledger   LedgerPort
	repo     RepositoryPort
	recorder *inventory.Recorder
	cache    *Cache
	gauge    DriftGauge
	audit    AuditPort
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds Service. cache, gauge and audit may be nil.
func NewService(ledger LedgerPort, repo RepositoryPort, recorder *inventory.Recorder, cache *Cache, gauge DriftGauge, audit AuditPort, logger *slog.Logger) *Service {
	if recorder == nil {
		recorder = inventory.NewRecorder(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		ledger:   ledger,
		repo:     repo,
		recorder: recorder,
		cache:    cache,
		gauge:    gauge,
		audit:    audit,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// AuditProduct replays the ledger of one counter and compares it with the
// live stock and with the checkouts that reference it. Read only.
func (s *Service) AuditProduct(ctx context.Context, ref inventory.StockRef) (Report, error) {
	if !ref.Valid() {
		return Report{}, fmt.Errorf("%w: stock reference required", shared.ErrValidation)
	}
	report, err, _ := singleflightAudit(ctx, ref.String(), func(ctx context.Context) (Report, error) {
		return s.buildReport(ctx, ref)
	})
	return report, err
}

func (s *Service) buildReport(ctx context.Context, ref inventory.StockRef) (Report, error) {
	stock, err := s.ledger.GetStock(ctx, ref)
	if err != nil {
		return Report{}, err
	}
	entries, err := s.ledger.ListEntries(ctx, inventory.StockCardFilter{Ref: ref})
	if err != nil {
		return Report{}, fmt.Errorf("reconcile: list ledger %s: %w", ref, err)
	}
	txns, err := s.repo.TransactionsReferencing(ctx, ref)
	if err != nil {
		return Report{}, fmt.Errorf("reconcile: list transactions %s: %w", ref, err)
	}

	timeline, sum := replay(entries)
	report := Report{
		Ref:         ref,
		Code:        stock.Code,
		Name:        stock.Name,
		LedgerSum:   sum,
		LiveStock:   stock.Qty,
		Drift:       stock.Qty - sum,
		Timeline:    timeline,
		Findings:    crossCheck(ref, txns, entries),
		GeneratedAt: s.now(),
	}
	if !report.Consistent() {
		s.logger.Warn("ledger inconsistency",
			slog.String("ref", ref.String()),
			slog.Int64("drift", report.Drift),
			slog.Int("findings", len(report.Findings)))
	}
	return report, nil
}

// replay walks entries in append order. A row's gap is the counter change
// between the previous row's stock_after and this row's starting point.
func replay(entries []inventory.LedgerEntry) ([]TimelineRow, int64) {
	rows := make([]TimelineRow, 0, len(entries))
	var running, prevAfter int64
	for _, e := range entries {
		running += e.Delta
		rows = append(rows, TimelineRow{
			EntryID:      e.ID,
			CreatedAt:    e.CreatedAt,
			EventType:    e.EventType,
			Delta:        e.Delta,
			RunningTotal: running,
			StockAfter:   e.StockAfter,
			Gap:          (e.StockAfter - e.Delta) - prevAfter,
			Reason:       e.Reason,
			RefModule:    e.RefModule,
			RefID:        e.RefID,
		})
		prevAfter = e.StockAfter
	}
	return rows, running
}

const checkoutModule = "checkout"

func crossCheck(ref inventory.StockRef, txns []checkout.Transaction, entries []inventory.LedgerEntry) []Finding {
	recorded := make(map[string]int64)
	var codes []string
	for _, e := range entries {
		if e.EventType != inventory.EventCheckout || e.RefModule != checkoutModule {
			continue
		}
		if _, ok := recorded[e.RefID]; !ok {
			codes = append(codes, e.RefID)
		}
		recorded[e.RefID] += e.Delta
	}

	findings := []Finding{}
	matched := make(map[string]struct{}, len(txns))
	for _, txn := range txns {
		code := txn.Code.String()
		matched[code] = struct{}{}
		expected := txn.StockDelta(ref)
		got, ok := recorded[code]
		switch {
		case expected == 0 && !ok:
		case !ok:
			findings = append(findings, Finding{Kind: FindingMissingLedger, TransactionID: txn.ID, TransactionCode: code, Expected: expected})
		case got != expected:
			findings = append(findings, Finding{Kind: FindingQuantityMismatch, TransactionID: txn.ID, TransactionCode: code, Expected: expected, Recorded: got})
		}
	}
	for _, code := range codes {
		if _, ok := matched[code]; ok {
			continue
		}
		findings = append(findings, Finding{Kind: FindingOrphanLedger, TransactionCode: code, Recorded: recorded[code]})
	}
	return findings
}

const driftCacheKey = "reconcile:drift"

// ScanDrift lists every counter that differs from its ledger sum. The
// summary is served from cache unless refresh is set.
func (s *Service) ScanDrift(ctx context.Context, refresh bool) (ScanSummary, error) {
	if refresh {
		if err := s.cache.Bump(ctx); err != nil {
			s.logger.Warn("drift cache bump failed", slog.Any("error", err))
		}
	}
	load := func(ctx context.Context) (any, error) {
		items, scanned, err := s.repo.DriftRows(ctx)
		if err != nil {
			return nil, fmt.Errorf("reconcile: scan drift: %w", err)
		}
		if items == nil {
			items = []DriftItem{}
		}
		return ScanSummary{Scanned: scanned, Items: items, GeneratedAt: s.now()}, nil
	}

	var summary ScanSummary
	key, err := s.cache.BuildKey(ctx, driftCacheKey)
	if err == nil {
		err = s.cache.FetchJSON(ctx, key, &summary, load)
	}
	if err != nil {
		s.logger.Warn("drift cache unavailable", slog.Any("error", err))
		value, loadErr := load(ctx)
		if loadErr != nil {
			return ScanSummary{}, loadErr
		}
		summary = value.(ScanSummary)
	}
	if s.gauge != nil {
		s.gauge.SetDriftItems(len(summary.Items))
	}
	return summary, nil
}

// CorrectDrift records the difference between the live counter and its
// ledger as an ADJUSTMENT row without moving the counter. It is an explicit
// operator action and never runs on its own.
func (s *Service) CorrectDrift(ctx context.Context, ref inventory.StockRef, actorID int64, note string) (Correction, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return Correction{}, ErrNoteRequired
	}
	if !ref.Valid() {
		return Correction{}, fmt.Errorf("%w: stock reference required", shared.ErrValidation)
	}

	var (
		entry inventory.LedgerEntry
		drift int64
	)
	err := s.ledger.WithTx(ctx, func(ctx context.Context, tx inventory.TxRepository) error {
		var err error
		entry, drift, err = s.recorder.AcknowledgeDrift(ctx, tx, ref, "drift correction: "+note, actorID)
		return err
	})
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Correction{}, err
		}
		return Correction{}, fmt.Errorf("reconcile: correct %s: %w", ref, err)
	}
	result := Correction{Ref: ref, Drift: drift}
	if drift == 0 {
		s.logger.Info("no drift to correct", slog.String("ref", ref.String()))
		return result, nil
	}
	result.Entry = &entry
	s.recorder.Committed(entry)
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("drift cache bump failed", slog.Any("error", err))
	}
	s.logger.Info("drift corrected",
		slog.String("ref", ref.String()),
		slog.Int64("drift", drift),
		slog.Int64("actor_id", actorID))
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "reconcile.drift_corrected",
			Entity:   string(ref.Kind),
			EntityID: fmt.Sprint(ref.ID),
			Meta:     map[string]any{"drift": drift, "note": note, "entry_id": entry.ID},
		}); err != nil {
			s.logger.Warn("audit record failed", slog.String("ref", ref.String()), slog.Any("error", err))
		}
	}
	return result, nil
}
