// Package reconcile replays the ledger against live counters and surfaces
// drift for explicit operator correction.
package reconcile

import (
	"time"

	"github.com/odyssey-erp/kiosk-inventory/internal/inventory"
)

// TimelineRow is one replayed ledger entry.
type TimelineRow struct {
	EntryID      int64               `json:"entry_id"`
	CreatedAt    time.Time           `json:"created_at"`
	EventType    inventory.EventType `json:"event_type"`
	Delta        int64               `json:"delta"`
	RunningTotal int64               `json:"running_total"`
	StockAfter   int64               `json:"stock_after"`
	// Gap is the counter change between the previous entry and this one
	// that no ledger row accounts for.
	Gap       int64  `json:"gap"`
	Reason    string `json:"reason"`
	RefModule string `json:"ref_module"`
	RefID     string `json:"ref_id"`
}

// Finding kinds raised by the transaction cross-check.
const (
	FindingMissingLedger    = "missing_ledger"
	FindingQuantityMismatch = "quantity_mismatch"
	FindingOrphanLedger     = "orphan_ledger"
)

// Finding is a transaction whose item list disagrees with the ledger.
type Finding struct {
	Kind            string `json:"kind"`
	TransactionID   int64  `json:"transaction_id,omitempty"`
	TransactionCode string `json:"transaction_code"`
	Expected        int64  `json:"expected"`
	Recorded        int64  `json:"recorded"`
}

// Report is the reconciliation of one counter.
type Report struct {
	Ref         inventory.StockRef `json:"ref"`
	Code        string             `json:"code"`
	Name        string             `json:"name"`
	LedgerSum   int64              `json:"ledger_sum"`
	LiveStock   int64              `json:"live_stock"`
	Drift       int64              `json:"drift"`
	Timeline    []TimelineRow      `json:"timeline"`
	Findings    []Finding          `json:"findings"`
	GeneratedAt time.Time          `json:"generated_at"`
}

// Consistent reports whether the counter matches its ledger and every
// transaction is reflected in it.
func (r Report) Consistent() bool {
	return r.Drift == 0 && len(r.Findings) == 0
}

// DriftItem is a counter that differs from its ledger sum.
type DriftItem struct {
	Ref       inventory.StockRef `json:"ref"`
	Code      string             `json:"code"`
	Name      string             `json:"name"`
	LiveStock int64              `json:"live_stock"`
	LedgerSum int64              `json:"ledger_sum"`
	Drift     int64              `json:"drift"`
}

// ScanSummary lists every drifting counter.
type ScanSummary struct {
	Scanned     int         `json:"scanned"`
	Items       []DriftItem `json:"items"`
	GeneratedAt time.Time   `json:"generated_at"`
}

// Correction is the outcome of CorrectDrift. Entry is nil when there was
// nothing to correct.
type Correction struct {
	Ref   inventory.StockRef     `json:"ref"`
	Drift int64                  `json:"drift"`
	Entry *inventory.LedgerEntry `json:"entry,omitempty"`
}
