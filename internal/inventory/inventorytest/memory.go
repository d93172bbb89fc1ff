// Package inventorytest provides an in-memory ledger store for tests of the
// packages that record movements.
package inventorytest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/odyssey-erp/kiosk-inventory/internal/inventory"
)

// Store keeps counters and ledger rows in memory. A transaction holds the
// store mutex for its whole callback, which stands in for row locks.
type Store struct {
	mu      sync.Mutex
	stocks  map[inventory.StockRef]inventory.Stock
	entries []inventory.LedgerEntry
	nextID  int64
	Now     func() time.Time
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		stocks: make(map[inventory.StockRef]inventory.Stock),
		Now:    func() time.Time { return time.Now().UTC() },
	}
}

// Seed registers a counter with an opening balance backed by an INITIAL row.
func (s *Store) Seed(ref inventory.StockRef, code string, qty int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stocks[ref] = inventory.Stock{Ref: ref, Code: code, Name: code, Qty: qty, UpdatedAt: s.Now()}
	if qty != 0 {
		s.appendLocked(inventory.LedgerEntry{Ref: ref, Delta: qty, EventType: inventory.EventInitial, StockAfter: qty})
	}
}

// SetMinStock changes the reorder threshold of a seeded counter.
func (s *Store) SetMinStock(ref inventory.StockRef, min int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stocks[ref]
	st.MinStock = min
	s.stocks[ref] = st
}

// Tamper overwrites a counter without a ledger row, simulating an
// out-of-band write.
func (s *Store) Tamper(ref inventory.StockRef, qty int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stocks[ref]
	st.Qty = qty
	s.stocks[ref] = st
}

// Qty returns the live counter.
func (s *Store) Qty(ref inventory.StockRef) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stocks[ref].Qty
}

// Sum returns the ledger total for ref.
func (s *Store) Sum(ref inventory.StockRef) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sumLocked(ref)
}

// Entries returns every ledger row for ref in append order.
func (s *Store) Entries(ref inventory.StockRef) []inventory.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []inventory.LedgerEntry
	for _, e := range s.entries {
		if e.Ref == ref {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of ledger rows.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Refs lists every known counter, products first.
func (s *Store) Refs() []inventory.StockRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	refs := make([]inventory.StockRef, 0, len(s.stocks))
	for ref := range s.stocks {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Less(refs[j]) })
	return refs
}

// Tx runs fn with exclusive access. When fn fails every change it made to
// the store is discarded.
func (s *Store) Tx(ctx context.Context, fn func(context.Context, *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stocks := make(map[inventory.StockRef]inventory.Stock, len(s.stocks))
	for k, v := range s.stocks {
		stocks[k] = v
	}
	entries, nextID := len(s.entries), s.nextID
	if err := fn(ctx, &Tx{s: s}); err != nil {
		s.stocks = stocks
		s.entries = s.entries[:entries]
		s.nextID = nextID
		return err
	}
	return nil
}

// WithTx satisfies inventory.RepositoryPort.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, inventory.TxRepository) error) error {
	return s.Tx(ctx, func(ctx context.Context, tx *Tx) error {
		return fn(ctx, tx)
	})
}

// GetStock satisfies inventory.RepositoryPort.
func (s *Store) GetStock(_ context.Context, ref inventory.StockRef) (inventory.Stock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stocks[ref]
	if !ok {
		return inventory.Stock{}, fmt.Errorf("%w: %s", inventory.ErrStockNotFound, ref)
	}
	return st, nil
}

// SumEntries totals the ledger for ref.
func (s *Store) SumEntries(_ context.Context, ref inventory.StockRef) (int64, error) {
	return s.Sum(ref), nil
}

// ListEntries satisfies inventory.RepositoryPort.
func (s *Store) ListEntries(_ context.Context, filter inventory.StockCardFilter) ([]inventory.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []inventory.LedgerEntry
	for _, e := range s.entries {
		if e.Ref != filter.Ref {
			continue
		}
		if !filter.From.IsZero() && e.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && e.CreatedAt.After(filter.To) {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *Store) appendLocked(e inventory.LedgerEntry) inventory.LedgerEntry {
	s.nextID++
	e.ID = s.nextID
	e.CreatedAt = s.Now()
	s.entries = append(s.entries, e)
	return e
}

func (s *Store) sumLocked(ref inventory.StockRef) int64 {
	var sum int64
	for _, e := range s.entries {
		if e.Ref == ref {
			sum += e.Delta
		}
	}
	return sum
}

// Tx is the transactional view handed to callbacks. The store mutex is
// already held.
type Tx struct {
	s *Store
}

func (t *Tx) LockStock(_ context.Context, ref inventory.StockRef) (inventory.Stock, error) {
	st, ok := t.s.stocks[ref]
	if !ok {
		return inventory.Stock{}, fmt.Errorf("%w: %s", inventory.ErrStockNotFound, ref)
	}
	return st, nil
}

func (t *Tx) SetStock(_ context.Context, ref inventory.StockRef, qty int64) error {
	st, ok := t.s.stocks[ref]
	if !ok {
		return fmt.Errorf("%w: %s", inventory.ErrStockNotFound, ref)
	}
	st.Qty = qty
	st.UpdatedAt = t.s.Now()
	t.s.stocks[ref] = st
	return nil
}

func (t *Tx) InsertEntry(_ context.Context, e inventory.LedgerEntry) (inventory.LedgerEntry, error) {
	return t.s.appendLocked(e), nil
}

func (t *Tx) SumEntries(_ context.Context, ref inventory.StockRef) (int64, error) {
	return t.s.sumLocked(ref), nil
}

// Peek reads a counter from inside a transaction without locking.
func (t *Tx) Peek(ref inventory.StockRef) (inventory.Stock, bool) {
	st, ok := t.s.stocks[ref]
	return st, ok
}

// Register creates a zero counter for a row inserted inside the transaction.
func (t *Tx) Register(ref inventory.StockRef, code, name string, minStock int64) {
	t.s.stocks[ref] = inventory.Stock{Ref: ref, Code: code, Name: name, MinStock: minStock, UpdatedAt: t.s.Now()}
}
