/*
Package memory is the in-memory store backing tests and development.

PURPOSE:
  One Store implements every consumer-side persistence contract in the
  engine (rule store, taxonomy, employees, ledger, orders, procurement,
  runs, reports, integrity source). Reads return deep copies so callers
  never alias internal state; writes take the store lock.

  Ledger entries are kept sorted by EffectiveAt with a binary-search
  insert, mirroring how the database-backed store orders its reads.

SEE ALSO:
  - store/mongo: the production implementation of the same contracts
*/
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/uniformhq/entitlement-engine/eligibility"
	"github.com/uniformhq/entitlement-engine/integrity"
	"github.com/uniformhq/entitlement-engine/ledger"
	"github.com/uniformhq/entitlement-engine/orders"
	"github.com/uniformhq/entitlement-engine/procurement"
	"github.com/uniformhq/entitlement-engine/refs"
	"github.com/uniformhq/entitlement-engine/renewal"
)

type Store struct {
	mu sync.RWMutex

	employees     map[string]eligibility.Employee
	companies     map[string]eligibility.Company
	rules         map[string]eligibility.Rule
	subcategories map[string]eligibility.Subcategory
	categories    map[string]eligibility.CategoryRecord

	entries     map[entryKey][]ledger.Entry
	idempotency map[string]bool

	orders         map[string]orders.Order
	purchaseOrders map[string][]procurement.PurchaseOrder
	goodsReceipts  map[string][]procurement.GoodsReceipt

	runs           map[string]renewal.Run
	categoryResets map[string]bool
	reports        map[string]integrity.Report
}

type entryKey struct {
	Employee string
	Category eligibility.Category
}

func New() *Store {
	return &Store{
		employees:      make(map[string]eligibility.Employee),
		companies:      make(map[string]eligibility.Company),
		rules:          make(map[string]eligibility.Rule),
		subcategories:  make(map[string]eligibility.Subcategory),
		categories:     make(map[string]eligibility.CategoryRecord),
		entries:        make(map[entryKey][]ledger.Entry),
		idempotency:    make(map[string]bool),
		orders:         make(map[string]orders.Order),
		purchaseOrders: make(map[string][]procurement.PurchaseOrder),
		goodsReceipts:  make(map[string][]procurement.GoodsReceipt),
		runs:           make(map[string]renewal.Run),
		categoryResets: make(map[string]bool),
		reports:        make(map[string]integrity.Report),
	}
}

// =============================================================================
// LEDGER - ledger.Store
// =============================================================================

func (s *Store) AppendEntry(_ context.Context, e ledger.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.IdempotencyKey != "" && s.idempotency[e.IdempotencyKey] {
		return ledger.ErrDuplicateIdempotencyKey
	}
	s.appendLocked(e)
	return nil
}

func (s *Store) AppendEntries(_ context.Context, entries []ledger.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Check every key first so the batch is all-or-nothing.
	for _, e := range entries {
		if e.IdempotencyKey != "" && s.idempotency[e.IdempotencyKey] {
			return ledger.ErrDuplicateIdempotencyKey
		}
	}
	for _, e := range entries {
		s.appendLocked(e)
	}
	return nil
}

func (s *Store) appendLocked(e ledger.Entry) {
	k := entryKey{Employee: e.EmployeeID.Canonical(), Category: e.Category}
	list := s.entries[k]

	// Binary search for the insertion point; entries stay chronological.
	i := sort.Search(len(list), func(i int) bool {
		return list[i].EffectiveAt.After(e.EffectiveAt)
	})
	list = append(list, ledger.Entry{})
	copy(list[i+1:], list[i:])
	list[i] = e
	s.entries[k] = list

	if e.IdempotencyKey != "" {
		s.idempotency[e.IdempotencyKey] = true
	}
}

func (s *Store) EntryKeyExists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idempotency[key], nil
}

func (s *Store) EntriesSince(_ context.Context, employeeID refs.Ref, category eligibility.Category, since time.Time) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.entries[entryKey{Employee: employeeID.Canonical(), Category: category}]
	var out []ledger.Entry
	for _, e := range list {
		if !e.EffectiveAt.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}
