/*
Package ledger is the append-only consumption log for eligibility.

PURPOSE:
  Every change to an employee's remaining allowance is an immutable
  Entry: orders consume, cancellations and returns restore, period
  boundaries reset. Available balance is always computed by replaying
  entries; there is no separate balance field to drift out of sync.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: no update, no delete. Corrections are new entries.
  2. IDEMPOTENT: duplicate idempotency keys are rejected, so retried
     writes are safe.
  3. CLAMPED: available balance never leaves [0, entitlement]; a restore
     landing after the period rolled over cannot over-credit the new
     period.

SEE ALSO:
  - orders:  appends consume/restore entries around order transitions
  - renewal: appends reset entries on period boundaries
*/
package ledger

import (
	"context"
	"time"

	"github.com/uniformhq/entitlement-engine/eligibility"
	"github.com/uniformhq/entitlement-engine/refs"
)

// =============================================================================
// ENTRY - Immutable ledger record
// =============================================================================

type EntryType string

const (
	EntryConsume EntryType = "consume" // order placed
	EntryRestore EntryType = "restore" // order cancelled / returned
	EntryReset   EntryType = "reset"   // renewal period boundary
)

type Entry struct {
	ID         string
	EmployeeID refs.Ref
	Category   eligibility.Category
	Quantity   int // always positive; Type carries the sign
	Type       EntryType

	// OrderID links consume/restore entries back to their order.
	OrderID refs.Ref

	EffectiveAt    time.Time
	Reason         string
	IdempotencyKey string

	CreatedAt time.Time
}

// =============================================================================
// STORE - Persistence contract, implemented by store/memory and store/mongo
// =============================================================================

// Store persists entries. APPEND-ONLY: implementations expose no update
// or delete.
type Store interface {
	// AppendEntry persists one entry. Implementations must reject a
	// duplicate idempotency key with ErrDuplicateIdempotencyKey.
	AppendEntry(ctx context.Context, e Entry) error

	// AppendEntries persists a batch atomically: either all land or none.
	AppendEntries(ctx context.Context, entries []Entry) error

	// EntryKeyExists checks an idempotency key.
	EntryKeyExists(ctx context.Context, key string) (bool, error)

	// EntriesSince returns entries for employee+category with
	// EffectiveAt >= since, chronological.
	EntriesSince(ctx context.Context, employeeID refs.Ref, category eligibility.Category, since time.Time) ([]Entry, error)
}

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	store Store
}

func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// Append writes one entry, enforcing idempotency before the store write
// as well (the store's uniqueness guarantee is the backstop).
func (l *Ledger) Append(ctx context.Context, e Entry) error {
	if e.IdempotencyKey != "" {
		exists, err := l.store.EntryKeyExists(ctx, e.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateIdempotencyKey
		}
	}
	return l.store.AppendEntry(ctx, e)
}

// AppendBatch writes a batch atomically after checking every key.
func (l *Ledger) AppendBatch(ctx context.Context, entries []Entry) error {
	for _, e := range entries {
		if e.IdempotencyKey == "" {
			continue
		}
		exists, err := l.store.EntryKeyExists(ctx, e.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateIdempotencyKey
		}
	}
	return l.store.AppendEntries(ctx, entries)
}

// Available computes the remaining allowance for one employee-category:
// entitlement minus consumption plus restores since periodStart, clamped
// to [0, entitlement].
func (l *Ledger) Available(ctx context.Context, employeeID refs.Ref, category eligibility.Category, entitlement int, periodStart time.Time) (int, error) {
	entries, err := l.store.EntriesSince(ctx, employeeID, category, periodStart)
	if err != nil {
		return 0, err
	}

	available := entitlement
	for _, e := range entries {
		switch e.Type {
		case EntryConsume:
			available -= e.Quantity
		case EntryRestore:
			available += e.Quantity
		case EntryReset:
			// A reset inside the window re-establishes the entitlement.
			available = entitlement
		}
	}

	if available < 0 {
		available = 0
	}
	if available > entitlement {
		available = entitlement
	}
	return available, nil
}

// Entries exposes the raw replay window for diagnostics and the API.
func (l *Ledger) Entries(ctx context.Context, employeeID refs.Ref, category eligibility.Category, since time.Time) ([]Entry, error) {
	return l.store.EntriesSince(ctx, employeeID, category, since)
}
