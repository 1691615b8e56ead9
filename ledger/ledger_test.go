package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/uniformhq/entitlement-engine/eligibility"
	"github.com/uniformhq/entitlement-engine/ledger"
	"github.com/uniformhq/entitlement-engine/refs"
	"github.com/uniformhq/entitlement-engine/store/memory"
)

var day0 = time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)

func entry(emp refs.Ref, t ledger.EntryType, qty int, at time.Time, key string) ledger.Entry {
	return ledger.Entry{
		ID:             key,
		EmployeeID:     emp,
		Category:       eligibility.CategoryShirt,
		Quantity:       qty,
		Type:           t,
		EffectiveAt:    at,
		IdempotencyKey: key,
		CreatedAt:      at,
	}
}

func TestDuplicateIdempotencyKeyRejected(t *testing.T) {
	ctx := context.Background()
	led := ledger.New(memory.New())
	emp := refs.New()

	require.NoError(t, led.Append(ctx, entry(emp, ledger.EntryConsume, 1, day0, "k1")))

	err := led.Append(ctx, entry(emp, ledger.EntryConsume, 1, day0, "k1"))
	require.ErrorIs(t, err, ledger.ErrDuplicateIdempotencyKey)

	// The first write wins: only one entry recorded.
	available, err := led.Available(ctx, emp, eligibility.CategoryShirt, 5, day0)
	require.NoError(t, err)
	require.Equal(t, 4, available)
}

func TestBatchIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	led := ledger.New(memory.New())
	emp := refs.New()

	require.NoError(t, led.Append(ctx, entry(emp, ledger.EntryConsume, 1, day0, "dup")))

	batch := []ledger.Entry{
		entry(emp, ledger.EntryConsume, 1, day0.Add(time.Hour), "fresh"),
		entry(emp, ledger.EntryConsume, 1, day0.Add(2*time.Hour), "dup"),
	}
	require.ErrorIs(t, led.AppendBatch(ctx, batch), ledger.ErrDuplicateIdempotencyKey)

	// The fresh entry must not have landed either.
	available, err := led.Available(ctx, emp, eligibility.CategoryShirt, 5, day0)
	require.NoError(t, err)
	require.Equal(t, 4, available)
}

func TestAvailableIsEntitlementMinusConsumedPlusRestored(t *testing.T) {
	ctx := context.Background()
	led := ledger.New(memory.New())
	emp := refs.New()

	require.NoError(t, led.Append(ctx, entry(emp, ledger.EntryConsume, 3, day0.Add(time.Hour), "c1")))
	require.NoError(t, led.Append(ctx, entry(emp, ledger.EntryConsume, 1, day0.Add(2*time.Hour), "c2")))
	require.NoError(t, led.Append(ctx, entry(emp, ledger.EntryRestore, 1, day0.Add(3*time.Hour), "r1")))

	available, err := led.Available(ctx, emp, eligibility.CategoryShirt, 5, day0)
	require.NoError(t, err)
	require.Equal(t, 2, available) // 5 - 3 - 1 + 1
}

func TestAvailableClampsAtZero(t *testing.T) {
	ctx := context.Background()
	led := ledger.New(memory.New())
	emp := refs.New()

	// Over-consumption (entitlement shrank after a rule change) clamps
	// to zero rather than going negative.
	require.NoError(t, led.Append(ctx, entry(emp, ledger.EntryConsume, 4, day0.Add(time.Hour), "c1")))

	available, err := led.Available(ctx, emp, eligibility.CategoryShirt, 2, day0)
	require.NoError(t, err)
	require.Equal(t, 0, available)
}

func TestRestoreAfterPeriodRolloverCannotOverCredit(t *testing.T) {
	ctx := context.Background()
	led := ledger.New(memory.New())
	emp := refs.New()

	// GIVEN consumption in the old period
	require.NoError(t, led.Append(ctx, entry(emp, ledger.EntryConsume, 2, day0.Add(time.Hour), "c1")))

	// AND a period rollover
	newPeriod := day0.AddDate(0, 6, 0)

	// WHEN a return from the old order lands after the rollover
	require.NoError(t, led.Append(ctx, entry(emp, ledger.EntryRestore, 2, newPeriod.Add(time.Hour), "r1")))

	// THEN the new period's balance clamps at the entitlement ceiling
	available, err := led.Available(ctx, emp, eligibility.CategoryShirt, 5, newPeriod)
	require.NoError(t, err)
	require.Equal(t, 5, available)
}

func TestResetEntryReestablishesEntitlement(t *testing.T) {
	ctx := context.Background()
	led := ledger.New(memory.New())
	emp := refs.New()

	require.NoError(t, led.Append(ctx, entry(emp, ledger.EntryConsume, 3, day0.Add(time.Hour), "c1")))
	require.NoError(t, led.Append(ctx, entry(emp, ledger.EntryReset, 5, day0.Add(48*time.Hour), "reset1")))
	require.NoError(t, led.Append(ctx, entry(emp, ledger.EntryConsume, 1, day0.Add(72*time.Hour), "c2")))

	available, err := led.Available(ctx, emp, eligibility.CategoryShirt, 5, day0)
	require.NoError(t, err)
	require.Equal(t, 4, available)
}
