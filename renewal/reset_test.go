package renewal_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/uniformhq/entitlement-engine/eligibility"
	"github.com/uniformhq/entitlement-engine/orders"
	"github.com/uniformhq/entitlement-engine/refs"
	"github.com/uniformhq/entitlement-engine/renewal"
	"github.com/uniformhq/entitlement-engine/store/memory"
)

func newResetFixture(t *testing.T) (*fixture, *renewal.DestructiveReset) {
	t.Helper()
	f := newFixture(t)
	reset := &renewal.DestructiveReset{
		Employees:  f.store,
		Orders:     f.store,
		Aggregator: eligibility.NewAggregator(f.store, f.store, nil),
		Log:        zerolog.Nop(),
	}
	return f, reset
}

func seedOrder(t *testing.T, store *memory.Store, emp eligibility.Employee) {
	t.Helper()
	require.NoError(t, store.CreateOrder(context.Background(), orders.Order{
		ID:         refs.New(),
		Number:     "ORD-TEST01",
		EmployeeID: emp.ID,
		CompanyID:  emp.CompanyID,
		Status:     orders.StatusPendingSiteAdminApproval,
		PlacedAt:   time.Now(),
	}))
}

func TestDestructiveResetPurgesOrdersAndRecomputes(t *testing.T) {
	f, reset := newResetFixture(t)
	f.addRule("Shirt", 3, 6, eligibility.UnitMonths)
	emp := f.addEmployee(date(2025, time.March, 1))
	emp.EligibilityResetDates = map[eligibility.Category]time.Time{
		eligibility.CategoryShirt: date(2025, time.September, 1),
	}
	f.store.PutEmployee(emp)
	seedOrder(t, f.store, emp)
	seedOrder(t, f.store, emp)

	summary, err := reset.Run(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 2, summary.OrdersDeleted)
	require.Equal(t, 1, summary.EmployeesReset)

	got, err := f.store.EmployeeByRef(context.Background(), emp.ID)
	require.NoError(t, err)
	require.Equal(t, 3, got.Eligibility[eligibility.CategoryShirt])
	require.Equal(t, 0, got.Eligibility[eligibility.CategoryJacket])
	require.Equal(t, 12, got.CycleDuration[eligibility.CategoryJacket])

	// eligibilityResetDates is cleared to an EMPTY map unconditionally.
	require.NotNil(t, got.EligibilityResetDates)
	require.Empty(t, got.EligibilityResetDates)

	list, err := f.store.ListOrders(context.Background())
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestCancellationDuringConfirmDelayAbortsBeforePurge(t *testing.T) {
	f, reset := newResetFixture(t)
	emp := f.addEmployee(date(2025, time.March, 1))
	seedOrder(t, f.store, emp)
	reset.ConfirmDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := reset.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	// Nothing was purged.
	list, err := f.store.ListOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
}
