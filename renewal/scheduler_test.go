package renewal_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/uniformhq/entitlement-engine/eligibility"
	"github.com/uniformhq/entitlement-engine/ledger"
	"github.com/uniformhq/entitlement-engine/refs"
	"github.com/uniformhq/entitlement-engine/renewal"
	"github.com/uniformhq/entitlement-engine/store/memory"
)

type fixture struct {
	store     *memory.Store
	scheduler *renewal.Scheduler
	company   refs.Ref
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	company := refs.New()
	store.PutCompany(eligibility.Company{ID: company, Name: "Horizon Air"})

	f := &fixture{
		store:   store,
		company: company,
		now:     date(2025, time.October, 1),
	}
	agg := eligibility.NewAggregator(store, store, nil)
	f.scheduler = renewal.NewScheduler(store, store, agg, ledger.New(store), ledger.NewEntityLock(), zerolog.Nop())
	f.scheduler.Workers = 2
	f.scheduler.Now = func() time.Time { return f.now }
	return f
}

func (f *fixture) addRule(subcategory string, qty, freq int, unit eligibility.CadenceUnit) {
	f.store.PutRule(eligibility.Rule{
		ID:               refs.New(),
		CompanyID:        f.company,
		Designation:      "Pilot",
		Gender:           eligibility.GenderUnisex,
		Subcategory:      subcategory,
		Quantity:         qty,
		RenewalFrequency: freq,
		RenewalUnit:      unit,
		Status:           eligibility.RuleActive,
		UpdatedAt:        date(2024, time.January, 1),
	})
}

func (f *fixture) addEmployee(joined time.Time) eligibility.Employee {
	emp := eligibility.Employee{
		ID:          refs.New(),
		CompanyID:   f.company,
		Designation: "Pilot",
		Gender:      eligibility.GenderMale,
		Active:      true,
		JoinedAt:    joined,
	}
	f.store.PutEmployee(emp)
	return emp
}

func TestRunOnceResetsDueCategories(t *testing.T) {
	f := newFixture(t)
	f.addRule("Shirt", 3, 6, eligibility.UnitMonths)
	// Joined 7 months ago: the 6-month categories are due, jacket (12m
	// default cadence, no rule) is not.
	emp := f.addEmployee(date(2025, time.March, 1))
	f.now = date(2025, time.October, 2)

	run, err := f.scheduler.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, renewal.RunCompleted, run.Status)
	// shirt (rule, 6m), pant/shoe (zero entitlement, 6m default) reset;
	// jacket's 12-month default is not due yet.
	require.Equal(t, 3, run.Processed)
	require.Equal(t, 0, run.Failed)

	got, err := f.store.EmployeeByRef(context.Background(), emp.ID)
	require.NoError(t, err)
	require.Equal(t, 3, got.Eligibility[eligibility.CategoryShirt])
	require.Equal(t, 6, got.CycleDuration[eligibility.CategoryShirt])
	require.Equal(t, date(2025, time.September, 1), got.EligibilityResetDates[eligibility.CategoryShirt])
}

func TestSecondPassInSamePeriodSkips(t *testing.T) {
	f := newFixture(t)
	f.addRule("Shirt", 3, 6, eligibility.UnitMonths)
	f.addEmployee(date(2025, time.March, 1))
	f.now = date(2025, time.October, 2)

	first, err := f.scheduler.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, first.Processed)

	// A second pass in the same period must skip every reset it already
	// applied, idempotent per (employee, category, period).
	second, err := f.scheduler.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, second.Processed)
	require.Equal(t, 3, second.Skipped)
}

func TestCatchUpAfterDowntimeAppliesOnce(t *testing.T) {
	f := newFixture(t)
	f.addRule("Shirt", 3, 6, eligibility.UnitMonths)
	// Joined two full cadences plus change ago.
	emp := f.addEmployee(date(2024, time.June, 15))
	f.now = date(2025, time.July, 1)

	run, err := f.scheduler.RunOnce(context.Background())
	require.NoError(t, err)
	require.GreaterOrEqual(t, run.Processed, 1)

	// The anchor advanced by whole cadence multiples in one pass.
	got, err := f.store.EmployeeByRef(context.Background(), emp.ID)
	require.NoError(t, err)
	require.Equal(t, date(2025, time.June, 15), got.EligibilityResetDates[eligibility.CategoryShirt])

	// And nothing more happens until the NEXT boundary.
	again, err := f.scheduler.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, again.Processed)
}

func TestConsumedAllowanceIsRestoredByReset(t *testing.T) {
	f := newFixture(t)
	f.addRule("Shirt", 3, 6, eligibility.UnitMonths)
	emp := f.addEmployee(date(2025, time.March, 1))

	// Consume two shirts inside the first period.
	led := ledger.New(f.store)
	require.NoError(t, led.Append(context.Background(), ledger.Entry{
		ID: "c1", EmployeeID: emp.ID, Category: eligibility.CategoryShirt,
		Quantity: 2, Type: ledger.EntryConsume,
		EffectiveAt: date(2025, time.April, 1), IdempotencyKey: "c1",
	}))

	f.now = date(2025, time.October, 2)
	_, err := f.scheduler.RunOnce(context.Background())
	require.NoError(t, err)

	// After the reset, the full entitlement is available again from the
	// new period start.
	got, err := f.store.EmployeeByRef(context.Background(), emp.ID)
	require.NoError(t, err)
	available, err := led.Available(context.Background(), emp.ID, eligibility.CategoryShirt,
		got.Eligibility[eligibility.CategoryShirt], got.ResetAnchor(eligibility.CategoryShirt))
	require.NoError(t, err)
	require.Equal(t, 3, available)
}

// flakyEmployeeStore fails the first UpdateEmployee to simulate a
// transient write error after the period claims landed.
type flakyEmployeeStore struct {
	renewal.EmployeeStore
	failures int
}

func (f *flakyEmployeeStore) UpdateEmployee(ctx context.Context, emp eligibility.Employee) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("write timeout")
	}
	return f.EmployeeStore.UpdateEmployee(ctx, emp)
}

func TestFailedEmployeeWriteReleasesClaimsForRetry(t *testing.T) {
	f := newFixture(t)
	f.addRule("Shirt", 3, 6, eligibility.UnitMonths)
	emp := f.addEmployee(date(2025, time.March, 1))
	f.now = date(2025, time.October, 2)

	f.scheduler.Employees = &flakyEmployeeStore{EmployeeStore: f.store, failures: 1}

	first, err := f.scheduler.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, first.Failed)

	// The failed pass handed its claims back, so the next pass redoes
	// the resets instead of skipping until the following boundary.
	second, err := f.scheduler.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, second.Failed)
	require.Equal(t, 3, second.Processed)
	require.Equal(t, 0, second.Skipped)

	got, err := f.store.EmployeeByRef(context.Background(), emp.ID)
	require.NoError(t, err)
	require.Equal(t, 3, got.Eligibility[eligibility.CategoryShirt])
	require.Equal(t, date(2025, time.September, 1), got.EligibilityResetDates[eligibility.CategoryShirt])
}

func TestInactiveEmployeesAreNotTouched(t *testing.T) {
	f := newFixture(t)
	f.addRule("Shirt", 3, 6, eligibility.UnitMonths)
	emp := f.addEmployee(date(2024, time.January, 1))
	emp.Active = false
	f.store.PutEmployee(emp)
	f.now = date(2025, time.October, 1)

	run, err := f.scheduler.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, run.Processed)
}
