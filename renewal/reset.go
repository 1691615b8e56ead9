/*
reset.go - Admin-triggered destructive batch reset

PURPOSE:
  The preserved all-or-nothing operation: delete EVERY order, recompute
  eligibility for every active employee from current rules, and clear
  eligibilityResetDates to an empty map unconditionally.

  There is no dry-run flag. Confirmation is a fixed sleep-then-proceed
  delay; cancelling the context (process signal) during the delay aborts
  cleanly before the purge begins. Once the purge has started the
  operation runs to completion.
*/
package renewal

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/uniformhq/entitlement-engine/eligibility"
)

// =============================================================================
// DESTRUCTIVE RESET
// =============================================================================

type DestructiveReset struct {
	Employees  EmployeeStore
	Orders     OrderPurger
	Aggregator *eligibility.Aggregator

	// ConfirmDelay is the sleep-then-proceed window. SIGINT/SIGTERM
	// (context cancellation) during the window aborts.
	ConfirmDelay time.Duration

	Now func() time.Time
	Log zerolog.Logger
}

type ResetSummary struct {
	OrdersDeleted  int64
	EmployeesReset int
	Failed         int
	Duration       time.Duration
}

// Run executes the batch reset.
func (r *DestructiveReset) Run(ctx context.Context) (ResetSummary, error) {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	started := now()

	r.Log.Warn().
		Dur("delay", r.ConfirmDelay).
		Msg("DESTRUCTIVE RESET: all orders will be deleted and all eligibility recomputed; interrupt now to abort")

	if r.ConfirmDelay > 0 {
		timer := time.NewTimer(r.ConfirmDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			r.Log.Info().Msg("destructive reset aborted before purge")
			return ResetSummary{}, ctx.Err()
		case <-timer.C:
		}
	}

	var summary ResetSummary

	deleted, err := r.Orders.DeleteAllOrders(ctx)
	if err != nil {
		return summary, fmt.Errorf("delete orders: %w", err)
	}
	summary.OrdersDeleted = deleted
	r.Log.Info().Int64("orders", deleted).Msg("orders purged")

	employees, err := r.Employees.ListActiveEmployees(ctx)
	if err != nil {
		return summary, fmt.Errorf("list active employees: %w", err)
	}

	for _, emp := range employees {
		if err := r.resetEmployee(ctx, emp); err != nil {
			summary.Failed++
			r.Log.Warn().Err(err).Str("employee", emp.ID.Canonical()).Msg("reset failed for employee")
			continue
		}
		summary.EmployeesReset++
	}

	summary.Duration = now().Sub(started)
	r.Log.Info().
		Int64("orders_deleted", summary.OrdersDeleted).
		Int("employees_reset", summary.EmployeesReset).
		Int("failed", summary.Failed).
		Dur("took", summary.Duration).
		Msg("destructive reset completed")
	return summary, nil
}

func (r *DestructiveReset) resetEmployee(ctx context.Context, emp eligibility.Employee) error {
	snapshot, err := r.Aggregator.Snapshot(ctx, emp)
	if err != nil {
		return err
	}

	emp.Eligibility = snapshot.Quantities()
	emp.CycleDuration = snapshot.Cadences()
	// Cleared unconditionally: the next scheduled pass anchors on the
	// joining date again.
	emp.EligibilityResetDates = map[eligibility.Category]time.Time{}

	return r.Employees.UpdateEmployee(ctx, emp)
}
