package renewal

import (
	"context"
	"time"

	"github.com/uniformhq/entitlement-engine/eligibility"
	"github.com/uniformhq/entitlement-engine/refs"
)

// =============================================================================
// RUN RECORDS
// =============================================================================

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Run records one scheduler pass for audit and the operational API.
type Run struct {
	ID        string
	StartedAt time.Time
	Status    RunStatus

	Processed int // category resets applied
	Skipped   int // already reset this period
	Failed    int // per-employee failures (logged, run continues)

	CompletedAt *time.Time
	Error       string
}

// CategoryReset is the idempotency record for one applied reset. The
// store enforces uniqueness on (employee, category, period start), which
// makes "already reset this period" a skip rather than a repeat.
type CategoryReset struct {
	EmployeeID  refs.Ref
	Category    eligibility.Category
	PeriodStart time.Time
	RunID       string
	AppliedAt   time.Time
}

// =============================================================================
// STORES - Defined consumer-side
// =============================================================================

// EmployeeStore is the employee persistence the renewal jobs need.
type EmployeeStore interface {
	// ListActiveEmployees returns every active employee.
	ListActiveEmployees(ctx context.Context) ([]eligibility.Employee, error)

	// EmployeeByRef resolves any reference shape. Misses return
	// ledger.ErrEmployeeNotFound.
	EmployeeByRef(ctx context.Context, ref refs.Ref) (eligibility.Employee, error)

	// UpdateEmployee writes eligibility state optimistically: the write
	// fails with ledger.ErrConcurrentModification unless the stored
	// version matches, and bumps the version on success.
	UpdateEmployee(ctx context.Context, emp eligibility.Employee) error
}

// RunStore persists scheduler runs and their idempotency records.
type RunStore interface {
	// SaveRun inserts or updates a run record.
	SaveRun(ctx context.Context, run Run) error

	// ListRuns returns runs, most recent first, up to limit.
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	// RecordCategoryReset claims (employee, category, period start).
	// A second claim for the same key fails with ledger.ErrAlreadyReset.
	RecordCategoryReset(ctx context.Context, reset CategoryReset) error

	// ReleaseCategoryReset drops a claim whose reset could not be
	// applied, so a later pass retries instead of skipping the period.
	ReleaseCategoryReset(ctx context.Context, employeeID refs.Ref, category eligibility.Category, periodStart time.Time) error
}

// OrderPurger is the one destructive dependency of the batch reset.
type OrderPurger interface {
	// DeleteAllOrders removes every order and returns the count.
	DeleteAllOrders(ctx context.Context) (int64, error)
}
