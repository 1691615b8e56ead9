/*
errors.go - Error taxonomy for the engine

PURPOSE:
  Typed errors replace the platform's historical message sniffing.
  Callers branch with errors.Is or the predicates below; HTTP and CLI
  surfaces map classes to exit codes / status codes.

CATEGORIES:
  1. Client errors  - invalid input or state (insufficient balance,
                      illegal transition, duplicate idempotency key)
  2. Not-found      - a direct lookup missed
  3. Retryable      - optimistic-concurrency conflicts
  Everything else is a storage/internal failure, wrapped and propagated.
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/uniformhq/entitlement-engine/eligibility"
	"github.com/uniformhq/entitlement-engine/refs"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicateIdempotencyKey is returned when an entry with the same
	// idempotency key already exists. Expected behavior for retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrInsufficientEligibility is returned when an order asks for more
	// than the remaining allowance in a category.
	ErrInsufficientEligibility = errors.New("insufficient eligibility")

	// ErrConcurrentModification is returned when an optimistic employee
	// write detects a stale version. Safe to retry with fresh state.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrEmployeeNotFound / ErrCompanyNotFound / ErrOrderNotFound mark
	// missed direct lookups, distinguishable from storage failure.
	ErrEmployeeNotFound = errors.New("employee not found")
	ErrCompanyNotFound  = errors.New("company not found")
	ErrOrderNotFound    = errors.New("order not found")

	// ErrInvalidTransition is returned for an order status change the
	// workflow does not allow.
	ErrInvalidTransition = errors.New("invalid order status transition")

	// ErrAlreadyReset is returned when a renewal run finds the
	// (employee, category, period) already processed. A skip, not a failure.
	ErrAlreadyReset = errors.New("period already reset")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// InsufficientEligibilityError details a shortage per category.
type InsufficientEligibilityError struct {
	EmployeeID refs.Ref
	Category   eligibility.Category
	Available  int
	Requested  int
}

func (e *InsufficientEligibilityError) Error() string {
	return fmt.Sprintf("insufficient eligibility for %s: available %d, requested %d",
		e.Category, e.Available, e.Requested)
}

func (e *InsufficientEligibilityError) Unwrap() error { return ErrInsufficientEligibility }

// TransitionError details a rejected order status change.
type TransitionError struct {
	OrderID refs.Ref
	From    string
	To      string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order %s: cannot transition %s -> %s", e.OrderID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// =============================================================================
// PREDICATES
// =============================================================================

// IsClientError reports whether the error is the caller's fault.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientEligibility) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrDuplicateIdempotencyKey)
}

// IsNotFound reports a missed direct lookup.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEmployeeNotFound) ||
		errors.Is(err, ErrCompanyNotFound) ||
		errors.Is(err, ErrOrderNotFound)
}

// IsRetryable reports whether a retry with fresh state can succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}
