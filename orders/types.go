/*
Package orders implements order placement and the approval workflow.

PURPOSE:
  Orders are how eligibility is consumed. Placement validates remaining
  allowance per category and appends consume entries to the ledger;
  cancellations and returns append restores. Status transitions follow
  the platform's fixed chain:

    PENDING_SITE_ADMIN_APPROVAL
       -> company gate: require_company_admin_po_approval?
          yes -> PENDING_COMPANY_ADMIN_APPROVAL -> COMPANY_ADMIN_APPROVED
          no  -> SITE_ADMIN_APPROVED
       -> DISPATCHED -> DELIVERED
    CANCELLED from any pre-dispatch state
    RETURNED  from DELIVERED

  Transitions are admin-triggered only; there is no escalation or
  timeout. Final approval issues a PurchaseOrder; delivery records a
  GoodsReceipt.

KEY CONCEPTS IN THIS FILE (types.go):
  - Status: wire-name statuses as stored by the platform
  - transitions: the allowed-edge table (CanTransition)
  - Order / Item / StatusChange: the persisted shapes
  - OrderStore: persistence contract

SEE ALSO:
  - service.go: the transition and placement logic
  - ledger:     consume/restore entries
*/
package orders

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/uniformhq/entitlement-engine/eligibility"
	"github.com/uniformhq/entitlement-engine/refs"
)

// =============================================================================
// STATUS - Stored under the platform's wire names
// =============================================================================

type Status string

const (
	StatusPendingSiteAdminApproval    Status = "PENDING_SITE_ADMIN_APPROVAL"
	StatusPendingCompanyAdminApproval Status = "PENDING_COMPANY_ADMIN_APPROVAL"
	StatusSiteAdminApproved           Status = "SITE_ADMIN_APPROVED"
	StatusCompanyAdminApproved        Status = "COMPANY_ADMIN_APPROVED"
	StatusDispatched                  Status = "DISPATCHED"
	StatusDelivered                   Status = "DELIVERED"
	StatusCancelled                   Status = "CANCELLED"
	StatusReturned                    Status = "RETURNED"
)

// transitions is the allowed-edge table. CANCELLED is reachable from
// every pre-dispatch state; RETURNED only from DELIVERED.
var transitions = map[Status][]Status{
	StatusPendingSiteAdminApproval:    {StatusPendingCompanyAdminApproval, StatusSiteAdminApproved, StatusCancelled},
	StatusPendingCompanyAdminApproval: {StatusCompanyAdminApproved, StatusCancelled},
	StatusSiteAdminApproved:           {StatusDispatched, StatusCancelled},
	StatusCompanyAdminApproved:        {StatusDispatched, StatusCancelled},
	StatusDispatched:                  {StatusDelivered},
	StatusDelivered:                   {StatusReturned},
}

// CanTransition reports whether from -> to is an allowed edge.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition leaves the status.
func (s Status) Terminal() bool { return len(transitions[s]) == 0 }

// Approved reports whether the order has cleared its final approval.
func (s Status) Approved() bool {
	return s == StatusSiteAdminApproved || s == StatusCompanyAdminApproved
}

// =============================================================================
// ORDER
// =============================================================================

// Item is one order line. Category is resolved at placement time and
// frozen on the item so later transitions restore exactly what was
// consumed, even if the taxonomy changes.
type Item struct {
	ProductID   refs.Ref
	Subcategory string
	Category    eligibility.Category
	Quantity    int

	UnitPrice  decimal.Decimal
	TotalPrice decimal.Decimal

	DispatchedQuantity int
	DeliveredQuantity  int
}

// StatusChange is one entry of the order's transition history.
type StatusChange struct {
	From  Status
	To    Status
	At    time.Time
	Actor string
	Note  string
}

type Order struct {
	ID         refs.Ref
	Number     string // e.g. "ORD-83C1F2"
	EmployeeID refs.Ref
	CompanyID  refs.Ref

	Items  []Item
	Total  decimal.Decimal
	Status Status

	PlacedAt time.Time
	History  []StatusChange

	// Reason is set when the order terminates via CANCELLED/RETURNED.
	Reason string
}

// =============================================================================
// STORE
// =============================================================================

type OrderStore interface {
	CreateOrder(ctx context.Context, o Order) error

	// OrderByRef resolves any reference shape. Misses return
	// ledger.ErrOrderNotFound.
	OrderByRef(ctx context.Context, ref refs.Ref) (Order, error)

	UpdateOrder(ctx context.Context, o Order) error

	// OrdersByEmployee returns an employee's orders, newest first.
	OrdersByEmployee(ctx context.Context, employeeID refs.Ref) ([]Order, error)
}
