/*
service.go - Placement, approvals, fulfilment, cancellation, returns

WRITE ORDERING:
  Placement appends consume entries BEFORE creating the order document;
  if the order write then fails, compensating restore entries unwind the
  consumption. The ledger's idempotency keys make both directions safe
  to retry.

CONCURRENCY:
  Every mutation acquires the employee's entity lock, so placement and
  a scheduled renewal reset on the same employee cannot interleave.
*/
package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/uniformhq/entitlement-engine/eligibility"
	"github.com/uniformhq/entitlement-engine/ledger"
	"github.com/uniformhq/entitlement-engine/procurement"
	"github.com/uniformhq/entitlement-engine/refs"
)

// EmployeeReader is the read-only employee access the workflow needs.
type EmployeeReader interface {
	EmployeeByRef(ctx context.Context, ref refs.Ref) (eligibility.Employee, error)
}

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	Orders         OrderStore
	Employees      EmployeeReader
	Companies      eligibility.CompanyStore
	Ledger         *ledger.Ledger
	Locks          *ledger.EntityLock
	PurchaseOrders procurement.PurchaseOrderStore
	Receipts       procurement.GoodsReceiptStore

	Now func() time.Time
	Log zerolog.Logger
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// =============================================================================
// PLACEMENT
// =============================================================================

type RequestedItem struct {
	ProductID   refs.Ref
	Subcategory string
	Quantity    int
	UnitPrice   decimal.Decimal
}

type PlacementRequest struct {
	EmployeeRef refs.Ref
	Items       []RequestedItem
	Actor       string
}

// Place validates per-category availability, consumes eligibility, and
// creates the order in PENDING_SITE_ADMIN_APPROVAL.
func (s *Service) Place(ctx context.Context, req PlacementRequest) (Order, error) {
	emp, err := s.Employees.EmployeeByRef(ctx, req.EmployeeRef)
	if err != nil {
		return Order{}, err
	}

	unlock := s.Locks.Lock(emp.ID.Canonical())
	defer unlock()

	now := s.now()
	order := Order{
		ID:         refs.New(),
		Number:     number("ORD"),
		EmployeeID: emp.ID,
		CompanyID:  emp.CompanyID,
		Status:     StatusPendingSiteAdminApproval,
		PlacedAt:   now,
		Total:      decimal.Zero,
	}

	// Resolve categories, price lines, and total the per-category demand.
	demand := make(map[eligibility.Category]int)
	for _, ri := range req.Items {
		category := eligibility.Normalize(ri.Subcategory)
		total := ri.UnitPrice.Mul(decimal.NewFromInt(int64(ri.Quantity)))
		order.Items = append(order.Items, Item{
			ProductID:   ri.ProductID,
			Subcategory: ri.Subcategory,
			Category:    category,
			Quantity:    ri.Quantity,
			UnitPrice:   ri.UnitPrice,
			TotalPrice:  total,
		})
		order.Total = order.Total.Add(total)
		demand[category] += ri.Quantity
	}

	// Validate availability per category before touching the ledger.
	for category, requested := range demand {
		entitlement := emp.Eligibility[category]
		available, err := s.Ledger.Available(ctx, emp.ID, category, entitlement, emp.ResetAnchor(category))
		if err != nil {
			return Order{}, fmt.Errorf("compute balance for %s: %w", category, err)
		}
		if requested > available {
			return Order{}, &ledger.InsufficientEligibilityError{
				EmployeeID: emp.ID,
				Category:   category,
				Available:  available,
				Requested:  requested,
			}
		}
	}

	// Ledger first, order second; a failed order write unwinds.
	consumes := s.itemEntries(order, ledger.EntryConsume, "order placed", now)
	if err := s.Ledger.AppendBatch(ctx, consumes); err != nil {
		return Order{}, fmt.Errorf("consume eligibility: %w", err)
	}

	order.History = append(order.History, StatusChange{
		To:    StatusPendingSiteAdminApproval,
		At:    now,
		Actor: req.Actor,
		Note:  "order placed",
	})

	if err := s.Orders.CreateOrder(ctx, order); err != nil {
		unwind := s.itemEntries(order, ledger.EntryRestore, "placement unwound", s.now())
		for i := range unwind {
			unwind[i].IdempotencyKey = "unwind|" + unwind[i].IdempotencyKey
		}
		if uerr := s.Ledger.AppendBatch(ctx, unwind); uerr != nil {
			s.Log.Error().Err(uerr).Str("order", order.ID.Canonical()).Msg("failed to unwind consumption after order write failure")
		}
		return Order{}, fmt.Errorf("create order: %w", err)
	}

	s.Log.Info().
		Str("order", order.Number).
		Str("employee", emp.ID.Canonical()).
		Int("items", len(order.Items)).
		Msg("order placed")
	return order, nil
}

// =============================================================================
// APPROVALS
// =============================================================================

// ApproveBySiteAdmin moves a pending order past the first approval step.
// The company's require_company_admin_po_approval flag decides whether a
// second step follows or the order is final-approved now.
func (s *Service) ApproveBySiteAdmin(ctx context.Context, orderRef refs.Ref, actor string) (Order, error) {
	return s.mutate(ctx, orderRef, func(o *Order) error {
		if o.Status != StatusPendingSiteAdminApproval {
			return &ledger.TransitionError{OrderID: o.ID, From: string(o.Status), To: string(StatusSiteAdminApproved)}
		}

		gated := false
		if company, found, err := s.Companies.CompanyByRef(ctx, o.CompanyID); err != nil {
			return err
		} else if found {
			gated = company.RequireCompanyAdminPOApproval
		}

		if gated {
			return s.transition(ctx, o, StatusPendingCompanyAdminApproval, actor, "site admin approved; awaiting company admin")
		}
		if err := s.transition(ctx, o, StatusSiteAdminApproved, actor, "site admin approved"); err != nil {
			return err
		}
		return s.issuePurchaseOrder(ctx, *o)
	})
}

// ApproveByCompanyAdmin completes the gated second approval step.
func (s *Service) ApproveByCompanyAdmin(ctx context.Context, orderRef refs.Ref, actor string) (Order, error) {
	return s.mutate(ctx, orderRef, func(o *Order) error {
		if err := s.transition(ctx, o, StatusCompanyAdminApproved, actor, "company admin approved"); err != nil {
			return err
		}
		return s.issuePurchaseOrder(ctx, *o)
	})
}

// =============================================================================
// FULFILMENT
// =============================================================================

func (s *Service) Dispatch(ctx context.Context, orderRef refs.Ref, actor string) (Order, error) {
	return s.mutate(ctx, orderRef, func(o *Order) error {
		if err := s.transition(ctx, o, StatusDispatched, actor, "dispatched"); err != nil {
			return err
		}
		for i := range o.Items {
			o.Items[i].DispatchedQuantity = o.Items[i].Quantity
		}
		return nil
	})
}

// Deliver finishes fulfilment and records the goods receipt.
func (s *Service) Deliver(ctx context.Context, orderRef refs.Ref, actor string) (Order, error) {
	return s.mutate(ctx, orderRef, func(o *Order) error {
		if err := s.transition(ctx, o, StatusDelivered, actor, "delivered"); err != nil {
			return err
		}

		grn := procurement.GoodsReceipt{
			ID:         refs.New(),
			Number:     number("GRN"),
			OrderID:    o.ID,
			ReceivedAt: s.now(),
		}
		for i := range o.Items {
			o.Items[i].DeliveredQuantity = o.Items[i].Quantity
			grn.Items = append(grn.Items, procurement.ReceivedItem{
				ProductID: o.Items[i].ProductID,
				Quantity:  o.Items[i].Quantity,
			})
		}
		return s.Receipts.CreateGoodsReceipt(ctx, grn)
	})
}

// =============================================================================
// CANCELLATION & RETURNS - Restore consumed eligibility
// =============================================================================

// Cancel terminates a pre-dispatch order and restores its consumption.
func (s *Service) Cancel(ctx context.Context, orderRef refs.Ref, reason, actor string) (Order, error) {
	return s.mutate(ctx, orderRef, func(o *Order) error {
		if err := s.transition(ctx, o, StatusCancelled, actor, reason); err != nil {
			return err
		}
		o.Reason = reason
		return s.restore(ctx, *o, "order cancelled")
	})
}

// Return terminates a delivered order and restores its consumption. The
// restore clamps at the entitlement ceiling on replay, so a return after
// the period rolled over cannot over-credit the new period.
func (s *Service) Return(ctx context.Context, orderRef refs.Ref, reason, actor string) (Order, error) {
	return s.mutate(ctx, orderRef, func(o *Order) error {
		if err := s.transition(ctx, o, StatusReturned, actor, reason); err != nil {
			return err
		}
		o.Reason = reason
		return s.restore(ctx, *o, "order returned")
	})
}

// restore appends the compensating restore entries for an order. The
// entries are appended before the order document is written, so a retry
// after a failed order write meets its own keys from the first attempt;
// a duplicate there means the restores are already durable.
func (s *Service) restore(ctx context.Context, o Order, reason string) error {
	err := s.Ledger.AppendBatch(ctx, s.itemEntries(o, ledger.EntryRestore, reason, s.now()))
	if err != nil && !errors.Is(err, ledger.ErrDuplicateIdempotencyKey) {
		return err
	}
	return nil
}

// =============================================================================
// INTERNALS
// =============================================================================

// mutate loads the order, locks its employee, applies fn, and persists.
func (s *Service) mutate(ctx context.Context, orderRef refs.Ref, fn func(*Order) error) (Order, error) {
	order, err := s.Orders.OrderByRef(ctx, orderRef)
	if err != nil {
		return Order{}, err
	}

	unlock := s.Locks.Lock(order.EmployeeID.Canonical())
	defer unlock()

	// Re-read under the lock.
	order, err = s.Orders.OrderByRef(ctx, orderRef)
	if err != nil {
		return Order{}, err
	}

	if err := fn(&order); err != nil {
		return Order{}, err
	}
	if err := s.Orders.UpdateOrder(ctx, order); err != nil {
		return Order{}, fmt.Errorf("update order: %w", err)
	}
	return order, nil
}

// transition validates the edge and appends to the status history.
func (s *Service) transition(_ context.Context, o *Order, to Status, actor, note string) error {
	if !CanTransition(o.Status, to) {
		return &ledger.TransitionError{OrderID: o.ID, From: string(o.Status), To: string(to)}
	}
	change := StatusChange{From: o.Status, To: to, At: s.now(), Actor: actor, Note: note}
	o.Status = to
	o.History = append(o.History, change)

	s.Log.Info().
		Str("order", o.Number).
		Str("from", string(change.From)).
		Str("to", string(change.To)).
		Str("actor", actor).
		Msg("order transition")
	return nil
}

func (s *Service) issuePurchaseOrder(ctx context.Context, o Order) error {
	po := procurement.PurchaseOrder{
		ID:        refs.New(),
		Number:    number("PO"),
		OrderID:   o.ID,
		CompanyID: o.CompanyID,
		Total:     o.Total,
		IssuedAt:  s.now(),
	}
	for _, item := range o.Items {
		po.Lines = append(po.Lines, procurement.Line{
			Subcategory: item.Subcategory,
			Quantity:    item.Quantity,
			Total:       item.TotalPrice,
		})
	}
	if err := s.PurchaseOrders.CreatePurchaseOrder(ctx, po); err != nil {
		return fmt.Errorf("issue purchase order: %w", err)
	}
	s.Log.Info().Str("order", o.Number).Str("po", po.Number).Msg("purchase order issued")
	return nil
}

// itemEntries builds one ledger entry per order item. Keys embed the
// entry type, order and item index, so each direction is idempotent.
func (s *Service) itemEntries(o Order, entryType ledger.EntryType, reason string, at time.Time) []ledger.Entry {
	entries := make([]ledger.Entry, 0, len(o.Items))
	for i, item := range o.Items {
		entries = append(entries, ledger.Entry{
			ID:             uuid.NewString(),
			EmployeeID:     o.EmployeeID,
			Category:       item.Category,
			Quantity:       item.Quantity,
			Type:           entryType,
			OrderID:        o.ID,
			EffectiveAt:    at,
			Reason:         reason,
			IdempotencyKey: fmt.Sprintf("%s|%s|%d", entryType, o.ID.Canonical(), i),
			CreatedAt:      at,
		})
	}
	return entries
}

func number(prefix string) string {
	return prefix + "-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
}
