/*
Package procurement holds the downstream records of the order workflow.

PURPOSE:
  When an order clears its final approval a PurchaseOrder is issued to
  the vendor side; when it is delivered a GoodsReceipt confirms the
  received quantities. Both are write-once records produced by the
  orders service. Shipping-provider integration stops here.

SEE ALSO:
  - orders: issues these records on workflow transitions
*/
package procurement

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/uniformhq/entitlement-engine/refs"
)

// =============================================================================
// PURCHASE ORDER
// =============================================================================

// Line summarizes one ordered subcategory on a purchase order.
type Line struct {
	Subcategory string
	Quantity    int
	Total       decimal.Decimal
}

// PurchaseOrder is issued when an order clears its final approval step.
type PurchaseOrder struct {
	ID        refs.Ref
	Number    string // e.g. "PO-7F3A2C"
	OrderID   refs.Ref
	CompanyID refs.Ref
	Lines     []Line
	Total     decimal.Decimal
	IssuedAt  time.Time
}

// =============================================================================
// GOODS RECEIPT
// =============================================================================

// ReceivedItem records the delivered quantity for one order item.
type ReceivedItem struct {
	ProductID refs.Ref
	Quantity  int
}

// GoodsReceipt confirms that ordered goods arrived.
type GoodsReceipt struct {
	ID         refs.Ref
	Number     string // e.g. "GRN-1B9E04"
	OrderID    refs.Ref
	Items      []ReceivedItem
	ReceivedAt time.Time
}

// =============================================================================
// STORES
// =============================================================================

type PurchaseOrderStore interface {
	CreatePurchaseOrder(ctx context.Context, po PurchaseOrder) error
	PurchaseOrdersByOrder(ctx context.Context, orderID refs.Ref) ([]PurchaseOrder, error)
}

type GoodsReceiptStore interface {
	CreateGoodsReceipt(ctx context.Context, grn GoodsReceipt) error
	GoodsReceiptsByOrder(ctx context.Context, orderID refs.Ref) ([]GoodsReceipt, error)
}
