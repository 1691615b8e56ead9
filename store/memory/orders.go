package memory

import (
	"context"
	"sort"

	"github.com/uniformhq/entitlement-engine/ledger"
	"github.com/uniformhq/entitlement-engine/orders"
	"github.com/uniformhq/entitlement-engine/procurement"
	"github.com/uniformhq/entitlement-engine/refs"
)

// =============================================================================
// ORDERS - orders.OrderStore / renewal.OrderPurger
// =============================================================================

func (s *Store) CreateOrder(_ context.Context, o orders.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID.Canonical()] = copyOrder(o)
	return nil
}

func (s *Store) OrderByRef(_ context.Context, ref refs.Ref) (orders.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if o, ok := s.orders[ref.Canonical()]; ok {
		return copyOrder(o), nil
	}
	for _, o := range s.orders {
		if o.Number == ref.Canonical() {
			return copyOrder(o), nil
		}
	}
	return orders.Order{}, ledger.ErrOrderNotFound
}

func (s *Store) UpdateOrder(_ context.Context, o orders.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID.Canonical()]; !ok {
		return ledger.ErrOrderNotFound
	}
	s.orders[o.ID.Canonical()] = copyOrder(o)
	return nil
}

func (s *Store) OrdersByEmployee(_ context.Context, employeeID refs.Ref) ([]orders.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []orders.Order
	for _, o := range s.orders {
		if o.EmployeeID.Equal(employeeID) {
			out = append(out, copyOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlacedAt.After(out[j].PlacedAt) })
	return out, nil
}

func (s *Store) DeleteAllOrders(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.orders))
	s.orders = make(map[string]orders.Order)
	return n, nil
}

// =============================================================================
// PROCUREMENT - procurement.PurchaseOrderStore / GoodsReceiptStore
// =============================================================================

func (s *Store) CreatePurchaseOrder(_ context.Context, po procurement.PurchaseOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := po.OrderID.Canonical()
	s.purchaseOrders[key] = append(s.purchaseOrders[key], po)
	return nil
}

func (s *Store) PurchaseOrdersByOrder(_ context.Context, orderID refs.Ref) ([]procurement.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]procurement.PurchaseOrder(nil), s.purchaseOrders[orderID.Canonical()]...), nil
}

func (s *Store) CreateGoodsReceipt(_ context.Context, grn procurement.GoodsReceipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := grn.OrderID.Canonical()
	s.goodsReceipts[key] = append(s.goodsReceipts[key], grn)
	return nil
}

func (s *Store) GoodsReceiptsByOrder(_ context.Context, orderID refs.Ref) ([]procurement.GoodsReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]procurement.GoodsReceipt(nil), s.goodsReceipts[orderID.Canonical()]...), nil
}

func copyOrder(o orders.Order) orders.Order {
	out := o
	out.Items = append([]orders.Item(nil), o.Items...)
	out.History = append([]orders.StatusChange(nil), o.History...)
	return out
}
