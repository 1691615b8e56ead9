package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/uniformhq/entitlement-engine/eligibility"
	"github.com/uniformhq/entitlement-engine/ledger"
	"github.com/uniformhq/entitlement-engine/orders"
	"github.com/uniformhq/entitlement-engine/procurement"
	"github.com/uniformhq/entitlement-engine/refs"
)

// Monetary amounts are stored as decimal strings so nothing is lost to
// float rounding on the way through BSON.

// =============================================================================
// ORDERS
// =============================================================================

type orderItemDoc struct {
	Product            any    `bson:"product,omitempty"`
	Subcategory        string `bson:"subcategory,omitempty"`
	Category           string `bson:"category"`
	Quantity           int    `bson:"quantity"`
	UnitPrice          string `bson:"unitPrice,omitempty"`
	TotalPrice         string `bson:"totalPrice,omitempty"`
	DispatchedQuantity int    `bson:"dispatchedQuantity,omitempty"`
	DeliveredQuantity  int    `bson:"deliveredQuantity,omitempty"`
}

type statusChangeDoc struct {
	From  string    `bson:"from"`
	To    string    `bson:"to"`
	At    time.Time `bson:"at"`
	Actor string    `bson:"actor,omitempty"`
	Note  string    `bson:"note,omitempty"`
}

type orderDoc struct {
	ID       any               `bson:"_id"`
	Number   string            `bson:"orderNumber"`
	Employee any               `bson:"employee"`
	Company  any               `bson:"company"`
	Items    []orderItemDoc    `bson:"items"`
	Total    string            `bson:"total"`
	Status   string            `bson:"status"`
	PlacedAt time.Time         `bson:"placedAt"`
	History  []statusChangeDoc `bson:"history,omitempty"`
	Reason   string            `bson:"reason,omitempty"`
}

func toOrderDoc(o orders.Order) orderDoc {
	doc := orderDoc{
		ID:       refValue(o.ID),
		Number:   o.Number,
		Employee: refValue(o.EmployeeID),
		Company:  refValue(o.CompanyID),
		Total:    o.Total.String(),
		Status:   string(o.Status),
		PlacedAt: o.PlacedAt,
		Reason:   o.Reason,
	}
	for _, item := range o.Items {
		doc.Items = append(doc.Items, orderItemDoc{
			Product:            refValue(item.ProductID),
			Subcategory:        item.Subcategory,
			Category:           string(item.Category),
			Quantity:           item.Quantity,
			UnitPrice:          item.UnitPrice.String(),
			TotalPrice:         item.TotalPrice.String(),
			DispatchedQuantity: item.DispatchedQuantity,
			DeliveredQuantity:  item.DeliveredQuantity,
		})
	}
	for _, change := range o.History {
		doc.History = append(doc.History, statusChangeDoc{
			From:  string(change.From),
			To:    string(change.To),
			At:    change.At,
			Actor: change.Actor,
			Note:  change.Note,
		})
	}
	return doc
}

func (d orderDoc) toDomain() orders.Order {
	o := orders.Order{
		ID:         asRef(d.ID),
		Number:     d.Number,
		EmployeeID: asRef(d.Employee),
		CompanyID:  asRef(d.Company),
		Total:      asDecimal(d.Total),
		Status:     orders.Status(d.Status),
		PlacedAt:   d.PlacedAt,
		Reason:     d.Reason,
	}
	for _, item := range d.Items {
		o.Items = append(o.Items, orders.Item{
			ProductID:          asRef(item.Product),
			Subcategory:        item.Subcategory,
			Category:           eligibility.Category(item.Category),
			Quantity:           item.Quantity,
			UnitPrice:          asDecimal(item.UnitPrice),
			TotalPrice:         asDecimal(item.TotalPrice),
			DispatchedQuantity: item.DispatchedQuantity,
			DeliveredQuantity:  item.DeliveredQuantity,
		})
	}
	for _, change := range d.History {
		o.History = append(o.History, orders.StatusChange{
			From:  orders.Status(change.From),
			To:    orders.Status(change.To),
			At:    change.At,
			Actor: change.Actor,
			Note:  change.Note,
		})
	}
	return o
}

func asDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (s *Store) CreateOrder(ctx context.Context, o orders.Order) error {
	if _, err := s.db.Collection(colOrders).InsertOne(ctx, toOrderDoc(o)); err != nil {
		return fmt.Errorf("create order %s: %w", o.Number, err)
	}
	return nil
}

func (s *Store) OrderByRef(ctx context.Context, ref refs.Ref) (orders.Order, error) {
	filter := bson.M{"$or": []bson.M{
		refFilter("_id", ref),
		{"orderNumber": ref.Canonical()},
	}}

	var doc orderDoc
	err := s.db.Collection(colOrders).FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return orders.Order{}, ledger.ErrOrderNotFound
	}
	if err != nil {
		return orders.Order{}, fmt.Errorf("find order %s: %w", ref, err)
	}
	return doc.toDomain(), nil
}

func (s *Store) UpdateOrder(ctx context.Context, o orders.Order) error {
	res, err := s.db.Collection(colOrders).ReplaceOne(ctx, refFilter("_id", o.ID), toOrderDoc(o))
	if err != nil {
		return fmt.Errorf("update order %s: %w", o.Number, err)
	}
	if res.MatchedCount == 0 {
		return ledger.ErrOrderNotFound
	}
	return nil
}

func (s *Store) OrdersByEmployee(ctx context.Context, employeeID refs.Ref) ([]orders.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "placedAt", Value: -1}})
	cursor, err := s.db.Collection(colOrders).Find(ctx, refFilter("employee", employeeID), opts)
	if err != nil {
		return nil, fmt.Errorf("list orders for %s: %w", employeeID, err)
	}
	defer cursor.Close(ctx)

	var out []orders.Order
	for cursor.Next(ctx) {
		var doc orderDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode order: %w", err)
		}
		out = append(out, doc.toDomain())
	}
	return out, cursor.Err()
}

// DeleteAllOrders removes every order document. Used only by the
// destructive annual reset.
func (s *Store) DeleteAllOrders(ctx context.Context) (int64, error) {
	res, err := s.db.Collection(colOrders).DeleteMany(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("delete orders: %w", err)
	}
	return res.DeletedCount, nil
}

// =============================================================================
// PURCHASE ORDERS / GOODS RECEIPTS
// =============================================================================

type poLineDoc struct {
	Subcategory string `bson:"subcategory"`
	Quantity    int    `bson:"quantity"`
	Total       string `bson:"total"`
}

type purchaseOrderDoc struct {
	ID       any         `bson:"_id"`
	Number   string      `bson:"poNumber"`
	Order    any         `bson:"order"`
	Company  any         `bson:"company"`
	Lines    []poLineDoc `bson:"lines"`
	Total    string      `bson:"total"`
	IssuedAt time.Time   `bson:"issuedAt"`
}

func (s *Store) CreatePurchaseOrder(ctx context.Context, po procurement.PurchaseOrder) error {
	doc := purchaseOrderDoc{
		ID:       refValue(po.ID),
		Number:   po.Number,
		Order:    refValue(po.OrderID),
		Company:  refValue(po.CompanyID),
		Total:    po.Total.String(),
		IssuedAt: po.IssuedAt,
	}
	for _, line := range po.Lines {
		doc.Lines = append(doc.Lines, poLineDoc{
			Subcategory: line.Subcategory,
			Quantity:    line.Quantity,
			Total:       line.Total.String(),
		})
	}
	if _, err := s.db.Collection(colPurchaseOrders).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("create purchase order %s: %w", po.Number, err)
	}
	return nil
}

func (s *Store) PurchaseOrdersByOrder(ctx context.Context, orderID refs.Ref) ([]procurement.PurchaseOrder, error) {
	cursor, err := s.db.Collection(colPurchaseOrders).Find(ctx, refFilter("order", orderID))
	if err != nil {
		return nil, fmt.Errorf("list purchase orders for %s: %w", orderID, err)
	}
	defer cursor.Close(ctx)

	var out []procurement.PurchaseOrder
	for cursor.Next(ctx) {
		var doc purchaseOrderDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode purchase order: %w", err)
		}
		po := procurement.PurchaseOrder{
			ID:        asRef(doc.ID),
			Number:    doc.Number,
			OrderID:   asRef(doc.Order),
			CompanyID: asRef(doc.Company),
			Total:     asDecimal(doc.Total),
			IssuedAt:  doc.IssuedAt,
		}
		for _, line := range doc.Lines {
			po.Lines = append(po.Lines, procurement.Line{
				Subcategory: line.Subcategory,
				Quantity:    line.Quantity,
				Total:       asDecimal(line.Total),
			})
		}
		out = append(out, po)
	}
	return out, cursor.Err()
}

type receivedItemDoc struct {
	Product  any `bson:"product,omitempty"`
	Quantity int `bson:"quantity"`
}

type goodsReceiptDoc struct {
	ID         any               `bson:"_id"`
	Number     string            `bson:"grnNumber"`
	Order      any               `bson:"order"`
	Items      []receivedItemDoc `bson:"items"`
	ReceivedAt time.Time         `bson:"receivedAt"`
}

func (s *Store) CreateGoodsReceipt(ctx context.Context, grn procurement.GoodsReceipt) error {
	doc := goodsReceiptDoc{
		ID:         refValue(grn.ID),
		Number:     grn.Number,
		Order:      refValue(grn.OrderID),
		ReceivedAt: grn.ReceivedAt,
	}
	for _, item := range grn.Items {
		doc.Items = append(doc.Items, receivedItemDoc{Product: refValue(item.ProductID), Quantity: item.Quantity})
	}
	if _, err := s.db.Collection(colGoodsReceipts).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("create goods receipt %s: %w", grn.Number, err)
	}
	return nil
}

func (s *Store) GoodsReceiptsByOrder(ctx context.Context, orderID refs.Ref) ([]procurement.GoodsReceipt, error) {
	cursor, err := s.db.Collection(colGoodsReceipts).Find(ctx, refFilter("order", orderID))
	if err != nil {
		return nil, fmt.Errorf("list goods receipts for %s: %w", orderID, err)
	}
	defer cursor.Close(ctx)

	var out []procurement.GoodsReceipt
	for cursor.Next(ctx) {
		var doc goodsReceiptDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode goods receipt: %w", err)
		}
		grn := procurement.GoodsReceipt{
			ID:         asRef(doc.ID),
			Number:     doc.Number,
			OrderID:    asRef(doc.Order),
			ReceivedAt: doc.ReceivedAt,
		}
		for _, item := range doc.Items {
			grn.Items = append(grn.Items, procurement.ReceivedItem{ProductID: asRef(item.Product), Quantity: item.Quantity})
		}
		out = append(out, grn)
	}
	return out, cursor.Err()
}
