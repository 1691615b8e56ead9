/*
Package mongo is the production store.

PURPOSE:
  Implements every consumer-side persistence contract against the
  platform's MongoDB collections. Two things set it apart from a
  textbook driver wrapper:

  1. HETEROGENEOUS REFERENCES: legacy documents store the same kind of
     reference as a native ObjectId, a 24-hex string, or a 6-digit
     numeric string. Reference fields decode through asRef and queries
     go through refFilter, which matches every shape (see decode.go).

  2. UNIQUE-INDEX-BACKED INVARIANTS: the ledger idempotency key, the
     (employee, category, period) renewal claim, and the canonical rule
     natural key are all enforced by unique indexes; duplicate-key
     errors translate to the engine's typed errors.

COLLECTIONS:
  employees, companies, eligibilityrules (canonical),
  designationproducteligibilities + designationsubcategoryeligibilities
  (legacy, read by the migration only), orders, productcategories,
  subcategories, purchaseorders, goodsreceipts, eligibilityledger,
  categoryresets, renewalruns, integrityreports.

SEE ALSO:
  - decode.go:  reference reconciliation
  - migrate.go: legacy rule collection collapse
*/
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/uniformhq/entitlement-engine/pii"
)

const (
	colEmployees        = "employees"
	colCompanies        = "companies"
	colRules            = "eligibilityrules"
	colLegacyCategory   = "designationproducteligibilities"
	colLegacySubcat     = "designationsubcategoryeligibilities"
	colOrders           = "orders"
	colCategories       = "productcategories"
	colSubcategories    = "subcategories"
	colPurchaseOrders   = "purchaseorders"
	colGoodsReceipts    = "goodsreceipts"
	colLedger           = "eligibilityledger"
	colCategoryResets   = "categoryresets"
	colRenewalRuns      = "renewalruns"
	colIntegrityReports = "integrityreports"
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database

	// Decrypter is applied to rule designations before matching; rule
	// documents written by some legacy paths hold ciphertext.
	Decrypter pii.Decrypter
}

// New connects and pings. The context bounds the whole connect attempt.
func New(ctx context.Context, uri, database string, decrypter pii.Decrypter) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	if decrypter == nil {
		decrypter = pii.Passthrough{}
	}
	return &Store{client: client, db: client.Database(database), Decrypter: decrypter}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// EnsureIndexes creates the unique indexes the engine's invariants rely
// on. Idempotent; called once at startup.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	type spec struct {
		collection string
		models     []mongo.IndexModel
	}
	specs := []spec{
		{colLedger, []mongo.IndexModel{
			{
				Keys:    bson.D{{Key: "idempotencyKey", Value: 1}},
				Options: options.Index().SetName("uniq_idempotencyKey").SetUnique(true).SetSparse(true),
			},
			{
				Keys:    bson.D{{Key: "employee", Value: 1}, {Key: "category", Value: 1}, {Key: "effectiveAt", Value: 1}},
				Options: options.Index().SetName("idx_employee_category_effectiveAt"),
			},
		}},
		{colCategoryResets, []mongo.IndexModel{{
			Keys:    bson.D{{Key: "employee", Value: 1}, {Key: "category", Value: 1}, {Key: "periodStart", Value: 1}},
			Options: options.Index().SetName("uniq_employee_category_period").SetUnique(true),
		}}},
		{colRules, []mongo.IndexModel{{
			Keys:    bson.D{{Key: "naturalKey", Value: 1}},
			Options: options.Index().SetName("uniq_naturalKey").SetUnique(true),
		}}},
		{colOrders, []mongo.IndexModel{{
			Keys:    bson.D{{Key: "employee", Value: 1}, {Key: "placedAt", Value: -1}},
			Options: options.Index().SetName("idx_employee_placedAt"),
		}}},
	}

	for _, sp := range specs {
		if _, err := s.db.Collection(sp.collection).Indexes().CreateMany(ctx, sp.models); err != nil {
			return fmt.Errorf("ensure indexes on %s: %w", sp.collection, err)
		}
	}
	return nil
}

// Ping is the health probe for the operational API.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.client.Ping(ctx, nil)
}
