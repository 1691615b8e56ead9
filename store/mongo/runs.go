package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/uniformhq/entitlement-engine/eligibility"
	"github.com/uniformhq/entitlement-engine/integrity"
	"github.com/uniformhq/entitlement-engine/ledger"
	"github.com/uniformhq/entitlement-engine/orders"
	"github.com/uniformhq/entitlement-engine/refs"
	"github.com/uniformhq/entitlement-engine/renewal"
)

// =============================================================================
// LEDGER - Append-only; uniqueness rides on the idempotencyKey index
// =============================================================================

type entryDoc struct {
	ID             string    `bson:"_id"`
	Employee       any       `bson:"employee"`
	Category       string    `bson:"category"`
	Quantity       int       `bson:"quantity"`
	Type           string    `bson:"type"`
	Order          any       `bson:"order,omitempty"`
	EffectiveAt    time.Time `bson:"effectiveAt"`
	Reason         string    `bson:"reason,omitempty"`
	IdempotencyKey string    `bson:"idempotencyKey,omitempty"`
	CreatedAt      time.Time `bson:"createdAt"`
}

func toEntryDoc(e ledger.Entry) entryDoc {
	return entryDoc{
		ID:             e.ID,
		Employee:       refValue(e.EmployeeID),
		Category:       string(e.Category),
		Quantity:       e.Quantity,
		Type:           string(e.Type),
		Order:          refValue(e.OrderID),
		EffectiveAt:    e.EffectiveAt,
		Reason:         e.Reason,
		IdempotencyKey: e.IdempotencyKey,
		CreatedAt:      e.CreatedAt,
	}
}

func (d entryDoc) toDomain() ledger.Entry {
	return ledger.Entry{
		ID:             d.ID,
		EmployeeID:     asRef(d.Employee),
		Category:       eligibility.Category(d.Category),
		Quantity:       d.Quantity,
		Type:           ledger.EntryType(d.Type),
		OrderID:        asRef(d.Order),
		EffectiveAt:    d.EffectiveAt,
		Reason:         d.Reason,
		IdempotencyKey: d.IdempotencyKey,
		CreatedAt:      d.CreatedAt,
	}
}

func (s *Store) AppendEntry(ctx context.Context, e ledger.Entry) error {
	_, err := s.db.Collection(colLedger).InsertOne(ctx, toEntryDoc(e))
	if mongo.IsDuplicateKeyError(err) {
		return ledger.ErrDuplicateIdempotencyKey
	}
	if err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

// AppendEntries is all-or-nothing. Keys are checked up front and the
// insert runs ordered, so a concurrent writer can still land the
// duplicate between check and insert; when that happens, the rows this
// call managed to insert are deleted before the error is returned. The
// _id values are fresh for every call, so the delete cannot touch the
// competing writer's rows.
func (s *Store) AppendEntries(ctx context.Context, entries []ledger.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		if e.IdempotencyKey == "" {
			continue
		}
		exists, err := s.EntryKeyExists(ctx, e.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return ledger.ErrDuplicateIdempotencyKey
		}
	}

	docs := make([]any, 0, len(entries))
	for _, e := range entries {
		docs = append(docs, toEntryDoc(e))
	}
	_, err := s.db.Collection(colLedger).InsertMany(ctx, docs)
	if mongo.IsDuplicateKeyError(err) {
		ids := make([]string, 0, len(entries))
		for _, e := range entries {
			ids = append(ids, e.ID)
		}
		if _, derr := s.db.Collection(colLedger).DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}}); derr != nil {
			return fmt.Errorf("unwind partial ledger batch: %w", derr)
		}
		return ledger.ErrDuplicateIdempotencyKey
	}
	if err != nil {
		return fmt.Errorf("append ledger entries: %w", err)
	}
	return nil
}

func (s *Store) EntryKeyExists(ctx context.Context, key string) (bool, error) {
	n, err := s.db.Collection(colLedger).CountDocuments(ctx, bson.M{"idempotencyKey": key}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("check idempotency key: %w", err)
	}
	return n > 0, nil
}

func (s *Store) EntriesSince(ctx context.Context, employeeID refs.Ref, category eligibility.Category, since time.Time) ([]ledger.Entry, error) {
	filter := refFilter("employee", employeeID)
	filter["category"] = string(category)
	filter["effectiveAt"] = bson.M{"$gte": since}

	opts := options.Find().SetSort(bson.D{{Key: "effectiveAt", Value: 1}, {Key: "createdAt", Value: 1}})
	cursor, err := s.db.Collection(colLedger).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer cursor.Close(ctx)

	var out []ledger.Entry
	for cursor.Next(ctx) {
		var doc entryDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode ledger entry: %w", err)
		}
		out = append(out, doc.toDomain())
	}
	return out, cursor.Err()
}

// =============================================================================
// RENEWAL RUNS & CATEGORY RESETS
// =============================================================================

type runDoc struct {
	ID          string     `bson:"_id"`
	StartedAt   time.Time  `bson:"startedAt"`
	Status      string     `bson:"status"`
	Processed   int        `bson:"processed"`
	Skipped     int        `bson:"skipped"`
	Failed      int        `bson:"failed"`
	CompletedAt *time.Time `bson:"completedAt,omitempty"`
	Error       string     `bson:"error,omitempty"`
}

func (s *Store) SaveRun(ctx context.Context, run renewal.Run) error {
	doc := runDoc{
		ID:          run.ID,
		StartedAt:   run.StartedAt,
		Status:      string(run.Status),
		Processed:   run.Processed,
		Skipped:     run.Skipped,
		Failed:      run.Failed,
		CompletedAt: run.CompletedAt,
		Error:       run.Error,
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := s.db.Collection(colRenewalRuns).ReplaceOne(ctx, bson.M{"_id": run.ID}, doc, opts); err != nil {
		return fmt.Errorf("save renewal run %s: %w", run.ID, err)
	}
	return nil
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]renewal.Run, error) {
	opts := options.Find().SetSort(bson.D{{Key: "startedAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := s.db.Collection(colRenewalRuns).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list renewal runs: %w", err)
	}
	defer cursor.Close(ctx)

	var out []renewal.Run
	for cursor.Next(ctx) {
		var doc runDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode renewal run: %w", err)
		}
		out = append(out, renewal.Run{
			ID:          doc.ID,
			StartedAt:   doc.StartedAt,
			Status:      renewal.RunStatus(doc.Status),
			Processed:   doc.Processed,
			Skipped:     doc.Skipped,
			Failed:      doc.Failed,
			CompletedAt: doc.CompletedAt,
			Error:       doc.Error,
		})
	}
	return out, cursor.Err()
}

type categoryResetDoc struct {
	Employee    any       `bson:"employee"`
	Category    string    `bson:"category"`
	PeriodStart time.Time `bson:"periodStart"`
	RunID       string    `bson:"run"`
	AppliedAt   time.Time `bson:"appliedAt"`
}

// RecordCategoryReset relies on the unique (employee, category,
// periodStart) index to turn a concurrent double-claim into
// ErrAlreadyReset.
func (s *Store) RecordCategoryReset(ctx context.Context, reset renewal.CategoryReset) error {
	doc := categoryResetDoc{
		Employee:    reset.EmployeeID.Canonical(),
		Category:    string(reset.Category),
		PeriodStart: reset.PeriodStart,
		RunID:       reset.RunID,
		AppliedAt:   reset.AppliedAt,
	}
	_, err := s.db.Collection(colCategoryResets).InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return ledger.ErrAlreadyReset
	}
	if err != nil {
		return fmt.Errorf("record category reset: %w", err)
	}
	return nil
}

func (s *Store) ReleaseCategoryReset(ctx context.Context, employeeID refs.Ref, category eligibility.Category, periodStart time.Time) error {
	filter := bson.M{
		"employee":    employeeID.Canonical(),
		"category":    string(category),
		"periodStart": periodStart,
	}
	if _, err := s.db.Collection(colCategoryResets).DeleteOne(ctx, filter); err != nil {
		return fmt.Errorf("release category reset: %w", err)
	}
	return nil
}

// =============================================================================
// INTEGRITY REPORTS & SCAN SOURCE
// =============================================================================

type findingDoc struct {
	Collection string `bson:"collection"`
	DocumentID string `bson:"documentId"`
	Field      string `bson:"field"`
	RawValue   string `bson:"rawValue"`
	Kind       string `bson:"kind"`
}

type reportDoc struct {
	ID          string       `bson:"_id"`
	StartedAt   time.Time    `bson:"startedAt"`
	Status      string       `bson:"status"`
	Scanned     int          `bson:"scanned"`
	Findings    []findingDoc `bson:"findings,omitempty"`
	CompletedAt *time.Time   `bson:"completedAt,omitempty"`
	Error       string       `bson:"error,omitempty"`
}

func (s *Store) SaveReport(ctx context.Context, r integrity.Report) error {
	doc := reportDoc{
		ID:          r.ID,
		StartedAt:   r.StartedAt,
		Status:      string(r.Status),
		Scanned:     r.Scanned,
		CompletedAt: r.CompletedAt,
		Error:       r.Error,
	}
	for _, f := range r.Findings {
		doc.Findings = append(doc.Findings, findingDoc{
			Collection: f.Collection,
			DocumentID: f.DocumentID,
			Field:      f.Field,
			RawValue:   f.RawValue,
			Kind:       string(f.Kind),
		})
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := s.db.Collection(colIntegrityReports).ReplaceOne(ctx, bson.M{"_id": r.ID}, doc, opts); err != nil {
		return fmt.Errorf("save integrity report %s: %w", r.ID, err)
	}
	return nil
}

func (s *Store) ListReports(ctx context.Context, limit int) ([]integrity.Report, error) {
	opts := options.Find().SetSort(bson.D{{Key: "startedAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := s.db.Collection(colIntegrityReports).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list integrity reports: %w", err)
	}
	defer cursor.Close(ctx)

	var out []integrity.Report
	for cursor.Next(ctx) {
		var doc reportDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode integrity report: %w", err)
		}
		r := integrity.Report{
			ID:          doc.ID,
			StartedAt:   doc.StartedAt,
			Status:      integrity.ReportStatus(doc.Status),
			Scanned:     doc.Scanned,
			CompletedAt: doc.CompletedAt,
			Error:       doc.Error,
		}
		for _, f := range doc.Findings {
			r.Findings = append(r.Findings, integrity.Finding{
				Collection: f.Collection,
				DocumentID: f.DocumentID,
				Field:      f.Field,
				RawValue:   f.RawValue,
				Kind:       integrity.FindingKind(f.Kind),
			})
		}
		out = append(out, r)
	}
	return out, cursor.Err()
}

// The List* methods below are the integrity checker's scan surface.

func (s *Store) ListEmployeesAll(ctx context.Context) ([]eligibility.Employee, error) {
	cursor, err := s.db.Collection(colEmployees).Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	defer cursor.Close(ctx)

	var out []eligibility.Employee
	for cursor.Next(ctx) {
		var doc employeeDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode employee: %w", err)
		}
		out = append(out, doc.toDomain())
	}
	return out, cursor.Err()
}

func (s *Store) ListCompanies(ctx context.Context) ([]eligibility.Company, error) {
	cursor, err := s.db.Collection(colCompanies).Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	defer cursor.Close(ctx)

	var out []eligibility.Company
	for cursor.Next(ctx) {
		var doc companyDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode company: %w", err)
		}
		out = append(out, eligibility.Company{
			ID:                            asRef(doc.ID),
			Name:                          doc.Name,
			Code:                          asString(doc.Code),
			RequireCompanyAdminPOApproval: doc.RequirePOApproval,
		})
	}
	return out, cursor.Err()
}

func (s *Store) ListRules(ctx context.Context) ([]eligibility.Rule, error) {
	cursor, err := s.db.Collection(colRules).Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer cursor.Close(ctx)

	var out []eligibility.Rule
	for cursor.Next(ctx) {
		var doc ruleDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode rule: %w", err)
		}
		out = append(out, doc.toDomain())
	}
	return out, cursor.Err()
}

func (s *Store) ListSubcategories(ctx context.Context) ([]eligibility.Subcategory, error) {
	cursor, err := s.db.Collection(colSubcategories).Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list subcategories: %w", err)
	}
	defer cursor.Close(ctx)

	var out []eligibility.Subcategory
	for cursor.Next(ctx) {
		var doc subcategoryDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode subcategory: %w", err)
		}
		out = append(out, eligibility.Subcategory{ID: asRef(doc.ID), Name: doc.Name, CategoryID: asRef(doc.Category)})
	}
	return out, cursor.Err()
}

func (s *Store) ListCategories(ctx context.Context) ([]eligibility.CategoryRecord, error) {
	cursor, err := s.db.Collection(colCategories).Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer cursor.Close(ctx)

	var out []eligibility.CategoryRecord
	for cursor.Next(ctx) {
		var doc categoryDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode category: %w", err)
		}
		out = append(out, eligibility.CategoryRecord{ID: asRef(doc.ID), Name: doc.Name})
	}
	return out, cursor.Err()
}

func (s *Store) ListOrders(ctx context.Context) ([]orders.Order, error) {
	cursor, err := s.db.Collection(colOrders).Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
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
