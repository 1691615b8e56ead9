package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/uniformhq/entitlement-engine/eligibility"
	"github.com/uniformhq/entitlement-engine/ledger"
	"github.com/uniformhq/entitlement-engine/refs"
)

// =============================================================================
// EMPLOYEES
// =============================================================================

type employeeDoc struct {
	ID          any                  `bson:"_id"`
	Number      any                  `bson:"employeeNumber,omitempty"`
	Company     any                  `bson:"company,omitempty"`
	Name        string               `bson:"name,omitempty"`
	Email       string               `bson:"email,omitempty"`
	Designation string               `bson:"designation,omitempty"`
	Gender      string               `bson:"gender,omitempty"`
	Active      bool                 `bson:"active"`
	JoinedAt    time.Time            `bson:"joinedAt,omitempty"`
	Eligibility map[string]int       `bson:"eligibility,omitempty"`
	Cycle       map[string]int       `bson:"cycleDuration,omitempty"`
	ResetDates  map[string]time.Time `bson:"eligibilityResetDates,omitempty"`
	Version     int64                `bson:"version"`
}

func (d employeeDoc) toDomain() eligibility.Employee {
	return eligibility.Employee{
		ID:                    asRef(d.ID),
		Number:                asString(d.Number),
		CompanyID:             asRef(d.Company),
		Name:                  d.Name,
		Email:                 d.Email,
		Designation:           d.Designation,
		Gender:                eligibility.Gender(d.Gender),
		Active:                d.Active,
		JoinedAt:              d.JoinedAt,
		Eligibility:           categoryInts(d.Eligibility),
		CycleDuration:         categoryInts(d.Cycle),
		EligibilityResetDates: categoryTimes(d.ResetDates),
		Version:               d.Version,
	}
}

func (s *Store) ListActiveEmployees(ctx context.Context) ([]eligibility.Employee, error) {
	cursor, err := s.db.Collection(colEmployees).Find(ctx, bson.M{"active": true})
	if err != nil {
		return nil, fmt.Errorf("list active employees: %w", err)
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

func (s *Store) EmployeeByRef(ctx context.Context, ref refs.Ref) (eligibility.Employee, error) {
	filter := bson.M{"$or": []bson.M{
		refFilter("_id", ref),
		refFilter("employeeNumber", ref),
	}}

	var doc employeeDoc
	err := s.db.Collection(colEmployees).FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return eligibility.Employee{}, ledger.ErrEmployeeNotFound
	}
	if err != nil {
		return eligibility.Employee{}, fmt.Errorf("find employee %s: %w", ref, err)
	}
	return doc.toDomain(), nil
}

// UpdateEmployee writes the eligibility state optimistically: the
// filter pins the version read, so a concurrent writer surfaces as
// ErrConcurrentModification instead of a lost update.
func (s *Store) UpdateEmployee(ctx context.Context, emp eligibility.Employee) error {
	filter := refFilter("_id", emp.ID)
	filter["version"] = emp.Version

	update := bson.M{
		"$set": bson.M{
			"eligibility":           stringInts(emp.Eligibility),
			"cycleDuration":         stringInts(emp.CycleDuration),
			"eligibilityResetDates": stringTimes(emp.EligibilityResetDates),
		},
		"$inc": bson.M{"version": 1},
	}

	res, err := s.db.Collection(colEmployees).UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("update employee %s: %w", emp.ID, err)
	}
	if res.MatchedCount == 0 {
		// Either the employee is gone or the version is stale.
		if _, err := s.EmployeeByRef(ctx, emp.ID); err != nil {
			return err
		}
		return ledger.ErrConcurrentModification
	}
	return nil
}

// =============================================================================
// COMPANIES
// =============================================================================

type companyDoc struct {
	ID                any    `bson:"_id"`
	Name              string `bson:"name,omitempty"`
	Code              any    `bson:"code,omitempty"`
	RequirePOApproval bool   `bson:"require_company_admin_po_approval"`
}

func (s *Store) CompanyByRef(ctx context.Context, ref refs.Ref) (eligibility.Company, bool, error) {
	filter := bson.M{"$or": []bson.M{
		refFilter("_id", ref),
		refFilter("code", ref),
	}}

	var doc companyDoc
	err := s.db.Collection(colCompanies).FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return eligibility.Company{}, false, nil
	}
	if err != nil {
		return eligibility.Company{}, false, fmt.Errorf("find company %s: %w", ref, err)
	}
	return eligibility.Company{
		ID:                            asRef(doc.ID),
		Name:                          doc.Name,
		Code:                          asString(doc.Code),
		RequireCompanyAdminPOApproval: doc.RequirePOApproval,
	}, true, nil
}

// =============================================================================
// RULES
// =============================================================================

type ruleDoc struct {
	ID            any       `bson:"_id"`
	Company       any       `bson:"company"`
	Designation   string    `bson:"designation"`
	Gender        string    `bson:"gender"`
	Subcategory   string    `bson:"subcategory,omitempty"`
	SubcategoryID any       `bson:"subcategoryId,omitempty"`
	Quantity      int       `bson:"quantity"`
	Frequency     int       `bson:"renewalFrequency"`
	Unit          string    `bson:"renewalUnit,omitempty"`
	Status        string    `bson:"status"`
	SchemaVersion int       `bson:"schemaVersion,omitempty"`
	NaturalKey    string    `bson:"naturalKey,omitempty"`
	CreatedAt     time.Time `bson:"createdAt,omitempty"`
	UpdatedAt     time.Time `bson:"updatedAt,omitempty"`
}

func (d ruleDoc) toDomain() eligibility.Rule {
	return eligibility.Rule{
		ID:               asRef(d.ID),
		CompanyID:        asRef(d.Company),
		Designation:      d.Designation,
		Gender:           eligibility.Gender(d.Gender),
		Subcategory:      d.Subcategory,
		SubcategoryID:    asRef(d.SubcategoryID),
		Quantity:         d.Quantity,
		RenewalFrequency: d.Frequency,
		RenewalUnit:      eligibility.CadenceUnit(d.Unit),
		Status:           eligibility.RuleStatus(d.Status),
		SchemaVersion:    d.SchemaVersion,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

// ActiveRules queries by company+gender+status and matches the
// designation in memory: stored designations may be ciphertext, so the
// comparison runs on the decrypted value.
func (s *Store) ActiveRules(ctx context.Context, companyID refs.Ref, designation string, gender eligibility.Gender) ([]eligibility.Rule, error) {
	filter := refFilter("company", companyID)
	filter["gender"] = string(gender)
	filter["status"] = string(eligibility.RuleActive)

	cursor, err := s.db.Collection(colRules).Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer cursor.Close(ctx)

	want := strings.TrimSpace(designation)
	var out []eligibility.Rule
	for cursor.Next(ctx) {
		var doc ruleDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode rule: %w", err)
		}
		stored := strings.TrimSpace(s.Decrypter.Decrypt(doc.Designation))
		if !strings.EqualFold(stored, want) {
			continue
		}
		out = append(out, doc.toDomain())
	}
	return out, cursor.Err()
}

// =============================================================================
// TAXONOMY
// =============================================================================

type subcategoryDoc struct {
	ID       any    `bson:"_id"`
	Name     string `bson:"name"`
	Category any    `bson:"category"`
}

func (s *Store) SubcategoryByRef(ctx context.Context, ref refs.Ref) (eligibility.Subcategory, bool, error) {
	var doc subcategoryDoc
	err := s.db.Collection(colSubcategories).FindOne(ctx, refFilter("_id", ref)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return eligibility.Subcategory{}, false, nil
	}
	if err != nil {
		return eligibility.Subcategory{}, false, fmt.Errorf("find subcategory %s: %w", ref, err)
	}
	return eligibility.Subcategory{ID: asRef(doc.ID), Name: doc.Name, CategoryID: asRef(doc.Category)}, true, nil
}

type categoryDoc struct {
	ID   any    `bson:"_id"`
	Name string `bson:"name"`
}

func (s *Store) CategoryByRef(ctx context.Context, ref refs.Ref) (eligibility.CategoryRecord, bool, error) {
	var doc categoryDoc
	err := s.db.Collection(colCategories).FindOne(ctx, refFilter("_id", ref)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return eligibility.CategoryRecord{}, false, nil
	}
	if err != nil {
		return eligibility.CategoryRecord{}, false, fmt.Errorf("find category %s: %w", ref, err)
	}
	return eligibility.CategoryRecord{ID: asRef(doc.ID), Name: doc.Name}, true, nil
}

// =============================================================================
// MAP CODECS
// =============================================================================

func categoryInts(in map[string]int) map[eligibility.Category]int {
	if in == nil {
		return nil
	}
	out := make(map[eligibility.Category]int, len(in))
	for k, v := range in {
		out[eligibility.Category(k)] = v
	}
	return out
}

func stringInts(in map[eligibility.Category]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[string(k)] = v
	}
	return out
}

func categoryTimes(in map[string]time.Time) map[eligibility.Category]time.Time {
	if in == nil {
		return nil
	}
	out := make(map[eligibility.Category]time.Time, len(in))
	for k, v := range in {
		out[eligibility.Category(k)] = v
	}
	return out
}

func stringTimes(in map[eligibility.Category]time.Time) map[string]time.Time {
	out := make(map[string]time.Time, len(in))
	for k, v := range in {
		out[string(k)] = v
	}
	return out
}
