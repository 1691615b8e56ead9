/*
aggregate_test.go - Executable specification of the aggregation semantics

Each test documents one matching/aggregation behavior:
  - zero snapshot for unmatched employees
  - exact-gender match suppresses unisex rules
  - max (never sum) across rules per category
  - cadence tie-break goes to the most recently updated rule
  - taxonomy resolution with raw-name fallback
  - encrypted designations are decrypted before matching
*/
package eligibility_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/uniformhq/entitlement-engine/eligibility"
	"github.com/uniformhq/entitlement-engine/pii"
	"github.com/uniformhq/entitlement-engine/refs"
)

// =============================================================================
// TEST INFRASTRUCTURE
// =============================================================================

type stubRules struct {
	rules []eligibility.Rule
}

func (s stubRules) ActiveRules(_ context.Context, companyID refs.Ref, designation string, gender eligibility.Gender) ([]eligibility.Rule, error) {
	var out []eligibility.Rule
	for _, r := range s.rules {
		if r.Status != eligibility.RuleActive {
			continue
		}
		if !r.CompanyID.Equal(companyID) || r.Gender != gender {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(r.Designation), strings.TrimSpace(designation)) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

type stubTaxonomy struct {
	subcategories map[string]eligibility.Subcategory
	categories    map[string]eligibility.CategoryRecord
}

func (s stubTaxonomy) SubcategoryByRef(_ context.Context, ref refs.Ref) (eligibility.Subcategory, bool, error) {
	sub, ok := s.subcategories[ref.Canonical()]
	return sub, ok, nil
}

func (s stubTaxonomy) CategoryByRef(_ context.Context, ref refs.Ref) (eligibility.CategoryRecord, bool, error) {
	cat, ok := s.categories[ref.Canonical()]
	return cat, ok, nil
}

var (
	companyA = refs.Parse("64a1b2c3d4e5f6a7b8c9d0e1")
	companyB = refs.Parse("64a1b2c3d4e5f6a7b8c9d0e2")
)

func pilot(gender eligibility.Gender) eligibility.Employee {
	return eligibility.Employee{
		ID:          refs.New(),
		CompanyID:   companyA,
		Designation: "Pilot",
		Gender:      gender,
		Active:      true,
		JoinedAt:    time.Date(2023, time.March, 15, 0, 0, 0, 0, time.UTC),
	}
}

func rule(company refs.Ref, designation string, gender eligibility.Gender, subcategory string, qty, freq int, unit eligibility.CadenceUnit, updated time.Time) eligibility.Rule {
	return eligibility.Rule{
		ID:               refs.New(),
		CompanyID:        company,
		Designation:      designation,
		Gender:           gender,
		Subcategory:      subcategory,
		Quantity:         qty,
		RenewalFrequency: freq,
		RenewalUnit:      unit,
		Status:           eligibility.RuleActive,
		UpdatedAt:        updated,
	}
}

var t0 = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

// =============================================================================
// SPECS
// =============================================================================

func TestNoMatchingRuleYieldsZeroSnapshot(t *testing.T) {
	// GIVEN no rules at all
	agg := eligibility.NewAggregator(stubRules{}, nil, nil)

	// WHEN aggregating any employee
	snap, err := agg.Snapshot(context.Background(), pilot(eligibility.GenderMale))
	if err != nil {
		t.Fatal(err)
	}

	// THEN the snapshot is exactly {shirt:0, pant:0, shoe:0, jacket:0}
	// with cadences {6, 6, 6, 12}: a valid terminal state, not an error.
	if len(snap) != 4 {
		t.Fatalf("snapshot must contain exactly the four legacy categories, got %v", snap)
	}
	for _, c := range eligibility.LegacyCategories {
		e := snap[c]
		if e.Quantity != 0 {
			t.Errorf("%s quantity = %d, want 0", c, e.Quantity)
		}
		if e.CadenceMonths != eligibility.DefaultCadenceMonths(c) {
			t.Errorf("%s cadence = %d, want %d", c, e.CadenceMonths, eligibility.DefaultCadenceMonths(c))
		}
	}
}

func TestMaxAcrossRulesNeverSum(t *testing.T) {
	// GIVEN two unisex shirt rules with quantities 2 and 5
	rules := stubRules{rules: []eligibility.Rule{
		rule(companyA, "Pilot", eligibility.GenderUnisex, "Shirt", 2, 6, eligibility.UnitMonths, t0),
		rule(companyA, "Pilot", eligibility.GenderUnisex, "Shirts", 5, 6, eligibility.UnitMonths, t0.Add(time.Hour)),
	}}
	agg := eligibility.NewAggregator(rules, nil, nil)

	// WHEN aggregating
	snap, err := agg.Snapshot(context.Background(), pilot(eligibility.GenderFemale))
	if err != nil {
		t.Fatal(err)
	}

	// THEN the shirt quantity is 5, not 7
	if snap[eligibility.CategoryShirt].Quantity != 5 {
		t.Fatalf("shirt quantity = %d, want max 5", snap[eligibility.CategoryShirt].Quantity)
	}
}

func TestExactGenderMatchSuppressesUnisex(t *testing.T) {
	// GIVEN the end-to-end scenario: a unisex jacket rule (qty 2, 1 year)
	// and a male jacket rule (qty 3, 6 months)
	rules := stubRules{rules: []eligibility.Rule{
		rule(companyA, "Pilot", eligibility.GenderUnisex, "Jacket", 2, 1, eligibility.UnitYears, t0),
		rule(companyA, "Pilot", eligibility.GenderMale, "Jacket", 3, 6, eligibility.UnitMonths, t0),
	}}
	agg := eligibility.NewAggregator(rules, nil, nil)

	// WHEN aggregating a male Pilot
	snap, err := agg.Snapshot(context.Background(), pilot(eligibility.GenderMale))
	if err != nil {
		t.Fatal(err)
	}

	// THEN the jacket entitlement is qty 3 with a 6-month cadence: the
	// exact match wins and the unisex rule never participates.
	if got := snap[eligibility.CategoryJacket]; got.Quantity != 3 || got.CadenceMonths != 6 {
		t.Fatalf("jacket = %+v, want {3 6}", got)
	}

	// AND a female Pilot falls back to the unisex rule only
	snap, err = agg.Snapshot(context.Background(), pilot(eligibility.GenderFemale))
	if err != nil {
		t.Fatal(err)
	}
	if got := snap[eligibility.CategoryJacket]; got.Quantity != 2 || got.CadenceMonths != 12 {
		t.Fatalf("jacket = %+v, want {2 12}", got)
	}
}

func TestQuantityTieTakesCadenceFromMostRecentlyUpdatedRule(t *testing.T) {
	// GIVEN two unisex jacket rules tied at qty 2 with different cadences
	older := rule(companyA, "Pilot", eligibility.GenderUnisex, "Jacket", 2, 1, eligibility.UnitYears, t0)
	newer := rule(companyA, "Pilot", eligibility.GenderUnisex, "Blazer", 2, 6, eligibility.UnitMonths, t0.Add(48*time.Hour))

	// WHEN aggregating with the rules supplied in either order
	for _, rs := range [][]eligibility.Rule{{older, newer}, {newer, older}} {
		agg := eligibility.NewAggregator(stubRules{rules: rs}, nil, nil)
		snap, err := agg.Snapshot(context.Background(), pilot(eligibility.GenderMale))
		if err != nil {
			t.Fatal(err)
		}

		// THEN the cadence comes from the most recently updated rule,
		// regardless of store iteration order.
		if got := snap[eligibility.CategoryJacket]; got.Quantity != 2 || got.CadenceMonths != 6 {
			t.Fatalf("jacket = %+v, want {2 6}", got)
		}
	}
}

func TestTaxonomyResolutionWithRawNameFallback(t *testing.T) {
	subRef := refs.New()
	catRef := refs.New()
	taxonomy := stubTaxonomy{
		subcategories: map[string]eligibility.Subcategory{
			subRef.Canonical(): {ID: subRef, Name: "Formal Trousers", CategoryID: catRef},
		},
		categories: map[string]eligibility.CategoryRecord{
			catRef.Canonical(): {ID: catRef, Name: "Trousers"},
		},
	}

	// GIVEN one rule resolvable via the taxonomy and one whose
	// subcategory reference dangles
	resolvable := rule(companyA, "Pilot", eligibility.GenderUnisex, "ignored-name", 4, 6, eligibility.UnitMonths, t0)
	resolvable.SubcategoryID = subRef
	dangling := rule(companyA, "Pilot", eligibility.GenderUnisex, "Blazer", 1, 1, eligibility.UnitYears, t0)
	dangling.SubcategoryID = refs.New() // not in the taxonomy

	agg := eligibility.NewAggregator(stubRules{rules: []eligibility.Rule{resolvable, dangling}}, taxonomy, nil)

	snap, err := agg.Snapshot(context.Background(), pilot(eligibility.GenderMale))
	if err != nil {
		t.Fatal(err)
	}

	// THEN the taxonomy rule lands on pant via its parent category name
	if snap[eligibility.CategoryPant].Quantity != 4 {
		t.Fatalf("pant = %+v, want quantity 4", snap[eligibility.CategoryPant])
	}
	// AND the dangling rule falls back to normalizing its raw name
	if snap[eligibility.CategoryJacket].Quantity != 1 {
		t.Fatalf("jacket = %+v, want quantity 1", snap[eligibility.CategoryJacket])
	}
}

func TestEncryptedDesignationIsDecryptedBeforeMatching(t *testing.T) {
	key := strings.Repeat("ab", 32)
	cipher, err := pii.NewAESCBC(key)
	if err != nil {
		t.Fatal(err)
	}
	encrypted, err := cipher.Encrypt("Pilot")
	if err != nil {
		t.Fatal(err)
	}

	rules := stubRules{rules: []eligibility.Rule{
		rule(companyA, "Pilot", eligibility.GenderUnisex, "Shirt", 3, 6, eligibility.UnitMonths, t0),
	}}
	agg := eligibility.NewAggregator(rules, nil, cipher)

	emp := pilot(eligibility.GenderMale)
	emp.Designation = encrypted

	snap, err := agg.Snapshot(context.Background(), emp)
	if err != nil {
		t.Fatal(err)
	}
	if snap[eligibility.CategoryShirt].Quantity != 3 {
		t.Fatalf("encrypted designation did not match, snapshot %v", snap)
	}
}

func TestExtraCategoriesAppearOnlyWhenGranted(t *testing.T) {
	rules := stubRules{rules: []eligibility.Rule{
		rule(companyA, "Pilot", eligibility.GenderUnisex, "Belt", 2, 6, eligibility.UnitMonths, t0),
	}}
	agg := eligibility.NewAggregator(rules, nil, nil)

	snap, err := agg.Snapshot(context.Background(), pilot(eligibility.GenderMale))
	if err != nil {
		t.Fatal(err)
	}
	if got := snap[eligibility.CategoryAccessory]; got.Quantity != 2 {
		t.Fatalf("accessory = %+v, want quantity 2", got)
	}
	if len(snap) != 5 {
		t.Fatalf("snapshot should hold 4 legacy + 1 granted category, got %v", snap)
	}
}

func TestRulesFromOtherCompaniesNeverMatch(t *testing.T) {
	rules := stubRules{rules: []eligibility.Rule{
		rule(companyB, "Pilot", eligibility.GenderUnisex, "Shirt", 9, 6, eligibility.UnitMonths, t0),
	}}
	agg := eligibility.NewAggregator(rules, nil, nil)

	snap, err := agg.Snapshot(context.Background(), pilot(eligibility.GenderMale))
	if err != nil {
		t.Fatal(err)
	}
	if snap[eligibility.CategoryShirt].Quantity != 0 {
		t.Fatalf("cross-company rule leaked into snapshot: %v", snap)
	}
}
