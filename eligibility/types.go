/*
Package eligibility is the core of the apparel entitlement engine.

PURPOSE:
  This package contains the domain types and the algorithms that decide,
  per employee and per apparel category, how many units may be ordered
  and on what cadence the allowance renews.

KEY CONCEPTS IN THIS FILE (types.go):
  - Category: canonical apparel category tag (shirt, pant, shoe, jacket, ...)
  - Gender: rule matching dimension (male, female, unisex fallback)
  - Entitlement: quantity + renewal cadence for one category
  - Snapshot: the aggregated per-category entitlement for one employee
  - Employee / Company / Subcategory: the entities the engine reads

DESIGN PRINCIPLES:
  1. No eligibility is a valid state: employees with no matching rule get
     a zeroed snapshot, never an error.
  2. Rules are shared and read-only from the employee's perspective; the
     employee exclusively owns its snapshot.
  3. All references are refs.Ref so legacy id shapes resolve uniformly.

SEE ALSO:
  - normalize.go: free-form category names -> canonical tags
  - rules.go:     persisted rule model and cadence conversion
  - aggregate.go: rule resolution and snapshot aggregation
*/
package eligibility

import (
	"time"

	"github.com/uniformhq/entitlement-engine/refs"
)

// =============================================================================
// CATEGORY - Canonical apparel category tag
// =============================================================================

type Category string

const (
	CategoryShirt     Category = "shirt"
	CategoryPant      Category = "pant"
	CategoryShoe      Category = "shoe"
	CategoryJacket    Category = "jacket"
	CategoryAccessory Category = "accessory"
)

// LegacyCategories are the four categories every snapshot must contain,
// matching the shape of the employee documents' eligibility maps.
var LegacyCategories = []Category{CategoryShirt, CategoryPant, CategoryShoe, CategoryJacket}

// Known reports whether the tag belongs to the canonical enumeration.
func (c Category) Known() bool {
	switch c {
	case CategoryShirt, CategoryPant, CategoryShoe, CategoryJacket, CategoryAccessory:
		return true
	}
	return false
}

// DefaultCadenceMonths is the cadence applied when no rule grants a
// category: 6 months everywhere, 12 for jackets.
func DefaultCadenceMonths(c Category) int {
	if c == CategoryJacket {
		return 12
	}
	return 6
}

// =============================================================================
// GENDER
// =============================================================================

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderUnisex Gender = "unisex"
)

// =============================================================================
// ENTITLEMENT & SNAPSHOT
// =============================================================================

// Entitlement is what one employee may order in one category within a
// renewal period.
type Entitlement struct {
	Quantity      int
	CadenceMonths int
}

// Snapshot is the aggregated entitlement for one employee. It always
// contains entries for all four legacy categories; extra categories
// (e.g. accessory) appear only when a rule grants them.
type Snapshot map[Category]Entitlement

// ZeroSnapshot is the terminal "no eligibility" state: all legacy
// categories at zero quantity with default cadences.
func ZeroSnapshot() Snapshot {
	s := make(Snapshot, len(LegacyCategories))
	for _, c := range LegacyCategories {
		s[c] = Entitlement{Quantity: 0, CadenceMonths: DefaultCadenceMonths(c)}
	}
	return s
}

// Quantities flattens the snapshot to the employee document's
// eligibility map shape.
func (s Snapshot) Quantities() map[Category]int {
	out := make(map[Category]int, len(s))
	for c, e := range s {
		out[c] = e.Quantity
	}
	return out
}

// Cadences flattens the snapshot to the employee document's
// cycle-duration map shape.
func (s Snapshot) Cadences() map[Category]int {
	out := make(map[Category]int, len(s))
	for c, e := range s {
		out[c] = e.CadenceMonths
	}
	return out
}

// =============================================================================
// EMPLOYEE
// =============================================================================

// Employee carries the identity fields the engine matches on and the
// eligibility state it owns. PII fields (Name, Email, Designation) may
// hold ciphertext; pass them through a pii.Decrypter before use.
type Employee struct {
	ID        refs.Ref
	Number    string // legacy 6-digit employee number
	CompanyID refs.Ref

	Name        string
	Email       string
	Designation string
	Gender      Gender

	Active   bool
	JoinedAt time.Time

	// Owned eligibility state, recomputed on rule change or reset.
	Eligibility           map[Category]int
	CycleDuration         map[Category]int
	EligibilityResetDates map[Category]time.Time

	// Version guards optimistic writes. Stores reject stale versions
	// with ErrConcurrentModification.
	Version int64
}

// ResetAnchor returns the renewal anchor for a category: the last reset
// date when one is recorded, otherwise the joining date.
func (e Employee) ResetAnchor(c Category) time.Time {
	if t, ok := e.EligibilityResetDates[c]; ok && !t.IsZero() {
		return t
	}
	return e.JoinedAt
}

// =============================================================================
// COMPANY
// =============================================================================

type Company struct {
	ID   refs.Ref
	Name string // may be ciphertext
	Code string // legacy numeric company code

	// Gates the second approval step on orders.
	RequireCompanyAdminPOApproval bool
}

// =============================================================================
// TAXONOMY - Canonical category / subcategory records
// =============================================================================

// CategoryRecord is a row of the canonical category taxonomy.
type CategoryRecord struct {
	ID   refs.Ref
	Name string
}

// Subcategory belongs to exactly one parent category.
type Subcategory struct {
	ID         refs.Ref
	Name       string
	CategoryID refs.Ref
}
