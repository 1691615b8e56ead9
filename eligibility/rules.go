/*
rules.go - Persisted designation eligibility rules

PURPOSE:
  A Rule grants one (company, designation, gender) combination a quantity
  of one subcategory on a renewal cadence. Rules are written by admin
  workflows only; the engine reads them through the RuleStore.

SCHEMA VERSIONS:
  The platform historically kept two parallel rule collections:
  version 1 = legacy category-level rules, version 2 = subcategory-level
  rules. The canonical collection holds both, tagged; version 2 wins
  natural-key conflicts during migration (see migration.go).

CADENCE:
  Rules store frequency + unit (months|years). The engine works in
  months everywhere; CadenceMonths converts (years x 12, unset unit
  means months).

SEE ALSO:
  - aggregate.go: how rules fold into a Snapshot
  - migration.go: legacy collection collapse
*/
package eligibility

import (
	"context"
	"strings"
	"time"

	"github.com/uniformhq/entitlement-engine/refs"
)

// =============================================================================
// RULE
// =============================================================================

type RuleStatus string

const (
	RuleActive   RuleStatus = "active"
	RuleInactive RuleStatus = "inactive"
)

type CadenceUnit string

const (
	UnitMonths CadenceUnit = "months"
	UnitYears  CadenceUnit = "years"
)

// Rule grants quantity of one subcategory to a designation+gender within
// a company. Designation may hold ciphertext in legacy documents.
type Rule struct {
	ID          refs.Ref
	CompanyID   refs.Ref
	Designation string
	Gender      Gender

	// Subcategory is the raw target name; SubcategoryID, when set,
	// resolves through the taxonomy. The raw name is the fallback.
	Subcategory   string
	SubcategoryID refs.Ref

	Quantity         int
	RenewalFrequency int
	RenewalUnit      CadenceUnit

	Status        RuleStatus
	SchemaVersion int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CadenceMonths converts the rule's renewal frequency to months.
// An unset unit means months; a zero or negative frequency falls back
// to the category default at aggregation time.
func (r Rule) CadenceMonths() int {
	switch r.RenewalUnit {
	case UnitYears:
		return r.RenewalFrequency * 12
	default:
		return r.RenewalFrequency
	}
}

// NaturalKey identifies the one effective rule slot per
// (company, designation, gender, subcategory).
func (r Rule) NaturalKey() string {
	return r.CompanyID.Canonical() + "|" +
		strings.ToLower(strings.TrimSpace(r.Designation)) + "|" +
		string(r.Gender) + "|" +
		string(Normalize(r.Subcategory))
}

// =============================================================================
// STORES - Defined consumer-side; implemented by store/memory and store/mongo
// =============================================================================

// RuleStore reads active rules. Writes happen in admin workflows outside
// this engine.
type RuleStore interface {
	// ActiveRules returns active rules for (company, designation, gender).
	// Designation matching is case-insensitive on the decrypted value.
	ActiveRules(ctx context.Context, companyID refs.Ref, designation string, gender Gender) ([]Rule, error)
}

// TaxonomyStore resolves the canonical category taxonomy.
type TaxonomyStore interface {
	// SubcategoryByRef resolves a subcategory reference. found=false is
	// not an error; the caller falls back to name normalization.
	SubcategoryByRef(ctx context.Context, ref refs.Ref) (Subcategory, bool, error)

	// CategoryByRef resolves a parent category record.
	CategoryByRef(ctx context.Context, ref refs.Ref) (CategoryRecord, bool, error)
}

// CompanyStore resolves company records.
type CompanyStore interface {
	// CompanyByRef resolves a company by any of its reference shapes.
	CompanyByRef(ctx context.Context, ref refs.Ref) (Company, bool, error)
}
