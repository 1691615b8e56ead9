/*
aggregate.go - Rule resolution and snapshot aggregation

PURPOSE:
  Given one employee, resolve which rules apply and fold them into a
  per-category entitlement Snapshot. This is the single place the
  matching semantics live:

  1. Decrypt the designation (fall back to the raw value on failure).
  2. Exact (company, designation, gender) match first; an empty result
     falls back to (company, designation, unisex). The two sets never mix.
  3. No match at all -> ZeroSnapshot. Not an error.
  4. Per category, quantity is the MAXIMUM across matching rules, never
     the sum.
  5. On a quantity tie the cadence comes from the last rule processed;
     processing order is updated-at then id, so "last" means "most
     recently updated".

SEE ALSO:
  - rules.go: RuleStore / TaxonomyStore contracts
  - renewal:  applies snapshots on period boundaries
*/
package eligibility

import (
	"context"
	"sort"
	"strings"

	"github.com/uniformhq/entitlement-engine/pii"
)

// =============================================================================
// AGGREGATOR
// =============================================================================

type Aggregator struct {
	Rules     RuleStore
	Taxonomy  TaxonomyStore
	Decrypter pii.Decrypter
}

func NewAggregator(rules RuleStore, taxonomy TaxonomyStore, decrypter pii.Decrypter) *Aggregator {
	if decrypter == nil {
		decrypter = pii.Passthrough{}
	}
	return &Aggregator{Rules: rules, Taxonomy: taxonomy, Decrypter: decrypter}
}

// Snapshot aggregates the employee's entitlement. The result always
// contains all four legacy categories; "no eligibility" comes back as
// the zero snapshot, never as an error.
func (a *Aggregator) Snapshot(ctx context.Context, emp Employee) (Snapshot, error) {
	designation := strings.TrimSpace(a.Decrypter.Decrypt(emp.Designation))

	rules, err := a.matchingRules(ctx, emp, designation)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return ZeroSnapshot(), nil
	}

	// Deterministic fold order: updated-at then id. The last rule
	// processed supplies the cadence on a quantity tie.
	sort.SliceStable(rules, func(i, j int) bool {
		if !rules[i].UpdatedAt.Equal(rules[j].UpdatedAt) {
			return rules[i].UpdatedAt.Before(rules[j].UpdatedAt)
		}
		return rules[i].ID.Canonical() < rules[j].ID.Canonical()
	})

	snapshot := ZeroSnapshot()
	for _, rule := range rules {
		category, err := a.resolveCategory(ctx, rule)
		if err != nil {
			return nil, err
		}

		cadence := rule.CadenceMonths()
		if cadence <= 0 {
			cadence = DefaultCadenceMonths(category)
		}

		current, ok := snapshot[category]
		if !ok {
			// Category beyond the four legacy ones (e.g. accessory).
			snapshot[category] = Entitlement{Quantity: rule.Quantity, CadenceMonths: cadence}
			continue
		}
		// Max across rules, never the sum. >= so a tie takes this
		// (later-processed) rule's cadence.
		if rule.Quantity >= current.Quantity {
			snapshot[category] = Entitlement{Quantity: rule.Quantity, CadenceMonths: cadence}
		}
	}
	return snapshot, nil
}

// matchingRules performs the exact-gender lookup with unisex fallback.
// A non-empty exact match suppresses the unisex set entirely.
func (a *Aggregator) matchingRules(ctx context.Context, emp Employee, designation string) ([]Rule, error) {
	if emp.Gender != "" && emp.Gender != GenderUnisex {
		exact, err := a.Rules.ActiveRules(ctx, emp.CompanyID, designation, emp.Gender)
		if err != nil {
			return nil, err
		}
		if len(exact) > 0 {
			return exact, nil
		}
	}
	return a.Rules.ActiveRules(ctx, emp.CompanyID, designation, GenderUnisex)
}

// resolveCategory maps a rule's target subcategory to its parent
// category: taxonomy first, raw-name normalization as the fallback.
// An unresolvable reference is not an error; the raw name decides.
func (a *Aggregator) resolveCategory(ctx context.Context, rule Rule) (Category, error) {
	if a.Taxonomy != nil && !rule.SubcategoryID.IsZero() {
		sub, found, err := a.Taxonomy.SubcategoryByRef(ctx, rule.SubcategoryID)
		if err != nil {
			return "", err
		}
		if found {
			if cat, found, err := a.Taxonomy.CategoryByRef(ctx, sub.CategoryID); err != nil {
				return "", err
			} else if found {
				return Normalize(cat.Name), nil
			}
			return Normalize(sub.Name), nil
		}
	}
	return Normalize(rule.Subcategory), nil
}
