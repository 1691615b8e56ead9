package eligibility_test

import (
	"testing"
	"time"

	"github.com/uniformhq/entitlement-engine/eligibility"
)

func TestMergeVersion2WinsNaturalKeyConflicts(t *testing.T) {
	// GIVEN a legacy category-level rule and a current subcategory-level
	// rule on the same natural key
	legacy := rule(companyA, "Pilot", eligibility.GenderUnisex, "Trouser", 2, 6, eligibility.UnitMonths, t0)
	current := rule(companyA, "Pilot", eligibility.GenderUnisex, "Pants", 4, 1, eligibility.UnitYears, t0)

	// WHEN merging (note: "Trouser" and "Pants" normalize to the same
	// category, so the keys collide)
	result := eligibility.MergeLegacyRules([]eligibility.Rule{legacy}, []eligibility.Rule{current})

	// THEN version 2 wins and the collision is counted as a conflict
	if result.Migrated != 1 || result.Conflicts != 1 {
		t.Fatalf("migrated=%d conflicts=%d, want 1/1", result.Migrated, result.Conflicts)
	}
	winner := result.Rules[0]
	if winner.SchemaVersion != 2 || winner.Quantity != 4 {
		t.Fatalf("winner = %+v, want the version-2 rule", winner)
	}
}

func TestMergeNewerUpdatedAtWinsWithinVersion(t *testing.T) {
	older := rule(companyA, "Pilot", eligibility.GenderMale, "Jacket", 1, 1, eligibility.UnitYears, t0)
	newer := rule(companyA, "Pilot", eligibility.GenderMale, "Blazer", 3, 6, eligibility.UnitMonths, t0.Add(24*time.Hour))

	result := eligibility.MergeLegacyRules(nil, []eligibility.Rule{older, newer})

	if result.Migrated != 1 || result.Superseded != 1 {
		t.Fatalf("migrated=%d superseded=%d, want 1/1", result.Migrated, result.Superseded)
	}
	if result.Rules[0].Quantity != 3 {
		t.Fatalf("winner = %+v, want the newer rule", result.Rules[0])
	}
}

func TestMergeDistinctKeysAllSurvive(t *testing.T) {
	result := eligibility.MergeLegacyRules(
		[]eligibility.Rule{rule(companyA, "Pilot", eligibility.GenderUnisex, "Shirt", 2, 6, eligibility.UnitMonths, t0)},
		[]eligibility.Rule{
			rule(companyA, "Pilot", eligibility.GenderUnisex, "Shoe", 1, 1, eligibility.UnitYears, t0),
			rule(companyB, "Pilot", eligibility.GenderUnisex, "Shirt", 5, 6, eligibility.UnitMonths, t0),
		},
	)

	if result.Migrated != 3 || result.Conflicts != 0 || result.Superseded != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestMergeIsIdempotentOverItsOwnOutput(t *testing.T) {
	first := eligibility.MergeLegacyRules(
		[]eligibility.Rule{rule(companyA, "Pilot", eligibility.GenderUnisex, "Shirt", 2, 6, eligibility.UnitMonths, t0)},
		[]eligibility.Rule{rule(companyA, "Pilot", eligibility.GenderUnisex, "Shirts", 5, 6, eligibility.UnitMonths, t0)},
	)

	// Re-running over the canonical set migrates nothing new.
	second := eligibility.MergeLegacyRules(nil, first.Rules)
	if second.Migrated != first.Migrated || second.Conflicts != 0 || second.Superseded != 0 {
		t.Fatalf("re-run changed the set: %+v vs %+v", second, first)
	}
}
