/*
migration.go - Collapse of the two legacy rule collections

PURPOSE:
  The platform accumulated two parallel rule collections: a legacy
  category-level one (schema version 1) and the current subcategory-level
  one (schema version 2). MergeLegacyRules is the pure reconciliation
  pass that collapses them into one canonical rule set keyed by
  (company, designation, gender, subcategory).

CONFLICT POLICY:
  - Version 2 always beats version 1 on the same natural key.
  - Within one version, the most recently updated rule wins and the
    older one counts as superseded.

  The store layer upserts the merged set by natural key, which makes a
  re-run migrate nothing new.

SEE ALSO:
  - store/mongo: reads the legacy collections and applies the merge
*/
package eligibility

// MigrationResult summarizes one reconciliation pass.
type MigrationResult struct {
	Rules []Rule // canonical set, one per natural key

	Migrated   int // distinct natural keys in the output
	Superseded int // same-version rules replaced by a newer UpdatedAt
	Conflicts  int // version-1 rules beaten by a version-2 rule
}

// MergeLegacyRules reconciles the category-level (version 1) and
// subcategory-level (version 2) rule sets into one canonical set.
// Inputs are not mutated.
func MergeLegacyRules(categoryLevel, subcategoryLevel []Rule) MigrationResult {
	var result MigrationResult
	byKey := make(map[string]Rule)
	order := make([]string, 0, len(categoryLevel)+len(subcategoryLevel))

	place := func(rule Rule) {
		key := rule.NaturalKey()
		existing, ok := byKey[key]
		if !ok {
			byKey[key] = rule
			order = append(order, key)
			return
		}
		switch {
		case rule.SchemaVersion > existing.SchemaVersion:
			byKey[key] = rule
			result.Conflicts++
		case rule.SchemaVersion < existing.SchemaVersion:
			result.Conflicts++
		case rule.UpdatedAt.After(existing.UpdatedAt):
			byKey[key] = rule
			result.Superseded++
		default:
			result.Superseded++
		}
	}

	for _, r := range categoryLevel {
		r.SchemaVersion = 1
		place(r)
	}
	for _, r := range subcategoryLevel {
		r.SchemaVersion = 2
		place(r)
	}

	result.Rules = make([]Rule, 0, len(order))
	for _, key := range order {
		result.Rules = append(result.Rules, byKey[key])
	}
	result.Migrated = len(result.Rules)
	return result
}
