/*
migrate.go - One-shot reconciliation of the legacy rule collections

PURPOSE:
  Reads the category-level and subcategory-level eligibility collections,
  merges them with eligibility.MergeLegacyRules, and upserts the result
  into the canonical rules collection keyed by natural key. Safe to run
  repeatedly.

SEE ALSO:
  - eligibility/migration.go: the merge policy
*/
package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/uniformhq/entitlement-engine/eligibility"
)

// MigrateRules collapses the two legacy rule collections into the
// canonical one. Designations in the legacy collections may be
// ciphertext; they are decrypted before the natural key is computed so
// rules for the same designation land on the same key.
func (s *Store) MigrateRules(ctx context.Context) (eligibility.MigrationResult, error) {
	categoryLevel, err := s.loadLegacyRules(ctx, colLegacyCategory)
	if err != nil {
		return eligibility.MigrationResult{}, err
	}
	subcategoryLevel, err := s.loadLegacyRules(ctx, colLegacySubcat)
	if err != nil {
		return eligibility.MigrationResult{}, err
	}

	result := eligibility.MergeLegacyRules(categoryLevel, subcategoryLevel)

	coll := s.db.Collection(colRules)
	for _, rule := range result.Rules {
		doc := ruleDoc{
			ID:            refValue(rule.ID),
			Company:       refValue(rule.CompanyID),
			Designation:   rule.Designation,
			Gender:        string(rule.Gender),
			Subcategory:   rule.Subcategory,
			SubcategoryID: refValue(rule.SubcategoryID),
			Quantity:      rule.Quantity,
			Frequency:     rule.RenewalFrequency,
			Unit:          string(rule.RenewalUnit),
			Status:        string(rule.Status),
			SchemaVersion: rule.SchemaVersion,
			NaturalKey:    rule.NaturalKey(),
			CreatedAt:     rule.CreatedAt,
			UpdatedAt:     rule.UpdatedAt,
		}
		filter := bson.M{"naturalKey": doc.NaturalKey}
		opts := options.Replace().SetUpsert(true)
		if _, err := coll.ReplaceOne(ctx, filter, doc, opts); err != nil {
			return eligibility.MigrationResult{}, fmt.Errorf("upsert rule %s: %w", doc.NaturalKey, err)
		}
	}
	return result, nil
}

func (s *Store) loadLegacyRules(ctx context.Context, collection string) ([]eligibility.Rule, error) {
	cursor, err := s.db.Collection(collection).Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	var out []eligibility.Rule
	for cursor.Next(ctx) {
		var doc ruleDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode %s rule: %w", collection, err)
		}
		rule := doc.toDomain()
		rule.Designation = s.Decrypter.Decrypt(rule.Designation)
		if rule.Status == "" {
			rule.Status = eligibility.RuleActive
		}
		out = append(out, rule)
	}
	return out, cursor.Err()
}
