package eligibility

import "strings"

// =============================================================================
// NORMALIZER - Free-form category names to canonical tags
// =============================================================================

// synonyms maps lower-cased, trimmed legacy names to canonical tags.
// The table covers every spelling observed in production data.
var synonyms = map[string]Category{
	"shirt":       CategoryShirt,
	"shirts":      CategoryShirt,
	"t-shirt":     CategoryShirt,
	"tshirt":      CategoryShirt,
	"pant":        CategoryPant,
	"pants":       CategoryPant,
	"trouser":     CategoryPant,
	"trousers":    CategoryPant,
	"shoe":        CategoryShoe,
	"shoes":       CategoryShoe,
	"boot":        CategoryShoe,
	"boots":       CategoryShoe,
	"jacket":      CategoryJacket,
	"jackets":     CategoryJacket,
	"blazer":      CategoryJacket,
	"coat":        CategoryJacket,
	"accessory":   CategoryAccessory,
	"accessories": CategoryAccessory,
	"belt":        CategoryAccessory,
	"cap":         CategoryAccessory,
	"tie":         CategoryAccessory,
}

// Normalize maps a raw category or subcategory name to its canonical
// tag. Unknown names pass through lower-cased and trimmed; they are NOT
// an error here. The integrity checker reports them.
func Normalize(raw string) Category {
	name := strings.ToLower(strings.TrimSpace(raw))
	if canonical, ok := synonyms[name]; ok {
		return canonical
	}
	return Category(name)
}

// NormalizeKnown is Normalize plus a flag telling whether the result
// belongs to the canonical enumeration.
func NormalizeKnown(raw string) (Category, bool) {
	c := Normalize(raw)
	return c, c.Known()
}
