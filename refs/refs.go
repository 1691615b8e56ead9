/*
Package refs provides the canonical entity reference type.

PURPOSE:
  Legacy data stores the same kind of reference in three shapes:
  - native ObjectIds,
  - 24-hex ObjectId serializations stored as plain strings,
  - 6-digit numeric identifiers stored as strings (or numbers).

  Ref wraps all three behind one opaque value with a single canonical
  form, so every store resolves references through one lookup path
  instead of per-call-site type juggling.

KEY OPERATIONS:
  Parse:      classify a raw string into a Ref
  Canonical:  the one comparable form (lower hex for object ids,
              the digits for numeric ids)
  Candidates: every value shape a document might hold for this Ref,
              for use in a database $in filter

SEE ALSO:
  - store/mongo: resolves Refs against heterogeneous documents
  - integrity: reports references that classify as opaque
*/
package refs

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// =============================================================================
// KIND - How the reference was represented at the source
// =============================================================================

type Kind uint8

const (
	// KindZero is the zero Ref (no reference).
	KindZero Kind = iota

	// KindObjectID is a native ObjectId.
	KindObjectID

	// KindHexString is a 24-hex ObjectId serialization stored as a string.
	KindHexString

	// KindNumeric is a legacy 6-digit numeric identifier.
	KindNumeric

	// KindOpaque is anything that fits no known shape. Opaque refs still
	// round-trip, but the integrity checker flags them as mistyped.
	KindOpaque
)

func (k Kind) String() string {
	switch k {
	case KindZero:
		return "zero"
	case KindObjectID:
		return "objectid"
	case KindHexString:
		return "hex"
	case KindNumeric:
		return "numeric"
	default:
		return "opaque"
	}
}

// =============================================================================
// REF - Opaque entity reference
// =============================================================================

// Ref is a comparable, opaque entity reference. The zero value means
// "no reference".
type Ref struct {
	canonical string
	kind      Kind
}

// Parse classifies a raw string reference.
func Parse(s string) Ref {
	s = strings.TrimSpace(s)
	if s == "" {
		return Ref{}
	}
	if isHex24(s) {
		return Ref{canonical: strings.ToLower(s), kind: KindHexString}
	}
	if isDigits(s) && len(s) == 6 {
		return Ref{canonical: s, kind: KindNumeric}
	}
	return Ref{canonical: s, kind: KindOpaque}
}

// FromObjectID wraps a native ObjectId.
func FromObjectID(oid primitive.ObjectID) Ref {
	if oid.IsZero() {
		return Ref{}
	}
	return Ref{canonical: oid.Hex(), kind: KindObjectID}
}

// New returns a fresh object-id backed Ref.
func New() Ref {
	return FromObjectID(primitive.NewObjectID())
}

func (r Ref) Kind() Kind   { return r.kind }
func (r Ref) IsZero() bool { return r.kind == KindZero }

// Canonical returns the single comparable form: lower-case hex for
// object-id shaped refs, the digits for numeric refs, the raw value
// for opaque refs.
func (r Ref) Canonical() string { return r.canonical }

func (r Ref) String() string { return r.canonical }

// Equal compares two refs by canonical form. An ObjectId and its hex
// serialization compare equal.
func (r Ref) Equal(other Ref) bool {
	if r.IsZero() || other.IsZero() {
		return r.IsZero() && other.IsZero()
	}
	return r.canonical == other.canonical
}

// ObjectID returns the underlying ObjectId when the ref is object-id
// shaped (native or hex string).
func (r Ref) ObjectID() (primitive.ObjectID, bool) {
	if r.kind != KindObjectID && r.kind != KindHexString {
		return primitive.NilObjectID, false
	}
	oid, err := primitive.ObjectIDFromHex(r.canonical)
	if err != nil {
		return primitive.NilObjectID, false
	}
	return oid, true
}

// Candidates returns every value shape a stored document might hold for
// this reference, suitable for a $in filter. Object-id shaped refs match
// both the native ObjectId and its hex string; numeric refs match the
// digit string.
func (r Ref) Candidates() []any {
	switch r.kind {
	case KindZero:
		return nil
	case KindObjectID, KindHexString:
		out := []any{r.canonical}
		if oid, ok := r.ObjectID(); ok {
			out = append(out, oid)
		}
		return out
	default:
		return []any{r.canonical}
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func isHex24(s string) bool {
	if len(s) != 24 {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
