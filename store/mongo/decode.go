/*
decode.go - Heterogeneous reference reconciliation

  asRef:     decode a stored reference of ANY legacy shape into refs.Ref
  refValue:  encode a Ref for writing (ObjectId when it can be one)
  refFilter: build the $in filter matching every shape a stored document
             might hold for one Ref

  New documents always write ObjectIds; the read path tolerates the
  legacy shapes forever.
*/
package mongo

import (
	"fmt"
	"strconv"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/uniformhq/entitlement-engine/refs"
)

// asRef decodes a reference field that may be an ObjectId, a string
// (hex, numeric, or junk), or a number.
func asRef(v any) refs.Ref {
	switch t := v.(type) {
	case nil:
		return refs.Ref{}
	case primitive.ObjectID:
		return refs.FromObjectID(t)
	case string:
		return refs.Parse(t)
	case int32:
		return refs.Parse(fmt.Sprintf("%06d", t))
	case int64:
		return refs.Parse(fmt.Sprintf("%06d", t))
	case float64:
		return refs.Parse(fmt.Sprintf("%06d", int64(t)))
	default:
		return refs.Parse(fmt.Sprint(t))
	}
}

// refValue encodes a Ref for writing: ObjectId where possible, the
// canonical string otherwise.
func refValue(r refs.Ref) any {
	if oid, ok := r.ObjectID(); ok {
		return oid
	}
	return r.Canonical()
}

// refFilter matches a field against every shape the Ref may be stored
// under. Numeric refs also match their integer encodings.
func refFilter(field string, r refs.Ref) bson.M {
	candidates := r.Candidates()
	if r.Kind() == refs.KindNumeric {
		if n, err := strconv.ParseInt(r.Canonical(), 10, 64); err == nil {
			candidates = append(candidates, int32(n), n)
		}
	}
	return bson.M{field: bson.M{"$in": candidates}}
}

// asString tolerates fields that legacy writers stored as numbers.
func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatInt(int64(t), 10)
	default:
		return fmt.Sprint(t)
	}
}
