// Package metadata defines the heterogeneous scalar/array/object value
// attached to a vector id, and the small set of field-criteria predicates
// the stores evaluate over it.
package metadata

import "encoding/json"

// Value is a JSON-like scalar, array, or object. It is a thin alias over
// `any` rather than a closed sum type: metadata round-trips through
// encoding/json, which already produces exactly these shapes
// (string | float64 | bool | nil | []any | map[string]any).
type Value = any

// Metadata is the mapping from field name to Value attached to one vector.
type Metadata map[string]Value

// Clone returns a deep-enough copy for safe external handoff. Scalars are
// shared (they're immutable by convention); maps and slices are copied one
// level at a time, which is sufficient for the JSON-shaped values this
// package stores.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v Value) Value {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = cloneValue(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = cloneValue(vv)
		}
		return out
	default:
		return v
	}
}

// Criteria is a conjunctive field-existence-and-equality predicate set
// evaluated by getMetadataWithField: every key in Fields must be present;
// if Values holds an entry for that key (a nil entry included), the stored
// value must equal it (via reflect-free JSON round-trip comparison).
type Criteria struct {
	Fields []string
	Values map[string]Value // optional; fields absent here need only exist
}

// Matches reports whether md satisfies c.
func (c Criteria) Matches(md Metadata) bool {
	for _, field := range c.Fields {
		val, ok := md[field]
		if !ok {
			return false
		}
		if want, hasWant := c.Values[field]; hasWant {
			if !equalValue(val, want) {
				return false
			}
		}
	}
	return true
}

// Equal reports whether two metadata values are the same once serialized,
// which is the only comparison that makes sense for a heterogeneous
// scalar/array/object variant.
func Equal(a, b Value) bool { return equalValue(a, b) }

func equalValue(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ab) == string(bb)
}
