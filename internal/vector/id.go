package vector

import (
	"fmt"
	"strconv"
)

// ID is the disjoint union of an unsigned integer or a non-empty string
// vector identifier.
type ID struct {
	isString bool
	intVal   uint64
	strVal   string
}

// IntID builds an integer-valued ID.
func IntID(v uint64) ID { return ID{intVal: v} }

// StringID builds a string-valued ID. An empty string is never produced
// by the core, but callers constructing one directly are responsible for
// that invariant.
func StringID(v string) ID { return ID{isString: true, strVal: v} }

// IsString reports whether the id holds a string value.
func (id ID) IsString() bool { return id.isString }

// Int returns the integer value. Only meaningful when !IsString().
func (id ID) Int() uint64 { return id.intVal }

// Str returns the string value. Only meaningful when IsString().
func (id ID) Str() string { return id.strVal }

// Key returns a value suitable for use as a Go map key and as a JSON
// object key (the on-disk metadata map is keyed by id-as-string).
func (id ID) Key() string {
	if id.isString {
		return "s:" + id.strVal
	}
	return "i:" + strconv.FormatUint(id.intVal, 10)
}

// String renders the id for logs and error messages.
func (id ID) String() string {
	if id.isString {
		return id.strVal
	}
	return strconv.FormatUint(id.intVal, 10)
}

// MarshalJSON encodes numeric ids as JSON numbers and string ids as JSON
// strings, matching how `vectors[].id` appears in data/meta.json.
func (id ID) MarshalJSON() ([]byte, error) {
	if id.isString {
		return []byte(strconv.Quote(id.strVal)), nil
	}
	return []byte(strconv.FormatUint(id.intVal, 10)), nil
}

// UnmarshalJSON accepts either a JSON number or a JSON string.
func (id *ID) UnmarshalJSON(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty id")
	}
	if data[0] == '"' {
		s, err := strconv.Unquote(string(data))
		if err != nil {
			return err
		}
		*id = StringID(s)
		return nil
	}
	v, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return err
	}
	*id = IntID(v)
	return nil
}

// Compare orders ids numeric-before-string, then by value within each
// kind (numeric by value, string lexicographically). Used to break ties
// between equal-distance results in ascending order.
func Compare(a, b ID) int {
	if a.isString != b.isString {
		if a.isString {
			return 1
		}
		return -1
	}
	if a.isString {
		switch {
		case a.strVal < b.strVal:
			return -1
		case a.strVal > b.strVal:
			return 1
		default:
			return 0
		}
	}
	switch {
	case a.intVal < b.intVal:
		return -1
	case a.intVal > b.intVal:
		return 1
	default:
		return 0
	}
}

// Equal reports whether a and b denote the same id.
func Equal(a, b ID) bool { return Compare(a, b) == 0 }
