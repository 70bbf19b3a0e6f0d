// Package value implements the dynamic, tagged-variant typed value used by
// object default values, desired-state instance values, and live instance
// values: a Kind tag selecting one of the typed fields, with parse, format,
// equality, and release capabilities dispatched on the tag.
package value

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind is the value-type tag carried by every object class and value.
type Kind int

const (
	// KindUnspecified marks an object whose value type was never set.
	// REGISTER with an unspecified type is accepted (it is a recognized
	// tag) but such objects can never carry a value.
	KindUnspecified Kind = iota
	// KindNone means the object carries no value at all (a marker instance).
	KindNone
	KindInt
	KindString
	KindAddr
	KindBool
)

// kindNames is the wire name for each Kind, used by REGISTER's "type"
// attribute and by error messages.
var kindNames = map[Kind]string{
	KindUnspecified: "unspecified",
	KindNone:        "none",
	KindInt:         "int",
	KindString:      "string",
	KindAddr:        "addr",
	KindBool:        "bool",
}

var namesToKind = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames))
	for k, v := range kindNames {
		m[v] = k
	}
	return m
}()

// ParseKind resolves a wire type name to a Kind. Registration rejects an
// unrecognized name as invalid.
func ParseKind(name string) (Kind, bool) {
	k, ok := namesToKind[name]
	return k, ok
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "unknown"
}

// Value is a tagged variant: exactly one of the typed fields is meaningful,
// selected by Kind.
type Value struct {
	Kind Kind
	Int  int64
	Str  string
	Bool bool
}

// Parse converts a wire-format string into a Value of the given Kind. A
// missing value for a non-none kind, or a present value for KindNone, is
// the caller's responsibility to reject; Parse itself only validates that
// the string is well-formed for the kind.
func Parse(k Kind, s string) (Value, error) {
	switch k {
	case KindNone, KindUnspecified:
		return Value{Kind: k}, nil
	case KindInt:
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("parse int value %q: %w", s, err)
		}
		return Value{Kind: k, Int: n}, nil
	case KindString, KindAddr:
		return Value{Kind: k, Str: s}, nil
	case KindBool:
		b, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return Value{}, fmt.Errorf("parse bool value %q: %w", s, err)
		}
		return Value{Kind: k, Bool: b}, nil
	default:
		return Value{}, fmt.Errorf("parse value: unrecognized kind %v", k)
	}
}

// Format renders a Value back to its wire string form, the inverse of Parse.
func Format(v Value) string {
	switch v.Kind {
	case KindNone, KindUnspecified:
		return ""
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindString, KindAddr:
		return v.Str
	case KindBool:
		return strconv.FormatBool(v.Bool)
	default:
		return ""
	}
}

// Equal reports whether two values are equal. Values of differing Kind are
// never equal.
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNone, KindUnspecified:
		return true
	case KindInt:
		return a.Int == b.Int
	case KindString, KindAddr:
		return a.Str == b.Str
	case KindBool:
		return a.Bool == b.Bool
	default:
		return false
	}
}

// Free releases any resources owned by a Value. The garbage collector makes
// this a no-op for the current kinds; a future Kind backed by an external
// resource has somewhere to hook in.
func Free(Value) {}
