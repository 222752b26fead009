// Package extract pulls named series of values out of program output.
// Three strategies are supported: scanning for tagged lines in an output
// file, parsing whitespace-delimited tables produced by an extraction
// script, and parsing YAML produced by an extraction script.
package extract

import (
	"sort"
	"strconv"
)

// Value is a single extracted datum: a float where the token parsed as one,
// otherwise the raw string. Non-numeric values are compared by equality
// rather than by tolerance.
type Value struct {
	num     float64
	str     string
	numeric bool
}

// Num wraps a float.
func Num(f float64) Value { return Value{num: f, numeric: true} }

// Str wraps a non-numeric token.
func Str(s string) Value { return Value{str: s} }

// ParseToken converts a token to a numeric Value if it parses as a float
// and to a string Value otherwise.
func ParseToken(tok string) Value {
	if f, err := strconv.ParseFloat(tok, 64); err == nil {
		return Num(f)
	}
	return Str(tok)
}

func (v Value) Numeric() bool  { return v.numeric }
func (v Value) Float() float64 { return v.num }

func (v Value) String() string {
	if v.numeric {
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	}
	return v.str
}

// Equal reports exact equality, used for values which cannot be compared
// numerically.
func (v Value) Equal(other Value) bool {
	if v.numeric != other.numeric {
		return false
	}
	if v.numeric {
		return v.num == other.num
	}
	return v.str == other.str
}

// Data maps a field name to the ordered sequence of values extracted for
// it. Insertion order of values follows file order.
type Data map[string][]Value

// Keys returns the field names in sorted order for deterministic output.
func (d Data) Keys() []string {
	keys := make([]string, 0, len(d))
	for key := range d {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
