// Package models provides the entity model for GridKit: typed cell values,
// records, column definitions, rows, row models, and the immutable table
// state snapshot.
//
// Everything in this package is plain data. Evaluation semantics live in the
// filter, sorting, aggregate, and grouping packages; orchestration lives in
// the table package.
package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind represents the data type of a cell value.
type Kind int

const (
	// KindNull represents an absent value.
	KindNull Kind = iota
	// KindString represents string data.
	KindString
	// KindBool represents boolean data.
	KindBool
	// KindInt represents integer data (any size).
	KindInt
	// KindFloat represents floating-point data (any precision).
	KindFloat
	// KindTime represents timestamp data.
	KindTime
)

// String returns the string representation of a Kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindTime:
		return "time"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Value is a typed container for cell values. It holds the raw value and
// type information; a null value has IsNull set and a zero Raw.
type Value struct {
	// Raw holds the underlying value. The concrete type depends on Kind:
	// string, bool, int64, float64, or time.Time.
	Raw interface{} `json:"raw"`

	// Kind indicates the data type of this value.
	Kind Kind `json:"kind"`

	// IsNull indicates whether this value is null.
	IsNull bool `json:"is_null"`
}

// Null returns the null value.
func Null() Value {
	return Value{Kind: KindNull, IsNull: true}
}

// NewString creates a string value.
func NewString(s string) Value {
	return Value{Raw: s, Kind: KindString}
}

// NewBool creates a boolean value.
func NewBool(b bool) Value {
	return Value{Raw: b, Kind: KindBool}
}

// NewInt creates an integer value.
func NewInt(i int64) Value {
	return Value{Raw: i, Kind: KindInt}
}

// NewFloat creates a floating-point value.
func NewFloat(f float64) Value {
	return Value{Raw: f, Kind: KindFloat}
}

// NewTime creates a timestamp value.
func NewTime(t time.Time) Value {
	return Value{Raw: t, Kind: KindTime}
}

// Infer creates a Value from an arbitrary raw value, inferring the Kind
// from the dynamic type. Unknown types are stringified.
func Infer(raw interface{}) Value {
	switch v := raw.(type) {
	case nil:
		return Null()
	case Value:
		return v
	case string:
		return NewString(v)
	case bool:
		return NewBool(v)
	case int:
		return NewInt(int64(v))
	case int8:
		return NewInt(int64(v))
	case int16:
		return NewInt(int64(v))
	case int32:
		return NewInt(int64(v))
	case int64:
		return NewInt(v)
	case uint:
		return NewInt(int64(v))
	case uint32:
		return NewInt(int64(v))
	case uint64:
		return NewInt(int64(v))
	case float32:
		return NewFloat(float64(v))
	case float64:
		return NewFloat(v)
	case time.Time:
		return NewTime(v)
	default:
		return NewString(fmt.Sprintf("%v", v))
	}
}

// AsString returns the string representation of the value. Null values
// render as the empty string.
func (v Value) AsString() string {
	if v.IsNull {
		return ""
	}
	switch v.Kind {
	case KindString:
		return v.Raw.(string)
	case KindBool:
		return strconv.FormatBool(v.Raw.(bool))
	case KindInt:
		return strconv.FormatInt(v.Raw.(int64), 10)
	case KindFloat:
		return strconv.FormatFloat(v.Raw.(float64), 'f', -1, 64)
	case KindTime:
		return v.Raw.(time.Time).Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", v.Raw)
	}
}

// AsFloat converts the value to a float64 when possible. Integers and
// floats convert directly; numeric strings are parsed. The second return
// value reports whether the conversion succeeded.
func (v Value) AsFloat() (float64, bool) {
	if v.IsNull {
		return 0, false
	}
	switch v.Kind {
	case KindInt:
		return float64(v.Raw.(int64)), true
	case KindFloat:
		return v.Raw.(float64), true
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Raw.(string)), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// AsBool converts the value to a bool when possible.
func (v Value) AsBool() (bool, bool) {
	if v.IsNull {
		return false, false
	}
	switch v.Kind {
	case KindBool:
		return v.Raw.(bool), true
	case KindString:
		b, err := strconv.ParseBool(v.Raw.(string))
		if err != nil {
			return false, false
		}
		return b, true
	default:
		return false, false
	}
}

// AsTime converts the value to a time.Time when possible.
func (v Value) AsTime() (time.Time, bool) {
	if v.IsNull {
		return time.Time{}, false
	}
	if v.Kind == KindTime {
		return v.Raw.(time.Time), true
	}
	return time.Time{}, false
}

// EqualsScalar reports whether the value equals another under scalar filter
// semantics: exact equality for strings/bools/ints, tolerance-based equality
// for floats.
func (v Value) EqualsScalar(other Value, tolerance float64) bool {
	if v.IsNull || other.IsNull {
		return v.IsNull == other.IsNull
	}
	if bothNumeric(v, other) {
		a, _ := v.AsFloat()
		b, _ := other.AsFloat()
		return math.Abs(a-b) <= tolerance
	}
	if v.Kind != other.Kind {
		return false
	}
	return v.Raw == other.Raw
}

// Compare imposes a natural ordering between two non-null values: numeric
// comparison when both values are numeric, native ordering when the kinds
// match, otherwise ordinal comparison of their string forms. Null handling
// is the caller's concern; the sort comparator places nulls last.
func (v Value) Compare(other Value) int {
	if bothNumeric(v, other) {
		a, _ := v.AsFloat()
		b, _ := other.AsFloat()
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		default:
			return 0
		}
	}
	if v.Kind == other.Kind {
		switch v.Kind {
		case KindString:
			return strings.Compare(v.Raw.(string), other.Raw.(string))
		case KindBool:
			a, b := v.Raw.(bool), other.Raw.(bool)
			switch {
			case a == b:
				return 0
			case !a:
				return -1
			default:
				return 1
			}
		case KindTime:
			a, b := v.Raw.(time.Time), other.Raw.(time.Time)
			switch {
			case a.Before(b):
				return -1
			case a.After(b):
				return 1
			default:
				return 0
			}
		}
	}
	return strings.Compare(v.AsString(), other.AsString())
}

// TypeQualifiedKey returns a bucket key that qualifies the value with its
// kind, so int 1 and string "1" never land in the same grouping bucket.
func (v Value) TypeQualifiedKey() string {
	if v.IsNull {
		return "null:"
	}
	return v.Kind.String() + ":" + v.AsString()
}

// bothNumeric reports whether both values carry int or float kinds.
func bothNumeric(a, b Value) bool {
	numeric := func(k Kind) bool { return k == KindInt || k == KindFloat }
	return !a.IsNull && !b.IsNull && numeric(a.Kind) && numeric(b.Kind)
}
