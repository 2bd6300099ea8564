package models

import (
	"strconv"
	"time"
)

// Accessor projects a typed cell value out of a record.
type Accessor func(*Record) Value

// CompareFunc is a custom sort comparison over two cell values. It must
// return a negative number, zero, or a positive number.
type CompareFunc func(a, b Value) int

// FilterFunc is a custom per-column filter predicate. It receives the cell
// value and the column's active filter value.
type FilterFunc func(cell Value, filter FilterValue) bool

// AggregateFunc reduces the non-null cell values of a column slice to a
// single value. Returning a null value means the aggregator produced no
// result for this input.
type AggregateFunc func(values []Value) Value

// Column is an immutable column definition: identity, a typed value
// accessor, optional custom sort/filter/aggregate functions, and display
// defaults. Columns are created once at table construction and never
// mutated; derived display state (current sort direction, filter value,
// visibility, size) lives in TableState.
type Column struct {
	// ID is the stable column identity referenced by state and filters.
	ID string

	// Accessor extracts this column's typed value from a record.
	Accessor Accessor

	// Compare optionally overrides the natural value ordering for sorting.
	Compare CompareFunc

	// Filter optionally overrides the built-in filter evaluation.
	Filter FilterFunc

	// Aggregate is an explicit typed aggregation function. It takes
	// priority over AggregateKey. The concrete value type is bound once
	// here, at definition time.
	Aggregate AggregateFunc

	// AggregateKey names a registered aggregator to use when Aggregate is
	// nil. An empty key selects the default aggregator.
	AggregateKey string

	// DefaultWidth is the initial column width hint.
	DefaultWidth int

	// DefaultHidden marks the column as initially invisible.
	DefaultHidden bool
}

// NewColumn creates a column definition with the given id and accessor.
func NewColumn(id string, accessor Accessor) *Column {
	return &Column{ID: id, Accessor: accessor, DefaultWidth: 100}
}

// FieldAccessor returns an accessor that reads the named record field and
// infers the value kind from the dynamic type.
func FieldAccessor(field string) Accessor {
	return func(r *Record) Value {
		return r.Field(field)
	}
}

// StringAccessor returns an accessor that coerces the named field to a
// string value. Absent fields are null.
func StringAccessor(field string) Accessor {
	return func(r *Record) Value {
		v := r.Field(field)
		if v.IsNull {
			return v
		}
		return NewString(v.AsString())
	}
}

// FloatAccessor returns an accessor that coerces the named field to a float
// value. Non-convertible and absent fields are null.
func FloatAccessor(field string) Accessor {
	return func(r *Record) Value {
		v := r.Field(field)
		if f, ok := v.AsFloat(); ok {
			return NewFloat(f)
		}
		return Null()
	}
}

// IntAccessor returns an accessor that coerces the named field to an
// integer value. Non-convertible and absent fields are null.
func IntAccessor(field string) Accessor {
	return func(r *Record) Value {
		v := r.Field(field)
		if v.IsNull {
			return v
		}
		if v.Kind == KindInt {
			return v
		}
		if i, err := strconv.ParseInt(v.AsString(), 10, 64); err == nil {
			return NewInt(i)
		}
		return Null()
	}
}

// BoolAccessor returns an accessor that coerces the named field to a
// boolean value. Non-convertible and absent fields are null.
func BoolAccessor(field string) Accessor {
	return func(r *Record) Value {
		v := r.Field(field)
		if b, ok := v.AsBool(); ok {
			return NewBool(b)
		}
		return Null()
	}
}

// TimeAccessor returns an accessor that coerces the named field to a
// timestamp, parsing RFC 3339 strings. Non-convertible fields are null.
func TimeAccessor(field string) Accessor {
	return func(r *Record) Value {
		v := r.Field(field)
		if t, ok := v.AsTime(); ok {
			return NewTime(t)
		}
		if v.Kind == KindString {
			if t, err := time.Parse(time.RFC3339, v.Raw.(string)); err == nil {
				return NewTime(t)
			}
		}
		return Null()
	}
}
