package models

import "fmt"

// FilterValue is the polymorphic per-column filter value slot. It is a
// sealed tagged union; the evaluator matches every variant exhaustively. A
// nil FilterValue means no filtering for that column.
type FilterValue interface {
	filterValue()
}

// ScalarFilter holds a raw scalar filter value (string, bool, int, or
// float). Typed cells check typed equality first when the scalar
// round-trips to the cell's type; plain strings fall back to
// case-insensitive substring containment.
type ScalarFilter struct {
	Value Value `json:"value"`
}

func (ScalarFilter) filterValue() {}

// TextMatchMode selects the text filter comparison.
type TextMatchMode int

const (
	// MatchContains passes cells containing the query.
	MatchContains TextMatchMode = iota
	// MatchStartsWith passes cells starting with the query.
	MatchStartsWith
	// MatchEndsWith passes cells ending with the query.
	MatchEndsWith
	// MatchFuzzy passes cells where the whitespace-stripped query appears
	// as an ordered, not necessarily contiguous subsequence.
	MatchFuzzy
)

// String returns the string representation of a TextMatchMode.
func (m TextMatchMode) String() string {
	switch m {
	case MatchContains:
		return "contains"
	case MatchStartsWith:
		return "starts_with"
	case MatchEndsWith:
		return "ends_with"
	case MatchFuzzy:
		return "fuzzy"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// TextFilter matches cell text against a query under one of four modes.
// The query may also embed a numeric expression (a comparison operator
// followed by a float literal); see the filter package for the evaluation
// rules.
type TextFilter struct {
	Query         string        `json:"query"`
	Mode          TextMatchMode `json:"mode"`
	CaseSensitive bool          `json:"case_sensitive"`
}

func (TextFilter) filterValue() {}

// SetOperator selects how selected set values combine.
type SetOperator int

const (
	// SetAny passes cells containing at least one selected token.
	SetAny SetOperator = iota
	// SetAll passes cells containing every selected token.
	SetAll
)

// String returns the string representation of a SetOperator.
func (op SetOperator) String() string {
	switch op {
	case SetAny:
		return "any"
	case SetAll:
		return "all"
	default:
		return fmt.Sprintf("unknown(%d)", int(op))
	}
}

// SetFilter matches cells whose comma-separated tokens intersect the
// selected values. An empty selection means no filtering: every row passes,
// blanks included.
type SetFilter struct {
	SelectedValues []string    `json:"selected_values"`
	Operator       SetOperator `json:"operator"`
	IncludeBlanks  bool        `json:"include_blanks"`
}

func (SetFilter) filterValue() {}

// RangeFilter passes cells that convert to a float within the supplied
// inclusive bounds. Either bound may be absent.
type RangeFilter struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

func (RangeFilter) filterValue() {}
