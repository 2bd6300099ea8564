// Package filter implements GridKit's filter evaluation semantics: one
// global filter (OR across visible columns, or a custom row predicate)
// ANDed with zero or more per-column filters.
//
// Per-column filter values are a tagged union (see models.FilterValue) and
// are matched exhaustively here. Evaluation is deliberately forgiving:
//   - a nil filter value always passes (no filtering applied)
//   - an unknown column id is a no-op, never an error
//   - a null cell fails every filter except a nil filter value
//   - a panicking custom predicate excludes only itself from the decision
package filter

import (
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/gridkit/gridkit/pkg/logger"
	"github.com/gridkit/gridkit/pkg/models"
)

const (
	// scalarTolerance is the equality tolerance for raw scalar doubles.
	scalarTolerance = 0.001
	// exprTolerance is the equality tolerance for numeric expressions.
	exprTolerance = 1e-6
)

// Evaluator decides pass/fail for rows against a table state. It is
// stateless apart from the column set and safe for concurrent use.
type Evaluator struct {
	columns map[string]*models.Column
	ordered []*models.Column
}

// NewEvaluator creates an evaluator over the table's column definitions.
func NewEvaluator(columns []*models.Column) *Evaluator {
	byID := make(map[string]*models.Column, len(columns))
	for _, c := range columns {
		byID[c.ID] = c
	}
	return &Evaluator{columns: byID, ordered: columns}
}

// RowPasses evaluates the global filter first, then every column filter
// with AND semantics, short-circuiting on the first failure.
func (e *Evaluator) RowPasses(row *models.Row, state models.TableState) bool {
	if !e.globalPasses(row, state) {
		return false
	}
	for _, cf := range state.ColumnFilters {
		if cf.Value == nil {
			continue
		}
		col, ok := e.columns[cf.ColumnID]
		if !ok {
			// Stale state may reference removed columns; tolerate it.
			continue
		}
		cell := row.CellValue(col)
		if col.Filter != nil {
			pass, applied := e.applyCustom(col, cell, cf.Value)
			if applied {
				if !pass {
					return false
				}
				continue
			}
			// Fall through to built-in semantics when the custom
			// predicate faulted.
		}
		if !Matches(cell, cf.Value) {
			return false
		}
	}
	return true
}

// globalPasses evaluates the global filter: a custom row predicate when
// set, otherwise an OR of case-insensitive containment across the cells of
// visible columns.
func (e *Evaluator) globalPasses(row *models.Row, state models.TableState) bool {
	gf := state.GlobalFilter
	if gf == nil {
		return true
	}
	if gf.Predicate != nil {
		pass, applied := e.applyPredicate(gf.Predicate, row)
		if applied {
			return pass
		}
		return true
	}
	query := strings.TrimSpace(gf.Query)
	if query == "" {
		return true
	}
	needle := strings.ToLower(query)
	for _, col := range e.ordered {
		if state.IsHidden(col.ID, col.DefaultHidden) {
			continue
		}
		cell := row.CellValue(col)
		if cell.IsNull {
			continue
		}
		if strings.Contains(strings.ToLower(cell.AsString()), needle) {
			return true
		}
	}
	return false
}

// applyCustom runs a column's custom filter function, recovering from
// panics. The second return value reports whether the predicate produced a
// usable decision.
func (e *Evaluator) applyCustom(col *models.Column, cell models.Value, fv models.FilterValue) (pass, applied bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Get().Warn("custom filter panicked, predicate skipped",
				zap.String("column", col.ID), zap.Any("panic", r))
			pass, applied = false, false
		}
	}()
	return col.Filter(cell, fv), true
}

// applyPredicate runs the global row predicate, recovering from panics.
func (e *Evaluator) applyPredicate(pred func(*models.Row) bool, row *models.Row) (pass, applied bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Get().Warn("global filter predicate panicked, predicate skipped",
				zap.String("row", row.ID), zap.Any("panic", r))
			pass, applied = false, false
		}
	}()
	return pred(row), true
}

// Matches evaluates one filter value variant against a cell value. The
// variants are matched exhaustively; an unrecognized variant fails closed.
func Matches(cell models.Value, fv models.FilterValue) bool {
	switch f := fv.(type) {
	case nil:
		return true
	case models.ScalarFilter:
		return matchScalar(cell, f)
	case models.TextFilter:
		return matchText(cell, f)
	case models.SetFilter:
		return matchSet(cell, f)
	case models.RangeFilter:
		return matchRange(cell, f)
	default:
		return false
	}
}

// matchScalar implements raw scalar semantics: typed equality first when
// the scalar round-trips to the cell's type, substring containment for
// plain strings, tolerance equality for doubles.
func matchScalar(cell models.Value, f models.ScalarFilter) bool {
	if f.Value.IsNull {
		return true
	}
	if cell.IsNull {
		return false
	}
	switch f.Value.Kind {
	case models.KindString:
		query := f.Value.Raw.(string)
		// Typed cells check typed equality when the query string
		// round-trips to an equal typed value.
		switch cell.Kind {
		case models.KindBool:
			if b, err := strconv.ParseBool(query); err == nil {
				return cell.Raw.(bool) == b
			}
		case models.KindInt:
			if i, err := strconv.ParseInt(strings.TrimSpace(query), 10, 64); err == nil {
				return cell.Raw.(int64) == i
			}
		case models.KindFloat:
			if fl, err := strconv.ParseFloat(strings.TrimSpace(query), 64); err == nil {
				return math.Abs(cell.Raw.(float64)-fl) <= scalarTolerance
			}
		}
		if pass, ok := tryNumericExpr(query, cell); ok {
			return pass
		}
		return strings.Contains(strings.ToLower(cell.AsString()), strings.ToLower(query))
	case models.KindBool:
		b, ok := cell.AsBool()
		return ok && b == f.Value.Raw.(bool)
	case models.KindInt:
		if cell.Kind == models.KindInt {
			return cell.Raw.(int64) == f.Value.Raw.(int64)
		}
		fl, ok := cell.AsFloat()
		return ok && math.Abs(fl-float64(f.Value.Raw.(int64))) <= scalarTolerance
	case models.KindFloat:
		fl, ok := cell.AsFloat()
		return ok && math.Abs(fl-f.Value.Raw.(float64)) <= scalarTolerance
	default:
		return false
	}
}

// matchText implements the text filter modes. A query that parses as a
// numeric expression is applied numerically when the cell converts to a
// double; otherwise it falls through to plain text comparison.
func matchText(cell models.Value, f models.TextFilter) bool {
	if cell.IsNull {
		return false
	}
	if pass, ok := tryNumericExpr(f.Query, cell); ok {
		return pass
	}
	text := cell.AsString()
	query := f.Query
	if !f.CaseSensitive {
		text = strings.ToLower(text)
		query = strings.ToLower(query)
	}
	switch f.Mode {
	case models.MatchContains:
		return strings.Contains(text, query)
	case models.MatchStartsWith:
		return strings.HasPrefix(text, query)
	case models.MatchEndsWith:
		return strings.HasSuffix(text, query)
	case models.MatchFuzzy:
		return fuzzyMatch(text, query)
	default:
		return false
	}
}

// matchSet implements set filter semantics over comma-separated cell
// tokens. An empty selection list means no filtering at all.
func matchSet(cell models.Value, f models.SetFilter) bool {
	if len(f.SelectedValues) == 0 {
		return true
	}
	text := ""
	if !cell.IsNull {
		text = strings.TrimSpace(cell.AsString())
	}
	if text == "" {
		return f.IncludeBlanks
	}
	tokens := map[string]bool{}
	for _, tok := range strings.Split(text, ",") {
		tokens[strings.TrimSpace(tok)] = true
	}
	switch f.Operator {
	case models.SetAll:
		for _, sel := range f.SelectedValues {
			if !tokens[sel] {
				return false
			}
		}
		return true
	default: // SetAny
		for _, sel := range f.SelectedValues {
			if tokens[sel] {
				return true
			}
		}
		return false
	}
}

// matchRange implements inclusive range semantics over double-convertible
// cells. Either bound may be absent.
func matchRange(cell models.Value, f models.RangeFilter) bool {
	v, ok := cell.AsFloat()
	if !ok {
		return false
	}
	if f.Min != nil && v < *f.Min {
		return false
	}
	if f.Max != nil && v > *f.Max {
		return false
	}
	return true
}

// tryNumericExpr prefix-parses a comparison operator followed by a float
// literal. The second return value reports whether the expression applied:
// it is false when the query is not an expression or the cell does not
// convert to a double, in which case the caller falls back to text
// comparison.
func tryNumericExpr(query string, cell models.Value) (pass, ok bool) {
	op, rest := parseOperator(strings.TrimSpace(query))
	if op == "" {
		return false, false
	}
	bound, err := strconv.ParseFloat(strings.TrimSpace(rest), 64)
	if err != nil {
		return false, false
	}
	v, convertible := cell.AsFloat()
	if !convertible {
		return false, false
	}
	switch op {
	case "<=":
		return v <= bound, true
	case ">=":
		return v >= bound, true
	case "!=":
		return math.Abs(v-bound) > exprTolerance, true
	case "<":
		return v < bound, true
	case ">":
		return v > bound, true
	default: // "=" and "=="
		return math.Abs(v-bound) <= exprTolerance, true
	}
}

// parseOperator strips a leading comparison operator. Two-character
// operators are matched before their one-character prefixes.
func parseOperator(s string) (op, rest string) {
	for _, candidate := range []string{"<=", ">=", "!=", "==", "<", ">", "="} {
		if strings.HasPrefix(s, candidate) {
			return candidate, s[len(candidate):]
		}
	}
	return "", s
}

// fuzzyMatch reports whether the whitespace-stripped pattern appears as an
// ordered, not necessarily contiguous subsequence of the text.
func fuzzyMatch(text, pattern string) bool {
	pattern = strings.Join(strings.Fields(pattern), "")
	if pattern == "" {
		return true
	}
	next := 0
	patternRunes := []rune(pattern)
	for _, r := range text {
		if r == patternRunes[next] {
			next++
			if next == len(patternRunes) {
				return true
			}
		}
	}
	return false
}
