// Package aggregate provides GridKit's column aggregation engine: a
// registry of named aggregators, the built-in count/sum/avg/min/max
// functions, and the resolution order used for column totals.
//
// Aggregators are type-erased closures over typed cell values; the concrete
// value type is bound once at column-definition time, never discovered by
// reflection. A single non-convertible value is skipped by the built-ins,
// never aborting the whole computation.
package aggregate

import (
	"sync"

	"github.com/gridkit/gridkit/pkg/errors"
	"github.com/gridkit/gridkit/pkg/logger"
	"go.uber.org/zap"

	"github.com/gridkit/gridkit/pkg/models"
)

// Func reduces a column's cell values to a single value. A null result
// means the aggregator produced no value for this input.
type Func = models.AggregateFunc

// Built-in aggregator keys.
const (
	KeyCount = "count"
	KeySum   = "sum"
	KeyAvg   = "avg"
	KeyMin   = "min"
	KeyMax   = "max"

	// DefaultKey is the aggregator used when a column names none.
	DefaultKey = KeySum
)

// Registry holds named aggregators. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewRegistry creates a registry pre-populated with the built-ins.
func NewRegistry() *Registry {
	r := &Registry{funcs: make(map[string]Func)}
	r.funcs[KeyCount] = Count
	r.funcs[KeySum] = Sum
	r.funcs[KeyAvg] = Avg
	r.funcs[KeyMin] = Min
	r.funcs[KeyMax] = Max
	return r
}

// Register adds or replaces a named aggregator.
func (r *Registry) Register(name string, fn Func) error {
	if name == "" {
		return errors.New(errors.ErrorTypeValidation, "aggregator name cannot be empty")
	}
	if fn == nil {
		return errors.New(errors.ErrorTypeValidation, "aggregator function cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
	return nil
}

// Get returns a registered aggregator.
func (r *Registry) Get(name string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// Resolve picks the aggregator for a column by priority: the explicit
// function attached at definition time, then the registry key named in the
// column metadata, then the default. A key that resolves to nothing is a
// configuration error, reported at setup time, never silently ignored.
func (r *Registry) Resolve(col *models.Column) (Func, string, error) {
	if col.Aggregate != nil {
		return col.Aggregate, "custom", nil
	}
	if col.AggregateKey != "" {
		fn, ok := r.Get(col.AggregateKey)
		if !ok {
			return nil, "", errors.New(errors.ErrorTypeConfig, "unregistered aggregator key referenced").
				WithDetail("key", col.AggregateKey).
				WithDetail("column", col.ID)
		}
		return fn, col.AggregateKey, nil
	}
	fn, _ := r.Get(DefaultKey)
	return fn, DefaultKey, nil
}

// Apply runs an aggregator over the values, falling back to count when the
// chosen aggregator yields no value and count was not already the choice.
// A panicking aggregator is treated as yielding no value.
func (r *Registry) Apply(fn Func, name string, values []models.Value) models.Value {
	result := safeApply(fn, name, values)
	if result.IsNull && name != KeyCount {
		return safeApply(Count, KeyCount, values)
	}
	return result
}

// safeApply invokes an aggregator, converting a panic into a null result so
// one bad value set never aborts the recompute.
func safeApply(fn Func, name string, values []models.Value) (result models.Value) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Get().Warn("aggregator panicked, value excluded",
				zap.String("aggregator", name), zap.Any("panic", rec))
			result = models.Null()
		}
	}()
	return fn(values)
}

// Count counts non-null values.
func Count(values []models.Value) models.Value {
	n := int64(0)
	for _, v := range values {
		if !v.IsNull {
			n++
		}
	}
	return models.NewInt(n)
}

// Sum sums the double-convertible values, skipping non-convertible ones.
// Yields no value when nothing converts.
func Sum(values []models.Value) models.Value {
	sum, n := 0.0, 0
	for _, v := range values {
		if f, ok := v.AsFloat(); ok {
			sum += f
			n++
		}
	}
	if n == 0 {
		return models.Null()
	}
	return models.NewFloat(sum)
}

// Avg averages the double-convertible values, skipping non-convertible
// ones. Yields no value when nothing converts.
func Avg(values []models.Value) models.Value {
	sum, n := 0.0, 0
	for _, v := range values {
		if f, ok := v.AsFloat(); ok {
			sum += f
			n++
		}
	}
	if n == 0 {
		return models.Null()
	}
	return models.NewFloat(sum / float64(n))
}

// Min returns the smallest non-null value under the generic value
// ordering. Yields no value on all-null input.
func Min(values []models.Value) models.Value {
	best := models.Null()
	for _, v := range values {
		if v.IsNull {
			continue
		}
		if best.IsNull || v.Compare(best) < 0 {
			best = v
		}
	}
	return best
}

// Max returns the largest non-null value under the generic value ordering.
// Yields no value on all-null input.
func Max(values []models.Value) models.Value {
	best := models.Null()
	for _, v := range values {
		if v.IsNull {
			continue
		}
		if best.IsNull || v.Compare(best) > 0 {
			best = v
		}
	}
	return best
}
