package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridkit/gridkit/pkg/errors"
	"github.com/gridkit/gridkit/pkg/models"
)

func values(raws ...interface{}) []models.Value {
	out := make([]models.Value, len(raws))
	for i, r := range raws {
		out[i] = models.Infer(r)
	}
	return out
}

func TestBuiltins(t *testing.T) {
	tests := []struct {
		name string
		fn   Func
		in   []models.Value
		want models.Value
	}{
		{"count skips nulls", Count, values(1, nil, 3), models.NewInt(2)},
		{"count empty", Count, nil, models.NewInt(0)},
		{"sum", Sum, values(1, 2, 3.5), models.NewFloat(6.5)},
		{"sum skips non-convertible", Sum, values(1, "abc", 2), models.NewFloat(3)},
		{"sum all text yields null", Sum, values("a", "b"), models.Null()},
		{"avg", Avg, values(2, 4), models.NewFloat(3)},
		{"avg parses numeric strings", Avg, values("2", "4"), models.NewFloat(3)},
		{"min numeric", Min, values(3, 1, 2), models.NewInt(1)},
		{"max numeric", Max, values(3, 1, 2), models.NewInt(3)},
		{"min ordered strings", Min, values("pear", "apple"), models.NewString("apple")},
		{"max skips nulls", Max, values(nil, 5, nil), models.NewInt(5)},
		{"min all null yields null", Min, values(nil, nil), models.Null()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.fn(tt.in))
		})
	}
}

func TestResolvePriority(t *testing.T) {
	r := NewRegistry()

	t.Run("explicit function wins", func(t *testing.T) {
		col := &models.Column{ID: "a", AggregateKey: KeyMax, Aggregate: Count}
		_, name, err := r.Resolve(col)
		require.NoError(t, err)
		assert.Equal(t, "custom", name)
	})

	t.Run("registry key", func(t *testing.T) {
		col := &models.Column{ID: "a", AggregateKey: KeyAvg}
		fn, name, err := r.Resolve(col)
		require.NoError(t, err)
		assert.Equal(t, KeyAvg, name)
		assert.Equal(t, models.NewFloat(3), fn(values(2, 4)))
	})

	t.Run("default is sum", func(t *testing.T) {
		_, name, err := r.Resolve(&models.Column{ID: "a"})
		require.NoError(t, err)
		assert.Equal(t, KeySum, name)
	})

	t.Run("unregistered key is a config error", func(t *testing.T) {
		_, _, err := r.Resolve(&models.Column{ID: "a", AggregateKey: "median"})
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	})

	t.Run("registered custom key resolves", func(t *testing.T) {
		require.NoError(t, r.Register("median", func(in []models.Value) models.Value {
			return models.Null()
		}))
		_, name, err := r.Resolve(&models.Column{ID: "a", AggregateKey: "median"})
		require.NoError(t, err)
		assert.Equal(t, "median", name)
	})
}

func TestRegisterValidation(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register("", Count))
	assert.Error(t, r.Register("x", nil))
}

func TestApplyCountFallback(t *testing.T) {
	r := NewRegistry()

	t.Run("sum over text falls back to count", func(t *testing.T) {
		got := r.Apply(Sum, KeySum, values("a", "b", nil))
		assert.Equal(t, models.NewInt(2), got)
	})

	t.Run("count never falls back", func(t *testing.T) {
		got := r.Apply(Count, KeyCount, nil)
		assert.Equal(t, models.NewInt(0), got)
	})

	t.Run("panicking aggregator treated as no value", func(t *testing.T) {
		boom := func([]models.Value) models.Value { panic("boom") }
		got := r.Apply(boom, "boom", values(1, 2))
		assert.Equal(t, models.NewInt(2), got)
	})
}
