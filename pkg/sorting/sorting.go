// Package sorting implements GridKit's multi-key sort comparator: a total
// order over rows from an ordered list of sort keys, applied with a stable
// sort so input order is the final tie-break.
package sorting

import (
	"sort"

	"github.com/gridkit/gridkit/pkg/models"
)

// resolvedKey pairs a sort key with its resolved column.
type resolvedKey struct {
	col  *models.Column
	desc bool
}

// Comparator compares rows lexicographically over an ordered key list: the
// first key decides unless equal, then evaluation falls through to the next
// key. There is no cap on the number of keys; any limit on active sort keys
// is caller policy.
type Comparator struct {
	keys []resolvedKey
}

// NewComparator resolves the sort model against the column set. Keys
// referencing unknown column ids are ignored so stale state stays harmless.
func NewComparator(columns []*models.Column, keys []models.SortKey) *Comparator {
	byID := make(map[string]*models.Column, len(columns))
	for _, c := range columns {
		byID[c.ID] = c
	}
	resolved := make([]resolvedKey, 0, len(keys))
	for _, k := range keys {
		col, ok := byID[k.ColumnID]
		if !ok {
			continue
		}
		resolved = append(resolved, resolvedKey{col: col, desc: k.Desc})
	}
	return &Comparator{keys: resolved}
}

// Active reports whether any sort key resolved.
func (c *Comparator) Active() bool {
	return len(c.keys) > 0
}

// Compare returns a negative number, zero, or a positive number ordering
// a before, equal to, or after b. Null values order after every non-null
// value regardless of direction.
func (c *Comparator) Compare(a, b *models.Row) int {
	for _, k := range c.keys {
		va := a.CellValue(k.col)
		vb := b.CellValue(k.col)

		// Nulls last, unaffected by direction.
		switch {
		case va.IsNull && vb.IsNull:
			continue
		case va.IsNull:
			return 1
		case vb.IsNull:
			return -1
		}

		var cmp int
		if k.col.Compare != nil {
			cmp = k.col.Compare(va, vb)
		} else {
			cmp = va.Compare(vb)
		}
		if cmp == 0 {
			continue
		}
		if k.desc {
			return -cmp
		}
		return cmp
	}
	return 0
}

// Sort returns a new slice holding the rows ordered by the comparator. The
// sort is stable, so rows comparing equal keep their input order, and the
// input slice is never mutated.
func (c *Comparator) Sort(rows []*models.Row) []*models.Row {
	out := make([]*models.Row, len(rows))
	copy(out, rows)
	if !c.Active() {
		return out
	}
	sort.SliceStable(out, func(i, j int) bool {
		return c.Compare(out[i], out[j]) < 0
	})
	return out
}
