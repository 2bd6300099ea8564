package models

// SortKey is one entry of the ordered sort model.
type SortKey struct {
	ColumnID string `json:"column_id"`
	Desc     bool   `json:"desc"`
}

// ColumnFilter binds a filter value to a column id. A filter referencing an
// unknown column id is a no-op, never an error, so stale state is tolerated.
type ColumnFilter struct {
	ColumnID string      `json:"column_id"`
	Value    FilterValue `json:"value"`
}

// GlobalFilter is the table-wide filter: either a query matched with OR
// semantics across visible columns, or a custom row-level predicate. The
// predicate cannot be serialized and is dropped from snapshots.
type GlobalFilter struct {
	Query     string          `json:"query"`
	Predicate func(*Row) bool `json:"-"`
}

// PinSide is the pinning position of a column.
type PinSide string

const (
	// PinLeft pins a column to the left edge.
	PinLeft PinSide = "left"
	// PinRight pins a column to the right edge.
	PinRight PinSide = "right"
)

// Pagination holds the page window. A PageSize of zero disables pagination.
type Pagination struct {
	PageIndex int `json:"page_index"`
	PageSize  int `json:"page_size"`
}

// CellKey identifies one cell for selection state.
type CellKey struct {
	RowID    string `json:"row_id"`
	ColumnID string `json:"column_id"`
}

// TableState is the immutable configuration and state snapshot of a table.
// Every mutation produces a brand-new snapshot: Table.Update clones the
// current state before handing it to the updater, so concurrent readers
// never observe a partial update. State holds derived display attributes
// (sorting, filters, sizing, visibility); Column definitions stay immutable.
type TableState struct {
	// Sorting is the ordered sort model; earlier keys win.
	Sorting []SortKey `json:"sorting"`

	// ColumnFilters are ANDed per-column filters, short-circuit on the
	// first failure.
	ColumnFilters []ColumnFilter `json:"column_filters"`

	// GlobalFilter is checked before any column filter.
	GlobalFilter *GlobalFilter `json:"global_filter,omitempty"`

	// Grouping is the ordered list of grouping column ids.
	Grouping []string `json:"grouping"`

	// Expanded maps group row id to its expansion state. Group rows absent
	// from the map follow ExpandedDefault.
	Expanded map[string]bool `json:"expanded"`

	// ExpandedDefault is the expansion state of group rows not present in
	// Expanded.
	ExpandedDefault bool `json:"expanded_default"`

	// RowSelection holds the selected row ids.
	RowSelection map[string]bool `json:"row_selection"`

	// CellSelection holds the selected cells.
	CellSelection map[CellKey]bool `json:"-"`

	// ColumnOrder is the display order of column ids. Columns absent from
	// the list keep their definition order after the listed ones.
	ColumnOrder []string `json:"column_order"`

	// Pinning maps column id to its pin side.
	Pinning map[string]PinSide `json:"pinning"`

	// Sizing maps column id to its current width, overriding the default.
	Sizing map[string]int `json:"sizing"`

	// Hidden maps column id to visibility override. Columns absent from
	// the map follow their DefaultHidden.
	Hidden map[string]bool `json:"hidden"`

	// Pagination is the current page window.
	Pagination Pagination `json:"pagination"`
}

// NewTableState returns the initial empty state.
func NewTableState() TableState {
	return TableState{
		Expanded:      map[string]bool{},
		RowSelection:  map[string]bool{},
		CellSelection: map[CellKey]bool{},
		Pinning:       map[string]PinSide{},
		Sizing:        map[string]int{},
		Hidden:        map[string]bool{},
	}
}

// Clone deep-copies the snapshot so an updater can mutate the copy freely
// without the previous snapshot ever changing underneath a reader.
func (s TableState) Clone() TableState {
	out := s
	out.Sorting = append([]SortKey(nil), s.Sorting...)
	out.ColumnFilters = append([]ColumnFilter(nil), s.ColumnFilters...)
	out.Grouping = append([]string(nil), s.Grouping...)
	out.ColumnOrder = append([]string(nil), s.ColumnOrder...)
	if s.GlobalFilter != nil {
		gf := *s.GlobalFilter
		out.GlobalFilter = &gf
	}
	out.Expanded = cloneBoolMap(s.Expanded)
	out.RowSelection = cloneBoolMap(s.RowSelection)
	out.CellSelection = make(map[CellKey]bool, len(s.CellSelection))
	for k, v := range s.CellSelection {
		out.CellSelection[k] = v
	}
	out.Pinning = make(map[string]PinSide, len(s.Pinning))
	for k, v := range s.Pinning {
		out.Pinning[k] = v
	}
	out.Sizing = make(map[string]int, len(s.Sizing))
	for k, v := range s.Sizing {
		out.Sizing[k] = v
	}
	out.Hidden = cloneBoolMap(s.Hidden)
	return out
}

// FilterFor returns the active filter value for a column, nil when the
// column is unfiltered.
func (s TableState) FilterFor(columnID string) FilterValue {
	for _, cf := range s.ColumnFilters {
		if cf.ColumnID == columnID {
			return cf.Value
		}
	}
	return nil
}

// SortIndexOf returns the position of a column in the sort model and
// whether the column participates at all.
func (s TableState) SortIndexOf(columnID string) (int, bool) {
	for i, k := range s.Sorting {
		if k.ColumnID == columnID {
			return i, true
		}
	}
	return 0, false
}

// IsHidden reports the effective visibility override for a column given its
// definition default.
func (s TableState) IsHidden(columnID string, defaultHidden bool) bool {
	if v, ok := s.Hidden[columnID]; ok {
		return v
	}
	return defaultHidden
}

// IsExpanded reports the effective expansion state of a group row id.
func (s TableState) IsExpanded(groupRowID string) bool {
	if v, ok := s.Expanded[groupRowID]; ok {
		return v
	}
	return s.ExpandedDefault
}

func cloneBoolMap(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
