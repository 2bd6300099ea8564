package table

import (
	"github.com/gridkit/gridkit/pkg/models"
)

// Convenience operations. Every one funnels through Update so recompute
// ordering and change notification stay uniform.

// SetSorting replaces the ordered sort model.
func (t *Table) SetSorting(keys ...models.SortKey) error {
	return t.Update(func(s models.TableState) models.TableState {
		s.Sorting = keys
		return s
	})
}

// ToggleSort cycles a column through ascending, descending, unsorted. A
// toggled column moves to the end of the key list.
func (t *Table) ToggleSort(columnID string) error {
	return t.Update(func(s models.TableState) models.TableState {
		for i, k := range s.Sorting {
			if k.ColumnID != columnID {
				continue
			}
			s.Sorting = append(s.Sorting[:i], s.Sorting[i+1:]...)
			if !k.Desc {
				s.Sorting = append(s.Sorting, models.SortKey{ColumnID: columnID, Desc: true})
			}
			return s
		}
		s.Sorting = append(s.Sorting, models.SortKey{ColumnID: columnID})
		return s
	})
}

// SetColumnFilter sets or replaces one column's filter value.
func (t *Table) SetColumnFilter(columnID string, value models.FilterValue) error {
	return t.Update(func(s models.TableState) models.TableState {
		for i, cf := range s.ColumnFilters {
			if cf.ColumnID == columnID {
				s.ColumnFilters[i].Value = value
				return s
			}
		}
		s.ColumnFilters = append(s.ColumnFilters, models.ColumnFilter{ColumnID: columnID, Value: value})
		return s
	})
}

// ClearColumnFilter removes one column's filter.
func (t *Table) ClearColumnFilter(columnID string) error {
	return t.Update(func(s models.TableState) models.TableState {
		for i, cf := range s.ColumnFilters {
			if cf.ColumnID == columnID {
				s.ColumnFilters = append(s.ColumnFilters[:i], s.ColumnFilters[i+1:]...)
				break
			}
		}
		return s
	})
}

// SetGlobalFilter sets the global query matched across visible columns. An
// empty query clears the global filter.
func (t *Table) SetGlobalFilter(query string) error {
	return t.Update(func(s models.TableState) models.TableState {
		if query == "" {
			s.GlobalFilter = nil
			return s
		}
		s.GlobalFilter = &models.GlobalFilter{Query: query}
		return s
	})
}

// SetGlobalPredicate installs a custom row-level global filter.
func (t *Table) SetGlobalPredicate(pred func(*models.Row) bool) error {
	return t.Update(func(s models.TableState) models.TableState {
		if pred == nil {
			s.GlobalFilter = nil
			return s
		}
		s.GlobalFilter = &models.GlobalFilter{Predicate: pred}
		return s
	})
}

// SetGrouping replaces the ordered grouping column list.
func (t *Table) SetGrouping(columnIDs ...string) error {
	return t.Update(func(s models.TableState) models.TableState {
		s.Grouping = columnIDs
		return s
	})
}

// SetExpanded sets the expansion state of one group row.
func (t *Table) SetExpanded(groupRowID string, expanded bool) error {
	return t.Update(func(s models.TableState) models.TableState {
		s.Expanded[groupRowID] = expanded
		return s
	})
}

// ExpandAll opens every group row.
func (t *Table) ExpandAll() error {
	return t.Update(func(s models.TableState) models.TableState {
		s.Expanded = map[string]bool{}
		s.ExpandedDefault = true
		return s
	})
}

// CollapseAll closes every group row.
func (t *Table) CollapseAll() error {
	return t.Update(func(s models.TableState) models.TableState {
		s.Expanded = map[string]bool{}
		s.ExpandedDefault = false
		return s
	})
}

// SelectRow sets one row's selection state.
func (t *Table) SelectRow(rowID string, selected bool) error {
	return t.Update(func(s models.TableState) models.TableState {
		if selected {
			s.RowSelection[rowID] = true
		} else {
			delete(s.RowSelection, rowID)
		}
		return s
	})
}

// ClearSelection drops all row and cell selection.
func (t *Table) ClearSelection() error {
	return t.Update(func(s models.TableState) models.TableState {
		s.RowSelection = map[string]bool{}
		s.CellSelection = map[models.CellKey]bool{}
		return s
	})
}

// SelectCell sets one cell's selection state.
func (t *Table) SelectCell(rowID, columnID string, selected bool) error {
	return t.Update(func(s models.TableState) models.TableState {
		key := models.CellKey{RowID: rowID, ColumnID: columnID}
		if selected {
			s.CellSelection[key] = true
		} else {
			delete(s.CellSelection, key)
		}
		return s
	})
}

// SetPage moves to a page index.
func (t *Table) SetPage(index int) error {
	return t.Update(func(s models.TableState) models.TableState {
		if index < 0 {
			index = 0
		}
		s.Pagination.PageIndex = index
		return s
	})
}

// SetPageSize changes the page size and resets to the first page. Zero
// disables pagination.
func (t *Table) SetPageSize(size int) error {
	return t.Update(func(s models.TableState) models.TableState {
		if size < 0 {
			size = 0
		}
		s.Pagination = models.Pagination{PageSize: size}
		return s
	})
}

// SetColumnOrder replaces the explicit display order.
func (t *Table) SetColumnOrder(columnIDs ...string) error {
	return t.Update(func(s models.TableState) models.TableState {
		s.ColumnOrder = columnIDs
		return s
	})
}

// PinColumn pins a column to one side.
func (t *Table) PinColumn(columnID string, side models.PinSide) error {
	return t.Update(func(s models.TableState) models.TableState {
		s.Pinning[columnID] = side
		return s
	})
}

// UnpinColumn removes a column's pin.
func (t *Table) UnpinColumn(columnID string) error {
	return t.Update(func(s models.TableState) models.TableState {
		delete(s.Pinning, columnID)
		return s
	})
}

// ResizeColumn overrides a column's width.
func (t *Table) ResizeColumn(columnID string, width int) error {
	return t.Update(func(s models.TableState) models.TableState {
		s.Sizing[columnID] = width
		return s
	})
}

// SetColumnHidden overrides a column's visibility.
func (t *Table) SetColumnHidden(columnID string, hidden bool) error {
	return t.Update(func(s models.TableState) models.TableState {
		s.Hidden[columnID] = hidden
		return s
	})
}
