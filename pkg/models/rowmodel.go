package models

import (
	"github.com/gridkit/gridkit/pkg/errors"
)

// RowModel is the computed row sequence at one pipeline stage.
//
// Invariants, checked by Validate:
//   - len(FlatRows) >= len(Rows)
//   - RowsByID is complete and 1:1 with FlatRows
//   - row ids are unique
type RowModel struct {
	// Rows is the ordered top-level row sequence.
	Rows []*Row

	// FlatRows is the full flattened sequence including group rows.
	FlatRows []*Row

	// RowsByID maps row id to its index in FlatRows.
	RowsByID map[string]int
}

// NewRowModel builds a flat row model where every row is top-level. The
// constructor never writes to the rows: models at different pipeline stages
// share row pointers, and each model resolves positions through its own
// RowsByID.
func NewRowModel(rows []*Row) *RowModel {
	m := &RowModel{
		Rows:     rows,
		FlatRows: rows,
		RowsByID: make(map[string]int, len(rows)),
	}
	for i, r := range rows {
		m.RowsByID[r.ID] = i
	}
	return m
}

// NewHierarchicalRowModel builds a row model from a top-level sequence and
// its flattened expansion (group rows followed by their descendants). Like
// NewRowModel it never writes to the rows themselves.
func NewHierarchicalRowModel(top, flat []*Row) *RowModel {
	m := &RowModel{
		Rows:     top,
		FlatRows: flat,
		RowsByID: make(map[string]int, len(flat)),
	}
	for i, r := range flat {
		m.RowsByID[r.ID] = i
	}
	return m
}

// EmptyRowModel returns a model with no rows.
func EmptyRowModel() *RowModel {
	return &RowModel{RowsByID: map[string]int{}}
}

// Len returns the flattened row count.
func (m *RowModel) Len() int {
	return len(m.FlatRows)
}

// RowByID returns the row with the given id, if present.
func (m *RowModel) RowByID(id string) (*Row, bool) {
	i, ok := m.RowsByID[id]
	if !ok {
		return nil, false
	}
	return m.FlatRows[i], true
}

// Validate checks the row-model invariants and returns a descriptive error
// on the first violation.
func (m *RowModel) Validate() error {
	if len(m.FlatRows) < len(m.Rows) {
		return errors.Newf(errors.ErrorTypeInternal,
			"flattened rows (%d) shorter than top-level rows (%d)", len(m.FlatRows), len(m.Rows))
	}
	if len(m.RowsByID) != len(m.FlatRows) {
		return errors.Newf(errors.ErrorTypeInternal,
			"row index size %d does not match flattened rows %d", len(m.RowsByID), len(m.FlatRows))
	}
	for i, r := range m.FlatRows {
		j, ok := m.RowsByID[r.ID]
		if !ok {
			return errors.New(errors.ErrorTypeInternal, "row missing from id index").WithDetail("row_id", r.ID)
		}
		if j != i {
			return errors.New(errors.ErrorTypeInternal, "duplicate row id").WithDetail("row_id", r.ID)
		}
	}
	return nil
}
