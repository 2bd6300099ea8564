package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Row is a positional wrapper around a source record (leaf row) or a
// synthesized grouping bucket (group row). Rows are ephemeral: every
// pipeline recompute that touches their stage recreates them, so a Row must
// never be cached across recomputes. Identity is stable: leaf row ids come
// from the record's natural key, group row ids from the deterministic
// parent-chain encoding built by GroupRowID.
type Row struct {
	// ID is the stable row identity.
	ID string

	// Index is the row's position in the visible row sequence as of the
	// most recent recompute. It is assigned once per recompute; a row's
	// position inside an intermediate stage model comes from that model's
	// RowsByID, never from Index.
	Index int

	// Depth is the nesting level; 0 for top-level rows.
	Depth int

	// Parent is a back-reference to the enclosing group row, nil at the
	// top level. It is not an ownership edge; parents do not hold child
	// slices except through Group.
	Parent *Row

	// Record is the wrapped source record. Set for leaf rows only.
	Record *Record

	// Group carries the synthesized bucket payload. Set for group rows only.
	Group *GroupData
}

// GroupData is the payload of a synthetic group row: the grouping column,
// the bucket's raw key value, aggregates over all descendant leaf rows, and
// the direct child count.
type GroupData struct {
	// ColumnID is the grouping column this bucket belongs to.
	ColumnID string

	// Key is the bucket's raw key value from the grouping column.
	Key Value

	// Ordinal is the bucket's first-seen position within its level.
	Ordinal int

	// Aggregates maps column id to the aggregate computed over all
	// descendant leaf rows.
	Aggregates map[string]Value

	// ChildCount is the number of direct children of this group row.
	ChildCount int

	// LeafCount is the number of descendant leaf rows.
	LeafCount int

	// Children holds the group's direct child rows in display order.
	Children []*Row
}

// NewLeafRow creates a leaf row for a record. Index, depth, and parent are
// assigned by the pipeline stage that positions the row.
func NewLeafRow(rec *Record) *Row {
	return &Row{ID: rec.Key, Record: rec}
}

// GroupRowID builds the deterministic id for a group row from its parent
// chain, grouping column, and first-seen bucket ordinal. The id survives
// recomputation as long as bucket membership and order are unchanged.
func GroupRowID(parentID, columnID string, ordinal int) string {
	var b strings.Builder
	if parentID != "" {
		b.WriteString(parentID)
		b.WriteByte('|')
	}
	b.WriteString("group|")
	b.WriteString(columnID)
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(ordinal))
	return b.String()
}

// IsGroup reports whether the row is a synthetic group row.
func (r *Row) IsGroup() bool {
	return r.Group != nil
}

// CellValue projects the cell value for a column: the accessor value for
// leaf rows; for group rows, the bucket key on the grouping column and the
// computed aggregate elsewhere.
func (r *Row) CellValue(col *Column) Value {
	if r.Group != nil {
		if col.ID == r.Group.ColumnID {
			return r.Group.Key
		}
		if agg, ok := r.Group.Aggregates[col.ID]; ok {
			return agg
		}
		return Null()
	}
	if r.Record == nil || col.Accessor == nil {
		return Null()
	}
	return col.Accessor(r.Record)
}

// Cell is a transient (row, column) value projection. It is never
// persisted; hosts request cells on demand.
type Cell struct {
	RowID    string
	ColumnID string
	Value    Value
}

// CellAt builds the transient cell projection for a column.
func (r *Row) CellAt(col *Column) Cell {
	return Cell{RowID: r.ID, ColumnID: col.ID, Value: r.CellValue(col)}
}

// String returns a compact debug form of the row.
func (r *Row) String() string {
	if r.IsGroup() {
		return fmt.Sprintf("group(%s=%s, children=%d)", r.Group.ColumnID, r.Group.Key.AsString(), r.Group.ChildCount)
	}
	return fmt.Sprintf("row(%s)", r.ID)
}
