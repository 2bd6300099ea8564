package models

import (
	gojson "github.com/goccy/go-json"

	"github.com/gridkit/gridkit/pkg/errors"
)

// State snapshots serialize to JSON so hosts can persist and restore a view
// configuration. The polymorphic filter value is encoded with an explicit
// type tag; custom predicates and cell selection are not serializable and
// are dropped.

const (
	filterTagScalar = "scalar"
	filterTagText   = "text"
	filterTagSet    = "set"
	filterTagRange  = "range"
)

// filterEnvelope is the wire form of the FilterValue tagged union.
type filterEnvelope struct {
	Type   string          `json:"type"`
	Scalar *ScalarFilter   `json:"scalar,omitempty"`
	Text   *TextFilter     `json:"text,omitempty"`
	Set    *SetFilter      `json:"set,omitempty"`
	Range  *RangeFilter    `json:"range,omitempty"`
}

// columnFilterJSON is the wire form of a ColumnFilter.
type columnFilterJSON struct {
	ColumnID string          `json:"column_id"`
	Value    *filterEnvelope `json:"value,omitempty"`
}

// MarshalJSON encodes the filter value with a type tag.
func (cf ColumnFilter) MarshalJSON() ([]byte, error) {
	out := columnFilterJSON{ColumnID: cf.ColumnID}
	switch v := cf.Value.(type) {
	case nil:
	case ScalarFilter:
		out.Value = &filterEnvelope{Type: filterTagScalar, Scalar: &v}
	case TextFilter:
		out.Value = &filterEnvelope{Type: filterTagText, Text: &v}
	case SetFilter:
		out.Value = &filterEnvelope{Type: filterTagSet, Set: &v}
	case RangeFilter:
		out.Value = &filterEnvelope{Type: filterTagRange, Range: &v}
	default:
		return nil, errors.Newf(errors.ErrorTypeData, "unknown filter value variant %T", cf.Value)
	}
	return gojson.Marshal(out)
}

// UnmarshalJSON decodes the type-tagged filter value.
func (cf *ColumnFilter) UnmarshalJSON(data []byte) error {
	var in columnFilterJSON
	if err := gojson.Unmarshal(data, &in); err != nil {
		return err
	}
	cf.ColumnID = in.ColumnID
	cf.Value = nil
	if in.Value == nil {
		return nil
	}
	switch in.Value.Type {
	case filterTagScalar:
		if in.Value.Scalar != nil {
			cf.Value = *in.Value.Scalar
		}
	case filterTagText:
		if in.Value.Text != nil {
			cf.Value = *in.Value.Text
		}
	case filterTagSet:
		if in.Value.Set != nil {
			cf.Value = *in.Value.Set
		}
	case filterTagRange:
		if in.Value.Range != nil {
			cf.Value = *in.Value.Range
		}
	default:
		return errors.Newf(errors.ErrorTypeData, "unknown filter value tag %q", in.Value.Type)
	}
	return nil
}

// EncodeState serializes a state snapshot to JSON.
func EncodeState(s TableState) ([]byte, error) {
	data, err := gojson.Marshal(s)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to encode table state")
	}
	return data, nil
}

// DecodeState restores a state snapshot from JSON. Maps are re-initialized
// when absent so the result is safe to use directly.
func DecodeState(data []byte) (TableState, error) {
	s := NewTableState()
	if err := gojson.Unmarshal(data, &s); err != nil {
		return TableState{}, errors.Wrap(err, errors.ErrorTypeData, "failed to decode table state")
	}
	if s.Expanded == nil {
		s.Expanded = map[string]bool{}
	}
	if s.RowSelection == nil {
		s.RowSelection = map[string]bool{}
	}
	if s.CellSelection == nil {
		s.CellSelection = map[CellKey]bool{}
	}
	if s.Pinning == nil {
		s.Pinning = map[string]PinSide{}
	}
	if s.Sizing == nil {
		s.Sizing = map[string]int{}
	}
	if s.Hidden == nil {
		s.Hidden = map[string]bool{}
	}
	return s, nil
}
