package models

import "strconv"

// Record is the source record wrapper consumed by the engine. The engine
// never mutates record data; leaf rows hold an exclusive reference to their
// record for the lifetime of one recompute.
type Record struct {
	// Key is the record's natural key. Row identity derives from it, never
	// from the record's position in the visible sequence. When a source has
	// no natural key the loader assigns the source ordinal at ingest time.
	Key string `json:"key"`

	// Data contains the record payload keyed by field name.
	Data map[string]interface{} `json:"data"`
}

// NewRecord creates a record with an explicit natural key.
func NewRecord(key string, data map[string]interface{}) *Record {
	return &Record{Key: key, Data: data}
}

// NewRecordAt creates a record keyed by its source ordinal, for sources
// without a natural key. The ordinal is stable for the life of the source
// sequence, unlike display position.
func NewRecordAt(sourceIndex int, data map[string]interface{}) *Record {
	return &Record{Key: strconv.Itoa(sourceIndex), Data: data}
}

// Field returns the typed value of a named field, or a null value when the
// field is absent.
func (r *Record) Field(name string) Value {
	raw, ok := r.Data[name]
	if !ok {
		return Null()
	}
	return Infer(raw)
}
