// Package types provides the typed value model shared by readers, the
// pushdown translator and the cache gate.
package types

import "strings"

// TypedValue pairs a literal with the type the producer assigned to it.
type TypedValue struct {
	Type  DataType
	Value Value
}

// NewTypedValue tags v with its own kind.
func NewTypedValue(v Value) TypedValue {
	return TypedValue{Type: v.Kind(), Value: v}
}

// String returns the display form of the literal.
func (tv TypedValue) String() string {
	return tv.Value.String()
}

// Row is one record, one TypedValue per schema field.
type Row []TypedValue

// String renders the row as "a | b | c".
func (r Row) String() string {
	parts := make([]string, len(r))
	for i, v := range r {
		parts[i] = v.String()
	}
	return strings.Join(parts, " | ")
}

// Clone returns a copy of the row. Blob payloads are shared.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	copy(out, r)
	return out
}
