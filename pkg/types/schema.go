package types

import (
	"fmt"
	"strings"
)

// DataType is the closed set of column types every reader converges on.
type DataType int

const (
	Null DataType = iota
	Boolean
	Integer
	Float
	Text
	Blob
)

var dataTypeNames = [...]string{
	Null:    "null",
	Boolean: "bool",
	Integer: "int",
	Float:   "float",
	Text:    "string",
	Blob:    "blob",
}

// String returns the persisted name of the type (null, bool, int, float, string, blob).
func (t DataType) String() string {
	if t < Null || t > Blob {
		return fmt.Sprintf("DataType(%d)", int(t))
	}
	return dataTypeNames[t]
}

// Affinity returns the SQLite column affinity used when declaring a column
// of this type. Booleans have no dedicated affinity and are stored as NUMERIC.
func (t DataType) Affinity() string {
	switch t {
	case Boolean:
		return "NUMERIC"
	case Integer:
		return "INTEGER"
	case Float:
		return "REAL"
	case Text:
		return "TEXT"
	case Blob:
		return "BLOB"
	default:
		return "NULL"
	}
}

// ParseDataType parses a persisted type name. It also accepts the SQLite
// affinity names so metadata written by other tools can be read back.
func ParseDataType(s string) (DataType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "null":
		return Null, nil
	case "bool", "boolean", "numeric":
		return Boolean, nil
	case "int", "integer":
		return Integer, nil
	case "float", "real":
		return Float, nil
	case "string", "text":
		return Text, nil
	case "blob":
		return Blob, nil
	default:
		return Null, fmt.Errorf("types: unknown data type %q", s)
	}
}

// SchemaField describes one column of a table.
type SchemaField struct {
	// Name is the column name as found in the source
	Name string `json:"name"`
	// Type is fixed once schema discovery completes
	Type DataType `json:"type"`
	// Nullable is true when discovery observed an empty or null value
	Nullable bool `json:"nullable"`
}

// Schema is the ordered list of fields of a table. Order defines column position.
type Schema struct {
	Fields []SchemaField `json:"fields"`
}

// Names returns the field names in column order.
func (s Schema) Names() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Types returns the field types in column order.
func (s Schema) Types() []DataType {
	types := make([]DataType, len(s.Fields))
	for i, f := range s.Fields {
		types[i] = f.Type
	}
	return types
}

// Len returns the number of columns.
func (s Schema) Len() int {
	return len(s.Fields)
}
