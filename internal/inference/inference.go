// Package inference converges raw column samples onto the small lattice
// Null < Boolean < Integer < Float < Text.
package inference

import (
	"strconv"
	"strings"

	"github.com/Sergimayol/sqlite-virtual-url/pkg/types"
)

// Type is the inference-time classification of a column.
// The numeric order of the constants is the promotion order.
type Type int

const (
	Null Type = iota
	Boolean
	Integer
	Float
	Text
)

var typeNames = [...]string{"null", "bool", "int", "float", "string"}

func (t Type) String() string {
	if t < Null || t > Text {
		return "unknown"
	}
	return typeNames[t]
}

// Classify returns the type of a single non-blank sample. Blank samples
// classify as Null.
func Classify(raw string) Type {
	val := strings.TrimSpace(raw)
	switch {
	case val == "":
		return Null
	case strings.EqualFold(val, "true") || strings.EqualFold(val, "false"):
		return Boolean
	case isInteger(val):
		return Integer
	case isFloat(val):
		return Float
	default:
		return Text
	}
}

// Update folds one raw sample into t. Blank samples never change the type.
func (t Type) Update(raw string) Type {
	return Promote(t, Classify(raw))
}

// Promote returns the least upper bound of a and b.
func Promote(a, b Type) Type {
	if b > a {
		return b
	}
	return a
}

// DataType maps the inferred type 1:1 onto the persisted column type.
func (t Type) DataType() types.DataType {
	switch t {
	case Boolean:
		return types.Boolean
	case Integer:
		return types.Integer
	case Float:
		return types.Float
	case Text:
		return types.Text
	default:
		return types.Null
	}
}

func isInteger(s string) bool {
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

func isFloat(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

// Column accumulates the samples of one column during schema discovery.
// The zero value is ready to use.
type Column struct {
	Type     Type
	SawEmpty bool
}

// Update folds a raw text sample into the column.
func (c *Column) Update(raw string) {
	if strings.TrimSpace(raw) == "" {
		c.SawEmpty = true
		return
	}
	c.Type = c.Type.Update(raw)
}

// Observe folds a sample whose type the source format already knows.
// Null marks the column nullable.
func (c *Column) Observe(t Type) {
	if t == Null {
		c.SawEmpty = true
		return
	}
	c.Type = Promote(c.Type, t)
}

// Field finalizes the accumulator into a schema field.
func (c *Column) Field(name string) types.SchemaField {
	return types.SchemaField{
		Name:     name,
		Type:     c.Type.DataType(),
		Nullable: c.SawEmpty,
	}
}

// Columns is a discovery pass over a fixed number of columns.
type Columns []Column

// NewColumns returns n fresh accumulators.
func NewColumns(n int) Columns {
	return make(Columns, n)
}

// UpdateRecord folds one record of raw fields. Fields beyond the
// accumulator count are ignored.
func (cs Columns) UpdateRecord(record []string) {
	for i, field := range record {
		if i >= len(cs) {
			return
		}
		cs[i].Update(field)
	}
}

// Schema finalizes every accumulator using the matching name.
func (cs Columns) Schema(names []string) types.Schema {
	fields := make([]types.SchemaField, len(cs))
	for i := range cs {
		name := ""
		if i < len(names) {
			name = names[i]
		}
		fields[i] = cs[i].Field(name)
	}
	return types.Schema{Fields: fields}
}
