package types

import (
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Value is a tagged literal holding exactly one of null, boolean, integer,
// float, text or blob. The zero Value is null.
type Value struct {
	kind DataType
	b    bool
	i    int64
	f    float64
	s    string
	raw  []byte
}

// NullValue returns the null literal.
func NullValue() Value { return Value{} }

// BoolValue returns a boolean literal.
func BoolValue(b bool) Value { return Value{kind: Boolean, b: b} }

// IntValue returns a 64-bit integer literal.
func IntValue(i int64) Value { return Value{kind: Integer, i: i} }

// FloatValue returns a 64-bit float literal.
func FloatValue(f float64) Value { return Value{kind: Float, f: f} }

// TextValue returns a text literal.
func TextValue(s string) Value { return Value{kind: Text, s: s} }

// BlobValue returns a blob literal. The bytes are copied.
func BlobValue(b []byte) Value {
	raw := make([]byte, len(b))
	copy(raw, b)
	return Value{kind: Blob, raw: raw}
}

// Kind returns the literal's own, most specific type.
func (v Value) Kind() DataType { return v.kind }

// IsNull reports whether the literal is null.
func (v Value) IsNull() bool { return v.kind == Null }

// Bool returns the boolean payload.
func (v Value) Bool() bool { return v.b }

// Int returns the integer payload.
func (v Value) Int() int64 { return v.i }

// Float returns the float payload.
func (v Value) Float() float64 { return v.f }

// Text returns the text payload.
func (v Value) Text() string { return v.s }

// Bytes returns the blob payload.
func (v Value) Bytes() []byte { return v.raw }

// String renders the display form. Floats always keep a fractional marker
// so that re-parsing the display form yields a Float again.
func (v Value) String() string {
	switch v.kind {
	case Boolean:
		return strconv.FormatBool(v.b)
	case Integer:
		return strconv.FormatInt(v.i, 10)
	case Float:
		return FormatFloat(v.f)
	case Text:
		return v.s
	case Blob:
		return base64.StdEncoding.EncodeToString(v.raw)
	default:
		return ""
	}
}

// CompareText is the text used when comparing the value against a filter
// argument. Booleans compare as 1/0 the way SQLite stores them.
func (v Value) CompareText() string {
	switch v.kind {
	case Boolean:
		if v.b {
			return "1"
		}
		return "0"
	case Blob:
		return string(v.raw)
	default:
		return v.String()
	}
}

// SQL returns the value as a database/sql driver value.
func (v Value) SQL() any {
	switch v.kind {
	case Boolean:
		if v.b {
			return int64(1)
		}
		return int64(0)
	case Integer:
		return v.i
	case Float:
		return v.f
	case Text:
		return v.s
	case Blob:
		return v.raw
	default:
		return nil
	}
}

// Equal reports whether two literals have the same tag and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case Boolean:
		return v.b == o.b
	case Integer:
		return v.i == o.i
	case Float:
		return v.f == o.f || (math.IsNaN(v.f) && math.IsNaN(o.f))
	case Text:
		return v.s == o.s
	case Blob:
		return string(v.raw) == string(o.raw)
	default:
		return true
	}
}

// FormatFloat formats f in its shortest round-trip form, appending ".0"
// when the result would otherwise read as an integer.
func FormatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if strings.ContainsAny(s, ".eEnN") {
		return s
	}
	return s + ".0"
}

// ValueFromSQL converts a value scanned from database/sql back into a literal,
// guided by the column's declared type. Text that does not fit the declared
// type is kept as text.
func ValueFromSQL(v any, declared DataType) Value {
	switch x := v.(type) {
	case nil:
		return NullValue()
	case bool:
		return BoolValue(x)
	case int64:
		if declared == Boolean {
			return BoolValue(x != 0)
		}
		return IntValue(x)
	case float64:
		return FloatValue(x)
	case []byte:
		if declared == Blob {
			return BlobValue(x)
		}
		return ValueFromText(string(x), declared)
	case string:
		return ValueFromText(x, declared)
	default:
		return TextValue(fmt.Sprint(x))
	}
}

// ValueFromText decodes a persisted text cell using the declared column type.
func ValueFromText(s string, declared DataType) Value {
	switch declared {
	case Boolean:
		switch s {
		case "1", "true":
			return BoolValue(true)
		case "0", "false":
			return BoolValue(false)
		}
	case Integer:
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return IntValue(i)
		}
	case Float:
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return FloatValue(f)
		}
	case Blob:
		if b, err := base64.StdEncoding.DecodeString(s); err == nil {
			return BlobValue(b)
		}
	}
	return TextValue(s)
}
