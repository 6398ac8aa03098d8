package reader

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"iter"
	"math/big"
	"reflect"
	"strings"
	"time"

	"github.com/hamba/avro/v2"
	"github.com/hamba/avro/v2/ocf"

	vterrors "github.com/Sergimayol/sqlite-virtual-url/internal/errors"
	"github.com/Sergimayol/sqlite-virtual-url/pkg/types"
)

// avroReader holds every decoded record of an object container file.
// The records are never mutated after construction, so Rows can replay
// them without copying.
type avroReader struct {
	base
	record  *avro.RecordSchema
	records []map[string]any
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func newAvroReader(data []byte) (*avroReader, error) {
	src := &countingReader{r: bytes.NewReader(data)}
	dec, err := ocf.NewDecoder(src)
	if err != nil {
		return nil, vterrors.Wrap(vterrors.ErrCategoryReader, vterrors.CodeInvalidFormat, "avro: not an object container file", err)
	}

	writer, err := avro.Parse(string(dec.Metadata()["avro.schema"]))
	if err != nil {
		return nil, vterrors.Wrap(vterrors.ErrCategoryReader, vterrors.CodeInvalidFormat, "avro: parse writer schema", err)
	}
	record, ok := writer.(*avro.RecordSchema)
	if !ok {
		return nil, vterrors.NewInvalidFormat(fmt.Sprintf("avro: expected record schema, got %s", writer.Type()))
	}

	var records []map[string]any
	for dec.HasNext() {
		var rec map[string]any
		if err := dec.Decode(&rec); err != nil {
			return nil, vterrors.Wrap(vterrors.ErrCategoryReader, vterrors.CodeInvalidFormat, "avro: decode record", err)
		}
		records = append(records, rec)
	}
	if err := dec.Error(); err != nil && err != io.EOF {
		return nil, vterrors.Wrap(vterrors.ErrCategoryReader, vterrors.CodeMalformedInput, "avro: read block", err)
	}
	if len(records) == 0 {
		return nil, vterrors.NewInvalidFormat("avro: empty or invalid file")
	}

	return &avroReader{
		base: base{
			schema:    avroSchema(record, records[0]),
			format:    Avro,
			totalRows: int64(len(records)),
			bytesRead: src.n,
		},
		record:  record,
		records: records,
	}, nil
}

// avroSchema types each field from its value in the first record. A field
// holding an unsupported shape is labelled text; its rows fail on read.
func avroSchema(record *avro.RecordSchema, first map[string]any) types.Schema {
	fields := make([]types.SchemaField, 0, len(record.Fields()))
	for _, f := range record.Fields() {
		field := types.SchemaField{Name: f.Name(), Type: types.Text}
		if v, err := convertAvro(f.Type(), first[f.Name()]); err == nil {
			field.Type = v.Kind()
			field.Nullable = v.IsNull()
		}
		fields = append(fields, field)
	}
	return types.Schema{Fields: fields}
}

func (a *avroReader) Rows() iter.Seq2[types.Row, error] {
	return func(yield func(types.Row, error) bool) {
		for _, rec := range a.records {
			row, err := a.convertRecord(rec)
			if !yield(row, err) {
				return
			}
		}
	}
}

func (a *avroReader) convertRecord(rec map[string]any) (types.Row, error) {
	fields := a.record.Fields()
	row := make(types.Row, len(fields))
	for i, f := range fields {
		v, err := convertAvro(f.Type(), rec[f.Name()])
		if err != nil {
			return nil, err
		}
		row[i] = types.NewTypedValue(v)
	}
	return row, nil
}

func complexTypeError(s avro.Schema) error {
	return vterrors.NewInvalidFormat(fmt.Sprintf("avro: complex type %s not supported", s.Type()))
}

// convertAvro maps one generically decoded value onto a literal, using the
// field schema to resolve unions and logical types.
func convertAvro(schema avro.Schema, v any) (types.Value, error) {
	switch s := schema.(type) {
	case *avro.UnionSchema:
		return convertUnion(s, v)
	case *avro.RecordSchema, *avro.ArraySchema, *avro.MapSchema:
		return types.Value{}, complexTypeError(schema)
	case *avro.RefSchema:
		return convertAvro(s.Schema(), v)
	}
	if v == nil {
		return types.NullValue(), nil
	}

	logical := logicalType(schema)
	switch x := v.(type) {
	case bool:
		return types.BoolValue(x), nil
	case int:
		return types.IntValue(int64(x)), nil
	case int32:
		return types.IntValue(int64(x)), nil
	case int64:
		return types.IntValue(x), nil
	case float32:
		return types.FloatValue(float64(x)), nil
	case float64:
		return types.FloatValue(x), nil
	case string:
		return types.TextValue(x), nil
	case []byte:
		return types.BlobValue(x), nil
	case time.Time:
		return types.IntValue(timeValue(x, logical)), nil
	case time.Duration:
		if logical == avro.TimeMicros {
			return types.IntValue(x.Microseconds()), nil
		}
		return types.IntValue(x.Milliseconds()), nil
	case *big.Rat:
		return types.BlobValue(decimalBytes(x, decimalScale(schema))), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			b := make([]byte, rv.Len())
			reflect.Copy(reflect.ValueOf(b), rv)
			return types.BlobValue(b), nil
		}
	case reflect.Struct:
		if b, ok := durationBytes(rv); ok {
			return types.BlobValue(b), nil
		}
	case reflect.Map, reflect.Slice:
		return types.Value{}, complexTypeError(schema)
	}
	return types.Value{}, vterrors.NewInvalidFormat(fmt.Sprintf("avro: unsupported value %T", v))
}

// convertUnion unwraps a union value. Depending on how the decoder resolved
// the branch, v is either the bare value or a one-entry map keyed by the
// branch name.
func convertUnion(u *avro.UnionSchema, v any) (types.Value, error) {
	if v == nil {
		return types.NullValue(), nil
	}
	if m, ok := v.(map[string]any); ok && len(m) == 1 {
		for key, inner := range m {
			if branch := unionBranch(u, key); branch != nil {
				return convertAvro(branch, inner)
			}
		}
	}
	for _, t := range u.Types() {
		if t.Type() != avro.Null {
			return convertAvro(t, v)
		}
	}
	return types.NullValue(), nil
}

func unionBranch(u *avro.UnionSchema, key string) avro.Schema {
	for _, t := range u.Types() {
		name := string(t.Type())
		if n, ok := t.(avro.NamedSchema); ok {
			name = n.FullName()
		}
		if key == name || strings.HasPrefix(key, name+".") {
			return t
		}
	}
	return nil
}

func logicalType(s avro.Schema) avro.LogicalType {
	ls, ok := s.(avro.LogicalTypeSchema)
	if !ok || ls.Logical() == nil {
		return ""
	}
	return ls.Logical().Type()
}

func decimalScale(s avro.Schema) int {
	ls, ok := s.(avro.LogicalTypeSchema)
	if !ok {
		return 0
	}
	if d, ok := ls.Logical().(*avro.DecimalLogicalSchema); ok {
		return d.Scale()
	}
	return 0
}

// timeValue returns the integer the file stored for a temporal value.
func timeValue(t time.Time, logical avro.LogicalType) int64 {
	switch logical {
	case avro.Date:
		return t.Unix() / 86400
	case avro.TimestampMicros:
		return t.UnixMicro()
	default:
		return t.UnixMilli()
	}
}

// decimalBytes renders the unscaled decimal as big-endian two's complement.
func decimalBytes(r *big.Rat, scale int) []byte {
	unscaled := new(big.Rat).Mul(r, new(big.Rat).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(scale)), nil)))
	n := new(big.Int).Quo(unscaled.Num(), unscaled.Denom())
	return twosComplement(n)
}

func twosComplement(n *big.Int) []byte {
	switch n.Sign() {
	case 0:
		return []byte{0}
	case 1:
		b := n.Bytes()
		if b[0]&0x80 != 0 {
			b = append([]byte{0}, b...)
		}
		return b
	}
	size := len(n.Bytes())
	mod := new(big.Int).Lsh(big.NewInt(1), uint(size*8))
	b := new(big.Int).Add(mod, n).Bytes()
	if len(b) < size || b[0]&0x80 == 0 {
		size++
		mod.Lsh(big.NewInt(1), uint(size*8))
		b = new(big.Int).Add(mod, n).Bytes()
	}
	out := make([]byte, size)
	copy(out[size-len(b):], b)
	for i := 0; i < size-len(b); i++ {
		out[i] = 0xff
	}
	return out
}

// durationBytes packs a decoded duration back into its 12-byte fixed form.
func durationBytes(rv reflect.Value) ([]byte, bool) {
	months := rv.FieldByName("Months")
	days := rv.FieldByName("Days")
	millis := rv.FieldByName("Milliseconds")
	if !months.IsValid() || !days.IsValid() || !millis.IsValid() {
		return nil, false
	}
	if !months.CanUint() || !days.CanUint() || !millis.CanUint() {
		return nil, false
	}
	b := make([]byte, 12)
	binary.LittleEndian.PutUint32(b[0:4], uint32(months.Uint()))
	binary.LittleEndian.PutUint32(b[4:8], uint32(days.Uint()))
	binary.LittleEndian.PutUint32(b[8:12], uint32(millis.Uint()))
	return b, true
}
