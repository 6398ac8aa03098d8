package reader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/parquet-go/parquet-go"

	vterrors "github.com/Sergimayol/sqlite-virtual-url/internal/errors"
	"github.com/Sergimayol/sqlite-virtual-url/pkg/types"
)

const parquetReadBatch = 128

type parquetReader struct {
	base
	file *parquet.File
}

func newParquetReader(data []byte) (*parquetReader, error) {
	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, vterrors.Wrap(vterrors.ErrCategoryReader, vterrors.CodeInvalidFormat, "parquet: open file", err)
	}

	leaves := file.Schema().Fields()
	if len(leaves) == 0 {
		return nil, vterrors.NewInvalidFormat("parquet: schema has no columns")
	}
	fields := make([]types.SchemaField, len(leaves))
	for i, f := range leaves {
		if !f.Leaf() || f.Repeated() {
			return nil, vterrors.NewInvalidFormat(fmt.Sprintf("parquet: complex type in column %q not supported", f.Name()))
		}
		fields[i] = types.SchemaField{
			Name:     f.Name(),
			Type:     parquetType(f.Type()),
			Nullable: f.Optional(),
		}
	}

	return &parquetReader{
		base: base{
			schema:    types.Schema{Fields: fields},
			format:    Parquet,
			totalRows: file.NumRows(),
			bytesRead: int64(len(data)),
		},
		file: file,
	}, nil
}

func parquetType(t parquet.Type) types.DataType {
	switch t.Kind() {
	case parquet.Boolean:
		return types.Boolean
	case parquet.Int32, parquet.Int64:
		return types.Integer
	case parquet.Float, parquet.Double:
		return types.Float
	case parquet.ByteArray, parquet.FixedLenByteArray:
		if lt := t.LogicalType(); lt != nil && (lt.UTF8 != nil || lt.Enum != nil || lt.Json != nil) {
			return types.Text
		}
		return types.Blob
	default:
		return types.Blob
	}
}

func (p *parquetReader) Rows() iter.Seq2[types.Row, error] {
	return func(yield func(types.Row, error) bool) {
		for _, rg := range p.file.RowGroups() {
			if !p.readGroup(rg, yield) {
				return
			}
		}
	}
}

// readGroup yields every row of one row group and reports whether the
// caller wants more.
func (p *parquetReader) readGroup(rg parquet.RowGroup, yield func(types.Row, error) bool) bool {
	rows := rg.Rows()
	defer rows.Close()

	buf := make([]parquet.Row, parquetReadBatch)
	for {
		n, err := rows.ReadRows(buf)
		for _, raw := range buf[:n] {
			if !yield(p.convertRow(raw), nil) {
				return false
			}
		}
		if errors.Is(err, io.EOF) {
			return true
		}
		if err != nil {
			yield(nil, vterrors.NewMalformedInput("parquet: read rows", err))
			return false
		}
		if n == 0 {
			return true
		}
	}
}

func (p *parquetReader) convertRow(raw parquet.Row) types.Row {
	row := make(types.Row, p.schema.Len())
	for i := range row {
		row[i] = types.NewTypedValue(types.NullValue())
	}
	for _, v := range raw {
		col := v.Column()
		if col < 0 || col >= len(row) {
			continue
		}
		row[col] = types.NewTypedValue(parquetValue(v, p.schema.Fields[col].Type))
	}
	return row
}

func parquetValue(v parquet.Value, declared types.DataType) types.Value {
	if v.IsNull() {
		return types.NullValue()
	}
	switch v.Kind() {
	case parquet.Boolean:
		return types.BoolValue(v.Boolean())
	case parquet.Int32:
		return types.IntValue(int64(v.Int32()))
	case parquet.Int64:
		return types.IntValue(v.Int64())
	case parquet.Float:
		return types.FloatValue(float64(v.Float()))
	case parquet.Double:
		return types.FloatValue(v.Double())
	default:
		if declared == types.Text {
			return types.TextValue(string(v.ByteArray()))
		}
		return types.BlobValue(v.Bytes())
	}
}
