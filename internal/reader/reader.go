// Package reader turns a fully fetched payload into a typed, restartable
// row sequence. Every supported format sits behind the Reader interface so
// callers never see a concrete reader type.
package reader

import (
	"fmt"
	"iter"
	"strings"

	vterrors "github.com/Sergimayol/sqlite-virtual-url/internal/errors"
	"github.com/Sergimayol/sqlite-virtual-url/pkg/types"
)

// Format is the closed set of payload formats.
type Format int

const (
	CSV Format = iota
	Avro
	Parquet
	JSON
	JSONL
)

var formatNames = [...]string{
	CSV:     "CSV",
	Avro:    "AVRO",
	Parquet: "PARQUET",
	JSON:    "JSON",
	JSONL:   "JSONL",
}

func (f Format) String() string {
	if f < CSV || f > JSONL {
		return fmt.Sprintf("Format(%d)", int(f))
	}
	return formatNames[f]
}

// ParseFormat resolves a format name case-insensitively. NDJSON is an
// alias of JSONL.
func ParseFormat(name string) (Format, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "CSV":
		return CSV, nil
	case "AVRO":
		return Avro, nil
	case "PARQUET":
		return Parquet, nil
	case "JSON":
		return JSON, nil
	case "JSONL", "NDJSON":
		return JSONL, nil
	default:
		return 0, vterrors.NewUnknownFormat(name)
	}
}

// Reader is the format-agnostic view of a parsed payload.
type Reader interface {
	Schema() types.Schema
	Format() Format
	// TotalRows is the number of rows seen while building the reader.
	// For sampled formats this stops at the sample budget.
	TotalRows() int64
	// BytesRead is an approximate byte tally gathered while building the reader.
	BytesRead() int64
	ColumnNames() []string
	ColumnTypes() []string
	TotalColumns() int
	// Rows returns a lazy, finite sequence over every row of the payload.
	// Each call starts from the first row. Per-row failures are yielded as
	// errors; the caller decides whether to keep pulling.
	Rows() iter.Seq2[types.Row, error]
}

// New parses data in the given format. sampleRows bounds schema discovery
// for the formats that infer types from text; zero or less samples every row.
// Column names must be unique ignoring case, as SQLite compares them.
func New(format Format, data []byte, sampleRows int) (Reader, error) {
	var (
		r   Reader
		err error
	)
	switch format {
	case CSV:
		r, err = newCSVReader(data, sampleRows)
	case Avro:
		r, err = newAvroReader(data)
	case Parquet:
		r, err = newParquetReader(data)
	case JSON:
		r, err = newJSONReader(data, false, sampleRows)
	case JSONL:
		r, err = newJSONReader(data, true, sampleRows)
	default:
		return nil, vterrors.NewUnknownFormat(format.String())
	}
	if err != nil {
		return nil, err
	}
	if err := checkColumnNames(r.Schema()); err != nil {
		return nil, err
	}
	return r, nil
}

func checkColumnNames(s types.Schema) error {
	seen := make(map[string]int, len(s.Fields))
	for i, f := range s.Fields {
		key := strings.ToLower(f.Name)
		if j, ok := seen[key]; ok {
			return vterrors.NewInvalidFormat(fmt.Sprintf("duplicate column name %q (columns %d and %d)", f.Name, j+1, i+1))
		}
		seen[key] = i
	}
	return nil
}

// base carries the bookkeeping shared by every reader.
type base struct {
	schema    types.Schema
	format    Format
	totalRows int64
	bytesRead int64
}

func (b *base) Schema() types.Schema { return b.schema }
func (b *base) Format() Format { return b.format }
func (b *base) TotalRows() int64 { return b.totalRows }
func (b *base) BytesRead() int64 { return b.bytesRead }
func (b *base) TotalColumns() int { return b.schema.Len() }
func (b *base) ColumnNames() []string {
	return b.schema.Names()
}

func (b *base) ColumnTypes() []string {
	out := make([]string, b.schema.Len())
	for i, f := range b.schema.Fields {
		out[i] = f.Type.String()
	}
	return out
}

// Describe renders the schema as a tree:
//
//	root
//	 |-- id: int (nullable = false)
func Describe(r Reader) string {
	return DescribeSchema(r.Schema())
}

// DescribeSchema renders a bare schema the same way Describe does.
func DescribeSchema(s types.Schema) string {
	var sb strings.Builder
	sb.WriteString("root\n")
	for _, f := range s.Fields {
		fmt.Fprintf(&sb, " |-- %s: %s (nullable = %t)\n", f.Name, f.Type, f.Nullable)
	}
	return sb.String()
}

// Collect drains a row sequence, stopping at the first row error.
func Collect(r Reader) ([]types.Row, error) {
	var rows []types.Row
	for row, err := range r.Rows() {
		if err != nil {
			return rows, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}
