package reader

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"iter"
	"strconv"

	vterrors "github.com/Sergimayol/sqlite-virtual-url/internal/errors"
	"github.com/Sergimayol/sqlite-virtual-url/internal/inference"
	"github.com/Sergimayol/sqlite-virtual-url/pkg/types"
)

type csvReader struct {
	base
	data []byte
}

func newCSVReader(data []byte, sampleRows int) (*csvReader, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.ReuseRecord = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, vterrors.NewInvalidFormat("csv: empty payload, no header row")
	}
	if err != nil {
		return nil, vterrors.NewMalformedInput("csv: read header", err)
	}
	names := append([]string(nil), header...)

	cols := inference.NewColumns(len(names))
	var totalRows, bytesRead int64
	for i := 0; ; i++ {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, vterrors.NewMalformedInput("csv: read record", err)
		}
		totalRows++
		for _, field := range record {
			bytesRead += int64(len(field))
		}
		cols.UpdateRecord(record)

		if sampleRows > 0 && i+1 >= sampleRows {
			break
		}
	}

	return &csvReader{
		base: base{
			schema:    cols.Schema(names),
			format:    CSV,
			totalRows: totalRows,
			bytesRead: bytesRead,
		},
		data: data,
	}, nil
}

// Rows re-parses the payload from the start on every call.
func (c *csvReader) Rows() iter.Seq2[types.Row, error] {
	return func(yield func(types.Row, error) bool) {
		r := csv.NewReader(bytes.NewReader(c.data))
		r.ReuseRecord = true
		if _, err := r.Read(); err != nil {
			if !errors.Is(err, io.EOF) {
				yield(nil, vterrors.NewMalformedInput("csv: read header", err))
			}
			return
		}
		for {
			record, err := r.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				if !yield(nil, vterrors.NewMalformedInput("csv: read record", err)) {
					return
				}
				continue
			}
			row := make(types.Row, len(record))
			for i, field := range record {
				row[i] = parseCell(field)
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}

// parseCell types one field on its own, independent of the column type.
// Booleans must be spelled exactly "true" or "false" here.
func parseCell(s string) types.TypedValue {
	if s == "" {
		return types.NewTypedValue(types.NullValue())
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return types.NewTypedValue(types.IntValue(i))
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return types.NewTypedValue(types.FloatValue(f))
	}
	switch s {
	case "true":
		return types.NewTypedValue(types.BoolValue(true))
	case "false":
		return types.NewTypedValue(types.BoolValue(false))
	}
	return types.NewTypedValue(types.TextValue(s))
}
