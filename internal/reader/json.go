package reader

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"strconv"

	vterrors "github.com/Sergimayol/sqlite-virtual-url/internal/errors"
	"github.com/Sergimayol/sqlite-virtual-url/internal/inference"
	"github.com/Sergimayol/sqlite-virtual-url/pkg/types"
)

// jsonRecord keeps an object's members in document order.
type jsonRecord struct {
	keys   []string
	values []types.Value
}

type jsonReader struct {
	base
	records []jsonRecord
}

// newJSONReader reads either a top-level array of objects (or a single
// object) or, when lines is set, a stream of newline-delimited objects.
// Nested arrays and objects are flattened to their compact JSON text.
func newJSONReader(data []byte, lines bool, sampleRows int) (*jsonReader, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	var records []jsonRecord
	var err error
	if lines {
		records, err = decodeJSONLines(dec)
	} else {
		records, err = decodeJSONDocument(dec)
	}
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, vterrors.NewInvalidFormat("json: no records")
	}

	format := JSON
	if lines {
		format = JSONL
	}
	return &jsonReader{
		base: base{
			schema:    jsonSchema(records, sampleRows),
			format:    format,
			totalRows: int64(len(records)),
			bytesRead: dec.InputOffset(),
		},
		records: records,
	}, nil
}

func decodeJSONLines(dec *json.Decoder) ([]jsonRecord, error) {
	var records []jsonRecord
	for {
		rec, err := decodeObject(dec)
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
}

func decodeJSONDocument(dec *json.Decoder) ([]jsonRecord, error) {
	tok, err := dec.Token()
	if errors.Is(err, io.EOF) {
		return nil, vterrors.NewInvalidFormat("json: empty payload")
	}
	if err != nil {
		return nil, vterrors.NewMalformedInput("json: read document", err)
	}
	switch tok {
	case json.Delim('{'):
		rec, err := decodeMembers(dec)
		if err != nil {
			return nil, err
		}
		return []jsonRecord{rec}, nil
	case json.Delim('['):
	default:
		return nil, vterrors.NewInvalidFormat(fmt.Sprintf("json: expected array or object, got %v", tok))
	}

	var records []jsonRecord
	for dec.More() {
		rec, err := decodeObject(dec)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if _, err := dec.Token(); err != nil {
		return nil, vterrors.NewMalformedInput("json: close array", err)
	}
	return records, nil
}

// decodeObject reads one complete object. It returns io.EOF untouched when
// the input is exhausted before the object starts.
func decodeObject(dec *json.Decoder) (jsonRecord, error) {
	tok, err := dec.Token()
	if errors.Is(err, io.EOF) {
		return jsonRecord{}, io.EOF
	}
	if err != nil {
		return jsonRecord{}, vterrors.NewMalformedInput("json: read record", err)
	}
	if tok != json.Delim('{') {
		return jsonRecord{}, vterrors.NewInvalidFormat(fmt.Sprintf("json: expected object, got %v", tok))
	}
	return decodeMembers(dec)
}

// decodeMembers reads the members of an object whose opening brace has
// already been consumed.
func decodeMembers(dec *json.Decoder) (jsonRecord, error) {
	var rec jsonRecord
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return jsonRecord{}, vterrors.NewMalformedInput("json: read key", err)
		}
		key, ok := tok.(string)
		if !ok {
			return jsonRecord{}, vterrors.NewMalformedInput(fmt.Sprintf("json: unexpected key %v", tok), nil)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return jsonRecord{}, vterrors.NewMalformedInput(fmt.Sprintf("json: read value of %q", key), err)
		}
		v, err := jsonValue(raw)
		if err != nil {
			return jsonRecord{}, err
		}
		rec.keys = append(rec.keys, key)
		rec.values = append(rec.values, v)
	}
	if _, err := dec.Token(); err != nil {
		return jsonRecord{}, vterrors.NewMalformedInput("json: close object", err)
	}
	return rec, nil
}

func jsonValue(raw json.RawMessage) (types.Value, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return types.NullValue(), nil
	}
	switch raw[0] {
	case 'n':
		return types.NullValue(), nil
	case 't':
		return types.BoolValue(true), nil
	case 'f':
		return types.BoolValue(false), nil
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return types.Value{}, vterrors.NewMalformedInput("json: decode string", err)
		}
		return types.TextValue(s), nil
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return types.Value{}, vterrors.NewMalformedInput("json: compact nested value", err)
		}
		return types.TextValue(buf.String()), nil
	}
	if i, err := strconv.ParseInt(string(raw), 10, 64); err == nil {
		return types.IntValue(i), nil
	}
	f, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return types.Value{}, vterrors.NewMalformedInput(fmt.Sprintf("json: bad number %s", raw), err)
	}
	return types.FloatValue(f), nil
}

// jsonSchema collects column names across all records in first-seen order
// and infers their types from the first sampleRows records. A record that
// lacks a column marks it nullable.
func jsonSchema(records []jsonRecord, sampleRows int) types.Schema {
	index := map[string]int{}
	var names []string
	for _, rec := range records {
		for _, k := range rec.keys {
			if _, ok := index[k]; !ok {
				index[k] = len(names)
				names = append(names, k)
			}
		}
	}

	cols := inference.NewColumns(len(names))
	for n, rec := range records {
		if sampleRows > 0 && n >= sampleRows {
			break
		}
		seen := make([]bool, len(names))
		for i, k := range rec.keys {
			pos := index[k]
			seen[pos] = true
			cols[pos].Observe(inferenceType(rec.values[i].Kind()))
		}
		for pos, ok := range seen {
			if !ok {
				cols[pos].Observe(inference.Null)
			}
		}
	}
	return cols.Schema(names)
}

func inferenceType(t types.DataType) inference.Type {
	switch t {
	case types.Boolean:
		return inference.Boolean
	case types.Integer:
		return inference.Integer
	case types.Float:
		return inference.Float
	case types.Null:
		return inference.Null
	default:
		return inference.Text
	}
}

func (j *jsonReader) Rows() iter.Seq2[types.Row, error] {
	return func(yield func(types.Row, error) bool) {
		index := make(map[string]int, j.schema.Len())
		for pos, name := range j.schema.Names() {
			index[name] = pos
		}
		for _, rec := range j.records {
			row := make(types.Row, len(index))
			for i := range row {
				row[i] = types.NewTypedValue(types.NullValue())
			}
			for i, k := range rec.keys {
				row[index[k]] = types.NewTypedValue(rec.values[i])
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}
