package reader

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"github.com/hamba/avro/v2/ocf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vterrors "github.com/Sergimayol/sqlite-virtual-url/internal/errors"
	"github.com/Sergimayol/sqlite-virtual-url/pkg/types"
)

const userSchema = `{
	"type": "record",
	"name": "User",
	"fields": [
		{"name": "id", "type": "int"},
		{"name": "name", "type": ["null", "string"]}
	]
}`

type avroUser struct {
	ID   int32   `avro:"id"`
	Name *string `avro:"name"`
}

const taggedSchema = `{
	"type": "record",
	"name": "Tagged",
	"fields": [
		{"name": "id", "type": "long"},
		{"name": "tags", "type": ["null", {"type": "array", "items": "int"}]}
	]
}`

type avroTagged struct {
	ID   int64    `avro:"id"`
	Tags *[]int32 `avro:"tags"`
}

func encodeAvro[T any](t *testing.T, schema string, records []T) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc, err := ocf.NewEncoder(schema, &buf)
	require.NoError(t, err)
	for _, rec := range records {
		require.NoError(t, enc.Encode(rec))
	}
	require.NoError(t, enc.Close())
	return buf.Bytes()
}

func strPtr(s string) *string { return &s }

func TestAvro_SchemaFromFirstRecord(t *testing.T) {
	data := encodeAvro(t, userSchema, []avroUser{
		{ID: 1, Name: strPtr("ada")},
		{ID: 2, Name: nil},
		{ID: 3, Name: strPtr("grace")},
	})

	r, err := New(Avro, data, 0)
	require.NoError(t, err)

	assert.Equal(t, Avro, r.Format())
	assert.Equal(t, []string{"id", "name"}, r.ColumnNames())
	assert.Equal(t, []string{"int", "string"}, r.ColumnTypes())
	assert.False(t, r.Schema().Fields[1].Nullable)
	assert.Equal(t, int64(3), r.TotalRows())
	assert.Greater(t, r.BytesRead(), int64(0))

	rows, err := Collect(r)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, int64(1), rows[0][0].Value.Int())
	assert.Equal(t, "ada", rows[0][1].Value.Text())
	assert.Equal(t, types.Null, rows[1][1].Type)
	assert.Equal(t, "grace", rows[2][1].Value.Text())
}

func TestAvro_EmptyPayload(t *testing.T) {
	_, err := New(Avro, nil, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, vterrors.ErrInvalidFormat))

	empty := encodeAvro[avroUser](t, userSchema, nil)
	_, err = New(Avro, empty, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, vterrors.ErrInvalidFormat))
}

func TestAvro_ComplexFieldFailsRow(t *testing.T) {
	data := encodeAvro(t, taggedSchema, []avroTagged{
		{ID: 1},
		{ID: 2, Tags: &[]int32{1, 2}},
		{ID: 3},
	})

	r, err := New(Avro, data, 0)
	require.NoError(t, err)

	var good []types.Row
	var failures []error
	for row, err := range r.Rows() {
		if err != nil {
			failures = append(failures, err)
			continue
		}
		good = append(good, row)
	}

	require.Len(t, failures, 1)
	assert.True(t, errors.Is(failures[0], vterrors.ErrInvalidFormat))
	assert.Contains(t, failures[0].Error(), "complex type")

	require.Len(t, good, 2)
	assert.Equal(t, int64(1), good[0][0].Value.Int())
	assert.Equal(t, int64(3), good[1][0].Value.Int())
}

func TestAvro_Rows_Restartable(t *testing.T) {
	data := encodeAvro(t, userSchema, []avroUser{{ID: 7, Name: strPtr("x")}})
	r, err := New(Avro, data, 0)
	require.NoError(t, err)

	first, err := Collect(r)
	require.NoError(t, err)
	second, err := Collect(r)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestTwosComplement(t *testing.T) {
	tests := []struct {
		in   int64
		want []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{127, []byte{0x7f}},
		{128, []byte{0x00, 0x80}},
		{-1, []byte{0xff}},
		{-128, []byte{0x80}},
		{-129, []byte{0xff, 0x7f}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, twosComplement(big.NewInt(tt.in)), "twosComplement(%d)", tt.in)
	}
}

func TestDecimalBytes(t *testing.T) {
	// 12.34 with scale 2 is the unscaled integer 1234 = 0x04d2
	r := big.NewRat(1234, 100)
	assert.Equal(t, []byte{0x04, 0xd2}, decimalBytes(r, 2))
}
