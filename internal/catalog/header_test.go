package catalog

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vterrors "github.com/Sergimayol/sqlite-virtual-url/internal/errors"
	"github.com/Sergimayol/sqlite-virtual-url/pkg/types"
)

func TestSplitHeaderLine(t *testing.T) {
	tests := []struct {
		line string
		want []string
	}{
		{`"id", "name", "score"`, []string{"id", "name", "score"}},
		{`id,name`, []string{"id", "name"}},
		{`"a, b", c`, []string{"a, b", "c"}},
		{`"say ""hi""", x`, []string{`say "hi"`, "x"}},
		{`  "padded"  `, []string{"padded"}},
		{``, nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SplitHeaderLine(tt.line), tt.line)
	}
}

func TestEncodeHeaderLine(t *testing.T) {
	assert.Equal(t, `"id", "full name", "q""uote"`, EncodeHeaderLine([]string{"id", "full name", `q"uote`}))
}

func TestHeaderLine_RoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("split(encode(names)) == names", prop.ForAll(
		func(names []string) bool {
			got := SplitHeaderLine(EncodeHeaderLine(names))
			if len(got) != len(names) {
				return false
			}
			for i := range names {
				if got[i] != names[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AnyString()),
	))

	properties.TestingRun(t)
}

func TestColumnTypes(t *testing.T) {
	dts := []types.DataType{types.Integer, types.Text, types.Float, types.Boolean, types.Blob, types.Null}
	encoded := EncodeColumnTypes(dts)
	assert.Equal(t, "int, string, float, bool, blob, null", encoded)

	parsed, err := ParseColumnTypes(encoded)
	require.NoError(t, err)
	assert.Equal(t, dts, parsed)

	// affinity names written by other tools are accepted
	parsed, err = ParseColumnTypes("INTEGER, REAL, TEXT")
	require.NoError(t, err)
	assert.Equal(t, []types.DataType{types.Integer, types.Float, types.Text}, parsed)

	_, err = ParseColumnTypes("int, decimal")
	require.Error(t, err)
	assert.Equal(t, vterrors.CodeCorruptMetadata, vterrors.GetCode(err))
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{
		"MEM":      ModeMemory,
		"mem\n":    ModeMemory,
		" SQLITE ": ModeSQLite,
		"Sqlite":   ModeSQLite,
		"\tobject": ModeObject,
	} {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"disk", ""} {
		_, err := ParseMode(in)
		require.Error(t, err)
		assert.ErrorIs(t, err, vterrors.ErrUnknownStorageMode)
		assert.Equal(t, "[STORAGE:UNKNOWN_STORAGE_MODE] not a valid storage option: "+in, err.Error())
	}
}

func TestMetadata_Schema(t *testing.T) {
	schema := types.Schema{Fields: []types.SchemaField{
		{Name: "id", Type: types.Integer},
		{Name: "a, b", Type: types.Text, Nullable: true},
	}}
	meta := NewMetadata("http://example.com/x.csv", "CSV", schema)
	assert.Equal(t, `"id", "a, b"`, meta.HeaderLine)

	got, err := meta.Schema()
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "a, b"}, got.Names())
	assert.Equal(t, []types.DataType{types.Integer, types.Text}, got.Types())

	meta.ColumnTypes = meta.ColumnTypes[:1]
	_, err = meta.Schema()
	assert.Equal(t, vterrors.CodeCorruptMetadata, vterrors.GetCode(err))
}
