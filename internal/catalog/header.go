package catalog

import (
	"fmt"
	"strings"

	vterrors "github.com/Sergimayol/sqlite-virtual-url/internal/errors"
	"github.com/Sergimayol/sqlite-virtual-url/pkg/types"
)

// EncodeHeaderLine quotes every name and joins them with ", ". Embedded
// quotes are doubled.
func EncodeHeaderLine(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

// SplitHeaderLine splits a header line on commas outside quotes. Each part
// is trimmed and, when quoted, unquoted with doubled quotes collapsed.
func SplitHeaderLine(line string) []string {
	var (
		fields   []string
		start    int
		inQuotes bool
	)
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '"':
			inQuotes = !inQuotes
		case ',':
			if !inQuotes {
				fields = append(fields, unquote(line[start:i]))
				start = i + 1
			}
		}
	}
	if start < len(line) {
		fields = append(fields, unquote(line[start:]))
	}
	return fields
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return strings.ReplaceAll(s[1:len(s)-1], `""`, `"`)
	}
	return s
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// ColumnDefs renders the column list of a table declaration, each column
// quoted and declared with the affinity of its type.
func ColumnDefs(schema types.Schema) string {
	cols := make([]string, schema.Len())
	for i, f := range schema.Fields {
		cols[i] = quoteIdent(f.Name) + " " + f.Type.Affinity()
	}
	return strings.Join(cols, ", ")
}

// EncodeColumnTypes renders declared types as "int, string, ...".
func EncodeColumnTypes(dts []types.DataType) string {
	parts := make([]string, len(dts))
	for i, t := range dts {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}

// ParseColumnTypes reverses EncodeColumnTypes.
func ParseColumnTypes(s string) ([]types.DataType, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	dts := make([]types.DataType, len(parts))
	for i, p := range parts {
		t, err := types.ParseDataType(p)
		if err != nil {
			return nil, vterrors.NewStorageError(vterrors.CodeCorruptMetadata, fmt.Sprintf("column %d", i), err)
		}
		dts[i] = t
	}
	return dts, nil
}
