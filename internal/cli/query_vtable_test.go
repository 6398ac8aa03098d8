//go:build sqlite_vtable

package cli

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuery(t *testing.T) {
	path := writeCSV(t)
	t.Setenv("URLVTAB_DATA_DIR", t.TempDir())

	out, err := execute(t, "--format", "csv", "query",
		fmt.Sprintf("CREATE VIRTUAL TABLE people USING url(URL='%s', FORMAT='csv', STORAGE='MEM')", path),
		"SELECT name FROM people WHERE score > 2.6",
	)
	require.NoError(t, err)
	assert.Equal(t, "name\nbob\n", out)
}
