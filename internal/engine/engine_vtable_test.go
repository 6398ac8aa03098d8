//go:build sqlite_vtable

package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sergimayol/sqlite-virtual-url/internal/config"
)

func newTestEngine(t *testing.T, dir string) *Engine {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = dir
	cfg.HostDB = filepath.Join(dir, "host.db")
	cfg.Fetch.AllowLocal = true
	cfg.Resolve()
	require.NoError(t, cfg.Validate())
	require.NoError(t, cfg.EnsureDirectories())

	e, err := New(context.Background(), cfg)
	require.NoError(t, err)
	return e
}

func TestEngine_CreateQueryReopen(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "people.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("id,name\n1,ann\n2,bob\n3,cy\n"), 0644))

	ctx := context.Background()
	e := newTestEngine(t, dir)

	_, err := e.Execute(ctx, fmt.Sprintf("CREATE VIRTUAL TABLE people USING url(URL='%s', FORMAT='csv')", csvPath))
	require.NoError(t, err)

	res, err := e.Execute(ctx, "SELECT name FROM people WHERE id > 1")
	require.NoError(t, err)
	assert.Equal(t, []string{"name"}, res.Columns)
	assert.Equal(t, [][]any{{"bob"}, {"cy"}}, res.Rows)

	top := e.Stats().GetTopPredicates(1)
	require.Len(t, top, 1)
	assert.Equal(t, "id", top[0].Column)
	assert.NotNil(t, e.PayloadCache())
	require.NoError(t, e.Close())

	// The source disappears; the reopened host rebuilds from the stored copy.
	require.NoError(t, os.Remove(csvPath))
	e = newTestEngine(t, dir)
	defer e.Close()

	res, err = e.Execute(ctx, "SELECT COUNT(*) FROM people")
	require.NoError(t, err)
	assert.Equal(t, [][]any{{int64(3)}}, res.Rows)
}
