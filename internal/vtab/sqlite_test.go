//go:build sqlite_vtable

package vtab

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sergimayol/sqlite-virtual-url/internal/catalog"
	"github.com/Sergimayol/sqlite-virtual-url/internal/fetch"
)

var driverSeq atomic.Int64

func openHost(t *testing.T, dir string) *sql.DB {
	t.Helper()
	driver := fmt.Sprintf("sqlite3_urlvtab_test_%d", driverSeq.Add(1))
	cfg := Config{
		Stores:      NewStores(catalog.Options{SQLitePath: filepath.Join(dir, "cache.db")}),
		Fetcher:     fetch.FileFetcher{},
		DefaultMode: catalog.ModeSQLite,
	}
	t.Cleanup(func() { cfg.Stores.Close() })
	require.NoError(t, Register(driver, cfg))

	db, err := sql.Open(driver, filepath.Join(dir, "host.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLite_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "scores.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(scoresCSV), 0644))

	db := openHost(t, dir)
	_, err := db.Exec(fmt.Sprintf("CREATE VIRTUAL TABLE scores USING url('%s', 'CSV')", csvPath))
	require.NoError(t, err)

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM scores").Scan(&n))
	assert.Equal(t, 4, n)

	rows, err := db.Query("SELECT id, name FROM scores WHERE score >= 2.5 AND id != 3")
	require.NoError(t, err)
	var got []string
	for rows.Next() {
		var id int64
		var name sql.NullString
		require.NoError(t, rows.Scan(&id, &name))
		got = append(got, fmt.Sprintf("%d:%s", id, name.String))
	}
	require.NoError(t, rows.Err())
	rows.Close()
	assert.Equal(t, []string{"1:alice", "2:"}, got)

	var name string
	require.NoError(t, db.QueryRow("SELECT name FROM scores WHERE id = 4").Scan(&name))
	assert.Equal(t, "dave", name)

	_, err = db.Exec("DROP TABLE scores")
	require.NoError(t, err)
}

func TestSQLite_UnknownStorageFailsCreate(t *testing.T) {
	dir := t.TempDir()
	db := openHost(t, dir)
	_, err := db.Exec("CREATE VIRTUAL TABLE bad USING httpfs('/nowhere.csv', 'CSV', 'DISK')")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a valid storage option")
}

func TestSQLite_LargeIntegerKeys(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "big.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("id,name\n9007199254740992,a\n9007199254740993,b\n"), 0644))

	db := openHost(t, dir)
	_, err := db.Exec(fmt.Sprintf("CREATE VIRTUAL TABLE big USING url('%s', 'csv')", csvPath))
	require.NoError(t, err)

	rows, err := db.Query("SELECT name FROM big WHERE id = 9007199254740993")
	require.NoError(t, err)
	var got []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		got = append(got, name)
	}
	require.NoError(t, rows.Err())
	rows.Close()
	assert.Equal(t, []string{"b"}, got)
}
