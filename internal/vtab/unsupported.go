//go:build !sqlite_vtable

package vtab

import vterrors "github.com/Sergimayol/sqlite-virtual-url/internal/errors"

// Register fails: the go-sqlite3 virtual table API needs the sqlite_vtable
// build tag.
func Register(driverName string, cfg Config) error {
	return vterrors.NewInternalError("virtual tables need a build with -tags sqlite_vtable", nil)
}

// Supported reports whether virtual table support was compiled in.
func Supported() bool { return false }
