// Package catalog persists materialized tables so a reconnecting virtual
// table can be rebuilt without fetching or inferring again.
package catalog

import (
	"context"
	"fmt"
	"strings"

	vterrors "github.com/Sergimayol/sqlite-virtual-url/internal/errors"
	"github.com/Sergimayol/sqlite-virtual-url/internal/storage"
	"github.com/Sergimayol/sqlite-virtual-url/pkg/types"
)

// DefaultBatchSize is the number of rows written per insert batch.
const DefaultBatchSize = 1000

// Key identifies one persisted table.
type Key struct {
	Module string
	Table  string
}

func (k Key) String() string {
	return k.Module + "." + k.Table
}

// Metadata describes how a persisted table was produced.
type Metadata struct {
	URL    string
	Format string
	// HeaderLine holds the quoted, comma separated column names.
	HeaderLine string
	// ColumnTypes are the declared column types, in column order.
	ColumnTypes []types.DataType
}

// NewMetadata captures the metadata of a freshly materialized table.
func NewMetadata(url, format string, schema types.Schema) Metadata {
	return Metadata{
		URL:         url,
		Format:      format,
		HeaderLine:  EncodeHeaderLine(schema.Names()),
		ColumnTypes: schema.Types(),
	}
}

// Schema rebuilds the column layout from the header line and the declared
// types. Nullability is not persisted; callers derive it from the rows.
func (m Metadata) Schema() (types.Schema, error) {
	names := SplitHeaderLine(m.HeaderLine)
	if len(names) != len(m.ColumnTypes) {
		return types.Schema{}, vterrors.NewStorageError(vterrors.CodeCorruptMetadata,
			fmt.Sprintf("header line has %d columns but %d types are declared", len(names), len(m.ColumnTypes)), nil)
	}
	fields := make([]types.SchemaField, len(names))
	for i, name := range names {
		fields[i] = types.SchemaField{Name: name, Type: m.ColumnTypes[i]}
	}
	return types.Schema{Fields: fields}, nil
}

// Store persists materialized tables.
type Store interface {
	// Exists reports whether a complete copy of the table is stored.
	Exists(ctx context.Context, key Key) (bool, error)

	// Save persists metadata and rows. Saving over an existing copy fails.
	Save(ctx context.Context, key Key, meta Metadata, rows []types.Row) error

	// Load returns the stored metadata and rows, decoded with the declared
	// column types.
	Load(ctx context.Context, key Key) (Metadata, []types.Row, error)

	// Delete removes the stored copy. Deleting a missing table is not an error.
	Delete(ctx context.Context, key Key) error
}

// Mode selects where materialized tables are kept.
type Mode int

const (
	// ModeSQLite keeps tables in a SQLite database file.
	ModeSQLite Mode = iota
	// ModeMemory keeps tables for the life of the process.
	ModeMemory
	// ModeObject keeps compressed snapshots in object storage.
	ModeObject
)

func (m Mode) String() string {
	switch m {
	case ModeSQLite:
		return "SQLITE"
	case ModeMemory:
		return "MEM"
	case ModeObject:
		return "OBJECT"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses a storage option. Surrounding whitespace and case are
// ignored.
func ParseMode(s string) (Mode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SQLITE":
		return ModeSQLite, nil
	case "MEM":
		return ModeMemory, nil
	case "OBJECT":
		return ModeObject, nil
	default:
		return 0, vterrors.NewUnknownStorageMode(s)
	}
}

// Options configures the stores built by Open.
type Options struct {
	// SQLitePath is the database file used by ModeSQLite.
	SQLitePath string
	// BatchSize is the number of rows per insert batch or snapshot object.
	BatchSize int
	// Objects backs ModeObject.
	Objects storage.ObjectStorage
	// Prefix is prepended to every object path in ModeObject.
	Prefix string
}

// Open builds the store for mode.
func Open(mode Mode, opts Options) (Store, error) {
	switch mode {
	case ModeSQLite:
		if opts.SQLitePath == "" {
			return nil, vterrors.New(vterrors.ErrCategoryConfig, vterrors.CodeMissingArgument, "sqlite storage needs a database path")
		}
		return OpenSQLiteStore(opts.SQLitePath, opts.BatchSize)
	case ModeMemory:
		return NewMemoryStore(), nil
	case ModeObject:
		if opts.Objects == nil {
			return nil, vterrors.New(vterrors.ErrCategoryConfig, vterrors.CodeMissingArgument, "object storage is not configured")
		}
		return NewObjectStore(opts.Objects, opts.Prefix, opts.BatchSize), nil
	default:
		return nil, vterrors.NewUnknownStorageMode(mode.String())
	}
}

func batchSizeOrDefault(n int) int {
	if n <= 0 {
		return DefaultBatchSize
	}
	return n
}
