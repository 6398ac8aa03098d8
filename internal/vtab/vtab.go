// Package vtab exposes remote datasets as SQLite virtual tables. The
// host-independent part lives here: argument parsing, store selection,
// materialization through the gate and filtered scans. The go-sqlite3
// binding is compiled with the sqlite_vtable build tag.
package vtab

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/Sergimayol/sqlite-virtual-url/internal/catalog"
	vterrors "github.com/Sergimayol/sqlite-virtual-url/internal/errors"
	"github.com/Sergimayol/sqlite-virtual-url/internal/fetch"
	"github.com/Sergimayol/sqlite-virtual-url/internal/gate"
	"github.com/Sergimayol/sqlite-virtual-url/internal/observability"
	"github.com/Sergimayol/sqlite-virtual-url/internal/pushdown"
	"github.com/Sergimayol/sqlite-virtual-url/internal/table"
	"github.com/Sergimayol/sqlite-virtual-url/pkg/types"
)

// ModuleNames are the names the module is registered under.
var ModuleNames = []string{"url", "httpfs"}

// Stores opens one catalog.Store per storage mode on first use and shares
// it between every table and module.
type Stores struct {
	opts catalog.Options

	mu     sync.Mutex
	stores map[catalog.Mode]catalog.Store
}

// NewStores creates a lazily opened store set.
func NewStores(opts catalog.Options) *Stores {
	return &Stores{opts: opts, stores: make(map[catalog.Mode]catalog.Store)}
}

// Get returns the store for mode, opening it if needed.
func (s *Stores) Get(mode catalog.Mode) (catalog.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.stores[mode]; ok {
		return st, nil
	}
	st, err := catalog.Open(mode, s.opts)
	if err != nil {
		return nil, err
	}
	s.stores[mode] = st
	return st, nil
}

// Close closes every opened store that holds resources.
func (s *Stores) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for mode, st := range s.stores {
		if c, ok := st.(io.Closer); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("vtab: close %s store: %w", mode, err)
			}
		}
		delete(s.stores, mode)
	}
	return firstErr
}

// Config is shared by every table of a registered module.
type Config struct {
	Stores  *Stores
	Fetcher fetch.Fetcher
	// SampleRows is the schema discovery budget, see gate.New.
	SampleRows int
	// DefaultMode applies when a table definition has no STORAGE argument.
	DefaultMode catalog.Mode
	// Stats, when set, receives predicate usage and scan counters.
	Stats *observability.QueryStats
}

// Instance is one materialized virtual table.
type Instance struct {
	key   catalog.Key
	def   Definition
	gate  *gate.Gate
	table *table.Table
	stats *observability.QueryStats
}

// Materialize resolves the table definition and opens the table through
// the gate. creating distinguishes CREATE VIRTUAL TABLE from a reconnect.
func Materialize(ctx context.Context, cfg Config, key catalog.Key, args []string, creating bool) (*Instance, error) {
	def, err := ParseDefinition(args, cfg.DefaultMode)
	if err != nil {
		return nil, fmt.Errorf("vtab: %s: %w", key, err)
	}
	if cfg.Stores == nil || cfg.Fetcher == nil {
		return nil, vterrors.NewInternalError("module is not configured", nil)
	}
	store, err := cfg.Stores.Get(def.Storage)
	if err != nil {
		return nil, fmt.Errorf("vtab: %s: %w", key, err)
	}

	g := gate.New(store, cfg.Fetcher, cfg.SampleRows)
	opened, err := g.Open(ctx, gate.Request{
		Key:      key,
		URL:      def.URL,
		Format:   def.Format,
		Creating: creating,
	})
	if err != nil {
		return nil, err
	}
	log.Printf("vtab: %s ready from %s (%s storage, %d rows)", key, opened.Source, def.Storage, opened.Table.Len())

	return &Instance{
		key:   key,
		def:   def,
		gate:  g,
		table: opened.Table,
		stats: cfg.Stats,
	}, nil
}

// Key returns the table key.
func (in *Instance) Key() catalog.Key { return in.key }

// Definition returns the resolved table definition.
func (in *Instance) Definition() Definition { return in.def }

// Schema returns the table schema.
func (in *Instance) Schema() types.Schema { return in.table.Schema() }

// Len returns the number of materialized rows.
func (in *Instance) Len() int { return in.table.Len() }

// Declaration is the CREATE TABLE statement handed to the host.
func (in *Instance) Declaration() string {
	return "CREATE TABLE x(" + catalog.ColumnDefs(in.table.Schema()) + ")"
}

// Plan selects the pushed-down constraints and estimates the scan cost.
func (in *Instance) Plan(constraints []pushdown.Constraint) (pushdown.IndexPlan, float64) {
	plan := pushdown.Plan(constraints)
	rows := float64(in.table.Len())
	// Each pushed term is assumed to keep a tenth of the rows.
	for i := 0; i < plan.Count && rows > 1; i++ {
		rows /= 10
	}
	return plan, rows
}

// Drop removes the persisted copy.
func (in *Instance) Drop(ctx context.Context) error {
	return in.gate.Drop(ctx, in.key)
}

// NewScan opens a cursor over the table. It yields nothing until Filter.
func (in *Instance) NewScan() *Scan {
	return &Scan{inst: in, cursor: table.NewCursor(in.table)}
}

// Scan is one cursor over an Instance.
type Scan struct {
	inst   *Instance
	cursor *table.Cursor
}

// Filter compiles the index token against args and restarts the scan.
func (s *Scan) Filter(token string, args []any) error {
	schema := s.inst.table.Schema()
	f, err := pushdown.Compile(schema, token, args)
	if err != nil {
		return fmt.Errorf("vtab: %s: %w", s.inst.key, err)
	}
	s.cursor.Reset(f)

	if st := s.inst.stats; st != nil {
		terms := f.Terms()
		pruned := len(terms) > 0 && f.Excludes(s.inst.table)
		scanned := int64(s.inst.table.Len())
		if pruned {
			scanned = 0
		}
		st.RecordTerms(s.inst.key.String(), schema, terms)
		st.RecordScan(s.inst.key.String(), scanned, int64(s.cursor.Len()), pruned)
	}
	return nil
}

// Next advances to the next matching row.
func (s *Scan) Next() { s.cursor.Advance() }

// EOF reports whether the scan has no current row.
func (s *Scan) EOF() bool { return s.cursor.AtEnd() }

// Rowid is the 0-based position of the current row within the filtered view.
func (s *Scan) Rowid() int64 { return s.cursor.Position() }

// Value returns column col of the current row.
func (s *Scan) Value(col int) (types.Value, error) {
	row, ok := s.cursor.Current()
	if !ok {
		return types.Value{}, vterrors.NewQueryError(vterrors.CodeBadArgument, "cursor has no current row")
	}
	if col < 0 || col >= len(row) {
		return types.Value{}, vterrors.NewQueryError(vterrors.CodeBadArgument,
			fmt.Sprintf("column %d out of range for %d columns", col, len(row)))
	}
	return row[col].Value, nil
}
