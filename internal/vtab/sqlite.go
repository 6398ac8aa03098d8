//go:build sqlite_vtable

package vtab

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/mattn/go-sqlite3"

	"github.com/Sergimayol/sqlite-virtual-url/internal/catalog"
	vterrors "github.com/Sergimayol/sqlite-virtual-url/internal/errors"
	"github.com/Sergimayol/sqlite-virtual-url/internal/pushdown"
	"github.com/Sergimayol/sqlite-virtual-url/pkg/types"
)

// SQLITE_INDEX_CONSTRAINT_NE; go-sqlite3 does not export it.
const opNE sqlite3.Op = 68

// Module implements sqlite3.Module for one module name.
type Module struct {
	name string
	cfg  Config
}

// NewModule creates the module registered as name.
func NewModule(name string, cfg Config) *Module {
	return &Module{name: name, cfg: cfg}
}

// Create handles CREATE VIRTUAL TABLE.
func (m *Module) Create(c *sqlite3.SQLiteConn, args []string) (sqlite3.VTab, error) {
	return m.init(c, args, true)
}

// Connect handles reopening an existing virtual table.
func (m *Module) Connect(c *sqlite3.SQLiteConn, args []string) (sqlite3.VTab, error) {
	return m.init(c, args, false)
}

// DestroyModule is called when the connection closes.
func (m *Module) DestroyModule() {}

// args holds the module name, database name, table name, then the module
// arguments.
func (m *Module) init(c *sqlite3.SQLiteConn, args []string, creating bool) (sqlite3.VTab, error) {
	if len(args) < 3 {
		return nil, vterrors.NewInternalError(fmt.Sprintf("expected module, database and table names, got %d args", len(args)), nil)
	}
	key := catalog.Key{Module: m.name, Table: args[2]}
	inst, err := Materialize(context.Background(), m.cfg, key, args[3:], creating)
	if err != nil {
		return nil, err
	}
	if err := c.DeclareVTab(inst.Declaration()); err != nil {
		return nil, fmt.Errorf("vtab: declare %s: %w", key, err)
	}
	return &urlTable{inst: inst}, nil
}

type urlTable struct {
	inst *Instance
}

func translateOp(op sqlite3.Op) pushdown.Op {
	switch op {
	case sqlite3.OpEQ:
		return pushdown.OpEQ
	case sqlite3.OpGT:
		return pushdown.OpGT
	case sqlite3.OpLT:
		return pushdown.OpLT
	case sqlite3.OpGE:
		return pushdown.OpGE
	case sqlite3.OpLE:
		return pushdown.OpLE
	case opNE:
		return pushdown.OpNE
	default:
		return pushdown.OpUnsupported
	}
}

// BestIndex hands every usable supported constraint to the cursor. The
// driver assigns argument slots in the same order as the index token.
func (t *urlTable) BestIndex(cst []sqlite3.InfoConstraint, ob []sqlite3.InfoOrderBy) (*sqlite3.IndexResult, error) {
	offered := make([]pushdown.Constraint, len(cst))
	for i, c := range cst {
		offered[i] = pushdown.Constraint{Column: c.Column, Op: translateOp(c.Op), Usable: c.Usable}
	}
	plan, rows := t.inst.Plan(offered)

	used := make([]bool, len(cst))
	for i, slot := range plan.ArgIndex {
		used[i] = slot > 0
	}
	return &sqlite3.IndexResult{
		Used:          used,
		IdxNum:        plan.Count,
		IdxStr:        plan.Token,
		EstimatedCost: rows,
		EstimatedRows: rows,
	}, nil
}

func (t *urlTable) Open() (sqlite3.VTabCursor, error) {
	return &urlCursor{scan: t.inst.NewScan()}, nil
}

func (t *urlTable) Disconnect() error { return nil }

// Destroy handles DROP TABLE.
func (t *urlTable) Destroy() error {
	return t.inst.Drop(context.Background())
}

type urlCursor struct {
	scan *Scan
}

func (c *urlCursor) Filter(idxNum int, idxStr string, vals []any) error {
	return c.scan.Filter(idxStr, vals)
}

func (c *urlCursor) Next() error {
	c.scan.Next()
	return nil
}

func (c *urlCursor) EOF() bool { return c.scan.EOF() }

func (c *urlCursor) Column(ctx *sqlite3.SQLiteContext, col int) error {
	v, err := c.scan.Value(col)
	if err != nil {
		return err
	}
	switch v.Kind() {
	case types.Null:
		ctx.ResultNull()
	case types.Boolean:
		ctx.ResultBool(v.Bool())
	case types.Integer:
		ctx.ResultInt64(v.Int())
	case types.Float:
		ctx.ResultDouble(v.Float())
	case types.Blob:
		ctx.ResultBlob(v.Bytes())
	default:
		ctx.ResultText(v.String())
	}
	return nil
}

func (c *urlCursor) Rowid() (int64, error) { return c.scan.Rowid(), nil }

func (c *urlCursor) Close() error { return nil }

var (
	registeredMu sync.Mutex
	registered   = make(map[string]bool)
)

// Register installs a database/sql driver named driverName whose
// connections load every module in ModuleNames.
func Register(driverName string, cfg Config) error {
	registeredMu.Lock()
	defer registeredMu.Unlock()

	if registered[driverName] {
		return vterrors.NewInternalError(fmt.Sprintf("driver %q is already registered", driverName), nil)
	}
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			for _, name := range ModuleNames {
				if err := conn.CreateModule(name, NewModule(name, cfg)); err != nil {
					return fmt.Errorf("vtab: create module %s: %w", name, err)
				}
			}
			return nil
		},
	})
	registered[driverName] = true
	return nil
}

// Supported reports whether virtual table support was compiled in.
func Supported() bool { return true }
