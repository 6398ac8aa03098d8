// Package table holds a fully materialized dataset and the cursor that
// walks filtered views of it. The base rows are never mutated; filtering
// only produces index views.
package table

import (
	"fmt"
	"sync"

	"github.com/Sergimayol/sqlite-virtual-url/internal/bloom"
	"github.com/Sergimayol/sqlite-virtual-url/internal/reader"
	"github.com/Sergimayol/sqlite-virtual-url/pkg/types"
)

// bloomFPR is the target false positive rate of the per-column filters.
const bloomFPR = 0.01

// Predicate decides whether a row belongs to a filtered view.
type Predicate interface {
	Match(row types.Row) bool
}

// Pruner is implemented by predicates that can rule out a whole table
// without scanning it.
type Pruner interface {
	Excludes(t *Table) bool
}

// PredicateFunc adapts a plain function to Predicate.
type PredicateFunc func(row types.Row) bool

func (f PredicateFunc) Match(row types.Row) bool { return f(row) }

// Table is a schema plus its realized rows.
type Table struct {
	schema types.Schema
	rows   []types.Row

	mu     sync.Mutex
	blooms map[int]*bloom.Filter
}

// New wraps already materialized rows.
func New(schema types.Schema, rows []types.Row) *Table {
	return &Table{schema: schema, rows: rows}
}

// FromReader drains every row of r. Any row error aborts materialization;
// there is no partially built table.
func FromReader(r reader.Reader) (*Table, error) {
	rows := make([]types.Row, 0, max(r.TotalRows(), 0))
	for row, err := range r.Rows() {
		if err != nil {
			return nil, fmt.Errorf("table: row %d: %w", len(rows), err)
		}
		rows = append(rows, row)
	}
	return New(r.Schema(), rows), nil
}

func (t *Table) Schema() types.Schema { return t.schema }

// Len returns the number of base rows.
func (t *Table) Len() int { return len(t.rows) }

// Row returns the base row at i.
func (t *Table) Row(i int) types.Row { return t.rows[i] }

// Rows returns the base rows. Callers must not modify them.
func (t *Table) Rows() []types.Row { return t.rows }

// MayContain reports whether column col might hold a cell whose membership
// key equals key. The column's filter is built on first use.
func (t *Table) MayContain(col int, key []byte) bool {
	if col < 0 || col >= t.schema.Len() {
		return true
	}
	return t.columnFilter(col).Contains(key)
}

func (t *Table) columnFilter(col int) *bloom.Filter {
	t.mu.Lock()
	defer t.mu.Unlock()

	if f, ok := t.blooms[col]; ok {
		return f
	}
	f := bloom.NewWithEstimates(len(t.rows), bloomFPR)
	for _, row := range t.rows {
		if col >= len(row) || row[col].Value.IsNull() {
			continue
		}
		f.Add(bloom.Key(row[col].Value.CompareText()))
	}
	if t.blooms == nil {
		t.blooms = make(map[int]*bloom.Filter)
	}
	t.blooms[col] = f
	return f
}

// Filter returns the positions of the base rows matching p, in base order.
// A nil predicate selects every row.
func (t *Table) Filter(p Predicate) []int {
	if p == nil {
		view := make([]int, len(t.rows))
		for i := range view {
			view[i] = i
		}
		return view
	}
	if pr, ok := p.(Pruner); ok && pr.Excludes(t) {
		return nil
	}
	var view []int
	for i, row := range t.rows {
		if p.Match(row) {
			view = append(view, i)
		}
	}
	return view
}
