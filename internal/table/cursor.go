package table

import "github.com/Sergimayol/sqlite-virtual-url/pkg/types"

// State is the lifecycle position of a Cursor.
type State int

const (
	Created State = iota
	Filtered
	Iterating
	Exhausted
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Filtered:
		return "filtered"
	case Iterating:
		return "iterating"
	case Exhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Cursor walks one filtered view of a table. Reset may be called from any
// state and always starts a fresh view whose positions count from zero.
type Cursor struct {
	table *Table
	view  []int
	pos   int
	state State
}

// NewCursor returns a cursor over t in the Created state.
func NewCursor(t *Table) *Cursor {
	return &Cursor{table: t}
}

// Reset applies p to the base table and rewinds to the first matching row.
func (c *Cursor) Reset(p Predicate) {
	c.view = c.table.Filter(p)
	c.pos = 0
	if len(c.view) == 0 {
		c.state = Exhausted
		return
	}
	c.state = Filtered
}

// Advance moves to the next row of the view.
func (c *Cursor) Advance() {
	switch c.state {
	case Created, Exhausted:
		return
	}
	c.pos++
	if c.pos >= len(c.view) {
		c.state = Exhausted
		return
	}
	c.state = Iterating
}

// AtEnd reports whether the view has no current row. A cursor that was
// never reset is at its end.
func (c *Cursor) AtEnd() bool {
	return c.state == Created || c.state == Exhausted
}

// Current returns the row under the cursor.
func (c *Cursor) Current() (types.Row, bool) {
	if c.AtEnd() {
		return nil, false
	}
	return c.table.Row(c.view[c.pos]), true
}

// Position is the 0-based ordinal of the current row within the view.
func (c *Cursor) Position() int64 {
	return int64(c.pos)
}

// State returns the lifecycle state.
func (c *Cursor) State() State {
	return c.state
}

// Len returns the size of the current view.
func (c *Cursor) Len() int {
	return len(c.view)
}
