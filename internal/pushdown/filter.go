package pushdown

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Sergimayol/sqlite-virtual-url/internal/bloom"
	vterrors "github.com/Sergimayol/sqlite-virtual-url/internal/errors"
	"github.com/Sergimayol/sqlite-virtual-url/internal/table"
	"github.com/Sergimayol/sqlite-virtual-url/pkg/types"
)

// predicate compares one column against a bound argument.
type predicate struct {
	term  Term
	arg   string
	null  bool
	num   number
	isNum bool
}

// Filter is the conjunction of the decoded predicates. It implements
// table.Predicate and table.Pruner.
type Filter struct {
	preds []predicate
}

var (
	_ table.Predicate = (*Filter)(nil)
	_ table.Pruner    = (*Filter)(nil)
)

// Compile decodes token and binds args by position. Each argument is
// coerced according to the declared type of its column.
func Compile(schema types.Schema, token string, args []any) (*Filter, error) {
	terms, err := Decode(token)
	if err != nil {
		return nil, err
	}
	if len(args) < len(terms) {
		return nil, vterrors.NewQueryError(vterrors.CodeBadArgument,
			fmt.Sprintf("index token has %d terms but %d arguments were bound", len(terms), len(args)))
	}

	f := &Filter{preds: make([]predicate, 0, len(terms))}
	for i, term := range terms {
		if term.Column >= schema.Len() {
			return nil, vterrors.NewQueryError(vterrors.CodeMalformedIndex,
				fmt.Sprintf("column %d out of range for %d columns", term.Column, schema.Len()))
		}
		p := predicate{term: term}
		p.arg, p.null = coerce(args[i], schema.Fields[term.Column].Type)
		if !p.null {
			p.num, p.isNum = parseNumber(p.arg)
		}
		f.preds = append(f.preds, p)
	}
	return f, nil
}

// Terms returns the decoded terms in slot order.
func (f *Filter) Terms() []Term {
	terms := make([]Term, len(f.preds))
	for i, p := range f.preds {
		terms[i] = p.term
	}
	return terms
}

// Match reports whether every predicate holds for row.
func (f *Filter) Match(row types.Row) bool {
	for i := range f.preds {
		if !f.preds[i].match(row) {
			return false
		}
	}
	return true
}

// Excludes uses the table's membership filters to rule out equality terms
// whose value cannot be present.
func (f *Filter) Excludes(t *table.Table) bool {
	for _, p := range f.preds {
		if p.null {
			return true
		}
		if p.term.Op == OpEQ && !t.MayContain(p.term.Column, bloom.Key(p.arg)) {
			return true
		}
	}
	return false
}

func (p *predicate) match(row types.Row) bool {
	if p.null || p.term.Column >= len(row) {
		return false
	}
	cell := row[p.term.Column].Value
	if cell.IsNull() {
		return false
	}
	text := strings.TrimSpace(cell.CompareText())
	if p.isNum {
		if n, ok := parseNumber(text); ok {
			return compare(n.cmp(p.num), p.term.Op, math.IsNaN(n.f) || math.IsNaN(p.num.f))
		}
	}
	return compare(strings.Compare(text, p.arg), p.term.Op, false)
}

// compare maps a three-way result onto op. An unordered pair (NaN) only
// satisfies !=.
func compare(c int, op Op, unordered bool) bool {
	if unordered {
		return op == OpNE
	}
	switch op {
	case OpEQ:
		return c == 0
	case OpGT:
		return c > 0
	case OpLT:
		return c < 0
	case OpGE:
		return c >= 0
	case OpLE:
		return c <= 0
	case OpNE:
		return c != 0
	default:
		return false
	}
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// number is a parsed numeric operand. Integral values within the int64
// range compare exactly as integers; everything else compares as float64.
type number struct {
	i     int64
	f     float64
	isInt bool
}

func parseNumber(s string) (number, bool) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return number{i: i, f: float64(i), isInt: true}, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return number{}, false
	}
	if f == math.Trunc(f) && f >= -(1<<63) && f < 1<<63 {
		return number{i: int64(f), f: f, isInt: true}, true
	}
	return number{f: f}, true
}

func (n number) cmp(o number) int {
	if n.isInt && o.isInt {
		switch {
		case n.i < o.i:
			return -1
		case n.i > o.i:
			return 1
		default:
			return 0
		}
	}
	return cmpFloat(n.f, o.f)
}

// coerce turns a bound host value into its comparison text for a column of
// the declared type. The second result reports a NULL argument.
func coerce(arg any, declared types.DataType) (string, bool) {
	switch v := arg.(type) {
	case nil:
		return "", true
	case bool:
		if v {
			return "1", false
		}
		return "0", false
	case types.Value:
		if v.IsNull() {
			return "", true
		}
		return coerce(v.SQL(), declared)
	}

	switch declared {
	case types.Boolean:
		return coerceBool(arg), false
	case types.Integer:
		return coerceInt(arg), false
	case types.Float:
		return coerceFloat(arg), false
	default:
		return textOf(arg), false
	}
}

func coerceBool(arg any) string {
	switch v := arg.(type) {
	case int64:
		return boolText(v != 0)
	case float64:
		return boolText(v != 0)
	}
	s := textOf(arg)
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true":
		return "1"
	case "false":
		return "0"
	}
	if n, ok := parseNumber(strings.TrimSpace(s)); ok {
		return boolText(n.f != 0)
	}
	return s
}

func boolText(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// coerceInt normalizes integral arguments. Fractional ones stay fractional.
func coerceInt(arg any) string {
	switch v := arg.(type) {
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return types.FormatFloat(v)
	}
	s := textOf(arg)
	if i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
		return strconv.FormatInt(i, 10)
	}
	return s
}

func coerceFloat(arg any) string {
	switch v := arg.(type) {
	case int64:
		return types.FormatFloat(float64(v))
	case float64:
		return types.FormatFloat(v)
	}
	s := textOf(arg)
	if n, ok := parseNumber(strings.TrimSpace(s)); ok {
		return types.FormatFloat(n.f)
	}
	return s
}

func textOf(arg any) string {
	switch v := arg.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case float64:
		return types.FormatFloat(v)
	default:
		return fmt.Sprint(v)
	}
}
