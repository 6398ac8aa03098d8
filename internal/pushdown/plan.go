// Package pushdown translates the comparison constraints chosen by the host
// planner into an index token and applies them back to a materialized table.
package pushdown

import (
	"fmt"
	"strconv"
	"strings"

	vterrors "github.com/Sergimayol/sqlite-virtual-url/internal/errors"
)

// Op is a comparison operator the translator can push down.
type Op int

const (
	OpUnsupported Op = iota
	OpEQ
	OpGT
	OpLT
	OpGE
	OpLE
	OpNE
)

var opSymbols = map[Op]string{
	OpEQ: "=",
	OpGT: ">",
	OpLT: "<",
	OpGE: ">=",
	OpLE: "<=",
	OpNE: "!=",
}

func (o Op) String() string {
	if s, ok := opSymbols[o]; ok {
		return s
	}
	return "?"
}

// ParseOp parses an operator symbol. "<>" is accepted as "!=".
func ParseOp(s string) (Op, error) {
	switch s {
	case "=", "==":
		return OpEQ, nil
	case ">":
		return OpGT, nil
	case "<":
		return OpLT, nil
	case ">=":
		return OpGE, nil
	case "<=":
		return OpLE, nil
	case "!=", "<>":
		return OpNE, nil
	default:
		return OpUnsupported, vterrors.NewQueryError(vterrors.CodeMalformedIndex, fmt.Sprintf("unsupported operator %q", s))
	}
}

// Constraint is one planner-offered comparison on a column.
type Constraint struct {
	Column int
	Op     Op
	Usable bool
}

// IndexPlan is the planning result handed back to the host.
type IndexPlan struct {
	// Token encodes the selected (column, operator) pairs, e.g. "0=,2>=".
	Token string
	// Count is the number of constraints selected.
	Count int
	// ArgIndex holds, per offered constraint, its 1-based argument slot or 0
	// when it was not selected.
	ArgIndex []int
}

// Term is one decoded (column, operator) pair.
type Term struct {
	Column int
	Op     Op
}

func (t Term) String() string {
	return strconv.Itoa(t.Column) + t.Op.String()
}

// Plan selects the usable constraints with a supported operator and assigns
// them argument slots in encounter order.
func Plan(constraints []Constraint) IndexPlan {
	plan := IndexPlan{ArgIndex: make([]int, len(constraints))}
	var terms []Term
	for i, c := range constraints {
		if !c.Usable || c.Op == OpUnsupported || c.Column < 0 {
			continue
		}
		terms = append(terms, Term{Column: c.Column, Op: c.Op})
		plan.ArgIndex[i] = len(terms)
	}
	plan.Token = Encode(terms)
	plan.Count = len(terms)
	return plan
}

// Encode serializes terms into the index token.
func Encode(terms []Term) string {
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = t.String()
	}
	return strings.Join(parts, ",")
}

// Decode parses an index token. Each part is the column number followed by
// the operator symbol. Empty parts are skipped.
func Decode(token string) ([]Term, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}
	var terms []Term
	for _, part := range strings.Split(token, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		digits := 0
		for digits < len(part) && part[digits] >= '0' && part[digits] <= '9' {
			digits++
		}
		if digits == 0 {
			return nil, vterrors.NewQueryError(vterrors.CodeMalformedIndex, fmt.Sprintf("index term %q has no column", part))
		}
		col, err := strconv.Atoi(part[:digits])
		if err != nil {
			return nil, vterrors.NewQueryError(vterrors.CodeMalformedIndex, fmt.Sprintf("index term %q: %v", part, err))
		}
		op, err := ParseOp(part[digits:])
		if err != nil {
			return nil, err
		}
		terms = append(terms, Term{Column: col, Op: op})
	}
	return terms, nil
}
