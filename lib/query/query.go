package query

import (
	"bytes"
	"fmt"
)

// Field names of a document. Tables are keyed by PK.
const (
	PK         = "id"
	ValueField = "value"
)

// --------------------------------------------------------------------------
// Predicates
// --------------------------------------------------------------------------

// Op is a row comparison operator.
type Op uint8

const (
	OpEq Op = iota + 1
	OpGt
	OpGte
	OpLt
	OpLte
)

func (o Op) String() string {
	switch o {
	case OpEq:
		return "eq"
	case OpGt:
		return "gt"
	case OpGte:
		return "ge"
	case OpLt:
		return "lt"
	case OpLte:
		return "le"
	default:
		return "unknown"
	}
}

// Predicate compares one field of a row against a value (byte-wise).
type Predicate struct {
	Field string
	Op    Op
	Value []byte
}

// Field starts a predicate on the named field, e.g. Field(PK).Gt(key).
type Field string

func (f Field) Eq(v []byte) Predicate  { return Predicate{Field: string(f), Op: OpEq, Value: v} }
func (f Field) Gt(v []byte) Predicate  { return Predicate{Field: string(f), Op: OpGt, Value: v} }
func (f Field) Gte(v []byte) Predicate { return Predicate{Field: string(f), Op: OpGte, Value: v} }
func (f Field) Lt(v []byte) Predicate  { return Predicate{Field: string(f), Op: OpLt, Value: v} }
func (f Field) Lte(v []byte) Predicate { return Predicate{Field: string(f), Op: OpLte, Value: v} }

// Matches reports whether key satisfies the predicate.
func (p Predicate) Matches(key []byte) bool {
	c := bytes.Compare(key, p.Value)
	switch p.Op {
	case OpEq:
		return c == 0
	case OpGt:
		return c > 0
	case OpGte:
		return c >= 0
	case OpLt:
		return c < 0
	case OpLte:
		return c <= 0
	default:
		return false
	}
}

func (p Predicate) String() string {
	return fmt.Sprintf("r.row(%q).%s(%q)", p.Field, p.Op, p.Value)
}

// --------------------------------------------------------------------------
// Query Builder
// --------------------------------------------------------------------------

// Order is the direction of the primary key ordering.
type Order uint8

const (
	Asc Order = iota
	Desc
)

// Query is an immutable description of a filtered, ordered and limited scan
// over one table. Every builder method returns a modified copy.
type Query struct {
	TableName string
	Filters   []Predicate
	Order     Order
	RowLimit  int // negative means no limit
}

// Table starts a query over all rows of a table, ascending, without a limit.
func Table(name string) Query {
	return Query{TableName: name, RowLimit: -1}
}

// Filter adds a predicate. All predicates of a query must hold for a row.
func (q Query) Filter(p Predicate) Query {
	filters := make([]Predicate, len(q.Filters), len(q.Filters)+1)
	copy(filters, q.Filters)
	q.Filters = append(filters, p)
	return q
}

// OrderBy sets the direction in which rows are returned.
func (q Query) OrderBy(o Order) Query {
	q.Order = o
	return q
}

// Limit caps the number of returned rows. A negative n removes the cap.
func (q Query) Limit(n int) Query {
	q.RowLimit = n
	return q
}

// Validate checks that the query only uses what backends support.
func (q Query) Validate() error {
	if q.TableName == "" {
		return fmt.Errorf("query: missing table")
	}
	for _, f := range q.Filters {
		if f.Field != PK {
			return fmt.Errorf("query: filtering on %q is not supported, only on %q", f.Field, PK)
		}
		if f.Op < OpEq || f.Op > OpLte {
			return fmt.Errorf("query: invalid operator %d", f.Op)
		}
	}
	return nil
}

// Matches reports whether key satisfies all filters.
func (q Query) Matches(key []byte) bool {
	for _, f := range q.Filters {
		if !f.Matches(key) {
			return false
		}
	}
	return true
}

// KeyRange folds the filters into the tightest [lower, upper) key range.
// A nil bound is unbounded. ok is false if no key can satisfy the filters.
func (q Query) KeyRange() (lower, upper []byte, ok bool) {
	for _, f := range q.Filters {
		var lo, hi []byte
		switch f.Op {
		case OpEq:
			lo, hi = f.Value, successor(f.Value)
		case OpGt:
			lo = successor(f.Value)
		case OpGte:
			lo = f.Value
		case OpLt:
			hi = f.Value
		case OpLte:
			hi = successor(f.Value)
		}
		if lo != nil && (lower == nil || bytes.Compare(lo, lower) > 0) {
			lower = lo
		}
		if hi != nil && (upper == nil || bytes.Compare(hi, upper) < 0) {
			upper = hi
		}
	}
	if lower != nil && upper != nil && bytes.Compare(lower, upper) >= 0 {
		return nil, nil, false
	}
	return lower, upper, true
}

// successor returns the smallest key greater than k.
func successor(k []byte) []byte {
	s := make([]byte, len(k)+1)
	copy(s, k)
	return s
}
