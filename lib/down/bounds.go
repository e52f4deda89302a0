package down

import (
	"sort"

	"github.com/ValentinKolb/kvdown/lib/query"
)

// Interval is a closed range [Low, High] of positions in a sorted key array.
// It is empty if Low > High.
type Interval struct {
	Low, High int
}

func (iv Interval) Empty() bool {
	return iv.Low > iv.High
}

// Len returns the number of positions in the interval.
func (iv Interval) Len() int {
	if iv.Empty() {
		return 0
	}
	return iv.High - iv.Low + 1
}

// bound is one of the six bound fields with the operator it maps to in
// ascending and in reverse order.
type bound struct {
	value      []byte
	op, mirror query.Op
}

// Bounds folds the bound fields of opts, in the order start, end, gt, gte,
// lt, lte, into primary key predicates. With Reverse every operator is mirrored.
// Absent (zero length) bounds produce no predicate.
func Bounds(opts *IteratorOptions) []query.Predicate {
	if opts == nil {
		return nil
	}

	bounds := []bound{
		{opts.Start, query.OpGte, query.OpLte},
		{opts.End, query.OpLte, query.OpGte},
		{opts.Gt, query.OpGt, query.OpLt},
		{opts.Gte, query.OpGte, query.OpLte},
		{opts.Lt, query.OpLt, query.OpGt},
		{opts.Lte, query.OpLte, query.OpGte},
	}

	predicates := make([]query.Predicate, 0, len(bounds))
	for _, b := range bounds {
		if len(b.value) == 0 {
			continue
		}
		op := b.op
		if opts.Reverse {
			op = b.mirror
		}
		predicates = append(predicates, query.Predicate{Field: query.PK, Op: op, Value: b.value})
	}
	return predicates
}

// Resolve returns the interval of keys (sorted ascending) that satisfy every
// bound of opts. The interval starts as [0, len(keys)-1] and every predicate
// narrows it further: lower bounds can only raise Low, upper bounds can only
// lower High. A bound no key satisfies, or contradicting bounds, give an empty
// interval. The limit is not applied here.
func Resolve(keys []string, opts *IteratorOptions) Interval {
	iv := Interval{Low: 0, High: len(keys) - 1}
	for _, p := range Bounds(opts) {
		iv = iv.narrow(keys, p)
	}
	return iv
}

func (iv Interval) narrow(keys []string, p query.Predicate) Interval {
	v := string(p.Value)

	// first position with key > v and first position with key >= v
	firstGt := func() int { return sort.Search(len(keys), func(i int) bool { return keys[i] > v }) }
	firstGte := func() int { return sort.Search(len(keys), func(i int) bool { return keys[i] >= v }) }

	switch p.Op {
	case query.OpGt:
		iv.Low = max(iv.Low, firstGt())
	case query.OpGte:
		iv.Low = max(iv.Low, firstGte())
	case query.OpLt:
		iv.High = min(iv.High, firstGte()-1)
	case query.OpLte:
		iv.High = min(iv.High, firstGt()-1)
	case query.OpEq:
		iv.Low = max(iv.Low, firstGte())
		iv.High = min(iv.High, firstGt()-1)
	}
	return iv
}
