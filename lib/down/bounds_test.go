package down

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/ValentinKolb/kvdown/lib/query"
)

var sortedKeys = []string{"a", "b", "batch1", "batch2", "batch3", "batch4", "c", "r"}

// slice returns the keys of the interval in traversal order
func slice(keys []string, iv Interval, reverse bool) []string {
	var out []string
	if reverse {
		for i := iv.High; i >= iv.Low; i-- {
			out = append(out, keys[i])
		}
		return out
	}
	for i := iv.Low; i <= iv.High; i++ {
		out = append(out, keys[i])
	}
	return out
}

// bruteForce filters keys with the predicates directly
func bruteForce(keys []string, opts *IteratorOptions) []string {
	q := query.Table("t")
	for _, p := range Bounds(opts) {
		q = q.Filter(p)
	}
	var out []string
	for _, k := range keys {
		if q.Matches([]byte(k)) {
			out = append(out, k)
		}
	}
	if opts.Reverse {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		opts IteratorOptions
		want []string
	}{
		{"unbounded", IteratorOptions{}, sortedKeys},
		{"unbounded reverse", IteratorOptions{Reverse: true}, []string{"r", "c", "batch4", "batch3", "batch2", "batch1", "b", "a"}},
		{"gt", IteratorOptions{Gt: []byte("batch3")}, []string{"batch4", "c", "r"}},
		{"gte", IteratorOptions{Gte: []byte("batch3")}, []string{"batch3", "batch4", "c", "r"}},
		{"lt", IteratorOptions{Lt: []byte("batch1")}, []string{"a", "b"}},
		{"lte", IteratorOptions{Lte: []byte("batch1")}, []string{"a", "b", "batch1"}},
		{"start end", IteratorOptions{Start: []byte("b"), End: []byte("c")}, []string{"b", "batch1", "batch2", "batch3", "batch4", "c"}},
		{"bounds between keys", IteratorOptions{Start: []byte("ba"), End: []byte("bz")}, []string{"batch1", "batch2", "batch3", "batch4"}},
		{"tighter lower wins", IteratorOptions{Start: []byte("a"), Gt: []byte("batch2")}, []string{"batch3", "batch4", "c", "r"}},
		{"tighter start wins", IteratorOptions{Start: []byte("c"), Gte: []byte("a")}, []string{"c", "r"}},
		{"tighter upper wins", IteratorOptions{End: []byte("batch2"), Lt: []byte("r")}, []string{"a", "b", "batch1", "batch2"}},
		{"contradiction", IteratorOptions{Gt: []byte("c"), Lt: []byte("b")}, nil},
		{"exclusive on same key", IteratorOptions{Gt: []byte("b"), Lt: []byte("batch1")}, nil},
		{"inclusive on same key", IteratorOptions{Gte: []byte("b"), Lte: []byte("b")}, []string{"b"}},
		{"lower above all keys", IteratorOptions{Gt: []byte("z")}, nil},
		{"upper below all keys", IteratorOptions{Lt: []byte("0")}, nil},
		{"lower below all keys", IteratorOptions{Gte: []byte("0")}, sortedKeys},
		{"empty bound is absent", IteratorOptions{Gt: []byte{}, Lt: nil}, sortedKeys},
		{"reverse gt", IteratorOptions{Gt: []byte("batch3"), Reverse: true}, []string{"batch2", "batch1", "b", "a"}},
		{"reverse lt", IteratorOptions{Lt: []byte("batch3"), Reverse: true}, []string{"r", "c", "batch4"}},
		{"reverse start end", IteratorOptions{Start: []byte("c"), End: []byte("b"), Reverse: true}, []string{"c", "batch4", "batch3", "batch2", "batch1", "b"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := slice(sortedKeys, Resolve(sortedKeys, &tc.opts), tc.opts.Reverse)
			if fmt.Sprint(got) != fmt.Sprint(tc.want) {
				t.Errorf("Expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestResolveEmptyKeys(t *testing.T) {
	iv := Resolve(nil, &IteratorOptions{Gt: []byte("a")})
	if !iv.Empty() || iv.Len() != 0 {
		t.Errorf("Expected an empty interval, got %+v", iv)
	}
	iv = Resolve([]string{}, nil)
	if !iv.Empty() {
		t.Errorf("Expected an empty interval, got %+v", iv)
	}
}

// every combination of bounds must agree with a brute force filter, in both directions
func TestResolveMatchesBruteForce(t *testing.T) {
	candidates := [][]byte{nil, []byte("0"), []byte("a"), []byte("b"), []byte("ba"), []byte("batch2"), []byte("batch25"), []byte("c"), []byte("r"), []byte("z")}

	count := 0
	for _, reverse := range []bool{false, true} {
		for _, start := range candidates {
			for _, end := range candidates {
				for _, lower := range candidates {
					for _, upper := range candidates {
						for _, exclusive := range []bool{false, true} {
							opts := &IteratorOptions{Start: start, End: end, Reverse: reverse}
							if exclusive {
								opts.Gt, opts.Lt = lower, upper
							} else {
								opts.Gte, opts.Lte = lower, upper
							}

							got := slice(sortedKeys, Resolve(sortedKeys, opts), reverse)
							want := bruteForce(sortedKeys, opts)
							if fmt.Sprint(got) != fmt.Sprint(want) {
								t.Fatalf("Options %+v: expected %v, got %v", opts, want, got)
							}
							count++
						}
					}
				}
			}
		}
	}
	t.Logf("checked %d bound combinations", count)
}

func TestBounds(t *testing.T) {
	opts := &IteratorOptions{
		Start: []byte("1"), End: []byte("2"),
		Gt: []byte("3"), Gte: []byte("4"),
		Lt: []byte("5"), Lte: []byte("6"),
	}

	ascending := []query.Op{query.OpGte, query.OpLte, query.OpGt, query.OpGte, query.OpLt, query.OpLte}
	mirrored := []query.Op{query.OpLte, query.OpGte, query.OpLt, query.OpLte, query.OpGt, query.OpGte}

	for _, reverse := range []bool{false, true} {
		opts.Reverse = reverse
		want := ascending
		if reverse {
			want = mirrored
		}

		predicates := Bounds(opts)
		if len(predicates) != 6 {
			t.Fatalf("Expected 6 predicates, got %d", len(predicates))
		}
		for i, p := range predicates {
			if p.Field != query.PK {
				t.Errorf("Expected field %s, got %s", query.PK, p.Field)
			}
			if p.Op != want[i] {
				t.Errorf("reverse=%v predicate %d: expected %s, got %s", reverse, i, want[i], p.Op)
			}
			if !bytes.Equal(p.Value, []byte(fmt.Sprint(i+1))) {
				t.Errorf("Predicates must keep the order start, end, gt, gte, lt, lte, got %s at %d", p.Value, i)
			}
		}
	}

	if Bounds(nil) != nil || len(Bounds(DefaultIteratorOptions())) != 0 {
		t.Errorf("Expected no predicates without bounds")
	}
}

func TestMaxRecords(t *testing.T) {
	tests := []struct {
		opts *IteratorOptions
		want int
	}{
		{nil, -1},
		{&IteratorOptions{}, -1},
		{DefaultIteratorOptions(), -1},
		{&IteratorOptions{Limit: Limit(-5)}, -1},
		{&IteratorOptions{Limit: Limit(0)}, 0},
		{&IteratorOptions{Limit: Limit(7)}, 7},
	}
	for i, tc := range tests {
		if got := tc.opts.MaxRecords(); got != tc.want {
			t.Errorf("case %d: MaxRecords() = %d; want %d", i, got, tc.want)
		}
	}
}
