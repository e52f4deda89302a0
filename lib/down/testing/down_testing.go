package testing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/ValentinKolb/kvdown/lib/down"
)

// DownFactory creates a new driver over an empty store. The driver is not
// opened yet; the suite opens and closes it.
type DownFactory func(t *testing.T) down.IDown

// RunDownTests runs the conformance suite for a down.IDown implementation.
// Both drivers must pass it unchanged, which keeps their ordering, bound and
// limit semantics identical.
func RunDownTests(t *testing.T, name string, factory DownFactory) {
	t.Run(name, func(t *testing.T) {
		tests := []struct {
			name string
			fn   func(t *testing.T, db down.IDown)
		}{
			{"PutGet", testPutGet},
			{"EmptyValues", testEmptyValues},
			{"BinaryValues", testBinaryValues},
			{"InvalidKeys", testInvalidKeys},
			{"Delete", testDelete},
			{"Batch", testBatch},
			{"BatchInvalidOperation", testBatchInvalidOperation},
			{"BatchDeleteMissing", testBatchDeleteMissing},
			{"ChainedBatch", testChainedBatch},
			{"IterateAll", testIterateAll},
			{"IterateReverse", testIterateReverse},
			{"IterateLimit", testIterateLimit},
			{"IterateGt", testIterateGt},
			{"IterateEmptyRange", testIterateEmptyRange},
			{"IterateBoundsMatchFilter", testIterateBoundsMatchFilter},
			{"IteratorClose", testIteratorClose},
			{"IteratorSeek", testIteratorSeek},
			{"IteratorCanceled", testIteratorCanceled},
			{"ConcurrentIterators", testConcurrentIterators},
			{"ApproximateSize", testApproximateSize},
			{"SyncWrites", testSyncWrites},
		}

		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				db := factory(t)
				if err := db.Open(context.Background(), nil); err != nil {
					t.Fatalf("Open failed: %v", err)
				}
				defer db.Close() //nolint:errcheck

				tc.fn(t, db)
			})
		}

		t.Run("Lifecycle", func(t *testing.T) {
			testLifecycle(t, factory(t))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func put(t *testing.T, db down.IDown, key, value string) {
	t.Helper()
	if err := db.Put(context.Background(), []byte(key), []byte(value), nil); err != nil {
		t.Fatalf("Put(%q) failed: %v", key, err)
	}
}

func get(t *testing.T, db down.IDown, key string) (string, bool) {
	t.Helper()
	value, err := db.Get(context.Background(), []byte(key))
	if errors.Is(err, down.ErrNotFound) {
		return "", false
	}
	if err != nil {
		t.Fatalf("Get(%q) failed: %v", key, err)
	}
	return string(value), true
}

// drain runs an iterator to its end and returns the keys and values it yielded.
func drain(t *testing.T, db down.IDown, opts *down.IteratorOptions) (keys, values []string) {
	t.Helper()
	ctx := context.Background()

	it, err := db.NewIterator(ctx, opts)
	if err != nil {
		t.Fatalf("NewIterator failed: %v", err)
	}
	defer it.Close() //nolint:errcheck

	for it.Next(ctx) {
		keys = append(keys, string(it.Key()))
		values = append(values, string(it.Value()))
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iteration failed: %v", err)
	}
	return keys, values
}

func drainKeys(t *testing.T, db down.IDown, opts *down.IteratorOptions) []string {
	t.Helper()
	keys, _ := drain(t, db, opts)
	return keys
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func reversed(keys []string) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[len(keys)-1-i] = k
	}
	return out
}

func isCode(err error, code down.RetCode) bool {
	var de *down.Error
	return errors.As(err, &de) && de.Code == code
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testPutGet(t *testing.T, db down.IDown) {
	put(t, db, "key1", "value1")
	put(t, db, "key2", "value2")

	if v, ok := get(t, db, "key1"); !ok || v != "value1" {
		t.Errorf("Get(key1) = %q, %v; want value1, true", v, ok)
	}

	// overwrite
	put(t, db, "key1", "updated")
	if v, _ := get(t, db, "key1"); v != "updated" {
		t.Errorf("Get(key1) after overwrite = %q; want updated", v)
	}

	_, err := db.Get(context.Background(), []byte("missing"))
	if !errors.Is(err, down.ErrNotFound) {
		t.Errorf("Get(missing) error = %v; want NotFound", err)
	}
}

func testEmptyValues(t *testing.T, db down.IDown) {
	ctx := context.Background()

	if err := db.Put(ctx, []byte("nil"), nil, nil); err != nil {
		t.Fatalf("Put(nil value) failed: %v", err)
	}
	if err := db.Put(ctx, []byte("empty"), []byte{}, nil); err != nil {
		t.Fatalf("Put(empty value) failed: %v", err)
	}

	for _, key := range []string{"nil", "empty"} {
		value, err := db.Get(ctx, []byte(key))
		if err != nil {
			t.Errorf("Get(%q) failed: %v", key, err)
			continue
		}
		if value == nil || len(value) != 0 {
			t.Errorf("Get(%q) = %#v; want the canonical empty value", key, value)
		}
	}

	// empty values are still visible to iterators
	keys := drainKeys(t, db, nil)
	if !equal(keys, []string{"empty", "nil"}) {
		t.Errorf("iterated keys = %v; want [empty nil]", keys)
	}
}

func testBinaryValues(t *testing.T, db down.IDown) {
	ctx := context.Background()
	values := map[string][]byte{
		"zeros":   {0, 0, 0},
		"high":    {0xff, 0xfe, 0x80},
		"mixed":   {'a', 0, 'b', 0xc3},
		"unicode": []byte("日本語"),
	}

	for key, value := range values {
		if err := db.Put(ctx, []byte(key), value, nil); err != nil {
			t.Fatalf("Put(%q) failed: %v", key, err)
		}
	}
	for key, want := range values {
		got, err := db.Get(ctx, []byte(key))
		if err != nil {
			t.Errorf("Get(%q) failed: %v", key, err)
			continue
		}
		if !bytes.Equal(got, want) {
			t.Errorf("Get(%q) = %v; want %v", key, got, want)
		}
	}
}

func testInvalidKeys(t *testing.T, db down.IDown) {
	ctx := context.Background()

	if _, err := db.Get(ctx, nil); !errors.Is(err, down.ErrInvalidParameter) {
		t.Errorf("Get(nil) error = %v; want InvalidParameter", err)
	}
	if err := db.Put(ctx, []byte{}, []byte("v"), nil); !errors.Is(err, down.ErrInvalidParameter) {
		t.Errorf("Put(empty key) error = %v; want InvalidParameter", err)
	}
	if err := db.Delete(ctx, nil, nil); !errors.Is(err, down.ErrInvalidParameter) {
		t.Errorf("Delete(nil) error = %v; want InvalidParameter", err)
	}
}

func testDelete(t *testing.T, db down.IDown) {
	ctx := context.Background()
	put(t, db, "key", "value")

	if err := db.Delete(ctx, []byte("key"), nil); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok := get(t, db, "key"); ok {
		t.Error("key still exists after Delete")
	}

	err := db.Delete(ctx, []byte("key"), nil)
	if !errors.Is(err, down.ErrNotFound) {
		t.Errorf("Delete(missing) error = %v; want NotFound", err)
	}
}

func testBatch(t *testing.T, db down.IDown) {
	ops := []down.BatchOp{
		{Type: down.BatchPut, Key: []byte("a"), Value: []byte("1")},
		{Type: down.BatchPut, Key: []byte("b"), Value: []byte("2")},
		{Type: down.BatchDel, Key: []byte("a")},
	}
	if err := db.Batch(context.Background(), ops, nil); err != nil {
		t.Fatalf("Batch failed: %v", err)
	}

	if _, ok := get(t, db, "a"); ok {
		t.Error("a exists after put+del in the same batch")
	}
	if v, ok := get(t, db, "b"); !ok || v != "2" {
		t.Errorf("Get(b) = %q, %v; want 2, true", v, ok)
	}

	keys := drainKeys(t, db, nil)
	if !equal(keys, []string{"b"}) {
		t.Errorf("keys after batch = %v; want [b]", keys)
	}

	// an empty batch is a no-op
	if err := db.Batch(context.Background(), nil, nil); err != nil {
		t.Errorf("empty Batch failed: %v", err)
	}
}

func testBatchInvalidOperation(t *testing.T, db down.IDown) {
	ops := []down.BatchOp{
		{Type: down.BatchPut, Key: []byte("before"), Value: []byte("1")},
		{Type: "xyz", Key: []byte("bad"), Value: []byte("2")},
		{Type: down.BatchPut, Key: []byte("after"), Value: []byte("3")},
	}

	err := db.Batch(context.Background(), ops, nil)
	if !errors.Is(err, down.ErrInvalidBatchOperation) {
		t.Fatalf("Batch error = %v; want InvalidBatchOperation", err)
	}

	// nothing from the invalid op onward is written
	for _, key := range []string{"bad", "after"} {
		if _, ok := get(t, db, key); ok {
			t.Errorf("%s was written by a failed batch", key)
		}
	}
}

func testBatchDeleteMissing(t *testing.T, db down.IDown) {
	ops := []down.BatchOp{
		{Type: down.BatchDel, Key: []byte("missing")},
		{Type: down.BatchPut, Key: []byte("after"), Value: []byte("1")},
	}

	err := db.Batch(context.Background(), ops, nil)
	if !errors.Is(err, down.ErrNotFound) {
		t.Fatalf("Batch error = %v; want NotFound", err)
	}
	if _, ok := get(t, db, "after"); ok {
		t.Error("op after the failed delete was applied")
	}
}

func testChainedBatch(t *testing.T, db down.IDown) {
	ctx := context.Background()
	put(t, db, "old", "x")

	batch := down.NewChainedBatch(db)
	if err := batch.Put([]byte("k1"), []byte("v1")); err != nil {
		t.Fatalf("batch Put failed: %v", err)
	}
	if err := batch.Put([]byte("k2"), []byte("v2")); err != nil {
		t.Fatalf("batch Put failed: %v", err)
	}
	if err := batch.Del([]byte("old")); err != nil {
		t.Fatalf("batch Del failed: %v", err)
	}
	if batch.Len() != 3 {
		t.Errorf("batch Len = %d; want 3", batch.Len())
	}

	// nothing is written before Write
	if _, ok := get(t, db, "k1"); ok {
		t.Error("k1 visible before Write")
	}

	if err := batch.Write(ctx, nil); err != nil {
		t.Fatalf("batch Write failed: %v", err)
	}

	keys := drainKeys(t, db, nil)
	if !equal(keys, []string{"k1", "k2"}) {
		t.Errorf("keys after chained batch = %v; want [k1 k2]", keys)
	}

	if err := batch.Write(ctx, nil); !errors.Is(err, down.ErrInvalidParameter) {
		t.Errorf("second Write error = %v; want InvalidParameter", err)
	}
}

// fillBatchKeys stores batch1..batch4 and r.
func fillBatchKeys(t *testing.T, db down.IDown) []string {
	keys := []string{"batch1", "batch2", "batch3", "batch4", "r"}
	for i := len(keys) - 1; i >= 0; i-- {
		put(t, db, keys[i], "value-"+keys[i])
	}
	return keys
}

func testIterateAll(t *testing.T, db down.IDown) {
	want := fillBatchKeys(t, db)

	keys, values := drain(t, db, nil)
	if !equal(keys, want) {
		t.Errorf("keys = %v; want %v", keys, want)
	}
	for i := range keys {
		if values[i] != "value-"+keys[i] {
			t.Errorf("value of %s = %q; want %q", keys[i], values[i], "value-"+keys[i])
		}
	}
}

func testIterateReverse(t *testing.T, db down.IDown) {
	want := fillBatchKeys(t, db)

	forward := drainKeys(t, db, &down.IteratorOptions{})
	backward := drainKeys(t, db, &down.IteratorOptions{Reverse: true})

	if !equal(forward, want) {
		t.Errorf("forward = %v; want %v", forward, want)
	}
	if !equal(reversed(backward), forward) {
		t.Errorf("reverse(backward) = %v; want %v", reversed(backward), forward)
	}

	// reverse with mirrored bounds: start is the upper edge
	keys := drainKeys(t, db, &down.IteratorOptions{Start: []byte("batch3"), End: []byte("batch1"), Reverse: true})
	if !equal(keys, []string{"batch3", "batch2", "batch1"}) {
		t.Errorf("reverse start/end = %v; want [batch3 batch2 batch1]", keys)
	}
}

func testIterateLimit(t *testing.T, db down.IDown) {
	all := fillBatchKeys(t, db)

	for _, limit := range []int{0, 1, 3, len(all), len(all) + 10} {
		want := all[:min(limit, len(all))]
		keys := drainKeys(t, db, &down.IteratorOptions{Limit: down.Limit(limit)})
		if !equal(keys, want) {
			t.Errorf("limit %d: keys = %v; want %v", limit, keys, want)
		}

		wantRev := reversed(all)[:min(limit, len(all))]
		keys = drainKeys(t, db, &down.IteratorOptions{Limit: down.Limit(limit), Reverse: true})
		if !equal(keys, wantRev) {
			t.Errorf("limit %d reverse: keys = %v; want %v", limit, keys, wantRev)
		}
	}

	// no limit and a negative limit both yield every record
	for _, opts := range []*down.IteratorOptions{{}, {Limit: down.Limit(-1)}} {
		if keys := drainKeys(t, db, opts); !equal(keys, all) {
			t.Errorf("%s: keys = %v; want %v", describe(opts), keys, all)
		}
	}
}

func testIterateGt(t *testing.T, db down.IDown) {
	fillBatchKeys(t, db)

	keys := drainKeys(t, db, &down.IteratorOptions{Gt: []byte("batch3")})
	if !equal(keys, []string{"batch4", "r"}) {
		t.Errorf("gt batch3 = %v; want [batch4 r]", keys)
	}
}

func testIterateEmptyRange(t *testing.T, db down.IDown) {
	ctx := context.Background()
	fillBatchKeys(t, db)

	ranges := []*down.IteratorOptions{
		{Gt: []byte("r")},
		{Lt: []byte("a")},
		{Gt: []byte("batch4"), Lt: []byte("batch1")},
		{Gte: []byte("c"), Lte: []byte("q")},
		{Start: []byte("batch2"), End: []byte("batch1")},
		{Gt: []byte("batch1"), Lt: []byte("batch2"), Reverse: true},
	}

	for _, opts := range ranges {
		it, err := db.NewIterator(ctx, opts)
		if err != nil {
			t.Fatalf("NewIterator(%+v) failed: %v", opts, err)
		}
		if it.Next(ctx) {
			t.Errorf("%+v: first Next yielded %q; want end of range", opts, it.Key())
		}
		if err := it.Err(); err != nil {
			t.Errorf("%+v: Err = %v; want nil", opts, err)
		}
		if err := it.Close(); err != nil {
			t.Errorf("%+v: Close failed: %v", opts, err)
		}
	}
}

// testIterateBoundsMatchFilter compares every combination of up to two bounds
// (in both directions) against a brute force filter over all keys.
func testIterateBoundsMatchFilter(t *testing.T, db down.IDown) {
	stored := []string{"a", "b", "ba", "c", "d"}
	for _, k := range stored {
		put(t, db, k, k)
	}
	candidates := [][]byte{nil, []byte("a"), []byte("b"), []byte("bb"), []byte("d"), []byte("z")}

	type setter func(o *down.IteratorOptions, v []byte)
	fields := []setter{
		func(o *down.IteratorOptions, v []byte) { o.Start = v },
		func(o *down.IteratorOptions, v []byte) { o.End = v },
		func(o *down.IteratorOptions, v []byte) { o.Gt = v },
		func(o *down.IteratorOptions, v []byte) { o.Gte = v },
		func(o *down.IteratorOptions, v []byte) { o.Lt = v },
		func(o *down.IteratorOptions, v []byte) { o.Lte = v },
	}

	check := func(opts *down.IteratorOptions) {
		want := filter(stored, opts)
		got := drainKeys(t, db, opts)
		if !equal(got, want) {
			t.Errorf("%s: keys = %v; want %v", describe(opts), got, want)
		}
	}

	for _, reverse := range []bool{false, true} {
		for i := range fields {
			for j := i + 1; j < len(fields); j++ {
				for _, vi := range candidates {
					for _, vj := range candidates {
						opts := &down.IteratorOptions{Reverse: reverse}
						fields[i](opts, vi)
						fields[j](opts, vj)
						check(opts)
					}
				}
			}
		}

		// the same bound on both sides of start/gte and end/lte
		check(&down.IteratorOptions{Start: []byte("a"), Gte: []byte("c"), Reverse: reverse})
		check(&down.IteratorOptions{Start: []byte("c"), Gte: []byte("a"), Reverse: reverse})
		check(&down.IteratorOptions{End: []byte("b"), Lte: []byte("d"), Lt: []byte("ba"), Reverse: reverse, Limit: down.Limit(2)})
	}
}

// filter applies the predicates of opts to every key, like a full scan would.
func filter(keys []string, opts *down.IteratorOptions) []string {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	predicates := down.Bounds(opts)
	var out []string
	for _, k := range sorted {
		ok := true
		for _, p := range predicates {
			if !p.Matches([]byte(k)) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, k)
		}
	}
	if opts.Reverse {
		out = reversed(out)
	}
	if n := opts.MaxRecords(); n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func describe(opts *down.IteratorOptions) string {
	return fmt.Sprintf("start=%q end=%q gt=%q gte=%q lt=%q lte=%q reverse=%v limit=%d",
		opts.Start, opts.End, opts.Gt, opts.Gte, opts.Lt, opts.Lte, opts.Reverse, opts.MaxRecords())
}

func testIteratorClose(t *testing.T, db down.IDown) {
	ctx := context.Background()
	fillBatchKeys(t, db)

	it, err := db.NewIterator(ctx, nil)
	if err != nil {
		t.Fatalf("NewIterator failed: %v", err)
	}
	if !it.Next(ctx) {
		t.Fatalf("Next = false; want a first record (err %v)", it.Err())
	}

	// close midway, twice
	if err := it.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := it.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if it.Next(ctx) {
		t.Error("Next after Close = true; want false")
	}
	if it.Key() != nil {
		t.Errorf("Key after Close = %q; want nil", it.Key())
	}

	// close before the first Next
	it, err = db.NewIterator(ctx, nil)
	if err != nil {
		t.Fatalf("NewIterator failed: %v", err)
	}
	if err := it.Close(); err != nil {
		t.Errorf("Close before Next failed: %v", err)
	}
}

func testIteratorSeek(t *testing.T, db down.IDown) {
	it, err := db.NewIterator(context.Background(), nil)
	if err != nil {
		t.Fatalf("NewIterator failed: %v", err)
	}
	defer it.Close() //nolint:errcheck

	if err := it.Seek([]byte("a")); !errors.Is(err, down.ErrUnsupportedOperation) {
		t.Errorf("Seek error = %v; want UnsupportedOperation", err)
	}
}

func testIteratorCanceled(t *testing.T, db down.IDown) {
	fillBatchKeys(t, db)

	it, err := db.NewIterator(context.Background(), nil)
	if err != nil {
		t.Fatalf("NewIterator failed: %v", err)
	}
	defer it.Close() //nolint:errcheck

	if !it.Next(context.Background()) {
		t.Fatalf("Next = false; want a first record (err %v)", it.Err())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if it.Next(ctx) {
		t.Error("Next with a canceled context = true; want false")
	}
	if it.Err() == nil {
		t.Error("Err after cancel = nil; want an error")
	}
	if it.Key() != nil || it.Value() != nil {
		t.Error("key or value set together with an error")
	}
	if it.Next(context.Background()) {
		t.Error("Next after a failed Next = true; want false")
	}
}

func testConcurrentIterators(t *testing.T, db down.IDown) {
	ctx := context.Background()
	all := fillBatchKeys(t, db)

	asc, err := db.NewIterator(ctx, nil)
	if err != nil {
		t.Fatalf("NewIterator failed: %v", err)
	}
	defer asc.Close() //nolint:errcheck
	desc, err := db.NewIterator(ctx, &down.IteratorOptions{Reverse: true})
	if err != nil {
		t.Fatalf("NewIterator failed: %v", err)
	}
	defer desc.Close() //nolint:errcheck

	var gotAsc, gotDesc []string
	for {
		a, d := asc.Next(ctx), desc.Next(ctx)
		if a {
			gotAsc = append(gotAsc, string(asc.Key()))
		}
		if d {
			gotDesc = append(gotDesc, string(desc.Key()))
		}
		if !a && !d {
			break
		}
	}

	if !equal(gotAsc, all) {
		t.Errorf("ascending = %v; want %v", gotAsc, all)
	}
	if !equal(gotDesc, reversed(all)) {
		t.Errorf("descending = %v; want %v", gotDesc, reversed(all))
	}
}

func testApproximateSize(t *testing.T, db down.IDown) {
	ctx := context.Background()
	fillBatchKeys(t, db)

	tests := []struct {
		start, end string
		want       uint64
	}{
		{"batch1", "batch4", 4},
		{"batch2", "batch3", 2},
		{"a", "z", 5},
		{"c", "q", 0},
		{"r", "r", 1},
	}
	for _, tc := range tests {
		got, err := db.ApproximateSize(ctx, []byte(tc.start), []byte(tc.end))
		if err != nil {
			t.Errorf("ApproximateSize(%s, %s) failed: %v", tc.start, tc.end, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ApproximateSize(%s, %s) = %d; want %d", tc.start, tc.end, got, tc.want)
		}
	}

	if _, err := db.ApproximateSize(ctx, nil, []byte("z")); !errors.Is(err, down.ErrInvalidParameter) {
		t.Errorf("ApproximateSize without start error = %v; want InvalidParameter", err)
	}
	if _, err := db.ApproximateSize(ctx, []byte("a"), nil); !errors.Is(err, down.ErrInvalidParameter) {
		t.Errorf("ApproximateSize without end error = %v; want InvalidParameter", err)
	}
}

func testSyncWrites(t *testing.T, db down.IDown) {
	ctx := context.Background()
	sync := &down.WriteOptions{Sync: true}

	if err := db.Put(ctx, []byte("k1"), []byte("v1"), sync); err != nil {
		t.Fatalf("synced Put failed: %v", err)
	}
	ops := []down.BatchOp{
		{Type: down.BatchPut, Key: []byte("k2"), Value: []byte("v2")},
		{Type: down.BatchDel, Key: []byte("k1")},
	}
	if err := db.Batch(ctx, ops, sync); err != nil {
		t.Fatalf("synced Batch failed: %v", err)
	}
	if err := db.Delete(ctx, []byte("k2"), sync); err != nil {
		t.Fatalf("synced Delete failed: %v", err)
	}
	if keys := drainKeys(t, db, nil); len(keys) != 0 {
		t.Errorf("keys after synced writes = %v; want none", keys)
	}
}

func testLifecycle(t *testing.T, db down.IDown) {
	ctx := context.Background()

	if _, err := db.Get(ctx, []byte("k")); err == nil {
		t.Error("Get before Open succeeded")
	}
	if err := db.Close(); err != nil {
		t.Errorf("Close before Open failed: %v", err)
	}

	if err := db.Open(ctx, nil); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := db.Open(ctx, nil); err != nil {
		t.Errorf("second Open failed: %v", err)
	}
	put(t, db, "k", "v")

	if err := db.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	err := db.Put(ctx, []byte("k"), []byte("v"), nil)
	if !isCode(err, down.RetCConnection) {
		t.Errorf("Put after Close error = %v; want a connection error", err)
	}
	if _, err := db.NewIterator(ctx, nil); err == nil {
		t.Error("NewIterator after Close succeeded")
	}
}
