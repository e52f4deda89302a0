package ldown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ValentinKolb/kvdown/lib/db"
	"github.com/ValentinKolb/kvdown/lib/db/engines/maple"
	"github.com/ValentinKolb/kvdown/lib/down"
	downtesting "github.com/ValentinKolb/kvdown/lib/down/testing"
)

func Test(t *testing.T) {
	downtesting.RunDownTests(t, "LocalDOWN", func(t *testing.T) down.IDown {
		return New(filepath.Join(t.TempDir(), "store.db"), maple.Factory)
	})
}

func openStore(t *testing.T, location string, opts *down.OpenOptions) down.IDown {
	t.Helper()
	d := New(location, maple.Factory)
	if err := d.Open(context.Background(), opts); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return d
}

func TestInvalidDriver(t *testing.T) {
	ctx := context.Background()

	if err := New("", maple.Factory).Open(ctx, nil); !errors.Is(err, down.ErrInvalidParameter) {
		t.Errorf("Open with empty location error = %v; want InvalidParameter", err)
	}
	if err := New("x.db", nil).Open(ctx, nil); !errors.Is(err, down.ErrInvalidParameter) {
		t.Errorf("Open without factory error = %v; want InvalidParameter", err)
	}

	var d *downImpl
	if _, err := d.Get(ctx, []byte("k")); !errors.Is(err, down.ErrInvalidParameter) {
		t.Errorf("Get on nil driver error = %v; want InvalidParameter", err)
	}
}

func TestOpenOptions(t *testing.T) {
	ctx := context.Background()
	location := filepath.Join(t.TempDir(), "store.db")

	// missing and createIfMissing=false
	err := New(location, maple.Factory).Open(ctx, &down.OpenOptions{CreateIfMissing: false})
	if !errors.Is(err, down.ErrConnection) {
		t.Errorf("Open of missing store error = %v; want Connection", err)
	}

	d := openStore(t, location, nil)
	if err := d.Put(ctx, []byte("k"), []byte("v"), nil); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// existing and errorIfExists
	err = New(location, maple.Factory).Open(ctx, &down.OpenOptions{CreateIfMissing: true, ErrorIfExists: true})
	var de *down.Error
	if !errors.As(err, &de) || de.Code != down.RetCConnection || de.Msg != errFileExists {
		t.Errorf("Open of existing store error = %v; want Connection %s", err, errFileExists)
	}

	// existing and createIfMissing=false reopens the data
	d = openStore(t, location, &down.OpenOptions{})
	defer d.Close() //nolint:errcheck
	value, err := d.Get(ctx, []byte("k"))
	if err != nil || string(value) != "v" {
		t.Errorf("Get after reopen = %q, %v; want v, nil", value, err)
	}
}

func TestFactoryError(t *testing.T) {
	failing := func(string) (db.KVDB, error) {
		return nil, errors.New("disk on fire")
	}
	err := New(filepath.Join(t.TempDir(), "store.db"), failing).Open(context.Background(), nil)
	if !errors.Is(err, down.ErrConnection) {
		t.Errorf("Open error = %v; want Connection", err)
	}
}

func TestSyncFlushes(t *testing.T) {
	ctx := context.Background()
	location := filepath.Join(t.TempDir(), "store.db")

	d := openStore(t, location, nil)
	defer d.Close() //nolint:errcheck

	if err := d.Put(ctx, []byte("k"), []byte("v"), nil); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := os.Stat(location); !os.IsNotExist(err) {
		t.Fatalf("store written without sync: %v", err)
	}

	if err := d.Put(ctx, []byte("k2"), []byte("v2"), &down.WriteOptions{Sync: true}); err != nil {
		t.Fatalf("synced Put failed: %v", err)
	}
	if _, err := os.Stat(location); err != nil {
		t.Errorf("store not written after synced Put: %v", err)
	}
}

func TestBatchIsNotAtomic(t *testing.T) {
	ctx := context.Background()
	d := openStore(t, filepath.Join(t.TempDir(), "store.db"), nil)
	defer d.Close() //nolint:errcheck

	ops := []down.BatchOp{
		{Type: down.BatchPut, Key: []byte("before"), Value: []byte("1")},
		{Type: "xyz", Key: []byte("bad")},
		{Type: down.BatchPut, Key: []byte("after"), Value: []byte("2")},
	}
	if err := d.Batch(ctx, ops, nil); !errors.Is(err, down.ErrInvalidBatchOperation) {
		t.Fatalf("Batch error = %v; want InvalidBatchOperation", err)
	}

	// ops before the failing one stay applied
	if _, err := d.Get(ctx, []byte("before")); err != nil {
		t.Errorf("Get(before) error = %v; want nil", err)
	}
}

func TestIteratorSnapshot(t *testing.T) {
	ctx := context.Background()
	d := openStore(t, filepath.Join(t.TempDir(), "store.db"), nil)
	defer d.Close() //nolint:errcheck

	for _, k := range []string{"a", "b", "c"} {
		if err := d.Put(ctx, []byte(k), []byte(k), nil); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	it, err := d.NewIterator(ctx, nil)
	if err != nil {
		t.Fatalf("NewIterator failed: %v", err)
	}
	defer it.Close() //nolint:errcheck

	// changes after the snapshot: b is removed, d is added, c is updated
	if err := d.Delete(ctx, []byte("b"), nil); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := d.Put(ctx, []byte("d"), []byte("d"), nil); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := d.Put(ctx, []byte("c"), []byte("updated"), nil); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	var got []string
	for it.Next(ctx) {
		got = append(got, string(it.Key())+"="+string(it.Value()))
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iteration failed: %v", err)
	}

	want := []string{"a=a", "c=updated"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("iterated %v; want %v", got, want)
	}
}

func TestDestroy(t *testing.T) {
	ctx := context.Background()
	location := filepath.Join(t.TempDir(), "store.db")

	d := openStore(t, location, nil)
	if err := d.Put(ctx, []byte("k"), []byte("v"), &down.WriteOptions{Sync: true}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := Destroy(location); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if _, err := os.Stat(location); !os.IsNotExist(err) {
		t.Errorf("store still exists after Destroy: %v", err)
	}
	if err := Destroy(location); !errors.Is(err, down.ErrNotFound) {
		t.Errorf("second Destroy error = %v; want NotFound", err)
	}
	if err := Destroy(""); !errors.Is(err, down.ErrInvalidParameter) {
		t.Errorf("Destroy(\"\") error = %v; want InvalidParameter", err)
	}
}

func TestRepair(t *testing.T) {
	if err := Repair("store.db"); !errors.Is(err, down.ErrUnsupportedOperation) {
		t.Errorf("Repair error = %v; want UnsupportedOperation", err)
	}
}

func TestConcurrentSyncWrites(t *testing.T) {
	ctx := context.Background()
	location := filepath.Join(t.TempDir(), "store.db")
	d := openStore(t, location, nil)

	const workers, writes = 8, 25
	var failed sync.Map
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < writes; i++ {
				key := []byte(fmt.Sprintf("w%d-%d", w, i))
				if err := d.Put(ctx, key, []byte("v"), &down.WriteOptions{Sync: true}); err != nil {
					failed.Store(string(key), err)
				}
			}
		}(w)
	}
	wg.Wait()

	failed.Range(func(key, err any) bool {
		t.Errorf("Sync put of %s failed: %v", key, err)
		return true
	})
	if err := d.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	d = openStore(t, location, &down.OpenOptions{CreateIfMissing: false})
	defer d.Close()
	size, err := d.ApproximateSize(ctx, []byte("w"), []byte("x"))
	if err != nil {
		t.Fatalf("ApproximateSize failed: %v", err)
	}
	if size != workers*writes {
		t.Errorf("ApproximateSize = %d; want %d", size, workers*writes)
	}
}
