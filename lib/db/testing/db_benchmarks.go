package testing

import (
	"bytes"
	"fmt"
	"sort"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/kvdown/lib/db"
)

// RunKVDBBenchmarks runs all benchmarks for a key-value database implementations
func RunKVDBBenchmarks(b *testing.B, name string, factory DBFactory) {

	b.Run("SetItem", func(b *testing.B) {
		benchmarkSet(b, factory(""))
	})

	b.Run("SetItemExisting", func(b *testing.B) {
		benchmarkSetExisting(b, factory(""))
	})

	b.Run("GetItem", func(b *testing.B) {
		benchmarkGet(b, factory(""))
	})

	b.Run("RemoveItem", func(b *testing.B) {
		benchmarkRemove(b, factory(""))
	})

	b.Run("SortedSnapshot", func(b *testing.B) {
		benchmarkSortedSnapshot(b, factory(""))
	})

	b.Run("SaveLoad", func(b *testing.B) {
		benchmarkSaveLoad(b, factory)
	})

	b.Run("MixedUsage", func(b *testing.B) {
		benchmarkMixedUsage(b, factory(""))
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

func fillDB(database db.KVDB, n int) []string {
	keys := make([]string, n)
	for i := 0; i < n; i++ {
		keys[i] = fmt.Sprintf("test-key-%d", i)
		database.SetItem(keys[i], fmt.Sprintf("test-value-%d", i))
	}
	return keys
}

// Benchmark for SetItem with new keys
func benchmarkSet(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	var counter atomic.Int64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := counter.Add(1)
			database.SetItem(fmt.Sprintf("test-key-%d", i), fmt.Sprintf("test-value-%d", i))
		}
	})
}

// Benchmark for SetItem with existing keys
func benchmarkSetExisting(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	keys := fillDB(database, 10000)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			database.SetItem(keys[counter%len(keys)], "updated")
			counter++
		}
	})
}

// Parallel benchmarking for GetItem
func benchmarkGet(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	keys := fillDB(database, 10000)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			database.GetItem(keys[counter%len(keys)])
			counter++
		}
	})
}

// Benchmark for RemoveItem (swap remove on the positional index)
func benchmarkRemove(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	keys := fillDB(database, b.N)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		database.RemoveItem(keys[i])
	}
}

// Benchmark for what a range iterator does on construction: snapshot and sort all keys
func benchmarkSortedSnapshot(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	fillDB(database, 10000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		n := database.Length()
		keys := make([]string, 0, n)
		for j := 0; j < n; j++ {
			if key, ok := database.Key(j); ok {
				keys = append(keys, key)
			}
		}
		sort.Strings(keys)
	}
}

func benchmarkSaveLoad(b *testing.B, factory DBFactory) {
	database := factory("")

	b.Cleanup(func() {
		database.Close()
	})

	fillDB(database, 10000)

	b.Run("Save", func(b *testing.B) {
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			var buf bytes.Buffer
			database.Save(&buf)
		}
	})

	// Prepare a data buffer for Load benchmark
	var loadBuf bytes.Buffer
	database.Save(&loadBuf)
	data := loadBuf.Bytes()

	b.Run("Load", func(b *testing.B) {
		loadDB := factory("")
		defer loadDB.Close()

		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			loadDB.Load(bytes.NewReader(data))
		}
	})
}

// Benchmark for mixed usage patterns
func benchmarkMixedUsage(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	keys := fillDB(database, 10000)

	var counter atomic.Int64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := int(counter.Add(1))
			key := keys[i%len(keys)]

			switch i % 4 {
			case 0, 1:
				database.GetItem(key)
			case 2:
				database.SetItem(key, "mixed-value")
			case 3:
				database.RemoveItem(key)
			}
		}
	})
}
