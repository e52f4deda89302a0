package testing

import (
	"bytes"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/ValentinKolb/kvdown/lib/db"
)

// DBFactory is a function that creates a new instance of a KVDB implementation.
// An empty path asks for a volatile database.
type DBFactory func(path string) db.KVDB

// RunKVDBTests runs a comprehensive test suite for a KVDB implementation.
func RunKVDBTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, factory(""))
		})

		t.Run("Remove", func(t *testing.T) {
			testRemove(t, factory(""))
		})

		t.Run("PositionalAccess", func(t *testing.T) {
			testPositionalAccess(t, factory(""))
		})

		t.Run("BinaryValues", func(t *testing.T) {
			testBinaryValues(t, factory(""))
		})

		t.Run("SaveLoad", func(t *testing.T) {
			testSaveLoad(t, factory)
		})

		t.Run("FlushReopen", func(t *testing.T) {
			testFlushReopen(t, factory)
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, factory(""))
		})

		t.Run("RealisticUsage", func(t *testing.T) {
			testRealisticUsage(t, factory(""))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// allKeys snapshots the keys of the database via positional access
func allKeys(t testing.TB, database db.KVDB) []string {
	n := database.Length()
	keys := make([]string, 0, n)
	for i := 0; i < n; i++ {
		key, ok := database.Key(i)
		if !ok {
			t.Errorf("Expected position %d of %d to hold a key", i, n)
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, database db.KVDB) {
	defer database.Close()

	testKey := "test-key"
	testValue1 := "test-value1"
	testValue2 := "test-value2"

	database.SetItem(testKey, testValue1)

	result, exists := database.GetItem(testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after SetItem", testKey)
	}
	if result != testValue1 {
		t.Errorf("Expected value %s, got %s", testValue1, result)
	}

	database.SetItem(testKey, testValue2)

	result, exists = database.GetItem(testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after SetItem", testKey)
	}
	if result != testValue2 {
		t.Errorf("Expected value %s, got %s", testValue2, result)
	}

	if database.Length() != 1 {
		t.Errorf("Overwriting a key must not add a position, got length %d", database.Length())
	}

	_, exists = database.GetItem("nonexistent-key")
	if exists {
		t.Errorf("Expected nonexistent key to return exists=false")
	}
}

func testRemove(t *testing.T, database db.KVDB) {
	defer database.Close()

	database.SetItem("a", "1")
	database.SetItem("b", "2")

	if !database.RemoveItem("a") {
		t.Errorf("Expected RemoveItem to report an existing key")
	}
	if database.RemoveItem("a") {
		t.Errorf("Expected RemoveItem to report a missing key")
	}
	if _, exists := database.GetItem("a"); exists {
		t.Errorf("Key a should not exist after RemoveItem")
	}
	if v, _ := database.GetItem("b"); v != "2" {
		t.Errorf("Removing a must not touch b, got %q", v)
	}
	if database.Length() != 1 {
		t.Errorf("Expected length 1, got %d", database.Length())
	}
}

func testPositionalAccess(t *testing.T, database db.KVDB) {
	defer database.Close()

	expected := make(map[string]bool)
	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("key-%03d", i)
		database.SetItem(key, key)
		expected[key] = true
	}

	// remove from the front, the middle and the end
	for _, i := range []int{0, 1, 50, 51, 98, 99} {
		key := fmt.Sprintf("key-%03d", i)
		database.RemoveItem(key)
		delete(expected, key)
	}

	keys := allKeys(t, database)
	if len(keys) != len(expected) {
		t.Fatalf("Expected %d keys, got %d", len(expected), len(keys))
	}
	for i, key := range keys {
		if !expected[key] {
			t.Errorf("Unexpected key %s at position %d", key, i)
		}
		if i > 0 && keys[i-1] == key {
			t.Errorf("Key %s is listed twice", key)
		}
	}

	if _, ok := database.Key(-1); ok {
		t.Errorf("Key(-1) must be out of range")
	}
	if _, ok := database.Key(database.Length()); ok {
		t.Errorf("Key(Length()) must be out of range")
	}
}

func testBinaryValues(t *testing.T, database db.KVDB) {
	defer database.Close()

	raw := []byte{0x00, 0xff, 0xfe, 0x80, 0x0a}
	database.SetItem(string(raw), string(raw))

	value, exists := database.GetItem(string(raw))
	if !exists {
		t.Fatalf("Expected binary key to exist")
	}
	if !bytes.Equal([]byte(value), raw) {
		t.Errorf("Expected value %v, got %v", raw, []byte(value))
	}
}

func testSaveLoad(t *testing.T, factory DBFactory) {
	database := factory("")
	database2 := factory("")

	// close the databases after the test
	defer database.Close()
	defer database2.Close()

	numEntries := 1000
	for i := 0; i < numEntries; i++ {
		database.SetItem(fmt.Sprintf("save-load-test-key-%d", i), fmt.Sprintf("save-load-test-value-%d", i))
	}
	database.RemoveItem("save-load-test-key-7")

	// data in the target is replaced
	database2.SetItem("stale", "stale")

	var buf bytes.Buffer
	if err := database.Save(&buf); err != nil {
		t.Fatalf("Unexpected error during Save: %v", err)
	}
	if err := database2.Load(&buf); err != nil {
		t.Fatalf("Unexpected error during Load: %v", err)
	}

	if _, exists := database2.GetItem("stale"); exists {
		t.Errorf("Load must replace the existing content")
	}
	if database2.Length() != numEntries-1 {
		t.Errorf("Expected %d keys after Load, got %d", numEntries-1, database2.Length())
	}

	for i := 0; i < numEntries; i++ {
		key := fmt.Sprintf("save-load-test-key-%d", i)
		actual, exists := database2.GetItem(key)
		if i == 7 {
			if exists {
				t.Errorf("Removed key %s found after Load", key)
			}
			continue
		}
		if !exists {
			t.Errorf("Key %s not found after Load", key)
			continue
		}
		if expected := fmt.Sprintf("save-load-test-value-%d", i); actual != expected {
			t.Errorf("Value mismatch for key %s: expected %s, got %s", key, expected, actual)
		}
	}

	if err := database2.Load(bytes.NewReader([]byte("garbage"))); err == nil {
		t.Errorf("Expected an error when loading garbage")
	}
}

func testFlushReopen(t *testing.T, factory DBFactory) {
	path := filepath.Join(t.TempDir(), "store.db")

	database := factory(path)
	database.SetItem("a", "1")
	database.SetItem("b", "2")
	database.RemoveItem("a")

	if err := database.Flush(); err != nil {
		t.Fatalf("Unexpected error during Flush: %v", err)
	}
	database.SetItem("c", "3")
	if err := database.Close(); err != nil {
		t.Fatalf("Unexpected error during Close: %v", err)
	}
	if err := database.Close(); err != nil {
		t.Errorf("Closing twice must be a no-op, got %v", err)
	}

	reopened := factory(path)
	defer reopened.Close()

	keys := allKeys(t, reopened)
	if fmt.Sprint(keys) != "[b c]" {
		t.Errorf("Expected keys [b c] after reopen, got %v", keys)
	}
	if info := reopened.GetInfo(); info.Length != 2 || info.Path != path {
		t.Errorf("Unexpected info after reopen: %+v", info)
	}
}

func testEdgeCases(t *testing.T, database db.KVDB) {
	defer database.Close()

	// empty key
	database.SetItem("", "empty-key-value")
	if v, exists := database.GetItem(""); !exists || v != "empty-key-value" {
		t.Errorf("Expected empty key to be stored, got %q, %v", v, exists)
	}

	// empty value
	database.SetItem("empty-value", "")
	if v, exists := database.GetItem("empty-value"); !exists || v != "" {
		t.Errorf("Expected empty value to be stored, got %q, %v", v, exists)
	}

	// large value
	large := string(make([]byte, 1<<20))
	database.SetItem("large", large)
	if v, _ := database.GetItem("large"); len(v) != len(large) {
		t.Errorf("Expected large value of %d bytes, got %d", len(large), len(v))
	}

	if database.RemoveItem("nonexistent") {
		t.Errorf("Removing a nonexistent key must report false")
	}
}

func testRealisticUsage(t *testing.T, database db.KVDB) {
	defer database.Close()

	numWorkers := 8
	opsPerWorker := 1000

	var wg sync.WaitGroup
	wg.Add(numWorkers)

	for w := 0; w < numWorkers; w++ {
		go func(workerId int) {
			defer wg.Done()
			for i := 0; i < opsPerWorker; i++ {
				key := fmt.Sprintf("worker-%d-key-%d", workerId, i%100)
				switch i % 4 {
				case 0, 1:
					database.SetItem(key, fmt.Sprintf("value-%d", i))
				case 2:
					database.GetItem(key)
				case 3:
					database.RemoveItem(key)
				}
				// shared hot key
				if i%10 == 0 {
					database.SetItem("hot-key", key)
				}
			}
		}(w)
	}

	wg.Wait()

	// every listed key must be readable and every readable key listed exactly once
	keys := allKeys(t, database)
	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		if seen[key] {
			t.Errorf("Key %s is listed twice", key)
		}
		seen[key] = true
		if _, exists := database.GetItem(key); !exists {
			t.Errorf("Listed key %s is not readable", key)
		}
	}
	if !seen["hot-key"] {
		t.Errorf("Expected hot-key to be listed")
	}
}
