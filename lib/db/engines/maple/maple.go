package maple

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/kvdown/lib/db"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

// Constants for database behavior and structure
const (
	magicNum     = "MAPLEDB\x00" // File format identifier
	mapleVersion = 4             // Database version
	tmpSuffix    = ".tmp"        // Suffix of the file written during Flush
)

// --------------------------------------------------------------------------
// Core Maple database structure
// --------------------------------------------------------------------------

// mapleImpl stores values in a concurrent map and keeps a positional index of
// all keys next to it. The index is only touched when a key is added or removed.
type mapleImpl struct {
	path   string
	values *xsync.MapOf[string, string]

	// positional key index, guarded by mu
	mu        sync.RWMutex
	keys      []string
	positions map[string]int

	// flushMu serializes Flush, all flushes share one temp file
	flushMu sync.Mutex
	dirty   atomic.Bool
	closed  atomic.Bool
}

// DBOptions configures the mapleImpl behavior during initialization
type DBOptions struct {
	Path string // File the database is persisted to ("" = volatile)
}

// DefaultOptions returns the default mapleImpl options (a volatile database)
func DefaultOptions() *DBOptions {
	return &DBOptions{}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewMapleDB creates a new MapleDB instance with the specified options (optional).
// If opts.Path points to an existing file, its content is loaded.
//
// Thread-safety: This function is not thread-safe and should only be called once
// during initialization.
func NewMapleDB(opts *DBOptions) (db.KVDB, error) {

	// Generate default options if not provided
	if opts == nil {
		opts = DefaultOptions()
	}

	newDB := &mapleImpl{
		path:      opts.Path,
		values:    xsync.NewMapOf[string, string](),
		positions: make(map[string]int),
	}

	if newDB.path == "" {
		return newDB, nil
	}

	f, err := os.Open(newDB.path)
	if os.IsNotExist(err) {
		return newDB, nil
	}
	if err != nil {
		return nil, fmt.Errorf("maple: open %s: %w", newDB.path, err)
	}
	defer f.Close()

	if err := newDB.Load(f); err != nil {
		return nil, fmt.Errorf("maple: load %s: %w", newDB.path, err)
	}
	newDB.dirty.Store(false)
	return newDB, nil
}

// Factory is a db.DBFactory for maple databases.
func Factory(path string) (db.KVDB, error) {
	return NewMapleDB(&DBOptions{Path: path})
}

// --------------------------------------------------------------------------
// KVDB Interface Methods - Positional Access
// --------------------------------------------------------------------------

// Length returns the number of keys.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Length() int {
	maple.mu.RLock()
	defer maple.mu.RUnlock()
	return len(maple.keys)
}

// Key returns the key at position i. Positions change when keys are removed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Key(i int) (string, bool) {
	maple.mu.RLock()
	defer maple.mu.RUnlock()
	if i < 0 || i >= len(maple.keys) {
		return "", false
	}
	return maple.keys[i], true
}

// --------------------------------------------------------------------------
// KVDB Interface Methods - Item Operations
// --------------------------------------------------------------------------

// GetItem returns the value for key.
//
// Thread-safety: This method is thread-safe and lock free.
func (maple *mapleImpl) GetItem(key string) (string, bool) {
	return maple.values.Load(key)
}

// SetItem stores value for key, adding the key to the index if it is new.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) SetItem(key, value string) {
	maple.mu.Lock()
	defer maple.mu.Unlock()

	if _, ok := maple.positions[key]; !ok {
		maple.positions[key] = len(maple.keys)
		maple.keys = append(maple.keys, key)
	}
	maple.values.Store(key, value)
	maple.dirty.Store(true)
}

// RemoveItem deletes key. The last key of the index takes over its position.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) RemoveItem(key string) bool {
	maple.mu.Lock()
	defer maple.mu.Unlock()

	pos, ok := maple.positions[key]
	if !ok {
		return false
	}

	// swap remove
	last := len(maple.keys) - 1
	if pos != last {
		moved := maple.keys[last]
		maple.keys[pos] = moved
		maple.positions[moved] = pos
	}
	maple.keys[last] = ""
	maple.keys = maple.keys[:last]
	delete(maple.positions, key)

	maple.values.Delete(key)
	maple.dirty.Store(true)
	return true
}

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

// Save persists the database to the writer.
//
// Thread-safety: Writers are blocked while the snapshot of the keys and values is taken.
func (maple *mapleImpl) Save(w io.Writer) error {
	// Use a buffered writer for better performance
	bw := bufio.NewWriterSize(w, 1024*1024) // 1 MB buffer

	type entryToSave struct {
		key, value string
	}

	maple.mu.RLock()
	entries := make([]entryToSave, 0, len(maple.keys))
	for _, key := range maple.keys {
		value, _ := maple.values.Load(key)
		entries = append(entries, entryToSave{key, value})
	}
	maple.mu.RUnlock()

	// Write file header
	if _, err := bw.WriteString(magicNum); err != nil {
		return err
	}

	// Write maple version
	if err := binary.Write(bw, binary.LittleEndian, uint8(mapleVersion)); err != nil {
		return err
	}

	// Write total entry count
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(entries))); err != nil {
		return err
	}

	for _, item := range entries {
		if err := writeString(bw, item.key); err != nil {
			return err
		}
		if err := writeString(bw, item.value); err != nil {
			return err
		}
	}

	// Flush buffer to ensure all data is written
	return bw.Flush()
}

// Load replaces the content of the database with the data from the reader.
// Positions are restored in the order they were saved.
//
// Thread-safety: This function is not thread-safe and should not be called concurrently
func (maple *mapleImpl) Load(r io.Reader) error {
	// Use a buffered reader for better performance
	br := bufio.NewReaderSize(r, 1024*1024) // 1 MB buffer

	// Read and verify magic number
	magicBytes := make([]byte, len(magicNum))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return err
	}

	if string(magicBytes) != magicNum {
		return fmt.Errorf("invalid file format: magic number mismatch")
	}

	// Read and verify version
	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return err
	}

	if int(version) != mapleVersion {
		return fmt.Errorf("unsupported version: %d (expected %d)", version, mapleVersion)
	}

	// Read entry count
	var count uint64
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return err
	}

	values := xsync.NewMapOf[string, string]()
	keys := make([]string, 0, count)
	positions := make(map[string]int, count)

	for i := uint64(0); i < count; i++ {
		key, err := readString(br)
		if err != nil {
			return err
		}
		value, err := readString(br)
		if err != nil {
			return err
		}

		if _, ok := positions[key]; !ok {
			positions[key] = len(keys)
			keys = append(keys, key)
		}
		values.Store(key, value)
	}

	maple.mu.Lock()
	maple.values = values
	maple.keys = keys
	maple.positions = positions
	maple.mu.Unlock()

	maple.dirty.Store(true)
	return nil
}

// Flush writes the database to its path. The file is written next to the
// target and renamed over it. A Flush that returns nil saw every write that
// completed before it was called on disk.
func (maple *mapleImpl) Flush() error {
	if maple.path == "" {
		return nil
	}

	maple.flushMu.Lock()
	defer maple.flushMu.Unlock()

	if !maple.dirty.Load() {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(maple.path), 0o755); err != nil {
		return fmt.Errorf("maple: flush %s: %w", maple.path, err)
	}

	tmp := maple.path + tmpSuffix
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("maple: flush %s: %w", maple.path, err)
	}

	// clear before saving, writes racing with the save mark the db dirty again
	maple.dirty.Store(false)

	if err := maple.Save(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		maple.dirty.Store(true)
		return fmt.Errorf("maple: flush %s: %w", maple.path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		maple.dirty.Store(true)
		return fmt.Errorf("maple: flush %s: %w", maple.path, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		maple.dirty.Store(true)
		return fmt.Errorf("maple: flush %s: %w", maple.path, err)
	}
	if err := os.Rename(tmp, maple.path); err != nil {
		_ = os.Remove(tmp)
		maple.dirty.Store(true)
		return fmt.Errorf("maple: flush %s: %w", maple.path, err)
	}
	return nil
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Metadata
// --------------------------------------------------------------------------

// GetInfo returns statistics about the database
func (maple *mapleImpl) GetInfo() db.DatabaseInfo {
	maple.mu.RLock()
	defer maple.mu.RUnlock()

	entryOverhead := 8 // length prefixes of key and value
	sizeBytes := 0
	for _, key := range maple.keys {
		value, _ := maple.values.Load(key)
		sizeBytes += len(key) + len(value) + entryOverhead
	}

	meta := &struct {
		Persistent bool `json:"persistent"`
		Dirty      bool `json:"dirty"`
		Version    int  `json:"version"`
	}{
		Persistent: maple.path != "",
		Dirty:      maple.dirty.Load(),
		Version:    mapleVersion,
	}

	return db.DatabaseInfo{
		Path:      maple.path,
		Length:    len(maple.keys),
		SizeBytes: sizeBytes,
		DbType:    db.ImplMaple,
		Metadata:  meta,
	}
}

// Close flushes the database to disk
func (maple *mapleImpl) Close() error {
	if !maple.closed.CompareAndSwap(false, true) {
		return nil
	}
	return maple.Flush()
}

// --------------------------------------------------------------------------
// Encoding Helpers
// --------------------------------------------------------------------------

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
