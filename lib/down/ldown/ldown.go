package ldown

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ValentinKolb/kvdown/lib/db"
	"github.com/ValentinKolb/kvdown/lib/down"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("down")

const errFileExists = "FileExists"

type downImpl struct {
	location string
	factory  db.DBFactory

	mu    sync.RWMutex
	store db.KVDB // nil until Open and after Close
}

// New creates a driver for the store persisted at location. The store is
// opened with factory on Open. Relative locations are resolved against the
// working directory.
func New(location string, factory db.DBFactory) down.IDown {
	if location != "" {
		if abs, err := filepath.Abs(location); err == nil {
			location = abs
		}
	}
	return &downImpl{
		location: location,
		factory:  factory,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see down/interface.go)
// --------------------------------------------------------------------------

func (d *downImpl) Open(_ context.Context, opts *down.OpenOptions) error {
	if d == nil || d.factory == nil {
		return down.NewError(down.RetCInvalidParameter, "driver is not initialized")
	}
	if d.location == "" {
		return down.NewError(down.RetCInvalidParameter, "Invalid parameter location must be type String with valid value")
	}
	if opts == nil {
		opts = down.DefaultOpenOptions()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.store != nil {
		return nil
	}

	_, err := os.Stat(d.location)
	switch {
	case err == nil && opts.ErrorIfExists:
		return down.NewError(down.RetCConnection, errFileExists)
	case os.IsNotExist(err) && !opts.CreateIfMissing:
		return down.Errorf(down.RetCConnection, "%s does not exist (createIfMissing is false)", d.location)
	case err != nil && !os.IsNotExist(err):
		return down.WrapError(down.RetCConnection, err, "stat location")
	}

	store, err := d.factory(d.location)
	if err != nil {
		return down.WrapError(down.RetCConnection, err, "open store")
	}
	d.store = store

	Logger.Debugf("opened %s with %d keys", d.location, store.Length())
	return nil
}

func (d *downImpl) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.store == nil {
		return nil
	}
	store := d.store
	d.store = nil

	if err := store.Close(); err != nil {
		return down.NormalizeError(err)
	}
	Logger.Debugf("closed %s", d.location)
	return nil
}

func (d *downImpl) Get(_ context.Context, key []byte) ([]byte, error) {
	if err := down.ValidateKey(key); err != nil {
		return nil, err
	}
	store, err := d.acquire()
	if err != nil {
		return nil, err
	}
	defer d.mu.RUnlock()

	raw, ok := store.GetItem(string(key))
	if !ok {
		return nil, down.Errorf(down.RetCNotFound, "Key %s not found", key)
	}
	return down.Bytes(raw), nil
}

func (d *downImpl) Put(_ context.Context, key, value []byte, opts *down.WriteOptions) error {
	if err := down.ValidateKey(key); err != nil {
		return err
	}
	store, err := d.acquire()
	if err != nil {
		return err
	}
	defer d.mu.RUnlock()

	store.SetItem(string(key), encode(value))
	return d.sync(store, opts)
}

func (d *downImpl) Delete(_ context.Context, key []byte, opts *down.WriteOptions) error {
	if err := down.ValidateKey(key); err != nil {
		return err
	}
	store, err := d.acquire()
	if err != nil {
		return err
	}
	defer d.mu.RUnlock()

	if !store.RemoveItem(string(key)) {
		return down.Errorf(down.RetCNotFound, "Key %s not found", key)
	}
	return d.sync(store, opts)
}

// Batch applies ops one at a time. It stops at the first invalid or failing
// op; ops before it stay applied.
func (d *downImpl) Batch(_ context.Context, ops []down.BatchOp, opts *down.WriteOptions) error {
	store, err := d.acquire()
	if err != nil {
		return err
	}
	defer d.mu.RUnlock()

	var batchErr error
	for i, op := range ops {
		if batchErr = down.ValidateBatchOp(i, op); batchErr != nil {
			break
		}
		switch op.Type {
		case down.BatchPut:
			store.SetItem(string(op.Key), encode(op.Value))
		case down.BatchDel:
			if !store.RemoveItem(string(op.Key)) {
				batchErr = down.Errorf(down.RetCNotFound, "Key %s not found (batch operation %d)", op.Key, i)
			}
		}
		if batchErr != nil {
			break
		}
	}

	// persist what was applied, also when the batch failed halfway
	if err := d.sync(store, opts); err != nil && batchErr == nil {
		batchErr = err
	}
	return batchErr
}

func (d *downImpl) NewIterator(_ context.Context, opts *down.IteratorOptions) (down.Iterator, error) {
	store, err := d.acquire()
	if err != nil {
		return nil, err
	}
	defer d.mu.RUnlock()

	if opts == nil {
		opts = down.DefaultIteratorOptions()
	}
	return newIterator(store, opts), nil
}

func (d *downImpl) ApproximateSize(_ context.Context, start, end []byte) (uint64, error) {
	if len(start) == 0 || len(end) == 0 {
		return 0, down.NewError(down.RetCInvalidParameter, "approximateSize() requires valid start and end arguments")
	}
	store, err := d.acquire()
	if err != nil {
		return 0, err
	}
	defer d.mu.RUnlock()

	keys := snapshot(store)
	iv := down.Resolve(keys, &down.IteratorOptions{Start: start, End: end})
	return uint64(iv.Len()), nil
}

// --------------------------------------------------------------------------
// Destroy and Repair
// --------------------------------------------------------------------------

// Destroy removes the store persisted at location.
func Destroy(location string) error {
	if location == "" {
		return down.NewError(down.RetCInvalidParameter, "Invalid parameter db must be type String with valid value")
	}
	path, err := filepath.Abs(location)
	if err != nil {
		return down.WrapError(down.RetCInvalidParameter, err, "resolve location")
	}

	err = os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return down.Errorf(down.RetCNotFound, "%s does not exist", path)
	}
	if err != nil {
		return down.NormalizeError(err)
	}
	Logger.Infof("destroyed %s", path)
	return nil
}

// Repair is not supported by the local driver.
func Repair(string) error {
	return down.NewError(down.RetCUnsupportedOperation, "repair not implemented")
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// acquire read locks the driver and returns the open store. On success the
// caller must release the lock with d.mu.RUnlock.
func (d *downImpl) acquire() (db.KVDB, error) {
	if d == nil {
		return nil, down.NewError(down.RetCInvalidParameter, "driver is not initialized")
	}

	d.mu.RLock()
	if d.store == nil {
		d.mu.RUnlock()
		return nil, down.NewError(down.RetCConnection, "database is not open")
	}
	return d.store, nil
}

func (d *downImpl) sync(store db.KVDB, opts *down.WriteOptions) error {
	if opts == nil || !opts.Sync {
		return nil
	}
	if err := store.Flush(); err != nil {
		return down.NormalizeError(err)
	}
	return nil
}

// encode turns a value into the text form kept by the store.
func encode(value []byte) string {
	s, _ := down.Decode(down.Normalize(value), false).(string)
	return s
}

// snapshot returns all keys of the store, sorted ascending.
func snapshot(store db.KVDB) []string {
	n := store.Length()
	keys := make([]string, 0, n)
	for i := 0; i < n; i++ {
		// positions can shift under concurrent removes
		if key, ok := store.Key(i); ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	// a key moved by a swap remove may have been seen twice
	out := keys[:0]
	for _, key := range keys {
		if len(out) == 0 || key != out[len(out)-1] {
			out = append(out, key)
		}
	}
	return out
}
