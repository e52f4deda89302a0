package rdown

import (
	"context"
	"regexp"
	"sync"

	"github.com/ValentinKolb/kvdown/lib/down"
	"github.com/ValentinKolb/kvdown/lib/query"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("down")

var tableNameRx = regexp.MustCompile(`\W+`)

type downImpl struct {
	location string
	table    string
	backend  query.IBackend

	mu   sync.RWMutex
	open bool
}

// TableName returns the table a location is stored in: every run of
// non-word characters is replaced by an underscore.
func TableName(location string) string {
	return tableNameRx.ReplaceAllString(location, "_")
}

// New creates a driver that stores location as a table of backend. The
// backend stays owned by the caller; Close does not close it.
func New(location string, backend query.IBackend) down.IDown {
	return &downImpl{
		location: location,
		table:    TableName(location),
		backend:  backend,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see down/interface.go)
// --------------------------------------------------------------------------

func (d *downImpl) Open(ctx context.Context, opts *down.OpenOptions) error {
	if d == nil || d.backend == nil {
		return down.NewError(down.RetCInvalidParameter, "No backend driver was provided")
	}
	if d.table == "" {
		return down.NewError(down.RetCInvalidParameter, "No table found in location")
	}
	if opts == nil {
		opts = down.DefaultOpenOptions()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.open {
		return nil
	}

	err := d.backend.OpenTable(ctx, d.table, query.OpenOptions{
		CreateIfMissing: opts.CreateIfMissing,
		ErrorIfExists:   opts.ErrorIfExists,
	})
	if err != nil {
		return down.NormalizeError(err)
	}
	d.open = true

	Logger.Debugf("opened table %s", d.table)
	return nil
}

func (d *downImpl) Close() error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	d.open = false
	return nil
}

func (d *downImpl) Get(ctx context.Context, key []byte) ([]byte, error) {
	if err := down.ValidateKey(key); err != nil {
		return nil, err
	}
	if err := d.acquire(); err != nil {
		return nil, err
	}
	defer d.mu.RUnlock()

	row, err := d.backend.Get(ctx, d.table, key)
	if err != nil {
		return nil, down.NormalizeError(err)
	}
	return down.Bytes(row.Value), nil
}

func (d *downImpl) Put(ctx context.Context, key, value []byte, opts *down.WriteOptions) error {
	if err := down.ValidateKey(key); err != nil {
		return err
	}
	if err := d.acquire(); err != nil {
		return err
	}
	defer d.mu.RUnlock()

	row := query.Row{Key: key, Value: down.Normalize(value)}
	return resultError(d.backend.Insert(ctx, d.table, row, writeOptions(opts)))
}

func (d *downImpl) Delete(ctx context.Context, key []byte, opts *down.WriteOptions) error {
	if err := down.ValidateKey(key); err != nil {
		return err
	}
	if err := d.acquire(); err != nil {
		return err
	}
	defer d.mu.RUnlock()

	return resultError(d.backend.Delete(ctx, d.table, key, writeOptions(opts)))
}

// Batch validates every op before anything is sent, then applies all ops with
// a single request. The backend stops at the first failing op; ops before it
// stay applied.
func (d *downImpl) Batch(ctx context.Context, ops []down.BatchOp, opts *down.WriteOptions) error {
	if err := d.acquire(); err != nil {
		return err
	}
	defer d.mu.RUnlock()

	if err := down.ValidateBatch(ops); err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}

	writes := make([]query.WriteOp, len(ops))
	for i, op := range ops {
		switch op.Type {
		case down.BatchPut:
			writes[i] = query.WriteOp{Type: query.WriteOpInsert, Key: op.Key, Value: down.Normalize(op.Value)}
		case down.BatchDel:
			writes[i] = query.WriteOp{Type: query.WriteOpDelete, Key: op.Key}
		}
	}
	return resultError(d.backend.Apply(ctx, d.table, writes, writeOptions(opts)))
}

func (d *downImpl) NewIterator(ctx context.Context, opts *down.IteratorOptions) (down.Iterator, error) {
	if err := d.acquire(); err != nil {
		return nil, err
	}
	defer d.mu.RUnlock()

	if opts == nil {
		opts = down.DefaultIteratorOptions()
	}

	q := query.Table(d.table)
	for _, p := range down.Bounds(opts) {
		q = q.Filter(p)
	}
	if opts.Reverse {
		q = q.OrderBy(query.Desc)
	} else {
		q = q.OrderBy(query.Asc)
	}
	if n := opts.MaxRecords(); n >= 0 {
		q = q.Limit(n)
	}

	cursor, err := d.backend.Run(ctx, q)
	if err != nil {
		return nil, down.NormalizeError(err)
	}
	return &iteratorImpl{cursor: cursor}, nil
}

func (d *downImpl) ApproximateSize(ctx context.Context, start, end []byte) (uint64, error) {
	if len(start) == 0 || len(end) == 0 {
		return 0, down.NewError(down.RetCInvalidParameter, "approximateSize() requires valid start and end arguments")
	}
	if err := d.acquire(); err != nil {
		return 0, err
	}
	defer d.mu.RUnlock()

	n, err := d.backend.Count(ctx, d.table, start, end)
	if err != nil {
		return 0, down.NormalizeError(err)
	}
	return n, nil
}

// --------------------------------------------------------------------------
// Destroy and Repair
// --------------------------------------------------------------------------

// Destroy drops the table of location from backend.
func Destroy(ctx context.Context, backend query.IBackend, location string) error {
	if backend == nil {
		return down.NewError(down.RetCInvalidParameter, "No backend driver was provided")
	}
	table := TableName(location)
	if table == "" {
		return down.NewError(down.RetCInvalidParameter, "Invalid parameter db must be type String with valid value")
	}
	if err := backend.DropTable(ctx, table); err != nil {
		return down.NormalizeError(err)
	}
	Logger.Infof("dropped table %s", table)
	return nil
}

// Repair is not supported by the remote driver.
func Repair(context.Context, query.IBackend, string) error {
	return down.NewError(down.RetCUnsupportedOperation, "repair not implemented")
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// acquire read locks the driver if it is open. On success the caller must
// release the lock with d.mu.RUnlock.
func (d *downImpl) acquire() error {
	if d == nil || d.backend == nil {
		return down.NewError(down.RetCInvalidParameter, "driver is not initialized")
	}

	d.mu.RLock()
	if !d.open {
		d.mu.RUnlock()
		return down.NewError(down.RetCConnection, "database is not open")
	}
	return nil
}

func writeOptions(opts *down.WriteOptions) query.WriteOptions {
	wo := query.WriteOptions{Conflict: query.ConflictUpdate, Durability: query.DurabilitySoft}
	if opts != nil && opts.Sync {
		wo.Durability = query.DurabilityHard
	}
	return wo
}

// resultError turns the outcome of a write into a driver error. The first
// failed op of the write decides the error.
func resultError(res query.WriteResult, err error) error {
	if err != nil {
		return down.NormalizeError(err)
	}
	if res.Errors > 0 {
		return down.NormalizeError(query.ErrorFromCode(res.FirstErrorCode, res.FirstError))
	}
	return nil
}
