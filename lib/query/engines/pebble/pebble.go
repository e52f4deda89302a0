package pebble

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/kvdown/lib/query"
	"github.com/cockroachdb/pebble"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/pkg/errors"
)

var Logger = logger.GetLogger("query")

type backendImpl struct {
	db     *pebble.DB
	path   string
	closed atomic.Bool

	// serializes read-modify-write requests (conflict checks, deletes of missing rows)
	writeMu sync.Mutex
}

// NewPebbleBackend opens (or creates) a pebble store in the directory path and
// returns a query.IBackend that stores every table as a key prefix.
func NewPebbleBackend(path string) (query.IBackend, error) {
	cache := pebble.NewCache(64 * 1024 * 1024) // 64MB
	defer cache.Unref()

	opts := &pebble.Options{
		Cache:                       cache,
		MemTableSize:                32 * 1024 * 1024, // 32MB
		MemTableStopWritesThreshold: 4,                // 128MB of queued memtables
	}

	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "pebble: open %s", path)
	}
	Logger.Debugf("opened pebble backend at %s", path)
	return &backendImpl{db: db, path: path}, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see query.IBackend)
// --------------------------------------------------------------------------

func (b *backendImpl) OpenTable(_ context.Context, table string, opts query.OpenOptions) error {
	if b.closed.Load() {
		return query.ErrClosed
	}
	if err := checkTableName(table); err != nil {
		return err
	}

	pk, err := b.lookupTable(table)
	if errors.Is(err, query.ErrTableNotFound) {
		if !opts.CreateIfMissing {
			return err
		}
		if err := b.db.Set(catalogKey(table), []byte(query.PK), pebble.Sync); err != nil {
			return errors.Wrapf(err, "pebble: create table %s", table)
		}
		Logger.Infof("created table %s in %s", table, b.path)
		return nil
	}
	if err != nil {
		return err
	}

	if opts.ErrorIfExists {
		return errors.Wrapf(query.ErrTableExists, "table %s exists", table)
	}
	if pk != query.PK {
		return errors.Wrapf(query.ErrInvalidPrimaryKey, "table %s has primary key %q", table, pk)
	}
	return nil
}

func (b *backendImpl) DropTable(_ context.Context, table string) error {
	if b.closed.Load() {
		return query.ErrClosed
	}
	if _, err := b.lookupTable(table); err != nil {
		return err
	}

	batch := b.db.NewBatch()
	defer batch.Close()

	lower, upper := tableBounds(table)
	if err := batch.DeleteRange(lower, upper, nil); err != nil {
		return errors.Wrapf(err, "pebble: drop table %s", table)
	}
	if err := batch.Delete(catalogKey(table), nil); err != nil {
		return errors.Wrapf(err, "pebble: drop table %s", table)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return errors.Wrapf(err, "pebble: drop table %s", table)
	}
	return nil
}

func (b *backendImpl) Get(_ context.Context, table string, key []byte) (query.Row, error) {
	if b.closed.Load() {
		return query.Row{}, query.ErrClosed
	}
	if _, err := b.lookupTable(table); err != nil {
		return query.Row{}, err
	}

	raw, closer, err := b.db.Get(dataKey(table, key))
	if errors.Is(err, pebble.ErrNotFound) {
		return query.Row{}, errors.Wrapf(query.ErrNotFound, "Key %s not found", key)
	}
	if err != nil {
		return query.Row{}, errors.Wrapf(err, "pebble: get from %s", table)
	}
	defer closer.Close()

	value, err := decodeValue(raw)
	if err != nil {
		return query.Row{}, err
	}
	return query.Row{Key: key, Value: value}, nil
}

func (b *backendImpl) Insert(ctx context.Context, table string, row query.Row, opts query.WriteOptions) (query.WriteResult, error) {
	return b.Apply(ctx, table, []query.WriteOp{{Type: query.WriteOpInsert, Key: row.Key, Value: row.Value}}, opts)
}

func (b *backendImpl) Delete(ctx context.Context, table string, key []byte, opts query.WriteOptions) (query.WriteResult, error) {
	return b.Apply(ctx, table, []query.WriteOp{{Type: query.WriteOpDelete, Key: key}}, opts)
}

func (b *backendImpl) Apply(_ context.Context, table string, ops []query.WriteOp, opts query.WriteOptions) (query.WriteResult, error) {
	var res query.WriteResult
	if b.closed.Load() {
		return res, query.ErrClosed
	}
	if _, err := b.lookupTable(table); err != nil {
		return res, err
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	// indexed, so that later ops see the effect of earlier ones
	batch := b.db.NewIndexedBatch()
	defer batch.Close()

	for _, op := range ops {
		opErr := b.applyOp(batch, table, op, opts.Conflict, &res)
		if opErr == nil {
			continue
		}
		if query.CodeOf(opErr) == query.ErrCDriver && !isDriverError(opErr) {
			return query.WriteResult{}, opErr
		}
		res.Errors++
		res.FirstError = opErr.Error()
		res.FirstErrorCode = query.CodeOf(opErr)
		break
	}

	writeOpts := pebble.NoSync
	if opts.Durability == query.DurabilityHard {
		writeOpts = pebble.Sync
	}
	if err := batch.Commit(writeOpts); err != nil {
		return query.WriteResult{}, errors.Wrapf(err, "pebble: commit to %s", table)
	}
	return res, nil
}

func (b *backendImpl) Run(_ context.Context, q query.Query) (query.ICursor, error) {
	if b.closed.Load() {
		return nil, query.ErrClosed
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if _, err := b.lookupTable(q.TableName); err != nil {
		return nil, err
	}

	lower, upper, ok := q.KeyRange()
	if !ok || q.RowLimit == 0 {
		return &cursorImpl{done: true}, nil
	}

	iterLower, iterUpper := tableBounds(q.TableName)
	if lower != nil {
		iterLower = dataKey(q.TableName, lower)
	}
	if upper != nil {
		iterUpper = dataKey(q.TableName, upper)
	}

	iter, err := b.db.NewIter(&pebble.IterOptions{
		LowerBound: iterLower,
		UpperBound: iterUpper,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "pebble: run query on %s", q.TableName)
	}

	Logger.Debugf("run %s on [%q, %q)", q.TableName, iterLower, iterUpper)
	return &cursorImpl{
		iter:   iter,
		prefix: len(tablePrefix(q.TableName)),
		query:  q,
	}, nil
}

func (b *backendImpl) Count(_ context.Context, table string, low, high []byte) (uint64, error) {
	if b.closed.Load() {
		return 0, query.ErrClosed
	}
	if _, err := b.lookupTable(table); err != nil {
		return 0, err
	}
	if bytes.Compare(low, high) > 0 {
		return 0, nil
	}

	iter, err := b.db.NewIter(&pebble.IterOptions{
		LowerBound: dataKey(table, low),
		UpperBound: dataKey(table, append(bytes.Clone(high), 0x00)),
	})
	if err != nil {
		return 0, errors.Wrapf(err, "pebble: count %s", table)
	}
	defer iter.Close()

	var n uint64
	for valid := iter.First(); valid; valid = iter.Next() {
		n++
	}
	if err := iter.Error(); err != nil {
		return 0, errors.Wrapf(err, "pebble: count %s", table)
	}
	return n, nil
}

func (b *backendImpl) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	Logger.Debugf("closing pebble backend at %s", b.path)
	return b.db.Close()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (b *backendImpl) lookupTable(table string) (pk string, err error) {
	raw, closer, err := b.db.Get(catalogKey(table))
	if errors.Is(err, pebble.ErrNotFound) {
		return "", errors.Wrapf(query.ErrTableNotFound, "table %s does not exist", table)
	}
	if err != nil {
		return "", errors.Wrapf(err, "pebble: lookup table %s", table)
	}
	defer closer.Close()
	return string(raw), nil
}

func (b *backendImpl) applyOp(batch *pebble.Batch, table string, op query.WriteOp, conflict query.Conflict, res *query.WriteResult) error {
	key := dataKey(table, op.Key)

	exists := true
	_, closer, err := batch.Get(key)
	switch {
	case errors.Is(err, pebble.ErrNotFound):
		exists = false
	case err != nil:
		return errors.Wrapf(err, "pebble: lookup in %s", table)
	default:
		_ = closer.Close()
	}

	switch op.Type {
	case query.WriteOpInsert:
		if exists && conflict == query.ConflictError {
			return errors.Wrapf(query.ErrConflict, "Duplicate primary key %s", op.Key)
		}
		value, err := encodeValue(op.Value)
		if err != nil {
			return err
		}
		if err := batch.Set(key, value, nil); err != nil {
			return errors.Wrapf(err, "pebble: insert into %s", table)
		}
		if exists {
			res.Replaced++
		} else {
			res.Inserted++
		}
	case query.WriteOpDelete:
		if !exists {
			return errors.Wrapf(query.ErrNotFound, "Key %s not found", op.Key)
		}
		if err := batch.Delete(key, nil); err != nil {
			return errors.Wrapf(err, "pebble: delete from %s", table)
		}
		res.Deleted++
	default:
		return &query.DriverError{Msg: fmt.Sprintf("invalid write operation %d", op.Type)}
	}
	return nil
}

func isDriverError(err error) bool {
	var driverErr *query.DriverError
	return errors.As(err, &driverErr)
}
