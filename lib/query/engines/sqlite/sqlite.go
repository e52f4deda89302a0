package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/ValentinKolb/kvdown/lib/query"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/pkg/errors"

	_ "modernc.org/sqlite"
)

var Logger = logger.GetLogger("query")

const (
	driverName  = "sqlite"
	busyTimeout = 5000 // ms
)

type backendImpl struct {
	db     *sql.DB
	path   string
	closed atomic.Bool
}

// NewSQLiteBackend opens (or creates) the database file at path and returns a
// query.IBackend that stores every table as an SQL table.
func NewSQLiteBackend(path string) (query.IBackend, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", path, busyTimeout)
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "sqlite: open %s", path)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "sqlite: open %s", path)
	}
	Logger.Debugf("opened sqlite backend at %s", path)
	return &backendImpl{db: db, path: path}, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see query.IBackend)
// --------------------------------------------------------------------------

func (b *backendImpl) OpenTable(ctx context.Context, table string, opts query.OpenOptions) error {
	if b.closed.Load() {
		return query.ErrClosed
	}

	var n int
	err := b.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&n)
	if err != nil {
		return errors.Wrapf(err, "sqlite: lookup table %s", table)
	}

	if n == 0 {
		if !opts.CreateIfMissing {
			return errors.Wrapf(query.ErrTableNotFound, "table %s does not exist", table)
		}
		stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s BLOB NOT NULL PRIMARY KEY, %s)", quote(table), query.PK, query.ValueField)
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "sqlite: create table %s", table)
		}
		Logger.Infof("created table %s in %s", table, b.path)
		return nil
	}

	if opts.ErrorIfExists {
		return errors.Wrapf(query.ErrTableExists, "table %s exists", table)
	}

	rows, err := b.db.QueryContext(ctx, "SELECT name FROM pragma_table_info(?) WHERE pk > 0", table)
	if err != nil {
		return errors.Wrapf(err, "sqlite: inspect table %s", table)
	}
	defer rows.Close()

	var pks []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return errors.Wrapf(err, "sqlite: inspect table %s", table)
		}
		pks = append(pks, name)
	}
	if err := rows.Err(); err != nil {
		return errors.Wrapf(err, "sqlite: inspect table %s", table)
	}
	if len(pks) != 1 || pks[0] != query.PK {
		return errors.Wrapf(query.ErrInvalidPrimaryKey, "table %s has primary key %v", table, pks)
	}
	return nil
}

func (b *backendImpl) DropTable(ctx context.Context, table string) error {
	if b.closed.Load() {
		return query.ErrClosed
	}
	if err := b.OpenTable(ctx, table, query.OpenOptions{}); errors.Is(err, query.ErrTableNotFound) {
		return err
	}
	if _, err := b.db.ExecContext(ctx, "DROP TABLE "+quote(table)); err != nil {
		return errors.Wrapf(err, "sqlite: drop table %s", table)
	}
	return nil
}

func (b *backendImpl) Get(ctx context.Context, table string, key []byte) (query.Row, error) {
	if b.closed.Load() {
		return query.Row{}, query.ErrClosed
	}
	var value any
	stmt := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", query.ValueField, quote(table), query.PK)
	err := b.db.QueryRowContext(ctx, stmt, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return query.Row{}, errors.Wrapf(query.ErrNotFound, "Key %s not found", key)
	}
	if err != nil {
		return query.Row{}, errors.Wrapf(err, "sqlite: get from %s", table)
	}
	return query.Row{Key: key, Value: value}, nil
}

func (b *backendImpl) Insert(ctx context.Context, table string, row query.Row, opts query.WriteOptions) (query.WriteResult, error) {
	return b.Apply(ctx, table, []query.WriteOp{{Type: query.WriteOpInsert, Key: row.Key, Value: row.Value}}, opts)
}

func (b *backendImpl) Delete(ctx context.Context, table string, key []byte, opts query.WriteOptions) (query.WriteResult, error) {
	return b.Apply(ctx, table, []query.WriteOp{{Type: query.WriteOpDelete, Key: key}}, opts)
}

func (b *backendImpl) Apply(ctx context.Context, table string, ops []query.WriteOp, opts query.WriteOptions) (res query.WriteResult, err error) {
	if b.closed.Load() {
		return res, query.ErrClosed
	}

	// durability is a per connection setting, so the whole write runs on one pinned connection
	conn, err := b.db.Conn(ctx)
	if err != nil {
		return res, errors.Wrap(err, "sqlite: acquire connection")
	}
	defer conn.Close()

	synchronous := "OFF"
	if opts.Durability == query.DurabilityHard {
		synchronous = "FULL"
	}
	if _, err := conn.ExecContext(ctx, "PRAGMA synchronous = "+synchronous); err != nil {
		return res, errors.Wrap(err, "sqlite: set durability")
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return res, errors.Wrap(err, "sqlite: begin")
	}

	for _, op := range ops {
		var opErr error
		switch op.Type {
		case query.WriteOpInsert:
			opErr = b.insertTx(ctx, tx, table, op, opts.Conflict, &res)
		case query.WriteOpDelete:
			opErr = b.deleteTx(ctx, tx, table, op.Key, &res)
		default:
			opErr = &query.DriverError{Msg: fmt.Sprintf("invalid write operation %d", op.Type)}
		}

		if opErr == nil {
			continue
		}

		// per operation failures end the request but keep what was applied before
		code := query.CodeOf(opErr)
		if code == query.ErrCDriver && !isDriverError(opErr) {
			_ = tx.Rollback()
			return query.WriteResult{}, opErr
		}
		res.Errors++
		res.FirstError = opErr.Error()
		res.FirstErrorCode = code
		break
	}

	if err := tx.Commit(); err != nil {
		return query.WriteResult{}, errors.Wrap(err, "sqlite: commit")
	}
	return res, nil
}

func (b *backendImpl) Run(ctx context.Context, q query.Query) (query.ICursor, error) {
	if b.closed.Load() {
		return nil, query.ErrClosed
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	stmt, args := compile(q)
	Logger.Debugf("run %s %v", stmt, args)

	// the cursor lives until it is closed, not until the caller's context ends
	rows, err := b.db.QueryContext(context.WithoutCancel(ctx), stmt, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "sqlite: run query on %s", q.TableName)
	}
	return &cursorImpl{rows: rows}, nil
}

func (b *backendImpl) Count(ctx context.Context, table string, low, high []byte) (uint64, error) {
	if b.closed.Load() {
		return 0, query.ErrClosed
	}
	var n uint64
	stmt := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s >= ? AND %s <= ?", quote(table), query.PK, query.PK)
	if err := b.db.QueryRowContext(ctx, stmt, low, high).Scan(&n); err != nil {
		return 0, errors.Wrapf(err, "sqlite: count %s", table)
	}
	return n, nil
}

func (b *backendImpl) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	Logger.Debugf("closing sqlite backend at %s", b.path)
	return b.db.Close()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (b *backendImpl) insertTx(ctx context.Context, tx *sql.Tx, table string, op query.WriteOp, conflict query.Conflict, res *query.WriteResult) error {
	exists, err := existsTx(ctx, tx, table, op.Key)
	if err != nil {
		return err
	}
	if exists && conflict == query.ConflictError {
		return errors.Wrapf(query.ErrConflict, "Duplicate primary key %s", op.Key)
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (?, ?) ON CONFLICT(%s) DO UPDATE SET %s = excluded.%s",
		quote(table), query.PK, query.ValueField, query.PK, query.ValueField, query.ValueField)
	if _, err := tx.ExecContext(ctx, stmt, op.Key, op.Value); err != nil {
		return errors.Wrapf(err, "sqlite: insert into %s", table)
	}

	if exists {
		res.Replaced++
	} else {
		res.Inserted++
	}
	return nil
}

func (b *backendImpl) deleteTx(ctx context.Context, tx *sql.Tx, table string, key []byte, res *query.WriteResult) error {
	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", quote(table), query.PK)
	result, err := tx.ExecContext(ctx, stmt, key)
	if err != nil {
		return errors.Wrapf(err, "sqlite: delete from %s", table)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "sqlite: delete from %s", table)
	}
	if n == 0 {
		return errors.Wrapf(query.ErrNotFound, "Key %s not found", key)
	}
	res.Deleted += int(n)
	return nil
}

func existsTx(ctx context.Context, tx *sql.Tx, table string, key []byte) (bool, error) {
	var n int
	stmt := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = ?", quote(table), query.PK)
	if err := tx.QueryRowContext(ctx, stmt, key).Scan(&n); err != nil {
		return false, errors.Wrapf(err, "sqlite: lookup in %s", table)
	}
	return n > 0, nil
}

func isDriverError(err error) bool {
	var driverErr *query.DriverError
	return errors.As(err, &driverErr)
}

// compile translates a query into a SELECT statement and its arguments.
func compile(q query.Query) (string, []any) {
	var sb strings.Builder
	args := make([]any, 0, len(q.Filters)+1)

	sb.WriteString(fmt.Sprintf("SELECT %s, %s FROM %s", query.PK, query.ValueField, quote(q.TableName)))
	for i, f := range q.Filters {
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		sb.WriteString(fmt.Sprintf("%s %s ?", query.PK, sqlOp(f.Op)))
		args = append(args, f.Value)
	}

	if q.Order == query.Desc {
		sb.WriteString(fmt.Sprintf(" ORDER BY %s DESC", query.PK))
	} else {
		sb.WriteString(fmt.Sprintf(" ORDER BY %s ASC", query.PK))
	}

	if q.RowLimit >= 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, q.RowLimit)
	}
	return sb.String(), args
}

func sqlOp(op query.Op) string {
	switch op {
	case query.OpEq:
		return "="
	case query.OpGt:
		return ">"
	case query.OpGte:
		return ">="
	case query.OpLt:
		return "<"
	default:
		return "<="
	}
}

// quote quotes a table name as an SQL identifier.
func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
