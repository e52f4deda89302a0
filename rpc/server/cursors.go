package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/kvdown/lib/query"
	"github.com/puzpuzpuz/xsync/v3"
)

// errCursorNotFound is returned for ids that were never opened, are drained
// or were closed by the reaper
var errCursorNotFound = errors.New("cursor not found")

// cursorEntry is an open backend cursor. Calls on one cursor are serialized.
type cursorEntry struct {
	mu       sync.Mutex
	shardId  uint64
	cursor   query.ICursor
	lastUsed atomic.Int64 // unix nanos
	closed   bool
}

// cursorRegistry keeps the cursors opened by Run requests until the client
// drains or closes them. Cursors unused for longer than idle are closed.
type cursorRegistry struct {
	cursors *xsync.MapOf[uint64, *cursorEntry]
	nextID  atomic.Uint64
	idle    time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func newCursorRegistry(idle time.Duration) *cursorRegistry {
	return &cursorRegistry{
		cursors: xsync.NewMapOf[uint64, *cursorEntry](),
		idle:    idle,
		stopCh:  make(chan struct{}),
	}
}

// add registers cursor and returns its id. Ids start at 1.
func (r *cursorRegistry) add(shardId uint64, cursor query.ICursor) uint64 {
	id := r.nextID.Add(1)
	entry := &cursorEntry{shardId: shardId, cursor: cursor}
	entry.lastUsed.Store(time.Now().UnixNano())
	r.cursors.Store(id, entry)
	cursorsOpened.Inc()
	return id
}

// next returns the next row of the cursor. A drained or failed cursor is
// closed and forgotten.
func (r *cursorRegistry) next(ctx context.Context, shardId, id uint64) (query.Row, error) {
	entry, ok := r.cursors.Load(id)
	if !ok || entry.shardId != shardId {
		return query.Row{}, fmt.Errorf("%w: %d", errCursorNotFound, id)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.closed {
		return query.Row{}, fmt.Errorf("%w: %d", errCursorNotFound, id)
	}
	entry.lastUsed.Store(time.Now().UnixNano())

	row, err := entry.cursor.Next(ctx)
	if err != nil {
		r.closeLocked(id, entry)
	}
	return row, err
}

// close closes the cursor. Unknown ids are ignored.
func (r *cursorRegistry) close(shardId, id uint64) error {
	entry, ok := r.cursors.Load(id)
	if !ok || entry.shardId != shardId {
		return nil
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return r.closeLocked(id, entry)
}

func (r *cursorRegistry) closeLocked(id uint64, entry *cursorEntry) error {
	if entry.closed {
		return nil
	}
	entry.closed = true
	r.cursors.Delete(id)
	cursorsClosed.Inc()
	return entry.cursor.Close()
}

// len returns the number of open cursors
func (r *cursorRegistry) len() int {
	return r.cursors.Size()
}

// reap closes every cursor not used since now - idle and returns how many
// were closed. Cursors busy with a request are skipped.
func (r *cursorRegistry) reap(now time.Time) int {
	if r.idle <= 0 {
		return 0
	}
	deadline := now.Add(-r.idle).UnixNano()

	reaped := 0
	r.cursors.Range(func(id uint64, entry *cursorEntry) bool {
		if entry.lastUsed.Load() > deadline || !entry.mu.TryLock() {
			return true
		}
		defer entry.mu.Unlock()

		if err := r.closeLocked(id, entry); err != nil {
			Logger.Warningf("closing idle cursor %d of shard %d: %v", id, entry.shardId, err)
		}
		cursorsReaped.Inc()
		reaped++
		return true
	})
	return reaped
}

// start runs the reaper until stop is called
func (r *cursorRegistry) start() {
	if r.idle <= 0 {
		return
	}

	interval := r.idle / 2
	if interval < 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				if n := r.reap(now); n > 0 {
					Logger.Debugf("closed %d idle cursors", n)
				}
			case <-r.stopCh:
				return
			}
		}
	}()
}

// stop ends the reaper and closes all cursors
func (r *cursorRegistry) stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()

	r.cursors.Range(func(id uint64, entry *cursorEntry) bool {
		entry.mu.Lock()
		defer entry.mu.Unlock()
		if err := r.closeLocked(id, entry); err != nil {
			Logger.Warningf("closing cursor %d of shard %d: %v", id, entry.shardId, err)
		}
		return true
	})
}
