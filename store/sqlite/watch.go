/*
watch.go - Polling change feed for Subscribe

PURPOSE:
  SQLite has no cross-process change notification, so the store polls the
  records table and diffs (version, updated_at) per path against what it saw
  last time. Anything new or changed is reported as written, anything gone
  as deleted.

DESIGN:
  - One background goroutine per Store, started by the first Subscribe
  - Stops on Store.Close
  - The first poll only takes a baseline: existing rows are not reported
  - Callbacks run on the poller goroutine, never under the store lock

LIMITS:
  A change that is reverted between two polls is not seen. Consumers that
  need every intermediate state must not rely on Subscribe; the engine
  itself never does.
*/
package sqlite

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/workforce-engine/generic"
)

// DefaultPollInterval is how often the watcher scans for changes.
const DefaultPollInterval = time.Second

type rowState struct {
	version   int64
	updatedAt string
}

type subscription struct {
	path string
	fn   func(generic.ChangeEvent)
}

type watcher struct {
	store    *Store
	interval time.Duration

	mu      sync.Mutex
	nextID  int
	subs    map[int]subscription
	seen    map[string]rowState
	started bool
	done    chan struct{}
	wg      sync.WaitGroup
}

func newWatcher(store *Store, interval time.Duration) *watcher {
	return &watcher{
		store:    store,
		interval: interval,
		subs:     make(map[int]subscription),
		done:     make(chan struct{}),
	}
}

// SetPollInterval changes the interval. It only takes effect if called
// before the first Subscribe.
func (s *Store) SetPollInterval(d time.Duration) {
	s.watch.mu.Lock()
	defer s.watch.mu.Unlock()
	if d > 0 && !s.watch.started {
		s.watch.interval = d
	}
}

func (w *watcher) subscribe(path string, fn func(generic.ChangeEvent)) func() {
	w.mu.Lock()
	defer w.mu.Unlock()

	id := w.nextID
	w.nextID++
	w.subs[id] = subscription{path: path, fn: fn}

	if !w.started {
		w.started = true
		w.seen = w.snapshot()
		w.wg.Add(1)
		go w.run()
		log.Printf("[Watcher] Started with poll interval: %v", w.interval)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			w.mu.Lock()
			delete(w.subs, id)
			w.mu.Unlock()
		})
	}
}

func (w *watcher) stop() {
	w.mu.Lock()
	started := w.started
	select {
	case <-w.done:
	default:
		close(w.done)
	}
	w.mu.Unlock()

	if started {
		w.wg.Wait()
		log.Println("[Watcher] Stopped")
	}
}

func (w *watcher) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.poll()
		case <-w.done:
			return
		}
	}
}

func (w *watcher) poll() {
	current := w.snapshot()
	if current == nil {
		return
	}

	w.mu.Lock()
	var events []generic.ChangeEvent
	for path, st := range current {
		if prev, ok := w.seen[path]; !ok || prev != st {
			events = append(events, generic.ChangeEvent{Path: path, Kind: generic.ChangeWritten, Version: st.version})
		}
	}
	for path, prev := range w.seen {
		if _, ok := current[path]; !ok {
			events = append(events, generic.ChangeEvent{Path: path, Kind: generic.ChangeDeleted, Version: prev.version})
		}
	}
	w.seen = current

	type delivery struct {
		fn func(generic.ChangeEvent)
		ev generic.ChangeEvent
	}
	var deliveries []delivery
	for _, ev := range events {
		for _, sub := range w.subs {
			if sub.path == ev.Path || under(ev.Path, sub.path) {
				deliveries = append(deliveries, delivery{fn: sub.fn, ev: ev})
			}
		}
	}
	w.mu.Unlock()

	for _, d := range deliveries {
		d.fn(d.ev)
	}
}

// snapshot returns nil on error so a failed poll keeps the old baseline.
func (w *watcher) snapshot() map[string]rowState {
	s := w.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(context.Background(), "SELECT path, version, updated_at FROM records")
	if err != nil {
		log.Printf("[Watcher] Error scanning records: %v", err)
		return nil
	}
	defer rows.Close()

	out := make(map[string]rowState)
	for rows.Next() {
		var (
			path string
			st   rowState
		)
		if err := rows.Scan(&path, &st.version, &st.updatedAt); err != nil {
			log.Printf("[Watcher] Error scanning records: %v", err)
			return nil
		}
		out[path] = st
	}
	if err := rows.Err(); err != nil {
		log.Printf("[Watcher] Error scanning records: %v", err)
		return nil
	}
	return out
}

func under(path, prefix string) bool {
	if prefix == "" {
		return true
	}
	lo, hi := prefixRange(prefix)
	return path >= lo && path < hi
}
