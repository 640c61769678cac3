/*
ledger.go - Attendance ledger over the record store

PURPOSE:
  Reads and writes attendance/{date}/{username}. Marking is an unconditional
  overwrite: an admin may put any status over any other, including over a
  day that an approved leave filled with on_leave. Nothing here consults the
  leave registry.

ABSENCE IS STATE:
  A record exists only for dates explicitly written. Get and Range synthesize
  not_marked for missing days so callers never see a hole.

RANGE:
  Range returns a Cursor that reads one day per Next call, in calendar
  order. A Cursor is single pass; call Range again to restart.

SEE ALSO:
  - reconcile/engine.go: leave-driven writes to the same paths
*/
package attendance

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/warp/workforce-engine/audit"
	"github.com/warp/workforce-engine/generic"
)

type Ledger struct {
	Store generic.RecordStore
	Trail *audit.Trail // optional
	Clock generic.Clock
}

func NewLedger(store generic.RecordStore, trail *audit.Trail) *Ledger {
	return &Ledger{Store: store, Trail: trail}
}

// Mark overwrites the status for (username, date) and stamps MarkedAt.
func (l *Ledger) Mark(ctx context.Context, username string, date generic.Date, status Status) (Record, error) {
	if err := generic.ValidateKey("username", username); err != nil {
		return Record{}, err
	}
	if date.IsZero() {
		return Record{}, generic.Invalid("date", "must be set")
	}
	if !status.Valid() {
		return Record{}, generic.Invalid("status", "unknown attendance status %q", status)
	}
	prev, err := l.Get(ctx, username, date)
	if err != nil {
		return Record{}, err
	}
	rec, err := l.Put(ctx, username, date, status)
	if err != nil {
		return Record{}, err
	}
	l.Trail.Record(ctx, generic.AuditAttendanceMarked, username, date.String(), auditView(prev), auditView(rec))
	return rec, nil
}

// Put writes status without reading first and without auditing. The
// reconciliation engine uses it after doing its own read.
func (l *Ledger) Put(ctx context.Context, username string, date generic.Date, status Status) (Record, error) {
	if !status.Valid() {
		return Record{}, generic.Invalid("status", "unknown attendance status %q", status)
	}
	rec := Record{
		Username: username,
		Date:     date,
		Status:   status,
		MarkedAt: l.Clock.Now(),
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return Record{}, fmt.Errorf("encode attendance %s: %w", rec, err)
	}
	path := generic.AttendancePath(date, username)
	stored, err := l.Store.Write(ctx, path, b)
	if err != nil {
		return Record{}, generic.StoreFailure("write", path, err)
	}
	rec.Stored = true
	rec.Version = stored.Version
	return rec, nil
}

// Get returns the record for (username, date), or a synthesized not_marked.
func (l *Ledger) Get(ctx context.Context, username string, date generic.Date) (Record, error) {
	path := generic.AttendancePath(date, username)
	stored, ok, err := l.Store.Read(ctx, path)
	if err != nil {
		return Record{}, generic.StoreFailure("read", path, err)
	}
	if !ok {
		return notMarked(username, date), nil
	}
	var rec Record
	if err := json.Unmarshal(stored.Value, &rec); err != nil {
		return Record{}, fmt.Errorf("decode attendance at %s: %w", path, err)
	}
	// The path is authoritative for the key.
	rec.Username = username
	rec.Date = date
	if !rec.Status.Valid() {
		rec.Status = StatusNotMarked
	}
	rec.Stored = true
	rec.Version = stored.Version
	return rec, nil
}

// Remove deletes the record so the day reads back as an implicit not_marked.
func (l *Ledger) Remove(ctx context.Context, username string, date generic.Date) error {
	path := generic.AttendancePath(date, username)
	if err := l.Store.Delete(ctx, path); err != nil {
		return generic.StoreFailure("delete", path, err)
	}
	return nil
}

// Range returns a cursor over every day in span.
func (l *Ledger) Range(ctx context.Context, username string, span generic.Span) *Cursor {
	return &Cursor{ctx: ctx, ledger: l, username: username, next: span.Start, end: span.End}
}

// RangeSlice drains Range into a slice.
func (l *Ledger) RangeSlice(ctx context.Context, username string, span generic.Span) ([]Record, error) {
	c := l.Range(ctx, username, span)
	records := make([]Record, 0, span.Len())
	for c.Next() {
		records = append(records, c.Record())
	}
	return records, c.Err()
}

// MonthSummary counts each status over the calendar month.
func (l *Ledger) MonthSummary(ctx context.Context, username string, ym generic.YearMonth) (MonthSummary, error) {
	summary := MonthSummary{Username: username, Month: ym, Counts: make(map[Status]int, len(AllStatuses))}
	for _, s := range AllStatuses {
		summary.Counts[s] = 0
	}
	c := l.Range(ctx, username, ym.Span())
	for c.Next() {
		summary.Counts[c.Record().Status]++
	}
	return summary, c.Err()
}

// =============================================================================
// CURSOR
// =============================================================================

// Cursor walks a span one day at a time. Usage mirrors sql.Rows:
//
//	c := ledger.Range(ctx, "alice", span)
//	for c.Next() { use(c.Record()) }
//	if err := c.Err(); err != nil { ... }
type Cursor struct {
	ctx      context.Context
	ledger   *Ledger
	username string
	next     generic.Date
	end      generic.Date
	current  Record
	err      error
	done     bool
}

// Next reads the following day. It returns false at the end of the span or
// on the first error.
func (c *Cursor) Next() bool {
	if c.done || c.next.After(c.end) {
		c.done = true
		return false
	}
	rec, err := c.ledger.Get(c.ctx, c.username, c.next)
	if err != nil {
		c.err = err
		c.done = true
		return false
	}
	c.current = rec
	c.next = c.next.AddDays(1)
	return true
}

func (c *Cursor) Record() Record { return c.current }

func (c *Cursor) Err() error { return c.err }

// auditView is nil when nothing was stored.
func auditView(r Record) any {
	if !r.Stored {
		return nil
	}
	return map[string]string{"status": string(r.Status), "markedAt": r.MarkedAt.Format(time.RFC3339)}
}
