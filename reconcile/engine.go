/*
engine.go - Applies leave decisions to the attendance ledger

PURPOSE:
  Translates one leave-status decision into a bounded sequence of per-day
  attendance writes over the leave's span.

OPERATIONS:
  ApplyApproval            fill gaps: not_marked -> on_leave, explicit marks untouched
  ApplyRejection           on_leave -> not_marked (explicit overwrite, record remains)
  ApplyReconsiderApprove   same fill-gap rule, entered from a reconsideration
  ApplyReconsiderReject    delete every record in the span

  The two rejection variants differ on purpose: ApplyRejection leaves a
  not_marked record behind, ApplyReconsiderReject leaves no record at all.
  Both read back as not_marked.

ORDERING:
  Days are processed sequentially: read day d, maybe write day d, then d+1.
  A concurrent reader never observes a later day changed while an earlier
  day is still pending.

FAILURE:
  Any per-day read or write may fail. The engine stops at the failing day
  and returns a *SpanError naming it; days already written stay written.
  There is no rollback. Every per-day step is idempotent (a predicate-gated
  write or a fixed-target overwrite), so retrying the same span converges
  to the same end state.

SEE ALSO:
  - leave/registry.go: invokes the engine after committing a status change
  - attendance/ledger.go: the records being mutated
*/
package reconcile

import (
	"context"
	"fmt"
	"log"

	"github.com/warp/workforce-engine/attendance"
	"github.com/warp/workforce-engine/audit"
	"github.com/warp/workforce-engine/generic"
)

// =============================================================================
// RESULT / ERRORS
// =============================================================================

type Op string

const (
	OpApproval          Op = "approval"
	OpRejection         Op = "rejection"
	OpReconsiderApprove Op = "reconsider_approve"
	OpReconsiderReject  Op = "reconsider_reject"
)

// Result describes what a span application did.
type Result struct {
	Op        Op             `json:"op"`
	Username  string         `json:"username"`
	Span      generic.Span   `json:"-"`
	Changed   []generic.Date `json:"changed"`
	Untouched int            `json:"untouched"`
}

// SpanError reports the day a span application stopped at.
type SpanError struct {
	Op       Op
	Username string
	Date     generic.Date
	Applied  int // days changed before the failure
	Err      error
}

func (e *SpanError) Error() string {
	return fmt.Sprintf("%s for %s stopped at %s after %d day(s) changed: %v",
		e.Op, e.Username, e.Date, e.Applied, e.Err)
}

func (e *SpanError) Unwrap() error { return e.Err }

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	Ledger *attendance.Ledger
	Trail  *audit.Trail // optional
}

func NewEngine(ledger *attendance.Ledger, trail *audit.Trail) *Engine {
	return &Engine{Ledger: ledger, Trail: trail}
}

// ApplyApproval marks every not_marked day in span as on_leave.
func (e *Engine) ApplyApproval(ctx context.Context, username string, span generic.Span) (Result, error) {
	return e.apply(ctx, OpApproval, username, span, fillGap)
}

// ApplyRejection reverts on_leave days in span to an explicit not_marked.
func (e *Engine) ApplyRejection(ctx context.Context, username string, span generic.Span) (Result, error) {
	return e.apply(ctx, OpRejection, username, span, revertLeave)
}

// ApplyReconsiderApprove re-applies fill-gap semantics after a rejected
// request is reconsidered. Days already on_leave or otherwise marked stay.
func (e *Engine) ApplyReconsiderApprove(ctx context.Context, username string, span generic.Span) (Result, error) {
	return e.apply(ctx, OpReconsiderApprove, username, span, fillGap)
}

// ApplyReconsiderReject deletes every attendance record in span, whatever
// its status.
func (e *Engine) ApplyReconsiderReject(ctx context.Context, username string, span generic.Span) (Result, error) {
	return e.apply(ctx, OpReconsiderReject, username, span, deleteRecord)
}

// dayAction decides and performs the write for one day. changed reports
// whether the store was mutated.
type dayAction func(ctx context.Context, l *attendance.Ledger, current attendance.Record) (changed bool, err error)

func fillGap(ctx context.Context, l *attendance.Ledger, current attendance.Record) (bool, error) {
	if !current.IsGap() {
		return false, nil
	}
	_, err := l.Put(ctx, current.Username, current.Date, attendance.StatusOnLeave)
	return err == nil, err
}

func revertLeave(ctx context.Context, l *attendance.Ledger, current attendance.Record) (bool, error) {
	if current.Status != attendance.StatusOnLeave {
		return false, nil
	}
	_, err := l.Put(ctx, current.Username, current.Date, attendance.StatusNotMarked)
	return err == nil, err
}

func deleteRecord(ctx context.Context, l *attendance.Ledger, current attendance.Record) (bool, error) {
	if !current.Stored {
		return false, nil
	}
	err := l.Remove(ctx, current.Username, current.Date)
	return err == nil, err
}

func (e *Engine) apply(ctx context.Context, op Op, username string, span generic.Span, action dayAction) (Result, error) {
	if err := generic.ValidateKey("username", username); err != nil {
		return Result{}, err
	}
	if _, err := generic.NewSpan(span.Start, span.End); err != nil {
		return Result{}, err
	}

	result := Result{Op: op, Username: username, Span: span}
	for _, d := range span.Days() {
		current, err := e.Ledger.Get(ctx, username, d)
		if err != nil {
			return result, e.fail(ctx, result, d, err)
		}
		changed, err := action(ctx, e.Ledger, current)
		if err != nil {
			return result, e.fail(ctx, result, d, err)
		}
		if changed {
			result.Changed = append(result.Changed, d)
		} else {
			result.Untouched++
		}
	}

	e.Trail.Record(ctx, generic.AuditReconciliation, username, span.String(), nil, result)
	return result, nil
}

func (e *Engine) fail(ctx context.Context, partial Result, at generic.Date, err error) error {
	spanErr := &SpanError{
		Op:       partial.Op,
		Username: partial.Username,
		Date:     at,
		Applied:  len(partial.Changed),
		Err:      err,
	}
	log.Printf("[Reconcile] %v", spanErr)
	if len(partial.Changed) > 0 {
		e.Trail.Record(ctx, generic.AuditReconciliation, partial.Username, partial.Span.String(),
			nil, map[string]any{"partial": partial, "error": err.Error()})
	}
	return spanErr
}
