/*
registry.go - Leave request lifecycle

PURPOSE:
  Creates leave requests and moves them between pending, approved and
  rejected. Every status change is followed, in the same call, by a
  reconciliation of the request's span against the attendance ledger.

STATES:
  pending -> approved | rejected
  approved <-> rejected (reconsideration; never back to pending)

WHICH SPAN OPERATION RUNS:
  Approve                         -> ApplyApproval
  Reject                          -> ApplyRejection (overwrite to not_marked)
  Reconsider(..., approved)       -> ApplyReconsiderApprove
  Reconsider(..., rejected)       -> ApplyReconsiderReject (delete records)

  Approve/Reject on an already-decided request is itself a reconsideration
  and re-runs reconciliation with the new target, which also makes them the
  retry path after a partial span failure.

ORDERING AND ATOMICITY:
  1. Status write is committed (CompareAndWrite on the version read).
  2. Reconciliation runs.
  If step 2 fails partway the new status stays committed and some days may
  already be changed. The error is returned with the updated request so the
  caller can retry. Two admins racing on the same request get
  ErrConcurrentModification for the loser instead of a silent overwrite.

SEE ALSO:
  - reconcile/engine.go: span operations
*/
package leave

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/warp/workforce-engine/audit"
	"github.com/warp/workforce-engine/generic"
	"github.com/warp/workforce-engine/reconcile"
)

// Reconciler applies leave decisions to attendance.
type Reconciler interface {
	ApplyApproval(ctx context.Context, username string, span generic.Span) (reconcile.Result, error)
	ApplyRejection(ctx context.Context, username string, span generic.Span) (reconcile.Result, error)
	ApplyReconsiderApprove(ctx context.Context, username string, span generic.Span) (reconcile.Result, error)
	ApplyReconsiderReject(ctx context.Context, username string, span generic.Span) (reconcile.Result, error)
}

type Registry struct {
	Store      generic.RecordStore
	Reconciler Reconciler
	Trail      *audit.Trail // optional
	Clock      generic.Clock
	NewID      func() string
}

func NewRegistry(store generic.RecordStore, reconciler Reconciler, trail *audit.Trail) *Registry {
	return &Registry{Store: store, Reconciler: reconciler, Trail: trail}
}

func (r *Registry) newID() string {
	if r.NewID != nil {
		return r.NewID()
	}
	return uuid.NewString()
}

// =============================================================================
// SUBMIT
// =============================================================================

// Submit creates a pending request. Validation happens before any write.
func (r *Registry) Submit(ctx context.Context, username string, start, end generic.Date, reason string) (Request, error) {
	if err := generic.ValidateKey("username", username); err != nil {
		return Request{}, err
	}
	if start.IsZero() || end.IsZero() {
		return Request{}, generic.Invalid("startDate", "start and end dates are required")
	}
	if start.After(end) {
		return Request{}, generic.Invalid("startDate", "%s is after endDate %s", start, end)
	}
	if strings.TrimSpace(reason) == "" {
		return Request{}, generic.Invalid("reason", "must not be empty")
	}

	req := Request{
		ID:        r.newID(),
		Username:  username,
		StartDate: start,
		EndDate:   end,
		Reason:    reason,
		Status:    StatusPending,
		Timestamp: r.Clock.Now(),
	}
	saved, err := r.put(ctx, req, 0)
	if err != nil {
		return Request{}, err
	}
	r.Trail.Record(ctx, generic.AuditLeaveSubmitted, username, saved.ID, nil, saved)
	return saved, nil
}

// =============================================================================
// READS
// =============================================================================

// Get returns one request or a NotFoundError.
func (r *Registry) Get(ctx context.Context, username, id string) (Request, error) {
	if err := generic.ValidateKey("username", username); err != nil {
		return Request{}, err
	}
	if err := generic.ValidateKey("requestId", id); err != nil {
		return Request{}, err
	}
	path := generic.LeavePath(username, id)
	rec, ok, err := r.Store.Read(ctx, path)
	if err != nil {
		return Request{}, generic.StoreFailure("read", path, err)
	}
	if !ok {
		return Request{}, &generic.NotFoundError{Kind: "leave request", Key: username + "/" + id}
	}
	return decode(rec)
}

// ListByUser returns a user's requests ordered by creation time.
func (r *Registry) ListByUser(ctx context.Context, username string) ([]Request, error) {
	if err := generic.ValidateKey("username", username); err != nil {
		return nil, err
	}
	return r.list(ctx, generic.LeavePrefix(username))
}

// ListPending returns every pending request across users, oldest first.
func (r *Registry) ListPending(ctx context.Context) ([]Request, error) {
	all, err := r.list(ctx, generic.RootLeaveRequests)
	if err != nil {
		return nil, err
	}
	pending := all[:0]
	for _, req := range all {
		if req.Status == StatusPending {
			pending = append(pending, req)
		}
	}
	return pending, nil
}

func (r *Registry) list(ctx context.Context, prefix string) ([]Request, error) {
	recs, err := r.Store.List(ctx, prefix)
	if err != nil {
		return nil, generic.StoreFailure("list", prefix, err)
	}
	requests := make([]Request, 0, len(recs))
	for _, rec := range recs {
		req, err := decode(rec)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	sort.SliceStable(requests, func(i, j int) bool {
		return requests[i].Timestamp.Before(requests[j].Timestamp)
	})
	return requests, nil
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// Approve moves a request to approved and fills its span with on_leave.
func (r *Registry) Approve(ctx context.Context, username, id string) (Request, error) {
	return r.transition(ctx, username, id, StatusApproved, false)
}

// Reject moves a request to rejected and reverts on_leave days in its span
// to not_marked.
func (r *Registry) Reject(ctx context.Context, username, id string) (Request, error) {
	return r.transition(ctx, username, id, StatusRejected, false)
}

// Reconsider flips an already-decided request. Rejecting this way deletes
// the span's attendance records instead of overwriting them.
func (r *Registry) Reconsider(ctx context.Context, username, id string, target Status) (Request, error) {
	return r.transition(ctx, username, id, target, true)
}

func (r *Registry) transition(ctx context.Context, username, id string, target Status, explicit bool) (Request, error) {
	req, err := r.Get(ctx, username, id)
	if err != nil {
		return Request{}, err
	}
	kind, err := Transition(req.Status, target)
	if err != nil {
		return Request{}, err
	}
	if explicit && kind != KindReconsideration {
		return Request{}, generic.Invalid("status", "request %s is still pending; approve or reject it first", req.key())
	}

	before := req
	now := r.Clock.Now()
	req.Status = target
	req.DecidedBy = generic.ActorFrom(ctx)
	req.DecidedAt = &now

	saved, err := r.put(ctx, req, before.Version)
	if err != nil {
		return Request{}, err
	}
	r.Trail.Record(ctx, auditAction(kind, explicit, target), username, id, before, saved)

	if _, err := r.reconcile(ctx, saved, explicit); err != nil {
		return saved, fmt.Errorf("leave %s is %s but attendance reconciliation failed: %w",
			saved.key(), saved.Status, err)
	}
	return saved, nil
}

func (r *Registry) reconcile(ctx context.Context, req Request, explicit bool) (reconcile.Result, error) {
	span := req.Span()
	switch {
	case req.Status == StatusApproved && explicit:
		return r.Reconciler.ApplyReconsiderApprove(ctx, req.Username, span)
	case req.Status == StatusApproved:
		return r.Reconciler.ApplyApproval(ctx, req.Username, span)
	case explicit:
		return r.Reconciler.ApplyReconsiderReject(ctx, req.Username, span)
	default:
		return r.Reconciler.ApplyRejection(ctx, req.Username, span)
	}
}

func auditAction(kind TransitionKind, explicit bool, target Status) generic.AuditAction {
	if explicit || kind == KindReconsideration {
		return generic.AuditLeaveReconsidered
	}
	if target == StatusApproved {
		return generic.AuditLeaveApproved
	}
	return generic.AuditLeaveRejected
}

// =============================================================================
// ENCODING
// =============================================================================

func (r *Registry) put(ctx context.Context, req Request, version int64) (Request, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return Request{}, fmt.Errorf("encode leave request %s: %w", req.key(), err)
	}
	path := generic.LeavePath(req.Username, req.ID)
	rec, err := r.Store.CompareAndWrite(ctx, path, b, version)
	if err != nil {
		return Request{}, generic.StoreFailure("write", path, err)
	}
	req.Version = rec.Version
	return req, nil
}

func decode(rec generic.Record) (Request, error) {
	var req Request
	if err := json.Unmarshal(rec.Value, &req); err != nil {
		return Request{}, fmt.Errorf("decode leave request at %s: %w", rec.Path, err)
	}
	req.Version = rec.Version
	return req, nil
}
