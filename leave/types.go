// Package leave owns the leave-request lifecycle and drives reconciliation.
package leave

import (
	"time"

	"github.com/warp/workforce-engine/generic"
)

// =============================================================================
// STATUS - Closed enum with explicit transitions
// =============================================================================

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

func (s Status) Valid() bool {
	return s == StatusPending || s == StatusApproved || s == StatusRejected
}

// Decided reports whether an admin has approved or rejected the request.
func (s Status) Decided() bool { return s == StatusApproved || s == StatusRejected }

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", generic.Invalid("status", "unknown leave status %q", s)
	}
	return st, nil
}

// TransitionKind classifies a status change.
type TransitionKind string

const (
	// KindDecision is pending -> approved/rejected.
	KindDecision TransitionKind = "decision"
	// KindReconsideration is a change to an already-decided request,
	// including re-applying the same decision.
	KindReconsideration TransitionKind = "reconsideration"
)

// Transition validates from -> to. Nothing may return to pending.
//
//	pending  -> approved | rejected          decision
//	approved -> approved | rejected          reconsideration
//	rejected -> approved | rejected          reconsideration
func Transition(from, to Status) (TransitionKind, error) {
	if !from.Valid() {
		return "", generic.Invalid("status", "unknown current status %q", from)
	}
	if !to.Decided() {
		return "", generic.Invalid("status", "cannot move a request to %q", to)
	}
	if from == StatusPending {
		return KindDecision, nil
	}
	return KindReconsideration, nil
}

// =============================================================================
// REQUEST
// =============================================================================

// Request is a leave request stored at leaveRequests/{username}/{id}.
type Request struct {
	ID        string       `json:"id"`
	Username  string       `json:"username"`
	StartDate generic.Date `json:"startDate"`
	EndDate   generic.Date `json:"endDate"`
	Reason    string       `json:"reason"`
	Status    Status       `json:"status"`
	Timestamp time.Time    `json:"timestamp"`
	DecidedBy string       `json:"decidedBy,omitempty"`
	DecidedAt *time.Time   `json:"decidedAt,omitempty"`

	Version int64 `json:"-"`
}

// Span returns the inclusive date span of the request.
func (r Request) Span() generic.Span { return generic.Span{Start: r.StartDate, End: r.EndDate} }

// DaysIn counts the request's days that fall within ym, clipped at the
// month boundaries.
func (r Request) DaysIn(ym generic.YearMonth) int {
	clipped, ok := r.Span().Intersect(ym.Span())
	if !ok {
		return 0
	}
	return clipped.Len()
}

func (r Request) key() string { return r.Username + "/" + r.ID }
