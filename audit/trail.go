/*
Package audit records reconciliation and payroll mutations.

PURPOSE:
  The Trail turns engine mutations into append-only AuditEntry rows with a
  JSON before/after summary. Entries are never updated or deleted; the
  AuditLog implementations expose no such operation.

FAILURE POLICY:
  Audit is written after the mutation it describes has been committed. If
  the append fails the mutation stands; the failure is logged, not returned.

USAGE:
  trail := audit.NewTrail(log)
  trail.Record(ctx, generic.AuditPayrollSaved, "alice", "2024-04", before, after)
*/
package audit

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"
	"github.com/warp/workforce-engine/generic"
)

type Trail struct {
	Log   generic.AuditLog
	Clock generic.Clock
}

func NewTrail(l generic.AuditLog) *Trail {
	return &Trail{Log: l}
}

// Record appends one entry. before/after are marshalled to JSON; nil means
// "no state" (create or delete). A nil Trail is a no-op so services can run
// without auditing.
func (t *Trail) Record(ctx context.Context, action generic.AuditAction, subject, reference string, before, after any) {
	if t == nil || t.Log == nil {
		return
	}
	entry := generic.AuditEntry{
		ID:        uuid.NewString(),
		Timestamp: t.Clock.Now(),
		Actor:     generic.ActorFrom(ctx),
		Action:    action,
		Subject:   subject,
		Reference: reference,
		Before:    summarize(before),
		After:     summarize(after),
	}
	if err := t.Log.Append(ctx, entry); err != nil {
		log.Printf("[Audit] failed to append %s for %s (%s): %v", action, subject, reference, err)
	}
}

// Query returns entries matching filter in append order.
func (t *Trail) Query(ctx context.Context, filter generic.AuditFilter) ([]generic.AuditEntry, error) {
	if t == nil || t.Log == nil {
		return nil, nil
	}
	return t.Log.Query(ctx, filter)
}

func summarize(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
