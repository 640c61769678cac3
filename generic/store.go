/*
store.go - Persistence contract between the engine and the record store

PURPOSE:
  The back office keeps all state in a keyed, hierarchical store. The engine
  consumes it through RecordStore so the backing database can change (or gain
  transactions) without touching reconciliation or payroll logic.

KEY INTERFACES:
  RecordStore: read / write / compare-and-write / delete / list / subscribe
  AuditLog:    append-only log of engine mutations

VERSIONS:
  Every record carries a Version that the store bumps on each write. A
  caller that read version N can CompareAndWrite with N and learns about a
  lost update via ErrConcurrentModification instead of silently clobbering.
  Plain Write stays last-writer-wins.

SUBSCRIPTIONS:
  Subscribe is for surrounding UI layers. Reconciliation and payroll use
  request/response calls only.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go:    SQLite, polling watcher for Subscribe
  - generic/store/memory.go:   In-memory for testing

SEE ALSO:
  - paths.go: logical paths used by the engine
*/
package generic

import (
	"context"
	"time"
)

// =============================================================================
// RECORD STORE
// =============================================================================

// Record is one stored node.
type Record struct {
	Path      string
	Value     []byte // JSON document
	Version   int64  // starts at 1, bumped on every write
	UpdatedAt time.Time
}

type ChangeKind string

const (
	ChangeWritten ChangeKind = "written"
	ChangeDeleted ChangeKind = "deleted"
)

// ChangeEvent is delivered to subscribers for every change at or under the
// subscribed path.
type ChangeEvent struct {
	Path    string
	Kind    ChangeKind
	Version int64
}

// RecordStore is the keyed store the engine reads and writes.
type RecordStore interface {
	// Read returns the record at path. ok is false when nothing is stored there.
	Read(ctx context.Context, path string) (rec Record, ok bool, err error)

	// Write fully overwrites the node at path.
	Write(ctx context.Context, path string, value []byte) (Record, error)

	// CompareAndWrite overwrites only if the stored version equals version.
	// version 0 means "must not exist yet". Mismatch returns ErrConcurrentModification.
	CompareAndWrite(ctx context.Context, path string, value []byte, version int64) (Record, error)

	// Delete removes the node at path. Deleting a missing node is not an error.
	Delete(ctx context.Context, path string) error

	// List returns every record strictly under prefix, ordered by path.
	List(ctx context.Context, prefix string) ([]Record, error)

	// Subscribe calls fn on changes at or under path until unsubscribe is called.
	Subscribe(path string, fn func(ChangeEvent)) (unsubscribe func())
}

// =============================================================================
// AUDIT LOG - Separate from records, tracks who did what when
// =============================================================================

// AuditEntry records who did what when. Never mutated once appended.
type AuditEntry struct {
	ID        string
	Timestamp time.Time
	Actor     string
	Action    AuditAction
	Subject   string // username the mutation concerns
	Reference string // request id, year-month, span
	Before    string // JSON summary, empty for creates
	After     string // JSON summary, empty for deletes
}

type AuditAction string

const (
	AuditAttendanceMarked  AuditAction = "attendance_marked"
	AuditLeaveSubmitted    AuditAction = "leave_submitted"
	AuditLeaveApproved     AuditAction = "leave_approved"
	AuditLeaveRejected     AuditAction = "leave_rejected"
	AuditLeaveReconsidered AuditAction = "leave_reconsidered"
	AuditReconciliation    AuditAction = "reconciliation_applied"
	AuditPayrollSaved      AuditAction = "payroll_saved"
	AuditPayrollStatusSet  AuditAction = "payroll_status_changed"
)

// AuditLog stores audit entries. Append-only: no update or delete exists.
type AuditLog interface {
	Append(ctx context.Context, entry AuditEntry) error
	Query(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

// AuditFilter narrows a query. Nil/empty fields match everything.
type AuditFilter struct {
	Subject *string
	Actor   *string
	Actions []AuditAction
	From    *time.Time
	To      *time.Time
	Limit   int
}

// Matches reports whether e passes the filter (ignores Limit).
func (f AuditFilter) Matches(e AuditEntry) bool {
	if f.Subject != nil && e.Subject != *f.Subject {
		return false
	}
	if f.Actor != nil && e.Actor != *f.Actor {
		return false
	}
	if len(f.Actions) > 0 {
		found := false
		for _, a := range f.Actions {
			if a == e.Action {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.From != nil && e.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && e.Timestamp.After(*f.To) {
		return false
	}
	return true
}
