/*
Package generic provides the domain-agnostic plumbing of the workforce engine.

PURPOSE:
  Calendar arithmetic, the record-store contract, logical paths, the error
  taxonomy and the audit types shared by attendance, leave, reconcile and
  payroll. Nothing here knows what a leave request or a salary is.

KEY CONCEPTS IN THIS FILE (types.go):
  - Logical paths: where each entity lives in the hierarchical store
  - Keys: usernames and ids are path segments and must be valid as such
  - Actor: who is performing the current operation (request-scoped)

PATHS:
  attendance/{date}/{username}          AttendanceRecord
  leaveRequests/{username}/{requestId}  LeaveRequest
  salaries/{username}/{yearMonth}       PayrollRecord

SEE ALSO:
  - store.go: RecordStore interface
  - time.go, period.go: Date, Span, YearMonth
*/
package generic

import (
	"context"
	"strings"
)

// =============================================================================
// LOGICAL PATHS
// =============================================================================

const (
	RootAttendance    = "attendance"
	RootLeaveRequests = "leaveRequests"
	RootSalaries      = "salaries"
)

// JoinPath joins segments with "/".
func JoinPath(segments ...string) string { return strings.Join(segments, "/") }

func AttendancePath(date Date, username string) string {
	return JoinPath(RootAttendance, date.String(), username)
}

func LeavePath(username, requestID string) string {
	return JoinPath(RootLeaveRequests, username, requestID)
}

func LeavePrefix(username string) string { return JoinPath(RootLeaveRequests, username) }

func SalaryPath(username string, ym YearMonth) string {
	return JoinPath(RootSalaries, username, ym.String())
}

// ValidateKey checks that s can be used as a single path segment.
func ValidateKey(field, s string) error {
	if strings.TrimSpace(s) == "" {
		return Invalid(field, "must not be empty")
	}
	if strings.ContainsAny(s, "/") {
		return Invalid(field, "must not contain '/'")
	}
	return nil
}

// =============================================================================
// ACTOR - Who is performing the operation
// =============================================================================

// SystemActor is used when no actor was attached to the context.
const SystemActor = "system"

type actorKey struct{}

// WithActor attaches the acting admin to ctx for audit entries.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the actor attached to ctx, or SystemActor.
func ActorFrom(ctx context.Context) string {
	if a, ok := ctx.Value(actorKey{}).(string); ok && a != "" {
		return a
	}
	return SystemActor
}
