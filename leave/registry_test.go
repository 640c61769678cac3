package leave_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/workforce-engine/attendance"
	"github.com/warp/workforce-engine/audit"
	"github.com/warp/workforce-engine/generic"
	"github.com/warp/workforce-engine/generic/store"
	"github.com/warp/workforce-engine/leave"
	"github.com/warp/workforce-engine/reconcile"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type fixture struct {
	mem      *store.Memory
	log      *store.MemoryAuditLog
	ledger   *attendance.Ledger
	registry *leave.Registry
	now      time.Time
	seq      int
}

func newFixture(t *testing.T, rs generic.RecordStore) *fixture {
	t.Helper()
	f := &fixture{
		log: store.NewMemoryAuditLog(),
		now: time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC),
	}
	if rs == nil {
		f.mem = store.NewMemory()
		rs = f.mem
	}
	clock := func() time.Time { return f.now }
	trail := audit.NewTrail(f.log)
	f.ledger = attendance.NewLedger(rs, trail)
	f.ledger.Clock = clock
	f.registry = leave.NewRegistry(rs, reconcile.NewEngine(f.ledger, trail), trail)
	f.registry.Clock = clock
	f.registry.NewID = func() string {
		f.seq++
		return fmt.Sprintf("req-%d", f.seq)
	}
	return f
}

func day(s string) generic.Date { return generic.MustParseDate(s) }

func (f *fixture) statuses(t *testing.T, user string, days ...string) []attendance.Status {
	t.Helper()
	out := make([]attendance.Status, len(days))
	for i, d := range days {
		rec, err := f.ledger.Get(context.Background(), user, day(d))
		require.NoError(t, err)
		out[i] = rec.Status
	}
	return out
}

func (f *fixture) stored(t *testing.T, user, d string) bool {
	t.Helper()
	rec, err := f.ledger.Get(context.Background(), user, day(d))
	require.NoError(t, err)
	return rec.Stored
}

var march = []string{"2024-03-10", "2024-03-11", "2024-03-12"}

func onLeave(n int) []attendance.Status {
	out := make([]attendance.Status, n)
	for i := range out {
		out[i] = attendance.StatusOnLeave
	}
	return out
}

func notMarked(n int) []attendance.Status {
	out := make([]attendance.Status, n)
	for i := range out {
		out[i] = attendance.StatusNotMarked
	}
	return out
}

// =============================================================================
// SUBMIT
// =============================================================================

func TestSubmit_CreatesPendingRequest(t *testing.T) {
	f := newFixture(t, nil)

	req, err := f.registry.Submit(context.Background(), "alice", day("2024-03-10"), day("2024-03-12"), "travel")

	require.NoError(t, err)
	assert.Equal(t, "req-1", req.ID)
	assert.Equal(t, leave.StatusPending, req.Status)
	assert.Equal(t, f.now, req.Timestamp)

	got, err := f.registry.Get(context.Background(), "alice", "req-1")
	require.NoError(t, err)
	assert.Equal(t, req.StartDate, got.StartDate)
	assert.Equal(t, req.EndDate, got.EndDate)
	assert.Equal(t, "travel", got.Reason)
}

func TestSubmit_ValidationHappensBeforeWrite(t *testing.T) {
	tests := []struct {
		name       string
		start, end string
		reason     string
	}{
		{"start after end", "2024-03-12", "2024-03-10", "travel"},
		{"empty reason", "2024-03-10", "2024-03-12", ""},
		{"blank reason", "2024-03-10", "2024-03-12", "   "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			_, err := f.registry.Submit(context.Background(), "alice", day(tt.start), day(tt.end), tt.reason)

			require.Error(t, err)
			assert.ErrorIs(t, err, generic.ErrValidation)
			assert.Equal(t, 0, f.mem.Len())
		})
	}
}

func TestSubmit_SingleDaySpanAllowed(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.registry.Submit(context.Background(), "alice", day("2024-03-10"), day("2024-03-10"), "doctor")
	assert.NoError(t, err)
}

// =============================================================================
// SCENARIO A - approve, then reject, then the reconsider-reject variant
// =============================================================================

func TestScenarioA_ApproveThenRejectOverwrites(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	req, err := f.registry.Submit(ctx, "alice", day("2024-03-10"), day("2024-03-12"), "travel")
	require.NoError(t, err)

	approved, err := f.registry.Approve(ctx, "alice", req.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, approved.Status)
	assert.Equal(t, onLeave(3), f.statuses(t, "alice", march...))

	rejected, err := f.registry.Reject(ctx, "alice", req.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusRejected, rejected.Status)
	assert.Equal(t, notMarked(3), f.statuses(t, "alice", march...))
	for _, d := range march {
		assert.True(t, f.stored(t, "alice", d), "reject overwrites to not_marked, record remains")
	}
}

func TestScenarioA_ReconsiderRejectDeletes(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	req, err := f.registry.Submit(ctx, "alice", day("2024-03-10"), day("2024-03-12"), "travel")
	require.NoError(t, err)
	_, err = f.registry.Approve(ctx, "alice", req.ID)
	require.NoError(t, err)

	rejected, err := f.registry.Reconsider(ctx, "alice", req.ID, leave.StatusRejected)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusRejected, rejected.Status)
	assert.Equal(t, notMarked(3), f.statuses(t, "alice", march...))
	for _, d := range march {
		assert.False(t, f.stored(t, "alice", d), "reconsider-reject leaves no record")
	}
}

func TestReconsider_RejectedBackToApproved(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	req, err := f.registry.Submit(ctx, "alice", day("2024-03-10"), day("2024-03-12"), "travel")
	require.NoError(t, err)
	_, err = f.registry.Reject(ctx, "alice", req.ID)
	require.NoError(t, err)
	_, err = f.ledger.Mark(ctx, "alice", day("2024-03-11"), attendance.StatusPresent)
	require.NoError(t, err)

	approved, err := f.registry.Reconsider(ctx, "alice", req.ID, leave.StatusApproved)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, approved.Status)
	assert.Equal(t,
		[]attendance.Status{attendance.StatusOnLeave, attendance.StatusPresent, attendance.StatusOnLeave},
		f.statuses(t, "alice", march...))
}

func TestReconsider_PendingRequestRejected(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	req, err := f.registry.Submit(ctx, "alice", day("2024-03-10"), day("2024-03-12"), "travel")
	require.NoError(t, err)

	_, err = f.registry.Reconsider(ctx, "alice", req.ID, leave.StatusApproved)

	assert.ErrorIs(t, err, generic.ErrValidation)
	got, _ := f.registry.Get(ctx, "alice", req.ID)
	assert.Equal(t, leave.StatusPending, got.Status)
	assert.Equal(t, notMarked(3), f.statuses(t, "alice", march...))
}

func TestReconsider_CannotReturnToPending(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	req, _ := f.registry.Submit(ctx, "alice", day("2024-03-10"), day("2024-03-12"), "travel")
	_, _ = f.registry.Approve(ctx, "alice", req.ID)

	_, err := f.registry.Reconsider(ctx, "alice", req.ID, leave.StatusPending)
	assert.ErrorIs(t, err, generic.ErrValidation)
}

// =============================================================================
// TRANSITION TABLE
// =============================================================================

func TestTransition_Table(t *testing.T) {
	tests := []struct {
		from, to leave.Status
		kind     leave.TransitionKind
		wantErr  bool
	}{
		{leave.StatusPending, leave.StatusApproved, leave.KindDecision, false},
		{leave.StatusPending, leave.StatusRejected, leave.KindDecision, false},
		{leave.StatusApproved, leave.StatusRejected, leave.KindReconsideration, false},
		{leave.StatusRejected, leave.StatusApproved, leave.KindReconsideration, false},
		{leave.StatusApproved, leave.StatusApproved, leave.KindReconsideration, false},
		{leave.StatusApproved, leave.StatusPending, "", true},
		{leave.StatusPending, leave.StatusPending, "", true},
		{leave.Status("cancelled"), leave.StatusApproved, "", true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			kind, err := leave.Transition(tt.from, tt.to)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kind, kind)
		})
	}
}

// =============================================================================
// ERRORS AND ORDERING
// =============================================================================

func TestApprove_MissingRequestIsNotFound(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.registry.Approve(context.Background(), "alice", "nope")

	assert.True(t, generic.IsNotFound(err))
}

func TestApprove_StatusCommittedEvenIfReconciliationFails(t *testing.T) {
	// GIVEN: A store that accepts the status write and one attendance write
	// WHEN: Approving a three-day request
	// THEN: The request is approved, one day is on_leave, the error is
	//       returned, and approving again finishes the span
	mem := store.NewMemory()
	faulty := store.NewFaulty(mem, -1)
	f := newFixture(t, faulty)
	ctx := context.Background()

	req, err := f.registry.Submit(ctx, "alice", day("2024-03-10"), day("2024-03-12"), "travel")
	require.NoError(t, err)

	faulty.Allow(2) // status write + first day
	approved, err := f.registry.Approve(ctx, "alice", req.ID)

	require.Error(t, err)
	var spanErr *reconcile.SpanError
	require.ErrorAs(t, err, &spanErr)
	assert.Equal(t, day("2024-03-11"), spanErr.Date)
	assert.Equal(t, leave.StatusApproved, approved.Status)

	got, err := f.registry.Get(ctx, "alice", req.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, got.Status)
	assert.Equal(t,
		[]attendance.Status{attendance.StatusOnLeave, attendance.StatusNotMarked, attendance.StatusNotMarked},
		f.statuses(t, "alice", march...))

	faulty.Heal()
	_, err = f.registry.Approve(ctx, "alice", req.ID)
	require.NoError(t, err)
	assert.Equal(t, onLeave(3), f.statuses(t, "alice", march...))
}

func TestTransition_StaleVersionDetected(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	req, err := f.registry.Submit(ctx, "alice", day("2024-03-10"), day("2024-03-12"), "travel")
	require.NoError(t, err)

	// Another admin rewrites the request between our read and write.
	conflicting := *f.registry
	conflicting.Store = &racingStore{RecordStore: f.mem, path: generic.LeavePath("alice", req.ID)}

	_, err = conflicting.Approve(ctx, "alice", req.ID)
	assert.ErrorIs(t, err, generic.ErrConcurrentModification)
}

// racingStore bumps the record's version right after it is read.
type racingStore struct {
	generic.RecordStore
	path  string
	raced bool
}

func (s *racingStore) Read(ctx context.Context, path string) (generic.Record, bool, error) {
	rec, ok, err := s.RecordStore.Read(ctx, path)
	if path == s.path && !s.raced {
		s.raced = true
		_, _ = s.RecordStore.Write(ctx, path, rec.Value)
	}
	return rec, ok, err
}

// =============================================================================
// LISTING AND AUDIT
// =============================================================================

func TestListByUser_AndPending(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	r1, _ := f.registry.Submit(ctx, "alice", day("2024-03-10"), day("2024-03-12"), "travel")
	f.now = f.now.Add(time.Minute)
	_, _ = f.registry.Submit(ctx, "alice", day("2024-04-01"), day("2024-04-02"), "family")
	f.now = f.now.Add(time.Minute)
	_, _ = f.registry.Submit(ctx, "bob", day("2024-03-20"), day("2024-03-20"), "medical")
	_, err := f.registry.Approve(ctx, "alice", r1.ID)
	require.NoError(t, err)

	mine, err := f.registry.ListByUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "travel", mine[0].Reason)
	assert.Equal(t, "family", mine[1].Reason)

	pending, err := f.registry.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "family", pending[0].Reason)
	assert.Equal(t, "bob", pending[1].Username)
}

func TestTransitions_AreAudited(t *testing.T) {
	f := newFixture(t, nil)
	ctx := generic.WithActor(context.Background(), "hr-admin")

	req, _ := f.registry.Submit(ctx, "alice", day("2024-03-10"), day("2024-03-12"), "travel")
	_, err := f.registry.Approve(ctx, "alice", req.ID)
	require.NoError(t, err)
	_, err = f.registry.Reject(ctx, "alice", req.ID)
	require.NoError(t, err)

	entries, err := f.log.Query(ctx, generic.AuditFilter{Actions: []generic.AuditAction{
		generic.AuditLeaveSubmitted, generic.AuditLeaveApproved, generic.AuditLeaveReconsidered,
	}})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, generic.AuditLeaveSubmitted, entries[0].Action)
	assert.Equal(t, generic.AuditLeaveApproved, entries[1].Action)
	assert.Equal(t, generic.AuditLeaveReconsidered, entries[2].Action)
	assert.Equal(t, "hr-admin", entries[2].Actor)

	got, _ := f.registry.Get(ctx, "alice", req.ID)
	assert.Equal(t, "hr-admin", got.DecidedBy)
}
