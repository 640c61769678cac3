package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/workforce-engine/generic"
)

func TestMemory_VersionsAndCompareAndWrite(t *testing.T) {
	pinned := time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)
	m := NewMemory().WithClock(func() time.Time { return pinned })
	ctx := context.Background()

	rec, err := m.CompareAndWrite(ctx, "leaveRequests/alice/r1", []byte(`{"status":"pending"}`), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Version)
	assert.Equal(t, pinned, rec.UpdatedAt)

	_, err = m.CompareAndWrite(ctx, "leaveRequests/alice/r1", []byte(`{}`), 0)
	var conflict *generic.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, int64(1), conflict.Actual)

	rec, err = m.Write(ctx, "leaveRequests/alice/r1", []byte(`{"status":"approved"}`))
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec.Version)
}

func TestMemory_ReadReturnsCopy(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_, err := m.Write(ctx, "p/a", []byte("abc"))
	require.NoError(t, err)

	rec, _, err := m.Read(ctx, "p/a")
	require.NoError(t, err)
	rec.Value[0] = 'X'

	again, _, _ := m.Read(ctx, "p/a")
	assert.Equal(t, "abc", string(again.Value))
}

func TestMemory_ListPrefix(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	for _, p := range []string{"leaveRequests/bob/r3", "leaveRequests/alice/r2", "leaveRequests/alicea/r9", "leaveRequests/alice/r1"} {
		_, err := m.Write(ctx, p, []byte(`{}`))
		require.NoError(t, err)
	}

	recs, err := m.List(ctx, "leaveRequests/alice")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "leaveRequests/alice/r1", recs[0].Path)
	assert.Equal(t, "leaveRequests/alice/r2", recs[1].Path)

	all, err := m.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestMemory_Subscribe(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	var events []generic.ChangeEvent
	unsubscribe := m.Subscribe("attendance", func(ev generic.ChangeEvent) { events = append(events, ev) })

	_, _ = m.Write(ctx, "attendance/2024-03-10/alice", []byte(`{}`))
	_, _ = m.Write(ctx, "salaries/alice/2024-03", []byte(`{}`))
	_ = m.Delete(ctx, "attendance/2024-03-10/alice")
	_ = m.Delete(ctx, "attendance/2024-03-11/alice") // absent: no event

	require.Len(t, events, 2)
	assert.Equal(t, generic.ChangeWritten, events[0].Kind)
	assert.Equal(t, generic.ChangeDeleted, events[1].Kind)

	unsubscribe()
	unsubscribe()
	_, _ = m.Write(ctx, "attendance/2024-03-12/alice", []byte(`{}`))
	assert.Len(t, events, 2)
}

func TestFaulty_Budget(t *testing.T) {
	f := NewFaulty(NewMemory(), 1)
	ctx := context.Background()

	_, err := f.Write(ctx, "a/1", []byte(`{}`))
	require.NoError(t, err)
	_, err = f.Write(ctx, "a/2", []byte(`{}`))
	assert.True(t, errors.Is(err, ErrInjected))
	assert.True(t, errors.Is(f.Delete(ctx, "a/1"), ErrInjected))

	// Reads still work while writes fail
	_, ok, err := f.Read(ctx, "a/1")
	require.NoError(t, err)
	assert.True(t, ok)

	f.FailReads()
	_, err = f.List(ctx, "a")
	assert.True(t, errors.Is(err, ErrInjected))

	f.Heal()
	_, err = f.Write(ctx, "a/2", []byte(`{}`))
	assert.NoError(t, err)
}

func TestMemoryAuditLog_QueryLimit(t *testing.T) {
	l := NewMemoryAuditLog()
	ctx := context.Background()
	for i, action := range []generic.AuditAction{generic.AuditLeaveSubmitted, generic.AuditLeaveApproved, generic.AuditLeaveSubmitted} {
		require.NoError(t, l.Append(ctx, generic.AuditEntry{ID: string(rune('a' + i)), Action: action, Subject: "alice"}))
	}

	got, err := l.Query(ctx, generic.AuditFilter{Actions: []generic.AuditAction{generic.AuditLeaveSubmitted}})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "c", got[1].ID)

	got, err = l.Query(ctx, generic.AuditFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
}
