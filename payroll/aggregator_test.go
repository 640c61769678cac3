package payroll_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/workforce-engine/attendance"
	"github.com/warp/workforce-engine/audit"
	"github.com/warp/workforce-engine/generic"
	"github.com/warp/workforce-engine/generic/store"
	"github.com/warp/workforce-engine/leave"
	"github.com/warp/workforce-engine/payroll"
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
	agg      *payroll.Aggregator
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		mem: store.NewMemory(),
		log: store.NewMemoryAuditLog(),
		now: time.Date(2024, time.May, 1, 10, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	trail := audit.NewTrail(f.log)
	f.ledger = attendance.NewLedger(f.mem, trail)
	f.ledger.Clock = clock
	f.registry = leave.NewRegistry(f.mem, reconcile.NewEngine(f.ledger, trail), trail)
	f.registry.Clock = clock
	f.agg = payroll.NewAggregator(f.mem, f.ledger, f.registry, trail)
	f.agg.Clock = clock
	return f
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ym(s string) generic.YearMonth { return generic.MustParseYearMonth(s) }

func (f *fixture) approveLeave(t *testing.T, user, start, end string) {
	t.Helper()
	ctx := context.Background()
	req, err := f.registry.Submit(ctx, user, generic.MustParseDate(start), generic.MustParseDate(end), "travel")
	require.NoError(t, err)
	_, err = f.registry.Approve(ctx, user, req.ID)
	require.NoError(t, err)
}

func scenarioB() payroll.Input {
	return payroll.Input{
		BaseSalary:  d("20000"),
		OvertimePay: d("500"),
		Allowances:  []payroll.Allowance{{Name: "travel", Amount: d("1000")}},
	}
}

// =============================================================================
// STATUTORY AND NET
// =============================================================================

func TestPreview_ScenarioB(t *testing.T) {
	f := newFixture(t)

	rec, err := f.agg.Preview(scenarioB())
	require.NoError(t, err)

	assert.True(t, d("2400").Equal(rec.Compliance.PF), "pf = %s", rec.Compliance.PF)
	assert.True(t, d("650").Equal(rec.Compliance.ESI), "esi = %s", rec.Compliance.ESI)
	assert.True(t, d("18450").Equal(rec.NetSalary), "net = %s", rec.NetSalary)
	assert.Equal(t, payroll.PaymentPending, rec.PaymentStatus)
	assert.Equal(t, 0, f.mem.Len(), "preview must not write")
}

func TestStatutory_ESIThreshold(t *testing.T) {
	rates := payroll.DefaultRates()

	tests := []struct {
		base    string
		wantESI string
	}{
		{"20999.99", "682.4996750"},
		{"21000", "682.5"},
		{"21000.01", "0"},
		{"50000", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			c := rates.Statutory(d(tt.base))
			assert.True(t, d(tt.wantESI).Equal(c.ESI), "esi = %s", c.ESI)
			assert.True(t, d(tt.base).Mul(d("0.12")).Equal(c.PF))
			assert.True(t, c.TDS.IsZero())
		})
	}
}

func TestNetSalary_Formula(t *testing.T) {
	f := newFixture(t)

	in := payroll.Input{
		BaseSalary:    d("30000"),
		OvertimeHours: d("10"),
		OvertimePay:   d("1500.50"),
		Allowances: []payroll.Allowance{
			{Name: "hra", Amount: d("5000")},
			{Name: "travel", Amount: d("750.25")},
		},
		Deductions: []payroll.Deduction{
			{Name: "loan", Amount: d("2000")},
			{Name: "canteen", Amount: d("300.75")},
		},
		TDS: d("1200"),
	}
	rec, err := f.agg.Preview(in)
	require.NoError(t, err)

	// 30000 + 1500.50 + 5750.25 - 2300.75 - 3600 - 0
	assert.True(t, d("31350").Equal(rec.NetSalary), "net = %s", rec.NetSalary)
	assert.True(t, rec.Compliance.ESI.IsZero())
	assert.True(t, d("1200").Equal(rec.Compliance.TDS), "tds is carried through")
}

func TestSave_RejectsInvalidInputWithoutWriting(t *testing.T) {
	tests := []struct {
		name  string
		input payroll.Input
		field string
	}{
		{"negative base", payroll.Input{BaseSalary: d("-1")}, "baseSalary"},
		{"negative overtime hours", payroll.Input{BaseSalary: d("100"), OvertimeHours: d("-2")}, "overtimeHours"},
		{"negative overtime pay", payroll.Input{BaseSalary: d("100"), OvertimePay: d("-5")}, "overtimePay"},
		{"net below zero", payroll.Input{
			BaseSalary: d("1000"),
			Deductions: []payroll.Deduction{{Name: "advance", Amount: d("5000")}},
		}, "netSalary"},
		{"unknown status", payroll.Input{BaseSalary: d("100"), PaymentStatus: "bounced"}, "paymentStatus"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			_, err := f.agg.Save(context.Background(), "alice", ym("2024-04"), tt.input)

			var verr *generic.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Equal(t, 0, f.mem.Len())
		})
	}
}

// =============================================================================
// DERIVED COUNTS
// =============================================================================

func TestLeaveDays_ClipsToMonth(t *testing.T) {
	// GIVEN: an approved request straddling January and February
	f := newFixture(t)
	ctx := context.Background()
	f.approveLeave(t, "u1", "2024-01-28", "2024-02-03")

	// WHEN/THEN: each month counts only its own days
	jan, err := f.agg.LeaveDays(ctx, "u1", ym("2024-01"))
	require.NoError(t, err)
	assert.Equal(t, 4, jan)

	feb, err := f.agg.LeaveDays(ctx, "u1", ym("2024-02"))
	require.NoError(t, err)
	assert.Equal(t, 3, feb)

	mar, err := f.agg.LeaveDays(ctx, "u1", ym("2024-03"))
	require.NoError(t, err)
	assert.Equal(t, 0, mar)
}

func TestLeaveDays_IgnoresPendingAndRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.approveLeave(t, "u1", "2024-04-01", "2024-04-02")

	_, err := f.registry.Submit(ctx, "u1", generic.MustParseDate("2024-04-10"), generic.MustParseDate("2024-04-12"), "pending")
	require.NoError(t, err)
	rejected, err := f.registry.Submit(ctx, "u1", generic.MustParseDate("2024-04-20"), generic.MustParseDate("2024-04-21"), "no")
	require.NoError(t, err)
	_, err = f.registry.Reject(ctx, "u1", rejected.ID)
	require.NoError(t, err)

	days, err := f.agg.LeaveDays(ctx, "u1", ym("2024-04"))
	require.NoError(t, err)
	assert.Equal(t, 2, days)
}

func TestWorkingDays_CountsPresentOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for date, status := range map[string]attendance.Status{
		"2024-04-01": attendance.StatusPresent,
		"2024-04-02": attendance.StatusPresent,
		"2024-04-03": attendance.StatusAbsent,
		"2024-04-04": attendance.StatusOnLeave,
		"2024-05-01": attendance.StatusPresent,
	} {
		_, err := f.ledger.Mark(ctx, "alice", generic.MustParseDate(date), status)
		require.NoError(t, err)
	}

	days, err := f.agg.WorkingDays(ctx, "alice", ym("2024-04"))
	require.NoError(t, err)
	assert.Equal(t, 2, days)
}

// =============================================================================
// SAVE / GET
// =============================================================================

func TestSave_SnapshotsCounts(t *testing.T) {
	// GIVEN: two present days and an approved 3-day leave in April
	f := newFixture(t)
	ctx := context.Background()
	for _, date := range []string{"2024-04-01", "2024-04-02"} {
		_, err := f.ledger.Mark(ctx, "alice", generic.MustParseDate(date), attendance.StatusPresent)
		require.NoError(t, err)
	}
	f.approveLeave(t, "alice", "2024-04-10", "2024-04-12")

	// WHEN: payroll is saved
	saved, err := f.agg.Save(ctx, "alice", ym("2024-04"), scenarioB())
	require.NoError(t, err)

	// THEN: counts are captured and the record reads back unchanged
	assert.Equal(t, 2, saved.AttendanceDays)
	assert.Equal(t, 3, saved.LeaveDays)
	assert.Equal(t, f.now, saved.CalculatedAt)
	assert.True(t, d("18450").Equal(saved.NetSalary))

	got, err := f.agg.Get(ctx, "alice", ym("2024-04"))
	require.NoError(t, err)
	assert.Equal(t, saved.AttendanceDays, got.AttendanceDays)
	assert.True(t, saved.NetSalary.Equal(got.NetSalary))
	assert.Equal(t, "2024-04", got.Period.String())
}

func TestSave_IsNotLive(t *testing.T) {
	// GIVEN: a saved record with one present day
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.ledger.Mark(ctx, "alice", generic.MustParseDate("2024-04-01"), attendance.StatusPresent)
	require.NoError(t, err)
	_, err = f.agg.Save(ctx, "alice", ym("2024-04"), scenarioB())
	require.NoError(t, err)

	// WHEN: attendance changes afterwards
	_, err = f.ledger.Mark(ctx, "alice", generic.MustParseDate("2024-04-02"), attendance.StatusPresent)
	require.NoError(t, err)
	f.approveLeave(t, "alice", "2024-04-15", "2024-04-16")

	// THEN: the saved record still holds the old counts
	got, err := f.agg.Get(ctx, "alice", ym("2024-04"))
	require.NoError(t, err)
	assert.Equal(t, 1, got.AttendanceDays)
	assert.Equal(t, 0, got.LeaveDays)

	// AND: re-saving picks up the change
	resaved, err := f.agg.Save(ctx, "alice", ym("2024-04"), scenarioB())
	require.NoError(t, err)
	assert.Equal(t, 2, resaved.AttendanceDays)
	assert.Equal(t, 2, resaved.LeaveDays)
}

func TestGet_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.agg.Get(context.Background(), "ghost", ym("2024-04"))

	assert.True(t, generic.IsNotFound(err))
}

// =============================================================================
// PAYMENT STATUS
// =============================================================================

func TestBulkMarkPaid_ScenarioC(t *testing.T) {
	// GIVEN: only alice has an April record
	f := newFixture(t)
	ctx := context.Background()
	saved, err := f.agg.Save(ctx, "alice", ym("2024-04"), scenarioB())
	require.NoError(t, err)
	f.now = f.now.Add(24 * time.Hour)

	// WHEN
	result, err := f.agg.BulkMarkPaid(ctx, []string{"alice", "bob"}, ym("2024-04"))

	// THEN: alice updated, bob skipped, no error
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, result.Updated)
	assert.Equal(t, []string{"bob"}, result.Skipped)

	got, err := f.agg.Get(ctx, "alice", ym("2024-04"))
	require.NoError(t, err)
	assert.Equal(t, payroll.PaymentPaid, got.PaymentStatus)
	assert.Equal(t, f.now, got.CalculatedAt)
	assert.True(t, saved.NetSalary.Equal(got.NetSalary), "money fields untouched")
	assert.True(t, saved.Compliance.PF.Equal(got.Compliance.PF))
	assert.Equal(t, saved.Allowances[0].Name, got.Allowances[0].Name)

	_, err = f.agg.Get(ctx, "bob", ym("2024-04"))
	assert.True(t, generic.IsNotFound(err), "bob gets no record")
}

func TestBulkMarkPaid_InvalidUsernameWritesNothing(t *testing.T) {
	// GIVEN: alice has an April record
	f := newFixture(t)
	ctx := context.Background()
	saved, err := f.agg.Save(ctx, "alice", ym("2024-04"), scenarioB())
	require.NoError(t, err)

	// WHEN: the batch carries a malformed username after alice
	result, err := f.agg.BulkMarkPaid(ctx, []string{"alice", "bo/b"}, ym("2024-04"))

	// THEN: validation fails before any write
	require.Error(t, err)
	assert.True(t, generic.IsValidation(err))
	assert.Empty(t, result.Updated)

	got, err := f.agg.Get(ctx, "alice", ym("2024-04"))
	require.NoError(t, err)
	assert.Equal(t, payroll.PaymentPending, got.PaymentStatus)
	assert.Equal(t, saved.Version, got.Version)
}

func TestBulkMarkPaid_RepeatedUsernameOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.agg.Save(ctx, "alice", ym("2024-04"), scenarioB())
	require.NoError(t, err)

	result, err := f.agg.BulkMarkPaid(ctx, []string{"alice", "bob", "alice", "bob"}, ym("2024-04"))

	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, result.Updated)
	assert.Equal(t, []string{"bob"}, result.Skipped)

	subject := "alice"
	entries, err := f.log.Query(ctx, generic.AuditFilter{
		Subject: &subject,
		Actions: []generic.AuditAction{generic.AuditPayrollStatusSet},
	})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestBulkMarkPaid_StoreFailureStopsBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.agg.Save(ctx, "alice", ym("2024-04"), scenarioB())
	require.NoError(t, err)

	faulty := store.NewFaulty(f.mem, -1)
	faulty.FailReads()
	f.agg.Store = faulty

	result, err := f.agg.BulkMarkPaid(ctx, []string{"alice"}, ym("2024-04"))

	require.Error(t, err)
	assert.True(t, generic.IsRetryable(err))
	assert.Empty(t, result.Updated)
}

func TestSetPaymentStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.agg.Save(ctx, "alice", ym("2024-04"), scenarioB())
	require.NoError(t, err)

	rec, err := f.agg.SetPaymentStatus(ctx, "alice", ym("2024-04"), payroll.PaymentDisputed)
	require.NoError(t, err)
	assert.Equal(t, payroll.PaymentDisputed, rec.PaymentStatus)

	_, err = f.agg.SetPaymentStatus(ctx, "alice", ym("2024-04"), "void")
	assert.True(t, generic.IsValidation(err))

	_, err = f.agg.SetPaymentStatus(ctx, "bob", ym("2024-04"), payroll.PaymentPaid)
	assert.True(t, generic.IsNotFound(err))
}

func TestSave_Audited(t *testing.T) {
	f := newFixture(t)
	ctx := generic.WithActor(context.Background(), "hr-admin")

	_, err := f.agg.Save(ctx, "alice", ym("2024-04"), scenarioB())
	require.NoError(t, err)
	_, err = f.agg.BulkMarkPaid(ctx, []string{"alice"}, ym("2024-04"))
	require.NoError(t, err)

	subject := "alice"
	entries, err := f.log.Query(ctx, generic.AuditFilter{
		Subject: &subject,
		Actions: []generic.AuditAction{generic.AuditPayrollSaved, generic.AuditPayrollStatusSet},
	})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, generic.AuditPayrollSaved, entries[0].Action)
	assert.Equal(t, "2024-04", entries[0].Reference)
	assert.Equal(t, "hr-admin", entries[0].Actor)
	assert.Empty(t, entries[0].Before)
	assert.Contains(t, entries[1].After, "paid")
}

func TestParseRates(t *testing.T) {
	r, err := payroll.ParseRates("0.10", "", "25000")
	require.NoError(t, err)
	assert.True(t, d("0.10").Equal(r.PF))
	assert.True(t, d("0.0325").Equal(r.ESI))
	assert.True(t, d("25000").Equal(r.ESIThreshold))

	_, err = payroll.ParseRates("abc", "", "")
	assert.True(t, generic.IsValidation(err))

	_, err = payroll.ParseRates("", "-0.01", "")
	assert.True(t, generic.IsValidation(err))
}
