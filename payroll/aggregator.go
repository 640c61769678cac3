/*
aggregator.go - Monthly payroll computation

PURPOSE:
  For one user and one calendar month, combines attendance (present days),
  approved leave (days clipped to the month) and admin-entered salary inputs
  into a PayrollRecord with PF/ESI and net pay.

SNAPSHOT, NOT LIVE:
  Save captures AttendanceDays and LeaveDays at save time. A later change
  to attendance or leave does not touch a saved record until an admin saves
  the period again. Reads never recompute.

VALIDATION:
  Negative base salary, overtime hours or overtime pay, and any input whose
  net salary would be negative, are rejected with a ValidationError before
  anything is read or written.

ISOLATION:
  The attendance and leave reads feeding Save are independent calls; they
  are not joined in a transaction.

SEE ALSO:
  - rates.go: statutory formulas
  - leave/types.go: Request.DaysIn clipping
*/
package payroll

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/workforce-engine/attendance"
	"github.com/warp/workforce-engine/audit"
	"github.com/warp/workforce-engine/generic"
	"github.com/warp/workforce-engine/leave"
)

// LeaveSource lists a user's leave requests.
type LeaveSource interface {
	ListByUser(ctx context.Context, username string) ([]leave.Request, error)
}

type Aggregator struct {
	Store      generic.RecordStore
	Attendance *attendance.Ledger
	Leave      LeaveSource
	Rates      Rates
	Trail      *audit.Trail // optional
	Clock      generic.Clock
}

func NewAggregator(store generic.RecordStore, ledger *attendance.Ledger, leaves LeaveSource, trail *audit.Trail) *Aggregator {
	return &Aggregator{
		Store:      store,
		Attendance: ledger,
		Leave:      leaves,
		Rates:      DefaultRates(),
		Trail:      trail,
	}
}

// =============================================================================
// DERIVED COUNTS
// =============================================================================

// WorkingDays counts days in the month marked present.
func (a *Aggregator) WorkingDays(ctx context.Context, username string, ym generic.YearMonth) (int, error) {
	summary, err := a.Attendance.MonthSummary(ctx, username, ym)
	if err != nil {
		return 0, err
	}
	return summary.Present(), nil
}

// LeaveDays sums, over the user's approved requests, the days that fall in
// the month. Requests straddling a month boundary are clipped.
func (a *Aggregator) LeaveDays(ctx context.Context, username string, ym generic.YearMonth) (int, error) {
	requests, err := a.Leave.ListByUser(ctx, username)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, req := range requests {
		if req.Status != leave.StatusApproved {
			continue
		}
		total += req.DaysIn(ym)
	}
	return total, nil
}

// =============================================================================
// COMPUTE
// =============================================================================

// Preview validates in and computes statutory amounts and net pay without
// reading or writing anything. Attendance/leave counts are left zero.
func (a *Aggregator) Preview(in Input) (Record, error) {
	if err := validateInput(in); err != nil {
		return Record{}, err
	}
	status := in.PaymentStatus
	if status == "" {
		status = PaymentPending
	}
	rec := Record{
		BaseSalary:    in.BaseSalary,
		OvertimeHours: in.OvertimeHours,
		OvertimePay:   in.OvertimePay,
		Allowances:    nonNilAllowances(in.Allowances),
		Deductions:    nonNilDeductions(in.Deductions),
		Compliance:    a.Rates.Statutory(in.BaseSalary),
		PaymentStatus: status,
	}
	rec.Compliance.TDS = in.TDS
	rec.NetSalary = NetSalary(rec)
	if rec.NetSalary.IsNegative() {
		return Record{}, generic.Invalid("netSalary", "computed net salary %s is negative", rec.NetSalary)
	}
	return rec, nil
}

func validateInput(in Input) error {
	for _, f := range []struct {
		name string
		v    decimal.Decimal
	}{
		{"baseSalary", in.BaseSalary},
		{"overtimeHours", in.OvertimeHours},
		{"overtimePay", in.OvertimePay},
	} {
		if f.v.IsNegative() {
			return generic.Invalid(f.name, "must not be negative, got %s", f.v)
		}
	}
	if in.TDS.IsNegative() {
		return generic.Invalid("tds", "must not be negative, got %s", in.TDS)
	}
	if in.PaymentStatus != "" && !in.PaymentStatus.Valid() {
		return generic.Invalid("paymentStatus", "unknown payment status %q", in.PaymentStatus)
	}
	return nil
}

// =============================================================================
// PERSISTENCE
// =============================================================================

// Save computes and stores the period's record, snapshotting attendance and
// leave counts. Any previous record for the period is superseded.
func (a *Aggregator) Save(ctx context.Context, username string, ym generic.YearMonth, in Input) (Record, error) {
	if err := generic.ValidateKey("username", username); err != nil {
		return Record{}, err
	}
	if ym.IsZero() {
		return Record{}, generic.Invalid("yearMonth", "must be set")
	}
	rec, err := a.Preview(in)
	if err != nil {
		return Record{}, err
	}
	rec.Username = username
	rec.Period = ym

	if rec.AttendanceDays, err = a.WorkingDays(ctx, username, ym); err != nil {
		return Record{}, err
	}
	if rec.LeaveDays, err = a.LeaveDays(ctx, username, ym); err != nil {
		return Record{}, err
	}

	before, _, err := a.read(ctx, username, ym)
	if err != nil {
		return Record{}, err
	}
	rec.CalculatedAt = a.Clock.Now()
	saved, err := a.write(ctx, rec)
	if err != nil {
		return Record{}, err
	}
	a.Trail.Record(ctx, generic.AuditPayrollSaved, username, ym.String(), auditView(before), auditView(&saved))
	return saved, nil
}

// Get returns the stored record for the period or a NotFoundError.
func (a *Aggregator) Get(ctx context.Context, username string, ym generic.YearMonth) (Record, error) {
	rec, ok, err := a.read(ctx, username, ym)
	if err != nil {
		return Record{}, err
	}
	if !ok {
		return Record{}, &generic.NotFoundError{Kind: "payroll record", Key: username + "/" + ym.String()}
	}
	return *rec, nil
}

// SetPaymentStatus changes only the payment status and calculatedAt of an
// existing record.
func (a *Aggregator) SetPaymentStatus(ctx context.Context, username string, ym generic.YearMonth, status PaymentStatus) (Record, error) {
	if !status.Valid() {
		return Record{}, generic.Invalid("paymentStatus", "unknown payment status %q", status)
	}
	rec, err := a.Get(ctx, username, ym)
	if err != nil {
		return Record{}, err
	}
	return a.updateStatus(ctx, rec, status)
}

// BulkMarkPaid marks each user's existing record for ym as paid. Usernames
// without a record are skipped and reported in Skipped; that is not an
// error. Every username is validated before the first write, and repeated
// usernames are processed once. A store failure stops the batch and is
// returned with the partial result.
func (a *Aggregator) BulkMarkPaid(ctx context.Context, usernames []string, ym generic.YearMonth) (BulkResult, error) {
	result := BulkResult{Updated: []string{}, Skipped: []string{}}
	batch := make([]string, 0, len(usernames))
	seen := make(map[string]bool, len(usernames))
	for i, username := range usernames {
		if err := generic.ValidateKey(fmt.Sprintf("usernames[%d]", i), username); err != nil {
			return result, err
		}
		if seen[username] {
			continue
		}
		seen[username] = true
		batch = append(batch, username)
	}

	for _, username := range batch {
		rec, ok, err := a.read(ctx, username, ym)
		if err != nil {
			return result, err
		}
		if !ok {
			result.Skipped = append(result.Skipped, username)
			continue
		}
		if _, err := a.updateStatus(ctx, *rec, PaymentPaid); err != nil {
			return result, err
		}
		result.Updated = append(result.Updated, username)
	}
	return result, nil
}

func (a *Aggregator) updateStatus(ctx context.Context, rec Record, status PaymentStatus) (Record, error) {
	before := rec
	rec.PaymentStatus = status
	rec.CalculatedAt = a.Clock.Now()
	saved, err := a.compareAndWrite(ctx, rec, before.Version)
	if err != nil {
		return Record{}, err
	}
	a.Trail.Record(ctx, generic.AuditPayrollStatusSet, rec.Username, rec.Period.String(),
		map[string]string{"paymentStatus": string(before.PaymentStatus)},
		map[string]string{"paymentStatus": string(saved.PaymentStatus)})
	return saved, nil
}

func (a *Aggregator) read(ctx context.Context, username string, ym generic.YearMonth) (*Record, bool, error) {
	if err := generic.ValidateKey("username", username); err != nil {
		return nil, false, err
	}
	path := generic.SalaryPath(username, ym)
	stored, ok, err := a.Store.Read(ctx, path)
	if err != nil {
		return nil, false, generic.StoreFailure("read", path, err)
	}
	if !ok {
		return nil, false, nil
	}
	var rec Record
	if err := json.Unmarshal(stored.Value, &rec); err != nil {
		return nil, false, fmt.Errorf("decode payroll at %s: %w", path, err)
	}
	rec.Username = username
	rec.Period = ym
	rec.Version = stored.Version
	return &rec, true, nil
}

func (a *Aggregator) write(ctx context.Context, rec Record) (Record, error) {
	b, path, err := encode(rec)
	if err != nil {
		return Record{}, err
	}
	stored, err := a.Store.Write(ctx, path, b)
	if err != nil {
		return Record{}, generic.StoreFailure("write", path, err)
	}
	rec.Version = stored.Version
	return rec, nil
}

func (a *Aggregator) compareAndWrite(ctx context.Context, rec Record, version int64) (Record, error) {
	b, path, err := encode(rec)
	if err != nil {
		return Record{}, err
	}
	stored, err := a.Store.CompareAndWrite(ctx, path, b, version)
	if err != nil {
		return Record{}, generic.StoreFailure("write", path, err)
	}
	rec.Version = stored.Version
	return rec, nil
}

func encode(rec Record) ([]byte, string, error) {
	path := generic.SalaryPath(rec.Username, rec.Period)
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, path, fmt.Errorf("encode payroll %s: %w", path, err)
	}
	return b, path, nil
}

// auditView keeps the audit summary to the money fields.
func auditView(rec *Record) any {
	if rec == nil {
		return nil
	}
	return map[string]any{
		"baseSalary":     rec.BaseSalary,
		"netSalary":      rec.NetSalary,
		"pf":             rec.Compliance.PF,
		"esi":            rec.Compliance.ESI,
		"attendanceDays": rec.AttendanceDays,
		"leaveDays":      rec.LeaveDays,
		"paymentStatus":  rec.PaymentStatus,
	}
}

func nonNilAllowances(in []Allowance) []Allowance {
	if in == nil {
		return []Allowance{}
	}
	return append([]Allowance(nil), in...)
}

func nonNilDeductions(in []Deduction) []Deduction {
	if in == nil {
		return []Deduction{}
	}
	return append([]Deduction(nil), in...)
}
