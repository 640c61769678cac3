/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the domain records (camelCase, stored as-is) from the external API
  contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Attendance: MarkAttendanceRequest, AttendanceDTO, MonthSummaryDTO
  Leave:      SubmitLeaveRequest, ReconsiderLeaveRequest, LeaveRequestDTO
  Payroll:    PayrollInputRequest, SetPaymentStatusRequest,
              BulkMarkPaidRequest, PayrollDTO, PayrollDaysDTO
  Audit:      AuditEntryDTO
  Scenarios:  ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Request types carry go-playground/validator tags, checked by
  Handler.decode before any domain call. Amounts travel as decimal strings
  so no precision is lost in float64. The domain layer re-validates what
  only it can judge (negative net salary, start after end).

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/workforce-engine/attendance"
	"github.com/warp/workforce-engine/generic"
	"github.com/warp/workforce-engine/leave"
	"github.com/warp/workforce-engine/payroll"
)

// =============================================================================
// ATTENDANCE
// =============================================================================

// MarkAttendanceRequest is the body of PUT /api/attendance/{username}/{date}.
type MarkAttendanceRequest struct {
	Status string `json:"status" validate:"required,oneof=present absent on_leave not_marked"`
}

// AttendanceDTO is one day. Stored is false for synthesized not_marked days.
type AttendanceDTO struct {
	Username string     `json:"username"`
	Date     string     `json:"date"`
	Status   string     `json:"status"`
	MarkedAt *time.Time `json:"marked_at,omitempty"`
	Stored   bool       `json:"stored"`
	Version  int64      `json:"version,omitempty"`
}

func toAttendanceDTO(r attendance.Record) AttendanceDTO {
	dto := AttendanceDTO{
		Username: r.Username,
		Date:     r.Date.String(),
		Status:   string(r.Status),
		Stored:   r.Stored,
		Version:  r.Version,
	}
	if r.Stored {
		at := r.MarkedAt
		dto.MarkedAt = &at
	}
	return dto
}

// MonthSummaryDTO counts days per status in one month.
type MonthSummaryDTO struct {
	Username  string         `json:"username"`
	YearMonth string         `json:"year_month"`
	Counts    map[string]int `json:"counts"`
}

func toMonthSummaryDTO(s attendance.MonthSummary) MonthSummaryDTO {
	counts := make(map[string]int, len(s.Counts))
	for status, n := range s.Counts {
		counts[string(status)] = n
	}
	return MonthSummaryDTO{
		Username:  s.Username,
		YearMonth: s.Month.String(),
		Counts:    counts,
	}
}

// =============================================================================
// LEAVE
// =============================================================================

// SubmitLeaveRequest is the body of POST /api/leave.
type SubmitLeaveRequest struct {
	Username  string `json:"username" validate:"required,excludesall=/"`
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
	Reason    string `json:"reason" validate:"required"`
}

// ReconsiderLeaveRequest is the body of POST .../reconsider.
type ReconsiderLeaveRequest struct {
	Status string `json:"status" validate:"required,oneof=approved rejected"`
}

// LeaveRequestDTO represents a leave request in API responses.
type LeaveRequestDTO struct {
	ID        string     `json:"id"`
	Username  string     `json:"username"`
	StartDate string     `json:"start_date"`
	EndDate   string     `json:"end_date"`
	Days      int        `json:"days"`
	Reason    string     `json:"reason"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	DecidedBy string     `json:"decided_by,omitempty"`
	DecidedAt *time.Time `json:"decided_at,omitempty"`
}

func toLeaveDTO(r leave.Request) LeaveRequestDTO {
	return LeaveRequestDTO{
		ID:        r.ID,
		Username:  r.Username,
		StartDate: r.StartDate.String(),
		EndDate:   r.EndDate.String(),
		Days:      r.Span().Len(),
		Reason:    r.Reason,
		Status:    string(r.Status),
		CreatedAt: r.Timestamp,
		DecidedBy: r.DecidedBy,
		DecidedAt: r.DecidedAt,
	}
}

func toLeaveDTOs(rs []leave.Request) []LeaveRequestDTO {
	dtos := make([]LeaveRequestDTO, len(rs))
	for i, r := range rs {
		dtos[i] = toLeaveDTO(r)
	}
	return dtos
}

// =============================================================================
// PAYROLL
// =============================================================================

type AllowanceDTO struct {
	Name   string `json:"name" validate:"required"`
	Amount string `json:"amount" validate:"required,numeric"`
}

type DeductionDTO struct {
	Name        string `json:"name" validate:"required"`
	Amount      string `json:"amount" validate:"required,numeric"`
	IsStatutory bool   `json:"is_statutory"`
}

// PayrollInputRequest is the admin-entered part of a payroll record.
type PayrollInputRequest struct {
	BaseSalary    string         `json:"base_salary" validate:"required,numeric"`
	OvertimeHours string         `json:"overtime_hours" validate:"omitempty,numeric"`
	OvertimePay   string         `json:"overtime_pay" validate:"omitempty,numeric"`
	Allowances    []AllowanceDTO `json:"allowances" validate:"dive"`
	Deductions    []DeductionDTO `json:"deductions" validate:"dive"`
	TDS           string         `json:"tds" validate:"omitempty,numeric"`
	PaymentStatus string         `json:"payment_status" validate:"omitempty,oneof=pending paid disputed"`
}

// toInput converts validated strings. Empty optional amounts are zero.
func (p PayrollInputRequest) toInput() (payroll.Input, error) {
	var (
		in  payroll.Input
		err error
	)
	if in.BaseSalary, err = parseAmount("base_salary", p.BaseSalary); err != nil {
		return payroll.Input{}, err
	}
	if in.OvertimeHours, err = parseAmount("overtime_hours", p.OvertimeHours); err != nil {
		return payroll.Input{}, err
	}
	if in.OvertimePay, err = parseAmount("overtime_pay", p.OvertimePay); err != nil {
		return payroll.Input{}, err
	}
	if in.TDS, err = parseAmount("tds", p.TDS); err != nil {
		return payroll.Input{}, err
	}
	for _, a := range p.Allowances {
		amount, err := parseAmount("allowances.amount", a.Amount)
		if err != nil {
			return payroll.Input{}, err
		}
		in.Allowances = append(in.Allowances, payroll.Allowance{Name: a.Name, Amount: amount})
	}
	for _, d := range p.Deductions {
		amount, err := parseAmount("deductions.amount", d.Amount)
		if err != nil {
			return payroll.Input{}, err
		}
		in.Deductions = append(in.Deductions, payroll.Deduction{Name: d.Name, Amount: amount, IsStatutory: d.IsStatutory})
	}
	in.PaymentStatus = payroll.PaymentStatus(p.PaymentStatus)
	return in, nil
}

func parseAmount(field, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, generic.Invalid(field, "not a decimal: %q", s)
	}
	return d, nil
}

// SetPaymentStatusRequest is the body of PUT .../status.
type SetPaymentStatusRequest struct {
	PaymentStatus string `json:"payment_status" validate:"required,oneof=pending paid disputed"`
}

// BulkMarkPaidRequest is the body of POST /api/payroll/bulk-paid.
type BulkMarkPaidRequest struct {
	Usernames []string `json:"usernames" validate:"required,min=1,dive,required,excludesall=/"`
	YearMonth string   `json:"year_month" validate:"required,datetime=2006-01"`
}

// PayrollDTO represents a saved or previewed payroll record.
type PayrollDTO struct {
	Username       string          `json:"username,omitempty"`
	YearMonth      string          `json:"year_month,omitempty"`
	BaseSalary     decimal.Decimal `json:"base_salary"`
	OvertimeHours  decimal.Decimal `json:"overtime_hours"`
	OvertimePay    decimal.Decimal `json:"overtime_pay"`
	Allowances     []AllowanceOut  `json:"allowances"`
	Deductions     []DeductionOut  `json:"deductions"`
	PF             decimal.Decimal `json:"pf"`
	ESI            decimal.Decimal `json:"esi"`
	TDS            decimal.Decimal `json:"tds"`
	AttendanceDays int             `json:"attendance_days"`
	LeaveDays      int             `json:"leave_days"`
	NetSalary      decimal.Decimal `json:"net_salary"`
	PaymentStatus  string          `json:"payment_status"`
	CalculatedAt   *time.Time      `json:"calculated_at,omitempty"`
}

type AllowanceOut struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

type DeductionOut struct {
	Name        string          `json:"name"`
	Amount      decimal.Decimal `json:"amount"`
	IsStatutory bool            `json:"is_statutory"`
}

func toPayrollDTO(r payroll.Record) PayrollDTO {
	dto := PayrollDTO{
		Username:       r.Username,
		BaseSalary:     r.BaseSalary,
		OvertimeHours:  r.OvertimeHours,
		OvertimePay:    r.OvertimePay,
		Allowances:     make([]AllowanceOut, len(r.Allowances)),
		Deductions:     make([]DeductionOut, len(r.Deductions)),
		PF:             r.Compliance.PF,
		ESI:            r.Compliance.ESI,
		TDS:            r.Compliance.TDS,
		AttendanceDays: r.AttendanceDays,
		LeaveDays:      r.LeaveDays,
		NetSalary:      r.NetSalary,
		PaymentStatus:  string(r.PaymentStatus),
	}
	if !r.Period.IsZero() {
		dto.YearMonth = r.Period.String()
	}
	if !r.CalculatedAt.IsZero() {
		at := r.CalculatedAt
		dto.CalculatedAt = &at
	}
	for i, a := range r.Allowances {
		dto.Allowances[i] = AllowanceOut{Name: a.Name, Amount: a.Amount}
	}
	for i, d := range r.Deductions {
		dto.Deductions[i] = DeductionOut{Name: d.Name, Amount: d.Amount, IsStatutory: d.IsStatutory}
	}
	return dto
}

// PayrollDaysDTO is the live (unsaved) day counts for a month.
type PayrollDaysDTO struct {
	Username       string `json:"username"`
	YearMonth      string `json:"year_month"`
	AttendanceDays int    `json:"attendance_days"`
	LeaveDays      int    `json:"leave_days"`
}

// =============================================================================
// AUDIT
// =============================================================================

type AuditEntryDTO struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Subject   string    `json:"subject"`
	Reference string    `json:"reference,omitempty"`
	Before    string    `json:"before,omitempty"`
	After     string    `json:"after,omitempty"`
}

func toAuditDTOs(entries []generic.AuditEntry) []AuditEntryDTO {
	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = AuditEntryDTO{
			ID:        e.ID,
			Timestamp: e.Timestamp,
			Actor:     e.Actor,
			Action:    string(e.Action),
			Subject:   e.Subject,
			Reference: e.Reference,
			Before:    e.Before,
			After:     e.After,
		}
	}
	return dtos
}

// =============================================================================
// SCENARIOS / ERRORS
// =============================================================================

// ScenarioDTO describes a demo data set.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// LoadScenarioRequest is the body of POST /api/scenarios/load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
	Details string `json:"details,omitempty"`
}
