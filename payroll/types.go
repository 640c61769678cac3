// Package payroll aggregates a month of attendance and leave into a payroll
// record with statutory deductions and net pay.
package payroll

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/workforce-engine/generic"
)

// =============================================================================
// PAYMENT STATUS
// =============================================================================

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentDisputed PaymentStatus = "disputed"
)

func (s PaymentStatus) Valid() bool {
	return s == PaymentPending || s == PaymentPaid || s == PaymentDisputed
}

func ParsePaymentStatus(s string) (PaymentStatus, error) {
	st := PaymentStatus(s)
	if !st.Valid() {
		return "", generic.Invalid("paymentStatus", "unknown payment status %q", s)
	}
	return st, nil
}

// =============================================================================
// LINE ITEMS
// =============================================================================

type Allowance struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

type Deduction struct {
	Name        string          `json:"name"`
	Amount      decimal.Decimal `json:"amount"`
	IsStatutory bool            `json:"isStatutory"`
}

// Compliance holds statutory amounts. PF and ESI are computed; TDS is an
// admin-entered figure carried through untouched and not part of net pay.
type Compliance struct {
	PF  decimal.Decimal `json:"pf"`
	ESI decimal.Decimal `json:"esi"`
	TDS decimal.Decimal `json:"tds"`
}

// =============================================================================
// INPUT / RECORD
// =============================================================================

// Input is what an admin supplies for a period.
type Input struct {
	BaseSalary    decimal.Decimal
	OvertimeHours decimal.Decimal
	OvertimePay   decimal.Decimal
	Allowances    []Allowance
	Deductions    []Deduction
	TDS           decimal.Decimal
	PaymentStatus PaymentStatus // empty means pending
}

// Record is stored at salaries/{username}/{yearMonth}. It is a snapshot:
// AttendanceDays and LeaveDays are captured at save time and do not track
// later attendance or leave changes.
type Record struct {
	Username       string            `json:"username"`
	Period         generic.YearMonth `json:"period"`
	BaseSalary     decimal.Decimal   `json:"baseSalary"`
	OvertimeHours  decimal.Decimal   `json:"overtimeHours"`
	OvertimePay    decimal.Decimal   `json:"overtimePay"`
	Allowances     []Allowance       `json:"allowances"`
	Deductions     []Deduction       `json:"deductions"`
	Compliance     Compliance        `json:"compliance"`
	AttendanceDays int               `json:"attendanceDays"`
	LeaveDays      int               `json:"leaveDays"`
	NetSalary      decimal.Decimal   `json:"netSalary"`
	PaymentStatus  PaymentStatus     `json:"paymentStatus"`
	CalculatedAt   time.Time         `json:"calculatedAt"`

	Version int64 `json:"-"`
}

// BulkResult reports which usernames BulkMarkPaid updated and which it
// skipped for lack of a record. Skips are not errors.
type BulkResult struct {
	Updated []string `json:"updated"`
	Skipped []string `json:"skipped"`
}
