/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built data sets that walk the engine through the flows an
	admin sees most: leave decisions reshaping attendance, a payroll run
	with statutory deductions, and a bulk payment run with a missing record.

AVAILABLE SCENARIOS:

	leave-reconsideration: leave approved, then reconsidered to rejected
	payroll-statutory:     one month of attendance + payroll below the ESI threshold
	bulk-mark-paid:        two employees, one payroll record, bulk mark paid

HOW SCENARIOS WORK:
 1. Drive the domain services exactly as the API would (same audit trail)
 2. Use the "scenario" actor so entries are easy to filter out
 3. Loading twice adds a second leave request; other writes overwrite

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "payroll-statutory"}

NOTE:

	Scenarios write into the live store. Only use in development/demo
	environments.

SEE ALSO:
  - handlers.go: domain handlers the scenarios mirror
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/warp/workforce-engine/attendance"
	"github.com/warp/workforce-engine/generic"
	"github.com/warp/workforce-engine/payroll"
)

// ScenarioActor is recorded as the actor for scenario writes.
const ScenarioActor = "scenario"

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "leave-reconsideration",
		Name:        "Leave Reconsideration",
		Description: "alice: leave 2024-03-10..12 approved, then rejected on reconsideration",
		Category:    "leave",
	},
	{
		ID:          "payroll-statutory",
		Name:        "Payroll With Statutory Deductions",
		Description: "alice: April 2024 attendance, base 20000 + overtime 500 + travel 1000",
		Category:    "payroll",
	},
	{
		ID:          "bulk-mark-paid",
		Name:        "Bulk Mark Paid",
		Description: "alice has an April 2024 record, bob does not; both are marked paid",
		Category:    "payroll",
	},
}

var scenarioLoaders = map[string]func(h *Handler, ctx context.Context) (any, error){
	"leave-reconsideration": (*Handler).loadLeaveReconsiderationScenario,
	"payroll-statutory":     (*Handler).loadPayrollStatutoryScenario,
	"bulk-mark-paid":        (*Handler).loadBulkMarkPaidScenario,
}

// ListScenarios returns available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario runs one scenario and returns what it produced.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := h.decode(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	loader, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown scenario", fmt.Errorf("no scenario %q", req.ScenarioID))
		return
	}

	ctx := generic.WithActor(r.Context(), ScenarioActor)
	result, err := loader(h, ctx)
	if err != nil {
		writeError(w, statusFor(err), fmt.Sprintf("Failed to load scenario %s", req.ScenarioID), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scenario": req.ScenarioID,
		"result":   result,
	})
}

// =============================================================================
// LOADERS
// =============================================================================

func (h *Handler) loadLeaveReconsiderationScenario(ctx context.Context) (any, error) {
	start := generic.MustParseDate("2024-03-10")
	end := generic.MustParseDate("2024-03-12")

	req, err := h.Leave.Submit(ctx, "alice", start, end, "travel")
	if err != nil {
		return nil, err
	}
	if _, err := h.Leave.Approve(ctx, "alice", req.ID); err != nil {
		return nil, err
	}
	rejected, err := h.Leave.Reject(ctx, "alice", req.ID)
	if err != nil {
		return nil, err
	}

	days, err := h.Attendance.RangeSlice(ctx, "alice", rejected.Span())
	if err != nil {
		return nil, err
	}
	dtos := make([]AttendanceDTO, len(days))
	for i, d := range days {
		dtos[i] = toAttendanceDTO(d)
	}
	return map[string]any{
		"request":    toLeaveDTO(rejected),
		"attendance": dtos,
	}, nil
}

func (h *Handler) loadPayrollStatutoryScenario(ctx context.Context) (any, error) {
	ym := generic.MustParseYearMonth("2024-04")
	for day := 1; day <= 5; day++ {
		date := generic.NewDate(ym.Year, ym.Month, day)
		if _, err := h.Attendance.Mark(ctx, "alice", date, attendance.StatusPresent); err != nil {
			return nil, err
		}
	}
	rec, err := h.Payroll.Save(ctx, "alice", ym, demoPayrollInput())
	if err != nil {
		return nil, err
	}
	return toPayrollDTO(rec), nil
}

func (h *Handler) loadBulkMarkPaidScenario(ctx context.Context) (any, error) {
	ym := generic.MustParseYearMonth("2024-04")
	if _, err := h.Payroll.Save(ctx, "alice", ym, demoPayrollInput()); err != nil {
		return nil, err
	}
	return h.Payroll.BulkMarkPaid(ctx, []string{"alice", "bob"}, ym)
}

func demoPayrollInput() payroll.Input {
	return payroll.Input{
		BaseSalary:  decimal.NewFromInt(20000),
		OvertimePay: decimal.NewFromInt(500),
		Allowances:  []payroll.Allowance{{Name: "travel", Amount: decimal.NewFromInt(1000)}},
	}
}
