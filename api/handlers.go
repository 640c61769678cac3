/*
handlers.go - HTTP API handlers for the workforce engine

PURPOSE:
  Exposes attendance, leave, payroll and audit via a REST API. Handles HTTP
  request/response, JSON serialization and input validation, and delegates
  to the domain services.

ENDPOINTS:
  Attendance:
    GET    /api/attendance/{username}?from=&to=       Day range (gaps synthesized)
    GET    /api/attendance/{username}/month/{ym}      Counts per status
    GET    /api/attendance/{username}/{date}          One day
    PUT    /api/attendance/{username}/{date}          Mark
    DELETE /api/attendance/{username}/{date}          Remove

  Leave:
    POST   /api/leave                                 Submit
    GET    /api/leave/pending                         All pending, oldest first
    GET    /api/leave/{username}                      A user's requests
    GET    /api/leave/{username}/{id}                 One request
    POST   /api/leave/{username}/{id}/approve         Approve (+ reconcile)
    POST   /api/leave/{username}/{id}/reject          Reject (+ reconcile)
    POST   /api/leave/{username}/{id}/reconsider      Flip a decided request

  Payroll:
    POST   /api/payroll/preview                       Compute without saving
    POST   /api/payroll/bulk-paid                     Mark many as paid
    GET    /api/payroll/{username}/{ym}               Saved record
    PUT    /api/payroll/{username}/{ym}               Save (snapshots days)
    PUT    /api/payroll/{username}/{ym}/status        Set payment status
    GET    /api/payroll/{username}/{ym}/days          Live day counts

  Audit:
    GET    /api/audit?subject=&actor=&action=&from=&to=&limit=

ACTOR:
  The X-Actor header names who is acting; see server.go. It lands in the
  audit trail and in a leave request's decided_by.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Concurrent modification (stale version)
  - 503: Store unavailable or timed out; the call may be retried
  - 500: Anything else

  A leave transition whose reconciliation fails has still committed the new
  status. The 503 body says so; retrying the same transition converges.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/warp/workforce-engine/attendance"
	"github.com/warp/workforce-engine/audit"
	"github.com/warp/workforce-engine/generic"
	"github.com/warp/workforce-engine/leave"
	"github.com/warp/workforce-engine/payroll"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Attendance *attendance.Ledger
	Leave      *leave.Registry
	Payroll    *payroll.Aggregator
	Audit      *audit.Trail

	validate *validator.Validate
}

// NewHandler creates a new handler over the domain services.
func NewHandler(ledger *attendance.Ledger, registry *leave.Registry, agg *payroll.Aggregator, trail *audit.Trail) *Handler {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{
		Attendance: ledger,
		Leave:      registry,
		Payroll:    agg,
		Audit:      trail,
		validate:   v,
	}
}

// =============================================================================
// ATTENDANCE HANDLERS
// =============================================================================

// GetAttendance returns one day.
// GET /api/attendance/{username}/{date}
func (h *Handler) GetAttendance(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(r, "date")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	rec, err := h.Attendance.Get(r.Context(), chi.URLParam(r, "username"), date)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAttendanceDTO(rec))
}

// MarkAttendance sets a day's status.
// PUT /api/attendance/{username}/{date}
func (h *Handler) MarkAttendance(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(r, "date")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var req MarkAttendanceRequest
	if err := h.decode(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	rec, err := h.Attendance.Mark(r.Context(), chi.URLParam(r, "username"), date, attendance.Status(req.Status))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAttendanceDTO(rec))
}

// RemoveAttendance deletes a day's record.
// DELETE /api/attendance/{username}/{date}
func (h *Handler) RemoveAttendance(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(r, "date")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := h.Attendance.Remove(r.Context(), chi.URLParam(r, "username"), date); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListAttendance returns every day in [from, to], synthesizing gaps.
// GET /api/attendance/{username}?from=2024-03-01&to=2024-03-31
func (h *Handler) ListAttendance(w http.ResponseWriter, r *http.Request) {
	from, err := parseDate("from", r.URL.Query().Get("from"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	to, err := parseDate("to", r.URL.Query().Get("to"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	span, err := generic.NewSpan(from, to)
	if err != nil {
		writeDomainError(w, generic.Invalid("from", "%v", err))
		return
	}

	cursor := h.Attendance.Range(r.Context(), chi.URLParam(r, "username"), span)
	dtos := make([]AttendanceDTO, 0, span.Len())
	for cursor.Next() {
		dtos = append(dtos, toAttendanceDTO(cursor.Record()))
	}
	if err := cursor.Err(); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetMonthSummary returns counts per status for a month.
// GET /api/attendance/{username}/month/{yearMonth}
func (h *Handler) GetMonthSummary(w http.ResponseWriter, r *http.Request) {
	ym, err := yearMonthParam(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	summary, err := h.Attendance.MonthSummary(r.Context(), chi.URLParam(r, "username"), ym)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMonthSummaryDTO(summary))
}

// =============================================================================
// LEAVE HANDLERS
// =============================================================================

// SubmitLeave creates a pending request.
// POST /api/leave
func (h *Handler) SubmitLeave(w http.ResponseWriter, r *http.Request) {
	var req SubmitLeaveRequest
	if err := h.decode(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	start, err := parseDate("start_date", req.StartDate)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	end, err := parseDate("end_date", req.EndDate)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	created, err := h.Leave.Submit(r.Context(), req.Username, start, end, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLeaveDTO(created))
}

// ListPendingLeave returns pending requests across all users.
// GET /api/leave/pending
func (h *Handler) ListPendingLeave(w http.ResponseWriter, r *http.Request) {
	pending, err := h.Leave.ListPending(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveDTOs(pending))
}

// ListUserLeave returns a user's requests.
// GET /api/leave/{username}
func (h *Handler) ListUserLeave(w http.ResponseWriter, r *http.Request) {
	requests, err := h.Leave.ListByUser(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveDTOs(requests))
}

// GetLeave returns one request.
// GET /api/leave/{username}/{id}
func (h *Handler) GetLeave(w http.ResponseWriter, r *http.Request) {
	req, err := h.Leave.Get(r.Context(), chi.URLParam(r, "username"), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveDTO(req))
}

// ApproveLeave approves and fills the span's gaps with on_leave.
// POST /api/leave/{username}/{id}/approve
func (h *Handler) ApproveLeave(w http.ResponseWriter, r *http.Request) {
	updated, err := h.Leave.Approve(r.Context(), chi.URLParam(r, "username"), chi.URLParam(r, "id"))
	h.writeTransition(w, updated, err)
}

// RejectLeave rejects and reverts the span's on_leave days.
// POST /api/leave/{username}/{id}/reject
func (h *Handler) RejectLeave(w http.ResponseWriter, r *http.Request) {
	updated, err := h.Leave.Reject(r.Context(), chi.URLParam(r, "username"), chi.URLParam(r, "id"))
	h.writeTransition(w, updated, err)
}

// ReconsiderLeave flips an approved/rejected request.
// POST /api/leave/{username}/{id}/reconsider
func (h *Handler) ReconsiderLeave(w http.ResponseWriter, r *http.Request) {
	var req ReconsiderLeaveRequest
	if err := h.decode(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	updated, err := h.Leave.Reconsider(r.Context(), chi.URLParam(r, "username"), chi.URLParam(r, "id"), leave.Status(req.Status))
	h.writeTransition(w, updated, err)
}

// writeTransition reports a committed status even when reconciliation
// failed afterwards.
func (h *Handler) writeTransition(w http.ResponseWriter, updated leave.Request, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, toLeaveDTO(updated))
		return
	}
	if updated.ID == "" {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, statusFor(err), map[string]any{
		"error":   "status saved but attendance reconciliation failed; retry the same action",
		"details": err.Error(),
		"request": toLeaveDTO(updated),
	})
}

// =============================================================================
// PAYROLL HANDLERS
// =============================================================================

// PreviewPayroll computes a record without saving anything.
// POST /api/payroll/preview
func (h *Handler) PreviewPayroll(w http.ResponseWriter, r *http.Request) {
	in, err := h.decodePayrollInput(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	rec, err := h.Payroll.Preview(in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPayrollDTO(rec))
}

// SavePayroll computes and stores the month's record.
// PUT /api/payroll/{username}/{yearMonth}
func (h *Handler) SavePayroll(w http.ResponseWriter, r *http.Request) {
	ym, err := yearMonthParam(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	in, err := h.decodePayrollInput(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	rec, err := h.Payroll.Save(r.Context(), chi.URLParam(r, "username"), ym, in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPayrollDTO(rec))
}

// GetPayroll returns the saved record.
// GET /api/payroll/{username}/{yearMonth}
func (h *Handler) GetPayroll(w http.ResponseWriter, r *http.Request) {
	ym, err := yearMonthParam(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	rec, err := h.Payroll.Get(r.Context(), chi.URLParam(r, "username"), ym)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPayrollDTO(rec))
}

// GetPayrollDays returns current attendance and leave day counts.
// GET /api/payroll/{username}/{yearMonth}/days
func (h *Handler) GetPayrollDays(w http.ResponseWriter, r *http.Request) {
	ym, err := yearMonthParam(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	username := chi.URLParam(r, "username")
	working, err := h.Payroll.WorkingDays(r.Context(), username, ym)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	leaveDays, err := h.Payroll.LeaveDays(r.Context(), username, ym)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PayrollDaysDTO{
		Username:       username,
		YearMonth:      ym.String(),
		AttendanceDays: working,
		LeaveDays:      leaveDays,
	})
}

// SetPaymentStatus changes only the payment status.
// PUT /api/payroll/{username}/{yearMonth}/status
func (h *Handler) SetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	ym, err := yearMonthParam(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var req SetPaymentStatusRequest
	if err := h.decode(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	rec, err := h.Payroll.SetPaymentStatus(r.Context(), chi.URLParam(r, "username"), ym, payroll.PaymentStatus(req.PaymentStatus))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPayrollDTO(rec))
}

// BulkMarkPaid marks existing records as paid and reports skips.
// POST /api/payroll/bulk-paid
func (h *Handler) BulkMarkPaid(w http.ResponseWriter, r *http.Request) {
	var req BulkMarkPaidRequest
	if err := h.decode(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	ym, err := parseYearMonth("year_month", req.YearMonth)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	result, err := h.Payroll.BulkMarkPaid(r.Context(), req.Usernames, ym)
	if err != nil {
		writeJSON(w, statusFor(err), map[string]any{
			"error":   "bulk update stopped",
			"details": err.Error(),
			"partial": result,
		})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) decodePayrollInput(r *http.Request) (payroll.Input, error) {
	var req PayrollInputRequest
	if err := h.decode(r, &req); err != nil {
		return payroll.Input{}, err
	}
	return req.toInput()
}

// =============================================================================
// AUDIT HANDLERS
// =============================================================================

// QueryAudit returns audit entries in append order.
// GET /api/audit?subject=alice&actor=hr&action=leave_approved&from=...&to=...&limit=50
func (h *Handler) QueryAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter generic.AuditFilter

	if v := q.Get("subject"); v != "" {
		filter.Subject = &v
	}
	if v := q.Get("actor"); v != "" {
		filter.Actor = &v
	}
	for _, a := range q["action"] {
		filter.Actions = append(filter.Actions, generic.AuditAction(a))
	}
	for _, bound := range []struct {
		name string
		dst  **time.Time
	}{
		{"from", &filter.From},
		{"to", &filter.To},
	} {
		v := q.Get(bound.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeDomainError(w, generic.Invalid(bound.name, "use RFC3339, got %q", v))
			return
		}
		*bound.dst = &t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeDomainError(w, generic.Invalid("limit", "must be a non-negative integer"))
			return
		}
		filter.Limit = n
	}

	entries, err := h.Audit.Query(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditDTOs(entries))
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads a JSON body into dst and runs its validate tags. The first
// failing field becomes a ValidationError.
func (h *Handler) decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return generic.Invalid("body", "invalid JSON: %v", err)
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return generic.Invalid(fieldPath(fe.Namespace()), "failed %q check", fe.Tag())
		}
		return generic.Invalid("body", "%v", err)
	}
	return nil
}

// fieldPath drops the struct name: "SubmitLeaveRequest.start_date" -> "start_date".
func fieldPath(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func dateParam(r *http.Request, name string) (generic.Date, error) {
	return parseDate(name, chi.URLParam(r, name))
}

func parseDate(field, s string) (generic.Date, error) {
	if s == "" {
		return generic.Date{}, generic.Invalid(field, "is required (YYYY-MM-DD)")
	}
	d, err := generic.ParseDate(s)
	if err != nil {
		return generic.Date{}, generic.Invalid(field, "%v", err)
	}
	return d, nil
}

func yearMonthParam(r *http.Request) (generic.YearMonth, error) {
	return parseYearMonth("year_month", chi.URLParam(r, "yearMonth"))
}

func parseYearMonth(field, s string) (generic.YearMonth, error) {
	ym, err := generic.ParseYearMonth(s)
	if err != nil {
		return generic.YearMonth{}, generic.Invalid(field, "%v", err)
	}
	return ym, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps the error taxonomy onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Error: http.StatusText(status), Details: err.Error()}
	var verr *generic.ValidationError
	if errors.As(err, &verr) {
		resp.Field = verr.Field
		resp.Details = verr.Message
	}
	writeJSON(w, status, resp)
}

func statusFor(err error) int {
	switch {
	case generic.IsValidation(err), errors.Is(err, generic.ErrInvalidSpan):
		return http.StatusBadRequest
	case generic.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, generic.ErrConcurrentModification):
		return http.StatusConflict
	case errors.Is(err, generic.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
