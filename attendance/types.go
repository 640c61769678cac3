// Package attendance owns per-(user, date) attendance state.
package attendance

import (
	"fmt"
	"time"

	"github.com/warp/workforce-engine/generic"
)

// =============================================================================
// STATUS - Closed four-valued enum
// =============================================================================

type Status string

const (
	StatusPresent   Status = "present"
	StatusAbsent    Status = "absent"
	StatusOnLeave   Status = "on_leave"
	StatusNotMarked Status = "not_marked"
)

// AllStatuses lists every valid status in display order.
var AllStatuses = []Status{StatusPresent, StatusAbsent, StatusOnLeave, StatusNotMarked}

func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusOnLeave, StatusNotMarked:
		return true
	}
	return false
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", generic.Invalid("status", "unknown attendance status %q", s)
	}
	return st, nil
}

// =============================================================================
// RECORD
// =============================================================================

// Record is the attendance state for one user on one day. A day with no
// stored record reads back as StatusNotMarked with Stored == false.
type Record struct {
	Username string       `json:"username"`
	Date     generic.Date `json:"date"`
	Status   Status       `json:"status"`
	MarkedAt time.Time    `json:"markedAt"`

	Stored  bool  `json:"-"`
	Version int64 `json:"-"`
}

// IsGap reports whether the day counts as unmarked for fill-gap purposes.
func (r Record) IsGap() bool { return r.Status == StatusNotMarked }

func (r Record) String() string {
	return fmt.Sprintf("%s@%s=%s", r.Username, r.Date, r.Status)
}

func notMarked(username string, date generic.Date) Record {
	return Record{Username: username, Date: date, Status: StatusNotMarked}
}

// MonthSummary counts statuses over a calendar month. Days without a record
// are counted as not_marked.
type MonthSummary struct {
	Username string            `json:"username"`
	Month    generic.YearMonth `json:"month"`
	Counts   map[Status]int    `json:"counts"`
}

func (s MonthSummary) Present() int { return s.Counts[StatusPresent] }
