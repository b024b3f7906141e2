package domain

import "time"

// ApprovalAction records one approve/reject decision on an emergency request.
type ApprovalAction struct {
	Actor    string
	At       time.Time
	Approved bool
	Note     string
}

type EmergencyRequest struct {
	ID                string
	ProcessInstanceID string
	Level             EmergencyLevel
	RequestedBy       string
	RequestedAt       time.Time
	Reason            string

	// Instance is a snapshot of the work the request covers, so an
	// approved request can be placed later without re-supplying it.
	Instance *ProcessInstance

	// Window the caller wants the work placed inside.
	WindowStart time.Time
	WindowEnd   time.Time
	DurationMin int

	State             EmergencyState
	RequiredApprovals int
	Approvals         []ApprovalAction

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ApprovalCount returns the number of recorded approving decisions.
func (r *EmergencyRequest) ApprovalCount() int {
	n := 0
	for _, a := range r.Approvals {
		if a.Approved {
			n++
		}
	}
	return n
}

// HasActed reports whether the actor has already approved or rejected
// this request. Used to keep decision recording idempotent on replay.
func (r *EmergencyRequest) HasActed(actor string) bool {
	for _, a := range r.Approvals {
		if a.Actor == actor {
			return true
		}
	}
	return false
}

// TouchesWeekend reports whether any part of the requested window falls on
// a Saturday or Sunday. The window end is exclusive.
func (r *EmergencyRequest) TouchesWeekend() bool {
	day := time.Date(r.WindowStart.Year(), r.WindowStart.Month(), r.WindowStart.Day(),
		0, 0, 0, 0, r.WindowStart.Location())
	for day.Before(r.WindowEnd) {
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			return true
		}
		day = day.AddDate(0, 0, 1)
	}
	return false
}
