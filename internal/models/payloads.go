package models

import "time"

// These structs define the JSON payloads exchanged between the admin console
// and the HTTP functions.

// SignalPatch is the set of operator-editable fields. Nil pointers mean
// "leave unchanged"; a field is only written when its pointer is set.
type SignalPatch struct {
	Status     *string `json:"status,omitempty" validate:"omitempty,oneof=pending in_progress resolved"`
	Priority   *string `json:"priority,omitempty" validate:"omitempty,oneof=high normal low"`
	AssignedTo *string `json:"assignedTo,omitempty"`
	AdminNotes *string `json:"adminNotes,omitempty"`
}

// IsEmpty reports whether the patch would write nothing.
func (p SignalPatch) IsEmpty() bool {
	return p.Status == nil && p.Priority == nil && p.AssignedTo == nil && p.AdminNotes == nil
}

// SignalUpdateRequest is the input for the signal-admin update endpoint.
type SignalUpdateRequest struct {
	SignalID string      `json:"signalId" validate:"required"`
	Patch    SignalPatch `json:"patch"`
}

// SignalUpdateResponse is the output of the signal-admin update endpoint.
type SignalUpdateResponse struct {
	Status string `json:"status"`
	Signal Signal `json:"signal"`
}

// SignalFilters narrows a signal listing. Zero values mean "no filter".
type SignalFilters struct {
	Status     string    `json:"status,omitempty"`
	Priority   string    `json:"priority,omitempty"`
	AssignedTo string    `json:"assignedTo,omitempty"`
	StartDate  time.Time `json:"startDate,omitempty"`
	EndDate    time.Time `json:"endDate,omitempty"`
}

// SignalListResponse is one page of the signal listing, newest first.
// Cursor is the id of the last returned document; pass it back to continue.
type SignalListResponse struct {
	Signals []Signal `json:"signals"`
	Cursor  string   `json:"cursor,omitempty"`
	HasMore bool     `json:"hasMore"`
}

// CollectorAddRequest is the input for adding a roster entry.
type CollectorAddRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// SnapshotStats is the full recount of the signals collection.
// Statuses and priorities outside the known sets count toward Total only.
type SnapshotStats struct {
	Total          int `json:"total"`
	Pending        int `json:"pending"`
	InProgress     int `json:"in_progress"`
	Resolved       int `json:"resolved"`
	HighPriority   int `json:"high_priority"`
	NormalPriority int `json:"normal_priority"`
	LowPriority    int `json:"low_priority"`
}

// TrendBucket is one calendar day of signal creation counts (UTC day
// precision). Days without signals are not emitted.
type TrendBucket struct {
	Date       string `json:"date"`
	Total      int    `json:"total"`
	Pending    int    `json:"pending"`
	InProgress int    `json:"in_progress"`
	Resolved   int    `json:"resolved"`
}

// DashboardResponse bundles the three aggregation views for the stats page.
type DashboardResponse struct {
	Stats        SnapshotStats `json:"stats"`
	Trends       []TrendBucket `json:"trends"`
	TopReporters []UserStats   `json:"topReporters"`
}

// ReconcileResult summarizes one rollup rebuild run.
type ReconcileResult struct {
	Status       string `json:"status"`
	SignalsRead  int    `json:"signalsRead"`
	UsersWritten int    `json:"usersWritten"`
}
