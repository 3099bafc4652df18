package models

import "time"

// Signal statuses as stored in Firestore. Documents written by older clients
// may carry values outside this set; aggregation code must tolerate them.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusResolved   = "resolved"
)

// Signal priorities.
const (
	PriorityHigh   = "high"
	PriorityNormal = "normal"
	PriorityLow    = "low"
)

// Location is the optional geo payload attached to a signal by the reporting app.
type Location struct {
	Latitude  float64 `firestore:"latitude" json:"latitude"`
	Longitude float64 `firestore:"longitude" json:"longitude"`
	Address   string  `firestore:"address,omitempty" json:"address,omitempty"`
	Accuracy  float64 `firestore:"accuracy,omitempty" json:"accuracy,omitempty"`
}

// Signal is a citizen waste report in the "signals" collection.
// The document id is not stored in the document itself.
type Signal struct {
	ID          string     `firestore:"-" json:"id"`
	Description string     `firestore:"description,omitempty" json:"description,omitempty"`
	Status      string     `firestore:"status" json:"status"`
	Priority    string     `firestore:"priority,omitempty" json:"priority,omitempty"`
	Location    *Location  `firestore:"location,omitempty" json:"location,omitempty"`
	ImageURL    string     `firestore:"imageUrl,omitempty" json:"imageUrl,omitempty"`
	UserID      string     `firestore:"userId,omitempty" json:"userId,omitempty"`
	UserEmail   string     `firestore:"userEmail,omitempty" json:"userEmail,omitempty"`
	AssignedTo  string     `firestore:"assignedTo,omitempty" json:"assignedTo,omitempty"`
	AdminNotes  string     `firestore:"adminNotes,omitempty" json:"adminNotes,omitempty"`
	CreatedAt   time.Time  `firestore:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time  `firestore:"updatedAt" json:"updatedAt"`
	ResolvedAt  *time.Time `firestore:"resolvedAt" json:"resolvedAt,omitempty"`
}

// UserStats is the denormalized per-reporter rollup in the "userStats"
// collection, keyed by the reporter's user id. The reporting app creates it
// on a user's first signal; the update engine only mutates existing records.
type UserStats struct {
	UserID            string    `firestore:"-" json:"userId"`
	TotalReports      int       `firestore:"totalReports" json:"totalReports"`
	PendingReports    int       `firestore:"pendingReports" json:"pendingReports"`
	InProgressReports int       `firestore:"inProgressReports" json:"inProgressReports"`
	ResolvedReports   int       `firestore:"resolvedReports" json:"resolvedReports"`
	UpdatedAt         time.Time `firestore:"updatedAt" json:"updatedAt"`
}

// Collector is a roster entry in the "collectors" collection.
type Collector struct {
	ID        string    `firestore:"-" json:"id"`
	Email     string    `firestore:"email" json:"email"`
	CreatedAt time.Time `firestore:"createdAt" json:"createdAt"`
}
