package db

import "time"

// Participant represents a team member in the on-call roster
type Participant struct {
	ID             int64
	Name           string
	Phone          string
	SecondaryPhone string
	Active         bool
	// RotationOrder sequences active participants in the rotation.
	// Nil for inactive participants; unique and contiguous from 0 among actives.
	RotationOrder *int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ShiftTemplate represents a recurring weekly on-call slot
type ShiftTemplate struct {
	ID          int64
	ShiftNumber int
	// DayOfWeek is "Monday" or a span like "Tuesday-Wednesday";
	// the first named day is the start day of the occurrence.
	DayOfWeek     string
	DurationHours int
	StartTime     string // HH:MM, local time
	CreatedAt     time.Time
}

// ShiftAssignment is one concrete occurrence of a shift template,
// assigned to a participant for a specific week
type ShiftAssignment struct {
	ID              int64
	ParticipantID   int64
	ShiftTemplateID int64
	// WeekIndex counts whole weeks since the rotation epoch Monday.
	// (template, week index) is unique.
	WeekIndex int
	StartAt   time.Time
	EndAt     time.Time
	Notified  bool
	CreatedAt time.Time

	// Denormalized for display and message composition, populated by joins
	ParticipantName  string
	ParticipantPhone string
	ShiftNumber      int
	DurationHours    int
}

// Notification statuses
const (
	NotificationStatusSent    = "sent"
	NotificationStatusFailed  = "failed"
	NotificationStatusPending = "pending"
)

// NotificationRecord is one attempted message delivery. Records are
// append-only: a record is never updated or deleted, and it keeps a
// snapshot of the recipient so it stays meaningful after the assignment
// that triggered it is regenerated away.
type NotificationRecord struct {
	ID int64
	// AssignmentID is nil for manual sends, and becomes nil if the
	// referenced assignment is later deleted.
	AssignmentID   *int64
	RecipientName  string
	RecipientPhone string
	Status         string
	ProviderSID    string
	ErrorMessage   string
	SentAt         time.Time
}
