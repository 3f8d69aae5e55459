package db

import (
	"context"
	"time"
)

// RosterStore defines the roster and shift template read operations
// consumed by the rotation generator
type RosterStore interface {
	ListActiveParticipantsOrdered(ctx context.Context) ([]Participant, error)
	ListShiftTemplatesOrdered(ctx context.Context) ([]ShiftTemplate, error)
	GetParticipant(ctx context.Context, id int64) (*Participant, error)
}

// ScheduleStore defines the assignment persistence operations
type ScheduleStore interface {
	// CreateAssignments persists a generated range as a single transaction.
	// When force is false and any (template, week index) slot already has a
	// row, it fails with ScheduleExistsError before writing anything.
	CreateAssignments(ctx context.Context, assignments []ShiftAssignment, force bool) ([]ShiftAssignment, error)
	// ReplaceFrom deletes assignments starting on or after from and inserts
	// the replacements as one atomic unit, so readers never observe a
	// half-regenerated schedule
	ReplaceFrom(ctx context.Context, from time.Time, assignments []ShiftAssignment) (created []ShiftAssignment, deleted int64, err error)
	// DeleteFrom removes assignments starting on or after the given time,
	// returning how many rows were removed
	DeleteFrom(ctx context.Context, from time.Time) (int64, error)
	GetByDateRange(ctx context.Context, start, end time.Time) ([]ShiftAssignment, error)
	GetByParticipant(ctx context.Context, participantID int64) ([]ShiftAssignment, error)
	NextForParticipant(ctx context.Context, participantID int64, now time.Time) (*ShiftAssignment, error)
	FurthestStart(ctx context.Context) (*time.Time, error)
}

// DispatchStore defines the operations the notification dispatcher needs:
// pending lookups, the paired notified-flag flip, and the audit trail
type DispatchStore interface {
	// GetPendingNotifications returns unnotified assignments whose start
	// falls inside the [dayStart, dayEnd) window
	GetPendingNotifications(ctx context.Context, dayStart, dayEnd time.Time) ([]ShiftAssignment, error)
	// MarkNotifiedWithRecord flips the assignment's notified flag and
	// appends the sent record in the same transaction
	MarkNotifiedWithRecord(ctx context.Context, assignmentID int64, record *NotificationRecord) error
	InsertNotificationRecord(ctx context.Context, record *NotificationRecord) (*NotificationRecord, error)
	GetNotificationRecords(ctx context.Context, assignmentID int64) ([]NotificationRecord, error)
}
