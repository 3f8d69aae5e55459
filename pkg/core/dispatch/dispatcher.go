package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/whoseonfirst/oncall/pkg/db"
)

// defaultParallelism bounds concurrent gateway sends within one run
const defaultParallelism = 4

// ScheduleReader is the read access the weekly summary needs
type ScheduleReader interface {
	GetByDateRange(ctx context.Context, start, end time.Time) ([]db.ShiftAssignment, error)
}

// Dispatcher delivers due on-call notifications through the gateway and
// keeps the audit trail. Each participant's retry loop is independent and
// each audit write is its own transaction, so one failure cannot roll back
// another's success.
type Dispatcher struct {
	store       db.DispatchStore
	roster      db.RosterStore
	schedule    ScheduleReader
	gateway     Gateway
	policy      RetryPolicy
	loc         *time.Location
	logger      *zap.Logger
	parallelism int
}

// NewDispatcher creates a dispatcher with the default retry policy and
// send parallelism
func NewDispatcher(store db.DispatchStore, roster db.RosterStore, schedule ScheduleReader, gateway Gateway, loc *time.Location, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		store:       store,
		roster:      roster,
		schedule:    schedule,
		gateway:     gateway,
		policy:      DefaultRetryPolicy(),
		loc:         loc,
		logger:      logger,
		parallelism: defaultParallelism,
	}
}

// WithRetryPolicy overrides the retry schedule, mainly for tests
func (d *Dispatcher) WithRetryPolicy(policy RetryPolicy) *Dispatcher {
	d.policy = policy
	return d
}

// Summary reports the outcome of one dispatch run
type Summary struct {
	Total   int
	Sent    int
	Failed  int
	Skipped int
}

// DispatchDue sends notifications for every unnotified assignment whose
// start falls on asOf's civil day. Per-message failures are captured in the
// audit trail and the summary; they never abort the batch.
func (d *Dispatcher) DispatchDue(ctx context.Context, asOf time.Time) (Summary, error) {
	runID := uuid.New().String()
	local := asOf.In(d.loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, d.loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	logger := d.logger.With(zap.String("run_id", runID))
	logger.Info("Starting dispatch run", zap.String("day", dayStart.Format("2006-01-02")))

	pending, err := d.store.GetPendingNotifications(ctx, dayStart, dayEnd)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to load pending notifications: %w", err)
	}

	summary := Summary{Total: len(pending)}
	if len(pending) == 0 {
		logger.Info("No pending notifications for today")
		return summary, nil
	}

	logger.Info("Found assignments requiring notification", zap.Int("count", len(pending)))

	var sent, failed, skipped atomic.Int64

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(d.parallelism)

	for _, assignment := range pending {
		assignment := assignment
		group.Go(func() error {
			switch d.notifyOne(groupCtx, logger, assignment) {
			case outcomeSent:
				sent.Add(1)
			case outcomeSkipped:
				skipped.Add(1)
			default:
				failed.Add(1)
			}
			// Per-message errors are recorded, never propagated: one bad
			// address must not abort the batch
			return nil
		})
	}
	group.Wait()

	summary.Sent = int(sent.Load())
	summary.Failed = int(failed.Load())
	summary.Skipped = int(skipped.Load())

	logger.Info("Dispatch run complete",
		zap.Int("sent", summary.Sent),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("total", summary.Total))

	return summary, nil
}

type notifyOutcome int

const (
	outcomeSent notifyOutcome = iota
	outcomeFailed
	outcomeSkipped
)

func (d *Dispatcher) notifyOne(ctx context.Context, logger *zap.Logger, assignment db.ShiftAssignment) notifyOutcome {
	logger = logger.With(
		zap.Int64("assignment_id", assignment.ID),
		zap.String("participant", assignment.ParticipantName),
		zap.String("phone", MaskPhone(assignment.ParticipantPhone)),
	)

	if assignment.Notified {
		logger.Info("Assignment already notified, skipping")
		return outcomeSkipped
	}

	body := ComposeMessage(assignment)
	outcome := d.policy.SendWithRetry(ctx, d.gateway, assignment.ParticipantPhone, body)

	record := &db.NotificationRecord{
		AssignmentID:   &assignment.ID,
		RecipientName:  assignment.ParticipantName,
		RecipientPhone: assignment.ParticipantPhone,
	}

	if outcome.Succeeded() {
		record.Status = db.NotificationStatusSent
		record.ProviderSID = outcome.Result.ProviderSID

		if err := d.store.MarkNotifiedWithRecord(ctx, assignment.ID, record); err != nil {
			logger.Error("Failed to persist sent notification", zap.Error(err))
			return outcomeFailed
		}

		logger.Info("Notification sent",
			zap.String("provider_sid", outcome.Result.ProviderSID),
			zap.Int("attempts", outcome.Attempts))
		return outcomeSent
	}

	record.Status = db.NotificationStatusFailed
	record.ErrorMessage = outcome.Err.Error()

	if _, err := d.store.InsertNotificationRecord(ctx, record); err != nil {
		logger.Error("Failed to persist failed notification", zap.Error(err))
	}

	logger.Error("Notification delivery failed",
		zap.Int("attempts", outcome.Attempts),
		zap.Error(outcome.Err))
	return outcomeFailed
}

// SendManual sends an ad-hoc message to one participant, bypassing the
// notified and due-today filters and the schedule entirely. The audit
// record carries a nil assignment reference, so regeneration can never
// make the manual path unreliable.
func (d *Dispatcher) SendManual(ctx context.Context, participantID int64, messageOverride string) (*db.NotificationRecord, error) {
	participant, err := d.roster.GetParticipant(ctx, participantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load participant: %w", err)
	}

	body := messageOverride
	if body == "" {
		body = fmt.Sprintf("WhoseOnFirst: %s, this is a manual page. Please check in with admin.", participant.Name)
	}
	if len(body) > maxMessageLength {
		body = body[:maxMessageLength-3] + "..."
	}

	logger := d.logger.With(
		zap.Int64("participant_id", participantID),
		zap.String("phone", MaskPhone(participant.Phone)))
	logger.Info("Sending manual notification")

	outcome := d.policy.SendWithRetry(ctx, d.gateway, participant.Phone, body)

	record := &db.NotificationRecord{
		AssignmentID:   nil,
		RecipientName:  participant.Name,
		RecipientPhone: participant.Phone,
	}
	if outcome.Succeeded() {
		record.Status = db.NotificationStatusSent
		record.ProviderSID = outcome.Result.ProviderSID
	} else {
		record.Status = db.NotificationStatusFailed
		record.ErrorMessage = outcome.Err.Error()
	}

	stored, err := d.store.InsertNotificationRecord(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("failed to record manual notification: %w", err)
	}

	if outcome.Succeeded() {
		logger.Info("Manual notification sent", zap.String("provider_sid", record.ProviderSID))
	} else {
		logger.Error("Manual notification failed", zap.Error(outcome.Err))
	}

	return stored, nil
}

// SendWeeklySummary composes the next seven days of coverage and sends it
// to each escalation contact. Records carry nil assignment references like
// manual sends.
func (d *Dispatcher) SendWeeklySummary(ctx context.Context, now time.Time, contacts []string) (Summary, error) {
	if len(contacts) == 0 {
		return Summary{}, nil
	}

	local := now.In(d.loc)
	weekStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, d.loc)
	weekEnd := weekStart.AddDate(0, 0, 7)

	assignments, err := d.schedule.GetByDateRange(ctx, weekStart, weekEnd)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to load week schedule: %w", err)
	}

	body := composeWeeklySummary(assignments, weekStart)
	summary := Summary{Total: len(contacts)}

	for _, contact := range contacts {
		outcome := d.policy.SendWithRetry(ctx, d.gateway, contact, body)

		record := &db.NotificationRecord{
			RecipientName:  "escalation contact",
			RecipientPhone: contact,
		}
		if outcome.Succeeded() {
			record.Status = db.NotificationStatusSent
			record.ProviderSID = outcome.Result.ProviderSID
			summary.Sent++
		} else {
			record.Status = db.NotificationStatusFailed
			record.ErrorMessage = outcome.Err.Error()
			summary.Failed++
			d.logger.Error("Weekly summary delivery failed",
				zap.String("phone", MaskPhone(contact)),
				zap.Error(outcome.Err))
		}

		if _, err := d.store.InsertNotificationRecord(ctx, record); err != nil {
			d.logger.Error("Failed to record weekly summary notification", zap.Error(err))
		}
	}

	return summary, nil
}

func composeWeeklySummary(assignments []db.ShiftAssignment, weekStart time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "WhoseOnFirst week of %s:", weekStart.Format("Jan 2"))
	if len(assignments) == 0 {
		b.WriteString(" no coverage scheduled")
		return b.String()
	}
	for _, a := range assignments {
		// 48h shifts are listed once with their full span
		if a.DurationHours > 24 {
			fmt.Fprintf(&b, "\n%s-%s: %s",
				a.StartAt.Format("Mon"), a.EndAt.Format("Mon"), a.ParticipantName)
		} else {
			fmt.Fprintf(&b, "\n%s: %s", a.StartAt.Format("Mon"), a.ParticipantName)
		}
	}
	return b.String()
}
