package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/whoseonfirst/oncall/pkg/core/dispatch"
	"github.com/whoseonfirst/oncall/pkg/db"
)

// TriggerCmd creates the trigger command
func TriggerCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "trigger",
		Short: "Run today's notification dispatch immediately",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := app.Coordinator.TriggerNow(app.Ctx)
			if err != nil {
				return err
			}
			printSummary(summary)
			return nil
		},
	}
}

// NotifyCmd creates the notify command
func NotifyCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "notify <participant_id> [message]",
		Short: "Send a manual page to one participant",
		Long: `Send an ad-hoc message to a participant, independent of the schedule.
With no message a default page is sent. The delivery is recorded in the
notification history without an assignment reference.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			participantID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("participant_id must be a number: %w", err)
			}
			message := strings.Join(args[1:], " ")

			record, err := app.Dispatcher.SendManual(app.Ctx, participantID, message)
			if err != nil {
				return err
			}

			if record.Status == db.NotificationStatusSent {
				fmt.Printf("✓ Sent to %s (%s)\n", record.RecipientName, dispatch.MaskPhone(record.RecipientPhone))
			} else {
				fmt.Printf("✗ Delivery to %s failed: %s\n", record.RecipientName, record.ErrorMessage)
			}
			return nil
		},
	}
}

// StatusCmd creates the status command
func StatusCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status [assignment_id]",
		Short: "Show dispatch status and recent notification history",
		Long: `Show the coordinator state, schedule coverage and recent notification
history. With an assignment id, show every delivery attempt recorded for
that assignment instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				assignmentID, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("assignment_id must be a number: %w", err)
				}
				return showAssignmentHistory(app, assignmentID)
			}

			status := app.Coordinator.Status()
			if status.Started {
				fmt.Printf("Coordinator running, next dispatch at %s\n",
					status.NextDispatch.In(app.Cfg.Location()).Format("2006-01-02 15:04"))
			} else {
				fmt.Printf("Coordinator not running (daily send time %02d:%02d %s)\n",
					*app.Cfg.SendHour, *app.Cfg.SendMinute, app.Cfg.Timezone)
			}
			if status.Dispatching {
				fmt.Println("A dispatch run is in progress.")
			}

			furthest, err := app.Database.FurthestStart(app.Ctx)
			if err != nil {
				return err
			}
			if furthest == nil {
				fmt.Println("No schedule exists.")
			} else {
				fmt.Printf("Schedule covers through %s\n", furthest.In(app.Cfg.Location()).Format("2006-01-02"))
			}

			records, err := app.Database.RecentNotificationRecords(app.Ctx, 10)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("No notifications sent yet.")
				return nil
			}

			fmt.Println("\nRecent notifications:")
			for _, r := range records {
				marker := "✓"
				detail := r.ProviderSID
				if r.Status != db.NotificationStatusSent {
					marker = "✗"
					detail = r.ErrorMessage
				}
				fmt.Printf("  %s %s  %-20s %s\n",
					marker, r.SentAt.In(app.Cfg.Location()).Format("2006-01-02 15:04"), r.RecipientName, detail)
			}
			return nil
		},
	}
}

func showAssignmentHistory(app *AppContext, assignmentID int64) error {
	records, err := app.Database.GetNotificationRecords(app.Ctx, assignmentID)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No notifications recorded for this assignment.")
		return nil
	}

	for _, r := range records {
		marker := "✓"
		detail := r.ProviderSID
		if r.Status != db.NotificationStatusSent {
			marker = "✗"
			detail = r.ErrorMessage
		}
		fmt.Printf("  %s %s  %-20s %s\n",
			marker, r.SentAt.In(app.Cfg.Location()).Format("2006-01-02 15:04"), r.RecipientName, detail)
	}
	return nil
}

func printSummary(summary dispatch.Summary) {
	fmt.Printf("Dispatch complete: %d sent, %d failed, %d skipped (of %d due)\n",
		summary.Sent, summary.Failed, summary.Skipped, summary.Total)
}
