package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/whoseonfirst/oncall/pkg/core/services"
	"github.com/whoseonfirst/oncall/pkg/db"
)

// ScheduleCmd creates the schedule command
func ScheduleCmd(app *AppContext) *cobra.Command {
	var weeks int
	var participantID int64

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Show the on-call schedule",
		Long: `Show the current week's schedule by default. Use --weeks to look
further ahead, or --participant to see one person's assignments.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()

			if participantID != 0 {
				return showParticipantSchedule(app, participantID, now)
			}

			var assignments []db.ShiftAssignment
			var err error
			if weeks <= 1 {
				assignments, err = services.CurrentWeek(app.Ctx, app.Database, app.Cfg.Location(), now)
			} else {
				assignments, err = services.Upcoming(app.Ctx, app.Database, app.Cfg.Location(), now, weeks)
			}
			if err != nil {
				return err
			}
			if len(assignments) == 0 {
				fmt.Println("No assignments scheduled. Run 'generate' to create a schedule.")
				return nil
			}

			printAssignments(assignments)
			return nil
		},
	}

	cmd.Flags().IntVarP(&weeks, "weeks", "w", 1, "Number of weeks to show")
	cmd.Flags().Int64VarP(&participantID, "participant", "p", 0, "Show one participant's schedule")
	return cmd
}

func showParticipantSchedule(app *AppContext, participantID int64, now time.Time) error {
	participant, err := app.Database.GetParticipant(app.Ctx, participantID)
	if err != nil {
		return err
	}

	next, err := services.NextForParticipant(app.Ctx, app.Database, participantID, now)
	if err != nil {
		return err
	}

	fmt.Printf("\n%s\n", participant.Name)
	if next == nil {
		fmt.Println("No upcoming shifts.")
	} else {
		fmt.Printf("Next shift: S%d starting %s (%dh)\n",
			next.ShiftNumber, next.StartAt.Format("Mon 2006-01-02 15:04"), next.DurationHours)
	}

	assignments, err := services.ForParticipant(app.Ctx, app.Database, participantID)
	if err != nil {
		return err
	}
	if len(assignments) > 0 {
		fmt.Printf("\nAll assignments:\n")
		printAssignments(assignments)
	}
	return nil
}
