package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/whoseonfirst/oncall/pkg/core/services"
	"github.com/whoseonfirst/oncall/pkg/db"
)

// GenerateCmd creates the generate command
func GenerateCmd(app *AppContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "generate <start_date> <weeks>",
		Short: "Generate a rotation schedule starting from the given date",
		Long: `Generate a rotation schedule starting from the Monday of the week
containing start_date (YYYY-MM-DD). Fails if any of the target weeks already
have assignments, unless --force is given to replace them.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			startDate, err := parseDate(args[0], app)
			if err != nil {
				return err
			}
			weeks, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("weeks must be a number: %w", err)
			}

			result, err := services.GenerateSchedule(app.Ctx, app.Database, app.Database, app.Logger, app.Cfg.Location(), startDate, weeks, force)
			if err != nil {
				return err
			}

			fmt.Printf("\n✓ Schedule generated: %d assignments\n\n", len(result.Assignments))
			printAssignments(result.Assignments)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Replace any existing assignments in the target weeks")
	return cmd
}

// RegenerateCmd creates the regenerate command
func RegenerateCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "regenerate <from_date> <weeks>",
		Short: "Rebuild the schedule from the given date forward",
		Long: `Delete every assignment starting on or after the Monday of the week
containing from_date (YYYY-MM-DD) and regenerate that range. Assignments
that already started, and all notification history, are left untouched.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fromDate, err := parseDate(args[0], app)
			if err != nil {
				return err
			}
			weeks, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("weeks must be a number: %w", err)
			}

			result, err := services.RegenerateFrom(app.Ctx, app.Database, app.Database, app.Logger, app.Cfg.Location(), fromDate, weeks)
			if err != nil {
				return err
			}

			fmt.Printf("\n✓ Schedule regenerated: %d assignments replaced %d\n\n", len(result.Assignments), result.Replaced)
			printAssignments(result.Assignments)
			return nil
		},
	}
}

func parseDate(arg string, app *AppContext) (time.Time, error) {
	date, err := time.ParseInLocation("2006-01-02", arg, app.Cfg.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("date must be YYYY-MM-DD: %w", err)
	}
	return date, nil
}

func printAssignments(assignments []db.ShiftAssignment) {
	var lastWeek = -1
	for _, a := range assignments {
		if a.WeekIndex != lastWeek {
			fmt.Printf("Week of %s:\n", a.StartAt.Format("2006-01-02"))
			lastWeek = a.WeekIndex
		}
		fmt.Printf("  S%d  %s → %s  %s\n",
			a.ShiftNumber,
			a.StartAt.Format("Mon 15:04"),
			a.EndAt.Format("Mon 15:04"),
			a.ParticipantName)
	}
	fmt.Println()
}
