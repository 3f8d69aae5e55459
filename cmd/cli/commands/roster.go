package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/whoseonfirst/oncall/pkg/core/dispatch"
)

// RosterCmd creates the roster command group
func RosterCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roster",
		Short: "Manage the on-call roster",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all participants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			participants, err := app.Database.ListParticipants(app.Ctx)
			if err != nil {
				return err
			}
			if len(participants) == 0 {
				fmt.Println("Roster is empty.")
				return nil
			}

			for _, p := range participants {
				state := "inactive"
				order := "-"
				if p.Active {
					state = "active"
					if p.RotationOrder != nil {
						order = strconv.Itoa(*p.RotationOrder)
					}
				}
				fmt.Printf("  %3d  %-20s %-14s %-8s order %s\n",
					p.ID, p.Name, dispatch.MaskPhone(p.Phone), state, order)
			}
			return nil
		},
	})

	var secondaryPhone string
	addCmd := &cobra.Command{
		Use:   "add <name> <phone>",
		Short: "Add a participant to the end of the rotation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, phone := args[0], args[1]
			if !strings.HasPrefix(phone, "+") {
				return fmt.Errorf("phone must be in E.164 format, e.g. +15551234567")
			}

			participant, err := app.Database.AddParticipant(app.Ctx, name, phone, secondaryPhone)
			if err != nil {
				return err
			}
			fmt.Printf("✓ Added %s at rotation position %d. Regenerate future weeks to include them.\n",
				participant.Name, *participant.RotationOrder)
			return nil
		},
	}
	addCmd.Flags().StringVar(&secondaryPhone, "secondary-phone", "", "Optional secondary phone number")
	cmd.AddCommand(addCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "activate <participant_id>",
		Short: "Return a participant to the rotation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("participant_id must be a number: %w", err)
			}
			if err := app.Database.ActivateParticipant(app.Ctx, id); err != nil {
				return err
			}
			fmt.Println("✓ Participant activated. Regenerate future weeks to include them.")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "deactivate <participant_id>",
		Short: "Remove a participant from the rotation",
		Long: `Deactivate a participant. The rotation order of the remaining active
participants is compacted. Existing assignments are not changed; run
'regenerate' to rebuild future weeks without them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("participant_id must be a number: %w", err)
			}
			if err := app.Database.DeactivateParticipant(app.Ctx, id); err != nil {
				return err
			}
			fmt.Println("✓ Participant deactivated. Regenerate future weeks to exclude them.")
			return nil
		},
	})

	return cmd
}
