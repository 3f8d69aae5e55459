package commands

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// ServeCmd creates the serve command
func ServeCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the notification dispatcher in the foreground",
		Long: `Start the job coordinator and keep it running. The daily dispatch fires
at the configured send time; the schedule renewal check and weekly summary
run on their own schedules when enabled. Stop with Ctrl-C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(app.Ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := app.Coordinator.Start(ctx); err != nil {
				return err
			}

			status := app.Coordinator.Status()
			fmt.Printf("Dispatcher running. Next dispatch at %s. Ctrl-C to stop.\n",
				status.NextDispatch.In(app.Cfg.Location()).Format("2006-01-02 15:04"))

			<-ctx.Done()
			fmt.Println("\nShutting down...")
			app.Coordinator.Stop()
			return nil
		},
	}
}
