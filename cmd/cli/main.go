package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/whoseonfirst/oncall/cmd/cli/commands"
	"github.com/whoseonfirst/oncall/internal/config"
	"github.com/whoseonfirst/oncall/pkg/clients/twilioclient"
	"github.com/whoseonfirst/oncall/pkg/core/coordinator"
	"github.com/whoseonfirst/oncall/pkg/core/dispatch"
	"github.com/whoseonfirst/oncall/pkg/core/services"
	"github.com/whoseonfirst/oncall/pkg/postgres"
	"github.com/whoseonfirst/oncall/pkg/utils/logging"
)

var (
	env     string
	verbose bool
	app     *commands.AppContext
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "oncall",
		Short: "WhoseOnFirst - on-call rotation scheduling and notification",
		Long: `A tool for generating fair on-call rotation schedules and sending
shift-start notifications over SMS.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initApp()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if app != nil {
				if app.Database != nil {
					app.Database.Close()
				}
				if app.Logger != nil {
					app.Logger.Sync()
				}
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&env, "env", "e", "", "Environment (selects oncall_config.<env>.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show debug output on the console")

	rootCmd.AddCommand(commands.ServeCmd(appRef()))
	rootCmd.AddCommand(commands.GenerateCmd(appRef()))
	rootCmd.AddCommand(commands.RegenerateCmd(appRef()))
	rootCmd.AddCommand(commands.ScheduleCmd(appRef()))
	rootCmd.AddCommand(commands.TriggerCmd(appRef()))
	rootCmd.AddCommand(commands.NotifyCmd(appRef()))
	rootCmd.AddCommand(commands.StatusCmd(appRef()))
	rootCmd.AddCommand(commands.RosterCmd(appRef()))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// appRef returns the shared AppContext, which initApp populates before any
// command runs
func appRef() *commands.AppContext {
	if app == nil {
		app = &commands.AppContext{}
	}
	return app
}

// initApp sets up the logger, configuration, database and dispatch stack
func initApp() error {
	appRef()
	app.Ctx = context.Background()

	var err error
	app.Logger, err = logging.InitLogger(verbose)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	app.Logger.Debug("Loading configuration")
	app.Cfg, err = config.Load(env)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	app.Logger.Debug("Connecting to database")
	app.Database, err = postgres.NewDB(app.Ctx, app.Cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := app.Database.RunMigrations(app.Ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	gateway, err := twilioclient.NewClient(app.Cfg, app.Logger)
	if err != nil {
		return fmt.Errorf("failed to create twilio client: %w", err)
	}

	app.Dispatcher = dispatch.NewDispatcher(
		app.Database, app.Database, app.Database, gateway,
		app.Cfg.Location(), app.Logger)

	app.Coordinator = coordinator.New(
		coordinator.Config{
			Location:             app.Cfg.Location(),
			SendHour:             *app.Cfg.SendHour,
			SendMinute:           *app.Cfg.SendMinute,
			AutoRenewEnabled:     app.Cfg.AutoRenew.Enabled,
			WeeklySummaryEnabled: app.Cfg.WeeklySummary,
			EscalationContacts:   app.Cfg.EscalationContacts,
		},
		app.Dispatcher,
		renewFunc(app),
		app.Logger,
	)

	app.Logger.Debug("Application initialized",
		zap.String("timezone", app.Cfg.Timezone))

	return nil
}

func renewFunc(app *commands.AppContext) coordinator.RenewFunc {
	return func(ctx context.Context, now time.Time) error {
		_, err := services.CheckAutoRenew(ctx, app.Database, app.Database, app.Logger,
			app.Cfg.Location(), now, app.Cfg.AutoRenew.ThresholdWeeks, app.Cfg.AutoRenew.RenewWeeks)
		return err
	}
}
