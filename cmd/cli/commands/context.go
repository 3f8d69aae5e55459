package commands

import (
	"context"

	"go.uber.org/zap"

	"github.com/whoseonfirst/oncall/internal/config"
	"github.com/whoseonfirst/oncall/pkg/core/coordinator"
	"github.com/whoseonfirst/oncall/pkg/core/dispatch"
	"github.com/whoseonfirst/oncall/pkg/postgres"
)

// AppContext holds the application dependencies shared across all commands
type AppContext struct {
	Cfg         *config.Config
	Database    *postgres.DB
	Dispatcher  *dispatch.Dispatcher
	Coordinator *coordinator.Coordinator
	Logger      *zap.Logger
	Ctx         context.Context
}
