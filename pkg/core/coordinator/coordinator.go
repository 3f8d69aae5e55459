// Package coordinator owns the scheduled jobs: the daily notification
// dispatch, the nightly schedule renewal check and the weekly coverage
// summary. It wraps a cron runner so job timing is configured in one
// place and manual triggers cannot race the scheduled run.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/whoseonfirst/oncall/pkg/core/dispatch"
)

// ErrDispatchInProgress is returned by TriggerNow when a dispatch run is
// already executing
var ErrDispatchInProgress = errors.New("a dispatch run is already in progress")

// misfireGrace is how late after the scheduled send time a freshly
// started coordinator will still run the day's dispatch
const misfireGrace = 5 * time.Minute

// Dispatcher is the delivery surface the coordinator drives
type Dispatcher interface {
	DispatchDue(ctx context.Context, asOf time.Time) (dispatch.Summary, error)
	SendWeeklySummary(ctx context.Context, now time.Time, contacts []string) (dispatch.Summary, error)
}

// RenewFunc runs the schedule auto-renewal check
type RenewFunc func(ctx context.Context, now time.Time) error

// Config carries the job timing and feature switches
type Config struct {
	Location             *time.Location
	SendHour             int
	SendMinute           int
	AutoRenewEnabled     bool
	WeeklySummaryEnabled bool
	EscalationContacts   []string
}

// Coordinator schedules and serializes the background jobs
type Coordinator struct {
	cfg        Config
	cron       *cron.Cron
	dispatcher Dispatcher
	renew      RenewFunc
	logger     *zap.Logger
	clock      func() time.Time

	mu         sync.Mutex
	started    bool
	dailyEntry cron.EntryID

	// triggerMu serializes dispatch runs across the cron job and manual
	// triggers; dispatching is an atomic flag so Status can read it
	triggerMu   sync.Mutex
	dispatching atomic.Bool
}

// New creates a coordinator. Jobs are registered but nothing runs until
// Start is called.
func New(cfg Config, dispatcher Dispatcher, renew RenewFunc, logger *zap.Logger) *Coordinator {
	cronLogger := &zapCronLogger{logger: logger.Named("cron")}
	runner := cron.New(
		cron.WithLocation(cfg.Location),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger)),
	)

	return &Coordinator{
		cfg:        cfg,
		cron:       runner,
		dispatcher: dispatcher,
		renew:      renew,
		logger:     logger,
		clock:      time.Now,
	}
}

// WithClock overrides the time source, mainly for tests
func (c *Coordinator) WithClock(clock func() time.Time) *Coordinator {
	c.clock = clock
	return c
}

// Start registers the jobs and starts the cron runner. Calling Start on a
// running coordinator is a logged no-op. If the coordinator comes up
// shortly after today's send time it runs the missed dispatch immediately.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		c.logger.Warn("Coordinator already started, ignoring")
		return nil
	}

	dailySpec := c.dispatchSpec()
	entry, err := c.cron.AddFunc(dailySpec, func() { c.runDispatch(ctx) })
	if err != nil {
		return fmt.Errorf("failed to schedule daily dispatch: %w", err)
	}
	c.dailyEntry = entry

	if c.cfg.AutoRenewEnabled && c.renew != nil {
		if _, err := c.cron.AddFunc("0 2 * * *", func() { c.runRenew(ctx) }); err != nil {
			return fmt.Errorf("failed to schedule renewal check: %w", err)
		}
	}

	if c.cfg.WeeklySummaryEnabled && len(c.cfg.EscalationContacts) > 0 {
		if _, err := c.cron.AddFunc(c.weeklySummarySpec(), func() { c.runWeeklySummary(ctx) }); err != nil {
			return fmt.Errorf("failed to schedule weekly summary: %w", err)
		}
	}

	c.cron.Start()
	c.started = true

	c.logger.Info("Coordinator started",
		zap.String("daily_dispatch", dailySpec),
		zap.String("timezone", c.cfg.Location.String()),
		zap.Bool("auto_renew", c.cfg.AutoRenewEnabled),
		zap.Bool("weekly_summary", c.cfg.WeeklySummaryEnabled))

	if c.missedTodaysDispatch() {
		c.logger.Info("Started within the misfire grace window, running today's dispatch now")
		go c.runDispatch(ctx)
	}

	return nil
}

// Stop stops the cron runner and waits for any running job to finish
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return
	}
	<-c.cron.Stop().Done()
	c.started = false
	c.logger.Info("Coordinator stopped")
}

// TriggerNow runs the dispatch immediately, outside the cron schedule. A
// second trigger while one is executing returns ErrDispatchInProgress
// rather than queueing a duplicate run.
func (c *Coordinator) TriggerNow(ctx context.Context) (dispatch.Summary, error) {
	if !c.triggerMu.TryLock() {
		return dispatch.Summary{}, ErrDispatchInProgress
	}
	defer c.triggerMu.Unlock()

	c.dispatching.Store(true)
	defer c.dispatching.Store(false)

	c.logger.Info("Manual dispatch triggered")
	return c.dispatcher.DispatchDue(ctx, c.clock())
}

// Status reports the coordinator's state
type Status struct {
	Started      bool
	Dispatching  bool
	NextDispatch time.Time
}

func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := Status{
		Started:     c.started,
		Dispatching: c.dispatching.Load(),
	}
	if c.started {
		status.NextDispatch = c.cron.Entry(c.dailyEntry).Next
	}
	return status
}

func (c *Coordinator) runDispatch(ctx context.Context) {
	if !c.triggerMu.TryLock() {
		c.logger.Warn("Dispatch already running, skipping scheduled run")
		return
	}
	defer c.triggerMu.Unlock()

	c.dispatching.Store(true)
	defer c.dispatching.Store(false)

	if _, err := c.dispatcher.DispatchDue(ctx, c.clock()); err != nil {
		c.logger.Error("Scheduled dispatch failed", zap.Error(err))
	}
}

func (c *Coordinator) runRenew(ctx context.Context) {
	if err := c.renew(ctx, c.clock()); err != nil {
		c.logger.Error("Schedule renewal check failed", zap.Error(err))
	}
}

func (c *Coordinator) runWeeklySummary(ctx context.Context) {
	if _, err := c.dispatcher.SendWeeklySummary(ctx, c.clock(), c.cfg.EscalationContacts); err != nil {
		c.logger.Error("Weekly summary failed", zap.Error(err))
	}
}

// dispatchSpec is the cron expression for the daily notification run,
// built from the configured send time
func (c *Coordinator) dispatchSpec() string {
	return fmt.Sprintf("%d %d * * *", c.cfg.SendMinute, c.cfg.SendHour)
}

// weeklySummarySpec fires the coverage summary every Monday at the same
// send time as the daily dispatch
func (c *Coordinator) weeklySummarySpec() string {
	return fmt.Sprintf("%d %d * * MON", c.cfg.SendMinute, c.cfg.SendHour)
}

// missedTodaysDispatch reports whether the current time falls inside the
// grace window just after today's scheduled send time
func (c *Coordinator) missedTodaysDispatch() bool {
	now := c.clock().In(c.cfg.Location)
	sendTime := time.Date(now.Year(), now.Month(), now.Day(),
		c.cfg.SendHour, c.cfg.SendMinute, 0, 0, c.cfg.Location)
	return !now.Before(sendTime) && now.Sub(sendTime) < misfireGrace
}

// zapCronLogger adapts zap to the cron logging contract
type zapCronLogger struct {
	logger *zap.Logger
}

func (l *zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Infow(msg, keysAndValues...)
}

func (l *zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
