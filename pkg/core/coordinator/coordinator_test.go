package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/whoseonfirst/oncall/pkg/core/dispatch"
)

var chicago = mustLoadLocation("America/Chicago")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// blockingDispatcher records calls and can hold a dispatch open until
// released
type blockingDispatcher struct {
	mu           sync.Mutex
	dispatchArgs []time.Time
	summaryCalls int
	started      chan struct{}
	release      chan struct{}
}

func newBlockingDispatcher() *blockingDispatcher {
	return &blockingDispatcher{
		started: make(chan struct{}, 8),
		release: make(chan struct{}),
	}
}

func (d *blockingDispatcher) DispatchDue(ctx context.Context, asOf time.Time) (dispatch.Summary, error) {
	d.mu.Lock()
	d.dispatchArgs = append(d.dispatchArgs, asOf)
	d.mu.Unlock()
	d.started <- struct{}{}
	<-d.release
	return dispatch.Summary{Total: 1, Sent: 1}, nil
}

func (d *blockingDispatcher) SendWeeklySummary(ctx context.Context, now time.Time, contacts []string) (dispatch.Summary, error) {
	d.mu.Lock()
	d.summaryCalls++
	d.mu.Unlock()
	return dispatch.Summary{}, nil
}

func (d *blockingDispatcher) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dispatchArgs)
}

func testConfig() Config {
	return Config{
		Location:   chicago,
		SendHour:   8,
		SendMinute: 0,
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestTriggerNow(t *testing.T) {
	dispatcher := newBlockingDispatcher()
	close(dispatcher.release)
	now := time.Date(2025, 3, 3, 10, 0, 0, 0, chicago)
	c := New(testConfig(), dispatcher, nil, zap.NewNop()).WithClock(fixedClock(now))

	summary, err := c.TriggerNow(context.Background())
	require.NoError(t, err)

	assert.Equal(t, dispatch.Summary{Total: 1, Sent: 1}, summary)
	require.Equal(t, 1, dispatcher.calls())
	assert.True(t, dispatcher.dispatchArgs[0].Equal(now))
}

func TestTriggerNow_SecondTriggerRejectedWhileRunning(t *testing.T) {
	dispatcher := newBlockingDispatcher()
	c := New(testConfig(), dispatcher, nil, zap.NewNop())

	done := make(chan error, 1)
	go func() {
		_, err := c.TriggerNow(context.Background())
		done <- err
	}()

	// Wait until the first run is inside the dispatcher
	<-dispatcher.started
	assert.True(t, c.Status().Dispatching)

	_, err := c.TriggerNow(context.Background())
	assert.ErrorIs(t, err, ErrDispatchInProgress)

	close(dispatcher.release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, dispatcher.calls())
	assert.False(t, c.Status().Dispatching)
}

func TestStart_Idempotent(t *testing.T) {
	dispatcher := newBlockingDispatcher()
	close(dispatcher.release)
	now := time.Date(2025, 3, 3, 10, 0, 0, 0, chicago)
	c := New(testConfig(), dispatcher, nil, zap.NewNop()).WithClock(fixedClock(now))

	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()
	require.NoError(t, c.Start(context.Background()))

	status := c.Status()
	assert.True(t, status.Started)
	require.False(t, status.NextDispatch.IsZero())
	next := status.NextDispatch.In(chicago)
	assert.Equal(t, 8, next.Hour())
	assert.Equal(t, 0, next.Minute())
}

func TestStart_MisfireCatchUp(t *testing.T) {
	dispatcher := newBlockingDispatcher()
	close(dispatcher.release)
	// Two minutes past the scheduled send time
	now := time.Date(2025, 3, 3, 8, 2, 0, 0, chicago)
	c := New(testConfig(), dispatcher, nil, zap.NewNop()).WithClock(fixedClock(now))

	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	select {
	case <-dispatcher.started:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a catch-up dispatch run")
	}
	assert.True(t, dispatcher.dispatchArgs[0].Equal(now))
}

func TestStart_NoCatchUpOutsideGraceWindow(t *testing.T) {
	dispatcher := newBlockingDispatcher()
	close(dispatcher.release)
	now := time.Date(2025, 3, 3, 8, 30, 0, 0, chicago)
	c := New(testConfig(), dispatcher, nil, zap.NewNop()).WithClock(fixedClock(now))

	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	select {
	case <-dispatcher.started:
		t.Fatal("no catch-up run expected outside the grace window")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStatus_BeforeStart(t *testing.T) {
	c := New(testConfig(), newBlockingDispatcher(), nil, zap.NewNop())

	status := c.Status()
	assert.False(t, status.Started)
	assert.True(t, status.NextDispatch.IsZero())
}

func TestCronSpecs_FollowConfiguredSendTime(t *testing.T) {
	cfg := testConfig()
	cfg.SendHour = 9
	cfg.SendMinute = 30
	c := New(cfg, newBlockingDispatcher(), nil, zap.NewNop())

	assert.Equal(t, "30 9 * * *", c.dispatchSpec())
	assert.Equal(t, "30 9 * * MON", c.weeklySummarySpec())
}

func TestStart_RegistersRenewJob(t *testing.T) {
	cfg := testConfig()
	cfg.AutoRenewEnabled = true
	renewed := false
	renew := func(ctx context.Context, now time.Time) error {
		renewed = true
		return nil
	}
	dispatcher := newBlockingDispatcher()
	close(dispatcher.release)
	now := time.Date(2025, 3, 3, 10, 0, 0, 0, chicago)
	c := New(cfg, dispatcher, renew, zap.NewNop()).WithClock(fixedClock(now))

	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	c.runRenew(context.Background())
	assert.True(t, renewed)
}
