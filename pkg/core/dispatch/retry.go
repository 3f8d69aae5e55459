package dispatch

import (
	"context"
	"time"
)

// RetryPolicy is the bounded retry schedule for gateway sends. Delays[i]
// is the pause taken before attempt i+1, so a fresh send always starts
// immediately. Sleep is injectable so the policy is testable without
// waiting out real delays.
type RetryPolicy struct {
	Delays []time.Duration
	Sleep  func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy returns the production schedule: three attempts with
// delays of 0s, 60s and 120s
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Delays: []time.Duration{0, 60 * time.Second, 120 * time.Second},
		Sleep:  sleepContext,
	}
}

// MaxAttempts returns how many attempts the policy allows
func (p RetryPolicy) MaxAttempts() int {
	return len(p.Delays)
}

// SendOutcome captures the terminal state of one retry loop
type SendOutcome struct {
	Result   *SendResult
	Attempts int
	Err      error
}

// Succeeded reports whether the loop ended with an accepted send
func (o SendOutcome) Succeeded() bool {
	return o.Err == nil && o.Result != nil
}

// SendWithRetry drives the retry state machine: attempt, classify, delay,
// repeat. A permanent error ends the loop at once; a retryable one
// consumes the next scheduled delay. The outcome always reports how many
// attempts were actually made.
func (p RetryPolicy) SendWithRetry(ctx context.Context, gateway Gateway, to, body string) SendOutcome {
	outcome := SendOutcome{}

	for attempt := 0; attempt < p.MaxAttempts(); attempt++ {
		if delay := p.Delays[attempt]; delay > 0 {
			if err := p.Sleep(ctx, delay); err != nil {
				outcome.Err = err
				return outcome
			}
		}

		outcome.Attempts = attempt + 1
		result, err := gateway.Send(ctx, to, body)
		if err == nil {
			outcome.Result = result
			outcome.Err = nil
			return outcome
		}

		outcome.Err = err
		if !IsRetryable(err) {
			return outcome
		}
	}

	return outcome
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
