// Package dispatch composes and delivers on-call notifications, with a
// bounded retry policy, error classification and an append-only audit
// trail.
package dispatch

import (
	"context"
	"errors"
	"fmt"
)

// SendResult is the gateway's acknowledgement of an accepted message
type SendResult struct {
	ProviderSID string
	Status      string
}

// Gateway is the outbound messaging contract. Send either returns a
// provider acknowledgement or a *GatewayError carrying the retry
// classification.
type Gateway interface {
	Send(ctx context.Context, to, body string) (*SendResult, error)
}

// GatewayError classifies a delivery failure. Retryable errors (throttling,
// upstream unavailability, transient auth) are retried on the policy
// schedule; permanent errors (malformed or undeliverable address)
// short-circuit the retry loop.
type GatewayError struct {
	Code      int
	Message   string
	Retryable bool
}

func (e *GatewayError) Error() string {
	kind := "permanent"
	if e.Retryable {
		kind = "retryable"
	}
	if e.Code != 0 {
		return fmt.Sprintf("gateway error %d (%s): %s", e.Code, kind, e.Message)
	}
	return fmt.Sprintf("gateway error (%s): %s", kind, e.Message)
}

// IsRetryable reports whether err allows another attempt. Unclassified
// errors are treated as permanent so unknown failures cannot loop.
func IsRetryable(err error) bool {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Retryable
	}
	return false
}
