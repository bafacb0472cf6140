package dremio

import (
	"context"
	"errors"
	"net/http"
	"time"

	qlerrors "github.com/querylens/querylens/pkg/errors"
)

// Outcome classifies the result of one request attempt. The gateway
// maps HTTP statuses and transport errors onto outcomes; RetryPolicy
// only ever sees the classification.
type Outcome int

const (
	// OutcomeSuccess terminates the attempt loop immediately.
	OutcomeSuccess Outcome = iota
	// OutcomeAuthExpired is a 401. Handled outside the backoff budget:
	// one immediate re-authentication retry per logical call.
	OutcomeAuthExpired
	// OutcomeTransientServerError is a 5xx or a non-timeout transport
	// failure. Retried with exponential backoff.
	OutcomeTransientServerError
	// OutcomeRateOrTimeout is a 408/429 or a blown per-call timeout.
	// Retried with exponential backoff.
	OutcomeRateOrTimeout
	// OutcomeClientError is any other 4xx. Never retried.
	OutcomeClientError
)

// String returns the outcome name for logging.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeAuthExpired:
		return "auth_expired"
	case OutcomeTransientServerError:
		return "transient_server_error"
	case OutcomeRateOrTimeout:
		return "rate_or_timeout"
	case OutcomeClientError:
		return "client_error"
	default:
		return "unknown"
	}
}

// Decision is the verdict for one attempt.
type Decision struct {
	// Retry is true when the caller should attempt again after Delay.
	Retry bool
	// Delay is the backoff to sleep before the next attempt. Zero for
	// the immediate re-authentication retry.
	Delay time.Duration
}

// GiveUp is the terminal decision.
var GiveUp = Decision{}

// RetryPolicy decides retry-vs-abort for a given attempt number and
// outcome. It is a pure decision function: the caller performs the
// sleep and tracks the single re-authentication retry.
type RetryPolicy struct {
	// MaxAttempts is the total attempt budget for backoff-retryable
	// outcomes, including the first attempt.
	MaxAttempts int
	// BaseDelay is the first backoff delay; attempt n sleeps
	// BaseDelay * 2^(n-1).
	BaseDelay time.Duration
	// MaxDelay caps the computed backoff.
	MaxDelay time.Duration
}

// DefaultRetryPolicy matches the engine's documented guidance: three
// total attempts, one second base delay.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// Decide returns the verdict for a 1-based attempt number and an
// outcome. AuthExpired always yields an immediate retry; the caller
// enforces the at-most-once rule since that retry sits outside the
// exponential budget.
func (p *RetryPolicy) Decide(attempt int, outcome Outcome) Decision {
	switch outcome {
	case OutcomeSuccess, OutcomeClientError:
		return GiveUp
	case OutcomeAuthExpired:
		return Decision{Retry: true}
	case OutcomeTransientServerError, OutcomeRateOrTimeout:
		if attempt >= p.MaxAttempts {
			return GiveUp
		}
		return Decision{Retry: true, Delay: p.backoff(attempt)}
	default:
		return GiveUp
	}
}

// backoff computes BaseDelay * 2^(attempt-1), capped at MaxDelay.
func (p *RetryPolicy) backoff(attempt int) time.Duration {
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// ClassifyStatus maps an HTTP status code onto an Outcome.
func ClassifyStatus(status int) Outcome {
	switch {
	case status >= 200 && status < 300:
		return OutcomeSuccess
	case status == http.StatusUnauthorized:
		return OutcomeAuthExpired
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return OutcomeRateOrTimeout
	case status >= 500:
		return OutcomeTransientServerError
	case status >= 400:
		return OutcomeClientError
	default:
		return OutcomeTransientServerError
	}
}

// ClassifyError maps a transport-level error onto an Outcome. Blown
// deadlines count as RateOrTimeout; a rejected login is terminal, since
// repeating it would re-run the same doomed credential exchange;
// everything else is transient.
func ClassifyError(err error) Outcome {
	if errors.Is(err, context.DeadlineExceeded) {
		return OutcomeRateOrTimeout
	}
	if qlerrors.IsType(err, qlerrors.ErrorTypeTimeout) {
		return OutcomeRateOrTimeout
	}
	if qlerrors.IsType(err, qlerrors.ErrorTypeAuthentication) {
		return OutcomeClientError
	}
	return OutcomeTransientServerError
}
