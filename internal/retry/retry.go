// Package retry classifies transport failures and re-issues retryable
// calls with exponential backoff and jitter.
package retry

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"

	oserrors "gominio/errors"
)

// Default backoff shape. The attempt bound comes from client configuration.
const (
	defaultInitialInterval = 100 * time.Millisecond
	defaultMaxInterval     = 3 * time.Second
)

// Controller wraps transport calls with bounded, jittered retries.
type Controller struct {
	maxAttempts int
	logger      *log.Logger

	// initialInterval is overridable for tests.
	initialInterval time.Duration
}

// New creates a Controller allowing maxAttempts total attempts per call.
// Values below 1 are treated as 1 (no retries).
func New(maxAttempts int, logger *log.Logger) *Controller {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Controller{
		maxAttempts:     maxAttempts,
		logger:          logger,
		initialInterval: defaultInitialInterval,
	}
}

// Do invokes fn until it succeeds, fails permanently, the context ends, or
// the attempt bound is reached. Exceeding the bound surfaces the last error
// wrapped in ErrRetriesExhausted. fn must be safe to re-issue; callers wrap
// non-idempotent operations with their own safeguards before using Do.
func (c *Controller) Do(ctx context.Context, op string, fn func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.initialInterval
	bo.MaxInterval = defaultMaxInterval

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		callErr := fn()
		if callErr == nil {
			return nil
		}
		if !Retryable(callErr) {
			return backoff.Permanent(callErr)
		}
		c.logger.Debug("retrying", "op", op, "attempt", attempt, "err", callErr)
		return callErr
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.maxAttempts-1)), ctx))

	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if Retryable(err) {
		return &exhaustedError{attempts: attempt, err: err}
	}
	return err
}

// Retryable reports whether err is transient: network-level failures,
// throttling, and 5xx responses. Signature errors, not-found, other 4xx,
// and context cancellation are fatal.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, oserrors.ErrConnectionFailed) {
		return true
	}

	var remote *oserrors.RemoteError
	if errors.As(err, &remote) {
		switch remote.Code {
		case "SlowDown", "TooManyRequests", "RequestTimeout", "InternalError", "ServiceUnavailable":
			return true
		}
		// Some servers throttle without a recognizable error code.
		return remote.StatusCode == http.StatusTooManyRequests || remote.StatusCode >= 500
	}
	return false
}

// exhaustedError wraps the last transient error once the attempt budget is
// spent, keeping the cause reachable through errors.Is/As.
type exhaustedError struct {
	attempts int
	err      error
}

func (e *exhaustedError) Error() string {
	return oserrors.ErrRetriesExhausted.Error() + ": " + e.err.Error()
}

func (e *exhaustedError) Unwrap() []error {
	return []error{oserrors.ErrRetriesExhausted, e.err}
}
