// Package retry runs remote calls with a per-attempt timeout and a bounded,
// non-decreasing backoff schedule. Only transport-level failures are retried;
// everything else, including non-2xx responses that are not explicitly
// whitelisted, is returned to the caller on the first occurrence.
package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
	"time"

	"catalogsync/internal/logger"
	"catalogsync/internal/metrics"
)

// DefaultBackoff is the delay schedule used when a Policy has none.
var DefaultBackoff = []time.Duration{5 * time.Second, 15 * time.Second, 45 * time.Second, 90 * time.Second}

// Policy configures one kind of remote call.
type Policy struct {
	// Name labels log lines and metrics, e.g. "auth" or "page".
	Name string
	// Attempts is the retry budget: the total number of attempts made.
	Attempts int
	// Timeout bounds every single attempt. Zero disables it.
	Timeout time.Duration
	// Backoff[i] is the wait before attempt i+2; the last entry repeats.
	Backoff []time.Duration
	// MaxDelay caps any computed delay. Zero means no cap.
	MaxDelay time.Duration
	// RetryableStatuses whitelists HTTP statuses that may be retried.
	RetryableStatuses []int

	Logger *logger.Logger
	// Sleep waits between attempts. Tests replace it to avoid real delays.
	Sleep func(ctx context.Context, d time.Duration) error
}

// StatusCoder is implemented by errors that carry an HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// Do calls op until it succeeds, fails with a non-retryable error, or the
// budget is exhausted. The last error is returned unchanged.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var (
		zero    T
		lastErr error
		delay   time.Duration
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := runAttempt(ctx, p.Timeout, op)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !p.Retryable(err) {
			return zero, err
		}
		if attempt == attempts {
			break
		}

		delay = p.Delay(attempt, delay)
		metrics.RetryAttempts.WithLabelValues(p.Name).Inc()
		if p.Logger != nil {
			p.Logger.Warn("%s attempt %d/%d failed: %v; retrying in %s", p.Name, attempt, attempts, err, delay)
		}
		if err := sleep(ctx, delay); err != nil {
			return zero, lastErr
		}
	}

	if p.Logger != nil {
		p.Logger.Error("%s failed after %d attempts: %v", p.Name, attempts, lastErr)
	}
	return zero, lastErr
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return op(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return op(attemptCtx)
}

// Delay returns the wait after the given failed attempt (1-based). The
// schedule never shrinks: a delay is never lower than the previous one.
func (p Policy) Delay(attempt int, previous time.Duration) time.Duration {
	schedule := p.Backoff
	if len(schedule) == 0 {
		schedule = DefaultBackoff
	}
	idx := attempt - 1
	if idx >= len(schedule) {
		idx = len(schedule) - 1
	}
	d := schedule[idx]
	if d < previous {
		d = previous
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Retryable applies the status whitelist, then IsRetryable.
func (p Policy) Retryable(err error) bool {
	var sc StatusCoder
	if errors.As(err, &sc) {
		for _, s := range p.RetryableStatuses {
			if s == sc.StatusCode() {
				return true
			}
		}
		return false
	}
	return IsRetryable(err)
}

var transientMarkers = []string{
	"hang up",
	"connection reset",
	"connection refused",
	"broken pipe",
	"timeout",
	"timed out",
	"aborted",
	"no such host",
	"temporary failure in name resolution",
	"unexpected eof",
}

// IsRetryable reports whether err looks like a transient network failure:
// timeouts, resets, DNS failures, aborted or hung-up connections.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
