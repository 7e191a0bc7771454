// Package netutil decides which Telegram transport failures are transient and
// retries them with exponential backoff.
package netutil

import (
	"context"
	"errors"
	"net"
	"net/url"
	"syscall"
	"time"

	"github.com/sethvargo/go-retry"
)

// ShouldRetry reports whether err is a transient network failure. Telegram
// API errors such as 400 or 403 are final.
func ShouldRetry(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.ECONNREFUSED):
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && (opErr.Op == "dial" || opErr.Timeout()) {
		return true
	}

	// url.Error.Timeout only looks one level down; net.Error below covers the rest.
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Policy bounds how often and how patiently a call is retried.
type Policy struct {
	// MaxRetries is the number of extra attempts after the first one.
	MaxRetries int
	// Backoff is the first delay; each following delay doubles it.
	Backoff time.Duration
	// MaxDelay caps a single delay. Zero leaves delays uncapped.
	MaxDelay time.Duration
}

// RetryFunc is notified before sleeping between attempts.
type RetryFunc func(attempt int, err error, delay time.Duration)

func (p Policy) backoff() retry.Backoff {
	base := p.Backoff
	if base <= 0 {
		base = time.Millisecond
	}
	b := retry.NewExponential(base)
	if p.MaxDelay > 0 {
		b = retry.WithCappedDuration(p.MaxDelay, b)
	}
	retries := p.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return retry.WithMaxRetries(uint64(retries), b)
}

// Do runs fn until it succeeds, fails permanently or the policy runs out.
// It returns the number of attempts made alongside the last error.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error, onRetry RetryFunc) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var (
		attempts int
		lastErr  error
	)
	next := p.backoff()
	observed := retry.BackoffFunc(func() (time.Duration, bool) {
		delay, stop := next.Next()
		if !stop && onRetry != nil {
			onRetry(attempts, lastErr, delay)
		}
		return delay, stop
	})

	err := retry.Do(ctx, observed, func(ctx context.Context) error {
		attempts++
		lastErr = fn(ctx)
		if ShouldRetry(lastErr) {
			return retry.RetryableError(lastErr)
		}
		return lastErr
	})
	return attempts, err
}
