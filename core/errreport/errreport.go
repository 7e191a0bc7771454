// Package errreport forwards unexpected failures to Sentry.
// With an empty DSN every call is a no-op.
package errreport

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/m3rciful/chatstats/core/buildinfo"
	"github.com/m3rciful/chatstats/core/logger"
)

// Options configures Init.
type Options struct {
	DSN         string
	Environment string
	SampleRate  float64
}

var enabled atomic.Bool

// Init configures the global Sentry client and returns a flush func for shutdown.
func Init(opts Options) (func(), error) {
	if opts.DSN == "" {
		logger.L.Info("error reporting disabled",
			slog.String("component", "errreport"),
			slog.String("event", "init"),
			slog.String("status", "skip"),
		)
		return func() {}, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         opts.DSN,
		Environment: opts.Environment,
		Release:     buildinfo.Version,
		SampleRate:  opts.SampleRate,
	})
	if err != nil {
		return func() {}, fmt.Errorf("sentry init: %w", err)
	}
	enabled.Store(true)
	logger.L.Info("error reporting enabled",
		slog.String("component", "errreport"),
		slog.String("event", "init"),
		slog.String("environment", opts.Environment),
	)
	return func() {
		sentry.Flush(2 * time.Second)
		enabled.Store(false)
	}, nil
}

// Enabled reports whether Init configured a client.
func Enabled() bool {
	return enabled.Load()
}

// Capture sends err tagged with the update metadata stored in ctx.
func Capture(ctx context.Context, err error) {
	if err == nil || !enabled.Load() {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		tagScope(ctx, scope)
		sentry.CaptureException(err)
	})
}

// Recover reports a recovered panic value.
func Recover(ctx context.Context, r any) {
	if r == nil || !enabled.Load() {
		return
	}
	hub := sentry.CurrentHub().Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) { tagScope(ctx, scope) })
	hub.RecoverWithContext(ctx, r)
}

func tagScope(ctx context.Context, scope *sentry.Scope) {
	if rid := logger.RIDFrom(ctx); rid != "" {
		scope.SetTag("rid", rid)
	}
	if h := logger.HandlerFrom(ctx); h != "" {
		scope.SetTag("handler", h)
	}
	if id := logger.ChatIDFrom(ctx); id != 0 {
		scope.SetTag("chat_id", strconv.FormatInt(id, 10))
	}
	if id := logger.UserIDFrom(ctx); id != 0 {
		scope.SetUser(sentry.User{ID: strconv.FormatInt(id, 10)})
	}
}
