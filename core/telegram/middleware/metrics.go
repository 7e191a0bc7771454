package middleware

import (
	"context"
	"sync/atomic"

	tele "gopkg.in/telebot.v4"

	tghelpers "github.com/m3rciful/chatstats/core/telegram/helpers"
)

type countersKey struct{}

// counters tracks replies produced while handling one update.
type counters struct {
	messages atomic.Int64
	keyboard atomic.Bool
}

// CountReply records one outgoing reply for the update carried by ctx.
func CountReply(ctx context.Context, hasKeyboard bool) {
	if ctx == nil {
		return
	}
	cnt, ok := ctx.Value(countersKey{}).(*counters)
	if !ok {
		return
	}
	cnt.messages.Add(1)
	if hasKeyboard {
		cnt.keyboard.Store(true)
	}
}

// MessageMetricsMiddleware attaches reply counters to the update context.
// It must run after LoggerMiddleware.
func MessageMetricsMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.Context(c)
		ctx = context.WithValue(ctx, countersKey{}, &counters{})
		tghelpers.Store(c, ctx)
		return next(c)
	}
}

// GetCounters reads the reply count and keyboard flag of the current update.
func GetCounters(c tele.Context) (int, bool) {
	ctx, ok := tghelpers.Load(c)
	if !ok {
		return 0, false
	}
	cnt, ok := ctx.Value(countersKey{}).(*counters)
	if !ok {
		return 0, false
	}
	return int(cnt.messages.Load()), cnt.keyboard.Load()
}
