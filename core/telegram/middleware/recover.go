package middleware

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/chatstats/core/errreport"
	"github.com/m3rciful/chatstats/core/logger"
	tghelpers "github.com/m3rciful/chatstats/core/telegram/helpers"
)

// RecoverMiddleware turns a handler panic into an error so one update never
// takes the bot down.
func RecoverMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				ctx := tghelpers.Context(c)
				logger.LogEvent(ctx, logger.TG, slog.LevelError, "tg.panic",
					slog.String("status", "fail"),
					slog.Any("err", r),
					slog.String("stack", string(debug.Stack())),
				)
				errreport.Recover(ctx, r)
				err = fmt.Errorf("panic recovered: %v", r)
			}
		}()
		return next(c)
	}
}
