// Package router turns registry entries into telebot routes. Every routed
// update ends with one handler.handled line summarizing what happened.
package router

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/chatstats/core/logger"
	tghelpers "github.com/m3rciful/chatstats/core/telegram/helpers"
	"github.com/m3rciful/chatstats/core/telegram/middleware"
)

// OutcomeKey is the tele.Context key a handler sets to report a non-default
// outcome such as "denied" or "hint".
const OutcomeKey = "outcome"

// summary collects what the handler.handled line reports for one update.
type summary struct {
	handler string
	start   time.Time
	attrs   []slog.Attr
}

func newSummary(handler string, attrs ...slog.Attr) *summary {
	return &summary{handler: handlerName(handler), start: time.Now(), attrs: attrs}
}

// run tags the update context with the handler name, calls h and logs the result.
func (s *summary) run(c tele.Context, h tele.HandlerFunc) error {
	tghelpers.WithHandler(c, s.handler)
	err := h(c)
	s.log(c, "", err)
	return err
}

// skip logs an update nobody handled.
func (s *summary) skip(c tele.Context, reason string) {
	s.attrs = append(s.attrs, slog.String("reason", reason))
	s.log(c, "skip", nil)
}

func (s *summary) log(c tele.Context, status string, err error) {
	ctx := tghelpers.WithHandler(c, s.handler)
	if status == "" {
		status = logger.Status(err)
	}
	outcome, _ := c.Get(OutcomeKey).(string)
	if outcome == "" {
		outcome = status
	}
	msgs, kb := middleware.GetCounters(c)

	attrs := append([]slog.Attr{
		slog.String("status", status),
		slog.String("outcome", outcome),
		slog.Int("messages", msgs),
		slog.Bool("kb", kb),
		slog.Duration("duration", logger.Took(s.start)),
	}, s.attrs...)

	lvl := slog.LevelInfo
	if err != nil {
		lvl = slog.LevelWarn
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.String("err_code", errorCode(err)),
		)
	}
	logger.LogEvent(ctx, logger.TG, lvl, "handler.handled", attrs...)
}

// handlerName turns "/SetName" or "set name" into "setname" / "set_name".
func handlerName(name string) string {
	name = strings.TrimPrefix(strings.TrimSpace(name), "/")
	if name == "" {
		return "unknown"
	}
	return strings.ToLower(strings.ReplaceAll(name, " ", "_"))
}

// errorCode prefers a Code() string from the error chain, then the
// concrete type name of err.
func errorCode(err error) string {
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		if code := strings.TrimSpace(coded.Code()); code != "" {
			return strings.ToUpper(strings.ReplaceAll(code, " ", "_"))
		}
	}
	typ := strings.TrimLeft(fmt.Sprintf("%T", err), "*")
	if i := strings.LastIndexByte(typ, '.'); i >= 0 {
		typ = typ[i+1:]
	}
	if typ == "" {
		return "UNKNOWN_ERROR"
	}
	return strings.ToUpper(typ)
}
