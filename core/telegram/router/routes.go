package router

import (
	"log/slog"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/chatstats/core/logger"
	tg "github.com/m3rciful/chatstats/core/telegram"
	"github.com/m3rciful/chatstats/core/telegram/callbacks"
	"github.com/m3rciful/chatstats/core/telegram/middleware"
)

// CommandRouteOptions configures CommandRoutes.
type CommandRouteOptions struct {
	AdminID string
	// OnAdminReject answers non-admins calling an admin-only command.
	OnAdminReject tele.HandlerFunc
}

// CommandRoutes returns one route per command and alias. Admin-only commands
// are wrapped with the admin gate.
func CommandRoutes(reg *tg.Registry, opts CommandRouteOptions) []tg.Route {
	if reg == nil {
		return nil
	}
	gate := middleware.AdminOnlyMiddleware(middleware.AdminOptions{
		AdminID:  opts.AdminID,
		OnReject: opts.OnAdminReject,
	})

	cmds := reg.Commands()
	var routes []tg.Route
	for key, cmd := range cmds {
		inner := cmd.Handler
		if cmd.AdminOnly {
			inner = gate(inner)
		}
		h := func(c tele.Context) error {
			return newSummary(key).run(c, inner)
		}
		routes = append(routes, tg.Route{Endpoint: key, Handler: h})
		for _, alias := range cmd.Aliases {
			routes = append(routes, tg.Route{Endpoint: "/" + strings.TrimPrefix(alias, "/"), Handler: h})
		}
	}

	logger.TWire.Info("routes ready",
		slog.String("event", "complete"),
		slog.Int("commands", len(cmds)),
		slog.Int("callbacks", len(reg.ListCallbacks())),
	)
	return routes
}

// CallbackRoute routes every inline button press by its unique. Presses are
// acknowledged first so the client spinner stops even if the handler fails.
func CallbackRoute(reg *tg.Registry) tg.Route {
	return tg.Route{Endpoint: tele.OnCallback, Handler: func(c tele.Context) error {
		cb := c.Callback()
		if cb == nil {
			return nil
		}
		unique, _ := callbacks.Parse(cb)
		s := newSummary("callback."+handlerName(unique), slog.String("button", logger.SanitizeLimit(unique, 64)))

		_ = c.Respond()

		if h, ok := reg.GetCallback(unique); ok {
			return s.run(c, h)
		}
		fallback := reg.CallbackNotFound()
		if fallback == nil {
			s.skip(c, "not_found")
			return nil
		}
		s.attrs = append(s.attrs, slog.String("reason", "not_found"))
		return s.run(c, fallback)
	}}
}

// TextRoutes returns the OnText route. Slash commands telebot did not match
// directly (aliases, other casing of @bot) are resolved through the registry;
// everything else goes to the text fallback.
func TextRoutes(reg *tg.Registry) []tg.Route {
	return []tg.Route{{Endpoint: tele.OnText, Handler: func(c tele.Context) error {
		text := c.Text()
		if strings.HasPrefix(text, "/") {
			key, cmd, ok := reg.LookupCommand(text)
			if !ok {
				newSummary("unknown_command").skip(c, "not_found")
				return nil
			}
			return newSummary(key).run(c, cmd.Handler)
		}
		if fb := reg.TextFallback(); fb != nil {
			return newSummary("text").run(c, fb)
		}
		newSummary("text").skip(c, "no_fallback")
		return nil
	}}}
}

// MemberRoutes routes member joins, including users added together with
// the bot. telebot calls the handler once per joined user, so h must
// tolerate repeats of the same message.
func MemberRoutes(reg *tg.Registry) []tg.Route {
	h := reg.MemberJoined()
	if h == nil {
		return nil
	}
	joined := func(c tele.Context) error {
		return newSummary("member_joined").run(c, h)
	}
	return []tg.Route{
		{Endpoint: tele.OnUserJoined, Handler: joined},
		{Endpoint: tele.OnAddedToGroup, Handler: joined},
	}
}
