package middleware

import (
	"log/slog"
	"strconv"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/chatstats/core/logger"
	tghelpers "github.com/m3rciful/chatstats/core/telegram/helpers"
)

// AdminOptions defines how admin-only checks should behave.
type AdminOptions struct {
	// AdminID is compared verbatim with the sender id in base 10.
	AdminID  string
	OnReject tele.HandlerFunc
}

// IsAdmin reports whether userID matches the configured admin identity.
// An empty AdminID matches nobody.
func IsAdmin(adminID string, userID int64) bool {
	return adminID != "" && adminID == strconv.FormatInt(userID, 10)
}

// AdminOnlyMiddleware lets only the admin through; others go to OnReject.
func AdminOnlyMiddleware(opts AdminOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			var userID int64
			if u := c.Sender(); u != nil {
				userID = u.ID
			}
			if IsAdmin(opts.AdminID, userID) {
				return next(c)
			}
			logger.LogEvent(tghelpers.Context(c), logger.TG, slog.LevelInfo, "admin.reject",
				slog.String("status", "skip"),
				slog.String("reason", "not_admin"),
			)
			if opts.OnReject != nil {
				return opts.OnReject(c)
			}
			return nil
		}
	}
}
