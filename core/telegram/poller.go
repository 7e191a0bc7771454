package telegram

import (
	"log/slog"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/chatstats/core/config"
)

// AllowedUpdates limits deliveries to what the bot reacts to. Member joins
// arrive as service messages.
var AllowedUpdates = []string{"message", "callback_query"}

const defaultLongPoll = 10 * time.Second

// PollerOptions configures BuildPoller.
type PollerOptions struct {
	RunMode                string
	LongPollTimeoutSeconds int
	Webhook                WebhookOptions
}

// LongPoll returns the getUpdates timeout, defaulted when unset.
func (o PollerOptions) LongPoll() time.Duration {
	if o.LongPollTimeoutSeconds <= 0 {
		return defaultLongPoll
	}
	return time.Duration(o.LongPollTimeoutSeconds) * time.Second
}

// BuildPoller picks the update source for the run mode: the HTTP front door
// for webhook, getUpdates long polling otherwise.
func BuildPoller(opts PollerOptions) tele.Poller {
	if strings.EqualFold(strings.TrimSpace(opts.RunMode), coreconfig.RunModeWebhook) {
		return NewWebhookPoller(opts.Webhook)
	}
	return &tele.LongPoller{
		Timeout:        opts.LongPoll(),
		AllowedUpdates: AllowedUpdates,
	}
}

func pollerAttrs(p tele.Poller) []slog.Attr {
	switch p := p.(type) {
	case *WebhookPoller:
		return []slog.Attr{
			slog.String("mode", coreconfig.RunModeWebhook),
			slog.String("listen", p.Addr()),
			slog.String("public_url", p.PublicURL()),
		}
	case *tele.LongPoller:
		return []slog.Attr{
			slog.String("mode", coreconfig.RunModeLongpoll),
			slog.Int("timeout_seconds", int(p.Timeout/time.Second)),
		}
	}
	return []slog.Attr{slog.String("mode", "custom")}
}
