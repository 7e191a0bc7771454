package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/chatstats/core/config"
	"github.com/m3rciful/chatstats/core/errreport"
	"github.com/m3rciful/chatstats/core/logger"
	tghelpers "github.com/m3rciful/chatstats/core/telegram/helpers"
)

// Middleware describes a global bot middleware to be registered via bot.Use.
type Middleware struct {
	Name string
	Use  func(next tele.HandlerFunc) tele.HandlerFunc
}

// Route declares a single bot handler bound to an arbitrary endpoint.
// Endpoint values are passed directly to tele.Bot.Handle.
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// BotOptions configures NewBot.
type BotOptions struct {
	Config *coreconfig.Config
	// Health backs GET /healthz in webhook mode.
	Health func(ctx context.Context) error
	// Offline skips the getMe handshake; used by tests.
	Offline bool
}

// NewBot builds the telebot instance with the poller for the configured run mode.
func NewBot(opts BotOptions) (*tele.Bot, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("telegram: nil config provided")
	}
	cfg := opts.Config

	popts := PollerOptions{
		RunMode:                cfg.Telegram.RunMode,
		LongPollTimeoutSeconds: cfg.Telegram.LongPollTimeoutSeconds,
		Webhook: WebhookOptions{
			Listen:      cfg.Webhook.Listen,
			Port:        cfg.Webhook.Port,
			URL:         cfg.Webhook.URL,
			Path:        cfg.Webhook.Path,
			SecretToken: cfg.Webhook.SecretToken,
			QueueSize:   cfg.Webhook.QueueSize,
			Health:      opts.Health,
		},
	}
	poller := BuildPoller(popts)

	start := time.Now()
	bot, err := tele.NewBot(tele.Settings{
		Token:   cfg.Telegram.Token,
		Poller:  poller,
		Client:  BuildHTTPClient(HTTPClientOptions{LongPoll: popts.LongPoll()}),
		Offline: opts.Offline,
		OnError: onBotError,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: bot initialization failed: %w", err)
	}

	attrs := append(pollerAttrs(poller), slog.Duration("duration", logger.Took(start)))
	logger.LogEvent(context.Background(), logger.TG, slog.LevelInfo, "mode", attrs...)
	return bot, nil
}

func onBotError(err error, c tele.Context) {
	ctx := context.Background()
	if stored, ok := tghelpers.Load(c); ok {
		ctx = stored
	}
	logger.LogEvent(ctx, logger.TG, slog.LevelError, "handler.error",
		slog.String("status", "fail"),
		slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
	)
	errreport.Capture(ctx, err)
}
