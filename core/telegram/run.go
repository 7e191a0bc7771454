package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/chatstats/core/logger"
	tgsender "github.com/m3rciful/chatstats/core/telegram/sender"
)

// RunOptions controls RunTelegram.
type RunOptions struct {
	Bot      *tele.Bot
	Registry *Registry

	// Outbox is closed when the bot stops; built from OutboxOptions when nil.
	Outbox        *tgsender.Outbox
	OutboxOptions tgsender.Options

	Middlewares []Middleware
	Routes      []Route

	// CommandLanguages receive a localized command menu each.
	CommandLanguages []string

	// DisableWebhookCleanup keeps a registered webhook when long polling starts.
	DisableWebhookCleanup bool

	OnStart func(ctx context.Context, rt Runtime) error
	// OnStop runs after updates stopped flowing, before the outbox drains.
	OnStop func(ctx context.Context, rt Runtime) error
}

// frontDoor is a poller that binds its listener and registers with
// Telegram before updates flow.
type frontDoor interface {
	Open(api WebhookRegistrar) error
	Shutdown(api WebhookRegistrar)
}

// Runtime exposes runtime components to lifecycle hooks.
type Runtime struct {
	Bot      *tele.Bot
	Outbox   *tgsender.Outbox
	Registry *Registry
}

// RunTelegram installs middlewares and routes, publishes the command menu and
// serves updates until ctx is cancelled. Cancellation is a clean exit.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Bot == nil {
		return fmt.Errorf("telegram: nil bot provided")
	}
	rt := Runtime{Bot: opts.Bot, Outbox: opts.Outbox, Registry: opts.Registry}
	if rt.Registry == nil {
		rt.Registry = NewRegistry()
	}
	if rt.Outbox == nil {
		rt.Outbox = tgsender.NewOutbox(opts.OutboxOptions)
	}

	install(ctx, rt, opts)

	// a front door that cannot listen or register must fail startup
	door, _ := rt.Bot.Poller.(frontDoor)
	if door != nil {
		if err := door.Open(rt.Bot); err != nil {
			rt.Outbox.Close()
			return err
		}
	}

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			if door != nil {
				door.Shutdown(rt.Bot)
			}
			rt.Outbox.Close()
			return err
		}
	}

	runErr := serve(ctx, rt.Bot)

	var stopErr error
	if opts.OnStop != nil {
		stopErr = opts.OnStop(context.WithoutCancel(ctx), rt)
	}
	rt.Outbox.Close()
	logger.LogEvent(ctx, logger.TG, slog.LevelInfo, "stop",
		slog.Uint64("sent", rt.Outbox.SentCount()),
		slog.Uint64("send_errors", rt.Outbox.ErrorCount()),
	)

	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	return errors.Join(stopErr, runErr)
}

func install(ctx context.Context, rt Runtime, opts RunOptions) {
	bot := rt.Bot
	if _, polling := bot.Poller.(*tele.LongPoller); polling && !opts.DisableWebhookCleanup {
		// a leftover webhook makes getUpdates fail with 409
		err := bot.RemoveWebhook(false)
		attrs := []slog.Attr{slog.String("status", logger.Status(err)), slog.String("mode", "polling")}
		if err != nil {
			attrs = append(attrs, slog.String("err", err.Error()))
		}
		logger.LogEvent(ctx, logger.TG, slog.LevelInfo, "delete_webhook", attrs...)
	}

	for _, mw := range opts.Middlewares {
		if mw.Use != nil {
			bot.Use(mw.Use)
		}
	}
	for _, r := range opts.Routes {
		if r.Endpoint != nil && r.Handler != nil {
			bot.Handle(r.Endpoint, r.Handler)
		}
	}

	if err := SetupCommands(bot, rt.Registry, opts.CommandLanguages); err != nil {
		// commands typed by hand keep working without the menu
		logger.LogEvent(ctx, logger.TWire, slog.LevelWarn, "register.commands.degraded",
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
	}
}

// serve runs the poller until ctx ends or the bot stops by itself.
func serve(ctx context.Context, bot *tele.Bot) error {
	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})

	g.Go(func() error {
		defer close(done)
		logger.LogEvent(ctx, logger.TG, slog.LevelInfo, "start")
		bot.Start()
		return nil
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			bot.Stop()
		case <-done:
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
