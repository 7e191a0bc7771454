package main

import (
	"context"
	"fmt"
	"log"
	"time"

	corebootstrap "github.com/m3rciful/chatstats/core/bootstrap"
	corecmd "github.com/m3rciful/chatstats/core/cmd"
	coreconfig "github.com/m3rciful/chatstats/core/config"
	coretelegram "github.com/m3rciful/chatstats/core/telegram"
	"github.com/m3rciful/chatstats/core/telegram/router"
	tgsender "github.com/m3rciful/chatstats/core/telegram/sender"
	"github.com/m3rciful/chatstats/internal/bot"
	"github.com/m3rciful/chatstats/internal/locales"
	"github.com/m3rciful/chatstats/internal/stats"
)

func main() {
	err := corecmd.Run(corecmd.Options{
		LoadConfig: coreconfig.Load,
		Bootstrap:  newApp,
	})
	if err != nil {
		log.Fatalf("chatstatsbot: %v", err)
	}
}

type app struct {
	cfg     *coreconfig.Config
	infra   *corebootstrap.Result
	store   *stats.Store
	catalog *locales.Catalog
}

func newApp(cfg *coreconfig.Config) (corecmd.TelegramApp, error) {
	infra, err := corebootstrap.Run(corebootstrap.Options{Config: cfg})
	if err != nil {
		return nil, err
	}
	catalog, err := locales.NewCatalog(locales.OrDefault(cfg.Stats.DefaultLanguage, locales.RU))
	if err != nil {
		_ = infra.Close()
		return nil, fmt.Errorf("locales: %w", err)
	}
	return &app{
		cfg:     cfg,
		infra:   infra,
		store:   stats.New(infra.DB),
		catalog: catalog,
	}, nil
}

func (a *app) TelegramRunOptions() (coretelegram.RunOptions, error) {
	cfg := a.cfg
	tb, err := coretelegram.NewBot(coretelegram.BotOptions{
		Config: cfg,
		Health: a.store.Ping,
	})
	if err != nil {
		return coretelegram.RunOptions{}, err
	}

	outbox := tgsender.NewOutbox(tgsender.Options{
		QueueSize:    cfg.Sender.QueueSize,
		Workers:      cfg.Sender.Workers,
		MaxRetries:   cfg.Sender.MaxRetries,
		RetryBackoff: time.Duration(cfg.Sender.RetryBackoffMS) * time.Millisecond,
		PerSecond:    cfg.Sender.PerSecond,
	})
	dispatcher := bot.NewDispatcher(a.store, bot.NewTelegramSink(tb, outbox), a.catalog, bot.Options{
		AdminID:       cfg.Telegram.AdminID,
		AdminContact:  cfg.Telegram.AdminContact,
		TopLimit:      cfg.Stats.TopLimit,
		WelcomeTTL:    time.Duration(cfg.Stats.WelcomeTTLSeconds) * time.Second,
		DefaultLocale: a.catalog.Fallback(),
	})

	reg := coretelegram.NewRegistry()
	if err := bot.Register(reg, dispatcher, a.catalog); err != nil {
		outbox.Close()
		return coretelegram.RunOptions{}, fmt.Errorf("register handlers: %w", err)
	}

	routes := router.CommandRoutes(reg, router.CommandRouteOptions{
		AdminID:       cfg.Telegram.AdminID,
		OnAdminReject: bot.AdminRejectHandler(dispatcher),
	})
	routes = append(routes, router.CallbackRoute(reg))
	routes = append(routes, router.TextRoutes(reg)...)
	routes = append(routes, router.MemberRoutes(reg)...)

	langs := make([]string, 0, len(locales.Supported()))
	for _, l := range locales.Supported() {
		langs = append(langs, string(l))
	}

	return coretelegram.RunOptions{
		Bot:              tb,
		Registry:         reg,
		Outbox:           outbox,
		Middlewares:      coretelegram.DefaultMiddlewares(),
		Routes:           routes,
		CommandLanguages: langs,
		OnStop: func(context.Context, coretelegram.Runtime) error {
			dispatcher.Close()
			return nil
		},
	}, nil
}

func (a *app) Close() error {
	return a.infra.Close()
}
