// Package cmd holds the process entrypoint pipeline shared by bot binaries.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	coreconfig "github.com/m3rciful/chatstats/core/config"
	"github.com/m3rciful/chatstats/core/logger"
	coretelegram "github.com/m3rciful/chatstats/core/telegram"
)

const defaultConfigEnv = "CONFIG_PATH"

// TelegramApp is what Bootstrap hands back. Apps that also implement
// io.Closer are closed once the bot has stopped.
type TelegramApp interface {
	TelegramRunOptions() (coretelegram.RunOptions, error)
}

// Options wires the process pipeline: config, bootstrap, run.
// Only Bootstrap is required; the rest default to the production path.
type Options struct {
	ConfigEnvVar      string
	DefaultConfigPath string

	LoadConfig func(path string) (*coreconfig.Config, error)
	Bootstrap  func(cfg *coreconfig.Config) (TelegramApp, error)

	ShutdownLogger func() error
	RunTelegram    func(ctx context.Context, opts coretelegram.RunOptions) error
	// Context defaults to one cancelled by SIGINT or SIGTERM.
	Context context.Context
}

func (o Options) configPath() string {
	env := o.ConfigEnvVar
	if env == "" {
		env = defaultConfigEnv
	}
	if p := strings.TrimSpace(os.Getenv(env)); p != "" {
		return p
	}
	return o.DefaultConfigPath
}

// Run executes the pipeline and blocks until the bot stops.
func Run(opts Options) error {
	if opts.Bootstrap == nil {
		return fmt.Errorf("cmd: Bootstrap is required")
	}
	load, run, flush := opts.LoadConfig, opts.RunTelegram, opts.ShutdownLogger
	if load == nil {
		load = coreconfig.Load
	}
	if run == nil {
		run = coretelegram.RunTelegram
	}
	if flush == nil {
		flush = logger.Shutdown
	}

	path := opts.configPath()
	cfg, err := load(path)
	switch {
	case err != nil:
		return fmt.Errorf("cmd: load config %q: %w", path, err)
	case cfg == nil:
		return fmt.Errorf("cmd: config %q is empty", path)
	}

	began := time.Now()
	app, err := opts.Bootstrap(cfg)
	if err != nil {
		return fmt.Errorf("cmd: bootstrap failed: %w", err)
	}
	// the logger goes last so Close can still report
	defer func() {
		if ferr := flush(); ferr != nil {
			log.Printf("logger shutdown: %v", ferr)
		}
	}()
	if c, ok := app.(io.Closer); ok {
		defer closeApp(c)
	}

	runOpts, err := app.TelegramRunOptions()
	if err != nil {
		return fmt.Errorf("cmd: build run options: %w", err)
	}
	wrapHooks(&runOpts, began)

	ctx := opts.Context
	if ctx == nil {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
	}
	return run(ctx, runOpts)
}

// wrapHooks adds the ready and shutdown lines around the app's own hooks.
func wrapHooks(ro *coretelegram.RunOptions, began time.Time) {
	appLog := logger.Component("app")

	onStart := ro.OnStart
	ro.OnStart = func(ctx context.Context, rt coretelegram.Runtime) error {
		if onStart != nil {
			if err := onStart(ctx, rt); err != nil {
				return err
			}
		}
		logger.LogEvent(ctx, appLog, slog.LevelInfo, "ready",
			slog.Duration("startup", time.Since(began)),
		)
		return nil
	}

	onStop := ro.OnStop
	ro.OnStop = func(ctx context.Context, rt coretelegram.Runtime) error {
		logger.LogEvent(ctx, appLog, slog.LevelInfo, "shutdown")
		if onStop == nil {
			return nil
		}
		return onStop(ctx, rt)
	}
}

func closeApp(c io.Closer) {
	if err := c.Close(); err != nil {
		logger.LogEvent(context.Background(), logger.Component("app"), slog.LevelWarn, "close",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}
}
