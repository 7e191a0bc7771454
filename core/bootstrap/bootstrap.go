// Package bootstrap brings up shared infrastructure before the bot starts.
package bootstrap

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/chatstats/core/config"
	coredatabase "github.com/m3rciful/chatstats/core/database"
	"github.com/m3rciful/chatstats/core/errreport"
	"github.com/m3rciful/chatstats/core/logger"
)

// Options control the bootstrap pipeline. Nil hooks select the production implementations.
type Options struct {
	Config *coreconfig.Config

	LoggerInit     func(logger.Options) error
	ErrorReporting func(errreport.Options) (func(), error)
	Connect        func(coredatabase.Config) (*sqlx.DB, error)
	Migrate        func(coredatabase.Config) error
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	DB *sqlx.DB
	// Flush drains buffered error reports.
	Flush func()
}

// Close releases the database and flushes error reports.
func (r *Result) Close() error {
	if r == nil {
		return nil
	}
	if r.Flush != nil {
		r.Flush()
	}
	if r.DB != nil {
		return r.DB.Close()
	}
	return nil
}

// LoggerOptions maps logging config onto logger options.
func LoggerOptions(cfg coreconfig.LoggingConfig) logger.Options {
	return logger.Options{
		Level:       cfg.Level,
		Format:      cfg.Format,
		KeysOrder:   cfg.KeysOrder,
		DebugSample: cfg.DebugSample,
		Dir:         cfg.Dir,
		File:        cfg.File,
		Profile:     cfg.Profile,
	}
}

// Run initializes the logger and error reporting, connects to the database, and applies migrations.
func Run(opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}
	cfg := opts.Config

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(LoggerOptions(cfg.Logging)); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	reporting := opts.ErrorReporting
	if reporting == nil {
		reporting = errreport.Init
	}
	flush, err := reporting(errreport.Options{
		DSN:         cfg.Sentry.DSN,
		Environment: cfg.Sentry.Environment,
		SampleRate:  cfg.Sentry.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: error reporting init failed: %w", err)
	}
	if flush == nil {
		flush = func() {}
	}

	connect := opts.Connect
	if connect == nil {
		connect = coredatabase.Connect
	}
	db, err := connect(cfg.Database)
	if err != nil {
		flush()
		return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}

	migrate := opts.Migrate
	if migrate == nil {
		migrate = coredatabase.RunMigrations
	}
	if err := migrate(cfg.Database); err != nil {
		_ = db.Close()
		flush()
		return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
	}

	return &Result{DB: db, Flush: flush}, nil
}
