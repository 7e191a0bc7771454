package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sethvargo/go-retry"

	"github.com/m3rciful/chatstats/core/logger"
	"github.com/m3rciful/chatstats/migrations"
)

const readyTimeout = 30 * time.Second

// RunMigrations brings the schema of the configured database up to the
// newest embedded version. A server database is polled until it accepts
// connections first.
func RunMigrations(cfg Config) error {
	if cfg.Driver == "" {
		cfg.Driver = DriverSQLite
	}
	dsn := DSN(cfg)
	url := dsn
	if cfg.Driver == DriverSQLite {
		if err := ensureSQLiteDir(cfg.Path); err != nil {
			return err
		}
		url = "sqlite3://" + dsn
	} else if err := waitReady(context.Background(), cfg.Driver, dsn, readyTimeout); err != nil {
		logger.LogEvent(context.Background(), logger.MIG, slog.LevelError, "db.wait",
			slog.String("status", "fail"),
			slog.String("driver", cfg.Driver),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("database not ready: %w", err)
	}

	versions := embeddedVersions(cfg.Driver)
	src, err := iofs.New(migrations.FS, cfg.Driver)
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	defer func() {
		if err := errors.Join(m.Close()); err != nil {
			logger.MIG.Warn("close failed", slog.String("event", "db.migrate.close"), slog.String("err", err.Error()))
		}
	}()

	from, _, _ := m.Version()
	start := time.Now()
	upErr := m.Up()
	if errors.Is(upErr, migrate.ErrNoChange) {
		upErr = nil
	}
	to, _, _ := m.Version()

	attrs := []slog.Attr{
		slog.String("status", logger.Status(upErr)),
		slog.String("driver", cfg.Driver),
		slog.Uint64("from_version", uint64(from)),
		slog.Uint64("version", uint64(to)),
		slog.Int("applied", countBetween(versions, uint64(from), uint64(to))),
		slog.Int("available", len(versions)),
		slog.Duration("duration", logger.Took(start)),
	}
	if upErr != nil {
		logger.LogEvent(context.Background(), logger.MIG, slog.LevelError, "db.migrate",
			append(attrs, slog.String("err", upErr.Error()))...)
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	logger.LogEvent(context.Background(), logger.MIG, slog.LevelInfo, "db.migrate", attrs...)
	return nil
}

// embeddedVersions lists the numeric prefixes of the driver's up migrations.
func embeddedVersions(driver string) []uint64 {
	names, err := fs.Glob(migrations.FS, driver+"/*.up.sql")
	if err != nil {
		return nil
	}
	versions := make([]uint64, 0, len(names))
	for _, name := range names {
		prefix, _, _ := strings.Cut(path.Base(name), "_")
		if v, err := strconv.ParseUint(prefix, 10, 64); err == nil {
			versions = append(versions, v)
		}
	}
	return versions
}

func countBetween(versions []uint64, from, to uint64) int {
	n := 0
	for _, v := range versions {
		if v > from && v <= to {
			n++
		}
	}
	return n
}

// waitReady pings the server every two seconds until it answers or timeout passes.
func waitReady(ctx context.Context, driver, dsn string, timeout time.Duration) error {
	backoff := retry.WithMaxDuration(timeout, retry.NewConstant(2*time.Second))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		db, err := sql.Open(driver, dsn)
		if err != nil {
			return err
		}
		defer db.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}
