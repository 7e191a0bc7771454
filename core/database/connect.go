package database

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/m3rciful/chatstats/core/logger"
)

const connectTimeout = 5 * time.Second

// DSN renders the driver-specific connection string. Postgres credentials
// are URL-escaped; SQLite runs in WAL mode with a busy timeout.
func DSN(cfg Config) string {
	if cfg.Driver == DriverPostgres {
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(cfg.User, cfg.Password),
			Host:     net.JoinHostPort(cfg.Host, cfg.Port),
			Path:     "/" + cfg.Name,
			RawQuery: url.Values{"sslmode": {cfg.SSLMode}}.Encode(),
		}
		return u.String()
	}
	if cfg.Path == ":memory:" {
		return "file::memory:?cache=shared&_foreign_keys=on"
	}
	return cfg.Path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
}

// Connect opens and pings the database, then sizes the pool.
func Connect(cfg Config) (*sqlx.DB, error) {
	if cfg.Driver == "" {
		cfg.Driver = DriverSQLite
	}
	if cfg.Driver == DriverSQLite {
		if err := ensureSQLiteDir(cfg.Path); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	start := time.Now()
	db, err := sqlx.ConnectContext(ctx, cfg.Driver, DSN(cfg))
	attrs := []slog.Attr{
		slog.String("status", logger.Status(err)),
		slog.String("driver", cfg.Driver),
		slog.String("db", describe(cfg)),
		slog.Duration("duration", logger.Took(start)),
	}
	if err != nil {
		logger.LogEvent(ctx, logger.DB, slog.LevelError, "db.connect", append(attrs, slog.String("err", err.Error()))...)
		return nil, fmt.Errorf("db connect: %w", err)
	}

	if n := cfg.MaxConnections; n > 0 {
		db.SetMaxOpenConns(n)
		db.SetMaxIdleConns(n)
		attrs = append(attrs, slog.Int("pool_open", n))
	}
	logger.LogEvent(ctx, logger.DB, slog.LevelInfo, "db.connect", attrs...)
	return db, nil
}

// describe names the database in logs without credentials.
func describe(cfg Config) string {
	if cfg.Driver == DriverPostgres {
		return net.JoinHostPort(cfg.Host, cfg.Port) + "/" + cfg.Name
	}
	return cfg.Path
}

func ensureSQLiteDir(path string) error {
	if path == "" || strings.Contains(path, ":memory:") {
		return nil
	}
	dir := filepath.Dir(strings.TrimPrefix(path, "file:"))
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create db dir %q: %w", dir, err)
	}
	return nil
}
