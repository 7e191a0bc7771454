package bootstrap

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/chatstats/core/config"
	coredatabase "github.com/m3rciful/chatstats/core/database"
	"github.com/m3rciful/chatstats/core/errreport"
	"github.com/m3rciful/chatstats/core/logger"
)

func noLogger(logger.Options) error { return nil }

func TestRunRequiresConfig(t *testing.T) {
	_, err := Run(Options{})
	require.Error(t, err)
}

func TestRunMigratesSQLite(t *testing.T) {
	cfg := &coreconfig.Config{
		Logging:  coreconfig.LoggingConfig{Level: "debug"},
		Database: coredatabase.Config{Driver: coredatabase.DriverSQLite, Path: filepath.Join(t.TempDir(), "stats.db"), MaxConnections: 1},
	}
	var gotLevel string
	res, err := Run(Options{
		Config:     cfg,
		LoggerInit: func(o logger.Options) error { gotLevel = o.Level; return nil },
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.Close() })

	assert.Equal(t, "debug", gotLevel)
	var n int
	require.NoError(t, res.DB.Get(&n, "SELECT COUNT(*) FROM chat_members"))
	assert.Zero(t, n)
}

func TestRunStopsOnMigrationFailure(t *testing.T) {
	flushed := 0
	_, err := Run(Options{
		Config:     &coreconfig.Config{},
		LoggerInit: noLogger,
		ErrorReporting: func(errreport.Options) (func(), error) {
			return func() { flushed++ }, nil
		},
		Connect: func(coredatabase.Config) (*sqlx.DB, error) {
			return sqlx.Open("sqlite3", ":memory:")
		},
		Migrate: func(coredatabase.Config) error { return errors.New("boom") },
	})
	require.ErrorContains(t, err, "migrations failed")
	assert.Equal(t, 1, flushed)
}

func TestRunPropagatesLoggerError(t *testing.T) {
	_, err := Run(Options{
		Config:     &coreconfig.Config{},
		LoggerInit: func(logger.Options) error { return errors.New("bad level") },
	})
	require.ErrorContains(t, err, "logger init failed")
}
