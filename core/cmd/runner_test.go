package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/chatstats/core/config"
	coretelegram "github.com/m3rciful/chatstats/core/telegram"
)

type fakeApp struct {
	closed int
}

func (a *fakeApp) TelegramRunOptions() (coretelegram.RunOptions, error) {
	return coretelegram.RunOptions{}, nil
}

func (a *fakeApp) Close() error {
	a.closed++
	return nil
}

func TestRunRequiresBootstrap(t *testing.T) {
	require.Error(t, Run(Options{}))
}

func TestRunWiresHooksAndCloses(t *testing.T) {
	t.Setenv("CHATSTATS_TEST_CONFIG", "custom.yaml")
	app := &fakeApp{}
	var loadedFrom string
	var started, stopped bool

	err := Run(Options{
		ConfigEnvVar: "CHATSTATS_TEST_CONFIG",
		LoadConfig: func(path string) (*coreconfig.Config, error) {
			loadedFrom = path
			return &coreconfig.Config{}, nil
		},
		Bootstrap:      func(*coreconfig.Config) (TelegramApp, error) { return app, nil },
		ShutdownLogger: func() error { return nil },
		Context:        context.Background(),
		RunTelegram: func(ctx context.Context, opts coretelegram.RunOptions) error {
			require.NoError(t, opts.OnStart(ctx, coretelegram.Runtime{}))
			started = true
			require.NoError(t, opts.OnStop(ctx, coretelegram.Runtime{}))
			stopped = true
			return nil
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "custom.yaml", loadedFrom)
	assert.True(t, started)
	assert.True(t, stopped)
	assert.Equal(t, 1, app.closed)
}

func TestRunReportsBootstrapFailure(t *testing.T) {
	err := Run(Options{
		LoadConfig: func(string) (*coreconfig.Config, error) { return &coreconfig.Config{}, nil },
		Bootstrap:  func(*coreconfig.Config) (TelegramApp, error) { return nil, errors.New("db down") },
	})
	require.ErrorContains(t, err, "bootstrap failed")
}
