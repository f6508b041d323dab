package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/formbot/core/config"
	coretelegram "github.com/m3rciful/formbot/core/telegram"
)

type fakeApp struct {
	started, stopped, closed bool
}

func (a *fakeApp) TelegramRunOptions() (coretelegram.RunOptions, error) {
	return coretelegram.RunOptions{
		OnStart: func(context.Context, coretelegram.Runtime) error { a.started = true; return nil },
		OnStop:  func(context.Context, coretelegram.Runtime) error { a.stopped = true; return nil },
	}, nil
}

func (a *fakeApp) Close() error {
	a.closed = true
	return nil
}

func TestRunWiresLifecycle(t *testing.T) {
	t.Setenv("FORMBOT_TEST_CONFIG", "")
	app := &fakeApp{}
	var gotPath string

	err := Run(Options{
		ConfigEnvVar:      "FORMBOT_TEST_CONFIG",
		DefaultConfigPath: "config.yaml",
		Context:           context.Background(),
		LoadConfig: func(path string) (*coreconfig.Config, error) {
			gotPath = path
			return &coreconfig.Config{}, nil
		},
		Bootstrap: func(context.Context, *coreconfig.Config) (TelegramApp, error) {
			return app, nil
		},
		ShutdownLogger: func() error { return nil },
		RunTelegram: func(ctx context.Context, opts coretelegram.RunOptions) error {
			require.NoError(t, opts.OnStart(ctx, coretelegram.Runtime{}))
			return opts.OnStop(ctx, coretelegram.Runtime{})
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "config.yaml", gotPath)
	assert.True(t, app.started)
	assert.True(t, app.stopped)
	assert.True(t, app.closed)
}

func TestRunErrors(t *testing.T) {
	require.Error(t, Run(Options{}))

	t.Setenv("FORMBOT_TEST_CONFIG", "custom.yaml")
	boom := errors.New("boom")
	err := Run(Options{
		ConfigEnvVar: "FORMBOT_TEST_CONFIG",
		LoadConfig:   func(string) (*coreconfig.Config, error) { return nil, boom },
		Bootstrap: func(context.Context, *coreconfig.Config) (TelegramApp, error) {
			return &fakeApp{}, nil
		},
	})
	require.ErrorIs(t, err, boom)

	err = Run(Options{
		ConfigEnvVar:   "FORMBOT_TEST_CONFIG",
		Context:        context.Background(),
		LoadConfig:     func(string) (*coreconfig.Config, error) { return &coreconfig.Config{}, nil },
		ShutdownLogger: func() error { return nil },
		Bootstrap: func(context.Context, *coreconfig.Config) (TelegramApp, error) {
			return nil, boom
		},
	})
	require.ErrorIs(t, err, boom)
}
