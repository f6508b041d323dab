package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/formbot/core/bootstrap"
	coreconfig "github.com/m3rciful/formbot/core/config"
	coredatabase "github.com/m3rciful/formbot/core/database"
	tg "github.com/m3rciful/formbot/core/telegram"
	"github.com/m3rciful/formbot/form/lang"
	"github.com/m3rciful/formbot/form/record"
	"github.com/m3rciful/formbot/form/session"
)

func testConfig() *coreconfig.Config {
	cfg := &coreconfig.Config{
		Telegram: coreconfig.TelegramConfig{Token: "123:abc", RunMode: coreconfig.RunModeLongpoll, AdminID: 9},
		Notify:   coreconfig.NotifyConfig{ChatID: -100500},
	}
	if err := coreconfig.Normalize(cfg); err != nil {
		panic(err)
	}
	return cfg
}

func offlineBot(*coreconfig.Config) (*tele.Bot, error) {
	return tele.NewBot(tele.Settings{Token: "123:abc", Offline: true})
}

func TestTelegramRunOptions(t *testing.T) {
	a, err := New(testConfig(), &bootstrap.Result{})
	require.NoError(t, err)
	a.buildBot = offlineBot

	opts, err := a.TelegramRunOptions()
	require.NoError(t, err)
	t.Cleanup(opts.Dispatcher.Close)

	require.NotNil(t, opts.Bot)
	require.NotNil(t, opts.Server)
	assert.NotEmpty(t, opts.Middlewares)
	assert.Contains(t, opts.Registry.Commands(), "/start")
	assert.Contains(t, opts.Registry.Commands(), "/stats")
	_, ok := opts.Registry.GetCallback("lang")
	assert.True(t, ok)

	endpoints := map[any]bool{}
	for _, r := range opts.Routes {
		endpoints[r.Endpoint] = true
	}
	for _, e := range []any{"/start", "/cancel", tele.OnCallback, tele.OnText, tele.OnPhoto, tele.OnContact} {
		assert.True(t, endpoints[e], "%v routed", e)
	}

	require.NoError(t, opts.OnStart(context.Background(), tgRuntime()))
	require.NoError(t, opts.OnStop(context.Background(), tgRuntime()))
}

func TestStatsHiddenWithoutAdmin(t *testing.T) {
	cfg := testConfig()
	cfg.Telegram.AdminID = 0
	a, err := New(cfg, &bootstrap.Result{})
	require.NoError(t, err)
	a.buildBot = offlineBot

	opts, err := a.TelegramRunOptions()
	require.NoError(t, err)
	t.Cleanup(opts.Dispatcher.Close)
	assert.NotContains(t, opts.Registry.Commands(), "/stats")
}

func TestStats(t *testing.T) {
	a, err := New(testConfig(), &bootstrap.Result{})
	require.NoError(t, err)
	ctx := context.Background()

	s := session.New("1", lang.RU, time.Now())
	require.NoError(t, a.Stores().Sessions.Save(ctx, s))
	require.NoError(t, a.Stores().Records.Append(ctx, record.FromSession(s, time.Now())))

	snap, err := a.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Sessions)
	assert.Equal(t, 1, snap.Records)
}

func TestSweepLoopStops(t *testing.T) {
	cfg := testConfig()
	cfg.Form.SessionTTL = time.Hour
	cfg.Form.SweepInterval = 10 * time.Millisecond
	a, err := New(cfg, &bootstrap.Result{})
	require.NoError(t, err)
	a.buildBot = offlineBot

	opts, err := a.TelegramRunOptions()
	require.NoError(t, err)
	t.Cleanup(opts.Dispatcher.Close)

	require.NoError(t, opts.OnStart(context.Background(), tgRuntime()))
	require.NotNil(t, a.sweepDone)
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, opts.OnStop(context.Background(), tgRuntime()))
	assert.Nil(t, a.sweepStop)
}

func TestOpenStoresDrivers(t *testing.T) {
	bolt, err := coredatabase.OpenBolt(filepath.Join(t.TempDir(), "formbot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = bolt.Close() })
	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := testConfig()
	cfg.Sessions.Driver = coreconfig.DriverRedis
	cfg.Records.Driver = coreconfig.DriverBolt
	stores, err := OpenStores(cfg, &bootstrap.Result{Bolt: bolt, Redis: rdb})
	require.NoError(t, err)

	ctx := context.Background()
	s := session.New("7", lang.UZ, time.Now())
	require.NoError(t, stores.Sessions.WithLock(ctx, "7", func(ctx context.Context) error {
		return stores.Sessions.Save(ctx, s)
	}))
	n, err := stores.Sessions.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	r := record.FromSession(s, time.Now())
	require.NoError(t, stores.Records.Append(ctx, r))
	got, err := stores.Records.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)
}

func TestOpenStoresMissingBackend(t *testing.T) {
	for _, tc := range []struct{ sessions, records string }{
		{coreconfig.DriverBolt, coreconfig.DriverMemory},
		{coreconfig.DriverRedis, coreconfig.DriverMemory},
		{coreconfig.DriverPostgres, coreconfig.DriverMemory},
		{coreconfig.DriverMemory, coreconfig.DriverBolt},
		{coreconfig.DriverMemory, coreconfig.DriverPostgres},
		{coreconfig.DriverMemory, coreconfig.DriverDynamoDB},
	} {
		cfg := testConfig()
		cfg.Sessions.Driver = tc.sessions
		cfg.Records.Driver = tc.records
		_, err := OpenStores(cfg, &bootstrap.Result{})
		assert.Error(t, err, "%s/%s", tc.sessions, tc.records)
	}
}

func tgRuntime() tg.Runtime { return tg.Runtime{} }
