// Package bootstrap opens the infrastructure selected by the storage drivers.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	bolt "go.etcd.io/bbolt"

	"github.com/m3rciful/formbot/core/awsx"
	"github.com/m3rciful/formbot/core/awsx/paramstore"
	coreconfig "github.com/m3rciful/formbot/core/config"
	coredatabase "github.com/m3rciful/formbot/core/database"
	"github.com/m3rciful/formbot/core/logger"
)

// Options control the bootstrap pipeline. Nil functions fall back to the
// real implementations.
type Options struct {
	Config *coreconfig.Config

	LoggerInit func(*coreconfig.Config) error
	Connect    func(context.Context, coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(context.Context, coredatabase.Config) error
	OpenBolt   func(path string) (*bolt.DB, error)
	OpenRedis  func(context.Context, coreconfig.RedisConfig) (*redis.Client, error)
	LoadAWS    func(context.Context, coreconfig.AWSConfig) (*awsx.Clients, error)
	// Secrets overrides the SSM-backed token lookup.
	Secrets coreconfig.SecretGetter
}

// Result exposes the opened backends. Fields are nil when no driver needs them.
type Result struct {
	DB    *sqlx.DB
	Bolt  *bolt.DB
	Redis *redis.Client
	AWS   *awsx.Clients

	closers []func() error
}

// Close releases every backend in reverse opening order.
func (r *Result) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

// Run initializes the logger, resolves secrets and opens the backends.
// On failure everything opened so far is closed.
func Run(ctx context.Context, opts Options) (*Result, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(cfg); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	res := &Result{}
	fail := func(err error) (*Result, error) {
		_ = res.Close()
		return nil, err
	}

	uses := func(d string) bool {
		return cfg.Sessions.Driver == d || cfg.Records.Driver == d
	}
	needsAWS := cfg.Records.Driver == coreconfig.DriverDynamoDB ||
		(coreconfig.NeedsSecrets(cfg) && opts.Secrets == nil)

	if needsAWS {
		load := opts.LoadAWS
		if load == nil {
			load = awsx.Load
		}
		clients, err := load(ctx, cfg.AWS)
		if err != nil {
			return fail(fmt.Errorf("bootstrap: aws config failed: %w", err))
		}
		res.AWS = clients
	}

	if coreconfig.NeedsSecrets(cfg) {
		secrets := opts.Secrets
		if secrets == nil {
			client, err := paramstore.New(res.AWS.SSM())
			if err != nil {
				return fail(fmt.Errorf("bootstrap: %w", err))
			}
			secrets = client
		}
		if err := coreconfig.Resolve(ctx, cfg, secrets); err != nil {
			return fail(fmt.Errorf("bootstrap: %w", err))
		}
	}

	if uses(coreconfig.DriverPostgres) {
		connect := opts.Connect
		if connect == nil {
			connect = coredatabase.Connect
		}
		migrate := opts.Migrate
		if migrate == nil {
			migrate = coredatabase.RunMigrations
		}
		if err := migrate(ctx, cfg.Database); err != nil {
			return fail(fmt.Errorf("bootstrap: migrations failed: %w", err))
		}
		db, err := connect(ctx, cfg.Database)
		if err != nil {
			return fail(fmt.Errorf("bootstrap: database initialization failed: %w", err))
		}
		res.DB = db
		res.closers = append(res.closers, db.Close)
	}

	if uses(coreconfig.DriverBolt) {
		open := opts.OpenBolt
		if open == nil {
			open = coredatabase.OpenBolt
		}
		db, err := open(cfg.Bolt.Path)
		if err != nil {
			return fail(fmt.Errorf("bootstrap: bolt open failed: %w", err))
		}
		res.Bolt = db
		res.closers = append(res.closers, db.Close)
	}

	if cfg.Sessions.Driver == coreconfig.DriverRedis {
		open := opts.OpenRedis
		if open == nil {
			open = coredatabase.OpenRedis
		}
		client, err := open(ctx, cfg.Redis)
		if err != nil {
			return fail(fmt.Errorf("bootstrap: redis connect failed: %w", err))
		}
		res.Redis = client
		res.closers = append(res.closers, client.Close)
	}

	return res, nil
}
