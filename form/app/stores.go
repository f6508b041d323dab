package app

import (
	"fmt"

	"github.com/m3rciful/formbot/core/bootstrap"
	coreconfig "github.com/m3rciful/formbot/core/config"
	"github.com/m3rciful/formbot/form/record"
	"github.com/m3rciful/formbot/form/record/boltlog"
	"github.com/m3rciful/formbot/form/record/dynamolog"
	"github.com/m3rciful/formbot/form/record/pglog"
	"github.com/m3rciful/formbot/form/session"
	"github.com/m3rciful/formbot/form/session/boltstore"
	"github.com/m3rciful/formbot/form/session/pgstore"
	"github.com/m3rciful/formbot/form/session/redisstore"
)

// Stores are the two persistent parts of the bot.
type Stores struct {
	Sessions *session.Manager
	Records  record.Log
}

// OpenStores builds the session manager and the record log on the backends
// opened by bootstrap.
func OpenStores(cfg *coreconfig.Config, infra *bootstrap.Result) (*Stores, error) {
	sessions, err := openSessions(cfg, infra)
	if err != nil {
		return nil, err
	}
	records, err := openRecords(cfg, infra)
	if err != nil {
		return nil, err
	}
	return &Stores{Sessions: sessions, Records: records}, nil
}

func openSessions(cfg *coreconfig.Config, infra *bootstrap.Result) (*session.Manager, error) {
	opts := []session.Option{session.WithTTL(cfg.Form.SessionTTL)}

	var store session.Store
	switch cfg.Sessions.Driver {
	case coreconfig.DriverMemory:
		store = session.NewMemoryStore()
	case coreconfig.DriverBolt:
		if infra == nil || infra.Bolt == nil {
			return nil, fmt.Errorf("app: bolt sessions need an open bolt database")
		}
		s, err := boltstore.New(infra.Bolt)
		if err != nil {
			return nil, err
		}
		store = s
	case coreconfig.DriverRedis:
		if infra == nil || infra.Redis == nil {
			return nil, fmt.Errorf("app: redis sessions need a redis client")
		}
		store = redisstore.New(infra.Redis,
			redisstore.WithPrefix(cfg.Redis.Prefix),
			redisstore.WithTTL(cfg.Form.SessionTTL),
		)
		opts = append(opts, session.WithLocker(redisstore.NewLocker(infra.Redis, cfg.Redis.Prefix), session.DefaultLockTTL))
	case coreconfig.DriverPostgres:
		if infra == nil || infra.DB == nil {
			return nil, fmt.Errorf("app: postgres sessions need a database connection")
		}
		store = pgstore.New(infra.DB)
	default:
		return nil, fmt.Errorf("app: unknown sessions driver %q", cfg.Sessions.Driver)
	}
	return session.NewManager(store, opts...), nil
}

func openRecords(cfg *coreconfig.Config, infra *bootstrap.Result) (record.Log, error) {
	switch cfg.Records.Driver {
	case coreconfig.DriverMemory:
		return record.NewMemoryLog(), nil
	case coreconfig.DriverBolt:
		if infra == nil || infra.Bolt == nil {
			return nil, fmt.Errorf("app: bolt records need an open bolt database")
		}
		l, err := boltlog.New(infra.Bolt)
		if err != nil {
			return nil, err
		}
		return l, nil
	case coreconfig.DriverPostgres:
		if infra == nil || infra.DB == nil {
			return nil, fmt.Errorf("app: postgres records need a database connection")
		}
		return pglog.New(infra.DB), nil
	case coreconfig.DriverDynamoDB:
		if infra == nil || infra.AWS == nil {
			return nil, fmt.Errorf("app: dynamodb records need aws clients")
		}
		l, err := dynamolog.New(infra.AWS.DynamoDB(), cfg.DynamoDB.Table)
		if err != nil {
			return nil, err
		}
		return l, nil
	default:
		return nil, fmt.Errorf("app: unknown records driver %q", cfg.Records.Driver)
	}
}
