package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	coreconfig "github.com/m3rciful/formbot/core/config"
	"github.com/m3rciful/formbot/core/logger"
)

// OpenRedis connects to cfg.Addr and verifies the server answers PING.
func OpenRedis(ctx context.Context, cfg coreconfig.RedisConfig) (*redis.Client, error) {
	start := time.Now()
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		logger.Error(ctx, "db", "db.connect",
			slog.String("status", "error"),
			slog.String("driver", "redis"),
			slog.String("addr", cfg.Addr),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	logger.Info(ctx, "db", "db.connect",
		slog.String("status", "ok"),
		slog.String("driver", "redis"),
		slog.String("addr", cfg.Addr),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return client, nil
}
