package database

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/formbot/core/config"
)

func TestOpenRedis(t *testing.T) {
	srv := miniredis.RunT(t)

	client, err := OpenRedis(context.Background(), coreconfig.RedisConfig{Addr: srv.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	srv.CheckGet(t, "k", "v")
}

func TestOpenRedisUnreachable(t *testing.T) {
	srv := miniredis.RunT(t)
	addr := srv.Addr()
	srv.Close()

	_, err := OpenRedis(context.Background(), coreconfig.RedisConfig{Addr: addr})
	require.Error(t, err)
}
