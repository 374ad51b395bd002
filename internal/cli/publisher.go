package cli

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/machinekit/pkg/config"
	"github.com/dmitrymomot/machinekit/pkg/telemetry"
)

// connectPublisher builds a redis observer publishing on channel. The
// returned client must be closed by the caller.
func connectPublisher(ctx context.Context, channel string, log *slog.Logger) (*telemetry.RedisObserver, *redis.Client, error) {
	var cfg telemetry.RedisConfig
	if err := config.Parse(&cfg); err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to read redis config", err)
	}
	client, err := telemetry.ConnectRedis(ctx, cfg)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to connect to redis", err)
	}
	pub, err := telemetry.NewRedisObserver(client, channel, log)
	if err != nil {
		_ = client.Close()
		return nil, nil, WrapExitError(ExitCommandError, "failed to create redis observer", err)
	}
	return pub.WithTimeout(cfg.PublishTimeout), client, nil
}
