package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/machinekit/pkg/logger"
	"github.com/dmitrymomot/machinekit/pkg/statemachine"
)

// RedisConfig holds the connection settings for the transition publisher.
type RedisConfig struct {
	ConnectionURL  string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	Channel        string        `env:"REDIS_CHANNEL" envDefault:"machinekit:transitions"`
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"5s"`
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"`
	PublishTimeout time.Duration `env:"REDIS_PUBLISH_TIMEOUT" envDefault:"1s"`
}

// ConnectRedis opens a client and pings it, retrying up to
// cfg.RetryAttempts times with cfg.RetryInterval between attempts.
func ConnectRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	opts, err := redis.ParseURL(cfg.ConnectionURL)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseRedisConnString, err)
	}

	for range max(cfg.RetryAttempts, 1) {
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err == nil {
			return client, nil
		}
		_ = client.Close()

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrRedisNotReady, ctx.Err())
		case <-time.After(cfg.RetryInterval):
		}
	}

	return nil, ErrRedisNotReady
}

// Healthcheck returns a probe that pings the client.
func Healthcheck(client redis.UniversalClient) func(context.Context) error {
	return func(ctx context.Context) error {
		if _, err := client.Ping(ctx).Result(); err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}
		return nil
	}
}

// Publisher is the part of a redis client used by RedisObserver.
// *redis.Client and redis.UniversalClient satisfy it.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisObserver publishes every finished dispatch as a JSON Transition on a
// pub/sub channel. Publish failures are logged and never affect the dispatch.
type RedisObserver struct {
	pub     Publisher
	channel string
	timeout time.Duration
	logger  *slog.Logger
}

// NewRedisObserver creates an observer publishing to channel. A nil logger
// falls back to slog.Default().
func NewRedisObserver(pub Publisher, channel string, l *slog.Logger) (*RedisObserver, error) {
	if pub == nil {
		return nil, ErrNilPublisher
	}
	if channel == "" {
		channel = "machinekit:transitions"
	}
	if l == nil {
		l = slog.Default()
	}
	return &RedisObserver{
		pub:     pub,
		channel: channel,
		timeout: time.Second,
		logger:  l.With(logger.Component("redis_observer")),
	}, nil
}

// WithTimeout sets the per-publish timeout.
func (o *RedisObserver) WithTimeout(d time.Duration) *RedisObserver {
	if d > 0 {
		o.timeout = d
	}
	return o
}

// Channel returns the pub/sub channel name.
func (o *RedisObserver) Channel() string {
	return o.channel
}

func (o *RedisObserver) OnEventStarted(ctx context.Context, machine string, state any, event statemachine.Event) {
}

func (o *RedisObserver) OnEventFinished(ctx context.Context, rec statemachine.Record) {
	payload, err := json.Marshal(NewTransition(ctx, rec))
	if err != nil {
		o.logger.ErrorContext(ctx, "failed to encode transition", logger.Error(err))
		return
	}

	// The dispatch context may be canceled right after the action returns.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.timeout)
	defer cancel()

	if err := o.pub.Publish(pctx, o.channel, payload).Err(); err != nil {
		o.logger.WarnContext(ctx, "failed to publish transition",
			logger.Machine(rec.Machine),
			logger.Event(rec.Event),
			slog.String("channel", o.channel),
			logger.Error(err))
	}
}
