package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/luikyv/go-authority/internal/storage/mongodb"
	"github.com/luikyv/go-authority/internal/storage/redis"
	"github.com/luikyv/go-authority/pkg/provider"
	goredis "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// openStorage connects to the configured backend, retrying with an
// exponential backoff while it is not reachable. The returned func releases
// the connection.
func openStorage(ctx context.Context, cfg StorageConfig, logger *slog.Logger) (provider.Storage, func(), error) {
	switch cfg.Type {
	case storageRedis:
		client, err := retry(ctx, cfg.ConnectAttempts, logger, func() (goredis.UniversalClient, error) {
			return redis.Connect(ctx, redis.Config{
				Addr:      cfg.Redis.Addr,
				Username:  cfg.Redis.Username,
				Password:  cfg.Redis.Password,
				DB:        cfg.Redis.DB,
				KeyPrefix: cfg.Redis.KeyPrefix,
			})
		})
		if err != nil {
			return provider.Storage{}, nil, err
		}
		m := redis.NewManagers(client, cfg.Redis.KeyPrefix)
		return provider.Storage{
			Client:               m.Client,
			Token:                m.Token,
			Session:              m.Session,
			PendingAuthorization: m.PendingAuthorization,
			UMAResource:          m.UMAResource,
			UMATicket:            m.UMATicket,
			UMARPT:               m.UMARPT,
			UMAPCT:               m.UMAPCT,
		}, func() { _ = client.Close() }, nil
	case storageMongo:
		client, err := retry(ctx, cfg.ConnectAttempts, logger, func() (*mongo.Client, error) {
			return mongodb.Connect(ctx, cfg.Mongo.URI)
		})
		if err != nil {
			return provider.Storage{}, nil, err
		}
		database := client.Database(cfg.Mongo.Database)
		if err := mongodb.EnsureIndexes(ctx, database); err != nil {
			_ = client.Disconnect(context.Background())
			return provider.Storage{}, nil, err
		}
		m := mongodb.NewManagers(database)
		return provider.Storage{
			Client:               m.Client,
			Token:                m.Token,
			Session:              m.Session,
			PendingAuthorization: m.PendingAuthorization,
			UMAResource:          m.UMAResource,
			UMATicket:            m.UMATicket,
			UMARPT:               m.UMARPT,
			UMAPCT:               m.UMAPCT,
		}, func() { _ = client.Disconnect(context.Background()) }, nil
	default:
		return provider.Storage{}, func() {}, nil
	}
}

func retry[T any](ctx context.Context, attempts int, logger *slog.Logger, connect func() (T, error)) (T, error) {
	if attempts <= 0 {
		attempts = 1
	}

	res, err := backoff.Retry(ctx, connect,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("storage not reachable, retrying",
				slog.String("error", err.Error()), slog.Duration("next_attempt_in", next))
		}),
	)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("could not connect to the storage: %w", err)
	}
	return res, nil
}
