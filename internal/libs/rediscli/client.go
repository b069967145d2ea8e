// Package rediscli builds the Redis client the stores and the delivery
// queue share.
package rediscli

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const pingTimeout = 10 * time.Second

type Config struct {
	Addr     string
	Password string
	DB       int
}

// NewClient connects and verifies the server answers before handing the
// client out. The ping is bounded by pingTimeout but still honors ctx, so
// a cancelled startup does not block on an unreachable server.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return client, nil
}
