package main

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/rmax-ai/linkgate/pkg/api"
	"github.com/rmax-ai/linkgate/pkg/links"
	"github.com/rmax-ai/linkgate/pkg/links/mem"
	"github.com/rmax-ai/linkgate/pkg/store"
	"github.com/rmax-ai/linkgate/pkg/store/redis"
)

// backend is the opened link engine plus the lease that guards its ownership.
type backend struct {
	engine links.Engine[api.LinkID]
	owner  *store.Owner // nil for the in-memory engine
	close  func() error
}

func openBackend(ctx context.Context, cfg Config, logger *slog.Logger) (*backend, error) {
	hostname, _ := os.Hostname()
	holder := fmt.Sprintf("linkgate-d/%s/%d/%s", hostname, os.Getpid(), uuid.NewString())

	switch cfg.Engine {
	case "mem":
		capacity := cfg.Capacity
		if capacity > math.MaxInt {
			capacity = math.MaxInt
		}
		logger.Info("store_initialized", "engine", "mem", "capacity", cfg.Capacity)
		return &backend{
			engine: mem.New[api.LinkID](mem.WithCapacity(int(capacity))),
			close:  func() error { return nil },
		}, nil

	case "sqlite":
		st, err := store.NewStore(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to init store: %w", err)
		}
		b := &backend{
			engine: store.NewLinks[api.LinkID](st, cfg.Capacity),
			owner:  st.Owner(holder, cfg.LeaseTTL),
			close:  st.Close,
		}
		if err := b.owner.Claim(ctx); err != nil {
			st.Close()
			return nil, err
		}
		logger.Info("store_initialized", "engine", "sqlite", "path", cfg.DBPath, "capacity", cfg.Capacity)
		return b, nil

	case "redis":
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		engine := redis.NewRedisLinkStore[api.LinkID](client, cfg.RedisPrefix, cfg.Capacity)
		b := &backend{
			engine: engine,
			owner:  engine.Owner(holder, cfg.LeaseTTL),
			close:  client.Close,
		}
		if err := b.owner.Claim(ctx); err != nil {
			client.Close()
			return nil, err
		}
		logger.Info("store_initialized", "engine", "redis", "addr", cfg.RedisAddr, "prefix", cfg.RedisPrefix, "capacity", cfg.Capacity)
		return b, nil
	}
	return nil, fmt.Errorf("unsupported engine: %s", cfg.Engine)
}

// keepLease renews the ownership lease until ctx is done. Losing the lease
// returns an error so the daemon stops serving a store it no longer owns.
func (b *backend) keepLease(ctx context.Context, logger *slog.Logger) error {
	if b.owner == nil {
		return nil
	}
	if err := b.owner.Keep(ctx); err != nil {
		logger.Error("lease_lost", "lease", b.owner.Name(), "holder", b.owner.Holder(), "error", err)
		return err
	}
	return nil
}

// Close releases the lease and closes the engine's resources.
func (b *backend) Close(logger *slog.Logger) {
	if b.owner != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := b.owner.Release(ctx); err != nil {
			logger.Warn("failed_to_release_lease", "lease", b.owner.Name(), "error", err)
		}
	}
	if err := b.close(); err != nil {
		logger.Error("failed_to_close_store", "error", err)
		return
	}
	logger.Info("store_closed")
}
