package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rmax-ai/linkgate/pkg/store"
)

// acquireScript sets the lease when it is free or already ours.
var acquireScript = redis.NewScript(`
local holder = redis.call("GET", KEYS[1])
if holder == false or holder == ARGV[1] then
	redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
	return 1
end
return 0
`)

var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
	return 0
end
return redis.call("PEXPIRE", KEYS[1], ARGV[2])
`)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
	return 0
end
return redis.call("DEL", KEYS[1])
`)

// RedisLeaseStore keeps each lease in a single key whose value is the holder
// and whose TTL is the lease expiry.
type RedisLeaseStore struct {
	client *redis.Client
}

func NewRedisLeaseStore(client *redis.Client) *RedisLeaseStore {
	return &RedisLeaseStore{client: client}
}

func leaseKey(name string) string {
	return "linkgate:lease:" + name
}

// Owner returns the ownership lease for this engine's prefix.
func (s *RedisLinkStore[T]) Owner(holderID string, ttl time.Duration) *store.Owner {
	return store.NewOwner(NewRedisLeaseStore(s.client), s.prefix+":links", holderID, ttl)
}

func (s *RedisLeaseStore) Acquire(ctx context.Context, name, holderID string, ttl time.Duration) (bool, error) {
	n, err := acquireScript.Run(ctx, s.client, []string{leaseKey(name)}, holderID, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease %s: %w", name, err)
	}
	return n == 1, nil
}

func (s *RedisLeaseStore) Renew(ctx context.Context, name, holderID string, ttl time.Duration) error {
	n, err := renewScript.Run(ctx, s.client, []string{leaseKey(name)}, holderID, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to renew lease %s: %w", name, err)
	}
	if n != 1 {
		return fmt.Errorf("lease %s is no longer held by %s", name, holderID)
	}
	return nil
}

// Release drops the lease. A lease held by someone else is left alone.
func (s *RedisLeaseStore) Release(ctx context.Context, name, holderID string) error {
	if err := releaseScript.Run(ctx, s.client, []string{leaseKey(name)}, holderID).Err(); err != nil {
		return fmt.Errorf("failed to release lease %s: %w", name, err)
	}
	return nil
}

// Get returns the holder and expiry, or nil when nobody holds the lease.
func (s *RedisLeaseStore) Get(ctx context.Context, name string) (*store.Lease, error) {
	key := leaseKey(name)
	pipe := s.client.Pipeline()
	holder := pipe.Get(ctx, key)
	ttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read lease %s: %w", name, err)
	}

	if errors.Is(holder.Err(), redis.Nil) {
		return nil, nil
	}
	return &store.Lease{
		Name:      name,
		HolderID:  holder.Val(),
		ExpiresAt: time.Now().Add(ttl.Val()),
	}, nil
}

var _ store.LeaseStore = (*RedisLeaseStore)(nil)
