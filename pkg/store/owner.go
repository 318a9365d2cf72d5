package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrStoreOwned is returned by Claim when another process holds the store.
var ErrStoreOwned = errors.New("store is owned by another process")

// Owner makes one process the only writer of a durable link store.
// The daemon claims the store before serving it and stops when the claim is lost.
type Owner struct {
	leases LeaseStore
	name   string
	holder string
	ttl    time.Duration
}

func NewOwner(leases LeaseStore, name, holderID string, ttl time.Duration) *Owner {
	return &Owner{leases: leases, name: name, holder: holderID, ttl: ttl}
}

// Name returns the lease name guarding the store.
func (o *Owner) Name() string {
	return o.name
}

// Holder returns the identity the lease is taken under.
func (o *Owner) Holder() string {
	return o.holder
}

// Claim takes the lease. When someone else has it the error wraps
// ErrStoreOwned and names the current holder.
func (o *Owner) Claim(ctx context.Context) error {
	ok, err := o.leases.Acquire(ctx, o.name, o.holder, o.ttl)
	if err != nil {
		return fmt.Errorf("failed to claim store: %w", err)
	}
	if ok {
		return nil
	}
	current, err := o.leases.Get(ctx, o.name)
	if err != nil || current == nil {
		return ErrStoreOwned
	}
	return fmt.Errorf("%w: held by %s until %s", ErrStoreOwned, current.HolderID, current.ExpiresAt.Format(time.RFC3339))
}

// Keep renews the lease every third of its ttl until ctx is done. It returns
// an error as soon as a renewal fails; the caller must stop using the store.
func (o *Owner) Keep(ctx context.Context) error {
	ticker := time.NewTicker(o.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := o.leases.Renew(ctx, o.name, o.holder, o.ttl); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("lost store lease: %w", err)
			}
		}
	}
}

// Release gives the store up.
func (o *Owner) Release(ctx context.Context) error {
	return o.leases.Release(ctx, o.name, o.holder)
}
