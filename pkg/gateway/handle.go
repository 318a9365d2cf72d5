package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/rmax-ai/linkgate/pkg/links"
	"github.com/rmax-ai/linkgate/pkg/metrics"
)

// Handle owns the single engine instance shared by all resolvers.
// The engine is only reachable through View and Update.
type Handle[T links.ID] struct {
	lock   *rwLock
	engine links.Engine[T]
}

// NewHandle wraps engine. The caller must not use engine directly afterwards.
func NewHandle[T links.ID](engine links.Engine[T]) *Handle[T] {
	return &Handle[T]{
		lock:   newRWLock(),
		engine: engine,
	}
}

// View runs fn under the shared lock.
func (h *Handle[T]) View(ctx context.Context, fn func(links.Engine[T]) error) error {
	start := time.Now()
	if err := h.lock.RLock(ctx); err != nil {
		return fmt.Errorf("failed to acquire read lock: %w", err)
	}
	defer h.lock.RUnlock()
	metrics.LockWaitSeconds.WithLabelValues("read").Observe(time.Since(start).Seconds())

	return fn(h.engine)
}

// Update runs fn under the exclusive lock. When the engine implements
// links.Transactor, every creation made by fn is undone if fn fails.
// ctx bounds the wait for the lock only; once held, the batch runs to completion.
func (h *Handle[T]) Update(ctx context.Context, fn func(links.Engine[T]) error) error {
	start := time.Now()
	if err := h.lock.Lock(ctx); err != nil {
		return fmt.Errorf("failed to acquire write lock: %w", err)
	}
	defer h.lock.Unlock()
	metrics.LockWaitSeconds.WithLabelValues("write").Observe(time.Since(start).Seconds())

	if tx, ok := h.engine.(links.Transactor[T]); ok {
		return tx.Atomically(context.WithoutCancel(ctx), fn)
	}
	return fn(h.engine)
}
