package gateway

import (
	"context"
	"fmt"

	"github.com/rmax-ai/linkgate/pkg/links"
	"github.com/rmax-ai/linkgate/pkg/logging"
	"github.com/rmax-ai/linkgate/pkg/metrics"
)

// Mutation resolves write operations.
type Mutation[T links.ID] struct {
	handle *Handle[T]
}

func NewMutation[T links.ID](h *Handle[T]) *Mutation[T] {
	return &Mutation[T]{handle: h}
}

// InsertLinks resolves each requested pair to a doublet, creating the ones that
// do not exist. The result has one record per request, in request order.
// The whole batch runs under one exclusive lock; on failure no record is returned.
// An empty batch returns an empty result without taking the lock.
func (m *Mutation[T]) InsertLinks(ctx context.Context, objects []InputLink[T]) ([]Link[T], error) {
	metrics.BatchSize.Observe(float64(len(objects)))
	if len(objects) == 0 {
		metrics.OperationsTotal.WithLabelValues("insert_links", "ok").Inc()
		return []Link[T]{}, nil
	}

	opCtx := context.WithoutCancel(ctx)
	var returning []Link[T]
	err := m.handle.Update(ctx, func(e links.Engine[T]) error {
		returning = make([]Link[T], 0, len(objects))
		for i, link := range objects {
			id, err := e.GetOrCreate(opCtx, link.FromID, link.ToID)
			if err != nil {
				return fmt.Errorf("failed to insert link %d (%d -> %d): %w", i, link.FromID, link.ToID, err)
			}
			returning = append(returning, Link[T]{
				ID:     id,
				FromID: link.FromID,
				ToID:   link.ToID,
			})
		}

		count, err := e.Count(opCtx)
		if err != nil {
			return fmt.Errorf("failed to count links: %w", err)
		}
		metrics.LinksTotal.Set(float64(count))
		return nil
	})
	if err != nil {
		metrics.OperationsTotal.WithLabelValues("insert_links", "error").Inc()
		logging.FromContext(ctx).Warn("insert_links_failed", "requested", len(objects), "error", err)
		return nil, err
	}

	metrics.OperationsTotal.WithLabelValues("insert_links", "ok").Inc()
	logging.FromContext(ctx).Debug("links_inserted", "requested", len(objects))
	return returning, nil
}
