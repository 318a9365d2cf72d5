package gateway

import (
	"context"
	"fmt"

	"github.com/rmax-ai/linkgate/pkg/links"
	"github.com/rmax-ai/linkgate/pkg/metrics"
)

// Query resolves read-only operations.
type Query[T links.ID] struct {
	handle *Handle[T]
}

func NewQuery[T links.ID](h *Handle[T]) *Query[T] {
	return &Query[T]{handle: h}
}

// Links returns every stored doublet from a single consistent snapshot.
func (q *Query[T]) Links(ctx context.Context) ([]Link[T], error) {
	opCtx := context.WithoutCancel(ctx)
	var returning []Link[T]
	err := q.handle.View(ctx, func(e links.Engine[T]) error {
		count, err := e.Count(opCtx)
		if err != nil {
			return fmt.Errorf("failed to count links: %w", err)
		}

		returning = make([]Link[T], 0, preallocate(count))
		err = e.Each(opCtx, func(d links.Doublet[T]) links.Signal {
			returning = append(returning, Link[T]{
				ID:     d.Index,
				FromID: d.Source,
				ToID:   d.Target,
			})
			return links.Continue
		})
		if err != nil {
			return fmt.Errorf("failed to enumerate links: %w", err)
		}

		metrics.LinksTotal.Set(float64(count))
		return nil
	})
	if err != nil {
		metrics.OperationsTotal.WithLabelValues("links", "error").Inc()
		return nil, err
	}

	metrics.OperationsTotal.WithLabelValues("links", "ok").Inc()
	return returning, nil
}

// maxPrealloc caps the buffer reserved up front from Count.
const maxPrealloc = 1 << 16

func preallocate[T links.ID](count T) int {
	if uint64(count) > maxPrealloc {
		return maxPrealloc
	}
	return int(count)
}
