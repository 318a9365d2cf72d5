// Package mem provides an in-memory heap engine for the link store.
package mem

import (
	"context"

	"github.com/rmax-ai/linkgate/pkg/links"
)

// defaultBlockSize is the minimum number of doublets reserved when the heap grows.
const defaultBlockSize = 4096

type pair[T links.ID] struct {
	source T
	target T
}

// Links stores doublets in a contiguous heap; the doublet with index i lives at i-1.
// It is not safe for concurrent use on its own, the gateway handle serializes access.
type Links[T links.ID] struct {
	doublets  []links.Doublet[T]
	index     map[pair[T]]T
	capacity  int
	blockSize int
}

// Option configures a Links engine.
type Option func(*options)

type options struct {
	capacity  int
	blockSize int
}

// WithCapacity bounds the number of doublets the engine accepts. Zero means
// the engine is bounded only by the identifier type.
func WithCapacity(n int) Option {
	return func(o *options) { o.capacity = n }
}

// WithBlockSize sets the minimum number of doublets reserved per growth step.
func WithBlockSize(n int) Option {
	return func(o *options) { o.blockSize = n }
}

// New creates an empty in-memory engine.
func New[T links.ID](opts ...Option) *Links[T] {
	o := options{blockSize: defaultBlockSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.blockSize <= 0 {
		o.blockSize = defaultBlockSize
	}
	if o.capacity < 0 {
		o.capacity = 0
	}
	return &Links[T]{
		index:     make(map[pair[T]]T),
		capacity:  o.capacity,
		blockSize: o.blockSize,
	}
}

// Count returns the number of stored doublets.
func (l *Links[T]) Count(ctx context.Context) (T, error) {
	return T(len(l.doublets)), nil
}

// Each visits doublets in index order until visit returns links.Break.
func (l *Links[T]) Each(ctx context.Context, visit func(links.Doublet[T]) links.Signal) error {
	for _, d := range l.doublets {
		if visit(d) == links.Break {
			return nil
		}
	}
	return nil
}

// GetOrCreate returns the index of (source, target), appending a new doublet if needed.
func (l *Links[T]) GetOrCreate(ctx context.Context, source, target T) (T, error) {
	key := pair[T]{source: source, target: target}
	if id, ok := l.index[key]; ok {
		return id, nil
	}

	if l.capacity > 0 && len(l.doublets) >= l.capacity {
		return 0, links.ErrCapacityExceeded
	}
	id, err := links.NextIndex(T(len(l.doublets)))
	if err != nil {
		return 0, err
	}

	l.grow()
	l.doublets = append(l.doublets, links.Doublet[T]{Index: id, Source: source, Target: target})
	l.index[key] = id
	return id, nil
}

// Atomically runs fn and truncates the heap back to its previous size when fn fails.
// Indices are dense and nothing is deleted, so every doublet past the mark was created by fn.
func (l *Links[T]) Atomically(ctx context.Context, fn func(links.Engine[T]) error) error {
	mark := len(l.doublets)
	if err := fn(l); err != nil {
		for _, d := range l.doublets[mark:] {
			delete(l.index, pair[T]{source: d.Source, target: d.Target})
		}
		clear(l.doublets[mark:])
		l.doublets = l.doublets[:mark]
		return err
	}
	return nil
}

// grow doubles the heap when it is full, by at least one block and never past the capacity.
func (l *Links[T]) grow() {
	if len(l.doublets) < cap(l.doublets) {
		return
	}
	size := max(2*cap(l.doublets), cap(l.doublets)+l.blockSize)
	if l.capacity > 0 && size > l.capacity {
		size = l.capacity
	}
	grown := make([]links.Doublet[T], len(l.doublets), size)
	copy(grown, l.doublets)
	l.doublets = grown
}

var (
	_ links.Engine[uint64]     = (*Links[uint64])(nil)
	_ links.Transactor[uint64] = (*Links[uint64])(nil)
)
