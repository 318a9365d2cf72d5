package links

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// ID is the set of identifier types a link store can be addressed with.
type ID interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uint
}

// Doublet is the only unit a link store holds: an association from Source to Target.
type Doublet[T ID] struct {
	Index  T `json:"index"`
	Source T `json:"source"`
	Target T `json:"target"`
}

// Signal tells Each whether to keep visiting.
type Signal bool

const (
	Continue Signal = true
	Break    Signal = false
)

var (
	// ErrCapacityExceeded is returned when an engine cannot hold another doublet.
	ErrCapacityExceeded = errors.New("link store capacity exceeded")
	// ErrIDOverflow is returned when the next index does not fit the identifier type.
	ErrIDOverflow = errors.New("link identifier overflow")
	// ErrInvalidID is returned for identifiers outside the representable range.
	ErrInvalidID = errors.New("invalid link identifier")
)

// Engine defines the operations the gateway needs from a storage engine.
type Engine[T ID] interface {
	// Count returns the number of stored doublets.
	Count(ctx context.Context) (T, error)

	// Each calls visit once per stored doublet in ascending index order
	// until visit returns Break.
	Each(ctx context.Context, visit func(Doublet[T]) Signal) error

	// GetOrCreate returns the index of the doublet (source, target),
	// creating it when it does not exist yet.
	GetOrCreate(ctx context.Context, source, target T) (T, error)
}

// Transactor is implemented by engines that can undo every creation made
// by fn when fn fails.
type Transactor[T ID] interface {
	Atomically(ctx context.Context, fn func(Engine[T]) error) error
}

// Max returns the largest value of T.
func Max[T ID]() T {
	var zero T
	return ^zero
}

// FromUint64 converts v to T, failing with ErrInvalidID when it does not fit.
func FromUint64[T ID](v uint64) (T, error) {
	if v > uint64(Max[T]()) {
		return 0, fmt.Errorf("%w: %d exceeds %d", ErrInvalidID, v, uint64(Max[T]()))
	}
	return T(v), nil
}

// ParseID parses a base 10 identifier.
func ParseID[T ID](s string) (T, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	return FromUint64[T](v)
}

// NextIndex returns the index that follows a store holding count doublets.
func NextIndex[T ID](count T) (T, error) {
	if count == Max[T]() {
		return 0, ErrIDOverflow
	}
	return count + 1, nil
}
