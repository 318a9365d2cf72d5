// Package linkstest holds a conformance suite every link store engine must pass.
package linkstest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmax-ai/linkgate/pkg/links"
)

// Factory creates an empty engine. capacity 0 means unbounded.
type Factory func(t *testing.T, capacity int) links.Engine[uint64]

// Collect returns every doublet of e in enumeration order.
func Collect(t *testing.T, e links.Engine[uint64]) []links.Doublet[uint64] {
	t.Helper()
	var out []links.Doublet[uint64]
	err := e.Each(context.Background(), func(d links.Doublet[uint64]) links.Signal {
		out = append(out, d)
		return links.Continue
	})
	require.NoError(t, err)
	return out
}

// RunEngineTests runs the engine contract against engines built by newEngine.
func RunEngineTests(t *testing.T, newEngine Factory) {
	ctx := context.Background()

	t.Run("empty store", func(t *testing.T) {
		e := newEngine(t, 0)
		n, err := e.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(0), n)

		calls := 0
		err = e.Each(ctx, func(links.Doublet[uint64]) links.Signal {
			calls++
			return links.Continue
		})
		require.NoError(t, err)
		assert.Zero(t, calls)
	})

	t.Run("get or create is idempotent", func(t *testing.T) {
		e := newEngine(t, 0)
		first, err := e.GetOrCreate(ctx, 1, 2)
		require.NoError(t, err)
		second, err := e.GetOrCreate(ctx, 1, 2)
		require.NoError(t, err)
		assert.Equal(t, first, second)

		n, err := e.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), n)
	})

	t.Run("indices are dense and start at one", func(t *testing.T) {
		e := newEngine(t, 0)
		for i := uint64(1); i <= 5; i++ {
			id, err := e.GetOrCreate(ctx, i, i+1)
			require.NoError(t, err)
			assert.Equal(t, i, id)
		}
	})

	t.Run("self and forward references", func(t *testing.T) {
		e := newEngine(t, 0)
		id, err := e.GetOrCreate(ctx, 1, 1)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), id)

		id, err = e.GetOrCreate(ctx, 1, 42)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), id)

		id, err = e.GetOrCreate(ctx, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, uint64(3), id)
	})

	t.Run("large identifiers round trip", func(t *testing.T) {
		e := newEngine(t, 0)
		big := links.Max[uint64]()
		id, err := e.GetOrCreate(ctx, big, big-1)
		require.NoError(t, err)

		got := Collect(t, e)
		require.Len(t, got, 1)
		assert.Equal(t, links.Doublet[uint64]{Index: id, Source: big, Target: big - 1}, got[0])
	})

	t.Run("enumeration is complete and ordered", func(t *testing.T) {
		e := newEngine(t, 0)
		pairs := [][2]uint64{{1, 2}, {2, 3}, {3, 1}, {2, 1}, {7, 7}}
		for _, p := range pairs {
			_, err := e.GetOrCreate(ctx, p[0], p[1])
			require.NoError(t, err)
		}

		got := Collect(t, e)
		require.Len(t, got, len(pairs))
		for i, d := range got {
			assert.Equal(t, uint64(i+1), d.Index)
			assert.Equal(t, pairs[i][0], d.Source)
			assert.Equal(t, pairs[i][1], d.Target)
		}
	})

	t.Run("each stops on break", func(t *testing.T) {
		e := newEngine(t, 0)
		for i := uint64(0); i < 10; i++ {
			_, err := e.GetOrCreate(ctx, i, i)
			require.NoError(t, err)
		}

		calls := 0
		err := e.Each(ctx, func(links.Doublet[uint64]) links.Signal {
			calls++
			if calls == 3 {
				return links.Break
			}
			return links.Continue
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("capacity is enforced", func(t *testing.T) {
		e := newEngine(t, 2)
		_, err := e.GetOrCreate(ctx, 1, 2)
		require.NoError(t, err)
		_, err = e.GetOrCreate(ctx, 2, 3)
		require.NoError(t, err)

		// Existing pairs still resolve when full.
		id, err := e.GetOrCreate(ctx, 1, 2)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), id)

		_, err = e.GetOrCreate(ctx, 3, 4)
		assert.True(t, errors.Is(err, links.ErrCapacityExceeded), "got %v", err)
	})

	t.Run("atomically rolls back a failed batch", func(t *testing.T) {
		e := newEngine(t, 3)
		tx, ok := e.(links.Transactor[uint64])
		if !ok {
			t.Skip("engine does not implement links.Transactor")
		}
		_, err := e.GetOrCreate(ctx, 1, 2)
		require.NoError(t, err)

		err = tx.Atomically(ctx, func(e links.Engine[uint64]) error {
			for _, p := range [][2]uint64{{1, 2}, {5, 6}, {6, 7}, {7, 8}} {
				if _, err := e.GetOrCreate(ctx, p[0], p[1]); err != nil {
					return err
				}
			}
			return nil
		})
		require.ErrorIs(t, err, links.ErrCapacityExceeded)

		got := Collect(t, e)
		assert.Equal(t, []links.Doublet[uint64]{{Index: 1, Source: 1, Target: 2}}, got)

		// Indices released by the rollback are handed out again.
		id, err := e.GetOrCreate(ctx, 6, 7)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), id)
	})

	t.Run("atomically commits a successful batch", func(t *testing.T) {
		e := newEngine(t, 0)
		tx, ok := e.(links.Transactor[uint64])
		if !ok {
			t.Skip("engine does not implement links.Transactor")
		}
		var ids []uint64
		err := tx.Atomically(ctx, func(e links.Engine[uint64]) error {
			for _, p := range [][2]uint64{{1, 2}, {2, 3}, {1, 2}} {
				id, err := e.GetOrCreate(ctx, p[0], p[1])
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []uint64{1, 2, 1}, ids)

		n, err := e.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), n)
	})
}
