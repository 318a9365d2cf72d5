package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rmax-ai/linkgate/pkg/links"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Links is a link store engine backed by the links table.
type Links[T links.ID] struct {
	db       *sql.DB
	q        querier
	capacity uint64
}

// NewLinks returns an engine over s. capacity 0 means the engine is bounded
// only by the identifier type.
func NewLinks[T links.ID](s *Store, capacity uint64) *Links[T] {
	return &Links[T]{db: s.db, q: s.db, capacity: capacity}
}

func toColumn[T links.ID](v T) int64 {
	return int64(uint64(v))
}

func fromColumn[T links.ID](v int64) T {
	return T(uint64(v))
}

// Count returns the number of rows in the links table.
func (l *Links[T]) Count(ctx context.Context) (T, error) {
	var n int64
	if err := l.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM links`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count links: %w", err)
	}
	return T(n), nil
}

// Each visits the links in id order until visit returns links.Break.
func (l *Links[T]) Each(ctx context.Context, visit func(links.Doublet[T]) links.Signal) error {
	rows, err := l.q.QueryContext(ctx, `SELECT id, source, target FROM links ORDER BY id`)
	if err != nil {
		return fmt.Errorf("failed to query links: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, source, target int64
		if err := rows.Scan(&id, &source, &target); err != nil {
			return fmt.Errorf("failed to scan link: %w", err)
		}
		d := links.Doublet[T]{
			Index:  fromColumn[T](id),
			Source: fromColumn[T](source),
			Target: fromColumn[T](target),
		}
		if visit(d) == links.Break {
			return nil
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating links: %w", err)
	}
	return nil
}

// GetOrCreate returns the id of (source, target), inserting the row when missing.
func (l *Links[T]) GetOrCreate(ctx context.Context, source, target T) (T, error) {
	var id int64
	err := l.q.QueryRowContext(ctx, `
		SELECT id FROM links WHERE source = ? AND target = ?
	`, toColumn(source), toColumn(target)).Scan(&id)
	if err == nil {
		return fromColumn[T](id), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to look up link: %w", err)
	}

	count, err := l.Count(ctx)
	if err != nil {
		return 0, err
	}
	if l.capacity > 0 && uint64(count) >= l.capacity {
		return 0, links.ErrCapacityExceeded
	}
	next, err := links.NextIndex(count)
	if err != nil {
		return 0, err
	}

	_, err = l.q.ExecContext(ctx, `
		INSERT INTO links (id, source, target) VALUES (?, ?, ?)
	`, toColumn(next), toColumn(source), toColumn(target))
	if err != nil {
		return 0, fmt.Errorf("failed to insert link: %w", err)
	}

	return next, nil
}

// Atomically runs fn inside a transaction and rolls it back when fn fails.
func (l *Links[T]) Atomically(ctx context.Context, fn func(links.Engine[T]) error) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&Links[T]{db: l.db, q: tx, capacity: l.capacity}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

var (
	_ links.Engine[uint64]     = (*Links[uint64])(nil)
	_ links.Transactor[uint64] = (*Links[uint64])(nil)
)
