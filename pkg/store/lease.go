package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// linksLease names the lease guarding the links table. The leases table lives
// in the same file, so one name per database is enough.
const linksLease = "links"

// Owner returns the ownership lease for this database's links table.
func (s *Store) Owner(holderID string, ttl time.Duration) *Owner {
	return NewOwner(s, linksLease, holderID, ttl)
}

// Acquire inserts the lease row, or takes it over when holderID already has it
// or the previous holder let it expire.
func (s *Store) Acquire(ctx context.Context, name, holderID string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO leases (name, holder_id, expires_at, version)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(name) DO UPDATE SET
			holder_id = excluded.holder_id,
			expires_at = excluded.expires_at,
			version = leases.version + 1
		WHERE leases.holder_id = excluded.holder_id OR leases.expires_at < ?
	`, name, holderID, now.Add(ttl), now)
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check lease %s: %w", name, err)
	}
	return n == 1, nil
}

// Renew extends a lease that holderID still has.
func (s *Store) Renew(ctx context.Context, name, holderID string, ttl time.Duration) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE leases SET expires_at = ?, version = version + 1
		WHERE name = ? AND holder_id = ?
	`, time.Now().UTC().Add(ttl), name, holderID)
	if err != nil {
		return fmt.Errorf("failed to renew lease %s: %w", name, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to check lease %s: %w", name, err)
	} else if n == 0 {
		return fmt.Errorf("lease %s is no longer held by %s", name, holderID)
	}
	return nil
}

// Release drops the lease. A lease held by someone else is left alone.
func (s *Store) Release(ctx context.Context, name, holderID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM leases WHERE name = ? AND holder_id = ?`, name, holderID); err != nil {
		return fmt.Errorf("failed to release lease %s: %w", name, err)
	}
	return nil
}

// Get returns the lease row, or nil when nobody holds it.
func (s *Store) Get(ctx context.Context, name string) (*Lease, error) {
	l := Lease{Name: name}
	err := s.db.QueryRowContext(ctx, `
		SELECT holder_id, expires_at, version FROM leases WHERE name = ?
	`, name).Scan(&l.HolderID, &l.ExpiresAt, &l.Version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read lease %s: %w", name, err)
	}
	return &l, nil
}

var _ LeaseStore = (*Store)(nil)
