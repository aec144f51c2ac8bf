package pg

import (
	"context"
	"database/sql"
	"errors"

	"custodia.org/internal/rbac"
)

var _ rbac.Store = (*Store)(nil)

// ReadPermissions returns the serialized permission document for the role.
// The rbac package parses and validates it; this layer only moves bytes.
func (s *Store) ReadPermissions(ctx context.Context, roleID string) ([]byte, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `
		select permissions from roles where id = $1
	`, roleID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, rbac.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (s *Store) WritePermissions(ctx context.Context, roleID string, serialized []byte) error {
	res, err := s.db.ExecContext(ctx, `
		update roles set permissions = $2, updated_at = now() where id = $1
	`, roleID, serialized)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return rbac.ErrNotFound
	}
	return nil
}
