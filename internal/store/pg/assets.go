package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"custodia.org/internal/asset"
	"custodia.org/internal/rbac"
)

var _ asset.Store = (*Store)(nil)

const assetColumns = `
	id, kind, title, description, mime_type, checksum, nonce, tag, key_version,
	created_by, updated_by, deleted_by, created_at, updated_at, deleted_at`

func scanAsset(row interface{ Scan(...any) error }) (*asset.Record, error) {
	var (
		r          asset.Record
		kind       string
		desc       sql.NullString
		keyVersion sql.NullString
		updatedBy  sql.NullString
		deletedBy  sql.NullString
		deletedAt  sql.NullTime
	)
	err := row.Scan(&r.ID, &kind, &r.Title, &desc, &r.MimeType, &r.Checksum,
		&r.Nonce, &r.Tag, &keyVersion, &r.CreatedBy, &updatedBy, &deletedBy,
		&r.CreatedAt, &r.UpdatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}
	r.Kind = rbac.Resource(kind)
	r.Description = desc.String
	r.KeyVersion = keyVersion.String
	r.UpdatedBy = updatedBy.String
	r.DeletedBy = deletedBy.String
	if deletedAt.Valid {
		at := deletedAt.Time
		r.DeletedAt = &at
	}
	return &r, nil
}

func (s *Store) CreateRecord(ctx context.Context, r *asset.Record) error {
	_, err := s.db.ExecContext(ctx, `
		insert into assets (id, kind, title, description, mime_type, checksum,
			nonce, tag, key_version, created_by, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, r.ID, string(r.Kind), r.Title, nullIfEmpty(r.Description), r.MimeType,
		r.Checksum, r.Nonce, r.Tag, nullIfEmpty(r.KeyVersion), r.CreatedBy,
		r.CreatedAt.UTC(), r.UpdatedAt.UTC())
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return asset.ErrInvalidInput
		}
		return err
	}
	return nil
}

func (s *Store) RecordByID(ctx context.Context, id string) (*asset.Record, error) {
	r, err := scanAsset(s.db.QueryRowContext(ctx,
		`select `+assetColumns+` from assets where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, asset.ErrNotFound
	}
	return r, err
}

func (s *Store) UpdateRecord(ctx context.Context, r *asset.Record) error {
	res, err := s.db.ExecContext(ctx, `
		update assets set title = $2, description = $3, mime_type = $4,
			checksum = $5, nonce = $6, tag = $7, key_version = $8,
			updated_by = $9, updated_at = $10
		where id = $1 and deleted_at is null
	`, r.ID, r.Title, nullIfEmpty(r.Description), r.MimeType, r.Checksum,
		r.Nonce, r.Tag, nullIfEmpty(r.KeyVersion), nullIfEmpty(r.UpdatedBy),
		r.UpdatedAt.UTC())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return asset.ErrNotFound
	}
	return nil
}

func (s *Store) SoftDeleteRecord(ctx context.Context, id, deletedBy string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update assets set deleted_by = $2, deleted_at = $3
		where id = $1 and deleted_at is null
	`, id, deletedBy, at.UTC())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return asset.ErrNotFound
	}
	return nil
}

func (s *Store) ListRecords(ctx context.Context, kind rbac.Resource, limit, offset int) ([]*asset.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+assetColumns+` from assets
		where kind = $1 and deleted_at is null
		order by created_at desc, id desc
		limit $2 offset $3
	`, string(kind), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*asset.Record
	for rows.Next() {
		r, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}
