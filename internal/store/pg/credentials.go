package pg

import (
	"context"
	"database/sql"
	"errors"

	"custodia.org/internal/auth"
	"custodia.org/internal/ids"
)

var _ auth.CredentialStore = (*Store)(nil)

const principalColumns = `
	id, first_name, last_name, email, password_hash, role_id, approved,
	totp_secret, mfa_enrolled_at, sign_in_count, failed_login_attempts,
	current_sign_in_ip, last_sign_in_ip, last_login_at, created_at, updated_at`

func scanPrincipal(row interface{ Scan(...any) error }) (*auth.Principal, error) {
	var (
		p          auth.Principal
		totpSecret sql.NullString
		enrolledAt sql.NullTime
		currentIP  sql.NullString
		lastIP     sql.NullString
		lastLogin  sql.NullTime
	)
	err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.Email, &p.PasswordHash,
		&p.RoleID, &p.Approved, &totpSecret, &enrolledAt, &p.SignInCount,
		&p.FailedAttempts, &currentIP, &lastIP, &lastLogin, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.TOTPSecret = totpSecret.String
	p.MFAEnrolledAt = enrolledAt.Time
	p.CurrentSignInIP = currentIP.String
	p.LastSignInIP = lastIP.String
	p.LastLoginAt = lastLogin.Time
	return &p, nil
}

func (s *Store) CreatePrincipal(ctx context.Context, p *auth.Principal) error {
	_, err := s.db.ExecContext(ctx, `
		insert into principals (id, first_name, last_name, email, password_hash,
			role_id, approved, totp_secret, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
	`, p.ID, p.FirstName, p.LastName, p.Email, p.PasswordHash, p.RoleID,
		p.Approved, nullIfEmpty(p.TOTPSecret))
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return auth.ErrConflict
			case pgErrForeignKeyViolation:
				return auth.ErrNotFound
			}
		}
		return err
	}
	return nil
}

func (s *Store) PrincipalByID(ctx context.Context, id string) (*auth.Principal, error) {
	p, err := scanPrincipal(s.db.QueryRowContext(ctx,
		`select `+principalColumns+` from principals where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	return p, err
}

func (s *Store) PrincipalByEmail(ctx context.Context, email string) (*auth.Principal, error) {
	p, err := scanPrincipal(s.db.QueryRowContext(ctx,
		`select `+principalColumns+` from principals where email = $1`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	return p, err
}

func (s *Store) ListPrincipals(ctx context.Context) ([]*auth.Principal, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+principalColumns+` from principals order by created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*auth.Principal
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *Store) touchPrincipal(ctx context.Context, id, set string, args ...any) error {
	res, err := s.db.ExecContext(ctx,
		`update principals set `+set+`, updated_at = now() where id = $1`,
		append([]any{id}, args...)...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *Store) ApprovePrincipal(ctx context.Context, id string) error {
	return s.touchPrincipal(ctx, id, `approved = true`)
}

func (s *Store) SetTOTPSecret(ctx context.Context, id, secret string) error {
	return s.touchPrincipal(ctx, id, `totp_secret = $2`, secret)
}

func (s *Store) MarkEnrolled(ctx context.Context, id string) error {
	return s.touchPrincipal(ctx, id, `mfa_enrolled_at = coalesce(mfa_enrolled_at, now())`)
}

func (s *Store) RecordSignInSuccess(ctx context.Context, id, originIP string) error {
	return s.touchPrincipal(ctx, id, `
		failed_login_attempts = 0,
		sign_in_count = sign_in_count + 1,
		last_sign_in_ip = current_sign_in_ip,
		current_sign_in_ip = $2,
		last_login_at = now()`, nullIfEmpty(originIP))
}

func (s *Store) RecordSignInFailure(ctx context.Context, id string) error {
	return s.touchPrincipal(ctx, id, `failed_login_attempts = failed_login_attempts + 1`)
}

func (s *Store) SetRole(ctx context.Context, principalID, roleID string) error {
	err := s.touchPrincipal(ctx, principalID, `role_id = $2`, roleID)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
		return auth.ErrNotFound
	}
	return err
}

func (s *Store) CreateRole(ctx context.Context, role *auth.Role) error {
	if role.ID == "" {
		role.ID = ids.New()
	}
	err := s.db.QueryRowContext(ctx, `
		insert into roles (id, name, description, permissions, created_at, updated_at)
		values ($1, $2, $3, '{}'::jsonb, now(), now())
		returning created_at, updated_at
	`, role.ID, role.Name, nullIfEmpty(role.Description)).Scan(&role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrConflict
		}
		return err
	}
	return nil
}

func scanRole(row interface{ Scan(...any) error }) (*auth.Role, error) {
	var (
		role auth.Role
		desc sql.NullString
	)
	if err := row.Scan(&role.ID, &role.Name, &desc, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return nil, err
	}
	role.Description = desc.String
	return &role, nil
}

func (s *Store) RoleByID(ctx context.Context, id string) (*auth.Role, error) {
	role, err := scanRole(s.db.QueryRowContext(ctx, `
		select id, name, description, created_at, updated_at from roles where id = $1
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	return role, err
}

func (s *Store) RoleByName(ctx context.Context, name string) (*auth.Role, error) {
	role, err := scanRole(s.db.QueryRowContext(ctx, `
		select id, name, description, created_at, updated_at from roles where name = $1
	`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	return role, err
}

func (s *Store) ListRoles(ctx context.Context) ([]*auth.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, description, created_at, updated_at from roles order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*auth.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, role)
	}
	return result, rows.Err()
}
