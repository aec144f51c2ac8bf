package auth

import "context"

// CredentialStore is the persistence port for principals and roles. All
// operations are single synchronous statements; callers treat failures as
// dependency errors and do not retry internally.
type CredentialStore interface {
	CreatePrincipal(ctx context.Context, p *Principal) error
	PrincipalByID(ctx context.Context, id string) (*Principal, error)
	PrincipalByEmail(ctx context.Context, email string) (*Principal, error)
	ListPrincipals(ctx context.Context) ([]*Principal, error)

	// ApprovePrincipal flips the approval flag set by an administrator.
	ApprovePrincipal(ctx context.Context, id string) error

	// SetTOTPSecret replaces the enrolled secret without completing
	// enrollment; MarkEnrolled stamps the first successful verification.
	SetTOTPSecret(ctx context.Context, id, secret string) error
	MarkEnrolled(ctx context.Context, id string) error

	// RecordSignInSuccess resets the failure counter, bumps the sign-in
	// count, and rotates the origin-IP history in one statement.
	RecordSignInSuccess(ctx context.Context, id, originIP string) error
	RecordSignInFailure(ctx context.Context, id string) error

	SetRole(ctx context.Context, principalID, roleID string) error

	CreateRole(ctx context.Context, role *Role) error
	RoleByID(ctx context.Context, id string) (*Role, error)
	RoleByName(ctx context.Context, name string) (*Role, error)
	ListRoles(ctx context.Context) ([]*Role, error)
}
