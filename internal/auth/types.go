package auth

import "time"

// Principal is a registered account. Principals are never hard-deleted;
// auth flows mutate the password, role, MFA, and sign-in bookkeeping fields.
type Principal struct {
	ID           string
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	RoleID       string

	Approved bool

	TOTPSecret    string
	MFAEnrolledAt time.Time // zero until the first successful challenge

	SignInCount     int
	FailedAttempts  int
	CurrentSignInIP string
	LastSignInIP    string
	LastLoginAt     time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Enrolled reports whether the principal has completed MFA enrollment.
func (p *Principal) Enrolled() bool {
	return !p.MFAEnrolledAt.IsZero()
}

// Role names a permission set. The set itself is stored serialized and
// interpreted by the rbac package; auth only carries the reference.
type Role struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
