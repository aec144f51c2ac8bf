package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultIssuer = "custodia"

	// A ticket survives this many failed challenges, then it is consumed
	// and the principal must start over from the password step.
	defaultMaxOTPFailures = 5

	guestRoleName = "Guest"
)

// Service orchestrates the authentication state machine:
// Anonymous -> PasswordVerified(ticket) -> Authenticated(token).
// An OTP failure leaves the ticket in place; only spending the failure
// budget or succeeding moves the state.
type Service struct {
	store   CredentialStore
	tickets TicketStore
	signer  *Signer

	issuer         string
	ticketTTL      time.Duration
	maxOTPFailures int
	now            func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithIssuer overrides the TOTP provisioning issuer label.
func WithIssuer(issuer string) ServiceOption {
	return func(s *Service) {
		if strings.TrimSpace(issuer) != "" {
			s.issuer = strings.TrimSpace(issuer)
		}
	}
}

// WithTicketTTL overrides the pending-MFA ticket lifetime.
func WithTicketTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.ticketTTL = ttl
		}
	}
}

// WithMaxOTPFailures overrides the challenge failure budget per ticket.
func WithMaxOTPFailures(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.maxOTPFailures = n
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the authentication service.
func NewService(store CredentialStore, tickets TicketStore, signer *Signer, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: credential store is required")
	}
	if tickets == nil {
		return nil, errors.New("auth: ticket store is required")
	}
	if signer == nil {
		return nil, errors.New("auth: token signer is required")
	}
	s := &Service{
		store:          store,
		tickets:        tickets,
		signer:         signer,
		issuer:         defaultIssuer,
		ticketTTL:      defaultTicketTTL,
		maxOTPFailures: defaultMaxOTPFailures,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Signer exposes the token verifier for the HTTP layer.
func (s *Service) Signer() *Signer { return s.signer }

// Login verifies email and password and opens a pending-MFA ticket. Unknown
// email, wrong password, and unapproved accounts all return
// ErrInvalidCredentials so callers cannot enumerate accounts. No token is
// issued here.
func (s *Service) Login(ctx context.Context, email, password string) (Ticket, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return Ticket{}, ErrInvalidCredentials
	}
	principal, err := s.store.PrincipalByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Ticket{}, ErrInvalidCredentials
		}
		return Ticket{}, fmt.Errorf("%w: %v", ErrDependency, err)
	}
	if err := VerifyPassword(principal.PasswordHash, password); err != nil {
		return Ticket{}, ErrInvalidCredentials
	}
	if !principal.Approved {
		return Ticket{}, ErrInvalidCredentials
	}

	id, err := NewTicketID()
	if err != nil {
		return Ticket{}, err
	}
	now := s.now().UTC()
	ticket := Ticket{
		ID:          id,
		PrincipalID: principal.ID,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ticketTTL),
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return Ticket{}, err
	}
	return ticket, nil
}

// ChallengeOTP validates a one-time code against the ticket's principal.
// Success consumes the ticket, records the originating IP, resets the
// failure bookkeeping, stamps first-time MFA enrollment, and issues a
// signed token. Failure burns one attempt from the ticket's budget; the
// budget spent, the ticket is consumed and the flow returns to the
// password step.
func (s *Service) ChallengeOTP(ctx context.Context, ticketID, code, originIP string) (string, time.Time, error) {
	ticket, err := s.tickets.Find(ctx, ticketID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", time.Time{}, ErrInvalidOTP
		}
		return "", time.Time{}, err
	}
	principal, err := s.store.PrincipalByID(ctx, ticket.PrincipalID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", time.Time{}, ErrInvalidOTP
		}
		return "", time.Time{}, fmt.Errorf("%w: %v", ErrDependency, err)
	}
	if principal.TOTPSecret == "" {
		return "", time.Time{}, ErrInvalidOTP
	}

	now := s.now().UTC()
	code = strings.TrimSpace(code)
	if !VerifyTOTP(principal.TOTPSecret, code, now) {
		return "", time.Time{}, s.burnAttempt(ctx, ticket, principal)
	}

	// Single use per step: a correct code only counts once per TOTP window,
	// even across separate tickets.
	fresh, err := s.tickets.ClaimStep(ctx, principal.ID, TOTPStep(now))
	if err != nil {
		return "", time.Time{}, err
	}
	if !fresh {
		return "", time.Time{}, s.burnAttempt(ctx, ticket, principal)
	}

	if err := s.store.RecordSignInSuccess(ctx, principal.ID, originIP); err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %v", ErrDependency, err)
	}
	if !principal.Enrolled() {
		if err := s.store.MarkEnrolled(ctx, principal.ID); err != nil {
			return "", time.Time{}, fmt.Errorf("%w: %v", ErrDependency, err)
		}
	}
	if err := s.tickets.Consume(ctx, ticket.ID); err != nil {
		return "", time.Time{}, err
	}
	return s.signer.Sign(principal)
}

func (s *Service) burnAttempt(ctx context.Context, ticket Ticket, principal *Principal) error {
	_ = s.store.RecordSignInFailure(ctx, principal.ID)
	failures, err := s.tickets.Fail(ctx, ticket.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidOTP
		}
		return err
	}
	if failures >= s.maxOTPFailures {
		_ = s.tickets.Consume(ctx, ticket.ID)
		return ErrTicketSpent
	}
	return ErrInvalidOTP
}

// EnrollMFA rotates the principal's TOTP secret and returns the
// provisioning URL. Enrollment is not complete until the first successful
// challenge stamps the enrollment timestamp.
func (s *Service) EnrollMFA(ctx context.Context, email string) (TOTPEnrollment, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	principal, err := s.store.PrincipalByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TOTPEnrollment{}, ErrNotFound
		}
		return TOTPEnrollment{}, fmt.Errorf("%w: %v", ErrDependency, err)
	}
	enrollment, err := GenerateTOTPSecret(s.issuer, principal.Email)
	if err != nil {
		return TOTPEnrollment{}, err
	}
	if err := s.store.SetTOTPSecret(ctx, principal.ID, enrollment.Secret); err != nil {
		return TOTPEnrollment{}, fmt.Errorf("%w: %v", ErrDependency, err)
	}
	return enrollment, nil
}

// Registration is the input for creating a principal.
type Registration struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// Register creates an unapproved principal with the Guest role and a fresh
// TOTP secret, returning the provisioning URL for the authenticator app.
func (s *Service) Register(ctx context.Context, reg Registration) (*Principal, TOTPEnrollment, error) {
	if strings.TrimSpace(reg.FirstName) == "" || strings.TrimSpace(reg.LastName) == "" {
		return nil, TOTPEnrollment{}, fmt.Errorf("%w: first and last name are required", ErrInvalidInput)
	}
	email, err := NormalizeEmail(reg.Email)
	if err != nil {
		return nil, TOTPEnrollment{}, err
	}
	if err := ValidatePassword(reg.Password); err != nil {
		return nil, TOTPEnrollment{}, err
	}
	if _, err := s.store.PrincipalByEmail(ctx, email); err == nil {
		return nil, TOTPEnrollment{}, fmt.Errorf("%w: email already registered", ErrConflict)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, TOTPEnrollment{}, fmt.Errorf("%w: %v", ErrDependency, err)
	}

	hash, err := HashPassword(reg.Password)
	if err != nil {
		return nil, TOTPEnrollment{}, err
	}
	guest, err := s.store.RoleByName(ctx, guestRoleName)
	if err != nil {
		return nil, TOTPEnrollment{}, fmt.Errorf("%w: guest role missing, seed roles first: %v", ErrDependency, err)
	}
	enrollment, err := GenerateTOTPSecret(s.issuer, email)
	if err != nil {
		return nil, TOTPEnrollment{}, err
	}

	now := s.now().UTC()
	principal := &Principal{
		ID:           uuid.NewString(),
		FirstName:    strings.TrimSpace(reg.FirstName),
		LastName:     strings.TrimSpace(reg.LastName),
		Email:        email,
		PasswordHash: hash,
		RoleID:       guest.ID,
		TOTPSecret:   enrollment.Secret,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreatePrincipal(ctx, principal); err != nil {
		return nil, TOTPEnrollment{}, fmt.Errorf("%w: %v", ErrDependency, err)
	}
	return principal, enrollment, nil
}

// Approve marks a principal's account as approved for login.
func (s *Service) Approve(ctx context.Context, principalID string) error {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return fmt.Errorf("%w: principal_id is required", ErrInvalidInput)
	}
	if err := s.store.ApprovePrincipal(ctx, principalID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %v", ErrDependency, err)
	}
	return nil
}

// SetRole assigns a role to a principal after checking both exist.
func (s *Service) SetRole(ctx context.Context, principalID, roleID string) error {
	if strings.TrimSpace(principalID) == "" || strings.TrimSpace(roleID) == "" {
		return fmt.Errorf("%w: principal_id and role_id are required", ErrInvalidInput)
	}
	if _, err := s.store.RoleByID(ctx, roleID); err != nil {
		return err
	}
	if _, err := s.store.PrincipalByID(ctx, principalID); err != nil {
		return err
	}
	return s.store.SetRole(ctx, principalID, roleID)
}

// VerifyToken validates a bearer token and returns its claims.
func (s *Service) VerifyToken(token string) (*Claims, error) {
	return s.signer.Verify(token)
}

// CreateRole registers a new named role with an empty permission set.
func (s *Service) CreateRole(ctx context.Context, name, description string) (*Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	role := &Role{
		ID:          uuid.NewString(),
		Name:        name,
		Description: strings.TrimSpace(description),
		CreatedAt:   s.now().UTC(),
		UpdatedAt:   s.now().UTC(),
	}
	if err := s.store.CreateRole(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// Read passthroughs for the HTTP layer.

func (s *Service) RoleByID(ctx context.Context, id string) (*Role, error) {
	return s.store.RoleByID(ctx, id)
}

func (s *Service) ListRoles(ctx context.Context) ([]*Role, error) {
	return s.store.ListRoles(ctx)
}

func (s *Service) PrincipalByID(ctx context.Context, id string) (*Principal, error) {
	return s.store.PrincipalByID(ctx, id)
}

func (s *Service) ListPrincipals(ctx context.Context) ([]*Principal, error) {
	return s.store.ListPrincipals(ctx)
}

// RoleNameFor resolves a principal's role name. Unknown principals report
// ok=false rather than an error so ledger rows without a live principal,
// such as anonymous entries, can be skipped.
func (s *Service) RoleNameFor(ctx context.Context, principalID string) (string, bool, error) {
	principal, err := s.store.PrincipalByID(ctx, principalID)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	role, err := s.store.RoleByID(ctx, principal.RoleID)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return role.Name, true, nil
}
