package auth

import "errors"

var (
	// ErrInvalidCredentials is returned for unknown email, wrong password,
	// and unapproved accounts alike. Callers must not be able to tell the
	// cases apart.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrInvalidOTP covers every challenge failure: bad code, replayed
	// code, expired or unknown ticket.
	ErrInvalidOTP = errors.New("auth: invalid one-time code")

	ErrInvalidToken = errors.New("auth: invalid token")
	ErrInvalidInput = errors.New("auth: invalid input")
	ErrNotFound     = errors.New("auth: not found")
	ErrConflict     = errors.New("auth: already exists")
	ErrTicketSpent  = errors.New("auth: login ticket consumed")
	ErrDependency   = errors.New("auth: dependency unavailable")
)
