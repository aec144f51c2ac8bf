package httpapi

import (
	"errors"
	"net/http"
	"time"

	"custodia.org/internal/auth"
)

type registerRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

type registerResponse struct {
	Principal principalView `json:"principal"`
	OTPSecret string        `json:"otp_secret"`
	OTPURL    string        `json:"otp_url"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	TicketID  string    `json:"ticket_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type otpRequest struct {
	TicketID string `json:"ticket_id"`
	Code     string `json:"code"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type enrollResponse struct {
	OTPSecret string `json:"otp_secret"`
	OTPURL    string `json:"otp_url"`
}

type principalView struct {
	ID          string    `json:"id"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	Email       string    `json:"email"`
	RoleID      string    `json:"role_id"`
	Approved    bool      `json:"approved"`
	MFAEnrolled bool      `json:"mfa_enrolled"`
	SignInCount int       `json:"sign_in_count"`
	CreatedAt   time.Time `json:"created_at"`
}

func viewPrincipal(p *auth.Principal) principalView {
	return principalView{
		ID:          p.ID,
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		Email:       p.Email,
		RoleID:      p.RoleID,
		Approved:    p.Approved,
		MFAEnrolled: p.Enrolled(),
		SignInCount: p.SignInCount,
		CreatedAt:   p.CreatedAt,
	}
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	principal, enrollment, err := a.auth.Register(r.Context(), auth.Registration{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
	})
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, registerResponse{
		Principal: viewPrincipal(principal),
		OTPSecret: enrollment.Secret,
		OTPURL:    enrollment.URL,
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	ticket, err := a.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	recordPrincipal(r.Context(), ticket.PrincipalID)
	writeJSON(w, http.StatusOK, loginResponse{
		TicketID:  ticket.ID,
		ExpiresAt: ticket.ExpiresAt,
	})
}

func (a *API) handleOTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req otpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	token, expiresAt, err := a.auth.ChallengeOTP(r.Context(), req.TicketID, req.Code, clientIP(r))
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	if claims, err := a.auth.VerifyToken(token); err == nil {
		recordPrincipal(r.Context(), claims.PrincipalID())
	}
	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

func (a *API) handleEnroll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	enrollment, err := a.auth.EnrollMFA(r.Context(), claims.Email)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, enrollResponse{
		OTPSecret: enrollment.Secret,
		OTPURL:    enrollment.URL,
	})
}

func handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidOTP),
		errors.Is(err, auth.ErrTicketSpent),
		errors.Is(err, auth.ErrInvalidToken):
		writeError(w, r, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "auth operation failed")
	}
}
