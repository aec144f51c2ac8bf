// Package httpapi is the HTTP surface of the service: routing, middleware,
// authentication, request auditing, and error mapping.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"custodia.org/internal/anomaly"
	"custodia.org/internal/asset"
	"custodia.org/internal/audit"
	"custodia.org/internal/auth"
	"custodia.org/internal/obs"
	"custodia.org/internal/rbac"
)

// ReadyProbe reports readiness, typically a database ping.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps collects the wired services the API exposes.
type Deps struct {
	Auth     *auth.Service
	Perms    *rbac.Evaluator
	Assets   *asset.Service
	Detector *anomaly.Detector
	Ledger   audit.Ledger
	Ready    ReadyProbe
	Version  string
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	auth       *auth.Service
	perms      *rbac.Evaluator
	assets     *asset.Service
	detector   *anomaly.Detector
	ledger     audit.Ledger
	readyProbe ReadyProbe
	version    string
}

func New(deps Deps) *API {
	a := &API{
		mux:        http.NewServeMux(),
		auth:       deps.Auth,
		perms:      deps.Perms,
		assets:     deps.Assets,
		detector:   deps.Detector,
		ledger:     deps.Ledger,
		readyProbe: deps.Ready,
		version:    deps.Version,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// auth flow; credential endpoints are rate limited per client IP
	a.mux.Handle("/v1/auth/register", RateLimit(http.HandlerFunc(a.handleRegister), 10, 2))
	a.mux.Handle("/v1/auth/login", RateLimit(http.HandlerFunc(a.handleLogin), 10, 2))
	a.mux.Handle("/v1/auth/otp", RateLimit(http.HandlerFunc(a.handleOTP), 10, 2))
	a.mux.HandleFunc("/v1/auth/enroll", a.handleEnroll)

	// administration
	a.mux.HandleFunc("/v1/principals", a.handlePrincipals)
	a.mux.HandleFunc("/v1/principals/", a.handlePrincipalScoped)
	a.mux.HandleFunc("/v1/roles", a.handleRoles)
	a.mux.HandleFunc("/v1/roles/", a.handleRoleScoped)

	// assets, parameterized by kind
	a.mux.HandleFunc("/v1/assets/", a.handleAssets)

	// analytics
	a.mux.HandleFunc("/v1/analytics/impossible-travel", a.handleImpossibleTravel)
	a.mux.HandleFunc("/v1/analytics/session-hijacking", a.handleSessionHijacking)
	a.mux.HandleFunc("/v1/analytics/unauthorized-attempts", a.handleUnauthorizedAttempts)
	a.mux.HandleFunc("/v1/analytics/endpoint-heatmap", a.handleEndpointHeatmap)
	a.mux.HandleFunc("/v1/analytics/activity-spikes", a.handleActivitySpikes)
	a.mux.HandleFunc("/v1/analytics/privilege-escalation", a.handlePrivilegeEscalation)
	a.mux.HandleFunc("/v1/analytics/ip-history/", a.handleIPHistory)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler assembles the middleware chain around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = a.withAudit(h)
	h = SecurityHeaders(h)
	h = MaxBodyBytes(h, 48<<20)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "custodia-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "custodia-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
