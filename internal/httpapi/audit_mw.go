package httpapi

import (
	"context"
	"net/http"
	"time"

	"custodia.org/internal/audit"
	"custodia.org/internal/obs"
)

// anonymousPrincipal labels ledger entries for requests made before
// authentication, so failed logins still leave a trail.
const anonymousPrincipal = "anonymous"

// principalHolder lets the authentication middleware, which runs deeper in
// the chain, report the verified principal back to the audit middleware.
type principalHolder struct {
	id string
}

type principalHolderKey struct{}

func recordPrincipal(ctx context.Context, id string) {
	if h, ok := ctx.Value(principalHolderKey{}).(*principalHolder); ok {
		h.id = id
	}
}

// withAudit appends one ledger event per request after the handler runs.
// Ledger append failures are logged, never surfaced: auditing must not take
// the request down with it.
func (a *API) withAudit(next http.Handler) http.Handler {
	if a.ledger == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" || r.URL.Path == "/healthz" || r.URL.Path == "/readyz" {
			next.ServeHTTP(w, r)
			return
		}

		holder := &principalHolder{}
		ctx := context.WithValue(r.Context(), principalHolderKey{}, holder)
		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r.WithContext(ctx))

		principalID := holder.id
		if principalID == "" {
			principalID = anonymousPrincipal
		}
		event := audit.Event{
			RequestID:   audit.RequestIDFromContext(r.Context()),
			Endpoint:    obs.CanonicalPath(r.URL.Path),
			OriginIP:    clientIP(r),
			PrincipalID: principalID,
			Success:     sw.code < 400,
			OccurredAt:  time.Now().UTC(),
		}
		if err := a.ledger.AppendEvent(r.Context(), event); err != nil {
			_ = audit.LogEvent(r.Context(), "audit.append_failed", map[string]any{
				"error":    err.Error(),
				"endpoint": event.Endpoint,
			})
		}
	})
}
