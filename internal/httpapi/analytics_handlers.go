package httpapi

import (
	"net/http"
	"strings"
	"time"

	"custodia.org/internal/anomaly"
)

type ipHistoryEntry struct {
	OriginIP   string    `json:"origin_ip"`
	Endpoint   string    `json:"endpoint"`
	Success    bool      `json:"success"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (a *API) handleImpossibleTravel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.requireAdmin(w, r) {
		return
	}
	reports, err := a.detector.FleetReport(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "analysis failed")
		return
	}
	travel := make([]anomaly.TravelFinding, 0)
	for _, rep := range reports {
		travel = append(travel, rep.Travel...)
	}
	writeJSON(w, http.StatusOK, map[string]any{"findings": travel})
}

func (a *API) handleSessionHijacking(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.requireAdmin(w, r) {
		return
	}
	reports, err := a.detector.FleetReport(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "analysis failed")
		return
	}
	hijacks := make([]anomaly.HijackFinding, 0)
	for _, rep := range reports {
		hijacks = append(hijacks, rep.Hijacks...)
	}
	writeJSON(w, http.StatusOK, map[string]any{"findings": hijacks})
}

func (a *API) handleUnauthorizedAttempts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.requireAdmin(w, r) {
		return
	}
	threshold, err := parseBoundedInt(r.URL.Query().Get("threshold"), anomaly.DefaultFailureThreshold, 1, 1000)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "threshold must be between 1 and 1000")
		return
	}
	findings, err := a.detector.DetectRepeatedFailures(r.Context(), threshold)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "analysis failed")
		return
	}
	if findings == nil {
		findings = []anomaly.FailureFinding{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"findings": findings})
}

func (a *API) handleEndpointHeatmap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.requireAdmin(w, r) {
		return
	}
	cells, err := a.detector.EndpointHeatmap(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "analysis failed")
		return
	}
	if cells == nil {
		cells = []anomaly.HeatmapCell{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"heatmap": cells})
}

func (a *API) handleActivitySpikes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.requireAdmin(w, r) {
		return
	}
	findings, err := a.detector.DetectActivitySpikes(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "analysis failed")
		return
	}
	if findings == nil {
		findings = []anomaly.SpikeFinding{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"findings": findings})
}

func (a *API) handlePrivilegeEscalation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.requireAdmin(w, r) {
		return
	}
	findings, err := a.detector.DetectPrivilegeEscalation(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "analysis failed")
		return
	}
	if findings == nil {
		findings = []anomaly.EscalationFinding{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"findings": findings})
}

func (a *API) handleIPHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.requireAdmin(w, r) {
		return
	}
	principalID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/analytics/ip-history/"), "/")
	if principalID == "" || strings.Contains(principalID, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	events, err := a.ledger.ReadEventsForPrincipal(r.Context(), principalID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "ledger read failed")
		return
	}
	history := make([]ipHistoryEntry, 0, len(events))
	for _, e := range events {
		history = append(history, ipHistoryEntry{
			OriginIP:   e.OriginIP,
			Endpoint:   e.Endpoint,
			Success:    e.Success,
			OccurredAt: e.OccurredAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"principal_id": principalID,
		"history":      history,
	})
}
