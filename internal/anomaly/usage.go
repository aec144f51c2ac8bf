package anomaly

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
)

const (
	// Window for the activity-spike detector and the multiple of the
	// hourly baseline that counts as a spike.
	spikeWindow     = time.Hour
	spikeMultiplier = 3.0
)

var ErrNoRoleDirectory = errors.New("anomaly: role directory not configured")

// HeatmapCell is one endpoint/hour bucket of ledger traffic. Hour is the
// UTC hour of day, 0 through 23.
type HeatmapCell struct {
	Endpoint string `json:"endpoint"`
	Hour     int    `json:"hour"`
	Count    int    `json:"count"`
}

// EndpointHeatmap buckets every ledger event by endpoint and UTC hour of
// day. Empty buckets are omitted.
func (d *Detector) EndpointHeatmap(ctx context.Context) ([]HeatmapCell, error) {
	ids, err := d.ledger.ReadAllPrincipalIDs(ctx)
	if err != nil {
		return nil, err
	}
	type bucket struct {
		endpoint string
		hour     int
	}
	counts := make(map[bucket]int)
	for _, id := range ids {
		events, err := d.ledger.ReadEventsForPrincipal(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, e := range events {
			counts[bucket{e.Endpoint, e.OccurredAt.UTC().Hour()}]++
		}
	}
	cells := make([]HeatmapCell, 0, len(counts))
	for b, n := range counts {
		cells = append(cells, HeatmapCell{Endpoint: b.endpoint, Hour: b.hour, Count: n})
	}
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Endpoint != cells[j].Endpoint {
			return cells[i].Endpoint < cells[j].Endpoint
		}
		return cells[i].Hour < cells[j].Hour
	})
	return cells, nil
}

// SpikeFinding reports a principal whose recent request rate runs well
// above its own history.
type SpikeFinding struct {
	PrincipalID    string  `json:"principal_id"`
	RecentRequests int     `json:"recent_requests"`
	HourlyBaseline float64 `json:"hourly_baseline"`
}

// DetectActivitySpikes flags principals whose request count over the last
// hour exceeds three times their historical hourly rate. A principal whose
// history collapses to a single instant has no rate to compare against and
// is skipped.
func (d *Detector) DetectActivitySpikes(ctx context.Context) ([]SpikeFinding, error) {
	ids, err := d.ledger.ReadAllPrincipalIDs(ctx)
	if err != nil {
		return nil, err
	}
	now := d.now().UTC()
	cutoff := now.Add(-spikeWindow)
	var findings []SpikeFinding
	for _, id := range ids {
		events, err := d.ledger.ReadEventsForPrincipal(ctx, id)
		if err != nil {
			return nil, err
		}
		if len(events) == 0 {
			continue
		}
		first, last := events[0].OccurredAt, events[0].OccurredAt
		recent := 0
		for _, e := range events {
			if e.OccurredAt.Before(first) {
				first = e.OccurredAt
			}
			if e.OccurredAt.After(last) {
				last = e.OccurredAt
			}
			if e.OccurredAt.After(cutoff) {
				recent++
			}
		}
		span := last.Sub(first)
		if span <= 0 {
			continue
		}
		baseline := float64(len(events)) / span.Hours()
		if float64(recent) > baseline*spikeMultiplier {
			findings = append(findings, SpikeFinding{
				PrincipalID:    id,
				RecentRequests: recent,
				HourlyBaseline: baseline,
			})
		}
	}
	sort.Slice(findings, func(i, j int) bool {
		return findings[i].PrincipalID < findings[j].PrincipalID
	})
	return findings, nil
}

// EscalationFinding counts requests a principal made against endpoints its
// role should never reach, grouped by outcome. Succeeded attempts are the
// louder signal: a denial means the gate held, a success means it did not.
type EscalationFinding struct {
	PrincipalID string `json:"principal_id"`
	Role        string `json:"role"`
	Endpoint    string `json:"endpoint"`
	Succeeded   bool   `json:"succeeded"`
	Attempts    int    `json:"attempts"`
}

// DetectPrivilegeEscalation joins ledger traffic against the role directory
// and reports requests to endpoints above the caller's station. Requires a
// role directory; ledger rows without a live principal are skipped.
func (d *Detector) DetectPrivilegeEscalation(ctx context.Context) ([]EscalationFinding, error) {
	if d.roles == nil {
		return nil, ErrNoRoleDirectory
	}
	ids, err := d.ledger.ReadAllPrincipalIDs(ctx)
	if err != nil {
		return nil, err
	}
	type attempt struct {
		endpoint string
		success  bool
	}
	var findings []EscalationFinding
	for _, id := range ids {
		role, ok, err := d.roles.RoleNameFor(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		events, err := d.ledger.ReadEventsForPrincipal(ctx, id)
		if err != nil {
			return nil, err
		}
		counts := make(map[attempt]int)
		for _, e := range events {
			if restrictedForRole(role, e.Endpoint) {
				counts[attempt{e.Endpoint, e.Success}]++
			}
		}
		for a, n := range counts {
			findings = append(findings, EscalationFinding{
				PrincipalID: id,
				Role:        role,
				Endpoint:    a.endpoint,
				Succeeded:   a.success,
				Attempts:    n,
			})
		}
	}
	sort.Slice(findings, func(i, j int) bool {
		if findings[i].Attempts != findings[j].Attempts {
			return findings[i].Attempts > findings[j].Attempts
		}
		if findings[i].PrincipalID != findings[j].PrincipalID {
			return findings[i].PrincipalID < findings[j].PrincipalID
		}
		return findings[i].Endpoint < findings[j].Endpoint
	})
	return findings, nil
}

// restrictedForRole says whether an endpoint sits above a role's station.
// Administration and analytics surfaces belong to Admin alone; Guest is
// additionally barred from confidential assets.
func restrictedForRole(role, endpoint string) bool {
	adminOnly := strings.HasPrefix(endpoint, "/v1/roles") ||
		strings.HasPrefix(endpoint, "/v1/principals") ||
		strings.HasPrefix(endpoint, "/v1/analytics")
	switch role {
	case "Admin":
		return false
	case "Guest":
		return adminOnly || strings.HasPrefix(endpoint, "/v1/assets/confidential")
	default:
		return adminOnly
	}
}
