package anomaly

import (
	"context"
	"errors"
	"math"
	"time"

	"custodia.org/internal/audit"
)

const (
	earthRadiusKm = 6371.0

	// Implied travel faster than this between two sign-in locations is
	// physically implausible and flagged.
	maxPlausibleSpeedKmh = 1000.0

	// An origin-IP flip inside this window is treated as a hijack signal
	// regardless of geography.
	hijackWindow = 300 * time.Second
)

var ErrNoLedger = errors.New("anomaly: ledger is required")

// Coordinates is an approximate geolocation for an origin IP.
type Coordinates struct {
	Lat float64
	Lon float64
}

// GeoResolver maps an origin IP to coordinates. Returning ok=false means
// the address could not be resolved; the affected pair is skipped, never
// flagged and never treated as an error.
type GeoResolver interface {
	Resolve(ctx context.Context, ip string) (Coordinates, bool, error)
}

// TravelFinding reports one impossible-travel pair.
type TravelFinding struct {
	PrincipalID    string    `json:"principal_id"`
	FromIP         string    `json:"from_ip"`
	ToIP           string    `json:"to_ip"`
	DistanceKm     int64     `json:"distance_km"`
	ElapsedMinutes int64     `json:"elapsed_minutes"`
	SpeedKmh       int64     `json:"speed_kmh"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// HijackFinding reports one fast IP-flip pair.
type HijackFinding struct {
	PrincipalID    string    `json:"principal_id"`
	FromIP         string    `json:"from_ip"`
	ToIP           string    `json:"to_ip"`
	ElapsedSeconds int64     `json:"elapsed_seconds"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Report aggregates findings for one principal. Principals with no
// findings are omitted from fleet output entirely.
type Report struct {
	PrincipalID string          `json:"principal_id"`
	Travel      []TravelFinding `json:"impossible_travel,omitempty"`
	Hijacks     []HijackFinding `json:"session_hijacks,omitempty"`
}

// RoleDirectory resolves a principal to its role name. ok=false means the
// principal is unknown to the directory and its events are skipped.
type RoleDirectory interface {
	RoleNameFor(ctx context.Context, principalID string) (string, bool, error)
}

// Detector runs read-only batch analysis over the audit ledger.
type Detector struct {
	ledger audit.Ledger
	geo    GeoResolver
	roles  RoleDirectory
	now    func() time.Time
}

type Option func(*Detector)

// WithRoleDirectory enables the privilege-escalation detector.
func WithRoleDirectory(roles RoleDirectory) Option {
	return func(d *Detector) { d.roles = roles }
}

func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

func NewDetector(ledger audit.Ledger, geo GeoResolver, opts ...Option) (*Detector, error) {
	if ledger == nil {
		return nil, ErrNoLedger
	}
	if geo == nil {
		return nil, errors.New("anomaly: geo resolver is required")
	}
	d := &Detector{ledger: ledger, geo: geo, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// DetectImpossibleTravel scans consecutive event pairs for one principal.
// Pairs with an unresolved endpoint or non-positive elapsed time are skipped:
// out-of-order events are clock skew, not a signal.
func (d *Detector) DetectImpossibleTravel(ctx context.Context, principalID string) ([]TravelFinding, error) {
	events, err := d.ledger.ReadEventsForPrincipal(ctx, principalID)
	if err != nil {
		return nil, err
	}
	var findings []TravelFinding
	for i := 1; i < len(events); i++ {
		prev, cur := events[i-1], events[i]
		elapsed := cur.OccurredAt.Sub(prev.OccurredAt)
		if elapsed <= 0 {
			continue
		}
		from, ok, err := d.geo.Resolve(ctx, prev.OriginIP)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		to, ok, err := d.geo.Resolve(ctx, cur.OriginIP)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		distanceKm := haversineKm(from, to)
		speedKmh := distanceKm / elapsed.Hours()
		if speedKmh <= maxPlausibleSpeedKmh {
			continue
		}
		findings = append(findings, TravelFinding{
			PrincipalID:    principalID,
			FromIP:         prev.OriginIP,
			ToIP:           cur.OriginIP,
			DistanceKm:     int64(math.Round(distanceKm)),
			ElapsedMinutes: int64(math.Round(elapsed.Minutes())),
			SpeedKmh:       int64(math.Round(speedKmh)),
			OccurredAt:     cur.OccurredAt,
		})
	}
	return findings, nil
}

// DetectSessionHijacks flags consecutive pairs where the origin IP changes
// within the hijack window. Geography is deliberately ignored: two addresses
// in the same city can still be two sessions.
func (d *Detector) DetectSessionHijacks(ctx context.Context, principalID string) ([]HijackFinding, error) {
	events, err := d.ledger.ReadEventsForPrincipal(ctx, principalID)
	if err != nil {
		return nil, err
	}
	var findings []HijackFinding
	for i := 1; i < len(events); i++ {
		prev, cur := events[i-1], events[i]
		elapsed := cur.OccurredAt.Sub(prev.OccurredAt)
		if elapsed <= 0 || elapsed >= hijackWindow {
			continue
		}
		if prev.OriginIP == cur.OriginIP {
			continue
		}
		findings = append(findings, HijackFinding{
			PrincipalID:    principalID,
			FromIP:         prev.OriginIP,
			ToIP:           cur.OriginIP,
			ElapsedSeconds: int64(elapsed.Seconds()),
			OccurredAt:     cur.OccurredAt,
		})
	}
	return findings, nil
}

// FleetReport runs both detectors across every principal in the ledger and
// returns sparse output: principals with zero findings do not appear.
func (d *Detector) FleetReport(ctx context.Context) ([]Report, error) {
	ids, err := d.ledger.ReadAllPrincipalIDs(ctx)
	if err != nil {
		return nil, err
	}
	var reports []Report
	for _, id := range ids {
		travel, err := d.DetectImpossibleTravel(ctx, id)
		if err != nil {
			return nil, err
		}
		hijacks, err := d.DetectSessionHijacks(ctx, id)
		if err != nil {
			return nil, err
		}
		if len(travel) == 0 && len(hijacks) == 0 {
			continue
		}
		reports = append(reports, Report{PrincipalID: id, Travel: travel, Hijacks: hijacks})
	}
	return reports, nil
}

// haversineKm computes the great-circle distance between two coordinates.
func haversineKm(a, b Coordinates) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}
