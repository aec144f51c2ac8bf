package anomaly

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// ErrGeoUnavailable wraps transport failures of the geo backend. Callers may
// retry the whole detection run; the detector itself never retries.
var ErrGeoUnavailable = errors.New("anomaly: geo lookup unavailable")

// StaticResolver resolves from a fixed ip -> coordinates table. Used in
// tests and in deployments that ship a curated location table.
type StaticResolver struct {
	table map[string]Coordinates
}

func NewStaticResolver(table map[string]Coordinates) *StaticResolver {
	copied := make(map[string]Coordinates, len(table))
	for ip, c := range table {
		copied[ip] = c
	}
	return &StaticResolver{table: copied}
}

func (r *StaticResolver) Resolve(_ context.Context, ip string) (Coordinates, bool, error) {
	c, ok := r.table[ip]
	return c, ok, nil
}

// HTTPResolver queries an external geolocation service. Every lookup is
// bounded by the client timeout; an unresolvable address is not an error.
type HTTPResolver struct {
	baseURL string
	client  *http.Client
}

const defaultGeoTimeout = 3 * time.Second

func NewHTTPResolver(baseURL string, timeout time.Duration) *HTTPResolver {
	if timeout <= 0 {
		timeout = defaultGeoTimeout
	}
	return &HTTPResolver{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type geoResponse struct {
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Resolved bool    `json:"resolved"`
}

func (r *HTTPResolver) Resolve(ctx context.Context, ip string) (Coordinates, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		r.baseURL+"/resolve?ip="+url.QueryEscape(ip), nil)
	if err != nil {
		return Coordinates{}, false, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return Coordinates{}, false, fmt.Errorf("%w: %v", ErrGeoUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return Coordinates{}, false, nil
	default:
		return Coordinates{}, false, fmt.Errorf("%w: status %d", ErrGeoUnavailable, resp.StatusCode)
	}

	var body geoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Coordinates{}, false, fmt.Errorf("%w: %v", ErrGeoUnavailable, err)
	}
	if !body.Resolved {
		return Coordinates{}, false, nil
	}
	return Coordinates{Lat: body.Lat, Lon: body.Lon}, true, nil
}

var (
	_ GeoResolver = (*StaticResolver)(nil)
	_ GeoResolver = (*HTTPResolver)(nil)
)
