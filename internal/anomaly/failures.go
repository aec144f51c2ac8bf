package anomaly

import (
	"context"
	"sort"
)

// Default threshold for repeated authorization failures against one endpoint.
const DefaultFailureThreshold = 3

// FailureFinding counts repeated unsuccessful requests by one principal
// against one endpoint.
type FailureFinding struct {
	PrincipalID string `json:"principal_id"`
	Endpoint    string `json:"endpoint"`
	Attempts    int    `json:"attempts"`
}

// DetectRepeatedFailures reports principal/endpoint pairs whose failure
// count exceeds the threshold. A non-positive threshold falls back to the
// default.
func (d *Detector) DetectRepeatedFailures(ctx context.Context, threshold int) ([]FailureFinding, error) {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	ids, err := d.ledger.ReadAllPrincipalIDs(ctx)
	if err != nil {
		return nil, err
	}
	var findings []FailureFinding
	for _, id := range ids {
		events, err := d.ledger.ReadEventsForPrincipal(ctx, id)
		if err != nil {
			return nil, err
		}
		counts := make(map[string]int)
		for _, e := range events {
			if !e.Success {
				counts[e.Endpoint]++
			}
		}
		for endpoint, n := range counts {
			if n > threshold {
				findings = append(findings, FailureFinding{
					PrincipalID: id,
					Endpoint:    endpoint,
					Attempts:    n,
				})
			}
		}
	}
	sort.Slice(findings, func(i, j int) bool {
		if findings[i].PrincipalID != findings[j].PrincipalID {
			return findings[i].PrincipalID < findings[j].PrincipalID
		}
		return findings[i].Endpoint < findings[j].Endpoint
	})
	return findings, nil
}
