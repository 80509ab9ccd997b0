package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wisbric/wopr/pkg/types"
)

// aggregateConcurrency bounds how many beacons are queried in parallel
// during escalation aggregation.
const aggregateConcurrency = 8

// aggregateTimeout bounds a single beacon's escalation fetch.
const aggregateTimeout = 5 * time.Second

// AnnotatedEscalation pairs an Escalation with the beacon it came from.
type AnnotatedEscalation struct {
	types.Escalation
	BeaconID string `json:"beacon_id"`
}

// BeaconFetchError records a per-beacon failure during aggregation; it is
// reported alongside successful results rather than failing the whole
// aggregate (spec §4.8).
type BeaconFetchError struct {
	BeaconID string `json:"beacon_id"`
	Error    string `json:"error"`
}

// AggregateResult is the response shape for the aggregated escalations
// endpoint.
type AggregateResult struct {
	Escalations []AnnotatedEscalation `json:"escalations"`
	Errors      []BeaconFetchError    `json:"errors,omitempty"`
}

// Aggregator fetches pending escalations from every online beacon in
// parallel, bounded by errgroup.SetLimit, and merges them into one sorted,
// capped list.
type Aggregator struct {
	client *http.Client
}

// NewAggregator builds an Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{client: &http.Client{Timeout: aggregateTimeout}}
}

// Aggregate fetches pending escalations from every beacon in beacons,
// annotates each with its beacon id, sorts by created_at desc, and caps
// the result at limit. Partial failures are reported per-beacon and do
// not fail the call.
func (a *Aggregator) Aggregate(ctx context.Context, beacons []types.Beacon, limit int) AggregateResult {
	type fetchResult struct {
		beaconID    string
		escalations []types.Escalation
		err         error
	}

	results := make([]fetchResult, len(beacons))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(aggregateConcurrency)

	for i, b := range beacons {
		i, b := i, b
		g.Go(func() error {
			escalations, err := a.fetchOne(gctx, b)
			results[i] = fetchResult{beaconID: b.BeaconID, escalations: escalations, err: err}
			return nil // never abort the group: a beacon failure is reported, not fatal
		})
	}
	_ = g.Wait()

	var out AggregateResult
	for _, r := range results {
		if r.err != nil {
			out.Errors = append(out.Errors, BeaconFetchError{BeaconID: r.beaconID, Error: r.err.Error()})
			continue
		}
		for _, esc := range r.escalations {
			out.Escalations = append(out.Escalations, AnnotatedEscalation{Escalation: esc, BeaconID: r.beaconID})
		}
	}

	sort.Slice(out.Escalations, func(i, j int) bool {
		return out.Escalations[i].CreatedAt.After(out.Escalations[j].CreatedAt)
	})
	if limit > 0 && len(out.Escalations) > limit {
		out.Escalations = out.Escalations[:limit]
	}
	return out
}

func (a *Aggregator) fetchOne(ctx context.Context, b types.Beacon) ([]types.Escalation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.EngineURL+"/api/v1/ai/escalations?status=pending", nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("contacting beacon: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("beacon returned status %d", resp.StatusCode)
	}

	var escalations []types.Escalation
	if err := json.NewDecoder(resp.Body).Decode(&escalations); err != nil {
		return nil, fmt.Errorf("decoding beacon response: %w", err)
	}
	return escalations, nil
}
