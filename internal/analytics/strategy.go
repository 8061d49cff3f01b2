package analytics

import (
	"context"
	"fmt"

	"github.com/sentinai/netguard/internal/models"
	"github.com/sentinai/netguard/internal/storage"
)

// nativeStrategy delegates bucketing to the remote store's server-side
// aggregation through the gateway passthrough.
type nativeStrategy struct {
	gateway *storage.Gateway
}

func (n nativeStrategy) severity(ctx context.Context) (map[string]int, error) {
	return n.gateway.AggregateSeverityBuckets(ctx)
}

func (n nativeStrategy) byField(ctx context.Context, field string) (map[string]int, error) {
	return n.gateway.AggregateByField(ctx, field)
}

// foldStrategy computes the same buckets with an in-process pass over the
// recent window. It serves local mode and recovers failed native calls; the
// thresholds are identical so the two strategies are indistinguishable to
// consumers.
type foldStrategy struct {
	gateway *storage.Gateway
	window  int
}

func (f foldStrategy) severity(ctx context.Context) (map[string]int, error) {
	window, err := f.gateway.QueryRecent(ctx, f.window)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(models.SeverityBuckets))
	for _, event := range window {
		counts[event.Severity()]++
	}
	return counts, nil
}

func (f foldStrategy) byField(ctx context.Context, field string) (map[string]int, error) {
	window, err := f.gateway.QueryRecent(ctx, f.window)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, event := range window {
		value, err := fieldValue(event, field)
		if err != nil {
			return nil, err
		}
		counts[value]++
	}
	return counts, nil
}

func fieldValue(event models.Event, field string) (string, error) {
	switch field {
	case "predicted_label":
		if event.PredictedLabel == "" {
			return "Unknown", nil
		}
		return event.PredictedLabel, nil
	case "source_country":
		if event.SourceCountry == "" {
			return "UNK", nil
		}
		return event.SourceCountry, nil
	default:
		return "", fmt.Errorf("unsupported histogram field %q", field)
	}
}
