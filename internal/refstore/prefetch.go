package refstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"folio/api/internal/reference"
)

const defaultPrefetchWorkers = 4

// PrefetchReport lists the outcome per key, in input order.
type PrefetchReport struct {
	Resolved []string `json:"resolved"`
	Missing  []string `json:"missing"`
	Failed   []string `json:"failed"`
}

// Prefetch resolves keys concurrently so later renders hit warm caches.
// Failures do not stop the other lookups; they are collected into one
// *multierror.Error. Missing keys are reported but are not errors.
func Prefetch(ctx context.Context, source MetadataSource, keys []string, workers int) (PrefetchReport, error) {
	if workers <= 0 {
		workers = defaultPrefetchWorkers
	}

	outcomes := make([]error, len(keys))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, key := range keys {
		g.Go(func() error {
			_, err := source.GetMetadata(gCtx, key)
			outcomes[i] = err
			return nil
		})
	}
	_ = g.Wait()

	var (
		report PrefetchReport
		errs   *multierror.Error
	)
	for i, key := range keys {
		switch err := outcomes[i]; {
		case err == nil:
			report.Resolved = append(report.Resolved, key)
		case errors.Is(err, reference.ErrNotFound):
			report.Missing = append(report.Missing, key)
		default:
			report.Failed = append(report.Failed, key)
			errs = multierror.Append(errs, fmt.Errorf("prefetch %s: %w", key, err))
		}
	}
	return report, errs.ErrorOrNil()
}
