// Package executor runs batches of independent remote-call units with a
// per-batch concurrency ceiling and a per-unit retry policy.
package executor

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/callsense/callsense/internal/resilience"
)

// Result pairs an input unit with its outcome. Exactly one Result is produced
// per input unit; a unit that exhausted its retries carries the final error.
type Result[T, R any] struct {
	Input T
	Value R
	Err   error
}

// OK reports whether the unit succeeded.
func (r Result[T, R]) OK() bool {
	return r.Err == nil
}

// Run executes fn for every unit with at most limit in flight at once. Each
// unit retries independently according to policy; a failed unit is recorded
// in its Result rather than aborting the batch. Results are returned in input
// order. An empty input returns an empty, non-nil slice.
func Run[T, R any](
	ctx context.Context,
	units []T,
	limit int,
	policy resilience.RetryConfig,
	fn func(ctx context.Context, unit T) (R, error),
) []Result[T, R] {
	results := make([]Result[T, R], len(units))
	if len(units) == 0 {
		return results
	}
	if limit <= 0 {
		limit = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, unit := range units {
		g.Go(func() error {
			val, err := resilience.DoVal(gctx, policy, func(ctx context.Context) (R, error) {
				return fn(ctx, unit)
			})
			results[i] = Result[T, R]{Input: unit, Value: val, Err: err}
			return nil // unit failures never abort the batch
		})
	}

	// Units only ever return nil; Wait is for draining.
	_ = g.Wait()
	return results
}

// Tally counts successes and failures in a result set and logs the totals
// under the given stage name.
func Tally[T, R any](stage string, results []Result[T, R]) (succeeded, failed int) {
	for _, r := range results {
		if r.OK() {
			succeeded++
		} else {
			failed++
		}
	}
	zap.L().Info("stage complete",
		zap.String("stage", stage),
		zap.Int("succeeded", succeeded),
		zap.Int("failed", failed),
	)
	return succeeded, failed
}

// Succeeded filters a result set down to the successful values.
func Succeeded[T, R any](results []Result[T, R]) []R {
	out := make([]R, 0, len(results))
	for _, r := range results {
		if r.OK() {
			out = append(out, r.Value)
		}
	}
	return out
}
