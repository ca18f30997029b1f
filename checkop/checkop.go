// Package checkop implements the pending-aggregate Operation accumulator
// CheckAggregator keeps per cache entry (spec §4.3). There is no surviving
// C++ check_operation_aggregator file in the original source tree — only
// quota_operation_aggregator.{h,cc} — so this is generalized from that
// file the same way reportop is, rather than ported from a direct
// analogue; see DESIGN.md.
package checkop

import (
	"log"

	"github.com/o-tero/service-control-client/internal/opmerge"
	"github.com/o-tero/service-control-client/sctypes"
)

// Aggregator accumulates the operations a cache entry has seen since its
// last refresh, so that the eventual refresh request reflects everything
// merged in while the stale response was still being served.
type Aggregator struct {
	op      sctypes.Operation
	metrics *opmerge.MetricValueMap
	logger  *log.Logger
	empty   bool
}

// New seeds a pending aggregate from the operation that triggered the
// cache entry's creation or refresh.
func New(op sctypes.Operation, logger *log.Logger) *Aggregator {
	a := &Aggregator{
		op:      op,
		metrics: opmerge.NewMetricValueMap(),
		logger:  logger,
	}
	a.op.MetricValueSets = nil
	for _, mvs := range op.MetricValueSets {
		for _, mv := range mvs.MetricValues {
			a.metrics.Merge(mvs.MetricName, mv, opmerge.CurrencyMismatchError, logger)
		}
	}
	return a
}

// Merge folds another operation with the same signature into the pending
// aggregate (the "merge operation into pending_aggregate" step of §4.3's
// cache-hit-with-fresh-positive-response path).
func (a *Aggregator) Merge(op sctypes.Operation) {
	a.empty = false
	if !op.StartTime.IsZero() && (a.op.StartTime.IsZero() || op.StartTime.Before(a.op.StartTime)) {
		a.op.StartTime = op.StartTime
	}
	if !op.EndTime.IsZero() && (a.op.EndTime.IsZero() || op.EndTime.After(a.op.EndTime)) {
		a.op.EndTime = op.EndTime
	}
	for _, mvs := range op.MetricValueSets {
		for _, mv := range mvs.MetricValues {
			a.metrics.Merge(mvs.MetricName, mv, opmerge.CurrencyMismatchError, a.logger)
		}
	}
}

// ToOperation reconstructs the merged Operation for emission as a refresh
// request.
func (a *Aggregator) ToOperation() *sctypes.Operation {
	out := a.op
	out.MetricValueSets = a.metrics.ToMetricValueSets()
	return &out
}

// Clear discards everything merged so far. CacheResponse calls this when
// the fresh response is negative: §4.3 requires that errors not be merged
// forward once a cache entry turns negative.
func (a *Aggregator) Clear() {
	a.metrics = opmerge.NewMetricValueMap()
	a.empty = true
}

// IsEmpty reports whether no operation has been merged since the last
// clear. The operation New was seeded with counts as merged.
func (a *Aggregator) IsEmpty() bool {
	return a.empty
}
