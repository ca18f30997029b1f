// Package quotaop implements the QuotaOperation accumulator QuotaAggregator
// keeps per cache entry, ported from src/quota_operation_aggregator.{h,cc}.
// Quota's merge policy differs from Check/Report in one place: a currency
// mismatch between two money values is skipped rather than treated as an
// error, since a malformed quota cost must never block allocation.
package quotaop

import (
	"log"

	"github.com/o-tero/service-control-client/internal/opmerge"
	"github.com/o-tero/service-control-client/sctypes"
)

// Aggregator accumulates repeated QuotaOperations sharing one signature,
// mirroring quota_operation_aggregator.cc's QuotaOperationAggregator.
type Aggregator struct {
	op      sctypes.QuotaOperation
	metrics *opmerge.MetricValueMap
	logger  *log.Logger
}

// New seeds an Aggregator from the operation that first created the cache
// entry (quota_operation_aggregator.cc's constructor).
func New(op sctypes.QuotaOperation, logger *log.Logger) *Aggregator {
	a := &Aggregator{
		op:      op,
		metrics: opmerge.NewMetricValueMap(),
		logger:  logger,
	}
	a.op.QuotaMetrics = nil
	for _, mvs := range op.QuotaMetrics {
		for _, mv := range mvs.MetricValues {
			a.metrics.Merge(mvs.MetricName, mv, opmerge.CurrencyMismatchSkip, logger)
		}
	}
	return a
}

// Merge folds another QuotaOperation into the accumulator
// (MergeOperation in the original).
func (a *Aggregator) Merge(op sctypes.QuotaOperation) {
	for _, mvs := range op.QuotaMetrics {
		for _, mv := range mvs.MetricValues {
			a.metrics.Merge(mvs.MetricName, mv, opmerge.CurrencyMismatchSkip, a.logger)
		}
	}
}

// ToQuotaOperation rebuilds the merged QuotaOperation, restoring
// quota_metrics from the accumulator map (ToOperationProto in the
// original), with mode overriding the representative operation's mode —
// QuotaAggregator uses this to stamp BEST_EFFORT/NORMAL/CHECK_ONLY onto a
// refresh request without mutating the stored accumulator.
func (a *Aggregator) ToQuotaOperation(mode sctypes.QuotaMode) *sctypes.QuotaOperation {
	out := a.op
	out.QuotaMode = mode
	out.QuotaMetrics = a.metrics.ToMetricValueSets()
	return &out
}

// IsEmpty reports whether any metrics have been accumulated.
func (a *Aggregator) IsEmpty() bool {
	return a.metrics.Len() == 0
}
