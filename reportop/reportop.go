// Package reportop implements the per-signature Operation accumulator
// ReportAggregator keeps for each distinct report stream (spec §4.5),
// generalized from src/quota_operation_aggregator.cc to Operation/
// MetricValueSet instead of QuotaOperation/QuotaMetrics.
package reportop

import (
	"log"

	"github.com/o-tero/service-control-client/internal/opmerge"
	"github.com/o-tero/service-control-client/sctypes"
)

// Aggregator accumulates repeated Operations sharing one signature into a
// single merged Operation: everything but the metric value sets is taken
// from the first operation seen, and MetricValueSets are combined by
// metric name via opmerge.DeltaMerge.
type Aggregator struct {
	op      sctypes.Operation
	metrics *opmerge.MetricValueMap
	logger  *log.Logger
}

// New seeds an Aggregator from the first operation of a report stream.
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

// Merge folds another operation sharing this accumulator's signature into
// it: start_time collapses to the minimum, end_time to the maximum, and
// metric values combine via DeltaMerge.
func (a *Aggregator) Merge(op sctypes.Operation) {
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

// ToOperation reconstructs the merged Operation, restoring
// MetricValueSets from the internal accumulator map.
func (a *Aggregator) ToOperation() *sctypes.Operation {
	out := a.op
	out.MetricValueSets = a.metrics.ToMetricValueSets()
	return &out
}
