// Package opmerge implements DeltaMerge (spec §4.2), the single piece of
// metric-value-combining logic shared by checkop, reportop, and quotaop.
// It is internal because it is an implementation detail of those three
// packages, not a contract any external caller should depend on directly —
// the public surface is each package's own Merge/ToOperation.
package opmerge

import (
	"log"

	"github.com/o-tero/service-control-client/distribution"
	"github.com/o-tero/service-control-client/money"
	"github.com/o-tero/service-control-client/sctypes"
)

// CurrencyMismatchPolicy controls what DeltaMerge does when two Money
// values being merged carry different currency codes. Under either policy
// the incoming value is dropped and a log line is written, and DeltaMerge
// returns no error; Check and Report use CurrencyMismatchError, Quota uses
// CurrencyMismatchSkip, and the two differ only in the log message.
type CurrencyMismatchPolicy int

const (
	CurrencyMismatchError CurrencyMismatchPolicy = iota
	CurrencyMismatchSkip
)

// DeltaMerge merges from into to, the accumulator for one metric name.
// Per spec §4.2: kind mismatches are logged and dropped, never fatal,
// so a bad incoming value can never fail the overall request.
func DeltaMerge(to *sctypes.MetricValue, from sctypes.MetricValue, policy CurrencyMismatchPolicy, logger *log.Logger) {
	if to.Kind != from.Kind {
		logf(logger, "metric value kind mismatch: have %v, got %v; dropping", to.Kind, from.Kind)
		return
	}

	if !from.StartTime.IsZero() && (to.StartTime.IsZero() || from.StartTime.Before(to.StartTime)) {
		to.StartTime = from.StartTime
	}
	if !from.EndTime.IsZero() && (to.EndTime.IsZero() || from.EndTime.After(to.EndTime)) {
		to.EndTime = from.EndTime
	}

	switch to.Kind {
	case sctypes.ValueInt64:
		to.Int64Value += from.Int64Value
	case sctypes.ValueDistribution:
		if !distribution.Merge(&to.Distribution, from.Distribution) {
			logf(logger, "distribution bucket options do not match; dropping metric value")
		}
	case sctypes.ValueMoney:
		if to.MoneyValue.CurrencyCode == "" {
			to.MoneyValue = from.MoneyValue
			return
		}
		if to.MoneyValue.CurrencyCode != from.MoneyValue.CurrencyCode {
			switch policy {
			case CurrencyMismatchSkip:
				logf(logger, "currency mismatch %q vs %q; skipping", to.MoneyValue.CurrencyCode, from.MoneyValue.CurrencyCode)
				return
			default:
				logf(logger, "currency mismatch %q vs %q; dropping merge", to.MoneyValue.CurrencyCode, from.MoneyValue.CurrencyCode)
				return
			}
		}
		to.MoneyValue = money.SaturatedAdd(to.MoneyValue, from.MoneyValue)
	case sctypes.ValueDouble:
		to.DoubleValue += from.DoubleValue
	default:
		logf(logger, "unknown metric value kind %v; dropping", to.Kind)
	}
}

func logf(logger *log.Logger, format string, args ...interface{}) {
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf(format, args...)
}

// MetricValueMap accumulates MetricValues keyed by metric name, the shared
// state behind each operation aggregator's "representative operation plus
// a metric_name -> MetricValue map" (spec §4.2).
type MetricValueMap struct {
	values map[string]*sctypes.MetricValue
	order  []string
}

func NewMetricValueMap() *MetricValueMap {
	return &MetricValueMap{values: make(map[string]*sctypes.MetricValue)}
}

// Merge folds one MetricValue recorded under metric name into the map:
// the first value for a name is copied in, later ones go through
// DeltaMerge.
func (m *MetricValueMap) Merge(name string, value sctypes.MetricValue, policy CurrencyMismatchPolicy, logger *log.Logger) {
	existing, ok := m.values[name]
	if !ok {
		cp := value
		m.values[name] = &cp
		m.order = append(m.order, name)
		return
	}
	DeltaMerge(existing, value, policy, logger)
}

// ToMetricValueSets reconstructs the repeated metric_value_sets field,
// restoring one MetricValueSet per accumulated metric name in first-seen
// order for deterministic output.
func (m *MetricValueMap) ToMetricValueSets() []sctypes.MetricValueSet {
	sets := make([]sctypes.MetricValueSet, 0, len(m.order))
	for _, name := range m.order {
		sets = append(sets, sctypes.MetricValueSet{
			MetricName:   name,
			MetricValues: []sctypes.MetricValue{*m.values[name]},
		})
	}
	return sets
}

// Len reports how many distinct metric names have been accumulated.
func (m *MetricValueMap) Len() int {
	return len(m.values)
}
