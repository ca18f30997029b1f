package checkop

import (
	"testing"

	"github.com/o-tero/service-control-client/sctypes"
)

func TestClearDiscardsMergedMetrics(t *testing.T) {
	a := New(sctypes.Operation{
		ConsumerID:    "c",
		OperationName: "op",
		MetricValueSets: []sctypes.MetricValueSet{
			{MetricName: "requests", MetricValues: []sctypes.MetricValue{{Kind: sctypes.ValueInt64, Int64Value: 1}}},
		},
	}, nil)
	if a.IsEmpty() {
		t.Fatal("expected seeded aggregator to be non-empty")
	}
	a.Clear()
	if !a.IsEmpty() {
		t.Fatal("expected Clear to discard accumulated metrics")
	}
}

func TestMergeAccumulates(t *testing.T) {
	a := New(sctypes.Operation{
		MetricValueSets: []sctypes.MetricValueSet{
			{MetricName: "requests", MetricValues: []sctypes.MetricValue{{Kind: sctypes.ValueInt64, Int64Value: 1}}},
		},
	}, nil)
	a.Merge(sctypes.Operation{
		MetricValueSets: []sctypes.MetricValueSet{
			{MetricName: "requests", MetricValues: []sctypes.MetricValue{{Kind: sctypes.ValueInt64, Int64Value: 4}}},
		},
	})
	out := a.ToOperation()
	if out.MetricValueSets[0].MetricValues[0].Int64Value != 5 {
		t.Fatalf("expected summed value 5, got %+v", out.MetricValueSets)
	}
}
