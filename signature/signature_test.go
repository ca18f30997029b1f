package signature

import (
	"testing"

	"github.com/o-tero/service-control-client/sctypes"
)

func TestCheckSignatureDeterministic(t *testing.T) {
	req := &sctypes.CheckRequest{
		Operation: &sctypes.Operation{
			OperationName: "op",
			ConsumerID:    "project:foo",
			Labels:        map[string]string{"b": "2", "a": "1"},
			MetricValueSets: []sctypes.MetricValueSet{
				{MetricName: "requests", MetricValues: []sctypes.MetricValue{{Kind: sctypes.ValueInt64, Int64Value: 1}}},
			},
		},
	}
	reqSameLabelOrder := &sctypes.CheckRequest{
		Operation: &sctypes.Operation{
			OperationName: "op",
			ConsumerID:    "project:foo",
			Labels:        map[string]string{"a": "1", "b": "2"},
			MetricValueSets: []sctypes.MetricValueSet{
				{MetricName: "requests", MetricValues: []sctypes.MetricValue{{Kind: sctypes.ValueInt64, Int64Value: 1}}},
			},
		},
	}

	sig1 := GenerateCheckRequestSignature(req)
	sig2 := GenerateCheckRequestSignature(reqSameLabelOrder)
	if sig1 != sig2 {
		t.Fatalf("expected map-iteration-order-independent signatures, got %q vs %q", sig1, sig2)
	}
}

func TestCheckSignatureDiffersOnMetricValue(t *testing.T) {
	base := func(cost int64) *sctypes.CheckRequest {
		return &sctypes.CheckRequest{
			Operation: &sctypes.Operation{
				OperationName: "op",
				ConsumerID:    "project:foo",
				MetricValueSets: []sctypes.MetricValueSet{
					{MetricName: "requests", MetricValues: []sctypes.MetricValue{{Kind: sctypes.ValueInt64, Int64Value: cost}}},
				},
			},
		}
	}
	sig1 := GenerateCheckRequestSignature(base(1))
	sig2 := GenerateCheckRequestSignature(base(2))
	if sig1 == sig2 {
		t.Fatal("expected different metric values to produce different check signatures")
	}
}

func TestQuotaSignatureIgnoresMetricValues(t *testing.T) {
	base := func(cost int64) *sctypes.AllocateQuotaRequest {
		return &sctypes.AllocateQuotaRequest{
			AllocateOperation: &sctypes.QuotaOperation{
				MethodName: "method",
				ConsumerID: "project:foo",
				QuotaMetrics: []sctypes.MetricValueSet{
					{MetricName: "tokens", MetricValues: []sctypes.MetricValue{{Kind: sctypes.ValueInt64, Int64Value: cost}}},
				},
			},
		}
	}
	sig1 := GenerateAllocateQuotaRequestSignature(base(1))
	sig2 := GenerateAllocateQuotaRequestSignature(base(100))
	if sig1 != sig2 {
		t.Fatalf("expected quota signature to ignore metric values, got %q vs %q", sig1, sig2)
	}
}

func TestQuotaSignatureDiffersOnMetricName(t *testing.T) {
	reqA := &sctypes.AllocateQuotaRequest{AllocateOperation: &sctypes.QuotaOperation{
		MethodName: "method", ConsumerID: "c",
		QuotaMetrics: []sctypes.MetricValueSet{{MetricName: "tokens"}},
	}}
	reqB := &sctypes.AllocateQuotaRequest{AllocateOperation: &sctypes.QuotaOperation{
		MethodName: "method", ConsumerID: "c",
		QuotaMetrics: []sctypes.MetricValueSet{{MetricName: "requests"}},
	}}
	if GenerateAllocateQuotaRequestSignature(reqA) == GenerateAllocateQuotaRequestSignature(reqB) {
		t.Fatal("expected different metric names to produce different quota signatures")
	}
}
