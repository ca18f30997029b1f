// Package sctypes hand-mirrors the Service Control v1 message shapes used
// throughout this client: CheckRequest/Response, AllocateQuotaRequest/
// Response, ReportRequest/Response, and the Operation/MetricValue/Money/
// Distribution types they embed.
//
// These are plain Go structs rather than generated *.pb.go bindings: no
// protoc toolchain is available to this module, and the aggregation and
// caching logic below only depends on field shape, not on proto runtime
// reflection. A deployment that needs true wire compatibility with a live
// Service Control endpoint swaps this package for generated bindings; none
// of the other packages would need to change since they only reference
// these field names.
package sctypes

import "time"

// QuotaMode mirrors google.api.servicecontrol.v1.QuotaOperation.QuotaMode.
type QuotaMode int

const (
	QuotaModeUnspecified QuotaMode = iota
	QuotaModeNormal
	QuotaModeBestEffort
	QuotaModeCheckOnly
)

func (m QuotaMode) String() string {
	switch m {
	case QuotaModeNormal:
		return "NORMAL"
	case QuotaModeBestEffort:
		return "BEST_EFFORT"
	case QuotaModeCheckOnly:
		return "CHECK_ONLY"
	default:
		return "UNSPECIFIED"
	}
}

// ValueKind distinguishes the oneof variants of MetricValue.
type ValueKind int

const (
	ValueUnset ValueKind = iota
	ValueInt64
	ValueDouble
	ValueMoney
	ValueDistribution
)

// Money mirrors google.type.Money: an amount of money with a currency.
// nanos must be in [-999999999, 999999999] and share the sign of units
// when units is non-zero (enforced by money.Validate, not by this struct).
type Money struct {
	CurrencyCode string
	Units        int64
	Nanos        int32
}

// BucketOptionKind distinguishes Distribution's three bucketing schemes.
type BucketOptionKind int

const (
	BucketLinear BucketOptionKind = iota
	BucketExponential
	BucketExplicit
)

// BucketOption mirrors the oneof inside
// google.api.servicecontrol.v1.Distribution.BucketOption.
type BucketOption struct {
	Kind BucketOptionKind

	// Linear
	NumFiniteBuckets int32
	Width            float64
	LinearStart      float64

	// Exponential
	GrowthFactor     float64
	Scale            float64
	ExponentialStart float64

	// Explicit
	Bounds []float64
}

// Equal reports whether two bucket options describe identical bucketing,
// the precondition DeltaMerge checks before adding two distributions
// bucket-wise (spec: "bucket-wise add if bucket options match; otherwise
// drop").
func (b BucketOption) Equal(o BucketOption) bool {
	if b.Kind != o.Kind {
		return false
	}
	switch b.Kind {
	case BucketLinear:
		return b.NumFiniteBuckets == o.NumFiniteBuckets &&
			b.Width == o.Width && b.LinearStart == o.LinearStart
	case BucketExponential:
		return b.NumFiniteBuckets == o.NumFiniteBuckets &&
			b.GrowthFactor == o.GrowthFactor && b.Scale == o.Scale &&
			b.ExponentialStart == o.ExponentialStart
	case BucketExplicit:
		if len(b.Bounds) != len(o.Bounds) {
			return false
		}
		for i := range b.Bounds {
			if b.Bounds[i] != o.Bounds[i] {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Distribution mirrors google.api.servicecontrol.v1.Distribution: a
// histogram-like summary of a population of values.
type Distribution struct {
	Count                 int64
	Mean                  float64
	Minimum               float64
	Maximum               float64
	SumOfSquaredDeviation float64
	BucketOption          BucketOption
	BucketCounts          []int64
}

// MetricValue is a single observation: exactly one of the Int64/Double/
// Money/Distribution fields is meaningful, selected by Kind.
type MetricValue struct {
	Kind         ValueKind
	Labels       map[string]string
	StartTime    time.Time
	EndTime      time.Time
	Int64Value   int64
	DoubleValue  float64
	MoneyValue   Money
	Distribution Distribution
}

// MetricValueSet groups every observation recorded for one metric name
// within a single operation.
type MetricValueSet struct {
	MetricName   string
	MetricValues []MetricValue
}

// Operation is the protobuf unit of work: one consumer, one method call, a
// bag of metric values and labels.
type Operation struct {
	OperationID     string
	OperationName   string
	ConsumerID      string
	StartTime       time.Time
	EndTime         time.Time
	Labels          map[string]string
	MetricValueSets []MetricValueSet
}

// QuotaOperation is the AllocateQuota analogue of Operation: quota_metrics
// instead of metric_value_sets, plus a QuotaMode.
type QuotaOperation struct {
	OperationID   string
	MethodName    string
	ConsumerID    string
	QuotaMode     QuotaMode
	Labels        map[string]string
	QuotaMetrics  []MetricValueSet
}

// CheckRequest/CheckResponse

type CheckRequest struct {
	ServiceName     string
	ServiceConfigID string
	Operation       *Operation
}

// CheckError mirrors google.api.servicecontrol.v1.CheckError: a structured
// negative verdict from the control plane (quota exceeded, bad API key...).
type CheckError struct {
	Code    string
	Subject string
	Detail  string
}

type CheckResponse struct {
	CheckErrors []CheckError
}

// IsPositive reports whether the response grants the call: a Check
// response is positive precisely when it carries no CheckErrors.
func (r *CheckResponse) IsPositive() bool {
	return r == nil || len(r.CheckErrors) == 0
}

// AllocateQuotaRequest/AllocateQuotaResponse

type AllocateQuotaRequest struct {
	ServiceName       string
	ServiceConfigID   string
	AllocateOperation *QuotaOperation
}

// QuotaError mirrors google.api.servicecontrol.v1.QuotaError.
type QuotaError struct {
	Code        string
	Subject     string
	Description string
}

type AllocateQuotaResponse struct {
	OperationID    string
	AllocateErrors []QuotaError
	QuotaMetrics   []MetricValueSet
}

// IsPositive reports whether the allocation succeeded: positive precisely
// when there are no AllocateErrors.
func (r *AllocateQuotaResponse) IsPositive() bool {
	return r == nil || len(r.AllocateErrors) == 0
}

// ReportRequest/ReportResponse

type ReportRequest struct {
	ServiceName     string
	ServiceConfigID string
	Operations      []*Operation
}

// ReportError mirrors google.api.servicecontrol.v1.ReportError.
type ReportError struct {
	OperationID string
	Code        string
	Subject     string
}

type ReportResponse struct {
	ReportErrors []ReportError
}
