// Package signature computes the fingerprints the aggregators use as cache
// keys, ported field-for-field from src/signature.cc. A cryptographic
// digest is overkill for collision resistance here — only the fields
// listed for each request type participate, so two requests that would be
// handled identically by Service Control produce the same fingerprint.
package signature

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/o-tero/service-control-client/sctypes"
)

const delimiter = "\x00"

type hasher struct {
	h []byte
}

func newHasher() *hasher {
	return &hasher{}
}

func (h *hasher) writeString(s string) {
	h.h = append(h.h, s...)
}

func (h *hasher) writeDelimiter() {
	h.h = append(h.h, delimiter...)
}

func (h *hasher) digest() string {
	sum := md5.Sum(h.h)
	return hex.EncodeToString(sum[:])
}

func sortedLabelKeys(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// writeLabels hashes labels in key-sorted order so map iteration order
// never affects the fingerprint (spec invariant §3).
func writeLabels(h *hasher, labels map[string]string) {
	for _, k := range sortedLabelKeys(labels) {
		h.writeDelimiter()
		h.writeString(k)
		h.writeDelimiter()
		h.writeString(labels[k])
	}
}

func writeMetricValue(h *hasher, mv sctypes.MetricValue) {
	writeLabels(h, mv.Labels)
}

// GenerateReportOperationSignature fingerprints an Operation for the
// purposes of Report aggregation: consumer id, operation name, sorted
// labels. Metric values do not participate — that's exactly what lets
// repeated reports for the same operation aggregate together.
func GenerateReportOperationSignature(op *sctypes.Operation) string {
	h := newHasher()
	h.writeString(op.ConsumerID)
	h.writeDelimiter()
	h.writeString(op.OperationName)
	writeLabels(h, op.Labels)
	return h.digest()
}

// GenerateReportMetricValueSignature fingerprints a single MetricValue by
// its labels alone; the value itself does not participate.
func GenerateReportMetricValueSignature(mv sctypes.MetricValue) string {
	h := newHasher()
	writeMetricValue(h, mv)
	return h.digest()
}

// GenerateCheckRequestSignature fingerprints a CheckRequest: operation
// name, consumer id, sorted labels, then metric-value-sets in sorted order
// by metric name, each followed by its metric values in input order.
// Unlike quota, full metric values participate: different counts are
// semantically different checks and must not collapse into one cache
// entry.
func GenerateCheckRequestSignature(req *sctypes.CheckRequest) string {
	h := newHasher()
	op := req.Operation
	h.writeString(op.OperationName)
	h.writeDelimiter()
	h.writeString(op.ConsumerID)
	h.writeDelimiter()
	writeLabels(h, op.Labels)

	names := make([]string, 0, len(op.MetricValueSets))
	byName := make(map[string]sctypes.MetricValueSet, len(op.MetricValueSets))
	for _, mvs := range op.MetricValueSets {
		names = append(names, mvs.MetricName)
		byName[mvs.MetricName] = mvs
	}
	sort.Strings(names)

	for _, name := range names {
		h.writeDelimiter()
		h.writeString(name)
		for _, mv := range byName[name].MetricValues {
			writeMetricValue(h, mv)
			h.writeDelimiter()
			switch mv.Kind {
			case sctypes.ValueInt64:
				h.writeString(fmt.Sprintf("i%d", mv.Int64Value))
			case sctypes.ValueDouble:
				h.writeString(fmt.Sprintf("d%v", mv.DoubleValue))
			case sctypes.ValueMoney:
				h.writeString(fmt.Sprintf("m%s:%d:%d", mv.MoneyValue.CurrencyCode, mv.MoneyValue.Units, mv.MoneyValue.Nanos))
			case sctypes.ValueDistribution:
				h.writeString(fmt.Sprintf("x%+v", mv.Distribution))
			}
		}
	}
	h.writeDelimiter()

	return h.digest()
}

// GenerateAllocateQuotaRequestSignature fingerprints an
// AllocateQuotaRequest: method name, consumer id, then the *set* of metric
// names, sorted. Metric *values* (token counts) deliberately do not
// participate, so requests differing only in cost aggregate together.
func GenerateAllocateQuotaRequestSignature(req *sctypes.AllocateQuotaRequest) string {
	h := newHasher()
	op := req.AllocateOperation
	h.writeString(op.MethodName)
	h.writeDelimiter()
	h.writeString(op.ConsumerID)

	names := make(map[string]struct{}, len(op.QuotaMetrics))
	for _, mvs := range op.QuotaMetrics {
		names[mvs.MetricName] = struct{}{}
	}
	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	for _, name := range sorted {
		h.writeDelimiter()
		h.writeString(name)
	}

	return h.digest()
}
