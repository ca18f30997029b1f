// Package distribution implements the bucket-wise merge DeltaMerge needs
// for google.api.servicecontrol.v1.Distribution values: add two histograms
// together when their bucketing scheme matches, otherwise refuse (the
// aggregator drops the incoming value and logs, per spec).
package distribution

import (
	"math"

	"github.com/o-tero/service-control-client/sctypes"
)

// Merge combines from into to in place, following the same-population
// combination formulas for count/mean/min/max/sum-of-squared-deviation
// (Welford's parallel-merge identity) and a bucket-wise sum of counts.
// It reports false without modifying to when both sides carry bucket
// counts and their bucket options differ, signalling the caller should
// drop the incoming value. If only one side has bucket counts, its bucket
// option and counts are kept.
func Merge(to *sctypes.Distribution, from sctypes.Distribution) bool {
	if len(to.BucketCounts) > 0 && len(from.BucketCounts) > 0 && !to.BucketOption.Equal(from.BucketOption) {
		return false
	}

	if to.Count == 0 {
		*to = cloneDistribution(from)
		return true
	}
	if from.Count == 0 {
		return true
	}

	n1, n2 := float64(to.Count), float64(from.Count)
	delta := from.Mean - to.Mean
	newCount := to.Count + from.Count
	newMean := to.Mean + delta*n2/(n1+n2)
	newM2 := to.SumOfSquaredDeviation + from.SumOfSquaredDeviation +
		delta*delta*n1*n2/(n1+n2)

	to.Count = newCount
	to.Mean = newMean
	to.SumOfSquaredDeviation = newM2
	to.Minimum = math.Min(to.Minimum, from.Minimum)
	to.Maximum = math.Max(to.Maximum, from.Maximum)

	if len(to.BucketCounts) == 0 {
		to.BucketOption = from.BucketOption
		to.BucketCounts = append([]int64(nil), from.BucketCounts...)
	} else if len(from.BucketCounts) > 0 {
		for i, c := range from.BucketCounts {
			if i < len(to.BucketCounts) {
				to.BucketCounts[i] += c
			}
		}
	}

	return true
}

func cloneDistribution(d sctypes.Distribution) sctypes.Distribution {
	clone := d
	clone.BucketCounts = append([]int64(nil), d.BucketCounts...)
	return clone
}
