// Package money implements the saturating and checked addition semantics
// DeltaMerge needs for google.type.Money values, ported from
// src/money_utils.cc's TryAddMoney/SaturatedAddMoney (ground-truthed
// against src/money_utils_test.cc's table of cases, including the carry
// and sign-normalization edge cases around the 10^9 nanos boundary).
package money

import (
	"math"

	"github.com/o-tero/service-control-client/scerr"
	"github.com/o-tero/service-control-client/sctypes"
)

const nanosPerUnit = int64(1000000000)

// Validate checks that m is a well-formed Money: a 3-letter currency code,
// nanos within +/-999999999, and nanos sharing units' sign when both are
// non-zero.
func Validate(m sctypes.Money) error {
	if len(m.CurrencyCode) != 3 {
		return scerr.New(scerr.InvalidArgument, "invalid currency code: %q", m.CurrencyCode)
	}
	if m.Nanos <= -int32(nanosPerUnit) || m.Nanos >= int32(nanosPerUnit) {
		return scerr.New(scerr.InvalidArgument, "nanos out of range: %d", m.Nanos)
	}
	if (m.Units > 0 && m.Nanos < 0) || (m.Units < 0 && m.Nanos > 0) {
		return scerr.New(scerr.InvalidArgument, "units and nanos have inconsistent signs")
	}
	return nil
}

// GetAmountSign returns 1, 0, or -1 according to the sign of m's amount.
func GetAmountSign(m sctypes.Money) int {
	if m.Units > 0 {
		return 1
	}
	if m.Units < 0 {
		return -1
	}
	if m.Nanos > 0 {
		return 1
	}
	if m.Nanos < 0 {
		return -1
	}
	return 0
}

// addOverflow adds two int64 and reports whether the addition overflowed.
func addOverflow(a, b int64) (int64, bool) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return sum, true
	}
	return sum, false
}

// addCore implements the shared add-then-normalize-then-saturate algorithm
// behind both TryAdd and SaturatedAdd. It assumes a and b share a currency
// code; the caller is responsible for checking that.
func addCore(a, b sctypes.Money) (sctypes.Money, bool) {
	sumUnits, overflow := addOverflow(a.Units, b.Units)
	sumNanos := int64(a.Nanos) + int64(b.Nanos)

	if sumNanos >= nanosPerUnit {
		sumNanos -= nanosPerUnit
		var carryOverflow bool
		sumUnits, carryOverflow = addOverflow(sumUnits, 1)
		overflow = overflow || carryOverflow
	} else if sumNanos <= -nanosPerUnit {
		sumNanos += nanosPerUnit
		var carryOverflow bool
		sumUnits, carryOverflow = addOverflow(sumUnits, -1)
		overflow = overflow || carryOverflow
	}

	// Normalize so units and nanos carry the same sign.
	if sumUnits > 0 && sumNanos < 0 {
		sumUnits--
		sumNanos += nanosPerUnit
	} else if sumUnits < 0 && sumNanos > 0 {
		sumUnits++
		sumNanos -= nanosPerUnit
	}

	if overflow {
		// Overflow only happens when a and b have the same sign; saturate
		// toward that sign.
		sign := GetAmountSign(a)
		if sign == 0 {
			sign = GetAmountSign(b)
		}
		if sign >= 0 {
			sumUnits = math.MaxInt64
			sumNanos = nanosPerUnit - 1
		} else {
			sumUnits = math.MinInt64
			sumNanos = -(nanosPerUnit - 1)
		}
	}

	return sctypes.Money{
		CurrencyCode: a.CurrencyCode,
		Units:        sumUnits,
		Nanos:        int32(sumNanos),
	}, overflow
}

// TryAdd returns a+b. If the currencies differ, it returns the zero Money
// and an InvalidArgument error. If the addition overflows int64, it returns
// the saturated result alongside an OutOfRange error — callers that only
// care about the clamped value can ignore the error and use the result
// directly, matching SaturatedAdd's contract.
func TryAdd(a, b sctypes.Money) (sctypes.Money, error) {
	if a.CurrencyCode != b.CurrencyCode {
		return sctypes.Money{}, scerr.New(scerr.InvalidArgument,
			"currency code mismatch: %q vs %q", a.CurrencyCode, b.CurrencyCode)
	}
	sum, overflow := addCore(a, b)
	if overflow {
		return sum, scerr.New(scerr.OutOfRange, "money addition overflowed int64")
	}
	return sum, nil
}

// SaturatedAdd returns a+b clamped to the representable range, ignoring
// whether the true sum would have overflowed. A currency mismatch yields
// the zero Money, since there is no error channel to report it through.
func SaturatedAdd(a, b sctypes.Money) sctypes.Money {
	if a.CurrencyCode != b.CurrencyCode {
		return sctypes.Money{}
	}
	sum, _ := addCore(a, b)
	return sum
}
