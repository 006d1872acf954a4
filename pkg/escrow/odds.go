package escrow

import (
	"math"
	"math/bits"
)

// LockedOdds prices a contribution to side at join time, using only the pool
// totals visible at that moment. The first contributor to a side gets exactly
// 1.000x; later contributors get floor((totalA+totalB) * 1000 / totalSide)
// with both totals taken before the contribution is added. Earlier and
// scarcer-side contributors therefore lock in higher multipliers, which is
// the incentive to balance the book.
//
// Arithmetic saturates instead of wrapping: a pool too large for the scale
// factor prices at the maximum representable multiplier, and the join-time
// settlement-range check rejects any stake that cannot be paid out exactly at
// those odds.
func LockedOdds(totalA, totalB uint64, side Side) int64 {
	totalSide := totalA
	if side == SideB {
		totalSide = totalB
	}
	if totalSide == 0 {
		return OddsScale
	}
	current := totalA + totalB
	if current < totalA {
		current = math.MaxUint64
	}
	odds := mulDiv(current, OddsScale, totalSide)
	if odds > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(odds)
}

// mulDiv returns floor(a*b/div) with a full 128-bit intermediate product,
// saturating at MaxUint64 when the quotient does not fit in 64 bits.
func mulDiv(a, b, div uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	if hi >= div {
		return math.MaxUint64
	}
	q, _ := bits.Div64(hi, lo, div)
	return q
}
