package escrow

import (
	"math"
	"testing"
)

func TestLockedOdds(t *testing.T) {
	tests := []struct {
		name     string
		totalA   uint64
		totalB   uint64
		side     Side
		expected int64
	}{
		{
			name:     "first contributor empty pool",
			totalA:   0,
			totalB:   0,
			side:     SideA,
			expected: 1000,
		},
		{
			name:     "first contributor on side B",
			totalA:   1000,
			totalB:   0,
			side:     SideB,
			expected: 1000,
		},
		{
			name:     "balanced pool",
			totalA:   1000,
			totalB:   1000,
			side:     SideA,
			expected: 2000,
		},
		{
			name:     "scarce side pays more",
			totalA:   1000,
			totalB:   500,
			side:     SideB,
			expected: 3000,
		},
		{
			name:     "heavy side pays less",
			totalA:   1000,
			totalB:   500,
			side:     SideA,
			expected: 1500,
		},
		{
			name:     "floor division",
			totalA:   1000,
			totalB:   3000,
			side:     SideB,
			expected: 1333,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LockedOdds(tt.totalA, tt.totalB, tt.side)
			if got != tt.expected {
				t.Errorf("LockedOdds(%d, %d, %s) = %d, expected %d",
					tt.totalA, tt.totalB, tt.side, got, tt.expected)
			}
		})
	}
}

func TestLockedOdds_SaturatesInsteadOfWrapping(t *testing.T) {
	// A tiny side against a huge pool prices at the maximum representable
	// multiplier rather than wrapping around.
	if got := LockedOdds(1<<62, 1, SideB); got != math.MaxInt64 {
		t.Errorf("Expected saturated odds, got %d", got)
	}
	// Pool totals whose sum overflows uint64 saturate too.
	if got := LockedOdds(math.MaxUint64, 2, SideB); got != math.MaxInt64 {
		t.Errorf("Expected saturated odds for overflowing pool, got %d", got)
	}
	// Large but representable books still price exactly.
	if got := LockedOdds(1<<40, 1<<40, SideA); got != 2000 {
		t.Errorf("Expected 2000, got %d", got)
	}
}

func TestLockedOdds_NeverBelowScale(t *testing.T) {
	// The side total is always part of the combined pool, so the multiplier
	// can never drop below 1.000x.
	totals := []struct{ a, b uint64 }{
		{1, 1_000_000},
		{1_000_000, 1},
		{12345, 54321},
	}
	for _, tc := range totals {
		for _, side := range []Side{SideA, SideB} {
			if got := LockedOdds(tc.a, tc.b, side); got < OddsScale {
				t.Errorf("LockedOdds(%d, %d, %s) = %d, below scale", tc.a, tc.b, side, got)
			}
		}
	}
}
