package escrow

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
)

func TestStats(t *testing.T) {
	engine, transferor := newTestEngine(t)
	claim := openTestClaim(t, engine, transferor, addr(1), 1000)

	bettor := addr(2)
	transferor.fund(bettor, 3000)
	engine.Join(context.Background(), claim.ID, SideB, bettor, 3000)

	stats, err := engine.Stats(claim.ID)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}

	if stats.TotalPool != 4000 || stats.TotalSideA != 1000 || stats.TotalSideB != 3000 {
		t.Errorf("Unexpected totals: pool=%d A=%d B=%d", stats.TotalPool, stats.TotalSideA, stats.TotalSideB)
	}
	if stats.EntriesSideA != 1 || stats.EntriesSideB != 1 {
		t.Errorf("Unexpected entry counts: A=%d B=%d", stats.EntriesSideA, stats.EntriesSideB)
	}
	if !stats.ImpliedProbA.Equal(decimal.RequireFromString("0.25")) {
		t.Errorf("Expected implied prob A 0.25, got %s", stats.ImpliedProbA)
	}
	if !stats.ImpliedProbB.Equal(decimal.RequireFromString("0.75")) {
		t.Errorf("Expected implied prob B 0.75, got %s", stats.ImpliedProbB)
	}
	if stats.FeesAccrued != 0 {
		t.Errorf("Unresolved claim must accrue no fees, got %d", stats.FeesAccrued)
	}
}

func TestStats_FeesAfterPayout(t *testing.T) {
	engine, transferor := newTestEngine(t)
	creator := addr(1)
	claim := openTestClaim(t, engine, transferor, creator, 1000)

	engine.Lock(claim.ID)
	engine.ResolveAutomated(claim.ID, AutomatedVerdict{Verdict: true, Confidence: 90})
	if _, err := engine.ClaimPayout(context.Background(), claim.ID, SideA, 0, creator); err != nil {
		t.Fatalf("ClaimPayout failed: %v", err)
	}

	stats, err := engine.Stats(claim.ID)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.FeesAccrued != 15 {
		t.Errorf("Expected 15 units of fees accrued, got %d", stats.FeesAccrued)
	}
	if stats.Status != "RESOLVED" {
		t.Errorf("Expected status RESOLVED, got %s", stats.Status)
	}
}
