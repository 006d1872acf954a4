package escrow

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ClaimStats is a read-side summary of a claim's pool. Escrow arithmetic is
// pure integer math; these decimal figures exist only for reporting.
type ClaimStats struct {
	ClaimID      string          `json:"claim_id"`
	Status       string          `json:"status"`
	TotalPool    uint64          `json:"total_pool"`
	TotalSideA   uint64          `json:"total_side_a"`
	TotalSideB   uint64          `json:"total_side_b"`
	EntriesSideA int             `json:"entries_side_a"`
	EntriesSideB int             `json:"entries_side_b"`
	ImpliedProbA decimal.Decimal `json:"implied_prob_a"`
	ImpliedProbB decimal.Decimal `json:"implied_prob_b"`
	FeesAccrued  uint64          `json:"fees_accrued"`
}

// Stats computes pool statistics for a claim. Implied probabilities follow
// the parimutuel reading of the book: a side's share of the total pool.
func (e *Engine) Stats(claimID common.Hash) (*ClaimStats, error) {
	claim, err := e.GetClaim(claimID)
	if err != nil {
		return nil, err
	}

	totalA := claim.Pool(SideA).Total
	totalB := claim.Pool(SideB).Total
	total := totalA + totalB

	stats := &ClaimStats{
		ClaimID:      claim.ID.Hex(),
		Status:       claim.Status.String(),
		TotalPool:    total,
		TotalSideA:   totalA,
		TotalSideB:   totalB,
		EntriesSideA: claim.Pool(SideA).Len(),
		EntriesSideB: claim.Pool(SideB).Len(),
	}

	if total > 0 {
		dTotal := decimal.NewFromUint64(total)
		stats.ImpliedProbA = decimal.NewFromUint64(totalA).Div(dTotal).Round(4)
		stats.ImpliedProbB = decimal.NewFromUint64(totalB).Div(dTotal).Round(4)
	}

	if claim.Status == StatusResolved && claim.Winner != nil {
		for _, entry := range claim.Pool(*claim.Winner).Entries {
			if entry.Claimed {
				_, fee := ComputePayout(entry.Amount, entry.Odds)
				stats.FeesAccrued += fee
			}
		}
	}

	return stats, nil
}
