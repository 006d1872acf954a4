package escrow

// ComputePayout computes a winner's settlement from their locked stake and
// odds: gross = floor(stake * odds / 1000), fee = floor(gross * 15 / 1000),
// net = gross - fee. The winning holding is debited by exactly net + fee.
// Intermediate products use 128-bit arithmetic so large stakes never wrap;
// the join-time settlement-range check guarantees the quotients fit.
func ComputePayout(stake uint64, lockedOdds int64) (net, fee uint64) {
	gross := mulDiv(stake, uint64(lockedOdds), OddsScale)
	fee = mulDiv(gross, FeePerMille, OddsScale)
	net = gross - fee
	return net, fee
}

// PayoutReceipt describes one settled payout.
type PayoutReceipt struct {
	ClaimID     string `json:"claim_id"`
	Side        Side   `json:"side"`
	EntryIndex  int    `json:"entry_index"`
	Participant string `json:"participant"`
	Stake       uint64 `json:"stake"`
	Odds        int64  `json:"odds"`
	Gross       uint64 `json:"gross"`
	Fee         uint64 `json:"fee"`
	Net         uint64 `json:"net"`
}
