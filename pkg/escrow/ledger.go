package escrow

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PoolEntry is one participant's contribution to one side of a claim. Odds
// are locked at the instant of joining and never recomputed; Claimed flips
// exactly once, when the participant collects their payout.
type PoolEntry struct {
	Participant common.Address `json:"participant"`
	Amount      uint64         `json:"amount"`
	Odds        int64          `json:"odds"` // fixed-point, scale 1000
	Claimed     bool           `json:"claimed"`
	JoinedAt    time.Time      `json:"joined_at"`
}

// PoolLedger is the append-only record of contributions to one side of a
// claim. Entry order is authoritative: payout lookups are index-based.
type PoolLedger struct {
	Entries []PoolEntry `json:"entries"`
	Total   uint64      `json:"total"`
}

// Append records a contribution and returns its index. This is the only
// mutator; it is called by the engine under the claim's lock.
func (l *PoolLedger) Append(participant common.Address, amount uint64, odds int64) int {
	l.Entries = append(l.Entries, PoolEntry{
		Participant: participant,
		Amount:      amount,
		Odds:        odds,
		JoinedAt:    time.Now(),
	})
	l.Total += amount
	return len(l.Entries) - 1
}

// EntryAt returns the entry at index after verifying that caller is its
// participant. The ownership check is mandatory at payout time: a
// caller-supplied index alone is never trusted.
func (l *PoolLedger) EntryAt(index int, caller common.Address) (*PoolEntry, error) {
	if index < 0 || index >= len(l.Entries) {
		return nil, ErrIndexOutOfRange
	}
	entry := &l.Entries[index]
	if entry.Participant != caller {
		return nil, ErrNotAuthorized
	}
	return entry, nil
}

// EntryOf returns the first unclaimed entry belonging to participant, with
// its index. ok is false if the participant has no unclaimed entry.
func (l *PoolLedger) EntryOf(participant common.Address) (int, *PoolEntry, bool) {
	for i := range l.Entries {
		if l.Entries[i].Participant == participant && !l.Entries[i].Claimed {
			return i, &l.Entries[i], true
		}
	}
	return 0, nil, false
}

// Len returns the number of entries.
func (l *PoolLedger) Len() int {
	return len(l.Entries)
}
