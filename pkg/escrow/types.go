// Package escrow implements the claim lifecycle for peer-to-peer wagering:
// participants stake funds behind one of two mutually exclusive sides of a
// claim, an automated classifier (with a human arbiter fallback) resolves the
// claim, and the escrowed pool is redistributed to winners net of a protocol
// fee. Odds are locked at contribution time, parimutuel-style.
package escrow

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Fixed-point and fee constants. Odds use scale 1000 (1000 = 1.000x) and the
// scale is preserved through all payout arithmetic.
const (
	OddsScale = 1000

	// Protocol fee: 1.5% of gross payout.
	FeePerMille = 15

	// Automated verdicts below this confidence go to Disputed instead of
	// Resolved.
	ConfidenceThreshold = 85
)

// Side is one of the two mutually exclusive outcomes of a claim.
type Side int

const (
	SideA Side = iota
	SideB
)

func (s Side) String() string {
	if s == SideA {
		return "A"
	}
	return "B"
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideA {
		return SideB
	}
	return SideA
}

// ClaimStatus is the lifecycle state of a claim.
// Open -> Locked -> {Resolving, Disputed} -> Resolved. Resolved is terminal.
type ClaimStatus int

const (
	StatusOpen ClaimStatus = iota
	StatusLocked
	StatusResolving
	StatusDisputed
	StatusResolved
)

func (s ClaimStatus) String() string {
	switch s {
	case StatusOpen:
		return "OPEN"
	case StatusLocked:
		return "LOCKED"
	case StatusResolving:
		return "RESOLVING"
	case StatusDisputed:
		return "DISPUTED"
	case StatusResolved:
		return "RESOLVED"
	default:
		return "UNKNOWN"
	}
}

// ResolutionMethod records how a claim's outcome was decided.
type ResolutionMethod int

const (
	MethodAutomated ResolutionMethod = iota
	MethodHuman
)

func (m ResolutionMethod) String() string {
	if m == MethodHuman {
		return "HUMAN"
	}
	return "AUTOMATED"
}

// Resolution is the immutable record of how a claim was decided. A claim has
// at most one Resolution, written at the transition into StatusResolved.
type Resolution struct {
	Verdict    bool             `json:"verdict"`
	Confidence uint8            `json:"confidence"` // 0-100
	Method     ResolutionMethod `json:"method"`
	Resolver   common.Address   `json:"resolver"`
	Timestamp  time.Time        `json:"timestamp"`
	Evidence   string           `json:"evidence_cid,omitempty"`
	Reason     string           `json:"reason,omitempty"`
}

// Claim is a single wager instance. It owns two pool ledgers (one per side)
// and references one fund holding per side. Identity, fingerprint and
// deadline are immutable after creation; everything else mutates only through
// the engine's state transitions.
type Claim struct {
	ID          common.Hash    `json:"id"`
	Creator     common.Address `json:"creator"`
	Fingerprint common.Hash    `json:"fingerprint"`
	Deadline    time.Time      `json:"deadline"`
	Category    string         `json:"category,omitempty"`
	Subcategory string         `json:"subcategory,omitempty"`

	Status     ClaimStatus `json:"status"`
	Winner     *Side       `json:"winner,omitempty"`
	Resolution *Resolution `json:"resolution,omitempty"`

	Holdings [2]common.Address `json:"holdings"` // indexed by Side
	Pools    [2]PoolLedger     `json:"pools"`    // indexed by Side

	// PoolsMerged is set by the first payout after resolution, once the
	// losing holding's balance has been folded into the winning holding.
	PoolsMerged bool `json:"pools_merged,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Pool returns the ledger for the given side.
func (c *Claim) Pool(side Side) *PoolLedger {
	return &c.Pools[side]
}

// Holding returns the fund holding address for the given side.
func (c *Claim) Holding(side Side) common.Address {
	return c.Holdings[side]
}

// ClaimID derives a claim's identity from its creator and content
// fingerprint. The derivation is deterministic, so the same (creator, text)
// pair always resolves to the same claim.
func ClaimID(creator common.Address, fingerprint common.Hash) common.Hash {
	return crypto.Keccak256Hash(creator.Bytes(), fingerprint.Bytes())
}

// Fingerprint hashes raw claim text into the fixed-size content fingerprint
// stored on chain state. The raw text itself is never stored by the core.
func Fingerprint(text string) common.Hash {
	return crypto.Keccak256Hash([]byte(text))
}

// HoldingAddress derives the custodial holding address for one side of a
// claim.
func HoldingAddress(claimID common.Hash, side Side) common.Address {
	h := crypto.Keccak256Hash([]byte("vault"), claimID.Bytes(), []byte{byte(side)})
	return common.BytesToAddress(h.Bytes())
}
