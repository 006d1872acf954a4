package escrow

import (
	"context"
	"fmt"
	"log"
	"math/bits"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Transferor is the funds-transfer capability the engine calls into: an
// atomic, all-or-nothing move of amount units between custodial holdings.
type Transferor interface {
	Transfer(ctx context.Context, from, to common.Address, amount uint64) error
}

// Store persists claim records. The engine writes through on every mutation,
// best effort: in-memory state stays authoritative and a failed write never
// aborts an operation whose funds have already moved.
type Store interface {
	PutClaim(c *Claim) error
}

// Engine owns every claim's lifecycle. All reads and mutations of a claim,
// its pool ledgers and its holdings are serialized under that claim's lock;
// distinct claims proceed in parallel.
type Engine struct {
	transfer Transferor
	treasury common.Address
	store    Store

	mu     sync.RWMutex
	claims map[common.Hash]*claimState

	// Callbacks
	onClaim      func(*Claim)
	onResolution func(*Claim)
	onPayout     func(*Claim, *PayoutReceipt)
}

type claimState struct {
	mu    sync.Mutex
	claim *Claim
}

// NewEngine creates an engine that settles through transfer and routes
// protocol fees to treasury.
func NewEngine(transfer Transferor, treasury common.Address) *Engine {
	return &Engine{
		transfer: transfer,
		treasury: treasury,
		claims:   make(map[common.Hash]*claimState),
	}
}

// SetStore attaches a persistence backend. Call before serving traffic.
func (e *Engine) SetStore(store Store) {
	e.store = store
}

// Restore loads previously persisted claims into the engine.
func (e *Engine) Restore(claims []*Claim) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range claims {
		e.claims[c.ID] = &claimState{claim: c}
	}
}

// OnClaim sets a callback for claim lifecycle events (open, join, lock).
func (e *Engine) OnClaim(fn func(*Claim)) {
	e.onClaim = fn
}

// OnResolution sets a callback fired when a claim reaches Resolved or
// Disputed.
func (e *Engine) OnResolution(fn func(*Claim)) {
	e.onResolution = fn
}

// OnPayout sets a callback for settled payouts.
func (e *Engine) OnPayout(fn func(*Claim, *PayoutReceipt)) {
	e.onPayout = fn
}

// OpenClaimRequest is a request to open a new claim.
type OpenClaimRequest struct {
	Creator      common.Address `json:"creator"`
	Fingerprint  common.Hash    `json:"fingerprint"`
	Deadline     time.Time      `json:"deadline"`
	Category     string         `json:"category"`
	Subcategory  string         `json:"subcategory"`
	InitialStake uint64         `json:"initial_stake"`
}

// OpenClaim creates a claim in Open status and seeds side A with the
// creator's own stake at exactly 1.000x odds: the creator is the house for
// their own claim. The stake moves from the creator to the side-A holding.
func (e *Engine) OpenClaim(ctx context.Context, req *OpenClaimRequest) (*Claim, error) {
	if req.InitialStake == 0 {
		return nil, fmt.Errorf("initial stake must be positive")
	}
	if hi, _ := bits.Mul64(req.InitialStake, OddsScale); hi != 0 {
		return nil, fmt.Errorf("initial stake %d exceeds settlement range", req.InitialStake)
	}

	id := ClaimID(req.Creator, req.Fingerprint)

	e.mu.RLock()
	_, exists := e.claims[id]
	e.mu.RUnlock()
	if exists {
		return nil, fmt.Errorf("claim %s: %w", id.Hex(), ErrDuplicateClaim)
	}

	now := time.Now()
	claim := &Claim{
		ID:          id,
		Creator:     req.Creator,
		Fingerprint: req.Fingerprint,
		Deadline:    req.Deadline,
		Category:    NormalizeLabel(req.Category),
		Subcategory: NormalizeLabel(req.Subcategory),
		Status:      StatusOpen,
		Holdings: [2]common.Address{
			HoldingAddress(id, SideA),
			HoldingAddress(id, SideB),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	// The seed transfer runs outside the engine lock: opening one claim must
	// not stall operations on other claims behind the funds backend.
	if err := e.transfer.Transfer(ctx, req.Creator, claim.Holding(SideA), req.InitialStake); err != nil {
		return nil, fmt.Errorf("seed stake: %w", err)
	}

	claim.Pool(SideA).Append(req.Creator, req.InitialStake, OddsScale)

	cs := &claimState{claim: claim}
	cs.mu.Lock()

	e.mu.Lock()
	if _, exists := e.claims[id]; exists {
		e.mu.Unlock()
		cs.mu.Unlock()
		// Lost the race to a concurrent open of the same claim; refund the
		// seed stake.
		if rbErr := e.transfer.Transfer(ctx, claim.Holding(SideA), req.Creator, req.InitialStake); rbErr != nil {
			return nil, fmt.Errorf("duplicate claim and refund failed (%v): %w", rbErr, ErrDuplicateClaim)
		}
		return nil, fmt.Errorf("claim %s: %w", id.Hex(), ErrDuplicateClaim)
	}
	e.claims[id] = cs
	e.mu.Unlock()

	e.persist(claim)
	out := claim.clone()
	cs.mu.Unlock()

	// Callbacks run outside the lock: they are free to call back into the
	// engine.
	e.notifyClaim(out)

	return out, nil
}

// Join appends a participant's stake to one side of a still-Open claim and
// moves the stake into that side's holding. The returned odds are locked for
// the life of the claim; they are computed from pool totals as they stand at
// this instant and never revisited.
func (e *Engine) Join(ctx context.Context, claimID common.Hash, side Side, participant common.Address, amount uint64) (index int, odds int64, err error) {
	if amount == 0 {
		return 0, 0, fmt.Errorf("stake must be positive")
	}

	cs, err := e.lookup(claimID)
	if err != nil {
		return 0, 0, err
	}

	cs.mu.Lock()
	claim := cs.claim

	if claim.Status != StatusOpen {
		cs.mu.Unlock()
		return 0, 0, fmt.Errorf("claim %s is %s: %w", claimID.Hex(), claim.Status, ErrClaimNotOpen)
	}

	odds = LockedOdds(claim.Pool(SideA).Total, claim.Pool(SideB).Total, side)

	// Entries whose gross payout cannot be computed exactly in 64 bits are
	// rejected up front, so settlement arithmetic never truncates.
	if hi, _ := bits.Mul64(amount, uint64(odds)); hi != 0 {
		cs.mu.Unlock()
		return 0, 0, fmt.Errorf("stake %d at odds %d exceeds settlement range", amount, odds)
	}

	if err := e.transfer.Transfer(ctx, participant, claim.Holding(side), amount); err != nil {
		cs.mu.Unlock()
		return 0, 0, fmt.Errorf("stake transfer: %w", err)
	}

	index = claim.Pool(side).Append(participant, amount, odds)
	claim.UpdatedAt = time.Now()

	e.persist(claim)
	out := claim.clone()
	cs.mu.Unlock()

	e.notifyClaim(out)

	return index, odds, nil
}

// Lock closes an Open claim to further entries. Betting never closes on its
// own when a participant joins; closing is always this explicit transition,
// driven by the deadline sweep or an operator.
func (e *Engine) Lock(claimID common.Hash) error {
	return e.transition(claimID, StatusLocked, StatusOpen)
}

// BeginResolution marks a Locked claim as Resolving while an automated
// verdict is in flight.
func (e *Engine) BeginResolution(claimID common.Hash) error {
	return e.transition(claimID, StatusResolving, StatusLocked)
}

func (e *Engine) transition(claimID common.Hash, to ClaimStatus, from ...ClaimStatus) error {
	cs, err := e.lookup(claimID)
	if err != nil {
		return err
	}

	cs.mu.Lock()
	claim := cs.claim

	ok := false
	for _, s := range from {
		if claim.Status == s {
			ok = true
			break
		}
	}
	if !ok {
		cs.mu.Unlock()
		return fmt.Errorf("claim %s is %s: %w", claimID.Hex(), claim.Status, ErrInvalidStatus)
	}

	claim.Status = to
	claim.UpdatedAt = time.Now()

	e.persist(claim)
	out := claim.clone()
	cs.mu.Unlock()

	e.notifyClaim(out)
	return nil
}

// AutomatedVerdict is the output of the automated classifier for a claim.
type AutomatedVerdict struct {
	Verdict    bool           `json:"verdict"`
	Confidence uint8          `json:"confidence"` // 0-100
	Resolver   common.Address `json:"resolver"`
	Evidence   string         `json:"evidence_cid,omitempty"`
	Reason     string         `json:"reason,omitempty"`
}

// ResolveAutomated applies an automated verdict to a Locked or Resolving
// claim. Confidence at or above the threshold resolves the claim and records
// the winner; below it the claim moves to Disputed for a human arbiter, with
// no other mutation. The Disputed path is the designed fallback, not a
// failure, so resolved reports which branch was taken.
func (e *Engine) ResolveAutomated(claimID common.Hash, v AutomatedVerdict) (resolved bool, err error) {
	if v.Confidence > 100 {
		return false, fmt.Errorf("confidence %d out of range", v.Confidence)
	}

	cs, err := e.lookup(claimID)
	if err != nil {
		return false, err
	}

	cs.mu.Lock()
	claim := cs.claim

	if claim.Status != StatusLocked && claim.Status != StatusResolving {
		cs.mu.Unlock()
		return false, fmt.Errorf("claim %s is %s: %w", claimID.Hex(), claim.Status, ErrInvalidStatus)
	}

	if v.Confidence < ConfidenceThreshold {
		claim.Status = StatusDisputed
		claim.UpdatedAt = time.Now()
		e.persist(claim)
		out := claim.clone()
		cs.mu.Unlock()
		e.notifyResolution(out)
		return false, nil
	}

	e.resolve(claim, v.Verdict, &Resolution{
		Verdict:    v.Verdict,
		Confidence: v.Confidence,
		Method:     MethodAutomated,
		Resolver:   v.Resolver,
		Timestamp:  time.Now(),
		Evidence:   v.Evidence,
		Reason:     v.Reason,
	})

	e.persist(claim)
	out := claim.clone()
	cs.mu.Unlock()

	e.notifyResolution(out)
	return true, nil
}

// ResolveHuman applies an arbiter's verdict to a Disputed claim. An automated
// verdict that cleared the confidence threshold is final: humans can only
// rule on claims the classifier punted on. Human confidence is recorded as
// 100.
func (e *Engine) ResolveHuman(claimID common.Hash, verdict bool, arbiter common.Address) error {
	cs, err := e.lookup(claimID)
	if err != nil {
		return err
	}

	cs.mu.Lock()
	claim := cs.claim

	if claim.Status != StatusDisputed {
		cs.mu.Unlock()
		return fmt.Errorf("claim %s is %s: %w", claimID.Hex(), claim.Status, ErrInvalidStatus)
	}

	e.resolve(claim, verdict, &Resolution{
		Verdict:    verdict,
		Confidence: 100,
		Method:     MethodHuman,
		Resolver:   arbiter,
		Timestamp:  time.Now(),
	})

	e.persist(claim)
	out := claim.clone()
	cs.mu.Unlock()

	e.notifyResolution(out)
	return nil
}

// resolve records the winner and resolution. Caller holds the claim lock and
// has verified the transition.
func (e *Engine) resolve(claim *Claim, verdict bool, res *Resolution) {
	winner := SideB
	if verdict {
		winner = SideA
	}
	claim.Status = StatusResolved
	claim.Winner = &winner
	claim.Resolution = res
	claim.UpdatedAt = time.Now()
}

// ClaimPayout settles one winning entry: the caller must own the entry, the
// entry's side must be the winner, and each entry pays out at most once. The
// first payout on a claim folds the losing side's pool into the winning
// holding, so gross payouts draw on the full escrowed pool rather than the
// winners' own stakes alone. The entry is marked claimed before any funds
// move, and unwound if a transfer fails, so a re-entrant second claim can
// never double-pay. The winning holding is debited by exactly
// gross = net + fee: net to the caller, fee to the treasury.
func (e *Engine) ClaimPayout(ctx context.Context, claimID common.Hash, side Side, entryIndex int, caller common.Address) (*PayoutReceipt, error) {
	cs, err := e.lookup(claimID)
	if err != nil {
		return nil, err
	}

	cs.mu.Lock()
	claim := cs.claim

	if claim.Status != StatusResolved {
		cs.mu.Unlock()
		return nil, fmt.Errorf("claim %s is %s: %w", claimID.Hex(), claim.Status, ErrNotResolved)
	}
	if claim.Winner == nil || side != *claim.Winner {
		cs.mu.Unlock()
		return nil, fmt.Errorf("side %s did not win: %w", side, ErrNotAuthorized)
	}

	entry, err := claim.Pool(side).EntryAt(entryIndex, caller)
	if err != nil {
		cs.mu.Unlock()
		return nil, err
	}
	if entry.Claimed {
		cs.mu.Unlock()
		return nil, ErrPayoutAlreadyClaimed
	}

	net, fee := ComputePayout(entry.Amount, entry.Odds)
	holding := claim.Holding(side)

	if !claim.PoolsMerged {
		losing := side.Opposite()
		if amt := claim.Pool(losing).Total; amt > 0 {
			if err := e.transfer.Transfer(ctx, claim.Holding(losing), holding, amt); err != nil {
				cs.mu.Unlock()
				return nil, fmt.Errorf("fold losing pool: %w", err)
			}
		}
		// Persisted immediately: replaying the fold after a restart would
		// move funds that are no longer there.
		claim.PoolsMerged = true
		e.persist(claim)
	}

	entry.Claimed = true

	if err := e.transfer.Transfer(ctx, holding, caller, net); err != nil {
		entry.Claimed = false
		cs.mu.Unlock()
		return nil, fmt.Errorf("payout transfer: %w", err)
	}
	if err := e.transfer.Transfer(ctx, holding, e.treasury, fee); err != nil {
		// Unwind the net leg so the failed operation leaves no partial state.
		if rbErr := e.transfer.Transfer(ctx, caller, holding, net); rbErr != nil {
			cs.mu.Unlock()
			return nil, fmt.Errorf("fee transfer failed (%v) and rollback failed: %w", err, rbErr)
		}
		entry.Claimed = false
		cs.mu.Unlock()
		return nil, fmt.Errorf("fee transfer: %w", err)
	}

	claim.UpdatedAt = time.Now()

	receipt := &PayoutReceipt{
		ClaimID:     claim.ID.Hex(),
		Side:        side,
		EntryIndex:  entryIndex,
		Participant: caller.Hex(),
		Stake:       entry.Amount,
		Odds:        entry.Odds,
		Gross:       net + fee,
		Fee:         fee,
		Net:         net,
	}

	e.persist(claim)
	out := claim.clone()
	cs.mu.Unlock()

	if e.onPayout != nil {
		e.onPayout(out, receipt)
	}

	return receipt, nil
}

// GetClaim returns a copy of the claim.
func (e *Engine) GetClaim(claimID common.Hash) (*Claim, error) {
	cs, err := e.lookup(claimID)
	if err != nil {
		return nil, err
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.claim.clone(), nil
}

// PoolTotals returns the escrowed totals for both sides.
func (e *Engine) PoolTotals(claimID common.Hash) (totalA, totalB uint64, err error) {
	cs, err := e.lookup(claimID)
	if err != nil {
		return 0, 0, err
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.claim.Pool(SideA).Total, cs.claim.Pool(SideB).Total, nil
}

// Claims returns copies of all claims.
func (e *Engine) Claims() []*Claim {
	e.mu.RLock()
	states := make([]*claimState, 0, len(e.claims))
	for _, cs := range e.claims {
		states = append(states, cs)
	}
	e.mu.RUnlock()

	claims := make([]*Claim, 0, len(states))
	for _, cs := range states {
		cs.mu.Lock()
		claims = append(claims, cs.claim.clone())
		cs.mu.Unlock()
	}
	return claims
}

// ClaimsInStatus returns copies of all claims currently in status.
func (e *Engine) ClaimsInStatus(status ClaimStatus) []*Claim {
	var out []*Claim
	for _, c := range e.Claims() {
		if c.Status == status {
			out = append(out, c)
		}
	}
	return out
}

// LockExpired locks every Open claim whose deadline has passed and returns
// the ids it locked. Claims with a zero deadline never expire.
func (e *Engine) LockExpired(now time.Time) []common.Hash {
	var locked []common.Hash
	for _, c := range e.ClaimsInStatus(StatusOpen) {
		if c.Deadline.IsZero() || c.Deadline.After(now) {
			continue
		}
		if err := e.Lock(c.ID); err == nil {
			locked = append(locked, c.ID)
		}
	}
	return locked
}

func (e *Engine) lookup(claimID common.Hash) (*claimState, error) {
	e.mu.RLock()
	cs, ok := e.claims[claimID]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("claim %s: %w", claimID.Hex(), ErrClaimNotFound)
	}
	return cs, nil
}

// persist writes the claim through to the store, best effort. In-memory state
// is authoritative; a failed write is logged and the operation succeeds, so a
// flaky store can never report failure for funds that already moved.
func (e *Engine) persist(claim *Claim) {
	if e.store == nil {
		return
	}
	if err := e.store.PutClaim(claim.clone()); err != nil {
		log.Printf("[ESCROW] Persist claim %s: %v", claim.ID.Hex(), err)
	}
}

// notifyClaim and notifyResolution take a pre-cloned claim and must be called
// with no engine or claim lock held: callbacks may reenter the engine.
func (e *Engine) notifyClaim(claim *Claim) {
	if e.onClaim != nil {
		e.onClaim(claim)
	}
}

func (e *Engine) notifyResolution(claim *Claim) {
	if e.onResolution != nil {
		e.onResolution(claim)
	}
}

// clone deep-copies a claim so callers can never reach mutable engine state.
func (c *Claim) clone() *Claim {
	out := *c
	for side := range c.Pools {
		entries := make([]PoolEntry, len(c.Pools[side].Entries))
		copy(entries, c.Pools[side].Entries)
		out.Pools[side].Entries = entries
	}
	if c.Winner != nil {
		w := *c.Winner
		out.Winner = &w
	}
	if c.Resolution != nil {
		r := *c.Resolution
		out.Resolution = &r
	}
	return &out
}
