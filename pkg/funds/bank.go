// Package funds provides the currency-transfer capability the escrow engine
// settles through. The in-memory Bank stands in for the real value-transfer
// backend; every move is atomic and journaled.
package funds

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// ErrInsufficientFunds is returned when the source holding cannot cover the
// transfer. It propagates unwrapped through the escrow engine's error chain.
var ErrInsufficientFunds = errors.New("insufficient funds")

// JournalEntry records one completed transfer.
type JournalEntry struct {
	ID     string         `json:"id"`
	From   common.Address `json:"from"`
	To     common.Address `json:"to"`
	Amount uint64         `json:"amount"`
	At     time.Time      `json:"at"`
}

// Bank is an in-memory ledger of custodial balances.
type Bank struct {
	mu       sync.Mutex
	balances map[common.Address]uint64
	journal  []JournalEntry
}

// NewBank creates an empty bank.
func NewBank() *Bank {
	return &Bank{
		balances: make(map[common.Address]uint64),
	}
}

// Deposit credits an account out of thin air. Test and faucet use only.
func (b *Bank) Deposit(addr common.Address, amount uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[addr] += amount
}

// BalanceOf returns the current balance of an account.
func (b *Bank) BalanceOf(addr common.Address) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[addr]
}

// Transfer atomically moves amount from one account to another. The debit
// and credit happen under one lock: there is no state in which only half the
// move is visible.
func (b *Bank) Transfer(ctx context.Context, from, to common.Address, amount uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.balances[from] < amount {
		return fmt.Errorf("account %s has %d, needs %d: %w", from.Hex(), b.balances[from], amount, ErrInsufficientFunds)
	}

	b.balances[from] -= amount
	b.balances[to] += amount
	b.journal = append(b.journal, JournalEntry{
		ID:     uuid.New().String(),
		From:   from,
		To:     to,
		Amount: amount,
		At:     time.Now(),
	})
	return nil
}

// Journal returns a copy of the transfer journal.
func (b *Bank) Journal() []JournalEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]JournalEntry, len(b.journal))
	copy(out, b.journal)
	return out
}

// TotalSupply returns the sum of all balances. Useful for conservation
// checks: transfers never change it.
func (b *Bank) TotalSupply() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	var total uint64
	for _, bal := range b.balances {
		total += bal
	}
	return total
}
