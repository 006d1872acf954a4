package escrow

import (
	"errors"
	"testing"
)

func TestPoolLedger_Append(t *testing.T) {
	var ledger PoolLedger

	if i := ledger.Append(addr(1), 1000, 1000); i != 0 {
		t.Errorf("First append should return index 0, got %d", i)
	}
	if i := ledger.Append(addr(2), 500, 3000); i != 1 {
		t.Errorf("Second append should return index 1, got %d", i)
	}

	if ledger.Total != 1500 {
		t.Errorf("Expected total 1500, got %d", ledger.Total)
	}
	if ledger.Len() != 2 {
		t.Errorf("Expected 2 entries, got %d", ledger.Len())
	}
	if ledger.Entries[1].Odds != 3000 {
		t.Errorf("Expected odds 3000, got %d", ledger.Entries[1].Odds)
	}
}

func TestPoolLedger_EntryAt(t *testing.T) {
	var ledger PoolLedger
	owner := addr(1)
	ledger.Append(owner, 1000, 1000)

	entry, err := ledger.EntryAt(0, owner)
	if err != nil {
		t.Fatalf("EntryAt failed: %v", err)
	}
	if entry.Amount != 1000 {
		t.Errorf("Expected amount 1000, got %d", entry.Amount)
	}

	if _, err := ledger.EntryAt(0, addr(2)); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("Expected ErrNotAuthorized for wrong caller, got %v", err)
	}
	if _, err := ledger.EntryAt(1, owner); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("Expected ErrIndexOutOfRange, got %v", err)
	}
	if _, err := ledger.EntryAt(-1, owner); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("Expected ErrIndexOutOfRange for negative index, got %v", err)
	}
}

func TestPoolLedger_EntryOf(t *testing.T) {
	var ledger PoolLedger
	p := addr(1)
	ledger.Append(addr(2), 500, 1000)
	ledger.Append(p, 1000, 2000)
	ledger.Append(p, 300, 2500)

	index, entry, ok := ledger.EntryOf(p)
	if !ok || index != 1 || entry.Amount != 1000 {
		t.Fatalf("Expected first unclaimed entry at index 1, got ok=%v index=%d", ok, index)
	}

	// Once claimed, the lookup moves to the next unclaimed entry.
	entry.Claimed = true
	index, entry, ok = ledger.EntryOf(p)
	if !ok || index != 2 || entry.Amount != 300 {
		t.Fatalf("Expected next unclaimed entry at index 2, got ok=%v index=%d", ok, index)
	}

	entry.Claimed = true
	if _, _, ok := ledger.EntryOf(p); ok {
		t.Error("Expected no unclaimed entry left")
	}

	if _, _, ok := ledger.EntryOf(addr(9)); ok {
		t.Error("Expected no entry for unknown participant")
	}
}

func TestNormalizeLabel(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"Sports", "sports"},
		{"  SPORTS ", "sports"},
		{"politics", "politics"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeLabel(tt.in); got != tt.expected {
			t.Errorf("NormalizeLabel(%q) = %q, expected %q", tt.in, got, tt.expected)
		}
	}
}

func TestClaimID_Deterministic(t *testing.T) {
	creator := addr(1)
	fp := Fingerprint("it will rain tomorrow")

	if ClaimID(creator, fp) != ClaimID(creator, fp) {
		t.Error("Identical inputs must derive the same id")
	}
	if ClaimID(creator, fp) == ClaimID(addr(2), fp) {
		t.Error("Different creators must derive different ids")
	}
	if ClaimID(creator, fp) == ClaimID(creator, Fingerprint("other text")) {
		t.Error("Different fingerprints must derive different ids")
	}
}

func TestHoldingAddress_DistinctPerSide(t *testing.T) {
	id := ClaimID(addr(1), Fingerprint("x"))
	if HoldingAddress(id, SideA) == HoldingAddress(id, SideB) {
		t.Error("Sides must get distinct holding addresses")
	}
	if HoldingAddress(id, SideA) != HoldingAddress(id, SideA) {
		t.Error("Holding derivation must be deterministic")
	}
}
