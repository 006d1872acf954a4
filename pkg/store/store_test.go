package store

import (
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/phenomenon0/claim-escrow/pkg/escrow"
)

func newTestStore(t *testing.T) *ClaimStore {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testClaim(text string) *escrow.Claim {
	creator := common.BytesToAddress([]byte{1})
	fp := escrow.Fingerprint(text)
	id := escrow.ClaimID(creator, fp)
	now := time.Now().UTC().Truncate(time.Second)

	c := &escrow.Claim{
		ID:          id,
		Creator:     creator,
		Fingerprint: fp,
		Deadline:    now.Add(24 * time.Hour),
		Category:    "science",
		Status:      escrow.StatusOpen,
		Holdings: [2]common.Address{
			escrow.HoldingAddress(id, escrow.SideA),
			escrow.HoldingAddress(id, escrow.SideB),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	c.Pool(escrow.SideA).Append(creator, 1000, escrow.OddsScale)
	return c
}

func TestClaimStore_PutGet(t *testing.T) {
	s := newTestStore(t)
	claim := testClaim("the sky is blue")

	if err := s.PutClaim(claim); err != nil {
		t.Fatalf("PutClaim failed: %v", err)
	}

	loaded, err := s.GetClaim(claim.ID)
	if err != nil {
		t.Fatalf("GetClaim failed: %v", err)
	}

	if loaded.ID != claim.ID {
		t.Errorf("Expected id %s, got %s", claim.ID.Hex(), loaded.ID.Hex())
	}
	if loaded.Status != escrow.StatusOpen {
		t.Errorf("Expected OPEN, got %s", loaded.Status)
	}
	if loaded.Pool(escrow.SideA).Total != 1000 {
		t.Errorf("Expected side-A total 1000, got %d", loaded.Pool(escrow.SideA).Total)
	}
	if loaded.Pool(escrow.SideA).Len() != 1 {
		t.Errorf("Expected 1 side-A entry, got %d", loaded.Pool(escrow.SideA).Len())
	}
}

func TestClaimStore_GetMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetClaim(common.HexToHash("0xdead"))
	if !errors.Is(err, ErrClaimNotFound) {
		t.Fatalf("Expected ErrClaimNotFound, got %v", err)
	}
}

func TestClaimStore_PutOverwrites(t *testing.T) {
	s := newTestStore(t)
	claim := testClaim("mutable status")

	if err := s.PutClaim(claim); err != nil {
		t.Fatalf("PutClaim failed: %v", err)
	}

	claim.Status = escrow.StatusLocked
	if err := s.PutClaim(claim); err != nil {
		t.Fatalf("Second PutClaim failed: %v", err)
	}

	loaded, err := s.GetClaim(claim.ID)
	if err != nil {
		t.Fatalf("GetClaim failed: %v", err)
	}
	if loaded.Status != escrow.StatusLocked {
		t.Errorf("Expected LOCKED after overwrite, got %s", loaded.Status)
	}
}

func TestClaimStore_LoadClaims(t *testing.T) {
	s := newTestStore(t)

	texts := []string{"claim one", "claim two", "claim three"}
	for _, text := range texts {
		if err := s.PutClaim(testClaim(text)); err != nil {
			t.Fatalf("PutClaim failed: %v", err)
		}
	}

	claims, err := s.LoadClaims()
	if err != nil {
		t.Fatalf("LoadClaims failed: %v", err)
	}
	if len(claims) != len(texts) {
		t.Fatalf("Expected %d claims, got %d", len(texts), len(claims))
	}
}

func TestClaimStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	claim := testClaim("durable")
	if err := s.PutClaim(claim); err != nil {
		t.Fatalf("PutClaim failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s, err = Open(dir)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer s.Close()

	loaded, err := s.GetClaim(claim.ID)
	if err != nil {
		t.Fatalf("GetClaim after reopen failed: %v", err)
	}
	if loaded.Fingerprint != claim.Fingerprint {
		t.Error("Reloaded claim does not match")
	}
}
