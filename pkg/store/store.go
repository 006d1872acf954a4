// Package store persists claim records in a pebble key-value database. The
// layout is one JSON-encoded record per claim under a "claim/" prefix; the
// two pool ledgers are inline in the record.
package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"

	"github.com/phenomenon0/claim-escrow/pkg/escrow"
)

// ErrClaimNotFound is returned when a claim id has no persisted record.
var ErrClaimNotFound = errors.New("claim not found in store")

var claimPrefix = []byte("claim/")

// ClaimStore persists claims in pebble.
type ClaimStore struct {
	db *pebble.DB
}

// Open opens (or creates) a claim store at path.
func Open(path string) (*ClaimStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open claim store: %w", err)
	}
	return &ClaimStore{db: db}, nil
}

// Close closes the underlying database.
func (s *ClaimStore) Close() error {
	return s.db.Close()
}

// PutClaim writes a claim record, overwriting any previous revision.
func (s *ClaimStore) PutClaim(c *escrow.Claim) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal claim %s: %w", c.ID.Hex(), err)
	}
	if err := s.db.Set(claimKey(c.ID), data, pebble.Sync); err != nil {
		return fmt.Errorf("store claim %s: %w", c.ID.Hex(), err)
	}
	return nil
}

// GetClaim reads one claim record by id.
func (s *ClaimStore) GetClaim(id common.Hash) (*escrow.Claim, error) {
	data, closer, err := s.db.Get(claimKey(id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrClaimNotFound
		}
		return nil, fmt.Errorf("get claim %s: %w", id.Hex(), err)
	}
	defer closer.Close()

	var c escrow.Claim
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("unmarshal claim %s: %w", id.Hex(), err)
	}
	return &c, nil
}

// LoadClaims reads every persisted claim. Used once at startup to restore
// engine state.
func (s *ClaimStore) LoadClaims() ([]*escrow.Claim, error) {
	upper := append(append([]byte{}, claimPrefix...), 0xff)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: claimPrefix,
		UpperBound: upper,
	})
	if err != nil {
		return nil, fmt.Errorf("create iterator: %w", err)
	}
	defer iter.Close()

	var claims []*escrow.Claim
	for iter.First(); iter.Valid(); iter.Next() {
		var c escrow.Claim
		if err := json.Unmarshal(iter.Value(), &c); err != nil {
			return nil, fmt.Errorf("unmarshal claim record %q: %w", iter.Key(), err)
		}
		claims = append(claims, &c)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate claims: %w", err)
	}
	return claims, nil
}

func claimKey(id common.Hash) []byte {
	return append(append([]byte{}, claimPrefix...), id.Bytes()...)
}
