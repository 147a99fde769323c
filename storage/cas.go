// Package storage defines the content-addressed store that mirrors
// verification records off-chain.
//
// Objects are keyed by the raw keccak-256 CID of their bytes, the same
// digest the ledger uses as a content fingerprint. See fingerprint.CID.
package storage

import (
	"github.com/ipfs/go-cid"

	"verinews.io/verify/fingerprint"
)

// CAS is a minimal content-addressable store.
//
// Contract:
// - Put is idempotent and returns Key(bytes).
// - Stored objects are immutable.
// - Get returns ErrNotFound when the CID is absent.
type CAS interface {
	Put(bytes []byte) (cid.Cid, error)
	Get(id cid.Cid) ([]byte, error)
	Has(id cid.Cid) bool
}

// Key returns the CID under which b is stored.
func Key(b []byte) cid.Cid { return fingerprint.CIDOf(b) }

// Check reports whether b is the object addressed by id.
func Check(id cid.Cid, b []byte) error {
	if !id.Defined() {
		return ErrInvalidCID
	}
	if !Key(b).Equals(id) {
		return ErrCIDMismatch
	}
	return nil
}
