package fingerprint

import (
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// CID returns the CIDv1 ("raw" multicodec, keccak-256 multihash) that
// addresses the same bytes f was computed from.
//
// Every content-addressed store in this module keys objects by this CID, so a
// stored object and its ledger fingerprint are interchangeable identifiers.
func (f Fingerprint) CID() cid.Cid {
	mh, err := multihash.Encode(f[:], multihash.KECCAK_256)
	if err != nil {
		// Encode only fails for unknown codes or oversized digests.
		return cid.Undef
	}
	return cid.NewCidV1(cid.Raw, mh)
}

// CIDOf returns the CID of data.
func CIDOf(data []byte) cid.Cid {
	return Sum(data).CID()
}

// FromCID extracts the fingerprint from a raw keccak-256 CID.
func FromCID(id cid.Cid) (Fingerprint, error) {
	if !id.Defined() {
		return Zero, fmt.Errorf("fingerprint: undefined cid")
	}
	if id.Type() != cid.Raw {
		return Zero, fmt.Errorf("fingerprint: cid codec %#x is not raw", id.Type())
	}
	dec, err := multihash.Decode(id.Hash())
	if err != nil {
		return Zero, fmt.Errorf("fingerprint: %w", err)
	}
	if dec.Code != multihash.KECCAK_256 {
		return Zero, fmt.Errorf("fingerprint: multihash %s is not keccak-256", dec.Name)
	}
	if len(dec.Digest) != Size {
		return Zero, fmt.Errorf("fingerprint: digest length %d", len(dec.Digest))
	}
	var f Fingerprint
	copy(f[:], dec.Digest)
	return f, nil
}
