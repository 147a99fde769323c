package verify

import (
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"verinews.io/verify/fingerprint"
	"verinews.io/verify/metadata"
)

// Record is a confirmed verification. It exists only after the ledger
// included the submission and is never modified afterwards.
type Record struct {
	VerificationID string                  `cbor:"1,keyasint" json:"verificationId"`
	Fingerprint    fingerprint.Fingerprint `cbor:"2,keyasint" json:"fingerprint"`
	Metadata       metadata.Metadata       `cbor:"3,keyasint" json:"metadata"`
	TxHash         common.Hash             `cbor:"4,keyasint" json:"transactionHash"`
	Creator        common.Address          `cbor:"5,keyasint" json:"creator"`
	BlockNumber    uint64                  `cbor:"6,keyasint" json:"blockNumber"`
	// ConfirmedAt is the ledger timestamp in milliseconds since the epoch.
	ConfirmedAt int64 `cbor:"7,keyasint" json:"confirmedAt"`
}

func (r Record) ConfirmedTime() time.Time {
	return time.UnixMilli(r.ConfirmedAt).UTC()
}

// OnChainRecord is the registry's answer for an identifier.
type OnChainRecord struct {
	VerificationID string
	Fingerprint    fingerprint.Fingerprint
	Timestamp      time.Time
	Creator        common.Address
	Verified       bool
}

// CheckContent enforces the record invariant: content must hash to the
// recorded fingerprint.
func (r Record) CheckContent(content []byte) error {
	if !r.Fingerprint.Matches(content) {
		return newError(KindTampered, "check", "content does not match recorded fingerprint "+r.Fingerprint.String())
	}
	return nil
}

// ParseID parses a verification identifier: a decimal uint256, or 0x-hex.
func ParseID(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, newError(KindInvalidInput, "lookup", "verification id is required")
	}
	digits, base := s, 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		digits, base = s[2:], 16
	}
	id, ok := new(big.Int).SetString(digits, base)
	if !ok || digits == "" || id.Sign() < 0 || id.BitLen() > 256 {
		return nil, newError(KindInvalidInput, "lookup", "invalid verification id "+strconv.Quote(s))
	}
	return id, nil
}
