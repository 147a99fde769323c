package keys

import (
	"crypto/ecdsa"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SeedSize is the length of a raw secp256k1 private key.
const SeedSize = 32

// maxDeriveAttempts bounds the search for a valid scalar. The chance that a
// keccak output is not a valid secp256k1 scalar is about 2^-128 per attempt.
const maxDeriveAttempts = 16

// PrivateKeyFromSeed converts a 32-byte seed into a secp256k1 private key.
func PrivateKeyFromSeed(seed []byte) (*ecdsa.PrivateKey, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	priv, err := crypto.ToECDSA(seed)
	if err != nil {
		return nil, fmt.Errorf("invalid secp256k1 seed: %w", err)
	}
	return priv, nil
}

// AddressFromSeed returns the ledger account address controlled by seed.
func AddressFromSeed(seed []byte) (common.Address, error) {
	priv, err := PrivateKeyFromSeed(seed)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(priv.PublicKey), nil
}

// DeriveRoleSeed deterministically derives a role-specific account seed from a
// root seed, so one root key can fund separate newsroom desks or devices.
func DeriveRoleSeed(rootSeed []byte, role string) ([]byte, error) {
	if len(rootSeed) != SeedSize {
		return nil, fmt.Errorf("root seed must be %d bytes", SeedSize)
	}
	if err := CheckRole(role); err != nil {
		return nil, err
	}

	var ctr [4]byte
	for i := uint32(0); i < maxDeriveAttempts; i++ {
		binary.BigEndian.PutUint32(ctr[:], i)
		sum := crypto.Keccak256(
			rootSeed,
			[]byte{0},
			[]byte("verinews-wallet-v1"),
			[]byte{0},
			[]byte("role:"+role),
			ctr[:],
		)
		if _, err := crypto.ToECDSA(sum); err == nil {
			return sum, nil
		}
	}
	return nil, errors.New("kdf did not produce a valid key")
}
