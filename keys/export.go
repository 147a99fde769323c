package keys

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressFromPublicKey encodes a secp256k1 public key as a ledger address.
func AddressFromPublicKey(pub *ecdsa.PublicKey) (common.Address, error) {
	if pub == nil || pub.X == nil || pub.Y == nil {
		return common.Address{}, fmt.Errorf("public key is required")
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// ExportKey returns the public half of a stored key as 0x-prefixed
// uncompressed secp256k1 bytes. The seed never leaves the store.
func (ks *KeyStore) ExportKey(identifier, role string) (string, error) {
	seed, err := ks.LoadSeed("", identifier, role, "")
	if err != nil {
		return "", err
	}
	priv, err := PrivateKeyFromSeed(seed)
	if err != nil {
		return "", err
	}
	return hexutil.Encode(crypto.FromECDSAPub(&priv.PublicKey)), nil
}
