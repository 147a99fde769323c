package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"verinews.io/verify/keys"
)

// Signer authorizes ledger transactions for one account.
//
// Implementations may refuse to sign (for example a hardware wallet whose
// user declined); they report that by returning an error, which the caller
// surfaces as a failed submission.
type Signer interface {
	Address() common.Address
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// KeySigner signs with an in-process secp256k1 key.
type KeySigner struct {
	priv *ecdsa.PrivateKey
	addr common.Address
}

var _ Signer = (*KeySigner)(nil)

// NewKeySigner builds a signer from a raw 32-byte seed.
func NewKeySigner(seed []byte) (*KeySigner, error) {
	priv, err := keys.PrivateKeyFromSeed(seed)
	if err != nil {
		return nil, err
	}
	return &KeySigner{priv: priv, addr: crypto.PubkeyToAddress(priv.PublicKey)}, nil
}

func (s *KeySigner) Address() common.Address { return s.addr }

func (s *KeySigner) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if chainID == nil {
		return nil, fmt.Errorf("wallet: chain id is required")
	}
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), s.priv)
}
