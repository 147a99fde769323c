// Package wallet holds the signing identity used for ledger submissions.
//
// A Session is passed explicitly to every submission instead of living in
// process-global state. It exposes only what the verification workflow
// consumes: whether an identity is connected, and sign-and-send.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	ErrNotConnected = errors.New("wallet: not connected")
	ErrSignRejected = errors.New("wallet: signature rejected")
)

// Sender is the part of a ledger node that the session needs to broadcast
// signed transactions.
type Sender interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Session is a connect/disconnect handle around a Signer.
// The zero value is a disconnected session.
type Session struct {
	mu     sync.RWMutex
	signer Signer

	// sendMu serializes nonce lookup, signing and broadcast so concurrent
	// submissions from one account do not reuse a nonce.
	sendMu sync.Mutex
}

// NewSession returns a session already connected to signer.
func NewSession(signer Signer) *Session {
	return &Session{signer: signer}
}

// Connect attaches signer, replacing any previous identity.
func (s *Session) Connect(signer Signer) error {
	if signer == nil {
		return fmt.Errorf("wallet: nil signer")
	}
	s.mu.Lock()
	s.signer = signer
	s.mu.Unlock()
	return nil
}

func (s *Session) Disconnect() {
	s.mu.Lock()
	s.signer = nil
	s.mu.Unlock()
}

// Connected reports whether a signing identity is available. A nil session is
// never connected.
func (s *Session) Connected() bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.signer != nil
}

// Address returns the connected account.
func (s *Session) Address() (common.Address, error) {
	signer, err := s.current()
	if err != nil {
		return common.Address{}, err
	}
	return signer.Address(), nil
}

func (s *Session) current() (Signer, error) {
	if s == nil {
		return nil, ErrNotConnected
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.signer == nil {
		return nil, ErrNotConnected
	}
	return s.signer, nil
}

// BuildFunc returns the unsigned transaction to send for the given nonce.
type BuildFunc func(from common.Address, nonce uint64) (*types.Transaction, error)

// SignAndSend builds, signs and broadcasts a transaction from the connected
// account. It returns the signed transaction once the node accepted it into
// its pool; inclusion is the caller's concern.
func (s *Session) SignAndSend(ctx context.Context, backend Sender, chainID *big.Int, build BuildFunc) (*types.Transaction, error) {
	signer, err := s.current()
	if err != nil {
		return nil, err
	}
	if backend == nil {
		return nil, fmt.Errorf("wallet: nil backend")
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	from := signer.Address()
	nonce, err := backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("wallet: nonce for %s: %w", from.Hex(), err)
	}
	unsigned, err := build(from, nonce)
	if err != nil {
		return nil, err
	}
	signed, err := signer.SignTx(unsigned, chainID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignRejected, err)
	}
	if err := backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("wallet: send transaction: %w", err)
	}
	return signed, nil
}
