// Package ledger talks to the content verification registry contract over an
// Ethereum JSON-RPC endpoint.
//
// The client never invents results: every identifier, block number and
// timestamp it returns comes from a receipt or a contract call.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sethvargo/go-retry"

	"verinews.io/verify/fingerprint"
	"verinews.io/verify/wallet"
)

// DefaultPollInterval is how often WaitReceipt asks the node for a receipt.
const DefaultPollInterval = 2 * time.Second

// Backend is the subset of an Ethereum node API the client uses.
// *ethclient.Client satisfies it.
type Backend interface {
	wallet.Sender
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

var _ Backend = (*ethclient.Client)(nil)

type Options struct {
	// ChainID pins the chain; nil asks the node once and caches the answer.
	ChainID *big.Int
	// GasLimit fixes the gas for verifyContent; zero estimates per call.
	GasLimit uint64
	// PollInterval applies to WaitReceipt; zero uses DefaultPollInterval.
	PollInterval time.Duration
}

// Client is bound to one registry contract deployment.
type Client struct {
	backend  Backend
	contract common.Address
	gasLimit uint64
	poll     time.Duration

	chainMu sync.Mutex
	chainID *big.Int
}

// Confirmation is what an included verifyContent transaction proves.
type Confirmation struct {
	TxHash         common.Hash
	VerificationID *big.Int
	Fingerprint    fingerprint.Fingerprint
	Creator        common.Address
	BlockNumber    uint64
	// Timestamp is the contract-recorded time, in seconds.
	Timestamp uint64
}

// Entry is the registry's view of a verification.
type Entry struct {
	VerificationID *big.Int
	Fingerprint    fingerprint.Fingerprint
	Timestamp      uint64
	Creator        common.Address
	Verified       bool
}

func New(backend Backend, contract common.Address, opts Options) (*Client, error) {
	if backend == nil {
		return nil, errors.New("ledger: backend is required")
	}
	if contract == (common.Address{}) {
		return nil, errors.New("ledger: contract address is required")
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	var chainID *big.Int
	if opts.ChainID != nil && opts.ChainID.Sign() > 0 {
		chainID = new(big.Int).Set(opts.ChainID)
	}
	return &Client{
		backend:  backend,
		contract: contract,
		gasLimit: opts.GasLimit,
		poll:     poll,
		chainID:  chainID,
	}, nil
}

// Dial connects to rpcURL and returns a client plus its close function.
func Dial(ctx context.Context, rpcURL string, contract common.Address, opts Options) (*Client, func(), error) {
	ec, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("ledger: dial %s: %w", rpcURL, err)
	}
	c, err := New(ec, contract, opts)
	if err != nil {
		ec.Close()
		return nil, nil, err
	}
	return c, ec.Close, nil
}

func (c *Client) Contract() common.Address { return c.contract }

// ChainID returns the configured chain or asks the node once.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	c.chainMu.Lock()
	defer c.chainMu.Unlock()
	if c.chainID != nil {
		return new(big.Int).Set(c.chainID), nil
	}
	id, err := c.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger: chain id: %w", err)
	}
	c.chainID = id
	return new(big.Int).Set(id), nil
}

// Head returns the node's latest block number.
func (c *Client) Head(ctx context.Context) (uint64, error) {
	n, err := c.backend.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("ledger: block number: %w", err)
	}
	return n, nil
}

// Submit signs and broadcasts verifyContent(fp, metadata) from the session's
// account. It returns as soon as the node accepts the transaction.
func (c *Client) Submit(ctx context.Context, session *wallet.Session, fp fingerprint.Fingerprint, metadata string) (*types.Transaction, error) {
	if fp.IsZero() {
		return nil, errors.New("ledger: zero fingerprint")
	}
	data, err := contractABI.Pack(MethodVerify, [32]byte(fp), metadata)
	if err != nil {
		return nil, fmt.Errorf("ledger: pack %s: %w", MethodVerify, err)
	}
	chainID, err := c.ChainID(ctx)
	if err != nil {
		return nil, err
	}

	return session.SignAndSend(ctx, c.backend, chainID, func(from common.Address, nonce uint64) (*types.Transaction, error) {
		gasPrice, err := c.backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("ledger: gas price: %w", err)
		}
		gas := c.gasLimit
		if gas == 0 {
			gas, err = c.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &c.contract, Data: data})
			if err != nil {
				return nil, fmt.Errorf("ledger: estimate gas: %w", err)
			}
		}
		to := c.contract
		return types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      gas,
			To:       &to,
			Value:    new(big.Int),
			Data:     data,
		}), nil
	})
}

// WaitReceipt blocks until the transaction is included or ctx is done.
// There is no internal deadline; the ledger decides confirmation latency.
func (c *Client) WaitReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	err := retry.Do(ctx, retry.NewConstant(c.poll), func(ctx context.Context) error {
		r, err := c.backend.TransactionReceipt(ctx, txHash)
		if errors.Is(err, ethereum.NotFound) || (err == nil && r == nil) {
			return retry.RetryableError(ethereum.NotFound)
		}
		if err != nil {
			return err
		}
		receipt = r
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("ledger: waiting for %s: %w", txHash.Hex(), ctxErr)
		}
		return nil, fmt.Errorf("ledger: receipt %s: %w", txHash.Hex(), err)
	}
	return receipt, nil
}

// Confirm interprets an included receipt for a submission of fp.
func (c *Client) Confirm(receipt *types.Receipt, fp fingerprint.Fingerprint) (Confirmation, error) {
	if receipt == nil {
		return Confirmation{}, errors.New("ledger: nil receipt")
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return Confirmation{}, fmt.Errorf("%w: %s", ErrReverted, receipt.TxHash.Hex())
	}
	ev := contractABI.Events[EventContentVerified]
	for _, lg := range receipt.Logs {
		if lg == nil || lg.Address != c.contract || len(lg.Topics) != 4 || lg.Topics[0] != ev.ID {
			continue
		}
		if fingerprint.Fingerprint(lg.Topics[2]) != fp {
			continue
		}
		vals, err := contractABI.Unpack(EventContentVerified, lg.Data)
		if err != nil {
			return Confirmation{}, fmt.Errorf("ledger: decode %s: %w", EventContentVerified, err)
		}
		ts, ok := vals[0].(*big.Int)
		if !ok || !ts.IsUint64() {
			return Confirmation{}, fmt.Errorf("ledger: bad %s timestamp", EventContentVerified)
		}
		block := lg.BlockNumber
		if receipt.BlockNumber != nil {
			block = receipt.BlockNumber.Uint64()
		}
		return Confirmation{
			TxHash:         receipt.TxHash,
			VerificationID: new(big.Int).SetBytes(lg.Topics[1].Bytes()),
			Fingerprint:    fp,
			Creator:        common.BytesToAddress(lg.Topics[3].Bytes()),
			BlockNumber:    block,
			Timestamp:      ts.Uint64(),
		}, nil
	}
	return Confirmation{}, fmt.Errorf("%w: %s", ErrNoEvent, receipt.TxHash.Hex())
}

// Read calls getVerification(id). A zero content hash means the registry has
// no such record; so does a revert.
func (c *Client) Read(ctx context.Context, id *big.Int) (Entry, error) {
	if id == nil || id.Sign() < 0 {
		return Entry{}, errors.New("ledger: invalid verification id")
	}
	data, err := contractABI.Pack(MethodGetVerification, id)
	if err != nil {
		return Entry{}, fmt.Errorf("ledger: pack %s: %w", MethodGetVerification, err)
	}
	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &c.contract, Data: data}, nil)
	if err != nil {
		if isRevert(err) {
			return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return Entry{}, fmt.Errorf("ledger: call %s: %w", MethodGetVerification, err)
	}
	vals, err := contractABI.Unpack(MethodGetVerification, out)
	if err != nil {
		return Entry{}, fmt.Errorf("ledger: decode %s: %w", MethodGetVerification, err)
	}
	if len(vals) != 4 {
		return Entry{}, fmt.Errorf("ledger: %s returned %d values", MethodGetVerification, len(vals))
	}
	hash, ok1 := vals[0].([32]byte)
	ts, ok2 := vals[1].(*big.Int)
	creator, ok3 := vals[2].(common.Address)
	verified, ok4 := vals[3].(bool)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return Entry{}, fmt.Errorf("ledger: unexpected %s output types", MethodGetVerification)
	}
	if hash == ([32]byte{}) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !ts.IsUint64() {
		return Entry{}, fmt.Errorf("ledger: timestamp out of range")
	}
	return Entry{
		VerificationID: new(big.Int).Set(id),
		Fingerprint:    fingerprint.Fingerprint(hash),
		Timestamp:      ts.Uint64(),
		Creator:        creator,
		Verified:       verified,
	}, nil
}
