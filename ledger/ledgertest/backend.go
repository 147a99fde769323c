// Package ledgertest provides an in-memory registry contract for tests.
//
// Backend executes verifyContent/getVerification against a map, signs nothing
// itself, and verifies sender signatures the way a node would. Knobs on the
// struct inject the failure modes a real network produces.
package ledgertest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"verinews.io/verify/ledger"
)

// DefaultChainID is Base Sepolia.
var DefaultChainID = big.NewInt(84532)

type record struct {
	hash     [32]byte
	metadata string
	creator  common.Address
	ts       uint64
}

// Backend implements ledger.Backend.
type Backend struct {
	Contract common.Address
	ChainIDV *big.Int
	// Genesis is the timestamp of block zero; each mined block adds two seconds.
	Genesis time.Time

	// SendErr fails SendTransaction.
	SendErr error
	// Revert mines submissions with a failed status.
	Revert bool
	// OmitEvent mines successful receipts without the ContentVerified log.
	OmitEvent bool
	// ReceiptDelay is how many TransactionReceipt calls return NotFound before
	// a mined receipt is visible.
	ReceiptDelay int
	// Hold withholds all receipts until Release is called.
	Hold bool
	// CallErr fails CallContract.
	CallErr error

	mu        sync.Mutex
	block     uint64
	nonces    map[common.Address]uint64
	records   map[uint64]record
	nextID    uint64
	receipts  map[common.Hash]*types.Receipt
	polls     map[common.Hash]int
	sent      []*types.Transaction
	callCount int
}

var _ ledger.Backend = (*Backend)(nil)

// New returns a backend for a contract at contract on DefaultChainID.
func New(contract common.Address) *Backend {
	return &Backend{
		Contract: contract,
		ChainIDV: new(big.Int).Set(DefaultChainID),
		Genesis:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (b *Backend) init() {
	if b.nonces == nil {
		b.nonces = map[common.Address]uint64{}
		b.records = map[uint64]record{}
		b.receipts = map[common.Hash]*types.Receipt{}
		b.polls = map[common.Hash]int{}
		b.nextID = 1
	}
}

func (b *Backend) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).Set(b.ChainIDV), nil
}

func (b *Backend) BlockNumber(context.Context) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.block, nil
}

func (b *Backend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000), nil
}

func (b *Backend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 120_000, nil
}

func (b *Backend) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.init()
	return b.nonces[account], nil
}

// SendTransaction validates the signature and nonce, executes the call and
// mines it into its own block.
func (b *Backend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.init()
	if b.SendErr != nil {
		return b.SendErr
	}
	from, err := types.Sender(types.LatestSignerForChainID(b.ChainIDV), tx)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	if want := b.nonces[from]; tx.Nonce() != want {
		return fmt.Errorf("nonce too low: have %d want %d", tx.Nonce(), want)
	}
	if tx.To() == nil || *tx.To() != b.Contract {
		return errors.New("unexpected destination")
	}
	b.nonces[from]++
	b.sent = append(b.sent, tx)
	b.block++

	receipt := &types.Receipt{
		Type:        tx.Type(),
		TxHash:      tx.Hash(),
		BlockNumber: new(big.Int).SetUint64(b.block),
		GasUsed:     tx.Gas(),
		Status:      types.ReceiptStatusSuccessful,
	}
	if b.Revert {
		receipt.Status = types.ReceiptStatusFailed
		b.receipts[tx.Hash()] = receipt
		return nil
	}

	hash, metadata, err := decodeVerify(tx.Data())
	if err != nil {
		receipt.Status = types.ReceiptStatusFailed
		b.receipts[tx.Hash()] = receipt
		return nil
	}
	id := b.nextID
	b.nextID++
	ts := b.blockTime()
	b.records[id] = record{hash: hash, metadata: metadata, creator: from, ts: ts}

	if !b.OmitEvent {
		abi := ledger.ABI()
		ev := abi.Events[ledger.EventContentVerified]
		data, err := ev.Inputs.NonIndexed().Pack(new(big.Int).SetUint64(ts))
		if err != nil {
			return err
		}
		receipt.Logs = []*types.Log{{
			Address: b.Contract,
			Topics: []common.Hash{
				ev.ID,
				common.BigToHash(new(big.Int).SetUint64(id)),
				common.Hash(hash),
				common.BytesToHash(from.Bytes()),
			},
			Data:        data,
			BlockNumber: b.block,
			TxHash:      tx.Hash(),
		}}
	}
	b.receipts[tx.Hash()] = receipt
	return nil
}

func (b *Backend) blockTime() uint64 {
	return uint64(b.Genesis.Unix()) + 2*b.block
}

func (b *Backend) TransactionReceipt(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.init()
	r, ok := b.receipts[txHash]
	if !ok || b.Hold {
		return nil, ethereum.NotFound
	}
	if b.polls[txHash] < b.ReceiptDelay {
		b.polls[txHash]++
		return nil, ethereum.NotFound
	}
	return r, nil
}

// Release makes withheld receipts visible.
func (b *Backend) Release() {
	b.mu.Lock()
	b.Hold = false
	b.mu.Unlock()
}

func (b *Backend) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.init()
	b.callCount++
	if b.CallErr != nil {
		return nil, b.CallErr
	}
	if call.To == nil || *call.To != b.Contract {
		return nil, nil
	}
	abi := ledger.ABI()
	if len(call.Data) < 4 {
		return nil, errors.New("execution reverted")
	}
	method, err := abi.MethodById(call.Data[:4])
	if err != nil || method.Name != ledger.MethodGetVerification {
		return nil, errors.New("execution reverted")
	}
	args, err := method.Inputs.Unpack(call.Data[4:])
	if err != nil {
		return nil, errors.New("execution reverted")
	}
	id := args[0].(*big.Int)
	var rec record
	if id.IsUint64() {
		rec = b.records[id.Uint64()]
	}
	verified := rec.hash != [32]byte{}
	return method.Outputs.Pack(rec.hash, new(big.Int).SetUint64(rec.ts), rec.creator, verified)
}

func decodeVerify(data []byte) ([32]byte, string, error) {
	abi := ledger.ABI()
	method := abi.Methods[ledger.MethodVerify]
	if len(data) < 4 || !bytes.Equal(data[:4], method.ID) {
		return [32]byte{}, "", errors.New("unknown selector")
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return [32]byte{}, "", err
	}
	return args[0].([32]byte), args[1].(string), nil
}

// Sent returns the transactions accepted so far.
func (b *Backend) Sent() []*types.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*types.Transaction(nil), b.sent...)
}

// Calls returns how many CallContract requests were made.
func (b *Backend) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.callCount
}

// Metadata returns the metadata string stored for id.
func (b *Backend) Metadata(id uint64) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.records[id]
	return rec.metadata, ok
}
