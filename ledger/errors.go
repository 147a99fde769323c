package ledger

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

// revertCode is the JSON-RPC error code nodes use for an EVM revert.
const revertCode = 3

var (
	// ErrNotFound is returned by Read when the contract has no record for an
	// identifier.
	ErrNotFound = errors.New("ledger: verification not found")
	// ErrReverted is returned when a transaction was included with a failed
	// status.
	ErrReverted = errors.New("ledger: transaction reverted")
	// ErrNoEvent is returned when a successful receipt lacks the
	// ContentVerified event for the submitted fingerprint.
	ErrNoEvent = errors.New("ledger: receipt has no ContentVerified event")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// isRevert reports whether an eth_call error is an EVM revert rather than a
// transport failure. Nodes that answer without code 3 are matched on the
// message instead.
func isRevert(err error) bool {
	if err == nil {
		return false
	}
	var re rpc.Error
	if errors.As(err, &re) && re.ErrorCode() == revertCode {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}
