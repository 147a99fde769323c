package verify

import (
	"context"
	"math/big"
	"time"

	"github.com/sirupsen/logrus"

	"verinews.io/verify/ledger"
)

// Reader is the ledger surface used for lookups. *ledger.Client implements it.
type Reader interface {
	Read(ctx context.Context, id *big.Int) (ledger.Entry, error)
}

var _ Reader = (*ledger.Client)(nil)

// Registry is a read-only view of registered verifications. Lookups need no
// wallet.
type Registry struct {
	Ledger Reader
	Log    logrus.FieldLogger
}

// Lookup returns the on-chain record for id. Unknown identifiers are
// KindNotFound; a malformed id is KindInvalidInput.
func (r *Registry) Lookup(ctx context.Context, id string) (OnChainRecord, error) {
	n, err := ParseID(id)
	if err != nil {
		return OnChainRecord{}, err
	}
	return r.LookupID(ctx, n)
}

// LookupID is Lookup for an already parsed id. Ids must fit a uint256.
func (r *Registry) LookupID(ctx context.Context, id *big.Int) (OnChainRecord, error) {
	if id == nil || id.Sign() < 0 || id.BitLen() > 256 {
		return OnChainRecord{}, newError(KindInvalidInput, "lookup", "verification id must be a uint256")
	}
	if r.Ledger == nil {
		return OnChainRecord{}, newError(KindInternal, "lookup", "no ledger configured")
	}
	entry, err := r.Ledger.Read(ctx, id)
	if err != nil {
		if ledger.IsNotFound(err) {
			return OnChainRecord{}, wrapError(KindNotFound, "lookup", "no verification "+id.String(), err)
		}
		r.logger().WithError(err).WithField("verification", id.String()).Warn("registry read failed")
		return OnChainRecord{}, wrapError(KindUnavailable, "lookup", "registry unreachable", err)
	}
	return OnChainRecord{
		VerificationID: entry.VerificationID.String(),
		Fingerprint:    entry.Fingerprint,
		Timestamp:      time.Unix(int64(entry.Timestamp), 0).UTC(),
		Creator:        entry.Creator,
		Verified:       entry.Verified,
	}, nil
}

func (r *Registry) logger() logrus.FieldLogger {
	if r.Log != nil {
		return r.Log
	}
	return logrus.StandardLogger()
}
