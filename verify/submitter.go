// Package verify implements the content verification workflow: fingerprint
// the content, build its metadata, register both on the ledger through the
// caller's wallet session, and read registrations back.
package verify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"verinews.io/verify/fingerprint"
	"verinews.io/verify/ledger"
	"verinews.io/verify/metadata"
	"verinews.io/verify/wallet"
)

// Chain is the ledger surface used for submissions. *ledger.Client
// implements it.
type Chain interface {
	Submit(ctx context.Context, session *wallet.Session, fp fingerprint.Fingerprint, metadata string) (*types.Transaction, error)
	WaitReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	Confirm(receipt *types.Receipt, fp fingerprint.Fingerprint) (ledger.Confirmation, error)
}

var _ Chain = (*ledger.Client)(nil)

// Tracker observes submissions for local bookkeeping. Tracker errors are
// logged and never change the outcome of a submission. Failed is only
// called for a ledger outcome; a submission abandoned while waiting for
// inclusion gets no further call and stays pending.
type Tracker interface {
	Pending(ctx context.Context, p Pending) error
	Confirmed(ctx context.Context, submissionID string, rec Record) error
	Failed(ctx context.Context, submissionID string, cause error) error
}

// Pending describes a transaction that was broadcast but not yet included.
type Pending struct {
	SubmissionID string
	Fingerprint  fingerprint.Fingerprint
	Metadata     metadata.Metadata
	TxHash       common.Hash
}

// Request is the user-supplied part of a submission.
type Request struct {
	Title       string
	Location    string
	ContentType string
	// Creator defaults to the session's account. If set, it must name that
	// account.
	Creator string
}

// Submitter registers content on the ledger.
type Submitter struct {
	Chain   Chain
	Tracker Tracker
	Log     logrus.FieldLogger
	// Now stamps metadata; nil uses time.Now.
	Now func() time.Time
}

// Submit runs a new Submission to completion.
func (s *Submitter) Submit(ctx context.Context, session *wallet.Session, content io.Reader, req Request) (Record, error) {
	return s.NewSubmission().Run(ctx, session, content, req)
}

// NewSubmission returns an Idle submission bound to s.
func (s *Submitter) NewSubmission() *Submission {
	return &Submission{id: uuid.NewString(), submitter: s}
}

// State is a submission's position in Idle → Submitting → {Confirmed | Failed}.
type State int

const (
	StateIdle State = iota
	StateSubmitting
	StateConfirmed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitting:
		return "submitting"
	case StateConfirmed:
		return "confirmed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Submission is a single attempt. It runs at most once; after Failed the
// caller starts a new Submission to try again.
type Submission struct {
	id        string
	submitter *Submitter

	mu        sync.Mutex
	state     State
	txHash    common.Hash
	record    Record
	err       error
	abandoned bool
}

func (sub *Submission) ID() string { return sub.id }

func (sub *Submission) State() State {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return sub.state
}

// TxHash is set once the transaction has been broadcast.
func (sub *Submission) TxHash() common.Hash {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return sub.txHash
}

// Abandoned reports whether the caller gave up waiting for a broadcast
// transaction. The ledger may still include it.
func (sub *Submission) Abandoned() bool {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return sub.abandoned
}

// Result returns the outcome of a finished submission.
func (sub *Submission) Result() (Record, error) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return sub.record, sub.err
}

func (sub *Submission) begin() bool {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.state != StateIdle {
		return false
	}
	sub.state = StateSubmitting
	return true
}

// Run hashes content, builds metadata, submits both and waits for inclusion.
//
// Checks happen in order and stop at the first failure: wallet connection,
// content readability, metadata policy. None of these touch the network.
func (sub *Submission) Run(ctx context.Context, session *wallet.Session, content io.Reader, req Request) (Record, error) {
	if !sub.begin() {
		return Record{}, newError(KindInternal, "submit", "submission already started")
	}
	s := sub.submitter
	log := s.logger().WithField("submission", sub.id)
	log.WithField("state", StateSubmitting).Debug("submission started")

	rec, err := sub.run(ctx, log, session, content, req)

	sub.mu.Lock()
	if err != nil {
		sub.state = StateFailed
		sub.err = err
	} else {
		sub.state = StateConfirmed
		sub.record = rec
	}
	sub.mu.Unlock()

	if err != nil {
		if sub.Abandoned() {
			log.WithError(err).WithField("state", StateFailed).Warn("stopped waiting for inclusion; entry stays pending")
			return Record{}, err
		}
		log.WithError(err).WithField("state", StateFailed).Warn("submission failed")
		if s.Tracker != nil && sub.TxHash() != (common.Hash{}) {
			if terr := s.Tracker.Failed(context.WithoutCancel(ctx), sub.id, err); terr != nil {
				log.WithError(terr).Warn("tracker: record failure")
			}
		}
		return Record{}, err
	}
	log.WithFields(logrus.Fields{
		"state":        StateConfirmed,
		"verification": rec.VerificationID,
		"block":        rec.BlockNumber,
	}).Info("submission confirmed")
	if s.Tracker != nil {
		if terr := s.Tracker.Confirmed(context.WithoutCancel(ctx), sub.id, rec); terr != nil {
			log.WithError(terr).Warn("tracker: record confirmation")
		}
	}
	return rec, nil
}

func (sub *Submission) run(ctx context.Context, log logrus.FieldLogger, session *wallet.Session, content io.Reader, req Request) (Record, error) {
	s := sub.submitter
	if s.Chain == nil {
		return Record{}, newError(KindInternal, "submit", "no ledger configured")
	}
	addr, err := session.Address()
	if err != nil {
		return Record{}, wrapError(KindNotConnected, "submit", "connect a wallet to verify content", err)
	}

	fp, err := fingerprint.FromReader(content)
	if err != nil {
		return Record{}, wrapError(KindInvalidInput, "submit", "content is not readable", err)
	}

	if creator := strings.TrimSpace(req.Creator); creator != "" && !strings.EqualFold(creator, addr.Hex()) {
		return Record{}, newError(KindInvalidInput, "submit", fmt.Sprintf("creator %s is not the connected account %s", creator, addr.Hex()))
	}
	payload, err := metadata.Build(metadata.Request{
		Fingerprint: fp,
		Title:       req.Title,
		Location:    req.Location,
		ContentType: req.ContentType,
		Creator:     addr.Hex(),
		SubmittedAt: s.now(),
	})
	if err != nil {
		return Record{}, wrapError(KindInvalidInput, "submit", "invalid metadata", err)
	}

	log = log.WithField("fingerprint", fp.String())
	tx, err := s.Chain.Submit(ctx, session, fp, payload.String())
	if err != nil {
		if errors.Is(err, wallet.ErrNotConnected) {
			return Record{}, wrapError(KindNotConnected, "submit", "wallet disconnected", err)
		}
		return Record{}, wrapError(KindSubmissionFailed, "submit", "transaction was not accepted", err)
	}

	sub.mu.Lock()
	sub.txHash = tx.Hash()
	sub.mu.Unlock()
	log = log.WithField("tx", tx.Hash().Hex())
	log.Info("transaction sent, awaiting inclusion")
	if s.Tracker != nil {
		p := Pending{SubmissionID: sub.id, Fingerprint: fp, Metadata: payload.Metadata, TxHash: tx.Hash()}
		if terr := s.Tracker.Pending(ctx, p); terr != nil {
			log.WithError(terr).Warn("tracker: record pending")
		}
	}

	receipt, err := s.Chain.WaitReceipt(ctx, tx.Hash())
	if err != nil {
		if ctx.Err() != nil {
			sub.mu.Lock()
			sub.abandoned = true
			sub.mu.Unlock()
		}
		return Record{}, wrapError(KindSubmissionFailed, "submit", "no confirmation for "+tx.Hash().Hex(), err)
	}
	conf, err := s.Chain.Confirm(receipt, fp)
	if err != nil {
		return Record{}, wrapError(KindSubmissionFailed, "submit", "ledger did not register the content", err)
	}

	return Record{
		VerificationID: conf.VerificationID.String(),
		Fingerprint:    fp,
		Metadata:       payload.Metadata,
		TxHash:         conf.TxHash,
		Creator:        conf.Creator,
		BlockNumber:    conf.BlockNumber,
		ConfirmedAt:    int64(conf.Timestamp) * 1000,
	}, nil
}

func (s *Submitter) logger() logrus.FieldLogger {
	if s.Log != nil {
		return s.Log
	}
	return logrus.StandardLogger()
}

func (s *Submitter) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
