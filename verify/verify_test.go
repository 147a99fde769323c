package verify_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"verinews.io/verify/fingerprint"
	"verinews.io/verify/ledger"
	"verinews.io/verify/ledger/ledgertest"
	"verinews.io/verify/metadata"
	"verinews.io/verify/verify"
	"verinews.io/verify/wallet"
)

var contract = common.HexToAddress("0x00000000000000000000000000000000000c0de1")

var fixedNow = time.Date(2025, 3, 14, 9, 26, 53, 589_000_000, time.UTC)

type harness struct {
	backend   *ledgertest.Backend
	client    *ledger.Client
	session   *wallet.Session
	submitter *verify.Submitter
	registry  *verify.Registry
	tracker   *recordingTracker
	logs      *test.Hook
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	b := ledgertest.New(contract)
	c, err := ledger.New(b, contract, ledger.Options{PollInterval: time.Millisecond})
	if err != nil {
		t.Fatalf("ledger.New: %v", err)
	}
	seed := bytes.Repeat([]byte{0x11}, 32)
	signer, err := wallet.NewKeySigner(seed)
	if err != nil {
		t.Fatalf("NewKeySigner: %v", err)
	}
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	tr := &recordingTracker{}
	return &harness{
		backend: b,
		client:  c,
		session: wallet.NewSession(signer),
		submitter: &verify.Submitter{
			Chain:   c,
			Tracker: tr,
			Log:     logger,
			Now:     func() time.Time { return fixedNow },
		},
		registry: &verify.Registry{Ledger: c, Log: logger},
		tracker:  tr,
		logs:     hook,
	}
}

type recordingTracker struct {
	mu        sync.Mutex
	pending   []verify.Pending
	confirmed []verify.Record
	failed    []error
}

func (r *recordingTracker) Pending(_ context.Context, p verify.Pending) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, p)
	return nil
}

func (r *recordingTracker) Confirmed(_ context.Context, _ string, rec verify.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.confirmed = append(r.confirmed, rec)
	return nil
}

func (r *recordingTracker) Failed(_ context.Context, _ string, cause error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, cause)
	return errors.New("tracker down")
}

func TestSubmitRoundTrip(t *testing.T) {
	h := newHarness(t)
	content := []byte("raw video frames")
	ctx := context.Background()

	rec, err := h.submitter.Submit(ctx, h.session, bytes.NewReader(content), verify.Request{
		Title:       "  Flood in the valley ",
		Location:    "Porto",
		ContentType: "video/mp4",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	addr, _ := h.session.Address()
	if rec.Fingerprint != fingerprint.Sum(content) {
		t.Fatalf("record fingerprint %s does not match content", rec.Fingerprint)
	}
	if err := rec.CheckContent(content); err != nil {
		t.Fatalf("CheckContent: %v", err)
	}
	if rec.VerificationID != "1" || rec.Creator != addr || rec.BlockNumber != 1 {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.Metadata.Title != "Flood in the valley" || rec.Metadata.Creator != addr.Hex() {
		t.Fatalf("unexpected metadata %+v", rec.Metadata)
	}
	if rec.Metadata.SubmittedAt != fixedNow.UnixMilli() {
		t.Fatalf("SubmittedAt = %d", rec.Metadata.SubmittedAt)
	}
	if want := time.Date(2025, 1, 1, 0, 0, 2, 0, time.UTC); !rec.ConfirmedTime().Equal(want) {
		t.Fatalf("ConfirmedTime = %s, want %s", rec.ConfirmedTime(), want)
	}

	stored, ok := h.backend.Metadata(1)
	if !ok {
		t.Fatalf("ledger holds no metadata")
	}
	var md map[string]any
	if err := json.Unmarshal([]byte(stored), &md); err != nil {
		t.Fatalf("ledger metadata is not JSON: %v", err)
	}
	if md["contentHash"] != rec.Fingerprint.String() || md["title"] != "Flood in the valley" {
		t.Fatalf("unexpected ledger metadata %s", stored)
	}

	got, err := h.registry.Lookup(ctx, rec.VerificationID)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got.Fingerprint != rec.Fingerprint || got.Creator != addr || !got.Verified {
		t.Fatalf("unexpected on-chain record %+v", got)
	}
	if !got.Timestamp.Equal(rec.ConfirmedTime()) {
		t.Fatalf("on-chain timestamp %s != confirmed %s", got.Timestamp, rec.ConfirmedTime())
	}

	if len(h.tracker.pending) != 1 || len(h.tracker.confirmed) != 1 || len(h.tracker.failed) != 0 {
		t.Fatalf("tracker saw %d pending, %d confirmed, %d failed", len(h.tracker.pending), len(h.tracker.confirmed), len(h.tracker.failed))
	}
}

func TestSubmitNotConnectedMakesNoLedgerCall(t *testing.T) {
	h := newHarness(t)
	h.session.Disconnect()
	_, err := h.submitter.Submit(context.Background(), h.session, strings.NewReader("x"), verify.Request{Title: "t"})
	if !verify.IsKind(err, verify.KindNotConnected) {
		t.Fatalf("expected NotConnected, got %v", err)
	}
	if len(h.backend.Sent()) != 0 || h.backend.Calls() != 0 {
		t.Fatalf("ledger was contacted")
	}

	_, err = h.submitter.Submit(context.Background(), nil, strings.NewReader("x"), verify.Request{Title: "t"})
	if !verify.IsKind(err, verify.KindNotConnected) {
		t.Fatalf("nil session: expected NotConnected, got %v", err)
	}
}

func TestSubmitRejectsInvalidInputBeforeNetwork(t *testing.T) {
	h := newHarness(t)
	cases := []struct {
		name    string
		content io.Reader
		req     verify.Request
	}{
		{"empty title", strings.NewReader("x"), verify.Request{Title: "   "}},
		{"control chars", strings.NewReader("x"), verify.Request{Title: "a\x00b"}},
		{"bad content type", strings.NewReader("x"), verify.Request{Title: "t", ContentType: "not a type"}},
		{"other creator", strings.NewReader("x"), verify.Request{Title: "t", Creator: "0x0000000000000000000000000000000000000001"}},
		{"unreadable content", iotestErrReader{}, verify.Request{Title: "t"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.submitter.Submit(context.Background(), h.session, tc.content, tc.req)
			if !verify.IsKind(err, verify.KindInvalidInput) {
				t.Fatalf("expected InvalidInput, got %v", err)
			}
		})
	}
	_, err := h.submitter.Submit(context.Background(), h.session, strings.NewReader("x"), verify.Request{Title: ""})
	if !metadata.IsValidation(err) {
		t.Fatalf("expected wrapped validation error, got %v", err)
	}
	if len(h.backend.Sent()) != 0 {
		t.Fatalf("invalid requests reached the ledger")
	}
}

type iotestErrReader struct{}

func (iotestErrReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestSubmitExplicitCreatorMatchingSession(t *testing.T) {
	h := newHarness(t)
	addr, _ := h.session.Address()
	rec, err := h.submitter.Submit(context.Background(), h.session, strings.NewReader("x"), verify.Request{
		Title:   "t",
		Creator: strings.ToLower(addr.Hex()),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if rec.Metadata.Creator != addr.Hex() {
		t.Fatalf("creator = %q", rec.Metadata.Creator)
	}
}

func TestSubmitFailures(t *testing.T) {
	cases := []struct {
		name      string
		setup     func(b *ledgertest.Backend)
		broadcast bool
	}{
		{"send rejected", func(b *ledgertest.Backend) { b.SendErr = errors.New("insufficient funds") }, false},
		{"reverted", func(b *ledgertest.Backend) { b.Revert = true }, true},
		{"no event", func(b *ledgertest.Backend) { b.OmitEvent = true }, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			tc.setup(h.backend)
			sub := h.submitter.NewSubmission()
			_, err := sub.Run(context.Background(), h.session, strings.NewReader("x"), verify.Request{Title: "t"})
			if !verify.IsKind(err, verify.KindSubmissionFailed) {
				t.Fatalf("expected SubmissionFailed, got %v", err)
			}
			if sub.State() != verify.StateFailed || sub.Abandoned() {
				t.Fatalf("state = %s abandoned = %v", sub.State(), sub.Abandoned())
			}
			if _, rerr := sub.Result(); rerr == nil {
				t.Fatalf("Result should carry the error")
			}
			want := 0
			if tc.broadcast {
				want = 1
			}
			if len(h.tracker.pending) != want || len(h.tracker.failed) != want {
				t.Fatalf("tracker saw %d pending, %d failed; want %d each", len(h.tracker.pending), len(h.tracker.failed), want)
			}
			if got := hasLog(h, "tracker: record failure"); got != tc.broadcast {
				t.Fatalf("tracker failure logged = %v", got)
			}
		})
	}
}

func hasLog(h *harness, msg string) bool {
	for _, e := range h.logs.AllEntries() {
		if e.Message == msg {
			return true
		}
	}
	return false
}

func TestSubmitCancelledWhileWaiting(t *testing.T) {
	h := newHarness(t)
	h.backend.Hold = true
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	sub := h.submitter.NewSubmission()
	_, err := sub.Run(ctx, h.session, strings.NewReader("x"), verify.Request{Title: "t"})
	if !verify.IsKind(err, verify.KindSubmissionFailed) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected SubmissionFailed wrapping deadline, got %v", err)
	}
	if sub.TxHash() == (common.Hash{}) {
		t.Fatalf("tx hash should be known after broadcast")
	}
	if !sub.Abandoned() {
		t.Fatalf("submission should be abandoned")
	}
	// The ledger may still include the transaction, so the entry is left
	// pending rather than failed.
	if len(h.tracker.pending) != 1 || len(h.tracker.failed) != 0 {
		t.Fatalf("tracker saw %d pending, %d failed", len(h.tracker.pending), len(h.tracker.failed))
	}
	if hasLog(h, "tracker: record failure") {
		t.Fatalf("abandoned submission reported as failed")
	}
}

func TestSubmissionStates(t *testing.T) {
	h := newHarness(t)
	sub := h.submitter.NewSubmission()
	if sub.State() != verify.StateIdle || sub.ID() == "" {
		t.Fatalf("new submission: state %s id %q", sub.State(), sub.ID())
	}
	if _, err := sub.Run(context.Background(), h.session, strings.NewReader("x"), verify.Request{Title: "t"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sub.State() != verify.StateConfirmed {
		t.Fatalf("state = %s", sub.State())
	}
	if _, err := sub.Run(context.Background(), h.session, strings.NewReader("x"), verify.Request{Title: "t"}); !verify.IsKind(err, verify.KindInternal) {
		t.Fatalf("reuse: expected Internal, got %v", err)
	}
	if other := h.submitter.NewSubmission(); other.ID() == sub.ID() {
		t.Fatalf("submission ids collide")
	}
}

func TestConcurrentSubmissionsGetDistinctIDs(t *testing.T) {
	h := newHarness(t)
	const n = 8
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, err := h.submitter.Submit(context.Background(), h.session, strings.NewReader(strings.Repeat("x", i+1)), verify.Request{Title: "t"})
			if err != nil {
				t.Errorf("Submit %d: %v", i, err)
				return
			}
			ids <- rec.VerificationID
		}(i)
	}
	wg.Wait()
	close(ids)
	seen := map[string]bool{}
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate verification id %s", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Fatalf("got %d ids", len(seen))
	}
}

func TestLookup(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.registry.Lookup(ctx, "999"); !verify.IsKind(err, verify.KindNotFound) {
		t.Fatalf("unknown id: expected NotFound, got %v", err)
	}
	for _, bad := range []string{"", "abc", "-1", "0x", "1_000"} {
		if _, err := h.registry.Lookup(ctx, bad); !verify.IsKind(err, verify.KindInvalidInput) {
			t.Fatalf("Lookup(%q): expected InvalidInput, got %v", bad, err)
		}
	}
	h.backend.CallErr = errors.New("connection refused")
	if _, err := h.registry.Lookup(ctx, "1"); !verify.IsKind(err, verify.KindUnavailable) {
		t.Fatalf("transport failure: expected Unavailable, got %v", err)
	}
}

func TestLookupIDRejectsOutOfRange(t *testing.T) {
	h := newHarness(t)
	tooBig := new(big.Int).Lsh(big.NewInt(1), 256)
	for _, id := range []*big.Int{nil, big.NewInt(-1), tooBig} {
		if _, err := h.registry.LookupID(context.Background(), id); !verify.IsKind(err, verify.KindInvalidInput) {
			t.Fatalf("LookupID(%v): expected InvalidInput, got %v", id, err)
		}
	}
}

func TestLookupHexID(t *testing.T) {
	h := newHarness(t)
	if _, err := h.submitter.Submit(context.Background(), h.session, strings.NewReader("x"), verify.Request{Title: "t"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	rec, err := h.registry.Lookup(context.Background(), "0x01")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if rec.VerificationID != "1" {
		t.Fatalf("VerificationID = %q", rec.VerificationID)
	}
}

func TestVerifierCheck(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	original := []byte("press photo")
	rec, err := h.submitter.Submit(ctx, h.session, bytes.NewReader(original), verify.Request{Title: "photo", ContentType: "image/jpeg"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	v := &verify.Verifier{Registry: h.registry}
	if _, err := v.Check(ctx, bytes.NewReader(original), rec.VerificationID); err != nil {
		t.Fatalf("Check original: %v", err)
	}

	edited := append([]byte(nil), original...)
	edited[0] ^= 0x01
	got, err := v.Check(ctx, bytes.NewReader(edited), rec.VerificationID)
	if !verify.IsKind(err, verify.KindTampered) {
		t.Fatalf("edited content: expected Tampered, got %v", err)
	}
	if got.Fingerprint != rec.Fingerprint {
		t.Fatalf("Tampered result should still carry the registered record")
	}
	if err := rec.CheckContent(edited); !verify.IsKind(err, verify.KindTampered) {
		t.Fatalf("CheckContent: expected Tampered, got %v", err)
	}

	if _, err := v.Check(ctx, bytes.NewReader(original), "77"); !verify.IsKind(err, verify.KindNotFound) {
		t.Fatalf("unknown id: expected NotFound, got %v", err)
	}
}

func TestErrorFormatting(t *testing.T) {
	cause := errors.New("boom")
	err := &verify.Error{Kind: verify.KindSubmissionFailed, Op: "submit", Message: "rejected", Cause: cause}
	if got := err.Error(); got != "submit SubmissionFailed: rejected: boom" {
		t.Fatalf("Error() = %q", got)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("cause not unwrapped")
	}
	if verify.KindOf(err) != verify.KindSubmissionFailed || verify.KindOf(cause) != "" {
		t.Fatalf("KindOf mismatch")
	}
}
