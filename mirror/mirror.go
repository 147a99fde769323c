// Package mirror keeps a local copy of confirmed verifications: record bodies
// in a content-addressed store and a searchable SQLite index over them.
//
// The ledger stays authoritative. A mirrored record is only a cache; Get
// verifies the bytes against their CID and the record against its own
// fingerprint field before returning it.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ipfs/go-cid"
	"github.com/sirupsen/logrus"

	"verinews.io/verify/storage"
	"verinews.io/verify/storage/bundle"
	"verinews.io/verify/verify"
)

// Mirror implements verify.Tracker.
type Mirror struct {
	Index *Index
	Store storage.CAS
	Log   logrus.FieldLogger
}

var _ verify.Tracker = (*Mirror)(nil)

// New returns a mirror over an index and a store.
func New(index *Index, store storage.CAS, log logrus.FieldLogger) *Mirror {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Mirror{Index: index, Store: store, Log: log}
}

func (m *Mirror) Pending(ctx context.Context, p verify.Pending) error {
	return m.Index.AddPending(ctx, p)
}

// Confirmed stores the record body and marks the submission verified.
func (m *Mirror) Confirmed(ctx context.Context, submissionID string, rec verify.Record) error {
	id, err := m.put(rec)
	if err != nil {
		return err
	}
	if err := m.Index.PutVerified(ctx, submissionID, rec, id); err != nil {
		return err
	}
	m.Log.WithFields(logrus.Fields{
		"verification": rec.VerificationID,
		"cid":          id.String(),
	}).Debug("record mirrored")
	return nil
}

func (m *Mirror) Failed(ctx context.Context, submissionID string, cause error) error {
	return m.Index.MarkFailed(ctx, submissionID, cause)
}

func (m *Mirror) put(rec verify.Record) (cid.Cid, error) {
	b, err := EncodeRecord(rec)
	if err != nil {
		return cid.Undef, err
	}
	id, err := m.Store.Put(b)
	if err != nil {
		return cid.Undef, fmt.Errorf("mirror: storing record %s: %w", rec.VerificationID, err)
	}
	return id, nil
}

// Get returns the mirrored record for a verification id.
func (m *Mirror) Get(ctx context.Context, verificationID string) (verify.Record, error) {
	e, err := m.Index.ByVerificationID(ctx, verificationID)
	if err != nil {
		return verify.Record{}, err
	}
	if !e.RecordCID.Defined() {
		return verify.Record{}, fmt.Errorf("mirror: entry %s has no record body", verificationID)
	}
	return m.load(e.RecordCID)
}

func (m *Mirror) load(id cid.Cid) (verify.Record, error) {
	b, err := m.Store.Get(id)
	if err != nil {
		if storage.IsNotFound(err) {
			return verify.Record{}, fmt.Errorf("mirror: record body %s: %w", id, ErrNotFound)
		}
		return verify.Record{}, fmt.Errorf("mirror: record body %s: %w", id, err)
	}
	rec, err := DecodeRecord(b)
	if err != nil {
		return verify.Record{}, err
	}
	if rec.Fingerprint.IsZero() || rec.VerificationID == "" {
		return verify.Record{}, fmt.Errorf("mirror: record body %s is incomplete", id)
	}
	return rec, nil
}

// Export writes the records for the given verification ids as a bundle
// labelled by verification id, zstd-compressed when compress is set.
func (m *Mirror) Export(ctx context.Context, w io.Writer, verificationIDs []string, compress bool) error {
	ids := make([]cid.Cid, 0, len(verificationIDs))
	labels := make(map[string]cid.Cid, len(verificationIDs))
	for _, vid := range verificationIDs {
		e, err := m.Index.ByVerificationID(ctx, vid)
		if err != nil {
			return fmt.Errorf("mirror: export %s: %w", vid, err)
		}
		if !e.RecordCID.Defined() {
			return fmt.Errorf("mirror: export %s: no record body", vid)
		}
		ids = append(ids, e.RecordCID)
		labels[vid] = e.RecordCID
	}
	return bundle.Export(w, m.Store, ids, bundle.ExportOptions{IncludeIndex: true, Labels: labels, Compress: compress})
}

// Import copies a bundle into the store and indexes every labelled record
// not already known. It returns how many records were newly indexed.
func (m *Mirror) Import(ctx context.Context, r io.Reader) (int, error) {
	idx, err := bundle.Import(r, m.Store, bundle.ImportOptions{})
	if err != nil {
		return 0, fmt.Errorf("mirror: import: %w", err)
	}
	added := 0
	for _, l := range idx.Labels {
		if _, err := m.Index.ByVerificationID(ctx, l.Name); err == nil {
			continue
		} else if !errors.Is(err, ErrNotFound) {
			return added, err
		}
		id, err := cid.Decode(l.CID)
		if err != nil {
			return added, fmt.Errorf("mirror: import label %s: %w", l.Name, err)
		}
		rec, err := m.load(id)
		if err != nil {
			return added, err
		}
		if rec.VerificationID != l.Name {
			return added, fmt.Errorf("mirror: import label %s holds record %s", l.Name, rec.VerificationID)
		}
		if err := m.Index.PutVerified(ctx, "import:"+rec.VerificationID, rec, id); err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}

// Flag records the outcome of a content check against a mirrored entry.
func (m *Mirror) Flag(ctx context.Context, verificationID string, tampered bool) error {
	err := m.Index.SetFlagged(ctx, verificationID, tampered)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
