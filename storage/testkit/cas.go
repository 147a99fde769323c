// Package testkit holds conformance checks shared by every storage.CAS
// implementation.
package testkit

import (
	"bytes"
	"testing"

	"github.com/ipfs/go-cid"

	"verinews.io/verify/fingerprint"
	"verinews.io/verify/storage"
)

// NewCAS constructs a fresh, empty CAS isolated from other tests.
type NewCAS func(t *testing.T) storage.CAS

var checks = []struct {
	name string
	run  func(t *testing.T, cas storage.CAS)
}{
	{"RecordRoundTrip", func(t *testing.T, cas storage.CAS) {
		roundTrip(t, cas, []byte(`{"title":"harbour fire","category":"image"}`))
	}},
	{"EmptyObject", func(t *testing.T, cas storage.CAS) {
		roundTrip(t, cas, []byte{})
	}},
	{"BundleSizedObject", func(t *testing.T, cas storage.CAS) {
		roundTrip(t, cas, bytes.Repeat([]byte("frame "), 64<<10))
	}},
	{"PutIdempotent", func(t *testing.T, cas storage.CAS) {
		b := []byte("same record")
		id1 := mustPut(t, cas, b)
		if id2 := mustPut(t, cas, b); id1 != id2 {
			t.Fatalf("Put not idempotent: %s vs %s", id1, id2)
		}
	}},
	{"DistinctRecordsDistinctKeys", func(t *testing.T, cas storage.CAS) {
		a := mustPut(t, cas, []byte("record a"))
		b := mustPut(t, cas, []byte("record b"))
		if a == b {
			t.Fatalf("different records share key %s", a)
		}
	}},
	{"MissingIsNotFound", func(t *testing.T, cas storage.CAS) {
		b := []byte("never mirrored")
		id := fingerprint.CIDOf(b)
		if cas.Has(id) {
			t.Fatalf("Has true before Put")
		}
		if _, err := cas.Get(id); !storage.IsNotFound(err) {
			t.Fatalf("Get missing: got %v want ErrNotFound", err)
		}
		mustPut(t, cas, b)
		if !cas.Has(id) {
			t.Fatalf("Has false after Put")
		}
	}},
	{"RejectUndefCID", func(t *testing.T, cas storage.CAS) {
		var undef cid.Cid
		if cas.Has(undef) {
			t.Fatalf("Has true for undefined CID")
		}
		if _, err := cas.Get(undef); err == nil {
			t.Fatalf("Get accepted undefined CID")
		}
	}},
}

// RunCASConformance runs every check against a fresh store from newCAS.
func RunCASConformance(t *testing.T, newCAS NewCAS) {
	t.Helper()
	for _, c := range checks {
		t.Run(c.name, func(t *testing.T) { c.run(t, newCAS(t)) })
	}
}

func mustPut(t *testing.T, cas storage.CAS, b []byte) cid.Cid {
	t.Helper()
	id, err := cas.Put(b)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	return id
}

// roundTrip checks that b is stored under its ledger fingerprint and comes
// back unchanged.
func roundTrip(t *testing.T, cas storage.CAS, b []byte) {
	t.Helper()
	id := mustPut(t, cas, b)
	if want := fingerprint.CIDOf(b); id != want {
		t.Fatalf("Put CID: got %s want %s", id, want)
	}
	got, err := cas.Get(id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, b) {
		t.Fatalf("Get returned %d bytes, want %d", len(got), len(b))
	}
	fp, err := fingerprint.FromCID(id)
	if err != nil {
		t.Fatalf("FromCID: %v", err)
	}
	if !fp.Matches(got) {
		t.Fatalf("bytes do not match fingerprint %s", fp)
	}
}
