package storage

import (
	"fmt"

	"github.com/ipfs/go-cid"
)

// firstHit asks each store in turn for id. Misses fall through; any other
// error ends the walk since a later hit could mask a corrupt backend.
func firstHit(stores []CAS, id cid.Cid) ([]byte, error) {
	for _, s := range stores {
		if s == nil {
			continue
		}
		b, err := s.Get(id)
		switch {
		case err == nil:
			return b, nil
		case !IsNotFound(err):
			return nil, err
		}
	}
	return nil, ErrNotFound
}

func anyHas(stores []CAS, id cid.Cid) bool {
	for _, s := range stores {
		if s != nil && s.Has(id) {
			return true
		}
	}
	return false
}

// MultiCAS is the "first" mirror policy: records are written to the head
// store only and read back from whichever store has them first. A local
// directory in front of a shared mirror daemon is the usual layout.
type MultiCAS struct {
	Adapters []CAS
}

var _ CAS = MultiCAS{}

func (m MultiCAS) Put(b []byte) (cid.Cid, error) {
	if len(m.Adapters) == 0 {
		return cid.Undef, fmt.Errorf("storage: first policy needs at least one store")
	}
	return m.Adapters[0].Put(b)
}

func (m MultiCAS) Get(id cid.Cid) ([]byte, error) { return firstHit(m.Adapters, id) }

func (m MultiCAS) Has(id cid.Cid) bool { return anyHas(m.Adapters, id) }

// NamedCAS is a store labelled with its config id for error reporting.
type NamedCAS struct {
	Name string
	CAS  CAS
}

// ReplicatingCAS is the "all" mirror policy: every record lands on every
// store before Put returns.
type ReplicatingCAS struct {
	Backends []NamedCAS
}

var _ CAS = ReplicatingCAS{}

func (r ReplicatingCAS) stores() []CAS {
	out := make([]CAS, len(r.Backends))
	for i, b := range r.Backends {
		out[i] = b.CAS
	}
	return out
}

// PutAll stores b everywhere and reports the key each store answered with.
// The first store to fail or to disagree on the key aborts the write; the
// map still holds the stores that succeeded before it.
func (r ReplicatingCAS) PutAll(b []byte) (cid.Cid, map[string]cid.Cid, error) {
	want := Key(b)
	if !want.Defined() {
		return cid.Undef, nil, ErrInvalidCID
	}
	if len(r.Backends) == 0 {
		return cid.Undef, nil, fmt.Errorf("storage: all policy needs at least one store")
	}
	got := make(map[string]cid.Cid, len(r.Backends))
	for _, nb := range r.Backends {
		if nb.CAS == nil {
			return cid.Undef, nil, fmt.Errorf("storage: store %q is not open", nb.Name)
		}
		id, err := nb.CAS.Put(b)
		if err != nil {
			return cid.Undef, got, fmt.Errorf("storage: replicate to %s: %w", nb.Name, err)
		}
		got[nb.Name] = id
		if !id.Equals(want) {
			return cid.Undef, got, fmt.Errorf("storage: replicate to %s: %w", nb.Name, ErrCIDMismatch)
		}
	}
	return want, got, nil
}

func (r ReplicatingCAS) Put(b []byte) (cid.Cid, error) {
	id, _, err := r.PutAll(b)
	return id, err
}

func (r ReplicatingCAS) Get(id cid.Cid) ([]byte, error) { return firstHit(r.stores(), id) }

func (r ReplicatingCAS) Has(id cid.Cid) bool { return anyHas(r.stores(), id) }
