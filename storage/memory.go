package storage

import (
	"bytes"
	"sync"

	"github.com/ipfs/go-cid"
)

// Memory is an in-process CAS. Objects live as long as the value.
type Memory struct {
	mu   sync.RWMutex
	objs map[cid.Cid][]byte
}

var _ CAS = (*Memory)(nil)

func NewMemory() *Memory { return &Memory{objs: map[cid.Cid][]byte{}} }

func (m *Memory) Put(b []byte) (cid.Cid, error) {
	id := Key(b)
	if !id.Defined() {
		return cid.Undef, ErrInvalidCID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objs == nil {
		m.objs = map[cid.Cid][]byte{}
	}
	if old, ok := m.objs[id]; ok {
		if !bytes.Equal(old, b) {
			return cid.Undef, ErrImmutable
		}
		return id, nil
	}
	m.objs[id] = append([]byte(nil), b...)
	return id, nil
}

func (m *Memory) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, ErrInvalidCID
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.objs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (m *Memory) Has(id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objs[id]
	return ok
}
