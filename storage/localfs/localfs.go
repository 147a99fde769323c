// Package localfs keeps mirrored record objects as read-only files in a
// local directory.
//
// Every keccak CIDv1 shares the same multibase prefix, so objects are
// sharded by the last two characters of the CID, which come from the
// digest.
package localfs

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ipfs/go-cid"

	"verinews.io/verify/storage"
)

// CAS is a directory-backed store. It never touches the network.
type CAS struct {
	root string
}

var _ storage.CAS = (*CAS)(nil)

// New roots a store at dir, creating it if needed.
func New(root string) (*CAS, error) {
	if root == "" {
		return nil, errors.New("localfs: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("localfs: %w", err)
	}
	return &CAS{root: root}, nil
}

func (c *CAS) Root() string { return c.root }

// Put writes b to a temp file in the shard and hard-links it into place.
// The link fails if the object already exists, in which case the stored
// bytes must equal b.
func (c *CAS) Put(b []byte) (cid.Cid, error) {
	id := storage.Key(b)
	if !id.Defined() {
		return cid.Undef, storage.ErrInvalidCID
	}
	dst := c.pathFor(id)
	if c.Has(id) {
		return id, c.sameAs(id, b)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return cid.Undef, fmt.Errorf("localfs: %w", err)
	}
	tmp, err := writeTemp(filepath.Dir(dst), b)
	if err != nil {
		return cid.Undef, fmt.Errorf("localfs: %w", err)
	}
	defer os.Remove(tmp)

	if err := os.Link(tmp, dst); err != nil {
		if os.IsExist(err) {
			return id, c.sameAs(id, b)
		}
		return cid.Undef, fmt.Errorf("localfs: %w", err)
	}
	return id, nil
}

// sameAs maps any mismatch with an existing object, including an
// unreadable one, to ErrImmutable. Damaged files are never repaired.
func (c *CAS) sameAs(id cid.Cid, b []byte) error {
	existing, err := c.Get(id)
	if err != nil || !bytes.Equal(existing, b) {
		return storage.ErrImmutable
	}
	return nil
}

func writeTemp(dir string, b []byte) (string, error) {
	f, err := os.CreateTemp(dir, ".put-*")
	if err != nil {
		return "", err
	}
	name := f.Name()
	if _, err = f.Write(b); err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Chmod(name, 0o444)
	}
	if err != nil {
		_ = os.Remove(name)
		return "", err
	}
	return name, nil
}

func (c *CAS) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	b, err := os.ReadFile(c.pathFor(id))
	switch {
	case os.IsNotExist(err):
		return nil, storage.ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("localfs: %w", err)
	}
	if err := storage.Check(id, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (c *CAS) Has(id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	_, err := os.Stat(c.pathFor(id))
	return err == nil
}

func (c *CAS) pathFor(id cid.Cid) string {
	s := id.String()
	if len(s) < 2 {
		return filepath.Join(c.root, s)
	}
	return filepath.Join(c.root, s[len(s)-2:], s)
}
