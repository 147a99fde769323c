// Package ipfs mirrors records into a local Kubo repository by shelling out
// to the "ipfs" CLI. Blocks are stored raw with a keccak-256 multihash so
// their CIDs equal the ledger fingerprints of the mirrored bytes.
package ipfs

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/ipfs/go-cid"

	"verinews.io/verify/storage"
)

// CAS works on the local repo and needs no daemon. Reachability is not
// validity: every block read is checked against its CID.
type CAS struct {
	bin string
	env []string
	pin bool
}

var _ storage.CAS = (*CAS)(nil)

type Options struct {
	// Bin is the ipfs binary; "ipfs" when empty.
	Bin string
	// Env replaces the command environment (e.g. to set IPFS_PATH). Nil
	// inherits the process environment.
	Env []string
	// Pin keeps mirrored records out of repo garbage collection.
	Pin bool
}

func New(opts Options) *CAS {
	bin := opts.Bin
	if bin == "" {
		bin = "ipfs"
	}
	return &CAS{bin: bin, env: opts.Env, pin: opts.Pin}
}

// cmdError is a failed ipfs invocation with its stderr.
type cmdError struct {
	op     string
	stderr string
	err    error
}

func (e *cmdError) Error() string {
	if e.stderr != "" {
		return fmt.Sprintf("ipfs %s: %s", e.op, e.stderr)
	}
	return fmt.Sprintf("ipfs %s: %v", e.op, e.err)
}

func (e *cmdError) Unwrap() error { return e.err }

func (e *cmdError) missing() bool {
	msg := strings.ToLower(e.stderr)
	return strings.Contains(msg, "not found") || strings.Contains(msg, "could not find")
}

func (c *CAS) Put(data []byte) (cid.Cid, error) {
	id := storage.Key(data)
	if !id.Defined() {
		return cid.Undef, storage.ErrInvalidCID
	}
	args := []string{"block", "put", "--quiet", "--cid-codec=raw", "--mhtype=keccak-256", "--mhlen=32"}
	if c.pin {
		args = append(args, "--pin=true")
	}
	out, err := c.run(data, append(args, "/dev/stdin")...)
	if err != nil {
		return cid.Undef, err
	}
	got, err := cid.Decode(strings.TrimSpace(string(out)))
	if err != nil {
		return cid.Undef, fmt.Errorf("ipfs block put: unexpected output: %w", err)
	}
	if !got.Equals(id) {
		return cid.Undef, storage.ErrCIDMismatch
	}
	return id, nil
}

func (c *CAS) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	out, err := c.run(nil, "block", "get", "--offline", id.String())
	if err != nil {
		var ce *cmdError
		if errors.As(err, &ce) && ce.missing() {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	if err := storage.Check(id, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CAS) Has(id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	_, err := c.run(nil, "block", "stat", "--offline", id.String())
	return err == nil
}

func (c *CAS) run(stdin []byte, args ...string) ([]byte, error) {
	cmd := exec.Command(c.bin, args...)
	if c.env != nil {
		cmd.Env = c.env
	}
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	out, err := cmd.Output()
	if err == nil {
		return out, nil
	}
	ce := &cmdError{op: strings.Join(args[:min(2, len(args))], " "), err: err}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		ce.stderr = strings.TrimSpace(string(ee.Stderr))
	}
	return nil, ce
}
