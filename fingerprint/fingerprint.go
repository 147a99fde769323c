// Package fingerprint computes content fingerprints: Keccak-256 digests of
// raw content bytes, the value registered on the ledger for a piece of media.
//
// A Fingerprint is a pure function of the input bytes. It never depends on
// file names, metadata, or wall-clock time.
package fingerprint

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Size is the fingerprint length in bytes.
const Size = 32

// Fingerprint is a Keccak-256 digest of content bytes.
type Fingerprint [Size]byte

// Zero is the undefined fingerprint.
var Zero Fingerprint

// Sum returns the fingerprint of data.
func Sum(data []byte) Fingerprint {
	var f Fingerprint
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write(data)
	h.Sum(f[:0])
	return f
}

// FromReader streams r to EOF and returns the fingerprint of everything read.
func FromReader(r io.Reader) (Fingerprint, error) {
	if r == nil {
		return Zero, fmt.Errorf("fingerprint: nil reader")
	}
	h := sha3.NewLegacyKeccak256()
	if _, err := io.Copy(h, r); err != nil {
		return Zero, fmt.Errorf("fingerprint: read content: %w", err)
	}
	var f Fingerprint
	h.Sum(f[:0])
	return f, nil
}

// FromFile returns the fingerprint of the file at path.
func FromFile(path string) (Fingerprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return Zero, fmt.Errorf("fingerprint: %w", err)
	}
	defer f.Close()
	return FromReader(f)
}

// Parse decodes a hex fingerprint, with or without a 0x prefix.
func Parse(s string) (Fingerprint, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != 2*Size {
		return Zero, fmt.Errorf("fingerprint: expected %d hex chars, got %d", 2*Size, len(s))
	}
	var f Fingerprint
	if _, err := hex.Decode(f[:], []byte(s)); err != nil {
		return Zero, fmt.Errorf("fingerprint: %w", err)
	}
	return f, nil
}

// String returns the 0x-prefixed lowercase hex encoding.
func (f Fingerprint) String() string {
	return "0x" + hex.EncodeToString(f[:])
}

func (f Fingerprint) IsZero() bool { return f == Zero }

// Bytes returns a copy of the digest.
func (f Fingerprint) Bytes() []byte {
	return append([]byte(nil), f[:]...)
}

// Matches reports whether data hashes to f.
func (f Fingerprint) Matches(data []byte) bool {
	return Sum(data) == f
}

func (f Fingerprint) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *Fingerprint) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}
