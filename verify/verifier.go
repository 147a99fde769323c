package verify

import (
	"context"
	"io"

	"verinews.io/verify/fingerprint"
)

// Verifier answers "is this the content that was registered under id?".
type Verifier struct {
	Registry *Registry
}

// Check hashes content and compares it against the registered fingerprint.
// A mismatch is KindTampered; the returned record is populated either way.
func (v *Verifier) Check(ctx context.Context, content io.Reader, id string) (OnChainRecord, error) {
	if v.Registry == nil {
		return OnChainRecord{}, newError(KindInternal, "check", "no registry configured")
	}
	fp, err := fingerprint.FromReader(content)
	if err != nil {
		return OnChainRecord{}, wrapError(KindInvalidInput, "check", "content is not readable", err)
	}
	rec, err := v.Registry.Lookup(ctx, id)
	if err != nil {
		return OnChainRecord{}, err
	}
	if rec.Fingerprint != fp {
		return rec, newError(KindTampered, "check", "content hashes to "+fp.String()+", registered "+rec.Fingerprint.String())
	}
	return rec, nil
}
