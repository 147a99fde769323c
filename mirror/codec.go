package mirror

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"verinews.io/verify/verify"
)

// encMode uses Core Deterministic Encoding (RFC 8949 §4.2): the same record
// always encodes to the same bytes and therefore the same CID.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error
	opts := cbor.CoreDetEncOptions()
	// Fingerprints, hashes and addresses encode as their text form.
	opts.TextMarshaler = cbor.TextMarshalerTextString
	encMode, err = opts.EncMode()
	if err != nil {
		panic("mirror: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
		DupMapKey:       cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic("mirror: CBOR decoder initialization failed: " + err.Error())
	}
}

// EncodeRecord returns the canonical bytes of rec.
func EncodeRecord(rec verify.Record) ([]byte, error) {
	b, err := encMode.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("mirror: encode record %s: %w", rec.VerificationID, err)
	}
	return b, nil
}

// DecodeRecord parses bytes produced by EncodeRecord and rejects any other
// encoding of the same record.
func DecodeRecord(b []byte) (verify.Record, error) {
	var rec verify.Record
	if err := decMode.Unmarshal(b, &rec); err != nil {
		return verify.Record{}, fmt.Errorf("mirror: decode record: %w", err)
	}
	again, err := encMode.Marshal(rec)
	if err != nil {
		return verify.Record{}, fmt.Errorf("mirror: re-encode record: %w", err)
	}
	if string(again) != string(b) {
		return verify.Record{}, fmt.Errorf("mirror: record %s is not canonically encoded", rec.VerificationID)
	}
	return rec, nil
}
