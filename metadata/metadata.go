// Package metadata builds the canonical metadata payload that accompanies a
// content fingerprint on the ledger.
//
// Build is the single canonicalization choke point: every payload submitted
// to the ledger, and every payload read back from it, passes through the same
// encoding so that byte equality implies semantic equality.
package metadata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"verinews.io/verify/fingerprint"
)

const (
	MaxTitleRunes    = 512
	MaxLocationRunes = 256

	// DefaultContentType is used when the upload did not declare a type.
	DefaultContentType = "application/octet-stream"
)

// Metadata is the user-facing description of a piece of content.
// It is never mutated once built.
type Metadata struct {
	Title       string `json:"title"`
	Location    string `json:"location,omitempty"`
	ContentType string `json:"contentType"`
	Creator     string `json:"creator"`
	// SubmittedAt is milliseconds since the Unix epoch.
	SubmittedAt int64 `json:"uploadedAt"`
}

// SubmittedTime returns SubmittedAt as a UTC time.
func (m Metadata) SubmittedTime() time.Time {
	return time.UnixMilli(m.SubmittedAt).UTC()
}

// Category classifies the metadata's content type.
func (m Metadata) Category() Category {
	return CategoryOf(m.ContentType)
}

// Request carries the inputs to Build. Content is identified by its
// fingerprint only; the builder never sees content bytes.
type Request struct {
	Fingerprint fingerprint.Fingerprint
	Title       string
	Location    string
	ContentType string
	Creator     string
	SubmittedAt time.Time
}

// Payload is a built metadata payload bound to a fingerprint.
type Payload struct {
	Fingerprint fingerprint.Fingerprint
	Metadata    Metadata
	// Bytes is the canonical serialization submitted to the ledger.
	Bytes []byte
}

func (p Payload) String() string { return string(p.Bytes) }

// wire is the serialized form. Field order is fixed by the struct.
type wire struct {
	Fingerprint fingerprint.Fingerprint `json:"contentHash"`
	Metadata
}

// Build validates req and returns its canonical payload.
func Build(req Request) (Payload, error) {
	if req.Fingerprint.IsZero() {
		return Payload{}, &ValidationError{Field: "fingerprint", Reason: "missing content fingerprint"}
	}
	title, err := cleanField("title", req.Title, MaxTitleRunes)
	if err != nil {
		return Payload{}, err
	}
	if title == "" {
		return Payload{}, &ValidationError{Field: "title", Reason: "title is required"}
	}
	location, err := cleanField("location", req.Location, MaxLocationRunes)
	if err != nil {
		return Payload{}, err
	}
	contentType := strings.ToLower(strings.TrimSpace(req.ContentType))
	if contentType == "" {
		contentType = DefaultContentType
	}
	if !validMediaType(contentType) {
		return Payload{}, &ValidationError{Field: "contentType", Reason: fmt.Sprintf("invalid media type %q", req.ContentType)}
	}
	creator := strings.TrimSpace(req.Creator)
	if creator == "" {
		return Payload{}, &ValidationError{Field: "creator", Reason: "creator identity is required"}
	}
	if req.SubmittedAt.IsZero() {
		return Payload{}, &ValidationError{Field: "submittedAt", Reason: "submission time is required"}
	}

	md := Metadata{
		Title:       title,
		Location:    location,
		ContentType: contentType,
		Creator:     creator,
		SubmittedAt: req.SubmittedAt.UnixMilli(),
	}
	b, err := encode(wire{Fingerprint: req.Fingerprint, Metadata: md})
	if err != nil {
		return Payload{}, err
	}
	return Payload{Fingerprint: req.Fingerprint, Metadata: md, Bytes: b}, nil
}

// Parse decodes a payload read back from the ledger. Non-canonical input is
// rejected.
func Parse(data []byte) (Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var w wire
	if err := dec.Decode(&w); err != nil {
		return Payload{}, fmt.Errorf("metadata: decode payload: %w", err)
	}
	p, err := Build(Request{
		Fingerprint: w.Fingerprint,
		Title:       w.Title,
		Location:    w.Location,
		ContentType: w.ContentType,
		Creator:     w.Creator,
		SubmittedAt: time.UnixMilli(w.SubmittedAt),
	})
	if err != nil {
		return Payload{}, err
	}
	if !bytes.Equal(p.Bytes, data) {
		return Payload{}, fmt.Errorf("metadata: payload is not canonical")
	}
	return p, nil
}

func encode(w wire) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(w); err != nil {
		return nil, fmt.Errorf("metadata: encode payload: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func cleanField(field, v string, maxRunes int) (string, error) {
	v = strings.TrimSpace(v)
	if !utf8.ValidString(v) {
		return "", &ValidationError{Field: field, Reason: "must be valid UTF-8"}
	}
	if n := utf8.RuneCountInString(v); n > maxRunes {
		return "", &ValidationError{Field: field, Reason: fmt.Sprintf("too long (%d > %d characters)", n, maxRunes)}
	}
	for _, r := range v {
		if unicode.IsControl(r) {
			return "", &ValidationError{Field: field, Reason: "control characters are not allowed"}
		}
	}
	return v, nil
}

// validMediaType accepts type/subtype with optional parameters; it does not
// consult a registry.
func validMediaType(s string) bool {
	base, _, _ := strings.Cut(s, ";")
	typ, sub, ok := strings.Cut(strings.TrimSpace(base), "/")
	return ok && typ != "" && sub != "" && !strings.ContainsAny(typ+sub, " /\t")
}
