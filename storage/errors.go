package storage

import "errors"

// Sentinel errors shared by every backend. Adapters wrap them with %w so
// callers can match on errors.Is.
var (
	// ErrNotFound means no backend holds the requested record object.
	ErrNotFound = errors.New("storage: object not mirrored")
	// ErrInvalidCID rejects an undefined or unparsable object key.
	ErrInvalidCID = errors.New("storage: bad object key")
	// ErrCIDMismatch means the returned bytes do not hash to the key asked for.
	ErrCIDMismatch = errors.New("storage: object does not match its key")
	// ErrImmutable means a second write tried to replace an object's bytes.
	ErrImmutable = errors.New("storage: object already stored with different bytes")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
