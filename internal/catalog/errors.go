package catalog

import "errors"

var (
	// ErrDuplicateHash is returned by InsertMedia when the content hash is
	// already cataloged. Callers treat it as the dedup signal, not a failure.
	ErrDuplicateHash = errors.New("content hash already cataloged")

	// ErrNotFound signals a lookup that matched nothing. Store lookups
	// return nil rows; operator-facing layers translate nil into this
	// sentinel when the identifier came from user input.
	ErrNotFound = errors.New("catalog row not found")
)
