package directory

import "errors"

// Domain errors for key and entry handling.
var (
	// ErrMalformedKey indicates a key without the four required tuples.
	ErrMalformedKey = errors.New("malformed directory key")
)
