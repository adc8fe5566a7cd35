package classify

import "errors"

// ErrBadReference and ErrBadType are the spec §7 per-Record validation
// errors: a reference that resolves to nothing, or resolves to an Object
// of an unexpected type.
var (
	ErrBadReference = errors.New("classify: reference does not resolve")
	ErrBadType      = errors.New("classify: object has unexpected type")
)
