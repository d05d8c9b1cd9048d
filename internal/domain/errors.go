package domain

import "errors"

var (
	ErrValidation       = errors.New("validation failed")
	ErrNotFound         = errors.New("not found")
	ErrMalformedRecord  = errors.New("malformed tracking record")
	ErrInvalidCount     = errors.New("invalid open count")
	ErrStoreUnavailable = errors.New("tracking store unavailable")
)
