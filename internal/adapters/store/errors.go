package store

import "errors"

// Sentinel kinds for event store errors.
var (
	ErrDataDir       = errors.New("data dir unavailable")
	ErrMalformedFile = errors.New("malformed event file")
	ErrWriteFailed   = errors.New("event file write failed")
)
