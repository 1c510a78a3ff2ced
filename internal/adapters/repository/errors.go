package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound         = errors.New("not found")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrInvalidWindow    = errors.New("invalid time window")
)
