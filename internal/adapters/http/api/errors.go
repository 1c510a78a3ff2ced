package api

import "errors"

// Sentinel kinds for API errors.
var (
	ErrBadRequest       = errors.New("bad request")
	ErrEndpointNotFound = errors.New("endpoint not found")
	ErrNoGuildData      = errors.New("no guild data found")
	ErrInternal         = errors.New("internal server error")
)
