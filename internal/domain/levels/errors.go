package levels

import "errors"

// ErrInvalidPayload marks a profile payload that is not JSON at all.
var ErrInvalidPayload = errors.New("invalid profile payload")
