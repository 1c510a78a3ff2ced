package gameapi

import "errors"

// ErrUnavailable wraps every failure to obtain data from the game API.
var ErrUnavailable = errors.New("game api unavailable")

// ErrBadResponse marks a 2xx response whose body could not be decoded.
var ErrBadResponse = errors.New("malformed game api response")
