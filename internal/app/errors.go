package service

import "errors"

// Sentinel kinds for service errors.
var (
	// ErrRunInProgress is returned by Collect while another run is active.
	ErrRunInProgress = errors.New("collection run already in progress")

	// ErrNoData means nothing has been collected yet.
	ErrNoData = errors.New("no data collected yet")

	// ErrInvalidArgument marks bad read parameters such as an hours window.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrGuildListUnavailable means a run could not load the guild list.
	ErrGuildListUnavailable = errors.New("guild list unavailable")
)
