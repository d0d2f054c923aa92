package service

import "errors"

var (
	ErrRunInProgress   = errors.New("a submission run for this flow and range is already in progress")
	ErrInvalidRange    = errors.New("invalid date range")
	ErrTicketsDisabled = errors.New("issue tracker is not configured")
	// ErrUpstream marks failures of the calendar or issue tracker.
	ErrUpstream = errors.New("upstream unavailable")
)
