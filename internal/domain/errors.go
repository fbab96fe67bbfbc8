package domain

import "errors"

var (
	ErrRecordNotFound      = errors.New("presence record not found")
	ErrNoData              = errors.New("no data available")
	ErrEntityNotFound      = errors.New("entity not found")
	ErrSnapshotUnavailable = errors.New("presence snapshot unavailable")
	ErrCorruptState        = errors.New("persisted state is malformed")
	ErrNoDestination       = errors.New("report destination is not set")
	ErrInvalidDestination  = errors.New("invalid report destination")
)
