package core

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by this package wraps exactly one of them.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrForbidden   = errors.New("forbidden")
	ErrMalformed   = errors.New("malformed")
	ErrUnavailable = errors.New("unavailable")
)

var (
	ErrDeviceOffline  = fmt.Errorf("%w: device offline", ErrNotFound)
	ErrUserOffline    = fmt.Errorf("%w: offline", ErrNotFound)
	ErrNotPending     = fmt.Errorf("%w: not pending", ErrNotFound)
	ErrNotClaimed     = fmt.Errorf("%w: not claimed", ErrNotFound)
	ErrNotRegistered  = fmt.Errorf("%w: device not registered", ErrNotFound)
	ErrAlreadyClaimed = fmt.Errorf("%w: already claimed", ErrConflict)
	ErrClaimPending   = fmt.Errorf("%w: pending", ErrConflict)
	ErrBanned         = fmt.Errorf("%w: banned", ErrForbidden)
	ErrNotOwner       = fmt.Errorf("%w: not owner", ErrForbidden)
	ErrCapacity       = fmt.Errorf("%w: connection limit reached", ErrUnavailable)
	ErrStopped        = fmt.Errorf("%w: service stopped", ErrUnavailable)
)

// Code returns a short machine-readable code for err, used in socket error events.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	default:
		return "internal"
	}
}
