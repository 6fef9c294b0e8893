package appointment

import "errors"

var (
	ErrInvalidReference   = errors.New("invalid reference")
	ErrSlotConflict       = errors.New("time slot is already booked")
	ErrUnauthorized       = errors.New("no valid caller identity")
	ErrForbidden          = errors.New("not allowed")
	ErrInvalidStatus      = errors.New("invalid status")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrNotFound           = errors.New("appointment not found")
)
