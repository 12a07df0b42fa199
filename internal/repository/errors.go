package repository

import "errors"

var (
	// ErrNotFound indicates an entity was not located.
	ErrNotFound = errors.New("repository: not found")
	// ErrDuplicateCode indicates a device or user code collides with a live request.
	ErrDuplicateCode = errors.New("repository: duplicate device code")
	// ErrExpired indicates the device request existed but is past its expiry.
	ErrExpired = errors.New("repository: device code expired")
	// ErrPendingApproval indicates the device request is live but not yet verified.
	ErrPendingApproval = errors.New("repository: authorization pending")
	// ErrInvalidArgument indicates the caller supplied an unusable value.
	ErrInvalidArgument = errors.New("repository: invalid argument")
	// ErrConflict indicates a unique constraint violation on insert.
	ErrConflict = errors.New("repository: conflict")
)
