package services

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by a service either wraps one of these or
// is an internal failure.
var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNotFound           = errors.New("not found")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrInvalidInput       = errors.New("invalid input")
)

var (
	ErrAdminRequired    = fmt.Errorf("%w: admin access required", ErrUnauthorized)
	ErrUserNotFound     = fmt.Errorf("user %w", ErrNotFound)
	ErrSessionNotFound  = fmt.Errorf("session %w or unauthorized", ErrNotFound)
	ErrCannotDemoteSelf = fmt.Errorf("%w: cannot remove your own admin role", ErrPreconditionFailed)
	ErrCannotBanSelf    = fmt.Errorf("%w: cannot ban yourself", ErrPreconditionFailed)
	ErrCannotBanAdmin   = fmt.Errorf("%w: cannot ban another admin", ErrPreconditionFailed)
	ErrUserNotBanned    = fmt.Errorf("%w: user is not banned", ErrPreconditionFailed)
	ErrInvalidRole      = fmt.Errorf("%w: unknown role", ErrInvalidInput)
)
