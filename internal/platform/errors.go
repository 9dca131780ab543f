package platform

import "errors"

var (
	// ErrNotFound is returned when a member, channel, message or category is missing.
	ErrNotFound = errors.New("not found")
	// ErrTimedOut is returned by AwaitNextMessage when no qualifying message arrived in time.
	ErrTimedOut = errors.New("timed out")
	// ErrUnauthorized marks an interaction triggered by someone other than the owner of the control.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrValidation marks rejected user input (wrong attachment type, missing form field).
	ErrValidation = errors.New("validation failed")
	// ErrTransient marks a retryable platform failure such as a rate limit.
	ErrTransient = errors.New("transient platform error")
	// ErrStartup marks a provisioning failure during guild initialization.
	ErrStartup = errors.New("startup provisioning failed")
)
