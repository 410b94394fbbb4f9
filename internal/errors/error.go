package errors

import "github.com/pkg/errors"

var (
	// common errors
	ErrTenantMissing = errors.New("tenant is missing")
	ErrUserIDMissing = errors.New("userId is missing")

	// sync errors
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrAuthInvalid         = errors.New("provider credentials rejected")
	ErrTimeout             = errors.New("operation timed out")
	ErrPushNotSupported    = errors.New("push channel not supported by provider")
	ErrSessionExists       = errors.New("sync session already running")

	// request errors
	ErrValidation   = errors.New("invalid payload")
	ErrAccessDenied = errors.New("access denied")
	ErrNotFound     = errors.New("not found")

	// cache errors
	ErrComputeFailure = errors.New("analysis computation failed")
)
