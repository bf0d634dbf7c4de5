package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrMissingCity     = errors.New("city is not resolved")
	ErrPrimaryUpload   = errors.New("primary upload failed")
	ErrSecondaryUpload = errors.New("secondary upload failed")
	ErrRecordNotFound  = errors.New("record not found")
	ErrSessionNotFound = errors.New("wizard session not found")
	ErrConflict        = errors.New("conflict")
	ErrTemporary       = errors.New("temporary failure")
)

// Capture outcomes reported by the geometry capture state machine.
var (
	ErrCaptureInactive    = errors.New("no capture in progress")
	ErrInsufficientPoints = errors.New("insufficient points")
	ErrInvalidDrawType    = errors.New("invalid draw type")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
