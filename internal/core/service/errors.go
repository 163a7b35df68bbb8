package service

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation       = errors.New("validation failed")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("open half order already exists")
	ErrState            = errors.New("invalid session state")
	ErrExpired          = errors.New("half order expired")
	ErrSelfJoin         = errors.New("cannot join own half order")
	ErrDuplicateJoin    = errors.New("table already joined this half order")
	ErrPermission       = errors.New("permission denied")
	ErrDuplicateRequest = errors.New("duplicate request")
)

// ConflictError names the open sessions a create collided with.
type ConflictError struct {
	SessionIDs []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s", ErrConflict, strings.Join(e.SessionIDs, ", "))
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}
