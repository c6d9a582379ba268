package storage

import "errors"

// Common storage errors
var (
	ErrNotFound = errors.New("not found")
	ErrDisabled = errors.New("deployment journal is disabled")
)
