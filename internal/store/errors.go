package store

import "errors"

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrDuplicateKey   = errors.New("already exists")
	// ErrVersionConflict is returned when a conditional write lost against a concurrent update.
	ErrVersionConflict = errors.New("record was modified concurrently")
)
