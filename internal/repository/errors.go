package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict indicates the write collides with an existing record.
	ErrConflict = errors.New("repository: conflict")
)
