package database

import "errors"

var (
	// ErrNotFound means a referenced entity id does not exist.
	ErrNotFound = errors.New("entity not found")
)
