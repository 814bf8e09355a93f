package dataset

import "errors"

var (
	// ErrNotFound is returned by updates addressing a record that does not exist.
	ErrNotFound = errors.New("dataset: record not found")
	// ErrExists is returned by creates whose key is already taken.
	ErrExists = errors.New("dataset: record already exists")
	// ErrNotInitialized is returned when a dataset is used before Init.
	ErrNotInitialized = errors.New("dataset: not initialized")
)
