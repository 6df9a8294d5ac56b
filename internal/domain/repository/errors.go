package repository

import "errors"

var (
	// ErrVideoNotFound is returned when a video record cannot be found.
	ErrVideoNotFound = errors.New("video record not found")

	// ErrDuplicateVideo is returned when attempting to create a record that already exists.
	ErrDuplicateVideo = errors.New("video record already exists")

	// ErrObjectNotFound is returned when an object cannot be found in storage.
	ErrObjectNotFound = errors.New("object not found")

	// ErrBucketNotFound is returned when the configured bucket does not exist.
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrInvalidState is returned when an operation is attempted against a
	// record whose status makes the operation nonsensical (409 Conflict).
	ErrInvalidState = errors.New("video record in unexpected state")
)
