package app

import "errors"

var (
	ErrInvalidRequest  = errors.New("invalid request")
	ErrUserNotFound    = errors.New("user not found")
	ErrDatasetNotFound = errors.New("dataset not found")

	// Step-failure classes. Orchestrator steps wrap their cause with one of
	// these so callers can tell a scratch-filesystem problem from a blob
	// store or metadata store one.
	ErrIOFailure          = errors.New("filesystem failure")
	ErrStorageFailure     = errors.New("blob storage failure")
	ErrPersistenceFailure = errors.New("metadata persistence failure")
)
