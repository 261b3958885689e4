package store

import "errors"

// ErrRecordNotFound indicates no tracking record exists for the given version.
var ErrRecordNotFound = errors.New("tracking record not found")

// ErrTableCreation indicates the tracking table could not be created.
var ErrTableCreation = errors.New("creating tracking table")

// ErrUnknownColumn indicates an append targeted a column other than the two logs.
var ErrUnknownColumn = errors.New("unknown log column")
