package repository

import "errors"

// ErrNotFound is returned by repository methods when the requested record
// does not exist. Callers should check with errors.Is.
var ErrNotFound = errors.New("record not found")

// ErrConflict is returned when an insert violates a unique constraint, for
// example registering a user with an email that already exists.
var ErrConflict = errors.New("record already exists")
