package store

import "errors"

// ErrDuplicate is returned when an insert or update violates a uniqueness
// constraint (duplicate username, project name, collaborator row).
var ErrDuplicate = errors.New("duplicate row")
