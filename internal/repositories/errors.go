package repositories

import "errors"

// Common repository errors
var (
	ErrNotFound     = errors.New("record not found")
	ErrStaleWrite   = errors.New("conditional update matched no rows")
	ErrDuplicateKey = errors.New("duplicate key violation")
)
