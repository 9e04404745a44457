package data

import "errors"

var (
	ErrNotFound                  = errors.New("not found")
	ErrNoRowsAffected            = errors.New("no rows affected")
	ErrUniqueConstraintViolation = errors.New("unique constraint violation")
	ErrSerializationFailure      = errors.New("serialization failure")
)
